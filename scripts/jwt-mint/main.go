// Command jwt-mint creates RS256 key pairs and signs bearer tokens for
// exercising the report API with OIDC authentication enabled locally.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

type mintOptions struct {
	Issuer   string
	Audience string
	Subject  string
	Scopes   string
	KID      string
	Expires  time.Duration
}

func main() {
	currentUser, err := user.Current()
	if err != nil {
		currentUser = &user.User{Username: "report-user"}
	}

	var opts mintOptions
	keyPath := pflag.String("key", ".auth/jwt_private.pem", "Path to RSA private key (PEM)")
	generate := pflag.Bool("generate-keys", false, "Write a new key pair next to --key and exit")
	bits := pflag.Int("bits", 2048, "RSA key size for --generate-keys")
	pflag.StringVar(&opts.Issuer, "issuer", "https://localhost:9000", "JWT issuer")
	pflag.StringVar(&opts.Audience, "audience", "fleet-reports", "JWT audience (comma-separated)")
	pflag.StringVar(&opts.Subject, "subject", currentUser.Username, "JWT subject")
	pflag.StringVar(&opts.Scopes, "scope", "", "Space separated scope claim (optional)")
	pflag.StringVar(&opts.KID, "kid", "local-key", "JWT key ID")
	pflag.DurationVar(&opts.Expires, "expires", time.Hour, "Token lifetime")
	pflag.Parse()

	if *generate {
		dir := filepath.Dir(*keyPath)
		if err := generateKeys(dir, *bits); err != nil {
			exitErr(err)
		}
		fmt.Printf("Wrote key pair to %s\n", dir)
		return
	}

	privateKey, err := loadPrivateKey(*keyPath)
	if err != nil {
		exitErr(err)
	}

	signed, err := mint(privateKey, opts, time.Now())
	if err != nil {
		exitErr(err)
	}
	fmt.Println(signed)
}

func buildClaims(opts mintOptions, now time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{
		"iss": opts.Issuer,
		"sub": opts.Subject,
		"aud": splitList(opts.Audience),
		"iat": now.Unix(),
		"exp": now.Add(opts.Expires).Unix(),
		"nbf": now.Add(-1 * time.Minute).Unix(),
	}
	if scope := strings.Join(strings.Fields(opts.Scopes), " "); scope != "" {
		claims["scope"] = scope
	}
	return claims
}

func mint(key *rsa.PrivateKey, opts mintOptions, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, buildClaims(opts, now))
	token.Header["kid"] = opts.KID
	return token.SignedString(key)
}

// generateKeys writes jwt_private.pem (PKCS#1) and jwt_public.pem (PKIX) into dir.
func generateKeys(dir string, bits int) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	if err := writePEM(filepath.Join(dir, "jwt_private.pem"), "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(privateKey), 0o600); err != nil {
		return err
	}
	publicBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}
	return writePEM(filepath.Join(dir, "jwt_public.pem"), "PUBLIC KEY", publicBytes, 0o644)
}

func writePEM(path, pemType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key pem")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return rsaKey, nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
