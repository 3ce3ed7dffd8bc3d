package middleware

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOIDCHTTPClient_TrustsProvidedCA(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	caPath := filepath.Join(t.TempDir(), "root_ca.crt")
	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: tlsServer.Certificate().Raw,
	})
	if err := os.WriteFile(caPath, certPEM, 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	client, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath})
	if err != nil {
		t.Fatalf("unexpected client build error: %v", err)
	}

	resp, err := client.Get(tlsServer.URL)
	if err != nil {
		t.Fatalf("expected request to succeed with custom CA, got error: %v", err)
	}
	_ = resp.Body.Close()
}

func TestNewOIDCHTTPClient_FailsWithoutCAForSelfSignedServer(t *testing.T) {
	tlsServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tlsServer.Close()

	client, err := newOIDCHTTPClient(OIDCAuthConfig{})
	if err != nil {
		t.Fatalf("unexpected client build error: %v", err)
	}

	if _, err := client.Get(tlsServer.URL); err == nil {
		t.Fatal("expected TLS verification error without CA file")
	}
}

func TestNewOIDCHTTPClient_RejectsInvalidCAFile(t *testing.T) {
	caPath := filepath.Join(t.TempDir(), "invalid_ca.crt")
	if err := os.WriteFile(caPath, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("failed to write CA file: %v", err)
	}

	if _, err := newOIDCHTTPClient(OIDCAuthConfig{CAFile: caPath}); err == nil {
		t.Fatal("expected error for invalid CA file")
	}
}

const testIssuer = "https://issuer.example.com"

func signTestToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func testOIDCHandler(t *testing.T) (http.Handler, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}, &oidc.Config{
		ClientID: "fleet-reports",
	})
	mw := newOIDCMiddleware(verifier, OIDCAuthConfig{IssuerURL: testIssuer, Audience: "fleet-reports"}, nil)

	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := AuthFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(auth.Subject))
	})), key
}

func TestOIDCMiddleware_MissingToken(t *testing.T) {
	handler, _ := testOIDCHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clientes", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"detail":"missing bearer token"}`, rr.Body.String())
}

func TestOIDCMiddleware_ValidToken(t *testing.T) {
	handler, key := testOIDCHandler(t)
	token := signTestToken(t, key, jwt.MapClaims{
		"iss": testIssuer,
		"aud": "fleet-reports",
		"sub": "analyst",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/clientes", nil)
	req.Header.Set("Authorization", "bearer "+token)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "analyst", rr.Body.String())
}

func TestOIDCMiddleware_RejectsWrongAudience(t *testing.T) {
	handler, key := testOIDCHandler(t)
	token := signTestToken(t, key, jwt.MapClaims{
		"iss": testIssuer,
		"aud": "someone-else",
		"sub": "analyst",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/relatorio/PASSAGENS", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"detail":"invalid token"}`, rr.Body.String())
}

func TestOIDCMiddleware_RejectsForeignSigningKey(t *testing.T) {
	handler, _ := testOIDCHandler(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token := signTestToken(t, other, jwt.MapClaims{
		"iss": testIssuer,
		"aud": "fleet-reports",
		"sub": "analyst",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/clientes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOIDCAuthMiddleware_Configuration(t *testing.T) {
	mw, err := OIDCAuthMiddleware(OIDCAuthConfig{Enabled: false}, nil, nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clientes", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, Audience: "fleet-reports"}, nil, nil)
	assert.Error(t, err)

	_, err = OIDCAuthMiddleware(OIDCAuthConfig{Enabled: true, IssuerURL: "http://issuer.example.com", Audience: "fleet-reports"}, nil, nil)
	assert.EqualError(t, err, "oidc issuer url must use https")
}

func TestValidateTimeClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	skew := 2 * time.Minute

	assert.NoError(t, validateTimeClaims(map[string]any{"exp": float64(now.Add(-time.Minute).Unix())}, skew, now))
	assert.EqualError(t, validateTimeClaims(map[string]any{"exp": float64(now.Add(-5 * time.Minute).Unix())}, skew, now), "token expired")
	assert.EqualError(t, validateTimeClaims(map[string]any{"nbf": json.Number(strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10))}, skew, now), "token not valid yet")
	assert.NoError(t, validateTimeClaims(map[string]any{"exp": "garbage"}, skew, now))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("Bearer"))
}

func TestUnixClaim(t *testing.T) {
	want := time.Unix(1_700_000_000, 0)
	for _, v := range []any{float64(1_700_000_000), int64(1_700_000_000), 1_700_000_000, json.Number("1700000000"), "1700000000"} {
		got, ok := unixClaim(v)
		if assert.True(t, ok, "%T", v) {
			assert.True(t, want.Equal(got), "%T", v)
		}
	}
	for _, v := range []any{nil, "soon", true, json.Number("1.5")} {
		_, ok := unixClaim(v)
		assert.False(t, ok, "%v", v)
	}
}
