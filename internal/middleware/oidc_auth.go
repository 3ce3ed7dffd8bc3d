package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"fleet-reports/internal/logging"
	"fleet-reports/internal/observability"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// OIDCAuthConfig controls OIDC/JWKS validation behavior.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration
	// CAFile adds a PEM bundle to the roots trusted when fetching discovery and JWKS documents.
	CAFile string
}

type authContextKey struct{}

// AuthContext carries validated JWT claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
}

// AuthFromContext returns the auth context from a request context.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// OIDCAuthMiddleware validates Bearer tokens when enabled. metrics may be nil.
func OIDCAuthMiddleware(cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.SecurityMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}

	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx := oidc.ClientContext(context.Background(), httpClient)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience})

	if logger != nil {
		logger.Info("oidc authentication enabled",
			slog.String("issuer", cfg.IssuerURL),
			slog.String("audience", cfg.Audience),
		)
	}
	return newOIDCMiddleware(verifier, cfg, metrics), nil
}

func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc CA file %q: %w", cfg.CAFile, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in oidc CA file %q", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

// tokenVerifier is satisfied by *oidc.IDTokenVerifier.
type tokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

const defaultClockSkew = 2 * time.Minute

// authFailure is a rejected request: reason labels metrics and logs, message
// is returned to the client.
type authFailure struct {
	reason  string
	message string
	err     error
}

type oidcAuthenticator struct {
	verifier tokenVerifier
	issuer   string
	skew     time.Duration
	now      func() time.Time
}

// authenticate verifies the bearer token of r and returns its claims.
func (a oidcAuthenticator) authenticate(ctx context.Context, r *http.Request) (AuthContext, *authFailure) {
	raw := bearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		return AuthContext{}, &authFailure{reason: "missing_token", message: "missing bearer token"}
	}

	idToken, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return AuthContext{}, &authFailure{"invalid_token", "invalid token", err}
	}
	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return AuthContext{}, &authFailure{"claims_parse_failed", "invalid token claims", err}
	}
	if err := validateTimeClaims(claims, a.skew, a.now()); err != nil {
		return AuthContext{}, &authFailure{"time_validation_failed", "invalid token", err}
	}

	return AuthContext{
		Subject:  idToken.Subject,
		Issuer:   idToken.Issuer,
		Audience: idToken.Audience,
		Claims:   claims,
	}, nil
}

func newOIDCMiddleware(verifier tokenVerifier, cfg OIDCAuthConfig, metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	auth := oidcAuthenticator{verifier: verifier, issuer: cfg.IssuerURL, skew: cfg.ClockSkew, now: time.Now}
	if auth.skew == 0 {
		auth.skew = defaultClockSkew
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			endpoint := r.URL.Path
			metrics.RecordAuthAttempt(ctx, endpoint)

			ac, failure := auth.authenticate(ctx, r)
			if failure != nil {
				rejectRequest(w, r, metrics, failure)
				return
			}
			metrics.RecordAuthSuccess(ctx, endpoint, auth.issuer)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", ac.Subject),
					attribute.String("auth.issuer", auth.issuer),
					attribute.StringSlice("auth.audience", ac.Audience),
				)
			}

			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(slog.String("subject", ac.Subject)))
			ctx = context.WithValue(ctx, authContextKey{}, ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectRequest(w http.ResponseWriter, r *http.Request, metrics *observability.SecurityMetrics, f *authFailure) {
	ctx, endpoint := r.Context(), r.URL.Path
	metrics.RecordAuthFailure(ctx, endpoint, f.reason)
	metrics.RecordUnauthorizedAttempt(ctx, endpoint, f.reason)

	attrs := []any{
		slog.String("reason", f.reason),
		slog.String("endpoint", endpoint),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if f.err != nil {
		metrics.RecordTokenValidationError(ctx, f.reason)
		attrs = append(attrs, slog.String("error", f.err.Error()))
	}
	logging.FromContext(ctx).Warn("authentication failed", attrs...)

	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, f.message)
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// validateTimeClaims re-checks exp and nbf with the configured skew. Claims
// that are absent or not numeric are ignored.
func validateTimeClaims(claims map[string]any, skew time.Duration, now time.Time) error {
	if skew <= 0 {
		return nil
	}
	if exp, ok := unixClaim(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := unixClaim(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

// unixClaim reads a NumericDate claim in any of the forms JSON decoding
// produces.
func unixClaim(value any) (time.Time, bool) {
	var secs int64
	switch v := value.(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case int:
		secs = int64(v)
	case json.Number, string:
		n, err := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		secs = n
	default:
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}
