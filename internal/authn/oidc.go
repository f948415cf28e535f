// Package authn verifies bearer tokens on state-mutating HTTP endpoints.
package authn

import (
	"context"
	"errors"
	"net/http"
	"strings"

	oidc "github.com/coreos/go-oidc/v3/oidc"

	"loginsight/internal/config"
)

// ErrMissingToken is returned when a request has no Authorization header.
var ErrMissingToken = errors.New("authn: missing bearer token")

// ErrInvalidToken is returned when the token fails signature/claims verification.
var ErrInvalidToken = errors.New("authn: invalid bearer token")

type principalKey struct{}

// Principal is the authenticated caller extracted from a verified ID token.
type Principal struct {
	Subject string
	Email   string
}

// Verifier verifies bearer tokens against one OIDC issuer.
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	disabled bool
}

// NewVerifier constructs a Verifier from OIDCConfig. When cfg.Disabled is set
// (local development only) it returns a Verifier whose Middleware is a no-op.
func NewVerifier(ctx context.Context, cfg config.OIDCConfig) (*Verifier, error) {
	if cfg.Disabled {
		return &Verifier{disabled: true}, nil
	}
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, err
	}
	return &Verifier{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Middleware rejects any request lacking a valid "Authorization: Bearer <token>"
// header with 401, and otherwise attaches the verified Principal to the
// request context before calling next.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	if v.disabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := v.authenticate(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (v *Verifier) authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, ErrMissingToken
	}

	idToken, err := v.verifier.Verify(r.Context(), parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, ErrInvalidToken
	}
	return &Principal{Subject: idToken.Subject, Email: claims.Email}, nil
}

// FromContext returns the verified Principal attached by Middleware, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}
