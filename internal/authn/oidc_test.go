package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginsight/internal/config"
)

func TestNewVerifier_Disabled_MiddlewareIsNoOp(t *testing.T) {
	v, err := NewVerifier(context.Background(), config.OIDCConfig{Disabled: true})
	require.NoError(t, err)

	called := false
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := FromContext(r.Context())
		assert.False(t, ok, "a disabled verifier attaches no Principal")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called, "disabled verifier must call next directly, without requiring a token")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticate_MissingAuthorizationHeader(t *testing.T) {
	v := &Verifier{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := v.authenticate(req)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestAuthenticate_MalformedHeaderIsMissingToken(t *testing.T) {
	v := &Verifier{}

	cases := []string{"Bearer", "Basic abc123", "Bearer   "}
	for _, h := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", h)
		_, err := v.authenticate(req)
		assert.ErrorIs(t, err, ErrMissingToken, "header %q", h)
	}
}

func TestFromContext_NotPresentReturnsFalse(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestFromContext_RoundTripsAttachedPrincipal(t *testing.T) {
	p := &Principal{Subject: "sub-1", Email: "a@b.com"}
	ctx := context.WithValue(context.Background(), principalKey{}, p)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, p, got)
}
