package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	const secret = "s3cret"
	ts := newTestServer(t, WithJWTSecret(secret))

	valid, err := NewAdminToken(secret, "ops", time.Hour)
	if err != nil {
		t.Fatalf("NewAdminToken: %v", err)
	}
	expired, err := NewAdminToken(secret, "ops", -time.Minute)
	if err != nil {
		t.Fatalf("NewAdminToken: %v", err)
	}
	foreign, err := NewAdminToken("other", "ops", time.Hour)
	if err != nil {
		t.Fatalf("NewAdminToken: %v", err)
	}
	noIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	tests := []struct {
		name    string
		header  http.Header
		code    int
		message string
	}{
		{"missing", nil, http.StatusUnauthorized, "missing authorization header"},
		{"malformed", http.Header{"Authorization": []string{valid}}, http.StatusUnauthorized, "invalid authorization header format"},
		{"expired", bearer(expired), http.StatusUnauthorized, "token expired"},
		{"wrong secret", bearer(foreign), http.StatusUnauthorized, "invalid token"},
		{"wrong issuer", bearer(noIssuer), http.StatusUnauthorized, "invalid token"},
		{"valid", bearer(valid), http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(t, http.MethodGet, "/test-llm?message=hi", tt.header)
			if code != tt.code {
				t.Fatalf("status = %d, want %d (%+v)", code, tt.code, resp)
			}
			if tt.message != "" && resp.Message != tt.message {
				t.Errorf("message = %q, want %q", resp.Message, tt.message)
			}
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t, WithJWTSecret("s3cret"))
	if code, _ := ts.do(t, http.MethodGet, "/health", nil); code != http.StatusOK {
		t.Errorf("health = %d", code)
	}
}

func TestNewAdminTokenRequiresSecret(t *testing.T) {
	if _, err := NewAdminToken("", "ops", time.Hour); err == nil {
		t.Errorf("expected an error for an empty secret")
	}
}
