package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bulkhaul/globals"
	"bulkhaul/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

func sign(t *testing.T, secret []byte, roles ...string) string {
	t.Helper()
	claims := Claims{
		UserID: "u-1",
		Role:   roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + s
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	globals.JwtSecret = []byte("test-secret")

	var seenUser string
	var seenRoles []string
	final := func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		seenUser = utils.GetUserIDFromRequest(r)
		seenRoles = utils.GetRolesFromRequest(r)
		w.WriteHeader(http.StatusNoContent)
	}
	h := Authenticate(RequireRole(globals.RoleDispatcher, globals.RoleAdmin)(final))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"wrong secret", sign(t, []byte("other"), globals.RoleAdmin), http.StatusUnauthorized},
		{"customer", sign(t, globals.JwtSecret, globals.RoleCustomer), http.StatusForbidden},
		{"dispatcher", sign(t, globals.JwtSecret, globals.RoleDispatcher), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req, nil)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	if seenUser != "u-1" || len(seenRoles) != 1 || seenRoles[0] != globals.RoleDispatcher {
		t.Fatalf("claims not propagated: %s %v", seenUser, seenRoles)
	}
}

func TestOptionalAuth(t *testing.T) {
	globals.JwtSecret = []byte("test-secret")

	var seen string
	h := OptionalAuth(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		seen = utils.GetUserIDFromRequest(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h(httptest.NewRecorder(), req, nil)
	if seen != "" {
		t.Fatalf("anonymous request got user %q", seen)
	}

	req.Header.Set("Authorization", sign(t, globals.JwtSecret))
	h(httptest.NewRecorder(), req, nil)
	if seen != "u-1" {
		t.Fatalf("expected u-1, got %q", seen)
	}
}
