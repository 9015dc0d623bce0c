package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"bulkhaul/globals"
	"bulkhaul/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// JWT claims issued by the auth service.
type Claims struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Role     []string `json:"role"`
	jwt.RegisteredClaims
}

func parseBearer(header string) (*Claims, error) {
	if len(header) < 8 || !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("invalid token format")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(header[7:], claims, func(token *jwt.Token) (any, error) {
		return globals.JwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func withClaims(r *http.Request, c *Claims) *http.Request {
	ctx := context.WithValue(r.Context(), globals.UserIDKey, c.UserID)
	ctx = context.WithValue(ctx, globals.RoleKey, c.Role)
	return r.WithContext(ctx)
}

func Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get("Authorization")
		if header == "" && websocket.IsWebSocketUpgrade(r) {
			// browsers cannot set headers on websocket upgrades
			if t := r.URL.Query().Get("token"); t != "" {
				header = "Bearer " + t
			}
		}
		if header == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "missing token")
			return
		}

		claims, err := parseBearer(header)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, withClaims(r, claims), ps)
	}
}

func OptionalAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if claims, err := parseBearer(r.Header.Get("Authorization")); err == nil {
			r = withClaims(r, claims)
		}
		// proceed regardless of token state
		next(w, r, ps)
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if !utils.HasRole(r, roles...) {
				utils.RespondWithError(w, http.StatusForbidden, "forbidden")
				return
			}
			next(w, r, ps)
		}
	}
}

// Chain composes middlewares; the first one runs outermost.
func Chain(mws ...func(httprouter.Handle) httprouter.Handle) func(httprouter.Handle) httprouter.Handle {
	return func(final httprouter.Handle) httprouter.Handle {
		for i := len(mws) - 1; i >= 0; i-- {
			final = mws[i](final)
		}
		return final
	}
}
