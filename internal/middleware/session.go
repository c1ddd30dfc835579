package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/rs/zerolog/log"
)

// SessionClaims is the payload of the HS256 session token set by the web app.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.StandardClaims
}

const sessionKey contextKey = "session"

// SessionAuth rejects requests without a valid signed session cookie.
func SessionAuth(secret []byte, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w, r, "session cookie required")
				return
			}

			claims, err := ParseSession(cookie.Value, secret)
			if err != nil {
				unauthorized(w, r, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseSession verifies the token signature and standard claims (exp, nbf).
func ParseSession(tokenString string, secret []byte) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// SessionFromContext returns the claims stored by SessionAuth.
func SessionFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(sessionKey).(*SessionClaims)
	return claims, ok
}

func unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	log.Warn().Ctx(r.Context()).
		Str("reason", reason).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg("unauthorized request blocked by session middleware")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}
