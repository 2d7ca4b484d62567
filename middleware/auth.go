package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const agentContextKey contextKey = "agent"

const jwtClaimAgentID = "agent_id"

// Authenticate verifies the bearer token and stores its claims in the request
// context. Identity issuance lives outside this service; the token is the
// interface boundary.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), agentContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentIDFromContext extracts the authenticated agent id placed there by
// Authenticate.
func AgentIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(agentContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("agent claims not found in context or invalid type")
	}
	claim, ok := claims[jwtClaimAgentID]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimAgentID)
	}
	agentID, ok := claim.(string)
	if !ok || agentID == "" {
		return "", fmt.Errorf("invalid '%s' claim: expected non-empty string, got %T", jwtClaimAgentID, claim)
	}
	return agentID, nil
}
