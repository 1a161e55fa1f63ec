package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/pairing"
)

// DeskContextKey carries the authenticated desk on device-facing routes
const DeskContextKey contextKey = "desk"

// DeviceAuth authenticates display devices by bearer token. Any failure
// yields the same 401 body so the endpoint leaks nothing about which desks
// or tokens exist.
func DeviceAuth(sessions *pairing.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			desk, err := sessions.Authenticate(BearerToken(r))
			if err != nil {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), DeskContextKey, desk)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeskFromContext returns the desk attached by DeviceAuth, or nil
func DeskFromContext(ctx context.Context) *models.Desk {
	desk, _ := ctx.Value(DeskContextKey).(*models.Desk)
	return desk
}

// BearerToken extracts the bearer credential from the Authorization header,
// falling back to the token query parameter for websocket clients that
// cannot set headers.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return r.URL.Query().Get("token")
}
