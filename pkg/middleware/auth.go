package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/axle/pkg/auth"
	"github.com/platinummonkey/axle/pkg/contextkeys"
)

// AuthMiddleware resolves bearer tokens into principals and attaches them
// to the request context.
type AuthMiddleware struct {
	authService auth.Service
	optional    bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService auth.Service, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		optional:    optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorizedResponse(w, "invalid authorization header format")
			return
		}

		principal, err := m.authService.ResolvePrincipal(r.Context(), parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				m.unauthorizedResponse(w, "invalid or expired token")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"failed to authenticate request"}`))
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(principal.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetPrincipal extracts the authenticated principal from the request.
// Returns nil when the request is unauthenticated.
func GetPrincipal(r *http.Request) *auth.Principal {
	v := r.Context().Value(contextkeys.PrincipalKey)
	if v == nil {
		return nil
	}
	principal, ok := v.(*auth.Principal)
	if !ok {
		return nil
	}
	return principal
}
