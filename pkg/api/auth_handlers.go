package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/axle/pkg/auth"
	"github.com/platinummonkey/axle/pkg/billing"
	"github.com/platinummonkey/axle/pkg/httputil"
	"github.com/platinummonkey/axle/pkg/middleware"
	"github.com/platinummonkey/axle/pkg/orgs"
)

// AuthHandlers handles tenant registration and token lifecycle requests
type AuthHandlers struct {
	orgService     orgs.Service
	billingService billing.Service
	authService    auth.Service
}

// NewAuthHandlers creates a new AuthHandlers
func NewAuthHandlers(orgService orgs.Service, billingService billing.Service, authService auth.Service) *AuthHandlers {
	return &AuthHandlers{
		orgService:     orgService,
		billingService: billingService,
		authService:    authService,
	}
}

// RegisterPublicRoutes registers the routes served without a bearer token
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.Register).Methods("POST")
}

// RegisterProtectedRoutes registers the routes that require a resolved principal
func (h *AuthHandlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/auth/tokens/rotate", h.RotateToken).Methods("POST")
}

// Register handles POST /auth/register. It bootstraps an organization, its
// admin user, the starter/trialing subscription, and the first API token.
// The raw token in the response is shown exactly once.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req orgs.RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OrgName, "org_name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	result, err := h.orgService.Register(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, orgs.ErrSlugTaken):
			httputil.WriteConflict(w, err.Error())
		case errors.Is(err, orgs.ErrInvalidEmail), errors.Is(err, orgs.ErrInvalidSlug):
			httputil.WriteValidationError(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	// Register seeds the subscription row; read it back so the response
	// carries the persisted record.
	subscription, err := h.billingService.GetOrCreateSubscription(r.Context(), result.Organization.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"access_token": result.IssuedToken.Raw,
		"token_type":   "bearer",
		"organization": result.Organization,
		"user":         result.User,
		"subscription": subscription,
	})
}

// RotateToken handles POST /auth/tokens/rotate. The presented token is
// revoked and replaced in one transaction; it stops working immediately.
func (h *AuthHandlers) RotateToken(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	issued, err := h.authService.RotateToken(r.Context(), principal.TokenID, principal.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			httputil.WriteNotFoundError(w, "token not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"access_token": issued.Raw,
		"token_type":   "bearer",
		"token":        issued.Token,
	})
}
