package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/axle/pkg/billing"
	"github.com/platinummonkey/axle/pkg/httputil"
	"github.com/platinummonkey/axle/pkg/middleware"
	"github.com/platinummonkey/axle/pkg/orgs"
)

// OrgHandlers serves the caller's organization and membership. Tenancy
// comes from the resolved principal, never from the URL.
type OrgHandlers struct {
	orgService     orgs.Service
	billingService billing.Service
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(orgService orgs.Service, billingService billing.Service) *OrgHandlers {
	return &OrgHandlers{
		orgService:     orgService,
		billingService: billingService,
	}
}

// RegisterRoutes registers organization routes
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations/me", h.GetOrganization).Methods("GET")
	router.HandleFunc("/organizations/me/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/organizations/me/users", h.CreateUser).Methods("POST")
}

// GetOrganization handles GET /organizations/me
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	org, err := h.orgService.GetOrganization(r.Context(), principal.OrganizationID)
	if err != nil {
		if errors.Is(err, orgs.ErrNotFound) {
			httputil.WriteNotFoundError(w, "organization not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	subscription, err := h.billingService.GetOrCreateSubscription(r.Context(), org.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"organization": org,
		"subscription": subscription,
	})
}

// ListUsers handles GET /organizations/me/users
func (h *OrgHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	users, err := h.orgService.ListUsers(r.Context(), principal.OrganizationID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	seats, err := h.orgService.GetSeatUsage(r.Context(), principal.OrganizationID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"users": users,
		"seats": seats,
	})
}

// CreateUser handles POST /organizations/me/users. Membership is capped by
// the plan's MaxUsers limit; the check is documented best-effort.
func (h *OrgHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}

	user, err := h.orgService.CreateUser(r.Context(), principal.OrganizationID, req.Email, req.FullName)
	if err != nil {
		switch {
		case orgs.IsCapacityExceeded(err):
			httputil.WriteForbidden(w, err.Error())
		case errors.Is(err, orgs.ErrEmailTaken):
			httputil.WriteConflict(w, err.Error())
		case errors.Is(err, orgs.ErrInvalidEmail):
			httputil.WriteValidationError(w, err.Error())
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	httputil.WriteCreated(w, user)
}
