package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/axle/pkg/auth"
	"github.com/platinummonkey/axle/pkg/billing"
	"github.com/platinummonkey/axle/pkg/middleware"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/orgs"
)

// Server is the HTTP API server. It owns the router, the domain handler
// groups, and the auth, rate-limit and entitlement middleware that guard
// them. Operational endpoints (health, metrics) are mounted separately by
// the binary so they bypass this pipeline.
type Server struct {
	router *mux.Router

	authHandlers    *AuthHandlers
	orgHandlers     *OrgHandlers
	billingHandlers *BillingHandlers
	featureHandlers *FeatureHandlers
	reportHandlers  *ReportHandlers

	authMW       *middleware.AuthMiddleware
	rateLimit    *middleware.RateLimitMiddleware
	entitlements *middleware.EntitlementMiddleware
}

// NewServer creates an API server over the given services. rateLimit may
// be nil to disable request throttling.
func NewServer(
	orgService orgs.Service,
	billingService billing.Service,
	authService auth.Service,
	rateLimit *middleware.RateLimitMiddleware,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		rateLimit: rateLimit,
	}

	s.authMW = middleware.NewAuthMiddleware(authService, false)
	s.entitlements = middleware.NewEntitlementMiddleware(metrics)

	s.authHandlers = NewAuthHandlers(orgService, billingService, authService)
	s.orgHandlers = NewOrgHandlers(orgService, billingService)
	s.billingHandlers = NewBillingHandlers(billingService, metrics)
	s.featureHandlers = NewFeatureHandlers()
	s.reportHandlers = NewReportHandlers(s.entitlements)

	s.setupRoutes()
	return s
}

// setupRoutes configures the route groups. Public routes are throttled by
// client IP; protected routes resolve the bearer token first so the
// limiter can key on it and apply the caller's plan tier.
func (s *Server) setupRoutes() {
	public := s.router.NewRoute().Subrouter()
	if s.rateLimit != nil {
		public.Use(s.rateLimit.Handler)
	}
	s.authHandlers.RegisterPublicRoutes(public)
	s.billingHandlers.RegisterPublicRoutes(public)

	protected := s.router.NewRoute().Subrouter()
	protected.Use(s.authMW.Handler)
	if s.rateLimit != nil {
		protected.Use(s.rateLimit.Handler)
	}
	s.authHandlers.RegisterProtectedRoutes(protected)
	s.orgHandlers.RegisterRoutes(protected)
	s.billingHandlers.RegisterProtectedRoutes(protected)
	s.featureHandlers.RegisterRoutes(protected)
	s.reportHandlers.RegisterRoutes(protected)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
