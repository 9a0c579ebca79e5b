package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/auth"
	"github.com/platinummonkey/axle/pkg/billing"
	"github.com/platinummonkey/axle/pkg/contextkeys"
	"github.com/platinummonkey/axle/pkg/orgs"
	"github.com/platinummonkey/axle/pkg/plans"
)

// mockOrgService implements orgs.Service for testing
type mockOrgService struct {
	registerFunc              func(ctx context.Context, req *orgs.RegisterRequest) (*orgs.RegisterResult, error)
	getOrganizationFunc       func(ctx context.Context, id int64) (*orgs.Organization, error)
	getOrganizationBySlugFunc func(ctx context.Context, slug string) (*orgs.Organization, error)
	listUsersFunc             func(ctx context.Context, orgID int64) ([]*orgs.User, error)
	createUserFunc            func(ctx context.Context, orgID int64, email, fullName string) (*orgs.User, error)
	getSeatUsageFunc          func(ctx context.Context, orgID int64) (*orgs.SeatUsage, error)
}

func (m *mockOrgService) Register(ctx context.Context, req *orgs.RegisterRequest) (*orgs.RegisterResult, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOrgService) GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	if m.getOrganizationFunc != nil {
		return m.getOrganizationFunc(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOrgService) GetOrganizationBySlug(ctx context.Context, slug string) (*orgs.Organization, error) {
	if m.getOrganizationBySlugFunc != nil {
		return m.getOrganizationBySlugFunc(ctx, slug)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOrgService) ListUsers(ctx context.Context, orgID int64) ([]*orgs.User, error) {
	if m.listUsersFunc != nil {
		return m.listUsersFunc(ctx, orgID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOrgService) CreateUser(ctx context.Context, orgID int64, email, fullName string) (*orgs.User, error) {
	if m.createUserFunc != nil {
		return m.createUserFunc(ctx, orgID, email, fullName)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOrgService) GetSeatUsage(ctx context.Context, orgID int64) (*orgs.SeatUsage, error) {
	if m.getSeatUsageFunc != nil {
		return m.getSeatUsageFunc(ctx, orgID)
	}
	return nil, errors.New("not implemented")
}

// mockAuthService implements auth.Service for testing
type mockAuthService struct {
	issueTokenFunc       func(ctx context.Context, userID int64) (*auth.IssuedToken, error)
	rotateTokenFunc      func(ctx context.Context, tokenID, userID int64) (*auth.IssuedToken, error)
	resolvePrincipalFunc func(ctx context.Context, rawToken string) (*auth.Principal, error)
}

func (m *mockAuthService) IssueToken(ctx context.Context, userID int64) (*auth.IssuedToken, error) {
	if m.issueTokenFunc != nil {
		return m.issueTokenFunc(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) RotateToken(ctx context.Context, tokenID, userID int64) (*auth.IssuedToken, error) {
	if m.rotateTokenFunc != nil {
		return m.rotateTokenFunc(ctx, tokenID, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) ResolvePrincipal(ctx context.Context, rawToken string) (*auth.Principal, error) {
	if m.resolvePrincipalFunc != nil {
		return m.resolvePrincipalFunc(ctx, rawToken)
	}
	return nil, errors.New("not implemented")
}

func testPrincipal() *auth.Principal {
	return &auth.Principal{
		UserID:             7,
		Email:              "owner@acme.test",
		OrganizationID:     3,
		OrganizationSlug:   "acme",
		TokenID:            11,
		TokenPrefix:        "axle_abcd1234",
		Plan:               plans.PlanGrowth,
		SubscriptionStatus: "active",
	}
}

// withPrincipal attaches a resolved principal the way the auth middleware
// does, so handlers can be exercised without the full pipeline.
func withPrincipal(r *http.Request, principal *auth.Principal) *http.Request {
	return r.WithContext(contextkeys.WithPrincipal(r.Context(), principal))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func registerResult() *orgs.RegisterResult {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &orgs.RegisterResult{
		Organization: &orgs.Organization{ID: 3, Name: "Acme Corp", Slug: "acme", CreatedAt: now},
		User:         &orgs.User{ID: 7, OrganizationID: 3, Email: "owner@acme.test", FullName: "Acme Owner", CreatedAt: now},
		IssuedToken: &auth.IssuedToken{
			Token: &auth.APIToken{ID: 11, UserID: 7, TokenPrefix: "axle_abcd1234", CreatedAt: now},
			Raw:   "axle_cmF3LXNlY3JldC1ieXRlcw",
		},
	}
}

// TestNewAuthHandlers verifies handler initialization
func TestNewAuthHandlers(t *testing.T) {
	handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, &mockAuthService{})

	assert.NotNil(t, handlers)
	assert.NotNil(t, handlers.orgService)
	assert.NotNil(t, handlers.billingService)
	assert.NotNil(t, handlers.authService)
}

// TestAuthHandlers_RegisterRoutes verifies all routes are registered
func TestAuthHandlers_RegisterRoutes(t *testing.T) {
	handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, &mockAuthService{})
	router := mux.NewRouter()
	handlers.RegisterPublicRoutes(router)
	handlers.RegisterProtectedRoutes(router)

	tests := []struct {
		method string
		path   string
	}{
		{"POST", "/auth/register"},
		{"POST", "/auth/tokens/rotate"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			var match mux.RouteMatch
			assert.True(t, router.Match(req, &match), "Route %s %s should be registered", tt.method, tt.path)
		})
	}
}

// TestRegister_Success tests the full registration response shape
func TestRegister_Success(t *testing.T) {
	var gotReq *orgs.RegisterRequest
	orgService := &mockOrgService{
		registerFunc: func(ctx context.Context, req *orgs.RegisterRequest) (*orgs.RegisterResult, error) {
			gotReq = req
			return registerResult(), nil
		},
	}
	billingService := &mockBillingService{
		getOrCreateSubscriptionFunc: func(ctx context.Context, orgID int64) (*billing.Subscription, error) {
			return starterSubscription(orgID), nil
		},
	}
	handlers := NewAuthHandlers(orgService, billingService, &mockAuthService{})

	reqBody, _ := json.Marshal(map[string]string{
		"org_name":  "Acme Corp",
		"org_slug":  "acme",
		"email":     "owner@acme.test",
		"full_name": "Acme Owner",
	})
	req := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()

	handlers.Register(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, gotReq)
	assert.Equal(t, "Acme Corp", gotReq.OrgName)
	assert.Equal(t, "acme", gotReq.OrgSlug)

	body := decodeBody(t, w)
	assert.Equal(t, "axle_cmF3LXNlY3JldC1ieXRlcw", body["access_token"])
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, "acme", body["organization"].(map[string]interface{})["slug"])
	assert.Equal(t, "owner@acme.test", body["user"].(map[string]interface{})["email"])

	subscription := body["subscription"].(map[string]interface{})
	assert.Equal(t, "starter", subscription["plan"])
	assert.Equal(t, "trialing", subscription["status"])
}

// TestRegister_DuplicateSlug tests the conflict mapping
func TestRegister_DuplicateSlug(t *testing.T) {
	orgService := &mockOrgService{
		registerFunc: func(ctx context.Context, req *orgs.RegisterRequest) (*orgs.RegisterResult, error) {
			return nil, orgs.ErrSlugTaken
		},
	}
	handlers := NewAuthHandlers(orgService, &mockBillingService{}, &mockAuthService{})

	reqBody, _ := json.Marshal(map[string]string{"org_name": "Acme Corp", "email": "owner@acme.test"})
	req := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()

	handlers.Register(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already taken")
}

// TestRegister_InvalidEmail tests validation error mapping
func TestRegister_InvalidEmail(t *testing.T) {
	orgService := &mockOrgService{
		registerFunc: func(ctx context.Context, req *orgs.RegisterRequest) (*orgs.RegisterResult, error) {
			return nil, orgs.ErrInvalidEmail
		},
	}
	handlers := NewAuthHandlers(orgService, &mockBillingService{}, &mockAuthService{})

	reqBody, _ := json.Marshal(map[string]string{"org_name": "Acme Corp", "email": "not-an-email"})
	req := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()

	handlers.Register(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email")
}

// TestRegister_InvalidJSON tests with a malformed body
func TestRegister_InvalidJSON(t *testing.T) {
	handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, &mockAuthService{})

	req := httptest.NewRequest("POST", "/auth/register", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()

	handlers.Register(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestRegister_MissingFields tests field presence checks before any service call
func TestRegister_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{"missing org_name", map[string]string{"email": "owner@acme.test"}, "org_name is required"},
		{"missing email", map[string]string{"org_name": "Acme Corp"}, "email is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, &mockAuthService{})

			reqBody, _ := json.Marshal(tt.body)
			req := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(reqBody))
			w := httptest.NewRecorder()

			handlers.Register(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

// TestRegister_SubscriptionReadFailure tests the post-registration read
func TestRegister_SubscriptionReadFailure(t *testing.T) {
	orgService := &mockOrgService{
		registerFunc: func(ctx context.Context, req *orgs.RegisterRequest) (*orgs.RegisterResult, error) {
			return registerResult(), nil
		},
	}
	billingService := &mockBillingService{
		getOrCreateSubscriptionFunc: func(ctx context.Context, orgID int64) (*billing.Subscription, error) {
			return nil, errors.New("connection refused")
		},
	}
	handlers := NewAuthHandlers(orgService, billingService, &mockAuthService{})

	reqBody, _ := json.Marshal(map[string]string{"org_name": "Acme Corp", "email": "owner@acme.test"})
	req := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()

	handlers.Register(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestRotateToken_Success tests rotation through the principal's identifiers
func TestRotateToken_Success(t *testing.T) {
	var gotTokenID, gotUserID int64
	authService := &mockAuthService{
		rotateTokenFunc: func(ctx context.Context, tokenID, userID int64) (*auth.IssuedToken, error) {
			gotTokenID, gotUserID = tokenID, userID
			return &auth.IssuedToken{
				Token: &auth.APIToken{ID: 12, UserID: userID, TokenPrefix: "axle_wxyz5678"},
				Raw:   "axle_bmV3LXNlY3JldC1ieXRlcw",
			}, nil
		},
	}
	handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, authService)

	req := withPrincipal(httptest.NewRequest("POST", "/auth/tokens/rotate", nil), testPrincipal())
	w := httptest.NewRecorder()

	handlers.RotateToken(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(11), gotTokenID)
	assert.Equal(t, int64(7), gotUserID)

	body := decodeBody(t, w)
	assert.Equal(t, "axle_bmV3LXNlY3JldC1ieXRlcw", body["access_token"])
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, "axle_wxyz5678", body["token"].(map[string]interface{})["token_prefix"])
}

// TestRotateToken_NoPrincipal tests the unauthenticated path
func TestRotateToken_NoPrincipal(t *testing.T) {
	handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, &mockAuthService{})

	req := httptest.NewRequest("POST", "/auth/tokens/rotate", nil)
	w := httptest.NewRecorder()

	handlers.RotateToken(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestRotateToken_NotFound tests rotation of an already-revoked token
func TestRotateToken_NotFound(t *testing.T) {
	authService := &mockAuthService{
		rotateTokenFunc: func(ctx context.Context, tokenID, userID int64) (*auth.IssuedToken, error) {
			return nil, auth.ErrTokenNotFound
		},
	}
	handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, authService)

	req := withPrincipal(httptest.NewRequest("POST", "/auth/tokens/rotate", nil), testPrincipal())
	w := httptest.NewRecorder()

	handlers.RotateToken(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestRotateToken_ServiceError tests service error handling
func TestRotateToken_ServiceError(t *testing.T) {
	authService := &mockAuthService{
		rotateTokenFunc: func(ctx context.Context, tokenID, userID int64) (*auth.IssuedToken, error) {
			return nil, errors.New("service error")
		},
	}
	handlers := NewAuthHandlers(&mockOrgService{}, &mockBillingService{}, authService)

	req := withPrincipal(httptest.NewRequest("POST", "/auth/tokens/rotate", nil), testPrincipal())
	w := httptest.NewRecorder()

	handlers.RotateToken(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
