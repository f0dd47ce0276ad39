package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	e "github.com/gartstein/insurecrm/internal/policy/errors"
	"github.com/gartstein/insurecrm/internal/policy/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

type fakeUsers struct {
	users map[uuid.UUID]*models.User
	err   error
}

func (f *fakeUsers) GetUserWithAgency(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, e.ErrNotFound
	}
	return u, nil
}

var (
	agencyID     = uuid.New()
	managerID    = uuid.New()
	agentID      = uuid.New()
	hrID         = uuid.New()
	disabledID   = uuid.New()
	closedUserID = uuid.New()
)

func newTestUsers() *fakeUsers {
	agency := &models.Agency{ID: agencyID, Name: "Agency", IsActive: true}
	closed := &models.Agency{ID: agencyID, Name: "Agency", IsActive: false}
	return &fakeUsers{users: map[uuid.UUID]*models.User{
		managerID:    {ID: managerID, AgencyID: agencyID, Agency: agency, Role: models.RoleAgencyManager, IsActive: true},
		agentID:      {ID: agentID, AgencyID: agencyID, Agency: agency, Role: models.RoleSalesAgent, IsActive: true},
		hrID:         {ID: hrID, AgencyID: agencyID, Agency: agency, Role: models.RoleHRManager, IsActive: true},
		disabledID:   {ID: disabledID, AgencyID: agencyID, Agency: agency, Role: models.RoleSalesAgent, IsActive: false},
		closedUserID: {ID: closedUserID, AgencyID: agencyID, Agency: closed, Role: models.RoleSalesAgent, IsActive: true},
	}}
}

func newTestGuard(t *testing.T, users UserLookup) *Guard {
	authz, err := NewAuthorizer()
	require.NoError(t, err)
	return NewGuard(testSecret, users, authz, zaptest.NewLogger(t))
}

func tokenFor(t *testing.T, userID uuid.UUID, role models.UserRole) string {
	token, err := GenerateToken(userID, agencyID, role, testSecret)
	require.NoError(t, err)
	return token
}

func TestHTTPMiddleware(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AgencyID: agencyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	wrongSecret, err := GenerateToken(agentID, agencyID, models.RoleSalesAgent, "wrong-secret")
	require.NoError(t, err)

	otherAgency, err := GenerateToken(agentID, uuid.New(), models.RoleSalesAgent, testSecret)
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"health is open", http.MethodGet, "/health", "", http.StatusOK},
		{"metrics is open", http.MethodGet, "/metrics", "", http.StatusOK},
		{"missing header", http.MethodGet, "/v1/policies", "", http.StatusUnauthorized},
		{"not a bearer token", http.MethodGet, "/v1/policies", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", http.MethodGet, "/v1/policies", "Bearer " + wrongSecret, http.StatusUnauthorized},
		{"expired token", http.MethodGet, "/v1/policies", "Bearer " + expiredToken, http.StatusUnauthorized},
		{"unknown user", http.MethodGet, "/v1/me", "Bearer " + tokenFor(t, uuid.New(), models.RoleSalesAgent), http.StatusUnauthorized},
		{"user of another agency", http.MethodGet, "/v1/me", "Bearer " + otherAgency, http.StatusUnauthorized},
		{"disabled user", http.MethodGet, "/v1/me", "Bearer " + tokenFor(t, disabledID, models.RoleSalesAgent), http.StatusUnauthorized},
		{"disabled agency", http.MethodGet, "/v1/me", "Bearer " + tokenFor(t, closedUserID, models.RoleSalesAgent), http.StatusUnauthorized},
		{"agent creates policy", http.MethodPost, "/v1/policies", "Bearer " + tokenFor(t, agentID, models.RoleSalesAgent), http.StatusOK},
		{"agent activates policy", http.MethodPut, "/v1/policies/" + uuid.NewString() + "/activate", "Bearer " + tokenFor(t, agentID, models.RoleSalesAgent), http.StatusOK},
		{"agent records sale", http.MethodPost, "/v1/sales", "Bearer " + tokenFor(t, agentID, models.RoleSalesAgent), http.StatusOK},
		{"agent reads stats", http.MethodGet, "/v1/sales/stats", "Bearer " + tokenFor(t, agentID, models.RoleSalesAgent), http.StatusOK},
		{"agent cannot correct sale", http.MethodPut, "/v1/sales/" + uuid.NewString(), "Bearer " + tokenFor(t, agentID, models.RoleSalesAgent), http.StatusForbidden},
		{"agent cannot run sweep", http.MethodPost, "/v1/reminders/run", "Bearer " + tokenFor(t, agentID, models.RoleSalesAgent), http.StatusForbidden},
		{"agent reads catalog", http.MethodGet, "/v1/products/" + uuid.NewString(), "Bearer " + tokenFor(t, agentID, models.RoleSalesAgent), http.StatusOK},
		{"manager corrects sale", http.MethodPut, "/v1/sales/" + uuid.NewString(), "Bearer " + tokenFor(t, managerID, models.RoleAgencyManager), http.StatusOK},
		{"manager runs sweep", http.MethodPost, "/v1/reminders/run", "Bearer " + tokenFor(t, managerID, models.RoleAgencyManager), http.StatusOK},
		{"hr reads self", http.MethodGet, "/v1/me", "Bearer " + tokenFor(t, hrID, models.RoleHRManager), http.StatusOK},
		{"hr cannot list policies", http.MethodGet, "/v1/policies", "Bearer " + tokenFor(t, hrID, models.RoleHRManager), http.StatusForbidden},
		// The stored role wins over a forged claim.
		{"claimed role ignored", http.MethodPut, "/v1/sales/" + uuid.NewString(), "Bearer " + tokenFor(t, agentID, models.RoleAgencyManager), http.StatusForbidden},
	}

	guard := newTestGuard(t, newTestUsers())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProtectedRequest(r) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				w.WriteHeader(http.StatusTeapot)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := guard.HTTPMiddleware(next)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus >= 400 {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestHTTPMiddlewarePlacesIdentity(t *testing.T) {
	guard := newTestGuard(t, newTestUsers())
	var got models.Identity
	handler := guard.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, agentID, models.RoleSalesAgent))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, models.Identity{UserID: agentID, AgencyID: agencyID, Role: models.RoleSalesAgent}, got)
}

func TestHTTPMiddlewareLookupFailure(t *testing.T) {
	guard := newTestGuard(t, &fakeUsers{err: errors.New("connection reset")})
	handler := guard.HTTPMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, agentID, models.RoleSalesAgent))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   bool
	}{
		{"valid authorization header", "Bearer valid-token", "valid-token", false},
		{"missing authorization header", "", "", true},
		{"malformed authorization header", "InvalidPrefix valid-token", "", true},
		{"empty bearer token", "Bearer ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			token, err := extractTokenFromHeader(req)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestValidateToken(t *testing.T) {
	valid := tokenFor(t, agentID, models.RoleSalesAgent)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: agentID.String()}})
	noneToken, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name        string
		tokenString string
		secret      string
		wantValid   bool
	}{
		{"valid token", valid, testSecret, true},
		{"invalid signature", valid, "wrong-secret", false},
		{"unsigned token", noneToken, testSecret, false},
		{"malformed token", "invalid.token.string", testSecret, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := validateToken(tt.tokenString, tt.secret)

			if !tt.wantValid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, agentID.String(), claims.Subject)
			assert.Equal(t, agencyID.String(), claims.AgencyID)
			assert.Equal(t, string(models.RoleSalesAgent), claims.Role)
		})
	}
}

func TestGenerateTokenExpiry(t *testing.T) {
	claims, err := validateToken(tokenFor(t, managerID, models.RoleAgencyManager), testSecret)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestClaimsIdentity(t *testing.T) {
	_, err := (&Claims{AgencyID: agencyID.String(), RegisteredClaims: jwt.RegisteredClaims{Subject: "nope"}}).identity()
	assert.Error(t, err)

	_, err = (&Claims{AgencyID: "", RegisteredClaims: jwt.RegisteredClaims{Subject: agentID.String()}}).identity()
	assert.Error(t, err)
}
