package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory Store for handler tests
type memoryStore struct {
	roles       map[int64]*Role
	assignments []*RoleAssignment
	nextID      int64
}

func newMemoryStore(roles ...Role) *memoryStore {
	s := &memoryStore{roles: make(map[int64]*Role), nextID: 1}
	for i := range roles {
		role := roles[i]
		role.ID = s.nextID
		s.nextID++
		s.roles[role.ID] = &role
	}
	return s
}

func (s *memoryStore) GetRolesForUser(ctx context.Context, userID string) ([]Role, error) {
	var out []Role
	for _, a := range s.assignments {
		if a.UserID == userID {
			if role, ok := s.roles[a.RoleID]; ok {
				out = append(out, *role)
			}
		}
	}
	return out, nil
}

func (s *memoryStore) GetRoleByCode(ctx context.Context, code string, tenantID string) (*Role, error) {
	for _, role := range s.roles {
		if role.Code == code && (role.TenantID == "" || role.TenantID == tenantID) {
			return role, nil
		}
	}
	return nil, fmt.Errorf("role not found: %s", code)
}

func (s *memoryStore) CreateRole(ctx context.Context, role *Role) error {
	role.ID = s.nextID
	s.nextID++
	s.roles[role.ID] = role
	return nil
}

func (s *memoryStore) UpsertRole(ctx context.Context, role *Role) error {
	existing, err := s.GetRoleByCode(ctx, role.Code, role.TenantID)
	if err != nil {
		return s.CreateRole(ctx, role)
	}
	role.ID = existing.ID
	s.roles[role.ID] = role
	return nil
}

func (s *memoryStore) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	var out []Role
	for _, role := range s.roles {
		if role.TenantID == "" || role.TenantID == tenantID {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (s *memoryStore) AssignRole(ctx context.Context, assignment *RoleAssignment) error {
	assignment.ID = int64(len(s.assignments) + 1)
	s.assignments = append(s.assignments, assignment)
	return nil
}

func (s *memoryStore) RevokeRole(ctx context.Context, userID string, roleID int64) error {
	for i, a := range s.assignments {
		if a.UserID == userID && a.RoleID == roleID {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("role assignment not found")
}

func newHandlerRouter(store Store) *mux.Router {
	router := mux.NewRouter()
	resolver := NewStoreResolver(store, nil)
	NewHandlers(store, resolver, nil).RegisterRoutes(router)
	return router
}

func TestHandlers_ListRoles(t *testing.T) {
	store := newMemoryStore(
		Role{Code: "tenant_admin", Name: "Tenant Admin", Level: 60, IsBuiltIn: true},
		Role{Code: "custom", Name: "Custom", TenantID: "t-acme", Level: 20},
	)
	router := newHandlerRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/roles?tenant_id=t-acme", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Roles []Role `json:"roles"`
		Count int    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHandlers_CreateRole(t *testing.T) {
	store := newMemoryStore()
	router := newHandlerRouter(store)

	body := `{"code":"reviewer","name":"Reviewer","tenant_id":"t-acme","patterns":["tenant.listings.read"],"level":25}`
	req := httptest.NewRequest(http.MethodPost, "/roles", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "reviewer", created.Code)
	assert.False(t, created.IsBuiltIn)
	assert.NotZero(t, created.ID)
}

func TestHandlers_CreateRole_Validation(t *testing.T) {
	router := newHandlerRouter(newMemoryStore())

	cases := []struct {
		name string
		body string
	}{
		{"missing code", `{"name":"X","tenant_id":"t-1","patterns":["a.b.c"]}`},
		{"super_admin reserved", `{"code":"super_admin","name":"X","tenant_id":"t-1","patterns":["*"]}`},
		{"not tenant scoped", `{"code":"x","name":"X","patterns":["a.b.c"]}`},
		{"no patterns", `{"code":"x","name":"X","tenant_id":"t-1"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/roles", bytes.NewBufferString(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandlers_AssignAndRevokeRole(t *testing.T) {
	store := newMemoryStore(
		Role{Code: "tenant_admin", Name: "Tenant Admin", Level: 60, IsBuiltIn: true},
	)
	router := newHandlerRouter(store)

	body := `{"role_code":"tenant_admin","tenant_id":"t-acme"}`
	req := httptest.NewRequest(http.MethodPost, "/users/u-1/roles", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var assignment RoleAssignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assignment))
	assert.Equal(t, "u-1", assignment.UserID)
	assert.Equal(t, int64(1), assignment.RoleID)

	// The assignment shows up in the user's role list
	req = httptest.NewRequest(http.MethodGet, "/users/u-1/roles", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listResp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Count)

	// Revoke it
	req = httptest.NewRequest(http.MethodDelete, "/users/u-1/roles/1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Revoking again is a 404
	req = httptest.NewRequest(http.MethodDelete, "/users/u-1/roles/1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_AssignRole_UnknownRole(t *testing.T) {
	router := newHandlerRouter(newMemoryStore())

	body := `{"role_code":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/users/u-1/roles", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_GetGrant(t *testing.T) {
	store := newMemoryStore(
		Role{Code: "tenant_admin", Name: "Tenant Admin", Level: 60, IsBuiltIn: true,
			Patterns: []string{"tenant.*", "account.*"}},
	)
	require.NoError(t, store.AssignRole(context.Background(), &RoleAssignment{UserID: "u-1", RoleID: 1}))
	router := newHandlerRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/users/u-1/grant", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID string `json:"user_id"`
		Grant  Grant  `json:"grant"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"tenant_admin"}, resp.Grant.Roles)
	assert.Contains(t, resp.Grant.Patterns, "tenant.*")
	assert.False(t, resp.Grant.SuperAdmin)
}

func TestHandlers_CheckPermission(t *testing.T) {
	store := newMemoryStore(
		Role{Code: "account_member", Name: "Account Member", Level: 30, IsBuiltIn: true,
			Patterns: []string{"account.bookings.read"}},
	)
	require.NoError(t, store.AssignRole(context.Background(), &RoleAssignment{UserID: "u-1", RoleID: 1}))
	router := newHandlerRouter(store)

	body := `{"user_id":"u-1","permissions":["account.bookings.read"]}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/check", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result CheckResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Granted)
	assert.Equal(t, "account.bookings.read", resp.Result.MatchedPattern)
}

func TestHandlers_CheckPermission_Denied(t *testing.T) {
	router := newHandlerRouter(newMemoryStore())

	body := `{"user_id":"u-1","permissions":["platform.settings.write"]}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/check", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result CheckResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Result.Granted)
}

func TestHandlers_CheckPermission_InvalidTier(t *testing.T) {
	router := newHandlerRouter(newMemoryStore())

	body := `{"user_id":"u-1","tier":"superuser","permissions":["a.b.c"]}`
	req := httptest.NewRequest(http.MethodPost, "/permissions/check", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
