package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/internal/domain"
	"portal/internal/portal"
	"portal/internal/portal/adapter/backend"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type captured struct {
	path    string
	headers http.Header
	body    map[string]any
}

// stubAPI answers every request with status and body, remembering what it saw.
type stubAPI struct {
	mu     sync.Mutex
	status int
	body   string
	seen   []captured
}

func (s *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(raw, &body)

	s.mu.Lock()
	s.seen = append(s.seen, captured{path: r.URL.Path, headers: r.Header.Clone(), body: body})
	status, resp := s.status, s.body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, resp)
}

func (s *stubAPI) last(t *testing.T) captured {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.seen)
	return s.seen[len(s.seen)-1]
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) RecordBackendRequest(_ context.Context, op string, status int, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op+":"+http.StatusText(status))
}

func newClient(t *testing.T, status int, body string) (*backend.Client, *stubAPI, *recorder) {
	t.Helper()
	api := &stubAPI{status: status, body: body}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	rec := &recorder{}
	c := backend.NewClient(srv.URL+"/", 2*time.Second,
		backend.WithClock(func() time.Time { return fixedNow }),
		backend.WithMetrics(rec),
	)
	return c, api, rec
}

func assertMeta(t *testing.T, body map[string]any) {
	t.Helper()
	guid, _ := body["requestGuid"].(string)
	_, err := uuid.Parse(guid)
	assert.NoError(t, err, "requestGuid %q", guid)
	assert.Equal(t, "2026-03-01T09:30:00Z", body["requestTime"])
}

func TestValidateCredentials(t *testing.T) {
	c, api, rec := newClient(t, http.StatusOK, `{"data":{"profileId":42,"userName":"jdoe"}}`)
	ctx := portal.ContextWithRequestID(context.Background(), "req-123")

	id, err := c.ValidateCredentials(ctx, "jdoe", "secret", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ProfileID: 42, UserName: "jdoe"}, id)

	got := api.last(t)
	assert.Equal(t, backend.PathValidate, got.path)
	assert.Equal(t, "req-123", got.headers.Get("X-Request-ID"))
	assert.Equal(t, "jdoe", got.body["username"])
	assert.Equal(t, "secret", got.body["password"])
	assert.Equal(t, float64(3), got.body["orgId"])
	assertMeta(t, got.body)
	assert.Equal(t, []string{"ValidateCredentials:OK"}, rec.calls)
}

func TestValidateCredentialsRejected(t *testing.T) {
	c, _, _ := newClient(t, http.StatusUnauthorized, `{"message":"bad password"}`)

	_, err := c.ValidateCredentials(context.Background(), "jdoe", "nope", 3)

	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	var be *domain.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusUnauthorized, be.Status)
	assert.Equal(t, "bad password", be.Message)
}

func TestValidateCredentialsMalformedPayload(t *testing.T) {
	bodies := []string{
		`{}`,
		`{"data":null}`,
		`{"data":{"profileId":0,"userName":"jdoe"}}`,
		`{"data":{"profileId":42,"userName":""}}`,
		`{"data":{"profileId":"42","userName":"jdoe"}}`,
		`not json`,
	}
	for _, body := range bodies {
		c, _, _ := newClient(t, http.StatusOK, body)

		_, err := c.ValidateCredentials(context.Background(), "jdoe", "secret", 3)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable, body)
	}
}

const detailBody = `{"status":true,"message":"ok","data":{"roleId":7,"roleName":"Teacher",
	"permissions":[{"permissionId":1,"name":"View students","description":"","moduleId":1,"moduleName":"Students"}],
	"allPermissions":[
		{"permissionId":1,"name":"View students","description":"","moduleId":1,"moduleName":"Students"},
		{"permissionId":2,"name":"Edit students","description":"","moduleId":1,"moduleName":"Students"}]}}`

func TestGetRolesPermissions(t *testing.T) {
	c, api, _ := newClient(t, http.StatusOK, detailBody)

	d, err := c.GetRolesPermissions(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), d.RoleID)
	assert.Equal(t, "Teacher", d.RoleName)
	assert.Len(t, d.Permissions, 1)
	assert.Len(t, d.AllPermissions, 2)

	got := api.last(t)
	assert.Equal(t, backend.PathGetRolesPermissions, got.path)
	assert.Equal(t, float64(7), got.body["roleId"])
	assertMeta(t, got.body)
}

func TestGetRolesPermissionsRejectsBadPayloads(t *testing.T) {
	tests := map[string]string{
		"status false": `{"status":false,"message":"role not found"}`,
		"no status":    `{"data":{"roleId":7,"roleName":"Teacher","permissions":[],"allPermissions":[]}}`,
		"no data":      `{"status":true}`,
		"wrong role":   `{"status":true,"data":{"roleId":8,"roleName":"Clerk","permissions":[],"allPermissions":[]}}`,
		"not subset": `{"status":true,"data":{"roleId":7,"roleName":"Teacher",
			"permissions":[{"permissionId":9,"name":"x"}],"allPermissions":[{"permissionId":1,"name":"y"}]}}`,
		"duplicate ids": `{"status":true,"data":{"roleId":7,"roleName":"Teacher","permissions":[],
			"allPermissions":[{"permissionId":1,"name":"y"},{"permissionId":1,"name":"z"}]}}`,
		"unnamed permission": `{"status":true,"data":{"roleId":7,"roleName":"Teacher","permissions":[],
			"allPermissions":[{"permissionId":1,"name":""}]}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			c, _, _ := newClient(t, http.StatusOK, body)

			_, err := c.GetRolesPermissions(context.Background(), 7)
			assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		})
	}
}

func TestGetRolesPermissionsStatusFalseKeepsMessage(t *testing.T) {
	c, _, _ := newClient(t, http.StatusOK, `{"status":false,"message":"role not found"}`)

	_, err := c.GetRolesPermissions(context.Background(), 7)

	assert.Equal(t, "role not found", domain.UserMessage(err))
}

func TestGetRoles(t *testing.T) {
	c, api, _ := newClient(t, http.StatusOK,
		`{"status":true,"message":"","data":[{"roleId":7,"roleName":"Teacher"},{"roleId":8,"roleName":"Clerk"}]}`)

	roles, err := c.GetRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{{RoleID: 7, RoleName: "Teacher"}, {RoleID: 8, RoleName: "Clerk"}}, roles)
	assertMeta(t, api.last(t).body)

	c, _, _ = newClient(t, http.StatusOK, `{"status":true,"data":[{"roleId":0,"roleName":"Ghost"}]}`)
	_, err = c.GetRoles(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestUpdateRolePermission(t *testing.T) {
	c, api, _ := newClient(t, http.StatusOK, `{"status":true,"message":"saved"}`)

	err := c.UpdateRolePermission(context.Background(), 7, []domain.PermissionID{1, 3, 5})
	require.NoError(t, err)

	got := api.last(t)
	assert.Equal(t, backend.PathUpdateRolePermission, got.path)
	assert.Equal(t, float64(7), got.body["roleId"])
	assert.Equal(t, []any{float64(1), float64(3), float64(5)}, got.body["permissionIds"])
	assertMeta(t, got.body)
}

func TestUpdateRolePermissionSendsEmptyArray(t *testing.T) {
	c, api, _ := newClient(t, http.StatusOK, `{"status":true}`)

	require.NoError(t, c.UpdateRolePermission(context.Background(), 7, nil))

	assert.Equal(t, []any{}, api.last(t).body["permissionIds"])
}

func TestUpdateRolePermissionFailure(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"status false", http.StatusOK, `{"status":false,"message":"role locked"}`, "role locked"},
		{"server error with message", http.StatusInternalServerError, `{"status":false,"message":"db down"}`, "db down"},
		{"server error without body", http.StatusBadGateway, ``, domain.GenericBackendMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newClient(t, tt.status, tt.body)

			err := c.UpdateRolePermission(context.Background(), 7, []domain.PermissionID{1, 3, 5})

			require.ErrorIs(t, err, domain.ErrBackendUnavailable)
			assert.Equal(t, tt.message, domain.UserMessage(err))
		})
	}
}

func TestCreatePermission(t *testing.T) {
	c, api, _ := newClient(t, http.StatusOK, `{"status":true,"message":"created"}`)

	err := c.CreatePermission(context.Background(), domain.NewPermission{Name: "Export fees", Description: "ledger", ModuleID: 4})
	require.NoError(t, err)

	got := api.last(t)
	assert.Equal(t, backend.PathCreatePermission, got.path)
	assert.Equal(t, "Export fees", got.body["name"])
	assert.Equal(t, "ledger", got.body["description"])
	assert.Equal(t, float64(4), got.body["moduleId"])
	assertMeta(t, got.body)
}

func TestPrincipalHeaders(t *testing.T) {
	c, api, _ := newClient(t, http.StatusOK, `{"status":true,"data":[]}`)
	ctx := portal.ContextWithSession(context.Background(), domain.Session{Principal: domain.NewPrincipal(42, "jdoe", 3)})

	_, err := c.GetRoles(ctx)
	require.NoError(t, err)

	got := api.last(t)
	assert.Equal(t, "42", got.headers.Get("X-Principal-ID"))
	assert.Equal(t, "3", got.headers.Get("X-Org-ID"))
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &recorder{}
	c := backend.NewClient(url, time.Second, backend.WithMetrics(rec))

	_, err := c.GetRoles(context.Background())

	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
	var be *domain.BackendError
	require.True(t, errors.As(err, &be))
	assert.Zero(t, be.Status)
	assert.Equal(t, domain.GenericBackendMessage, be.UserMessage())
	assert.Len(t, rec.calls, 1)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := backend.NewClient(srv.URL, 50*time.Millisecond)

	err := c.UpdateRolePermission(context.Background(), 7, nil)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}
