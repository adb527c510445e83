// Package testutil provides an in-memory organisation backend that speaks the
// portal's REST wire format, for tests and local development.
package testutil

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"portal/internal/domain"
	"portal/internal/portal/middleware"
)

// Backend API paths. They mirror the client's and are repeated here so the
// mock stays independent of the code under test.
const (
	pathValidate             = "/api/Login/validate"
	pathGetRolesPermissions  = "/api/RolePermission/GetRolesPermissions"
	pathGetRoles             = "/api/RolePermission/GetRoles"
	pathUpdateRolePermission = "/api/RolePermission/UpdateRolePermission"
	pathCreatePermission     = "/api/RolePermission/CreatePermission"
)

// User is a set of credentials the mock accepts.
type User struct {
	OrgID     int64
	UserName  string
	Password  string
	ProfileID int64
}

type mockRole struct {
	name    string
	enabled map[domain.PermissionID]struct{}
}

// MockBackend is a thread-safe in-memory backend.
type MockBackend struct {
	mu        sync.Mutex
	users     []User
	roles     map[int64]*mockRole
	universe  []domain.Permission
	saveError string
	base      time.Duration
	jitter    time.Duration
	calls     map[string]int
	headers   map[string]http.Header
}

// NewMockBackend returns a backend seeded with one organisation (id 1), an
// admin user (admin / admin123) and three roles.
func NewMockBackend() *MockBackend {
	universe := []domain.Permission{
		{PermissionID: 1, Name: "View students", Description: "List enrolled students", ModuleID: 1, ModuleName: "Students"},
		{PermissionID: 2, Name: "Edit students", Description: "Change student records", ModuleID: 1, ModuleName: "Students"},
		{PermissionID: 3, Name: "View employees", Description: "List staff members", ModuleID: 2, ModuleName: "Employees"},
		{PermissionID: 4, Name: "Edit employees", Description: "Change staff records", ModuleID: 2, ModuleName: "Employees"},
		{PermissionID: 5, Name: "Manage roles", Description: "Grant and revoke permissions", ModuleID: 3, ModuleName: "Administration"},
		{PermissionID: 6, Name: "View fee ledger", Description: "See fee payments", ModuleID: 4, ModuleName: "Fees"},
	}
	m := &MockBackend{
		users:    []User{{OrgID: 1, UserName: "admin", Password: "admin123", ProfileID: 1001}},
		roles:    make(map[int64]*mockRole),
		universe: universe,
		calls:    make(map[string]int),
		headers:  make(map[string]http.Header),
	}
	m.roles[1] = &mockRole{name: "Administrator", enabled: idSet(1, 2, 3, 4, 5, 6)}
	m.roles[2] = &mockRole{name: "Teacher", enabled: idSet(1, 3)}
	m.roles[3] = &mockRole{name: "Clerk", enabled: idSet(6)}
	return m
}

// NewServer starts m on an httptest server that is closed with the test.
func NewServer(t *testing.T, m *MockBackend) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(m.Served(slog.New(slog.DiscardHandler)))
	t.Cleanup(srv.Close)
	return srv
}

// AddUser registers additional credentials.
func (m *MockBackend) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
}

// FailSaves makes UpdateRolePermission answer status:false with message.
// An empty message restores normal behaviour.
func (m *MockBackend) FailSaves(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = message
}

// SetLatency delays every API response by base plus a random share of jitter.
func (m *MockBackend) SetLatency(base, jitter time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base, m.jitter = base, jitter
}

// Enabled returns the stored permission ids of a role in ascending order.
func (m *MockBackend) Enabled(roleID int64) []domain.PermissionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[roleID]
	if !ok {
		return nil
	}
	return sortedIDs(r.enabled)
}

// Calls returns how often path was requested.
func (m *MockBackend) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// LastHeaders returns the headers of the most recent request to path.
func (m *MockBackend) LastHeaders(path string) http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headers[path].Clone()
}

// Handler returns the backend's HTTP handler.
func (m *MockBackend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+pathValidate, m.api(m.validate))
	mux.HandleFunc("POST "+pathGetRolesPermissions, m.api(m.getRolesPermissions))
	mux.HandleFunc("POST "+pathGetRoles, m.api(m.getRoles))
	mux.HandleFunc("POST "+pathUpdateRolePermission, m.api(m.updateRolePermission))
	mux.HandleFunc("POST "+pathCreatePermission, m.api(m.createPermission))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Served wraps Handler with request ids, access logging and panic recovery,
// the way cmd/mockbackend runs it.
func (m *MockBackend) Served(logger *slog.Logger) http.Handler {
	return middleware.Chain(m.Handler(),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery(logger),
	)
}

type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// api records the call, simulates latency and decodes the JSON body before
// handing over to fn. fn runs with m.mu held.
func (m *MockBackend) api(fn func(w http.ResponseWriter, body json.RawMessage)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.calls[r.URL.Path]++
		m.headers[r.URL.Path] = r.Header.Clone()
		base, jitter := m.base, m.jitter
		m.mu.Unlock()

		simulateWork(base, jitter)

		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Message: "malformed request body"})
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		fn(w, body)
	}
}

func (m *MockBackend) validate(w http.ResponseWriter, body json.RawMessage) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		OrgID    int64  `json:"orgId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "malformed request body"})
		return
	}
	for _, u := range m.users {
		if u.OrgID == req.OrgID && u.UserName == req.Username && u.Password == req.Password {
			writeJSON(w, http.StatusOK, envelope{Status: true, Data: domain.Identity{ProfileID: u.ProfileID, UserName: u.UserName}})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, envelope{Message: "Invalid username or password"})
}

func (m *MockBackend) getRolesPermissions(w http.ResponseWriter, body json.RawMessage) {
	var req struct {
		RoleID int64 `json:"roleId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "malformed request body"})
		return
	}
	r, ok := m.roles[req.RoleID]
	if !ok {
		writeJSON(w, http.StatusOK, envelope{Message: "Role " + strconv.FormatInt(req.RoleID, 10) + " not found"})
		return
	}
	detail := domain.RolePermissionDetail{
		RoleID:         req.RoleID,
		RoleName:       r.name,
		Permissions:    []domain.Permission{},
		AllPermissions: slices.Clone(m.universe),
	}
	for _, p := range m.universe {
		if _, on := r.enabled[p.PermissionID]; on {
			detail.Permissions = append(detail.Permissions, p)
		}
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Data: detail})
}

func (m *MockBackend) getRoles(w http.ResponseWriter, _ json.RawMessage) {
	ids := make([]int64, 0, len(m.roles))
	for id := range m.roles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	roles := make([]domain.Role, 0, len(ids))
	for _, id := range ids {
		roles = append(roles, domain.Role{RoleID: id, RoleName: m.roles[id].name})
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Data: roles})
}

func (m *MockBackend) updateRolePermission(w http.ResponseWriter, body json.RawMessage) {
	var req struct {
		RoleID        int64                 `json:"roleId"`
		PermissionIDs []domain.PermissionID `json:"permissionIds"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.PermissionIDs == nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "roleId and permissionIds are required"})
		return
	}
	if m.saveError != "" {
		writeJSON(w, http.StatusOK, envelope{Message: m.saveError})
		return
	}
	r, ok := m.roles[req.RoleID]
	if !ok {
		writeJSON(w, http.StatusOK, envelope{Message: "Role " + strconv.FormatInt(req.RoleID, 10) + " not found"})
		return
	}
	known := make(map[domain.PermissionID]struct{}, len(m.universe))
	for _, p := range m.universe {
		known[p.PermissionID] = struct{}{}
	}
	enabled := make(map[domain.PermissionID]struct{}, len(req.PermissionIDs))
	for _, id := range req.PermissionIDs {
		if _, ok := known[id]; !ok {
			writeJSON(w, http.StatusOK, envelope{Message: "Unknown permission " + strconv.FormatInt(int64(id), 10)})
			return
		}
		enabled[id] = struct{}{}
	}
	r.enabled = enabled
	writeJSON(w, http.StatusOK, envelope{Status: true, Message: "Permissions updated"})
}

func (m *MockBackend) createPermission(w http.ResponseWriter, body json.RawMessage) {
	var req domain.NewPermission
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "malformed request body"})
		return
	}
	if req.Name == "" || req.ModuleID <= 0 {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "name and moduleId are required"})
		return
	}
	var next domain.PermissionID
	moduleName := ""
	for _, p := range m.universe {
		if p.Name == req.Name && p.ModuleID == req.ModuleID {
			writeJSON(w, http.StatusOK, envelope{Message: "A permission named " + req.Name + " already exists"})
			return
		}
		next = max(next, p.PermissionID)
		if p.ModuleID == req.ModuleID {
			moduleName = p.ModuleName
		}
	}
	m.universe = append(m.universe, domain.Permission{
		PermissionID: next + 1,
		Name:         req.Name,
		Description:  req.Description,
		ModuleID:     req.ModuleID,
		ModuleName:   moduleName,
	})
	writeJSON(w, http.StatusOK, envelope{Status: true, Message: "Permission created"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// simulateWork sleeps for base + random(0, jitter) to mimic real backend processing.
func simulateWork(base, jitter time.Duration) {
	if base == 0 && jitter == 0 {
		return
	}
	delay := base
	if jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(jitter)))
	}
	time.Sleep(delay)
}

func idSet(ids ...domain.PermissionID) map[domain.PermissionID]struct{} {
	set := make(map[domain.PermissionID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedIDs(set map[domain.PermissionID]struct{}) []domain.PermissionID {
	ids := make([]domain.PermissionID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
