// Package backend is the typed client for the organisation REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"portal/internal/domain"
	"portal/internal/platform/validate"
	"portal/internal/portal"
)

const maxResponseBytes = 4 << 20

// Endpoint paths.
const (
	PathValidate             = "/api/Login/validate"
	PathGetRolesPermissions  = "/api/RolePermission/GetRolesPermissions"
	PathGetRoles             = "/api/RolePermission/GetRoles"
	PathUpdateRolePermission = "/api/RolePermission/UpdateRolePermission"
	PathCreatePermission     = "/api/RolePermission/CreatePermission"
)

// Recorder observes backend calls. telemetry.PortalMetrics implements it.
type Recorder interface {
	RecordBackendRequest(ctx context.Context, operation string, status int, durationSec float64)
}

// Client calls the backend API. Every response is decoded into typed structs
// and validated before it is returned.
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
	logger     *slog.Logger
	metrics    Recorder
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records every call.
func WithMetrics(m Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock sets the clock used for requestTime.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		validate:   validate.New(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// requestMeta is carried by every request body.
type requestMeta struct {
	RequestGUID string `json:"requestGuid"`
	RequestTime string `json:"requestTime"`
}

type statusEnvelope struct {
	Status  *bool  `json:"status"`
	Message string `json:"message"`
}

func (c *Client) meta() requestMeta {
	return requestMeta{
		RequestGUID: uuid.NewString(),
		RequestTime: c.now().UTC().Format(time.RFC3339),
	}
}

// ValidateCredentials confirms username/password within an organisation.
func (c *Client) ValidateCredentials(ctx context.Context, username, password string, orgID int64) (domain.Identity, error) {
	const op = "ValidateCredentials"
	body := struct {
		requestMeta
		Username string `json:"username"`
		Password string `json:"password"`
		OrgID    int64  `json:"orgId"`
	}{c.meta(), username, password, orgID}

	var resp struct {
		Data *domain.Identity `json:"data"`
	}
	status, err := c.post(ctx, op, PathValidate, body, &resp)
	if err != nil {
		return domain.Identity{}, err
	}
	if resp.Data == nil {
		return domain.Identity{}, &domain.BackendError{Op: op, Status: status, Err: errors.New("missing data")}
	}
	if err := c.check(op, status, resp.Data); err != nil {
		return domain.Identity{}, err
	}
	return *resp.Data, nil
}

// GetRolesPermissions returns a role with its enabled permissions and the
// permission universe.
func (c *Client) GetRolesPermissions(ctx context.Context, roleID int64) (domain.RolePermissionDetail, error) {
	const op = "GetRolesPermissions"
	body := struct {
		requestMeta
		RoleID int64 `json:"roleId"`
	}{c.meta(), roleID}

	var resp struct {
		statusEnvelope
		Data *domain.RolePermissionDetail `json:"data"`
	}
	status, err := c.post(ctx, op, PathGetRolesPermissions, body, &resp)
	if err != nil {
		return domain.RolePermissionDetail{}, err
	}
	if err := c.ok(op, status, resp.statusEnvelope); err != nil {
		return domain.RolePermissionDetail{}, err
	}
	if resp.Data == nil {
		return domain.RolePermissionDetail{}, &domain.BackendError{Op: op, Status: status, Err: errors.New("missing data")}
	}
	if err := c.check(op, status, resp.Data); err != nil {
		return domain.RolePermissionDetail{}, err
	}
	if resp.Data.RoleID != roleID {
		return domain.RolePermissionDetail{}, &domain.BackendError{Op: op, Status: status,
			Err: fmt.Errorf("asked for role %d, got %d", roleID, resp.Data.RoleID)}
	}
	if err := resp.Data.Validate(); err != nil {
		return domain.RolePermissionDetail{}, &domain.BackendError{Op: op, Status: status, Err: err}
	}
	return *resp.Data, nil
}

// GetRoles lists the organisation's roles.
func (c *Client) GetRoles(ctx context.Context) ([]domain.Role, error) {
	const op = "GetRoles"
	var resp struct {
		statusEnvelope
		Data []domain.Role `json:"data"`
	}
	status, err := c.post(ctx, op, PathGetRoles, c.meta(), &resp)
	if err != nil {
		return nil, err
	}
	if err := c.ok(op, status, resp.statusEnvelope); err != nil {
		return nil, err
	}
	for i := range resp.Data {
		if err := c.check(op, status, &resp.Data[i]); err != nil {
			return nil, err
		}
	}
	return resp.Data, nil
}

// UpdateRolePermission replaces the role's enabled set with ids.
func (c *Client) UpdateRolePermission(ctx context.Context, roleID int64, ids []domain.PermissionID) error {
	const op = "UpdateRolePermission"
	if ids == nil {
		ids = []domain.PermissionID{}
	}
	body := struct {
		requestMeta
		RoleID        int64                 `json:"roleId"`
		PermissionIDs []domain.PermissionID `json:"permissionIds"`
	}{c.meta(), roleID, ids}

	var resp statusEnvelope
	status, err := c.post(ctx, op, PathUpdateRolePermission, body, &resp)
	if err != nil {
		return err
	}
	return c.ok(op, status, resp)
}

// CreatePermission adds a permission to the universe.
func (c *Client) CreatePermission(ctx context.Context, p domain.NewPermission) error {
	const op = "CreatePermission"
	body := struct {
		requestMeta
		domain.NewPermission
	}{c.meta(), p}

	var resp statusEnvelope
	status, err := c.post(ctx, op, PathCreatePermission, body, &resp)
	if err != nil {
		return err
	}
	return c.ok(op, status, resp)
}

// post sends body and decodes a 2xx response into out. Non-2xx responses are
// returned as *domain.BackendError carrying the backend message if any.
func (c *Client) post(ctx context.Context, op, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, &domain.BackendError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, &domain.BackendError{Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if reqID := portal.RequestIDFromContext(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	if p, ok := portal.PrincipalFromContext(ctx); ok {
		req.Header.Set("X-Principal-ID", p.ID)
		req.Header.Set("X-Org-ID", strconv.FormatInt(p.OrgID, 10))
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, op, 0, start)
		c.logger.WarnContext(ctx, "backend request failed", "operation", op, "error", err)
		return 0, &domain.BackendError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.record(ctx, op, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, &domain.BackendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env statusEnvelope
		_ = json.Unmarshal(raw, &env)
		c.logger.DebugContext(ctx, "backend returned error status", "operation", op, "status", resp.StatusCode)
		return resp.StatusCode, &domain.BackendError{Op: op, Status: resp.StatusCode, Message: env.Message}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, &domain.BackendError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return resp.StatusCode, nil
}

// ok turns a status:false (or missing) envelope into a BackendError.
func (c *Client) ok(op string, status int, env statusEnvelope) error {
	if env.Status != nil && *env.Status {
		return nil
	}
	return &domain.BackendError{Op: op, Status: status, Message: env.Message}
}

func (c *Client) check(op string, status int, v any) error {
	if err := validate.Struct(c.validate, v); err != nil {
		return &domain.BackendError{Op: op, Status: status, Err: err}
	}
	return nil
}

func (c *Client) record(ctx context.Context, op string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordBackendRequest(ctx, op, status, c.now().Sub(start).Seconds())
	}
}
