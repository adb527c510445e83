// Package auth exchanges credentials for an organisation-scoped principal.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"portal/internal/domain"
)

// CredentialValidator asks the backend to confirm a set of credentials.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context, username, password string, orgID int64) (domain.Identity, error)
}

// LoginRecorder observes sign-in outcomes. telemetry.PortalMetrics implements it.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, result string)
}

// Service authenticates users against the backend.
type Service struct {
	validator CredentialValidator
	logger    *slog.Logger
	metrics   LoginRecorder
}

// NewService wires a Service. logger and metrics may be nil.
func NewService(v CredentialValidator, logger *slog.Logger, metrics LoginRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{validator: v, logger: logger, metrics: metrics}
}

// Authenticate validates the credentials with exactly one backend call.
// Malformed input fails with domain.ErrInvalidCredentialsFormat before any
// call is made; every backend rejection is reported as domain.ErrAuthFailure.
func (s *Service) Authenticate(ctx context.Context, username, password string, orgID int64) (domain.Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || orgID <= 0 {
		s.record(ctx, "invalid")
		return domain.Principal{}, domain.ErrInvalidCredentialsFormat
	}

	id, err := s.validator.ValidateCredentials(ctx, username, password, orgID)
	if err != nil {
		s.logger.DebugContext(ctx, "credential validation rejected", "org_id", orgID, "error", err)
		s.record(ctx, "failure")
		return domain.Principal{}, domain.ErrAuthFailure
	}

	p := domain.NewPrincipal(id.ProfileID, id.UserName, orgID)
	if !p.Valid() {
		s.logger.DebugContext(ctx, "credential validation returned unusable identity", "org_id", orgID)
		s.record(ctx, "failure")
		return domain.Principal{}, domain.ErrAuthFailure
	}
	s.record(ctx, "success")
	return p, nil
}

func (s *Service) record(ctx context.Context, result string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(ctx, result)
	}
}

// ParseOrgID parses an organisation code into a positive id.
func ParseOrgID(code string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(code), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidCredentialsFormat
	}
	return id, nil
}

// IsInputError reports whether err means the user should fix the form rather
// than retry.
func IsInputError(err error) bool {
	return errors.Is(err, domain.ErrInvalidCredentialsFormat)
}
