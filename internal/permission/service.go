package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"portal/internal/domain"
	"portal/internal/platform/validate"
)

// RoleBackend is the subset of the backend API the editor depends on.
type RoleBackend interface {
	GetRolesPermissions(ctx context.Context, roleID int64) (domain.RolePermissionDetail, error)
	GetRoles(ctx context.Context) ([]domain.Role, error)
	UpdateRolePermission(ctx context.Context, roleID int64, ids []domain.PermissionID) error
	CreatePermission(ctx context.Context, p domain.NewPermission) error
}

// DraftStore keeps drafts between requests.
type DraftStore interface {
	// Get returns ErrDraftNotFound when no draft exists for key.
	Get(ctx context.Context, key string) (Draft, error)
	Put(ctx context.Context, key string, d Draft) error
	Delete(ctx context.Context, key string) error
}

// SaveRecorder observes save outcomes. telemetry.PortalMetrics implements it.
type SaveRecorder interface {
	RecordPermissionSave(ctx context.Context, result string)
}

// Service loads, edits and persists role permission drafts.
type Service struct {
	backend  RoleBackend
	drafts   DraftStore
	seq      *Sequencer
	validate *validator.Validate
	logger   *slog.Logger
	metrics  SaveRecorder

	locks  keyedMutex
	mu     sync.Mutex
	saving map[string]struct{}
}

// NewService wires a Service. logger and metrics may be nil.
func NewService(backend RoleBackend, drafts DraftStore, logger *slog.Logger, metrics SaveRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend:  backend,
		drafts:   drafts,
		seq:      NewSequencer(),
		validate: validate.New(),
		logger:   logger,
		metrics:  metrics,
		saving:   make(map[string]struct{}),
	}
}

// Load fetches the role's permissions from the backend and starts a fresh
// draft under key, replacing any previous one. A response that arrives after
// a newer Load for the same key has been issued is discarded.
func (s *Service) Load(ctx context.Context, key string, roleID int64) (*Editor, error) {
	ticket := s.seq.Next(key)
	defer s.seq.Release(key, ticket)

	detail, err := s.backend.GetRolesPermissions(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("loading role %d: %w", roleID, err)
	}
	if !s.seq.IsLatest(key, ticket) {
		s.logger.Debug("discarding stale role permissions", "role_id", roleID, "ticket", ticket)
		return nil, ErrStaleResponse
	}

	editor, err := NewEditor(detail)
	if err != nil {
		return nil, &domain.BackendError{Op: "GetRolesPermissions", Err: err}
	}
	editor.generation = ticket

	unlock := s.locks.lock(key)
	defer unlock()
	if !s.seq.IsLatest(key, ticket) {
		return nil, ErrStaleResponse
	}
	if err := s.drafts.Put(ctx, key, editor.Draft()); err != nil {
		return nil, fmt.Errorf("storing draft: %w", err)
	}
	return editor, nil
}

// Overview loads the role draft and the role list concurrently.
func (s *Service) Overview(ctx context.Context, key string, roleID int64) (*Editor, []domain.Role, error) {
	var (
		editor *Editor
		roles  []domain.Role
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		editor, err = s.Load(gctx, key, roleID)
		return err
	})
	g.Go(func() error {
		var err error
		roles, err = s.ListRoles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return editor, roles, nil
}

// Editor returns the current draft for key.
func (s *Service) Editor(ctx context.Context, key string) (*Editor, error) {
	d, err := s.drafts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return FromDraft(d), nil
}

// Toggle flips one permission in the draft for key.
func (s *Service) Toggle(ctx context.Context, key string, id domain.PermissionID) (*Editor, error) {
	return s.mutate(ctx, key, func(e *Editor) {
		if !e.Toggle(id) {
			s.logger.Debug("ignoring toggle of unknown permission", "permission_id", id)
		}
	})
}

// ToggleGroup applies the all-or-nothing group rule to the group with the
// given key, restricted to permissions matching query.
func (s *Service) ToggleGroup(ctx context.Context, key, group, query string) (*Editor, error) {
	return s.mutate(ctx, key, func(e *Editor) {
		e.ToggleGroup(e.GroupIDs(group, query))
	})
}

func (s *Service) mutate(ctx context.Context, key string, fn func(*Editor)) (*Editor, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	d, err := s.drafts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	editor := FromDraft(d)
	fn(editor)
	if err := s.drafts.Put(ctx, key, editor.Draft()); err != nil {
		return nil, fmt.Errorf("storing draft: %w", err)
	}
	return editor, nil
}

// Save persists the full enabled set of the draft for key. Only one save per
// key may be in flight. On failure the draft is left untouched so the user can
// retry; the error carries the backend's message. When the draft was reloaded
// while the save was pending, the reloaded draft is kept as it is.
func (s *Service) Save(ctx context.Context, key string) (*Editor, error) {
	if !s.beginSave(key) {
		return nil, ErrSaveInProgress
	}
	defer s.endSave(key)

	editor, err := s.Editor(ctx, key)
	if err != nil {
		return nil, err
	}
	ids := editor.EnabledIDs()

	if err := s.backend.UpdateRolePermission(ctx, editor.RoleID(), ids); err != nil {
		s.record(ctx, "failure")
		s.logger.Warn("saving role permissions failed", "role_id", editor.RoleID(), "error", err)
		return editor, err
	}
	s.record(ctx, "success")

	unlock := s.locks.lock(key)
	defer unlock()
	d, err := s.drafts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	committed := FromDraft(d)
	if d.Generation != editor.generation {
		s.logger.Debug("draft reloaded during save, keeping reload", "role_id", editor.RoleID())
		return committed, nil
	}
	committed.Commit(ids)
	if err := s.drafts.Put(ctx, key, committed.Draft()); err != nil {
		return nil, fmt.Errorf("storing draft: %w", err)
	}
	s.logger.Info("role permissions saved", "role_id", committed.RoleID(), "permission_count", len(ids))
	return committed, nil
}

// Saving reports whether a save for key is in flight.
func (s *Service) Saving(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.saving[key]
	return busy
}

// Discard drops the draft for key.
func (s *Service) Discard(ctx context.Context, key string) error {
	unlock := s.locks.lock(key)
	defer unlock()
	s.seq.Forget(key)
	if err := s.drafts.Delete(ctx, key); err != nil && !errors.Is(err, ErrDraftNotFound) {
		return err
	}
	return nil
}

// ListRoles returns all roles of the organisation.
func (s *Service) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.backend.GetRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	return roles, nil
}

// CreatePermission validates p and creates it in the backend.
func (s *Service) CreatePermission(ctx context.Context, p domain.NewPermission) error {
	if err := validate.Struct(s.validate, p); err != nil {
		return err
	}
	if err := s.backend.CreatePermission(ctx, p); err != nil {
		return fmt.Errorf("creating permission: %w", err)
	}
	return nil
}

func (s *Service) beginSave(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.saving[key]; busy {
		return false
	}
	s.saving[key] = struct{}{}
	return true
}

func (s *Service) endSave(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saving, key)
}

func (s *Service) record(ctx context.Context, result string) {
	if s.metrics != nil {
		s.metrics.RecordPermissionSave(ctx, result)
	}
}

// keyedMutex serialises draft mutations per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
