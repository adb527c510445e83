package inmem

import (
	"context"
	"slices"
	"sync"
	"time"

	"portal/internal/permission"
)

// DraftStore keeps permission drafts in process memory. Drafts not touched
// for ttl are dropped by Cleanup.
type DraftStore struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	drafts map[string]*entry
}

type entry struct {
	draft    permission.Draft
	lastSeen time.Time
}

// NewDraftStore creates a store. clock is injectable for deterministic testing.
func NewDraftStore(ttl time.Duration, clock func() time.Time) *DraftStore {
	return &DraftStore{
		ttl:    ttl,
		now:    clock,
		drafts: make(map[string]*entry),
	}
}

// Get returns a copy of the draft stored under key.
func (s *DraftStore) Get(_ context.Context, key string) (permission.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.drafts[key]
	if !ok || s.expired(e) {
		delete(s.drafts, key)
		return permission.Draft{}, permission.ErrDraftNotFound
	}
	e.lastSeen = s.now()
	return clone(e.draft), nil
}

// Put stores d under key.
func (s *DraftStore) Put(_ context.Context, key string, d permission.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[key] = &entry{draft: clone(d), lastSeen: s.now()}
	return nil
}

// Delete removes the draft under key.
func (s *DraftStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key)
	return nil
}

// Cleanup removes drafts that haven't been touched within the ttl.
func (s *DraftStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.drafts {
		if s.expired(e) {
			delete(s.drafts, key)
		}
	}
}

// Run calls Cleanup every interval until ctx is cancelled.
func (s *DraftStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Len returns the number of stored drafts (for testing).
func (s *DraftStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

func (s *DraftStore) expired(e *entry) bool {
	return s.now().Sub(e.lastSeen) > s.ttl
}

func clone(d permission.Draft) permission.Draft {
	d.AllPermissions = slices.Clone(d.AllPermissions)
	d.Enabled = slices.Clone(d.Enabled)
	d.Baseline = slices.Clone(d.Baseline)
	return d
}
