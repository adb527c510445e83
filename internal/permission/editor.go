// Package permission holds the in-progress edit of a role's granted
// permissions and the service that loads and persists it.
package permission

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"portal/internal/domain"
)

// Editor is the enabled-permission set of one role during one edit session.
// It is not safe for concurrent use; callers serialise access per draft key.
type Editor struct {
	roleID   int64
	roleName string
	all      []domain.Permission
	known    map[domain.PermissionID]struct{}
	enabled  map[domain.PermissionID]struct{}
	baseline map[domain.PermissionID]struct{}

	generation uint64
}

// Group is one rendered cluster of permissions sharing a group label.
type Group struct {
	Key         string
	Items       []Item
	AllEnabled  bool
	SomeEnabled bool
}

// Item is a permission annotated with its current membership.
type Item struct {
	domain.Permission
	Enabled bool
}

// NewEditor starts an edit session from the backend's role detail.
func NewEditor(detail domain.RolePermissionDetail) (*Editor, error) {
	if err := detail.Validate(); err != nil {
		return nil, fmt.Errorf("role %d: %w", detail.RoleID, err)
	}
	enabled := make([]domain.PermissionID, 0, len(detail.Permissions))
	for _, p := range detail.Permissions {
		enabled = append(enabled, p.PermissionID)
	}
	return newEditor(detail.RoleID, detail.RoleName, detail.AllPermissions, enabled, enabled), nil
}

func newEditor(roleID int64, roleName string, all []domain.Permission, enabled, baseline []domain.PermissionID) *Editor {
	sorted := slices.Clone(all)
	slices.SortFunc(sorted, func(a, b domain.Permission) int {
		return cmp.Compare(a.PermissionID, b.PermissionID)
	})
	e := &Editor{
		roleID:   roleID,
		roleName: roleName,
		all:      sorted,
		known:    make(map[domain.PermissionID]struct{}, len(sorted)),
		enabled:  make(map[domain.PermissionID]struct{}, len(enabled)),
		baseline: make(map[domain.PermissionID]struct{}, len(baseline)),
	}
	for _, p := range sorted {
		e.known[p.PermissionID] = struct{}{}
	}
	for _, id := range enabled {
		if _, ok := e.known[id]; ok {
			e.enabled[id] = struct{}{}
		}
	}
	for _, id := range baseline {
		if _, ok := e.known[id]; ok {
			e.baseline[id] = struct{}{}
		}
	}
	return e
}

// RoleID returns the role being edited.
func (e *Editor) RoleID() int64 { return e.roleID }

// RoleName returns the display name of the role being edited.
func (e *Editor) RoleName() string { return e.roleName }

// Known reports whether id is part of the permission universe.
func (e *Editor) Known(id domain.PermissionID) bool {
	_, ok := e.known[id]
	return ok
}

// IsEnabled reports whether id is currently enabled.
func (e *Editor) IsEnabled(id domain.PermissionID) bool {
	_, ok := e.enabled[id]
	return ok
}

// Toggle flips membership of id. Unknown ids are ignored and reported false.
func (e *Editor) Toggle(id domain.PermissionID) bool {
	if !e.Known(id) {
		return false
	}
	if e.IsEnabled(id) {
		delete(e.enabled, id)
	} else {
		e.enabled[id] = struct{}{}
	}
	return true
}

// ToggleGroup deselects every id in the group when all of them are enabled,
// and selects all of them otherwise. Unknown ids are ignored.
func (e *Editor) ToggleGroup(ids []domain.PermissionID) {
	group := make([]domain.PermissionID, 0, len(ids))
	for _, id := range ids {
		if e.Known(id) {
			group = append(group, id)
		}
	}
	if len(group) == 0 {
		return
	}
	if e.allEnabled(group) {
		for _, id := range group {
			delete(e.enabled, id)
		}
		return
	}
	for _, id := range group {
		e.enabled[id] = struct{}{}
	}
}

func (e *Editor) allEnabled(ids []domain.PermissionID) bool {
	for _, id := range ids {
		if !e.IsEnabled(id) {
			return false
		}
	}
	return true
}

// FilterBySearch returns the permissions matching query, grouped by label.
// Matching is a case-insensitive substring test on name, description and
// group label. Groups without matches are omitted.
func (e *Editor) FilterBySearch(query string) []Group {
	q := strings.ToLower(strings.TrimSpace(query))
	byKey := make(map[string]*Group)
	for _, p := range e.all {
		if !matches(p, q) {
			continue
		}
		key := p.GroupLabel()
		g, ok := byKey[key]
		if !ok {
			g = &Group{Key: key}
			byKey[key] = g
		}
		g.Items = append(g.Items, Item{Permission: p, Enabled: e.IsEnabled(p.PermissionID)})
	}

	groups := make([]Group, 0, len(byKey))
	for _, key := range slices.Sorted(maps.Keys(byKey)) {
		g := byKey[key]
		g.AllEnabled = true
		for _, it := range g.Items {
			if it.Enabled {
				g.SomeEnabled = true
			} else {
				g.AllEnabled = false
			}
		}
		groups = append(groups, *g)
	}
	return groups
}

// GroupIDs returns the ids a group toggle acts on: the members of the group
// with the given key that match the active search.
func (e *Editor) GroupIDs(key, query string) []domain.PermissionID {
	var ids []domain.PermissionID
	for _, g := range e.FilterBySearch(query) {
		if g.Key != key {
			continue
		}
		for _, it := range g.Items {
			ids = append(ids, it.PermissionID)
		}
	}
	return ids
}

func matches(p domain.Permission, q string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Description), q) ||
		strings.Contains(strings.ToLower(p.GroupLabel()), q)
}

// EnabledIDs returns the current enabled set in ascending order.
func (e *Editor) EnabledIDs() []domain.PermissionID {
	return sortedIDs(e.enabled)
}

// BaselineIDs returns the last committed set in ascending order.
func (e *Editor) BaselineIDs() []domain.PermissionID {
	return sortedIDs(e.baseline)
}

// Dirty reports whether the enabled set differs from the committed baseline.
func (e *Editor) Dirty() bool {
	return !maps.Equal(e.enabled, e.baseline)
}

// Changes returns the ids that would be granted and revoked relative to the
// baseline.
func (e *Editor) Changes() (granted, revoked []domain.PermissionID) {
	for id := range e.enabled {
		if _, ok := e.baseline[id]; !ok {
			granted = append(granted, id)
		}
	}
	for id := range e.baseline {
		if _, ok := e.enabled[id]; !ok {
			revoked = append(revoked, id)
		}
	}
	slices.Sort(granted)
	slices.Sort(revoked)
	return granted, revoked
}

// Commit marks ids as the persisted baseline.
func (e *Editor) Commit(ids []domain.PermissionID) {
	e.baseline = make(map[domain.PermissionID]struct{}, len(ids))
	for _, id := range ids {
		if e.Known(id) {
			e.baseline[id] = struct{}{}
		}
	}
}

// Count returns the number of enabled and total permissions.
func (e *Editor) Count() (enabled, total int) {
	return len(e.enabled), len(e.all)
}

func sortedIDs(set map[domain.PermissionID]struct{}) []domain.PermissionID {
	ids := make([]domain.PermissionID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
