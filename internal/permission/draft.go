package permission

import (
	"errors"
	"fmt"

	"portal/internal/domain"
)

var (
	// ErrDraftNotFound means no edit session exists for the key.
	ErrDraftNotFound = errors.New("permission draft not found")
	// ErrSaveInProgress means a save for the same draft is still pending.
	ErrSaveInProgress = errors.New("a save for this role is already in progress")
	// ErrStaleResponse means a newer load for the same draft superseded this one.
	ErrStaleResponse = errors.New("stale role permission response discarded")
)

// Draft is the serialisable state of an Editor, kept between requests by a
// DraftStore.
type Draft struct {
	RoleID         int64                 `json:"roleId"`
	RoleName       string                `json:"roleName"`
	AllPermissions []domain.Permission   `json:"allPermissions"`
	Enabled        []domain.PermissionID `json:"enabled"`
	Baseline       []domain.PermissionID `json:"baseline"`
	// Generation identifies the load that started the draft.
	Generation uint64 `json:"generation,omitempty"`
}

// Draft snapshots the editor.
func (e *Editor) Draft() Draft {
	return Draft{
		RoleID:         e.roleID,
		RoleName:       e.roleName,
		AllPermissions: e.all,
		Enabled:        e.EnabledIDs(),
		Baseline:       e.BaselineIDs(),
		Generation:     e.generation,
	}
}

// FromDraft restores an editor from a stored snapshot.
func FromDraft(d Draft) *Editor {
	e := newEditor(d.RoleID, d.RoleName, d.AllPermissions, d.Enabled, d.Baseline)
	e.generation = d.Generation
	return e
}

// DraftKey scopes an edit session to one principal, organisation and role.
func DraftKey(p domain.Principal, roleID int64) string {
	return fmt.Sprintf("%s:%d:%d", p.ID, p.OrgID, roleID)
}
