package domain

import (
	"fmt"
	"strconv"
)

// PermissionID identifies a grantable capability.
type PermissionID int64

// Permission is a single grantable capability in the deployment's universe.
type Permission struct {
	PermissionID    PermissionID `json:"permissionId" validate:"gt=0"`
	Name            string       `json:"name" validate:"required"`
	Description     string       `json:"description"`
	ModuleID        int64        `json:"moduleId"`
	ModuleName      string       `json:"moduleName,omitempty"`
	PermissionGroup string       `json:"permissionGroup,omitempty"`
}

// GroupLabel returns the key permissions are clustered by for display and
// bulk toggling.
func (p Permission) GroupLabel() string {
	switch {
	case p.ModuleName != "":
		return p.ModuleName
	case p.PermissionGroup != "":
		return p.PermissionGroup
	default:
		return "Module " + strconv.FormatInt(p.ModuleID, 10)
	}
}

// Role is a named collection of permissions owned by the backend.
type Role struct {
	RoleID   int64  `json:"roleId" validate:"gt=0"`
	RoleName string `json:"roleName" validate:"required"`
}

// RolePermissionDetail is a role together with its enabled permissions and
// the full permission universe.
type RolePermissionDetail struct {
	RoleID         int64        `json:"roleId" validate:"gt=0"`
	RoleName       string       `json:"roleName"`
	Permissions    []Permission `json:"permissions" validate:"dive"`
	AllPermissions []Permission `json:"allPermissions" validate:"dive"`
}

// Validate checks that permission ids are unique within the universe and that
// every enabled permission belongs to it.
func (d RolePermissionDetail) Validate() error {
	universe := make(map[PermissionID]struct{}, len(d.AllPermissions))
	for _, p := range d.AllPermissions {
		if _, dup := universe[p.PermissionID]; dup {
			return fmt.Errorf("duplicate permission id %d in universe", p.PermissionID)
		}
		universe[p.PermissionID] = struct{}{}
	}
	for _, p := range d.Permissions {
		if _, ok := universe[p.PermissionID]; !ok {
			return fmt.Errorf("enabled permission %d not in universe", p.PermissionID)
		}
	}
	return nil
}

// NewPermission is the payload for creating a permission.
type NewPermission struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
	ModuleID    int64  `json:"moduleId" validate:"gt=0"`
}
