package domain

import "github.com/google/uuid"

// Permission is one granted capability on the import surface.
type Permission string

const (
	// PermissionReadAll grants read access to every batch in the actor's organization.
	PermissionReadAll Permission = "import_batch:read_all"
	// PermissionEditAll grants write access to every batch in the actor's organization.
	PermissionEditAll Permission = "import_batch:edit_all"
	// PermissionReadAssigned grants read access only to batches assigned to the actor.
	PermissionReadAssigned Permission = "import_batch:read_assigned"
	// PermissionEditAssigned grants write access only to batches assigned to the actor.
	PermissionEditAssigned Permission = "import_batch:edit_assigned"
)

// Role is a named role held by a user within an organization.
type Role string

const (
	RoleDataEntryClerk      Role = "data_entry_clerk"
	RoleDataEntrySupervisor Role = "data_entry_supervisor"
)

// DataEntryCapable reports whether the role qualifies its holder to be the
// assignee of a batch or record.
func DataEntryCapable(role Role) bool {
	return role == RoleDataEntryClerk || role == RoleDataEntrySupervisor
}

// Actor is the caller's session context: who is performing an operation and
// what they are allowed to touch. It is supplied by the authentication
// collaborator and never persisted here.
type Actor struct {
	OrganizationID uuid.UUID
	UserName       string
	OrgUserID      int64
	GlobalUserID   int64
	Permissions    []Permission
	Roles          []Role
}

// HasPermission reports whether the actor holds the given permission.
func (a Actor) HasPermission(p Permission) bool {
	for _, granted := range a.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// HasRole reports whether the actor holds the given role.
func (a Actor) HasRole(r Role) bool {
	for _, held := range a.Roles {
		if held == r {
			return true
		}
	}
	return false
}

// OrgUser is a directory entry for a user within an organization, used when
// validating assignment targets.
type OrgUser struct {
	UserName  string
	OrgUserID int64
	Roles     []Role
}

// DataEntryCapable reports whether the user holds any data-entry role.
func (u OrgUser) DataEntryCapable() bool {
	for _, role := range u.Roles {
		if DataEntryCapable(role) {
			return true
		}
	}
	return false
}
