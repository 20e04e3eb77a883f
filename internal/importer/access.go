package importer

import (
	"github.com/graphium/importsvc/internal/domain"
)

// The visibility rules: an actor holding a coarse read-all/edit-all
// permission may act on any batch in their organization; an actor holding
// only the assigned-scope permission may act only on batches whose AssignedTo
// matches their user name. Organization mismatch is always a denial,
// regardless of permissions.

func authorizeBatchRead(actor domain.Actor, batch domain.ImportBatch) error {
	if batch.OrganizationID != actor.OrganizationID {
		return domain.NewAuthorizationError("import batch %s belongs to a different organization", batch.GUID)
	}
	if actor.HasPermission(domain.PermissionReadAll) || actor.HasPermission(domain.PermissionEditAll) {
		return nil
	}
	if actor.HasPermission(domain.PermissionReadAssigned) || actor.HasPermission(domain.PermissionEditAssigned) {
		if batch.AssignedTo == actor.UserName {
			return nil
		}
		return domain.NewAuthorizationError("import batch %s is not assigned to %s", batch.GUID, actor.UserName)
	}
	return domain.NewAuthorizationError("user %s may not read import batches", actor.UserName)
}

func authorizeBatchWrite(actor domain.Actor, batch domain.ImportBatch) error {
	if batch.OrganizationID != actor.OrganizationID {
		return domain.NewAuthorizationError("import batch %s belongs to a different organization", batch.GUID)
	}
	if actor.HasPermission(domain.PermissionEditAll) {
		return nil
	}
	if actor.HasPermission(domain.PermissionEditAssigned) {
		if batch.AssignedTo == actor.UserName {
			return nil
		}
		return domain.NewAuthorizationError("import batch %s is not assigned to %s", batch.GUID, actor.UserName)
	}
	return domain.NewAuthorizationError("user %s may not edit import batches", actor.UserName)
}

// batchVisibility returns the narrowing predicate applied to listings for
// the given actor, or an authorization error when the actor can see nothing.
func batchVisibility(actor domain.Actor) (func(domain.ImportBatch) bool, error) {
	if actor.HasPermission(domain.PermissionReadAll) || actor.HasPermission(domain.PermissionEditAll) {
		return func(domain.ImportBatch) bool { return true }, nil
	}
	if actor.HasPermission(domain.PermissionReadAssigned) || actor.HasPermission(domain.PermissionEditAssigned) {
		return func(batch domain.ImportBatch) bool {
			return batch.AssignedTo == actor.UserName
		}, nil
	}
	return nil, domain.NewAuthorizationError("user %s may not read import batches", actor.UserName)
}
