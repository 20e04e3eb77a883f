package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/graphium/importsvc/internal/domain"

	"github.com/google/uuid"
)

func TestAssignedScopeActorCannotTouchUnassignedBatch(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusProcessing)
	f.seedRecord(t, batch.GUID, 0, domain.RecordStatusPendingReview)
	f.users.users["clerk1"] = domain.OrgUser{UserName: "clerk1", OrgUserID: 301, Roles: []domain.Role{domain.RoleDataEntryClerk}}

	clerk := domain.Actor{
		OrganizationID: f.orgID,
		UserName:       "clerk1",
		OrgUserID:      301,
		Permissions:    []domain.Permission{domain.PermissionReadAssigned, domain.PermissionEditAssigned},
		Roles:          []domain.Role{domain.RoleDataEntryClerk},
	}

	var authErr *domain.AuthorizationError

	if _, err := f.service.GetBatch(context.Background(), clerk, batch.GUID); !errors.As(err, &authErr) {
		t.Fatalf("get: expected AuthorizationError, got %v", err)
	}
	if _, err := f.service.DiscardBatch(context.Background(), clerk, batch.GUID, "dup"); !errors.As(err, &authErr) {
		t.Fatalf("discard: expected AuthorizationError, got %v", err)
	}
	if _, err := f.service.IgnoreRecord(context.Background(), clerk, batch.GUID, 0); !errors.As(err, &authErr) {
		t.Fatalf("ignore record: expected AuthorizationError, got %v", err)
	}
	if _, err := f.service.ReprocessBatch(context.Background(), clerk, batch.GUID, ReprocessSelection{Mode: ReprocessModeAll}); !errors.As(err, &authErr) {
		t.Fatalf("reprocess: expected AuthorizationError, got %v", err)
	}

	// Once a supervisor assigns the batch, the same clerk may act on it.
	if _, err := f.service.AssignBatch(context.Background(), f.actor, batch.GUID, "clerk1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.service.GetBatch(context.Background(), clerk, batch.GUID); err != nil {
		t.Fatalf("get after assignment: %v", err)
	}
	if _, err := f.service.IgnoreRecord(context.Background(), clerk, batch.GUID, 0); err != nil {
		t.Fatalf("ignore record after assignment: %v", err)
	}
}

func TestOrganizationMismatchAlwaysDenied(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusTriage)

	outsider := domain.Actor{
		OrganizationID: uuid.New(),
		UserName:       "outsider",
		Permissions:    []domain.Permission{domain.PermissionReadAll, domain.PermissionEditAll},
	}

	var authErr *domain.AuthorizationError
	if _, err := f.service.GetBatch(context.Background(), outsider, batch.GUID); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	if _, err := f.service.DiscardBatch(context.Background(), outsider, batch.GUID, "dup"); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}

func TestListBatchesNarrowsToAssignedScope(t *testing.T) {
	f := newFixture()
	mine := f.seedBatch(t, domain.BatchStatusProcessing)
	f.seedBatch(t, domain.BatchStatusProcessing)
	f.users.users["clerk1"] = domain.OrgUser{UserName: "clerk1", OrgUserID: 301, Roles: []domain.Role{domain.RoleDataEntryClerk}}
	if _, err := f.service.AssignBatch(context.Background(), f.actor, mine.GUID, "clerk1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	clerk := domain.Actor{
		OrganizationID: f.orgID,
		UserName:       "clerk1",
		Permissions:    []domain.Permission{domain.PermissionReadAssigned},
	}
	visible, err := f.service.ListBatches(context.Background(), clerk, nil, 100, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 || visible[0].GUID != mine.GUID {
		t.Fatalf("expected only the assigned batch, got %d", len(visible))
	}

	all, err := f.service.ListBatches(context.Background(), f.actor, nil, 100, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("supervisor should see both batches, got %d", len(all))
	}
}

func TestActorWithoutPermissionsSeesNothing(t *testing.T) {
	f := newFixture()
	f.seedBatch(t, domain.BatchStatusTriage)

	nobody := domain.Actor{OrganizationID: f.orgID, UserName: "nobody"}
	_, err := f.service.ListBatches(context.Background(), nobody, nil, 100, 0)
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
}
