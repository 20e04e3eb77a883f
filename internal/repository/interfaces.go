package repository

import (
	"context"
	"time"

	"github.com/graphium/importsvc/internal/domain"

	"github.com/google/uuid"
)

// The repositories are last-write-wins: no optimistic-concurrency token is
// carried on batches or records, matching the behavior of the system this
// one replaced. Update operations return the post-update snapshot so callers
// observe the row that actually won.

// BatchUpdate describes a partial update to an import batch. Nil members are
// left untouched.
type BatchUpdate struct {
	Status        *domain.BatchStatus
	AssignedTo    *string
	FacilityID    *int64
	TemplateGUID  *string
	DiscardReason *string
	CompletedAt   *time.Time
}

// RecordUpdate describes a partial update to an import batch record. Nil
// members are left untouched. AppendNote appends rather than replaces.
type RecordUpdate struct {
	Status        *domain.RecordStatus
	DiscardReason *string
	DataEntry     *domain.DataEntryPayload
	AppendNote    *domain.RecordNote
}

// BatchRepository is the persistence surface for import batches.
type BatchRepository interface {
	Create(ctx context.Context, batch domain.ImportBatch) (domain.ImportBatch, error)
	Get(ctx context.Context, guid uuid.UUID) (domain.ImportBatch, error)
	List(ctx context.Context, organizationID uuid.UUID, statuses []domain.BatchStatus, limit, offset int) ([]domain.ImportBatch, error)
	Update(ctx context.Context, guid uuid.UUID, update BatchUpdate) (domain.ImportBatch, error)
}

// RecordRepository is the persistence surface for records within a batch.
type RecordRepository interface {
	Create(ctx context.Context, record domain.ImportBatchRecord) (domain.ImportBatchRecord, error)
	Get(ctx context.Context, batchGUID uuid.UUID, index int) (domain.ImportBatchRecord, error)
	ListByBatch(ctx context.Context, batchGUID uuid.UUID) ([]domain.ImportBatchRecord, error)
	Update(ctx context.Context, batchGUID uuid.UUID, index int, update RecordUpdate) (domain.ImportBatchRecord, error)
	// NextIndex returns the next unused record index for the batch. Indexes
	// are unique and immutable within a batch; merge-created records take
	// fresh indexes from here.
	NextIndex(ctx context.Context, batchGUID uuid.UUID) (int, error)
}

// EventRepository is the append-only audit sink.
type EventRepository interface {
	Append(ctx context.Context, event domain.ImportEvent) (domain.ImportEvent, error)
	ListByBatch(ctx context.Context, batchGUID uuid.UUID, limit, offset int) ([]domain.ImportEvent, error)
}

// ProcessingStream is the downstream flow-execution collaborator. Submitting
// a record hands its current payload to the transformation engine; submitting
// a batch re-triggers its downstream processing stream without touching
// stored status.
type ProcessingStream interface {
	SubmitRecord(ctx context.Context, batchGUID uuid.UUID, index int) error
	SubmitBatch(ctx context.Context, batchGUID uuid.UUID) error
}

// UserDirectory resolves assignment targets within an organization.
type UserDirectory interface {
	GetUser(ctx context.Context, organizationID uuid.UUID, userName string) (domain.OrgUser, error)
}
