// Package importer drives import batches and their records through the
// data-entry and processing lifecycle. Every operation takes the acting
// user's session context, validates organization ownership and status
// preconditions before touching the store, and appends one audit event per
// successful mutation.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/graphium/importsvc/internal/decompose"
	"github.com/graphium/importsvc/internal/domain"
	"github.com/graphium/importsvc/internal/repository"

	"github.com/google/uuid"
)

// DefaultReprocessConcurrency caps simultaneous in-flight submissions during
// bulk reprocessing so the downstream processing stream is not saturated.
const DefaultReprocessConcurrency = 50

// Service exposes the import batch and record operation surface.
type Service struct {
	batches repository.BatchRepository
	records repository.RecordRepository
	events  repository.EventRepository
	users   repository.UserDirectory
	stream  repository.ProcessingStream
	audit   *AuditLog

	reprocessConcurrency int
	logger               *slog.Logger
	now                  func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithReprocessConcurrency overrides the bulk reprocess fan-out cap.
func WithReprocessConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.reprocessConcurrency = n
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the operation surface over the given stores and
// collaborators.
func NewService(
	batches repository.BatchRepository,
	records repository.RecordRepository,
	events repository.EventRepository,
	users repository.UserDirectory,
	stream repository.ProcessingStream,
	opts ...Option,
) *Service {
	service := &Service{
		batches:              batches,
		records:              records,
		events:               events,
		users:                users,
		stream:               stream,
		reprocessConcurrency: DefaultReprocessConcurrency,
		logger:               slog.Default(),
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	service.audit = NewAuditLog(events, service.logger)
	return service
}

// CreateBatchRequest describes a new batch handed over by an ingestion
// adapter or manual upload.
type CreateBatchRequest struct {
	OrganizationID    uuid.UUID
	FacilityID        *int64
	Source            domain.BatchSource
	SourceIdent       string
	DataType          domain.BatchDataType
	ParseOptions      domain.ParseOptions
	TemplateGUID      string
	RequiresDataEntry bool
	Payload           json.RawMessage
}

// CreateBatch registers a new import batch and immediately decomposes its
// payload into records. The batch lands in triage when generation succeeds
// and in generation_error when the payload cannot be split; either way the
// batch exists and one batch_created event is appended. Only decomposition
// failures park the batch in generation_error; store failures during
// generation are returned to the caller.
func (s *Service) CreateBatch(ctx context.Context, actor domain.Actor, req CreateBatchRequest) (domain.ImportBatch, []domain.ImportBatchRecord, error) {
	if req.OrganizationID != actor.OrganizationID {
		return domain.ImportBatch{}, nil, domain.NewAuthorizationError("cannot create a batch for a different organization")
	}
	if !actor.HasPermission(domain.PermissionEditAll) {
		return domain.ImportBatch{}, nil, domain.NewAuthorizationError("user %s may not create import batches", actor.UserName)
	}
	if !domain.ValidBatchSource(req.Source) {
		return domain.ImportBatch{}, nil, domain.NewValidationError("unknown batch source %q", req.Source)
	}
	if !domain.ValidBatchDataType(req.DataType) {
		return domain.ImportBatch{}, nil, domain.NewValidationError("unknown batch data type %q", req.DataType)
	}
	if len(req.Payload) == 0 {
		return domain.ImportBatch{}, nil, domain.NewValidationError("batch payload is required")
	}

	batch, err := s.batches.Create(ctx, domain.ImportBatch{
		GUID:              uuid.New(),
		OrganizationID:    req.OrganizationID,
		FacilityID:        req.FacilityID,
		Source:            req.Source,
		SourceIdent:       req.SourceIdent,
		DataType:          req.DataType,
		ParseOptions:      req.ParseOptions,
		Status:            domain.BatchStatusPendingGeneration,
		TemplateGUID:      req.TemplateGUID,
		RequiresDataEntry: req.RequiresDataEntry,
		Payload:           req.Payload,
	})
	if err != nil {
		return domain.ImportBatch{}, nil, err
	}

	generating := domain.BatchStatusGenerating
	if batch, err = s.batches.Update(ctx, batch.GUID, repository.BatchUpdate{Status: &generating}); err != nil {
		return batch, nil, err
	}

	var records []domain.ImportBatchRecord
	seeds, genErr := decompose.Split(batch)
	if genErr != nil {
		failed := domain.BatchStatusGenerationError
		if batch, err = s.batches.Update(ctx, batch.GUID, repository.BatchUpdate{Status: &failed}); err != nil {
			return batch, nil, err
		}
		s.logger.Warn("batch generation failed",
			"importBatchGuid", batch.GUID.String(),
			"dataType", string(batch.DataType),
			"error", genErr,
		)
	} else {
		if records, err = s.createRecords(ctx, batch, seeds); err != nil {
			return batch, records, err
		}
		triage := domain.BatchStatusTriage
		if batch, err = s.batches.Update(ctx, batch.GUID, repository.BatchUpdate{Status: &triage}); err != nil {
			return batch, records, err
		}
	}

	payload := map[string]any{
		"source":      string(batch.Source),
		"dataType":    string(batch.DataType),
		"status":      string(batch.Status),
		"recordCount": len(records),
	}
	if genErr != nil {
		payload["generationError"] = genErr.Error()
	}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchCreated, batch, actor, payload), false); err != nil {
		return batch, records, err
	}
	return batch, records, nil
}

// createRecords persists one record per seed in index order, all starting in
// the batch's initial record status.
func (s *Service) createRecords(ctx context.Context, batch domain.ImportBatch, seeds []decompose.Seed) ([]domain.ImportBatchRecord, error) {
	initialStatus := batch.InitialRecordStatus()
	records := make([]domain.ImportBatchRecord, 0, len(seeds))
	for i, seed := range seeds {
		record, err := s.records.Create(ctx, domain.ImportBatchRecord{
			ImportBatchGUID: batch.GUID,
			Index:           i,
			DataType:        seed.DataType,
			Payload:         seed.Payload,
			Status:          initialStatus,
		})
		if err != nil {
			return records, fmt.Errorf("failed to create record %d: %w", i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// GetBatch returns one batch the actor may read.
func (s *Service) GetBatch(ctx context.Context, actor domain.Actor, guid uuid.UUID) (domain.ImportBatch, error) {
	batch, err := s.batches.Get(ctx, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := authorizeBatchRead(actor, batch); err != nil {
		return domain.ImportBatch{}, err
	}
	return batch, nil
}

// ListBatches returns batches in the actor's organization, narrowed to the
// actor's visibility scope.
func (s *Service) ListBatches(ctx context.Context, actor domain.Actor, statuses []domain.BatchStatus, limit, offset int) ([]domain.ImportBatch, error) {
	visible, err := batchVisibility(actor)
	if err != nil {
		return nil, err
	}
	batches, err := s.batches.List(ctx, actor.OrganizationID, statuses, limit, offset)
	if err != nil {
		return nil, err
	}
	narrowed := batches[:0]
	for _, batch := range batches {
		if visible(batch) {
			narrowed = append(narrowed, batch)
		}
	}
	return narrowed, nil
}

// ListRecords returns every record of a batch the actor may read.
func (s *Service) ListRecords(ctx context.Context, actor domain.Actor, guid uuid.UUID) ([]domain.ImportBatchRecord, error) {
	if _, err := s.GetBatch(ctx, actor, guid); err != nil {
		return nil, err
	}
	return s.records.ListByBatch(ctx, guid)
}

// ListEvents returns the audit trail of a batch the actor may read.
func (s *Service) ListEvents(ctx context.Context, actor domain.Actor, guid uuid.UUID, limit, offset int) ([]domain.ImportEvent, error) {
	if _, err := s.GetBatch(ctx, actor, guid); err != nil {
		return nil, err
	}
	return s.events.ListByBatch(ctx, guid, limit, offset)
}

// SetBatchFacility associates the batch with a facility.
func (s *Service) SetBatchFacility(ctx context.Context, actor domain.Actor, guid uuid.UUID, facilityID int64) (domain.ImportBatch, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}

	payload := map[string]any{"newFacilityId": facilityID}
	if batch.FacilityID != nil {
		payload["previousFacilityId"] = *batch.FacilityID
	}

	batch, err = s.batches.Update(ctx, guid, repository.BatchUpdate{FacilityID: &facilityID})
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchFacilitySet, batch, actor, payload), false); err != nil {
		return batch, err
	}
	return batch, nil
}

// AssignBatch designates a user as responsible for the batch. The target must
// exist in the organization and hold a data-entry-capable role.
func (s *Service) AssignBatch(ctx context.Context, actor domain.Actor, guid uuid.UUID, userName string) (domain.ImportBatch, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return domain.ImportBatch{}, domain.NewValidationError("assignee user name is required")
	}

	user, err := s.users.GetUser(ctx, actor.OrganizationID, userName)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if !user.DataEntryCapable() {
		return domain.ImportBatch{}, domain.NewValidationError("user %s does not hold a data entry role", userName)
	}

	payload := map[string]any{"newAssignee": userName}
	if batch.AssignedTo != "" {
		payload["previousAssignee"] = batch.AssignedTo
	}

	batch, err = s.batches.Update(ctx, guid, repository.BatchUpdate{AssignedTo: &userName})
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchAssigned, batch, actor, payload), false); err != nil {
		return batch, err
	}
	return batch, nil
}

// OpenBatch moves a triaged batch into processing, optionally assigning it to
// a clerk in the same step. Opening for a clerk requires that user to hold a
// data-entry-capable role.
func (s *Service) OpenBatch(ctx context.Context, actor domain.Actor, guid uuid.UUID, forUser string) (domain.ImportBatch, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if !domain.CanTransitionBatch(batch.Status, domain.BatchStatusProcessing) {
		return domain.ImportBatch{}, domain.NewValidationError("import batch in status %s cannot be opened", batch.Status)
	}

	update := repository.BatchUpdate{}
	processing := domain.BatchStatusProcessing
	update.Status = &processing

	payload := map[string]any{
		"previousStatus": string(batch.Status),
		"newStatus":      string(domain.BatchStatusProcessing),
	}

	forUser = strings.TrimSpace(forUser)
	if forUser != "" {
		user, err := s.users.GetUser(ctx, actor.OrganizationID, forUser)
		if err != nil {
			return domain.ImportBatch{}, err
		}
		if !user.DataEntryCapable() {
			return domain.ImportBatch{}, domain.NewValidationError("user %s does not hold a data entry role", forUser)
		}
		update.AssignedTo = &forUser
		payload["assignedTo"] = forUser
	}

	batch, err = s.batches.Update(ctx, guid, update)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchOpened, batch, actor, payload), false); err != nil {
		return batch, err
	}
	return batch, nil
}

// SetBatchProcessingStatus is invoked on behalf of the flow-execution
// collaborator to report batch progress: processing into pending_review, and
// pending_review into complete. Completion stamps the batch's completion
// timestamp.
func (s *Service) SetBatchProcessingStatus(ctx context.Context, actor domain.Actor, guid uuid.UUID, to domain.BatchStatus) (domain.ImportBatch, error) {
	switch to {
	case domain.BatchStatusPendingReview, domain.BatchStatusComplete:
	default:
		return domain.ImportBatch{}, domain.NewValidationError("%s is not a batch processing status", to)
	}

	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if !domain.CanTransitionBatch(batch.Status, to) {
		return domain.ImportBatch{}, domain.NewValidationError("import batch in status %s cannot move to %s", batch.Status, to)
	}

	update := repository.BatchUpdate{Status: &to}
	payload := map[string]any{
		"previousStatus": string(batch.Status),
		"newStatus":      string(to),
	}
	if to == domain.BatchStatusComplete {
		completedAt := s.now().UTC()
		update.CompletedAt = &completedAt
		payload["completedAt"] = completedAt
	}

	batch, err = s.batches.Update(ctx, guid, update)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchStatusUpdate, batch, actor, payload), false); err != nil {
		return batch, err
	}
	return batch, nil
}

// SetBatchTemplate changes the template the batch was created from.
func (s *Service) SetBatchTemplate(ctx context.Context, actor domain.Actor, guid uuid.UUID, templateGUID string) (domain.ImportBatch, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	templateGUID = strings.TrimSpace(templateGUID)
	if templateGUID == "" {
		return domain.ImportBatch{}, domain.NewValidationError("template guid is required")
	}

	payload := map[string]any{"newTemplateGuid": templateGUID}
	if batch.TemplateGUID != "" {
		payload["previousTemplateGuid"] = batch.TemplateGUID
	}

	batch, err = s.batches.Update(ctx, guid, repository.BatchUpdate{TemplateGUID: &templateGUID})
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchTemplateChange, batch, actor, payload), false); err != nil {
		return batch, err
	}
	return batch, nil
}

// DiscardBatch moves the batch to its terminal status. A non-empty reason is
// required; the records themselves keep their statuses but become immutable
// through the batch check on every record operation.
func (s *Service) DiscardBatch(ctx context.Context, actor domain.Actor, guid uuid.UUID, reason string) (domain.ImportBatch, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return domain.ImportBatch{}, domain.NewValidationError("a discard reason is required")
	}
	if !domain.CanTransitionBatch(batch.Status, domain.BatchStatusDiscarded) {
		return domain.ImportBatch{}, domain.NewValidationError("import batch in status %s cannot be discarded", batch.Status)
	}

	payload := map[string]any{
		"previousStatus": string(batch.Status),
		"reason":         reason,
	}

	discarded := domain.BatchStatusDiscarded
	batch, err = s.batches.Update(ctx, guid, repository.BatchUpdate{Status: &discarded, DiscardReason: &reason})
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchDiscarded, batch, actor, payload), false); err != nil {
		return batch, err
	}
	return batch, nil
}

// RegenerateBatch re-triggers the batch's downstream processing stream. The
// stored status is deliberately untouched, which makes the operation an
// idempotent re-trigger; because nothing is mutated, no audit event is
// appended.
func (s *Service) RegenerateBatch(ctx context.Context, actor domain.Actor, guid uuid.UUID) (domain.ImportBatch, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	switch batch.Status {
	case domain.BatchStatusProcessing, domain.BatchStatusPendingReview, domain.BatchStatusComplete:
	default:
		return domain.ImportBatch{}, domain.NewValidationError("import batch in status %s cannot be regenerated", batch.Status)
	}

	if err := s.stream.SubmitBatch(ctx, guid); err != nil {
		return domain.ImportBatch{}, err
	}
	return batch, nil
}

// IgnoreAllPendingReview moves every pending_review record of the batch to
// ignored in one operation, appending a single batch_ignored event listing
// the affected indices.
func (s *Service) IgnoreAllPendingReview(ctx context.Context, actor domain.Actor, guid uuid.UUID) ([]domain.ImportBatchRecord, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return nil, err
	}

	records, err := s.records.ListByBatch(ctx, guid)
	if err != nil {
		return nil, err
	}

	ignored := domain.RecordStatusIgnored
	var updated []domain.ImportBatchRecord
	var indices []int
	for _, record := range records {
		if record.Status != domain.RecordStatusPendingReview {
			continue
		}
		record, err := s.records.Update(ctx, guid, record.Index, repository.RecordUpdate{Status: &ignored})
		if err != nil {
			return updated, err
		}
		updated = append(updated, record)
		indices = append(indices, record.Index)
	}

	if len(indices) == 0 {
		return nil, nil
	}

	payload := map[string]any{"recordIndexes": indices}
	if err := s.audit.Record(ctx, domain.NewBatchEvent(domain.EventBatchIgnored, batch, actor, payload), false); err != nil {
		return updated, err
	}
	return updated, nil
}

// writableBatch loads a batch and verifies the actor may mutate it. The
// discarded check enforces terminality for every write path.
func (s *Service) writableBatch(ctx context.Context, actor domain.Actor, guid uuid.UUID) (domain.ImportBatch, error) {
	batch, err := s.batches.Get(ctx, guid)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	if err := authorizeBatchWrite(actor, batch); err != nil {
		return domain.ImportBatch{}, err
	}
	if batch.Terminal() {
		return domain.ImportBatch{}, domain.NewValidationError("import batch %s is discarded", guid)
	}
	return batch, nil
}
