package importer

import (
	"context"
	"strings"

	"github.com/graphium/importsvc/internal/domain"
	"github.com/graphium/importsvc/internal/repository"

	"github.com/google/uuid"
)

// OpenRecord returns one record for viewing or data entry. The record_opened
// event is best-effort: a failed append never blocks the clerk.
func (s *Service) OpenRecord(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int) (domain.ImportBatchRecord, error) {
	batch, err := s.batches.Get(ctx, guid)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if err := authorizeBatchRead(actor, batch); err != nil {
		return domain.ImportBatchRecord{}, err
	}
	record, err := s.records.Get(ctx, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordOpened, record, batch.OrganizationID, actor, nil)
	_ = s.audit.Record(ctx, event, true)
	return record, nil
}

// SaveDataEntry attaches a clerk's structured payload to a record and moves
// it from pending_data_entry to pending_processing. The payload is fully
// validated before any mutation.
func (s *Service) SaveDataEntry(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int, payload domain.DataEntryPayload) (domain.ImportBatchRecord, error) {
	batch, record, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if err := payload.Validate(); err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if record.Status != domain.RecordStatusPendingDataEntry {
		return domain.ImportBatchRecord{}, domain.NewValidationError("record %s is not awaiting data entry", record.Key())
	}

	payload.EnteredAt = s.now().UTC()
	pendingProcessing := domain.RecordStatusPendingProcessing
	updated, err := s.records.Update(ctx, guid, index, repository.RecordUpdate{
		Status:    &pendingProcessing,
		DataEntry: &payload,
	})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordDataEntered, updated, batch.OrganizationID, actor, map[string]any{
		"previousStatus": string(record.Status),
		"newStatus":      string(updated.Status),
		"fieldCount":     len(payload.Fields),
		"enteredBy":      payload.EnteredBy,
	})
	if err := s.audit.Record(ctx, event, false); err != nil {
		return updated, err
	}
	return updated, nil
}

// SetRecordProcessingStatus is invoked on behalf of the flow-execution
// collaborator to report processing progress: pending_processing into
// processing, and processing into processing_complete or pending_review.
func (s *Service) SetRecordProcessingStatus(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int, to domain.RecordStatus) (domain.ImportBatchRecord, error) {
	switch to {
	case domain.RecordStatusProcessing, domain.RecordStatusProcessingComplete, domain.RecordStatusPendingReview:
	default:
		return domain.ImportBatchRecord{}, domain.NewValidationError("%s is not a processing status", to)
	}

	batch, record, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if !domain.CanTransitionRecord(record.Status, to) {
		return domain.ImportBatchRecord{}, domain.NewValidationError("record %s cannot move from %s to %s", record.Key(), record.Status, to)
	}

	updated, err := s.records.Update(ctx, guid, index, repository.RecordUpdate{Status: &to})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordStatusUpdate, updated, batch.OrganizationID, actor, map[string]any{
		"previousStatus": string(record.Status),
		"newStatus":      string(to),
	})
	if err := s.audit.Record(ctx, event, false); err != nil {
		return updated, err
	}
	return updated, nil
}

// DiscardRecord moves a record to discarded. A non-empty reason is required
// and is rejected before any mutation.
func (s *Service) DiscardRecord(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int, reason string) (domain.ImportBatchRecord, error) {
	batch, record, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if strings.TrimSpace(reason) == "" {
		return domain.ImportBatchRecord{}, domain.NewValidationError("a discard reason is required")
	}
	if !domain.CanTransitionRecord(record.Status, domain.RecordStatusDiscarded) {
		return domain.ImportBatchRecord{}, domain.NewValidationError("record %s in status %s cannot be discarded", record.Key(), record.Status)
	}

	discarded := domain.RecordStatusDiscarded
	updated, err := s.records.Update(ctx, guid, index, repository.RecordUpdate{
		Status:        &discarded,
		DiscardReason: &reason,
	})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordDiscarded, updated, batch.OrganizationID, actor, map[string]any{
		"previousStatus": string(record.Status),
		"reason":         reason,
	})
	if err := s.audit.Record(ctx, event, false); err != nil {
		return updated, err
	}
	return updated, nil
}

// UndiscardRecord returns a discarded record to the processing queue and
// clears its discard reason.
func (s *Service) UndiscardRecord(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int) (domain.ImportBatchRecord, error) {
	batch, record, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if record.Status != domain.RecordStatusDiscarded {
		return domain.ImportBatchRecord{}, domain.NewValidationError("record %s is not discarded", record.Key())
	}

	pendingProcessing := domain.RecordStatusPendingProcessing
	noReason := ""
	updated, err := s.records.Update(ctx, guid, index, repository.RecordUpdate{
		Status:        &pendingProcessing,
		DiscardReason: &noReason,
	})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordUndiscarded, updated, batch.OrganizationID, actor, map[string]any{
		"previousReason": record.DiscardReason,
	})
	if err := s.audit.Record(ctx, event, false); err != nil {
		return updated, err
	}
	return updated, nil
}

// IgnoreRecord parks a record in ignored. No reason is required; only org
// ownership and the status graph are checked.
func (s *Service) IgnoreRecord(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int) (domain.ImportBatchRecord, error) {
	batch, record, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if !domain.CanTransitionRecord(record.Status, domain.RecordStatusIgnored) {
		return domain.ImportBatchRecord{}, domain.NewValidationError("record %s in status %s cannot be ignored", record.Key(), record.Status)
	}

	ignored := domain.RecordStatusIgnored
	updated, err := s.records.Update(ctx, guid, index, repository.RecordUpdate{Status: &ignored})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordIgnored, updated, batch.OrganizationID, actor, map[string]any{
		"previousStatus": string(record.Status),
	})
	if err := s.audit.Record(ctx, event, false); err != nil {
		return updated, err
	}
	return updated, nil
}

// UnignoreRecord returns an ignored record to the processing queue.
func (s *Service) UnignoreRecord(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int) (domain.ImportBatchRecord, error) {
	batch, record, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if record.Status != domain.RecordStatusIgnored {
		return domain.ImportBatchRecord{}, domain.NewValidationError("record %s is not ignored", record.Key())
	}

	pendingProcessing := domain.RecordStatusPendingProcessing
	updated, err := s.records.Update(ctx, guid, index, repository.RecordUpdate{Status: &pendingProcessing})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordUnignored, updated, batch.OrganizationID, actor, nil)
	if err := s.audit.Record(ctx, event, false); err != nil {
		return updated, err
	}
	return updated, nil
}

// AddRecordNote appends a free-text note to the record.
func (s *Service) AddRecordNote(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int, text string) (domain.ImportBatchRecord, error) {
	batch, _, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.ImportBatchRecord{}, domain.NewValidationError("note text is required")
	}

	note := domain.RecordNote{
		Author:    actor.UserName,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	updated, err := s.records.Update(ctx, guid, index, repository.RecordUpdate{AppendNote: &note})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	event := domain.NewRecordEvent(domain.EventRecordNoteAdded, updated, batch.OrganizationID, actor, map[string]any{
		"noteCount": len(updated.Notes),
	})
	if err := s.audit.Record(ctx, event, false); err != nil {
		return updated, err
	}
	return updated, nil
}

// writableRecord loads a batch and one of its records and verifies the actor
// may mutate it. Records of a discarded batch are immutable.
func (s *Service) writableRecord(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int) (domain.ImportBatch, domain.ImportBatchRecord, error) {
	batch, err := s.batches.Get(ctx, guid)
	if err != nil {
		return domain.ImportBatch{}, domain.ImportBatchRecord{}, err
	}
	if err := authorizeBatchWrite(actor, batch); err != nil {
		return domain.ImportBatch{}, domain.ImportBatchRecord{}, err
	}
	if batch.Terminal() {
		return domain.ImportBatch{}, domain.ImportBatchRecord{}, domain.NewValidationError("import batch %s is discarded", guid)
	}
	record, err := s.records.Get(ctx, guid, index)
	if err != nil {
		return domain.ImportBatch{}, domain.ImportBatchRecord{}, err
	}
	return batch, record, nil
}
