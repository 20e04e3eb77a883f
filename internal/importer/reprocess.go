package importer

import (
	"context"
	"sort"
	"sync"

	"github.com/graphium/importsvc/internal/domain"
	"github.com/graphium/importsvc/internal/repository"

	"github.com/google/uuid"
)

// ReprocessMode selects which records of a batch a bulk reprocess targets.
type ReprocessMode string

const (
	// ReprocessModeIndices targets an explicit caller-specified index list.
	ReprocessModeIndices ReprocessMode = "indices"
	// ReprocessModeIncomplete targets every record that has not finished
	// processing and is still on the processing path.
	ReprocessModeIncomplete ReprocessMode = "incomplete"
	// ReprocessModeAll targets every record in the batch; ineligible records
	// surface as per-record failures rather than being skipped.
	ReprocessModeAll ReprocessMode = "all"
)

// ReprocessSelection describes the target set for a bulk reprocess.
type ReprocessSelection struct {
	Mode    ReprocessMode `json:"mode"`
	Indices []int         `json:"indices,omitempty"`
}

// ReprocessResult is the outcome of one record's resubmission.
type ReprocessResult struct {
	RecordIndex int    `json:"recordIndex"`
	Error       string `json:"error,omitempty"`
}

// ReprocessSummary aggregates a bulk reprocess into a success/partial-failure
// report. Per-record failures are captured here, never raised.
type ReprocessSummary struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []ReprocessResult `json:"results"`
}

// ReprocessRecord resubmits one record's current payload to the processing
// stream, forcing it back to pending_processing. Reprocessing an already
// pending record is a no-op transition, so the operation is idempotent.
func (s *Service) ReprocessRecord(ctx context.Context, actor domain.Actor, guid uuid.UUID, index int) (domain.ImportBatchRecord, error) {
	batch, _, err := s.writableRecord(ctx, actor, guid, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	return s.reprocessOne(ctx, actor, batch, index)
}

// ReprocessBatch fans out resubmission across the selected records with
// bounded concurrency. The batch must already be in processing,
// pending_review, or complete; otherwise the whole request fails before any
// record is touched. Individual record failures are collected into the
// summary instead of aborting the rest.
func (s *Service) ReprocessBatch(ctx context.Context, actor domain.Actor, guid uuid.UUID, selection ReprocessSelection) (ReprocessSummary, error) {
	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return ReprocessSummary{}, err
	}
	switch batch.Status {
	case domain.BatchStatusProcessing, domain.BatchStatusPendingReview, domain.BatchStatusComplete:
	default:
		return ReprocessSummary{}, domain.NewValidationError("import batch in status %s cannot be reprocessed", batch.Status)
	}

	indices, err := s.selectIndices(ctx, guid, selection)
	if err != nil {
		return ReprocessSummary{}, err
	}

	results := s.dispatch(ctx, actor, batch, indices)

	summary := ReprocessSummary{Results: results}
	for _, result := range results {
		if result.Error == "" {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Service) selectIndices(ctx context.Context, guid uuid.UUID, selection ReprocessSelection) ([]int, error) {
	switch selection.Mode {
	case ReprocessModeIndices:
		if len(selection.Indices) == 0 {
			return nil, domain.NewValidationError("record indices are required")
		}
		return selection.Indices, nil
	case ReprocessModeIncomplete, ReprocessModeAll:
		records, err := s.records.ListByBatch(ctx, guid)
		if err != nil {
			return nil, err
		}
		var indices []int
		for _, record := range records {
			if selection.Mode == ReprocessModeIncomplete && !domain.IncompleteForReprocess(record.Status) {
				continue
			}
			indices = append(indices, record.Index)
		}
		return indices, nil
	default:
		return nil, domain.NewValidationError("unknown reprocess mode %q", selection.Mode)
	}
}

// dispatch runs reprocessOne for each index with a bounded worker pool. The
// semaphore caps in-flight submissions so a large batch cannot saturate the
// downstream processing stream. Completion order is not guaranteed; results
// are reported in input order.
func (s *Service) dispatch(ctx context.Context, actor domain.Actor, batch domain.ImportBatch, indices []int) []ReprocessResult {
	results := make([]ReprocessResult, len(indices))
	semaphore := make(chan struct{}, s.reprocessConcurrency)
	var wg sync.WaitGroup

	for i, index := range indices {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(slot, index int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			result := ReprocessResult{RecordIndex: index}
			if _, err := s.reprocessOne(ctx, actor, batch, index); err != nil {
				result.Error = err.Error()
			}
			results[slot] = result
		}(i, index)
	}
	wg.Wait()

	return results
}

// reprocessOne performs the single-record reprocess transition: force the
// record back to pending_processing, resubmit it, and append a best-effort
// record_reprocess notification event.
func (s *Service) reprocessOne(ctx context.Context, actor domain.Actor, batch domain.ImportBatch, index int) (domain.ImportBatchRecord, error) {
	record, err := s.records.Get(ctx, batch.GUID, index)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}
	if !domain.Reprocessable(record.Status) {
		return domain.ImportBatchRecord{}, domain.NewValidationError("record %s in status %s cannot be reprocessed", record.Key(), record.Status)
	}

	pendingProcessing := domain.RecordStatusPendingProcessing
	updated, err := s.records.Update(ctx, batch.GUID, index, repository.RecordUpdate{Status: &pendingProcessing})
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	if err := s.stream.SubmitRecord(ctx, batch.GUID, index); err != nil {
		return updated, err
	}

	event := domain.NewRecordEvent(domain.EventRecordReprocess, updated, batch.OrganizationID, actor, map[string]any{
		"previousStatus": string(record.Status),
	})
	_ = s.audit.Record(ctx, event, true)
	return updated, nil
}

// sortedIndices returns a sorted copy, used by tests and event payloads that
// want deterministic index lists.
func sortedIndices(indices []int) []int {
	out := make([]int, len(indices))
	copy(out, indices)
	sort.Ints(out)
	return out
}
