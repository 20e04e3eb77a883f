package importer

import (
	"context"
	"encoding/json"

	"github.com/graphium/importsvc/internal/decompose"
	"github.com/graphium/importsvc/internal/domain"
	"github.com/graphium/importsvc/internal/repository"

	"github.com/google/uuid"
)

// MergedIntoNewRecordReason is the discard reason stamped on every source
// record of a merge.
const MergedIntoNewRecordReason = "Merged into new record"

// MergeResult reports the outcome of a merge. The synthesized record always
// survives; the merge is never rolled back. Discard failures on individual
// sources are collected here so the caller can retry them.
type MergeResult struct {
	NewRecord     domain.ImportBatchRecord `json:"newRecord"`
	Discarded     []int                    `json:"discarded"`
	DiscardErrors []ReprocessResult        `json:"discardErrors,omitempty"`
}

// MergeRecords combines two or more records of one batch into a single
// synthesized record with a fresh index, then discards each source. The
// create step and each discard are independent state machine calls: a discard
// failure after the create succeeded leaves the new record in place and is
// reported in the result.
func (s *Service) MergeRecords(ctx context.Context, actor domain.Actor, guid uuid.UUID, indices []int) (MergeResult, error) {
	// Duplicates are collapsed up front so a repeated index contributes one
	// source, one discard, and one event.
	seen := make(map[int]struct{}, len(indices))
	distinct := make([]int, 0, len(indices))
	for _, index := range indices {
		if _, ok := seen[index]; ok {
			continue
		}
		seen[index] = struct{}{}
		distinct = append(distinct, index)
	}
	if len(distinct) < 2 {
		return MergeResult{}, domain.NewValidationError("merging requires at least two distinct record indices")
	}

	batch, err := s.writableBatch(ctx, actor, guid)
	if err != nil {
		return MergeResult{}, err
	}

	// Load and vet every source before the first mutation.
	sources := make([]domain.ImportBatchRecord, 0, len(distinct))
	for _, index := range distinct {
		record, err := s.records.Get(ctx, guid, index)
		if err != nil {
			return MergeResult{}, err
		}
		if record.Status == domain.RecordStatusDiscarded {
			return MergeResult{}, domain.NewValidationError("record %s is already discarded", record.Key())
		}
		sources = append(sources, record)
	}

	payloads := make([]json.RawMessage, len(sources))
	providerSet := make(map[int64]struct{})
	var providerIDs []int64
	for i, source := range sources {
		payloads[i] = source.Payload
		for _, providerID := range source.ProviderIDs {
			if _, seen := providerSet[providerID]; seen {
				continue
			}
			providerSet[providerID] = struct{}{}
			providerIDs = append(providerIDs, providerID)
		}
	}
	combined, err := decompose.Combine(batch.DataType, payloads)
	if err != nil {
		return MergeResult{}, domain.NewValidationError("cannot combine record payloads: %v", err)
	}

	newIndex, err := s.records.NextIndex(ctx, guid)
	if err != nil {
		return MergeResult{}, err
	}

	newRecord, err := s.records.Create(ctx, domain.ImportBatchRecord{
		ImportBatchGUID: guid,
		Index:           newIndex,
		DataType:        batch.DataType,
		Payload:         combined,
		Status:          batch.InitialRecordStatus(),
		ProviderIDs:     providerIDs,
	})
	if err != nil {
		return MergeResult{}, err
	}

	event := domain.NewBatchEvent(domain.EventBatchRecordsMerged, batch, actor, map[string]any{
		"sourceIndexes": sortedIndices(distinct),
		"newIndex":      newIndex,
	})
	if err := s.audit.Record(ctx, event, false); err != nil {
		return MergeResult{NewRecord: newRecord}, err
	}

	result := MergeResult{NewRecord: newRecord}
	reason := MergedIntoNewRecordReason
	discarded := domain.RecordStatusDiscarded
	for _, source := range sources {
		updated, err := s.records.Update(ctx, guid, source.Index, repository.RecordUpdate{
			Status:        &discarded,
			DiscardReason: &reason,
		})
		if err != nil {
			result.DiscardErrors = append(result.DiscardErrors, ReprocessResult{
				RecordIndex: source.Index,
				Error:       err.Error(),
			})
			continue
		}

		discardEvent := domain.NewRecordEvent(domain.EventRecordDiscarded, updated, batch.OrganizationID, actor, map[string]any{
			"previousStatus": string(source.Status),
			"reason":         reason,
			"mergedInto":     newIndex,
		})
		if err := s.audit.Record(ctx, discardEvent, false); err != nil {
			result.DiscardErrors = append(result.DiscardErrors, ReprocessResult{
				RecordIndex: source.Index,
				Error:       err.Error(),
			})
			continue
		}
		result.Discarded = append(result.Discarded, source.Index)
	}
	return result, nil
}
