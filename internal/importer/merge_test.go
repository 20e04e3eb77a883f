package importer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/graphium/importsvc/internal/domain"
	"github.com/graphium/importsvc/internal/repository"

	"github.com/google/uuid"
)

func (f *fixture) seedPDFRecord(t *testing.T, batchGUID uuid.UUID, index int, pages []int, providerIDs []int64) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"fileRef": "scans/fax-1.pdf", "pages": pages})
	if err != nil {
		t.Fatalf("marshal pdf payload: %v", err)
	}
	if _, err := f.records.Create(context.Background(), domain.ImportBatchRecord{
		ImportBatchGUID: batchGUID,
		Index:           index,
		DataType:        domain.BatchDataTypePDF,
		Payload:         payload,
		Status:          domain.RecordStatusPendingDataEntry,
		ProviderIDs:     providerIDs,
	}); err != nil {
		t.Fatalf("seed pdf record: %v", err)
	}
}

func (f *fixture) seedPDFBatch(t *testing.T, status domain.BatchStatus) domain.ImportBatch {
	t.Helper()
	batch, err := f.batches.Create(context.Background(), domain.ImportBatch{
		GUID:              uuid.New(),
		OrganizationID:    f.orgID,
		Source:            domain.BatchSourceFax,
		DataType:          domain.BatchDataTypePDF,
		Status:            status,
		RequiresDataEntry: true,
	})
	if err != nil {
		t.Fatalf("seed pdf batch: %v", err)
	}
	return batch
}

func TestMergeRecordsCreatesOneAndDiscardsSources(t *testing.T) {
	f := newFixture()
	batch := f.seedPDFBatch(t, domain.BatchStatusProcessing)
	f.seedPDFRecord(t, batch.GUID, 0, []int{1}, []int64{10})
	f.seedPDFRecord(t, batch.GUID, 1, []int{2}, []int64{10, 20})
	f.seedPDFRecord(t, batch.GUID, 2, []int{3}, nil)

	result, err := f.service.MergeRecords(context.Background(), f.actor, batch.GUID, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(result.DiscardErrors) != 0 {
		t.Fatalf("discard errors: %+v", result.DiscardErrors)
	}

	if result.NewRecord.Index != 3 {
		t.Fatalf("new record index = %d", result.NewRecord.Index)
	}
	if result.NewRecord.Status != domain.RecordStatusPendingDataEntry {
		t.Fatalf("new record status = %s", result.NewRecord.Status)
	}
	if len(result.NewRecord.ProviderIDs) != 2 {
		t.Fatalf("provider ids = %v", result.NewRecord.ProviderIDs)
	}

	var combined struct {
		FileRef string `json:"fileRef"`
		Pages   []int  `json:"pages"`
	}
	if err := json.Unmarshal(result.NewRecord.Payload, &combined); err != nil {
		t.Fatalf("unmarshal combined payload: %v", err)
	}
	if combined.FileRef != "scans/fax-1.pdf" || len(combined.Pages) != 3 {
		t.Fatalf("combined payload = %+v", combined)
	}

	for _, index := range []int{0, 1, 2} {
		source, _ := f.records.Get(context.Background(), batch.GUID, index)
		if source.Status != domain.RecordStatusDiscarded {
			t.Errorf("source %d status = %s", index, source.Status)
		}
		if source.DiscardReason != MergedIntoNewRecordReason {
			t.Errorf("source %d reason = %q", index, source.DiscardReason)
		}
	}

	if len(f.events.ofType(domain.EventBatchRecordsMerged)) != 1 {
		t.Error("expected one batch_records_merged event")
	}
	if got := len(f.events.ofType(domain.EventRecordDiscarded)); got != 3 {
		t.Errorf("expected 3 record_discarded events, got %d", got)
	}
}

func TestMergeRecordsRequiresTwoDistinctIndices(t *testing.T) {
	f := newFixture()
	batch := f.seedPDFBatch(t, domain.BatchStatusProcessing)
	f.seedPDFRecord(t, batch.GUID, 0, []int{1}, nil)

	var vErr *domain.ValidationError
	if _, err := f.service.MergeRecords(context.Background(), f.actor, batch.GUID, []int{0}); !errors.As(err, &vErr) {
		t.Fatalf("single index: expected ValidationError, got %v", err)
	}
	if _, err := f.service.MergeRecords(context.Background(), f.actor, batch.GUID, []int{0, 0}); !errors.As(err, &vErr) {
		t.Fatalf("duplicate index: expected ValidationError, got %v", err)
	}

	source, _ := f.records.Get(context.Background(), batch.GUID, 0)
	if source.Status != domain.RecordStatusPendingDataEntry {
		t.Error("rejected merge must not mutate sources")
	}
	if next, _ := f.records.NextIndex(context.Background(), batch.GUID); next != 1 {
		t.Error("rejected merge must not create a record")
	}
}

func TestMergeRecordsCollapsesDuplicateIndices(t *testing.T) {
	f := newFixture()
	batch := f.seedPDFBatch(t, domain.BatchStatusProcessing)
	f.seedPDFRecord(t, batch.GUID, 0, []int{1}, nil)
	f.seedPDFRecord(t, batch.GUID, 1, []int{2}, nil)

	result, err := f.service.MergeRecords(context.Background(), f.actor, batch.GUID, []int{0, 1, 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(result.DiscardErrors) != 0 {
		t.Fatalf("discard errors: %+v", result.DiscardErrors)
	}

	// The repeated index contributes one source, one discard, one event.
	if len(result.Discarded) != 2 {
		t.Fatalf("discarded = %v", result.Discarded)
	}
	if got := len(f.events.ofType(domain.EventRecordDiscarded)); got != 2 {
		t.Fatalf("expected 2 record_discarded events, got %d", got)
	}

	var combined struct {
		Pages []int `json:"pages"`
	}
	if err := json.Unmarshal(result.NewRecord.Payload, &combined); err != nil {
		t.Fatalf("unmarshal combined payload: %v", err)
	}
	if len(combined.Pages) != 2 {
		t.Fatalf("duplicated source leaked into payload: pages = %v", combined.Pages)
	}
}

func TestMergeRecordsRejectsDiscardedSource(t *testing.T) {
	f := newFixture()
	batch := f.seedPDFBatch(t, domain.BatchStatusProcessing)
	f.seedPDFRecord(t, batch.GUID, 0, []int{1}, nil)
	f.seedPDFRecord(t, batch.GUID, 1, []int{2}, nil)
	reason := "bad scan"
	discarded := domain.RecordStatusDiscarded
	if _, err := f.records.Update(context.Background(), batch.GUID, 1, repository.RecordUpdate{
		Status:        &discarded,
		DiscardReason: &reason,
	}); err != nil {
		t.Fatalf("seed discard: %v", err)
	}

	_, err := f.service.MergeRecords(context.Background(), f.actor, batch.GUID, []int{0, 1})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if next, _ := f.records.NextIndex(context.Background(), batch.GUID); next != 2 {
		t.Error("rejected merge must not create a record")
	}
}

func TestMergeRecordsKeepsNewRecordOnDiscardFailure(t *testing.T) {
	f := newFixture()
	batch := f.seedPDFBatch(t, domain.BatchStatusProcessing)
	f.seedPDFRecord(t, batch.GUID, 0, []int{1}, nil)
	f.seedPDFRecord(t, batch.GUID, 1, []int{2}, nil)
	f.records.updateFails[1] = errors.New("row lock timeout")

	result, err := f.service.MergeRecords(context.Background(), f.actor, batch.GUID, []int{0, 1})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	// The synthesized record survives; the failed discard is reported, not
	// rolled back.
	if result.NewRecord.Index != 2 {
		t.Fatalf("new record index = %d", result.NewRecord.Index)
	}
	if len(result.Discarded) != 1 || result.Discarded[0] != 0 {
		t.Fatalf("discarded = %v", result.Discarded)
	}
	if len(result.DiscardErrors) != 1 || result.DiscardErrors[0].RecordIndex != 1 {
		t.Fatalf("discard errors = %+v", result.DiscardErrors)
	}

	kept, _ := f.records.Get(context.Background(), batch.GUID, 2)
	if kept.Status != domain.RecordStatusPendingDataEntry {
		t.Error("synthesized record must persist")
	}
	stubborn, _ := f.records.Get(context.Background(), batch.GUID, 1)
	if stubborn.Status == domain.RecordStatusDiscarded {
		t.Error("failed discard must leave the source untouched")
	}
}
