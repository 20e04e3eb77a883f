package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/graphium/importsvc/internal/domain"
)

func TestReprocessRecordIsIdempotent(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusProcessing)
	f.seedRecord(t, batch.GUID, 0, domain.RecordStatusPendingReview)

	first, err := f.service.ReprocessRecord(context.Background(), f.actor, batch.GUID, 0)
	if err != nil {
		t.Fatalf("first reprocess: %v", err)
	}
	if first.Status != domain.RecordStatusPendingProcessing {
		t.Fatalf("status = %s", first.Status)
	}

	// Reprocessing a record already in pending_processing is a no-op
	// transition and succeeds again.
	second, err := f.service.ReprocessRecord(context.Background(), f.actor, batch.GUID, 0)
	if err != nil {
		t.Fatalf("second reprocess: %v", err)
	}
	if second.Status != domain.RecordStatusPendingProcessing {
		t.Fatalf("status = %s", second.Status)
	}

	if len(f.stream.recordKeys) != 2 {
		t.Fatalf("expected 2 stream submissions, got %d", len(f.stream.recordKeys))
	}
}

func TestReprocessRecordRejectsIneligibleStatus(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusProcessing)
	f.seedRecord(t, batch.GUID, 0, domain.RecordStatusIgnored)

	_, err := f.service.ReprocessRecord(context.Background(), f.actor, batch.GUID, 0)
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(f.stream.recordKeys) != 0 {
		t.Fatal("no submission expected for ineligible record")
	}
}

func TestReprocessBatchWrongStatusFailsWholeRequest(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusTriage)
	f.seedRecord(t, batch.GUID, 0, domain.RecordStatusPendingProcessing)

	_, err := f.service.ReprocessBatch(context.Background(), f.actor, batch.GUID, ReprocessSelection{Mode: ReprocessModeAll})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(f.stream.recordKeys) != 0 {
		t.Fatal("no record may be touched when the batch precondition fails")
	}
	if len(f.events.ofType(domain.EventRecordReprocess)) != 0 {
		t.Fatal("no events expected when the batch precondition fails")
	}
}

func TestReprocessBatchIncomplete(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusProcessing)
	for i := 0; i < 3; i++ {
		f.seedRecord(t, batch.GUID, i, domain.RecordStatusPendingProcessing)
	}

	summary, err := f.service.ReprocessBatch(context.Background(), f.actor, batch.GUID, ReprocessSelection{Mode: ReprocessModeIncomplete})
	if err != nil {
		t.Fatalf("reprocess incomplete: %v", err)
	}
	if summary.Succeeded != 3 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(summary.Results))
	}
	for _, result := range summary.Results {
		if result.Error != "" {
			t.Errorf("record %d failed: %s", result.RecordIndex, result.Error)
		}
	}

	reprocessed := f.events.ofType(domain.EventRecordReprocess)
	if len(reprocessed) != 3 {
		t.Fatalf("expected 3 record_reprocess events, got %d", len(reprocessed))
	}
	seen := make(map[string]bool)
	for _, event := range reprocessed {
		seen[event.BatchRecordKey] = true
	}
	for i := 0; i < 3; i++ {
		key := domain.RecordKey(batch.GUID, i)
		if !seen[key] {
			t.Errorf("missing record_reprocess event for %s", key)
		}
	}
}

func TestReprocessBatchIncompleteSkipsCompleteRecords(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusProcessing)
	f.seedRecord(t, batch.GUID, 0, domain.RecordStatusPendingProcessing)
	f.seedRecord(t, batch.GUID, 1, domain.RecordStatusProcessingComplete)
	f.seedRecord(t, batch.GUID, 2, domain.RecordStatusIgnored)

	summary, err := f.service.ReprocessBatch(context.Background(), f.actor, batch.GUID, ReprocessSelection{Mode: ReprocessModeIncomplete})
	if err != nil {
		t.Fatalf("reprocess incomplete: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	complete, _ := f.records.Get(context.Background(), batch.GUID, 1)
	if complete.Status != domain.RecordStatusProcessingComplete {
		t.Error("complete record must not be reset")
	}
}

func TestReprocessBatchAllCapturesPerRecordFailures(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusPendingReview)
	f.seedRecord(t, batch.GUID, 0, domain.RecordStatusPendingReview)
	f.seedRecord(t, batch.GUID, 1, domain.RecordStatusDiscarded)
	f.seedRecord(t, batch.GUID, 2, domain.RecordStatusProcessingComplete)

	summary, err := f.service.ReprocessBatch(context.Background(), f.actor, batch.GUID, ReprocessSelection{Mode: ReprocessModeAll})
	if err != nil {
		t.Fatalf("reprocess all: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, result := range summary.Results {
		if result.RecordIndex == 1 && result.Error == "" {
			t.Error("discarded record must surface a per-record failure")
		}
		if result.RecordIndex != 1 && result.Error != "" {
			t.Errorf("record %d failed: %s", result.RecordIndex, result.Error)
		}
	}

	stillDiscarded, _ := f.records.Get(context.Background(), batch.GUID, 1)
	if stillDiscarded.Status != domain.RecordStatusDiscarded {
		t.Error("ineligible record must keep its status")
	}
}

func TestReprocessBatchExplicitIndices(t *testing.T) {
	f := newFixture()
	batch := f.seedBatch(t, domain.BatchStatusProcessing)
	f.seedRecord(t, batch.GUID, 0, domain.RecordStatusPendingReview)
	f.seedRecord(t, batch.GUID, 1, domain.RecordStatusPendingReview)

	summary, err := f.service.ReprocessBatch(context.Background(), f.actor, batch.GUID, ReprocessSelection{
		Mode:    ReprocessModeIndices,
		Indices: []int{1, 7},
	})
	if err != nil {
		t.Fatalf("reprocess indices: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, result := range summary.Results {
		if result.RecordIndex == 7 && result.Error == "" {
			t.Error("missing record must surface a per-record failure")
		}
	}

	_, err = f.service.ReprocessBatch(context.Background(), f.actor, batch.GUID, ReprocessSelection{Mode: ReprocessModeIndices})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for empty index list, got %v", err)
	}
}

func TestReprocessBatchBoundsConcurrency(t *testing.T) {
	f := newFixture(WithReprocessConcurrency(2))
	batch := f.seedBatch(t, domain.BatchStatusProcessing)
	for i := 0; i < 8; i++ {
		f.seedRecord(t, batch.GUID, i, domain.RecordStatusPendingProcessing)
	}
	f.stream.delay = 5 * time.Millisecond

	summary, err := f.service.ReprocessBatch(context.Background(), f.actor, batch.GUID, ReprocessSelection{Mode: ReprocessModeAll})
	if err != nil {
		t.Fatalf("reprocess all: %v", err)
	}
	if summary.Succeeded != 8 {
		t.Fatalf("summary = %+v", summary)
	}
	if f.stream.maxInFlight > 2 {
		t.Fatalf("in-flight submissions peaked at %d, cap is 2", f.stream.maxInFlight)
	}
}
