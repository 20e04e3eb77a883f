package domain

import "testing"

func TestBatchTransitionGraph(t *testing.T) {
	allowed := []struct {
		from, to BatchStatus
	}{
		{BatchStatusPendingGeneration, BatchStatusGenerating},
		{BatchStatusGenerating, BatchStatusGenerationError},
		{BatchStatusGenerating, BatchStatusTriage},
		{BatchStatusTriage, BatchStatusProcessing},
		{BatchStatusProcessing, BatchStatusPendingReview},
		{BatchStatusPendingReview, BatchStatusComplete},
		{BatchStatusPendingGeneration, BatchStatusDiscarded},
		{BatchStatusGenerationError, BatchStatusDiscarded},
		{BatchStatusComplete, BatchStatusDiscarded},
	}
	for _, tc := range allowed {
		if !CanTransitionBatch(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to BatchStatus
	}{
		{BatchStatusPendingGeneration, BatchStatusTriage},
		{BatchStatusTriage, BatchStatusComplete},
		{BatchStatusComplete, BatchStatusProcessing},
		{BatchStatusDiscarded, BatchStatusTriage},
		{BatchStatusDiscarded, BatchStatusProcessing},
		{BatchStatusPendingReview, BatchStatusProcessing},
	}
	for _, tc := range denied {
		if CanTransitionBatch(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestDiscardedBatchIsTerminal(t *testing.T) {
	for status := range batchTransitions {
		if status == BatchStatusDiscarded {
			continue
		}
		if CanTransitionBatch(BatchStatusDiscarded, status) {
			t.Errorf("discarded batch must not transition to %s", status)
		}
	}
}

func TestInitialRecordStatus(t *testing.T) {
	batch := ImportBatch{RequiresDataEntry: true}
	if got := batch.InitialRecordStatus(); got != RecordStatusPendingDataEntry {
		t.Fatalf("data entry batch: got %s", got)
	}
	batch.RequiresDataEntry = false
	if got := batch.InitialRecordStatus(); got != RecordStatusPendingProcessing {
		t.Fatalf("non data entry batch: got %s", got)
	}
}

func TestValidBatchSourceAndDataType(t *testing.T) {
	for _, source := range []BatchSource{BatchSourceManual, BatchSourceFTP, BatchSourceFax, BatchSourceExternalWebForm} {
		if !ValidBatchSource(source) {
			t.Errorf("expected %s to be valid", source)
		}
	}
	if ValidBatchSource("email") {
		t.Error("unexpected source accepted")
	}
	if ValidBatchDataType("docx") {
		t.Error("unexpected data type accepted")
	}
}
