package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestRecordTransitionGraph(t *testing.T) {
	allowed := []struct {
		from, to RecordStatus
	}{
		{RecordStatusPendingDataEntry, RecordStatusPendingProcessing},
		{RecordStatusPendingProcessing, RecordStatusProcessing},
		{RecordStatusProcessing, RecordStatusProcessingComplete},
		{RecordStatusProcessing, RecordStatusPendingReview},
		{RecordStatusPendingProcessing, RecordStatusPendingProcessing}, // idempotent reprocess
		{RecordStatusProcessingComplete, RecordStatusPendingProcessing},
		{RecordStatusPendingReview, RecordStatusIgnored},
		{RecordStatusIgnored, RecordStatusPendingProcessing},
		{RecordStatusDiscarded, RecordStatusPendingProcessing}, // undiscard
		{RecordStatusPendingReview, RecordStatusDiscarded},
		{RecordStatusIgnored, RecordStatusDiscarded},
	}
	for _, tc := range allowed {
		if !CanTransitionRecord(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to RecordStatus
	}{
		{RecordStatusPendingDataEntry, RecordStatusProcessing},
		{RecordStatusPendingDataEntry, RecordStatusIgnored},
		{RecordStatusDiscarded, RecordStatusIgnored},
		{RecordStatusDiscarded, RecordStatusProcessingComplete},
		{RecordStatusIgnored, RecordStatusProcessing},
	}
	for _, tc := range denied {
		if CanTransitionRecord(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestReprocessable(t *testing.T) {
	eligible := []RecordStatus{
		RecordStatusPendingProcessing,
		RecordStatusProcessing,
		RecordStatusProcessingComplete,
		RecordStatusPendingReview,
	}
	for _, status := range eligible {
		if !Reprocessable(status) {
			t.Errorf("expected %s to be reprocessable", status)
		}
	}
	for _, status := range []RecordStatus{RecordStatusPendingDataEntry, RecordStatusIgnored, RecordStatusDiscarded} {
		if Reprocessable(status) {
			t.Errorf("expected %s to not be reprocessable", status)
		}
	}

	if IncompleteForReprocess(RecordStatusProcessingComplete) {
		t.Error("processing_complete records are not incomplete")
	}
	if !IncompleteForReprocess(RecordStatusPendingReview) {
		t.Error("pending_review records are incomplete")
	}
}

func TestDataEntryPayloadValidate(t *testing.T) {
	payload := DataEntryPayload{
		EnteredBy: "clerk1",
		Fields:    map[string]string{"patientLast": "Smith"},
	}
	if err := payload.Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	cases := []DataEntryPayload{
		{Fields: map[string]string{"a": "b"}},
		{EnteredBy: "   ", Fields: map[string]string{"a": "b"}},
		{EnteredBy: "clerk1"},
		{EnteredBy: "clerk1", Fields: map[string]string{" ": "b"}},
	}
	for i, malformed := range cases {
		err := malformed.Validate()
		if err == nil {
			t.Errorf("case %d: malformed payload accepted", i)
			continue
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("case %d: expected ValidationError, got %T", i, err)
		}
	}
}

func TestRecordKey(t *testing.T) {
	guid := uuid.MustParse("6f1b0c68-6a9f-4b63-9f5e-8c8f1d9a2b11")
	record := ImportBatchRecord{ImportBatchGUID: guid, Index: 4}
	want := guid.String() + ":4"
	if record.Key() != want {
		t.Fatalf("got %s, want %s", record.Key(), want)
	}
}
