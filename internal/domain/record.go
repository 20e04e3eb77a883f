package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the lifecycle status of a single record inside a batch.
type RecordStatus string

const (
	RecordStatusPendingDataEntry   RecordStatus = "pending_data_entry"
	RecordStatusPendingProcessing  RecordStatus = "pending_processing"
	RecordStatusProcessing         RecordStatus = "processing"
	RecordStatusProcessingComplete RecordStatus = "processing_complete"
	RecordStatusPendingReview      RecordStatus = "pending_review"
	RecordStatusIgnored            RecordStatus = "ignored"
	RecordStatusDiscarded          RecordStatus = "discarded"
)

// recordTransitions defines the legal status graph for records. Reprocessing
// re-enters pending_processing from any of the processing-path statuses,
// including pending_processing itself, which makes the transition idempotent.
var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordStatusPendingDataEntry:   {RecordStatusPendingProcessing, RecordStatusDiscarded},
	RecordStatusPendingProcessing:  {RecordStatusPendingProcessing, RecordStatusProcessing, RecordStatusIgnored, RecordStatusDiscarded},
	RecordStatusProcessing:         {RecordStatusPendingProcessing, RecordStatusProcessingComplete, RecordStatusPendingReview, RecordStatusDiscarded},
	RecordStatusProcessingComplete: {RecordStatusPendingProcessing, RecordStatusIgnored, RecordStatusDiscarded},
	RecordStatusPendingReview:      {RecordStatusPendingProcessing, RecordStatusIgnored, RecordStatusDiscarded},
	RecordStatusIgnored:            {RecordStatusPendingProcessing, RecordStatusDiscarded},
	RecordStatusDiscarded:          {RecordStatusPendingProcessing},
}

// ValidRecordStatus reports whether the status is part of the record lifecycle.
func ValidRecordStatus(s RecordStatus) bool {
	_, ok := recordTransitions[s]
	return ok
}

// CanTransitionRecord reports whether a record may move from one status to another.
func CanTransitionRecord(from, to RecordStatus) bool {
	for _, next := range recordTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// reprocessableStatuses are the statuses from which a record may be forced
// back to pending_processing.
var reprocessableStatuses = []RecordStatus{
	RecordStatusPendingProcessing,
	RecordStatusProcessing,
	RecordStatusProcessingComplete,
	RecordStatusPendingReview,
}

// Reprocessable reports whether a record in the given status may be
// resubmitted to the processing stream.
func Reprocessable(s RecordStatus) bool {
	for _, candidate := range reprocessableStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IncompleteForReprocess reports whether a record counts as "incomplete" for
// the reprocess-incomplete bulk filter: reprocessable but not yet complete.
func IncompleteForReprocess(s RecordStatus) bool {
	return Reprocessable(s) && s != RecordStatusProcessingComplete
}

// RecordNote is one free-text annotation on a record.
type RecordNote struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// DataEntryPayload is the human-authored structured content attached to a
// record by a data-entry clerk.
type DataEntryPayload struct {
	EnteredBy     string            `json:"enteredBy"`
	Fields        map[string]string `json:"fields"`
	ErrorFields   []string          `json:"errorFields,omitempty"`
	InvalidFields []string          `json:"invalidFields,omitempty"`
	EnteredAt     time.Time         `json:"enteredAt"`
}

// Validate checks the payload before it is allowed anywhere near the store.
func (p DataEntryPayload) Validate() error {
	if strings.TrimSpace(p.EnteredBy) == "" {
		return NewValidationError("data entry payload requires an author")
	}
	if p.Fields == nil {
		return NewValidationError("data entry payload requires a field map")
	}
	for name := range p.Fields {
		if strings.TrimSpace(name) == "" {
			return NewValidationError("data entry field names must be non-empty")
		}
	}
	return nil
}

// ImportBatchRecord is one extractable unit of content within a batch,
// addressed by the (batch guid, record index) pair. Records inherit their
// batch's organization and cannot be mutated once the batch is discarded.
type ImportBatchRecord struct {
	ImportBatchGUID uuid.UUID         `json:"importBatchGuid"`
	Index           int               `json:"recordIndex"`
	DataType        BatchDataType     `json:"dataType"`
	Payload         json.RawMessage   `json:"payload,omitempty"`
	Status          RecordStatus      `json:"status"`
	Notes           []RecordNote      `json:"notes,omitempty"`
	DataEntry       *DataEntryPayload `json:"dataEntry,omitempty"`
	ProviderIDs     []int64           `json:"responsibleProviderIds,omitempty"`
	DiscardReason   string            `json:"discardReason,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Key returns the composite batchGuid:recordIndex identifier used in audit
// events and external references.
func (r ImportBatchRecord) Key() string {
	return RecordKey(r.ImportBatchGUID, r.Index)
}

// RecordKey builds the composite batchGuid:recordIndex identifier.
func RecordKey(batchGUID uuid.UUID, index int) string {
	return fmt.Sprintf("%s:%d", batchGUID, index)
}
