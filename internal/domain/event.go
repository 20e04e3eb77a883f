package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names one kind of audit event. The event type strings are a
// stable contract for downstream audit consumers; renaming one requires a
// data migration.
type EventType string

const (
	EventBatchCreated        EventType = "batch_created"
	EventBatchFacilitySet    EventType = "batch_facility_set"
	EventBatchOpened         EventType = "batch_opened"
	EventBatchAssigned       EventType = "batch_assigned"
	EventBatchTemplateChange EventType = "batch_template_change"
	EventBatchStatusUpdate   EventType = "batch_status_update"
	EventBatchIgnored        EventType = "batch_ignored"
	EventBatchDiscarded      EventType = "batch_discarded"
	EventBatchRecordsMerged  EventType = "batch_records_merged"
	EventRecordOpened        EventType = "record_opened"
	EventRecordDataEntered   EventType = "record_data_entered"
	EventRecordStatusUpdate  EventType = "record_status_update"
	EventRecordDiscarded     EventType = "record_discarded"
	EventRecordUndiscarded   EventType = "record_undiscarded"
	EventRecordIgnored       EventType = "record_ignored"
	EventRecordUnignored     EventType = "record_unignored"
	EventRecordReprocess     EventType = "record_reprocess"
	EventRecordNoteAdded     EventType = "record_note_added"
)

// ImportEvent is one append-only audit entry describing a mutation to a batch
// or record. Events are immutable once written; a failed event write never
// reverts the business mutation it describes.
type ImportEvent struct {
	ID              uuid.UUID `json:"id"`
	Type            EventType `json:"eventType"`
	ImportBatchGUID uuid.UUID `json:"importBatchGuid"`
	RecordIndex     *int      `json:"recordIndex,omitempty"`
	// BatchRecordKey is the composite batchGuid:recordIndex key, set only for
	// record-scoped events.
	BatchRecordKey string         `json:"importBatchGuidRecordIndex,omitempty"`
	OrganizationID uuid.UUID      `json:"organizationId"`
	UserName       string         `json:"userName"`
	OrgUserID      int64          `json:"orgUserId"`
	GlobalUserID   int64          `json:"globalUserId"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// NewBatchEvent builds a batch-scoped audit event for the given actor.
func NewBatchEvent(eventType EventType, batch ImportBatch, actor Actor, payload map[string]any) ImportEvent {
	return ImportEvent{
		ID:              uuid.New(),
		Type:            eventType,
		ImportBatchGUID: batch.GUID,
		OrganizationID:  batch.OrganizationID,
		UserName:        actor.UserName,
		OrgUserID:       actor.OrgUserID,
		GlobalUserID:    actor.GlobalUserID,
		Payload:         payload,
		CreatedAt:       time.Now().UTC(),
	}
}

// NewRecordEvent builds a record-scoped audit event carrying the composite
// batchGuid:recordIndex key.
func NewRecordEvent(eventType EventType, record ImportBatchRecord, orgID uuid.UUID, actor Actor, payload map[string]any) ImportEvent {
	index := record.Index
	return ImportEvent{
		ID:              uuid.New(),
		Type:            eventType,
		ImportBatchGUID: record.ImportBatchGUID,
		RecordIndex:     &index,
		BatchRecordKey:  record.Key(),
		OrganizationID:  orgID,
		UserName:        actor.UserName,
		OrgUserID:       actor.OrgUserID,
		GlobalUserID:    actor.GlobalUserID,
		Payload:         payload,
		CreatedAt:       time.Now().UTC(),
	}
}
