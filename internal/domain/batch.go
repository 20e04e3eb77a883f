package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BatchSource identifies where a batch's payload came from.
type BatchSource string

const (
	BatchSourceManual          BatchSource = "manual"
	BatchSourceFTP             BatchSource = "ftp"
	BatchSourceFax             BatchSource = "fax"
	BatchSourceExternalWebForm BatchSource = "external_web_form"
)

// ValidBatchSource reports whether the source is one of the known ingestion channels.
func ValidBatchSource(s BatchSource) bool {
	switch s {
	case BatchSourceManual, BatchSourceFTP, BatchSourceFax, BatchSourceExternalWebForm:
		return true
	}
	return false
}

// BatchDataType identifies the format of a batch's payload.
type BatchDataType string

const (
	BatchDataTypePDF  BatchDataType = "pdf"
	BatchDataTypeDSV  BatchDataType = "dsv"
	BatchDataTypeXLSX BatchDataType = "xlsx"
	BatchDataTypeHagy BatchDataType = "hagy"
)

// ValidBatchDataType reports whether the data type is a supported payload format.
func ValidBatchDataType(t BatchDataType) bool {
	switch t {
	case BatchDataTypePDF, BatchDataTypeDSV, BatchDataTypeXLSX, BatchDataTypeHagy:
		return true
	}
	return false
}

// BatchStatus is the lifecycle status of an import batch.
type BatchStatus string

const (
	BatchStatusPendingGeneration BatchStatus = "pending_generation"
	BatchStatusGenerating        BatchStatus = "generating"
	BatchStatusGenerationError   BatchStatus = "generation_error"
	BatchStatusTriage            BatchStatus = "triage"
	BatchStatusProcessing        BatchStatus = "processing"
	BatchStatusPendingReview     BatchStatus = "pending_review"
	BatchStatusComplete          BatchStatus = "complete"
	BatchStatusDiscarded         BatchStatus = "discarded"
)

// batchTransitions defines the legal status graph for batches. Discarded is
// terminal; every non-terminal status may transition to it.
var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusPendingGeneration: {BatchStatusGenerating, BatchStatusDiscarded},
	BatchStatusGenerating:        {BatchStatusGenerationError, BatchStatusTriage, BatchStatusDiscarded},
	BatchStatusGenerationError:   {BatchStatusDiscarded},
	BatchStatusTriage:            {BatchStatusProcessing, BatchStatusDiscarded},
	BatchStatusProcessing:        {BatchStatusPendingReview, BatchStatusDiscarded},
	BatchStatusPendingReview:     {BatchStatusComplete, BatchStatusDiscarded},
	BatchStatusComplete:          {BatchStatusDiscarded},
	BatchStatusDiscarded:         {},
}

// ValidBatchStatus reports whether the status is part of the batch lifecycle.
func ValidBatchStatus(s BatchStatus) bool {
	_, ok := batchTransitions[s]
	return ok
}

// CanTransitionBatch reports whether a batch may move from one status to another.
func CanTransitionBatch(from, to BatchStatus) bool {
	for _, next := range batchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DSVParseOptions controls how a delimited payload is split into records.
type DSVParseOptions struct {
	Delimiter string `json:"delimiter,omitempty"`
	Quote     string `json:"quote,omitempty"`
	HasHeader bool   `json:"hasHeader,omitempty"`
	SkipRows  int    `json:"skipRows,omitempty"`
}

// PDFParseOptions controls how a scanned document is split into records.
type PDFParseOptions struct {
	PagesPerRecord int `json:"pagesPerRecord,omitempty"`
}

// ParseOptions carries the type-specific decomposition settings for a batch.
// Only the member matching the batch's data type is consulted.
type ParseOptions struct {
	DSV *DSVParseOptions `json:"dsv,omitempty"`
	PDF *PDFParseOptions `json:"pdf,omitempty"`
}

// ImportBatch is one ingested unit of source material: a fax, an FTP file, a
// manual upload, or a web form submission. A batch always belongs to exactly
// one organization and is never physically deleted; discard is a status.
type ImportBatch struct {
	GUID              uuid.UUID       `json:"guid"`
	OrganizationID    uuid.UUID       `json:"organizationId"`
	FacilityID        *int64          `json:"facilityId,omitempty"`
	Source            BatchSource     `json:"source"`
	SourceIdent       string          `json:"sourceIdent,omitempty"` // fax sid, ftp path, upload file name
	DataType          BatchDataType   `json:"dataType"`
	ParseOptions      ParseOptions    `json:"parseOptions"`
	Status            BatchStatus     `json:"status"`
	AssignedTo        string          `json:"assignedTo,omitempty"`
	TemplateGUID      string          `json:"templateGuid,omitempty"`
	RequiresDataEntry bool            `json:"requiresDataEntry"`
	DiscardReason     string          `json:"discardReason,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// InitialRecordStatus returns the status newly generated records start in for
// this batch: data-entry batches queue records for a clerk, everything else
// goes straight to the processing stream.
func (b ImportBatch) InitialRecordStatus() RecordStatus {
	if b.RequiresDataEntry {
		return RecordStatusPendingDataEntry
	}
	return RecordStatusPendingProcessing
}

// Terminal reports whether the batch can no longer change status.
func (b ImportBatch) Terminal() bool {
	return b.Status == BatchStatusDiscarded
}
