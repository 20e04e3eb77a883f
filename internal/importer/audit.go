package importer

import (
	"context"
	"log/slog"

	"github.com/graphium/importsvc/internal/domain"
	"github.com/graphium/importsvc/internal/repository"
)

// AuditLog appends immutable audit events describing batch and record
// mutations. A failed append never reverts the mutation it describes: primary
// events surface the failure as an AuditWriteError, best-effort events log it
// and swallow it.
type AuditLog struct {
	events repository.EventRepository
	logger *slog.Logger
}

// NewAuditLog wraps the event repository with the append protocol.
func NewAuditLog(events repository.EventRepository, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{events: events, logger: logger}
}

// Record appends one audit event. With bestEffort set, append failures are
// logged at Warn and swallowed so low-criticality events (record opens,
// reprocess notifications) cannot fail a succeeded operation.
func (a *AuditLog) Record(ctx context.Context, event domain.ImportEvent, bestEffort bool) error {
	_, err := a.events.Append(ctx, event)
	if err == nil {
		return nil
	}
	if bestEffort {
		a.logger.Warn("audit event append failed",
			"eventType", string(event.Type),
			"importBatchGuid", event.ImportBatchGUID.String(),
			"batchRecordKey", event.BatchRecordKey,
			"error", err,
		)
		return nil
	}
	return &domain.AuditWriteError{EventType: event.Type, Err: err}
}
