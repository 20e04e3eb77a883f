package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/graphium/importsvc/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository wires the append-only audit sink backed by pgxpool.
// There is no update or delete path; events are immutable once written.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) Append(ctx context.Context, event domain.ImportEvent) (domain.ImportEvent, error) {
	var payload []byte
	if event.Payload != nil {
		var err error
		payload, err = json.Marshal(event.Payload)
		if err != nil {
			return domain.ImportEvent{}, fmt.Errorf("failed to marshal event payload: %w", err)
		}
	}

	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO import_events (id, event_type, import_batch_guid, record_index,
			batch_record_key, organization_id, user_name, org_user_id, global_user_id, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		event.ID,
		string(event.Type),
		event.ImportBatchGUID,
		event.RecordIndex,
		event.BatchRecordKey,
		event.OrganizationID,
		event.UserName,
		event.OrgUserID,
		event.GlobalUserID,
		payload,
	).Scan(&event.CreatedAt)
	if err != nil {
		return domain.ImportEvent{}, fmt.Errorf("failed to append import event: %w", err)
	}
	return event, nil
}

func (r *eventRepository) ListByBatch(ctx context.Context, batchGUID uuid.UUID, limit, offset int) ([]domain.ImportEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, event_type, import_batch_guid, record_index, batch_record_key,
			organization_id, user_name, org_user_id, global_user_id, payload, created_at
		 FROM import_events
		 WHERE import_batch_guid = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		batchGUID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import events: %w", err)
	}
	defer rows.Close()

	var events []domain.ImportEvent
	for rows.Next() {
		var (
			event     domain.ImportEvent
			eventType string
			payload   []byte
		)
		err := rows.Scan(
			&event.ID,
			&eventType,
			&event.ImportBatchGUID,
			&event.RecordIndex,
			&event.BatchRecordKey,
			&event.OrganizationID,
			&event.UserName,
			&event.OrgUserID,
			&event.GlobalUserID,
			&payload,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import event: %w", err)
		}
		event.Type = domain.EventType(eventType)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
