package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/graphium/importsvc/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `import_batch_guid, record_index, data_type, payload, status, notes,
	data_entry, provider_ids, discard_reason, created_at, updated_at`

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository wires a record repository backed by pgxpool.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) Create(ctx context.Context, record domain.ImportBatchRecord) (domain.ImportBatchRecord, error) {
	notes, err := json.Marshal(record.Notes)
	if err != nil {
		return domain.ImportBatchRecord{}, fmt.Errorf("failed to marshal notes: %w", err)
	}
	var dataEntry []byte
	if record.DataEntry != nil {
		dataEntry, err = json.Marshal(record.DataEntry)
		if err != nil {
			return domain.ImportBatchRecord{}, fmt.Errorf("failed to marshal data entry: %w", err)
		}
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO import_batch_records (import_batch_guid, record_index, data_type, payload,
			status, notes, data_entry, provider_ids, discard_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+recordColumns,
		record.ImportBatchGUID,
		record.Index,
		string(record.DataType),
		[]byte(record.Payload),
		string(record.Status),
		notes,
		dataEntry,
		record.ProviderIDs,
		record.DiscardReason,
	)

	created, err := scanRecord(row)
	if err != nil {
		return domain.ImportBatchRecord{}, fmt.Errorf("failed to create import batch record: %w", err)
	}
	return created, nil
}

func (r *recordRepository) Get(ctx context.Context, batchGUID uuid.UUID, index int) (domain.ImportBatchRecord, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+recordColumns+` FROM import_batch_records
		 WHERE import_batch_guid = $1 AND record_index = $2`,
		batchGUID,
		index,
	)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportBatchRecord{}, domain.NewNotFoundError("import batch record", domain.RecordKey(batchGUID, index))
		}
		return domain.ImportBatchRecord{}, fmt.Errorf("failed to get import batch record: %w", err)
	}
	return record, nil
}

func (r *recordRepository) ListByBatch(ctx context.Context, batchGUID uuid.UUID) ([]domain.ImportBatchRecord, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+recordColumns+` FROM import_batch_records
		 WHERE import_batch_guid = $1
		 ORDER BY record_index`,
		batchGUID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batch records: %w", err)
	}
	defer rows.Close()

	var records []domain.ImportBatchRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *recordRepository) Update(ctx context.Context, batchGUID uuid.UUID, index int, update RecordUpdate) (domain.ImportBatchRecord, error) {
	sets := []string{"updated_at = now()"}
	args := []any{batchGUID, index}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.DiscardReason != nil {
		add("discard_reason", *update.DiscardReason)
	}
	if update.DataEntry != nil {
		dataEntry, err := json.Marshal(update.DataEntry)
		if err != nil {
			return domain.ImportBatchRecord{}, fmt.Errorf("failed to marshal data entry: %w", err)
		}
		add("data_entry", dataEntry)
	}
	if update.AppendNote != nil {
		note, err := json.Marshal(update.AppendNote)
		if err != nil {
			return domain.ImportBatchRecord{}, fmt.Errorf("failed to marshal note: %w", err)
		}
		args = append(args, note)
		sets = append(sets, fmt.Sprintf("notes = coalesce(notes, '[]'::jsonb) || $%d::jsonb", len(args)))
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE import_batch_records SET `+strings.Join(sets, ", ")+`
		 WHERE import_batch_guid = $1 AND record_index = $2
		 RETURNING `+recordColumns,
		args...,
	)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportBatchRecord{}, domain.NewNotFoundError("import batch record", domain.RecordKey(batchGUID, index))
		}
		return domain.ImportBatchRecord{}, fmt.Errorf("failed to update import batch record: %w", err)
	}
	return record, nil
}

func (r *recordRepository) NextIndex(ctx context.Context, batchGUID uuid.UUID) (int, error) {
	var next int
	err := r.pool.QueryRow(
		ctx,
		`SELECT coalesce(max(record_index) + 1, 0) FROM import_batch_records WHERE import_batch_guid = $1`,
		batchGUID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next record index: %w", err)
	}
	return next, nil
}

func scanRecord(row pgx.Row) (domain.ImportBatchRecord, error) {
	var (
		record    domain.ImportBatchRecord
		dataType  string
		status    string
		payload   []byte
		notes     []byte
		dataEntry []byte
	)
	err := row.Scan(
		&record.ImportBatchGUID,
		&record.Index,
		&dataType,
		&payload,
		&status,
		&notes,
		&dataEntry,
		&record.ProviderIDs,
		&record.DiscardReason,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return domain.ImportBatchRecord{}, err
	}

	record.DataType = domain.BatchDataType(dataType)
	record.Status = domain.RecordStatus(status)
	record.Payload = payload
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &record.Notes); err != nil {
			return domain.ImportBatchRecord{}, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
	}
	if len(dataEntry) > 0 {
		var entry domain.DataEntryPayload
		if err := json.Unmarshal(dataEntry, &entry); err != nil {
			return domain.ImportBatchRecord{}, fmt.Errorf("failed to unmarshal data entry: %w", err)
		}
		record.DataEntry = &entry
	}
	return record, nil
}
