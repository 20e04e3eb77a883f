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

const batchColumns = `guid, organization_id, facility_id, source, source_ident, data_type,
	parse_options, status, assigned_to, template_guid, requires_data_entry,
	discard_reason, payload, created_at, updated_at, completed_at`

type batchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository wires a batch repository backed by pgxpool.
func NewBatchRepository(pool *pgxpool.Pool) BatchRepository {
	return &batchRepository{pool: pool}
}

func (r *batchRepository) Create(ctx context.Context, batch domain.ImportBatch) (domain.ImportBatch, error) {
	parseOptions, err := json.Marshal(batch.ParseOptions)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to marshal parse options: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO import_batches (guid, organization_id, facility_id, source, source_ident,
			data_type, parse_options, status, assigned_to, template_guid, requires_data_entry,
			discard_reason, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+batchColumns,
		batch.GUID,
		batch.OrganizationID,
		batch.FacilityID,
		string(batch.Source),
		batch.SourceIdent,
		string(batch.DataType),
		parseOptions,
		string(batch.Status),
		batch.AssignedTo,
		batch.TemplateGUID,
		batch.RequiresDataEntry,
		batch.DiscardReason,
		[]byte(batch.Payload),
	)

	created, err := scanBatch(row)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to create import batch: %w", err)
	}
	return created, nil
}

func (r *batchRepository) Get(ctx context.Context, guid uuid.UUID) (domain.ImportBatch, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+batchColumns+` FROM import_batches WHERE guid = $1`,
		guid,
	)

	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportBatch{}, domain.NewNotFoundError("import batch", guid.String())
		}
		return domain.ImportBatch{}, fmt.Errorf("failed to get import batch: %w", err)
	}
	return batch, nil
}

func (r *batchRepository) List(ctx context.Context, organizationID uuid.UUID, statuses []domain.BatchStatus, limit, offset int) ([]domain.ImportBatch, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + batchColumns + ` FROM import_batches WHERE organization_id = $1`
	args := []any{organizationID}
	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, status := range statuses {
			raw[i] = string(status)
		}
		args = append(args, raw)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.ImportBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func (r *batchRepository) Update(ctx context.Context, guid uuid.UUID, update BatchUpdate) (domain.ImportBatch, error) {
	sets := []string{"updated_at = now()"}
	args := []any{guid}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.AssignedTo != nil {
		add("assigned_to", *update.AssignedTo)
	}
	if update.FacilityID != nil {
		add("facility_id", *update.FacilityID)
	}
	if update.TemplateGUID != nil {
		add("template_guid", *update.TemplateGUID)
	}
	if update.DiscardReason != nil {
		add("discard_reason", *update.DiscardReason)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE import_batches SET `+strings.Join(sets, ", ")+` WHERE guid = $1 RETURNING `+batchColumns,
		args...,
	)

	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportBatch{}, domain.NewNotFoundError("import batch", guid.String())
		}
		return domain.ImportBatch{}, fmt.Errorf("failed to update import batch: %w", err)
	}
	return batch, nil
}

func scanBatch(row pgx.Row) (domain.ImportBatch, error) {
	var (
		batch        domain.ImportBatch
		source       string
		dataType     string
		status       string
		parseOptions []byte
		payload      []byte
	)
	err := row.Scan(
		&batch.GUID,
		&batch.OrganizationID,
		&batch.FacilityID,
		&source,
		&batch.SourceIdent,
		&dataType,
		&parseOptions,
		&status,
		&batch.AssignedTo,
		&batch.TemplateGUID,
		&batch.RequiresDataEntry,
		&batch.DiscardReason,
		&payload,
		&batch.CreatedAt,
		&batch.UpdatedAt,
		&batch.CompletedAt,
	)
	if err != nil {
		return domain.ImportBatch{}, err
	}

	batch.Source = domain.BatchSource(source)
	batch.DataType = domain.BatchDataType(dataType)
	batch.Status = domain.BatchStatus(status)
	batch.Payload = payload
	if len(parseOptions) > 0 {
		if err := json.Unmarshal(parseOptions, &batch.ParseOptions); err != nil {
			return domain.ImportBatch{}, fmt.Errorf("failed to unmarshal parse options: %w", err)
		}
	}
	return batch, nil
}
