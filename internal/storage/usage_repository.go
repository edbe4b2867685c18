package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

// UsageRepository writes the usage_records audit trail. Inserts come
// from the usage queue worker, never from the request path.
type UsageRepository struct {
	db *DB
}

func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const usageInsert = `
	INSERT INTO usage_records
	  (id, request_id, user_id, agent_id, idempotency_key, provider, model,
	   tokens, response_time_ms, status_code, error_message, created_at)
	VALUES
	  (:id, :request_id, :user_id, :agent_id, :idempotency_key, :provider, :model,
	   :tokens, :response_time_ms, :status_code, :error_message, :created_at)`

// Create inserts one record.
func (r *UsageRepository) Create(ctx context.Context, record *models.UsageRecord) error {
	prepareUsageRecord(record)
	if _, err := r.db.conn.NamedExecContext(ctx, usageInsert, record); err != nil {
		return fmt.Errorf("insert usage record %s: %w", record.RequestID, err)
	}
	return nil
}

// CreateBatch inserts records in one transaction. All or nothing; the
// worker falls back to per-record inserts when a batch fails.
func (r *UsageRepository) CreateBatch(ctx context.Context, records []*models.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage batch: %w", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		prepareUsageRecord(record)
		if _, err := tx.NamedExecContext(ctx, usageInsert, record); err != nil {
			return fmt.Errorf("insert usage record %s: %w", record.RequestID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit usage batch: %w", err)
	}
	return nil
}

// ListByUser returns a user's recent request history, newest first.
func (r *UsageRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []models.UsageRecord
	query := `
		SELECT id, request_id, user_id, agent_id, idempotency_key, provider, model,
		       tokens, response_time_ms, status_code, error_message, created_at
		FROM usage_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	if err := r.db.conn.SelectContext(ctx, &records, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list usage for %s: %w", userID, err)
	}
	return records, nil
}

func prepareUsageRecord(record *models.UsageRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}
