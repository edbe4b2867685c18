package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is a single request audit log entry, written asynchronously
// after each gateway attempt so the hot path never blocks on the database.
type UsageRecord struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	RequestID      uuid.UUID    `db:"request_id" json:"request_id"`
	UserID         uuid.UUID    `db:"user_id" json:"user_id"`
	AgentID        *uuid.UUID   `db:"agent_id" json:"agent_id,omitempty"`
	IdempotencyKey string       `db:"idempotency_key" json:"idempotency_key"`
	Provider       ProviderName `db:"provider" json:"provider"`
	Model          string       `db:"model" json:"model"`
	Tokens         int          `db:"tokens" json:"tokens"`
	ResponseTimeMS int64        `db:"response_time_ms" json:"response_time_ms"`
	StatusCode     int          `db:"status_code" json:"status_code"`
	ErrorMessage   string       `db:"error_message" json:"error_message"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
