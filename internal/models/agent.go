package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a named AI personality: a system prompt routed to a default
// provider/model pair, priced in credits per invocation.
type Agent struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	Slug         string       `db:"slug" json:"slug"`
	Name         string       `db:"name" json:"name"`
	SystemPrompt string       `db:"system_prompt" json:"-"`
	Provider     ProviderName `db:"provider" json:"provider"`
	Model        string       `db:"model" json:"model"`
	CreditCost   int          `db:"credit_cost" json:"credit_cost"`
	Enabled      bool         `db:"enabled" json:"enabled"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}
