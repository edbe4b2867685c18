package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTrial        TransactionType = "trial"
	TransactionPurchase     TransactionType = "purchase"
	TransactionSubscription TransactionType = "subscription"
	TransactionTopup        TransactionType = "topup"
	TransactionUsage        TransactionType = "usage"
	TransactionRollover     TransactionType = "rollover"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTrial, TransactionPurchase, TransactionSubscription,
		TransactionTopup, TransactionUsage, TransactionRollover:
		return true
	}
	return false
}

// CreditBalance is the authoritative per-user balance. It is mutated
// exclusively through ledger operations and never goes negative: a
// deduction fails instead.
type CreditBalance struct {
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Balance     int       `db:"balance" json:"balance"`
	LastUpdated time.Time `db:"last_updated" json:"last_updated"`
}

// CreditTransaction is an immutable ledger log entry. Amount is signed:
// positive for grants, negative for usage debits. At most one row ever
// exists per idempotency key; a replayed operation returns the prior row.
type CreditTransaction struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	Amount         int             `db:"amount" json:"amount"`
	Type           TransactionType `db:"type" json:"type"`
	Description    string          `db:"description" json:"description"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key"`
	BalanceAfter   int             `db:"balance_after" json:"balance_after"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Eligibility blocker identifiers returned by the ledger.
const (
	BlockerInsufficientCredits = "insufficient_credits"
	BlockerAgentDisabled       = "agent_disabled"
)

// AgentEligibility is a point-in-time, derived view of whether a user
// can invoke an agent. It is never stored.
type AgentEligibility struct {
	CanUse    bool     `json:"can_use"`
	Required  int      `json:"required"`
	Available int      `json:"available"`
	Blockers  []string `json:"blockers,omitempty"`
}
