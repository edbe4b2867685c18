package storage

import "errors"

var (
	// ErrAgentNotFound is returned when no agent matches the given id or slug.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrBalanceNotFound is returned when a user has no credit balance row.
	ErrBalanceNotFound = errors.New("credit balance not found")

	// ErrTransactionNotFound is returned when no ledger entry matches.
	ErrTransactionNotFound = errors.New("transaction not found")
)
