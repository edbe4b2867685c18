// Package ledger implements the credit accounting service: eligibility
// checks, atomic deductions, grants and the trial bootstrap. All state
// lives in the storage layer; this package adds the business rules.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/storage"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// ErrAgentNotFound is re-exported so callers need not import storage.
var ErrAgentNotFound = storage.ErrAgentNotFound

// AgentStore reads the agent catalog.
type AgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
}

// LedgerStore persists balances and transactions.
type LedgerStore interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	Deduct(ctx context.Context, p storage.DeductParams) (*storage.DeductOutcome, error)
	AddCredits(ctx context.Context, p storage.GrantParams) (*storage.GrantOutcome, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error)
}

// DeductResult reports a deduction attempt to the orchestrator.
type DeductResult struct {
	Success       bool      `json:"success"`
	Replayed      bool      `json:"replayed"`
	CreditsCost   int       `json:"credits_cost"`
	NewBalance    int       `json:"new_balance"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty"`
	Blocker       string    `json:"blocker,omitempty"`
}

// Service is the credit ledger.
type Service struct {
	agents     AgentStore
	store      LedgerStore
	trialGrant int
	logger     *utils.Logger
}

// NewService wires the ledger. trialGrant is the number of credits a
// brand-new user receives on first contact.
func NewService(agents AgentStore, store LedgerStore, trialGrant int, logger *utils.Logger) *Service {
	if logger == nil {
		logger = utils.NewLogger("ledger")
	}
	return &Service{
		agents:     agents,
		store:      store,
		trialGrant: trialGrant,
		logger:     logger,
	}
}

// CheckEligibility is a pure read: it reports whether the user could
// invoke the agent right now, without reserving anything. The answer can
// go stale immediately; Deduct re-checks atomically.
func (s *Service) CheckEligibility(ctx context.Context, userID, agentID uuid.UUID) (*models.AgentEligibility, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	available, err := s.availableBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	elig := &models.AgentEligibility{
		Required:  agent.CreditCost,
		Available: available,
	}
	if !agent.Enabled {
		elig.Blockers = append(elig.Blockers, models.BlockerAgentDisabled)
	}
	if available < agent.CreditCost {
		elig.Blockers = append(elig.Blockers, models.BlockerInsufficientCredits)
	}
	elig.CanUse = len(elig.Blockers) == 0
	return elig, nil
}

// Deduct charges the agent's cost against the user's balance. The
// atomicity and idempotency guarantees live in the storage layer; this
// method adds the disabled-agent gate and maps outcomes.
func (s *Service) Deduct(ctx context.Context, userID uuid.UUID, agent *models.Agent, idempotencyKey string) (*DeductResult, error) {
	if !agent.Enabled {
		return &DeductResult{
			Success:     false,
			CreditsCost: agent.CreditCost,
			Blocker:     models.BlockerAgentDisabled,
		}, nil
	}

	outcome, err := s.store.Deduct(ctx, storage.DeductParams{
		UserID:         userID,
		Amount:         agent.CreditCost,
		IdempotencyKey: idempotencyKey,
		Description:    fmt.Sprintf("usage: agent %s", agent.Slug),
	})
	if err != nil {
		return nil, fmt.Errorf("deduct for agent %s: %w", agent.Slug, err)
	}

	result := &DeductResult{
		Success:     outcome.Deducted,
		Replayed:    outcome.Replayed,
		CreditsCost: agent.CreditCost,
		NewBalance:  outcome.NewBalance,
	}
	if outcome.Transaction != nil {
		result.TransactionID = outcome.Transaction.ID
	}
	if !outcome.Deducted {
		result.Blocker = models.BlockerInsufficientCredits
	}

	if outcome.Replayed {
		s.logger.Info("deduct replayed", "user", userID, "key", idempotencyKey)
	}
	return result, nil
}

// AddCredits applies a grant of the given type.
func (s *Service) AddCredits(ctx context.Context, userID uuid.UUID, amount int, txType models.TransactionType, idempotencyKey, description string) (*storage.GrantOutcome, error) {
	outcome, err := s.store.AddCredits(ctx, storage.GrantParams{
		UserID:         userID,
		Amount:         amount,
		Type:           txType,
		IdempotencyKey: idempotencyKey,
		Description:    description,
	})
	if err != nil {
		return nil, fmt.Errorf("add %d credits to %s: %w", amount, userID, err)
	}
	if !outcome.Replayed {
		s.logger.Info("credits granted", "user", userID, "amount", amount, "type", string(txType))
	}
	return outcome, nil
}

// GrantTrial gives a new user their starter credits. The fixed key
// "trial:<user-id>" makes the grant a no-op on every call after the
// first.
func (s *Service) GrantTrial(ctx context.Context, userID uuid.UUID) (*storage.GrantOutcome, error) {
	return s.AddCredits(ctx, userID, s.trialGrant, models.TransactionTrial,
		IdempotencyKey("trial", userID.String()), "trial starter credits")
}

// Balance returns the user's current balance, treating a missing row as
// zero.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.availableBalance(ctx, userID)
}

// Transactions returns the user's ledger history.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error) {
	return s.store.ListTransactions(ctx, userID, limit, offset)
}

func (s *Service) availableBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	balance, err := s.store.GetBalance(ctx, userID)
	if errors.Is(err, storage.ErrBalanceNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance for %s: %w", userID, err)
	}
	return balance.Balance, nil
}
