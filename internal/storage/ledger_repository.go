package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

// LedgerRepository owns the credit_balances and credit_transactions
// tables. Two invariants are enforced here and nowhere else:
//
//   - a balance never goes negative: deductions are a single conditional
//     UPDATE guarded by balance >= amount, never a read-then-write
//   - at most one transaction row exists per idempotency key, backed by
//     a unique constraint; a replay returns the original row's outcome
type LedgerRepository struct {
	db *DB
}

func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const transactionColumns = `id, user_id, amount, type, description, idempotency_key, balance_after, created_at`

// DeductParams describes one usage debit.
type DeductParams struct {
	UserID         uuid.UUID
	Amount         int
	IdempotencyKey string
	Description    string
}

// DeductOutcome is the result of a deduction attempt. Deducted false
// with a nil error means insufficient funds, which is a business outcome
// rather than a failure.
type DeductOutcome struct {
	Deducted    bool
	Replayed    bool
	NewBalance  int
	Transaction *models.CreditTransaction
}

// GrantParams describes one credit grant.
type GrantParams struct {
	UserID         uuid.UUID
	Amount         int
	Type           models.TransactionType
	IdempotencyKey string
	Description    string
}

// GrantOutcome is the result of a grant.
type GrantOutcome struct {
	Replayed    bool
	NewBalance  int
	Transaction *models.CreditTransaction
}

// GetBalance returns the user's balance row, or ErrBalanceNotFound when
// the user has never been granted credits.
func (r *LedgerRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	query := `SELECT user_id, balance, last_updated FROM credit_balances WHERE user_id = $1`
	if err := r.db.conn.GetContext(ctx, &balance, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("get balance for %s: %w", userID, err)
	}
	return &balance, nil
}

// Deduct atomically subtracts credits and records the ledger entry. The
// conditional UPDATE and the transaction INSERT share one database
// transaction, so a lost insert race rolls the balance change back too.
func (r *LedgerRepository) Deduct(ctx context.Context, p DeductParams) (*DeductOutcome, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("deduct amount must be positive, got %d", p.Amount)
	}
	if p.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin deduct tx: %w", err)
	}
	defer tx.Rollback()

	if prior, err := r.findByKeyTx(ctx, tx, p.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return &DeductOutcome{
			Deducted:    true,
			Replayed:    true,
			NewBalance:  prior.BalanceAfter,
			Transaction: prior,
		}, nil
	}

	var newBalance int
	err = tx.GetContext(ctx, &newBalance,
		`UPDATE credit_balances
		 SET balance = balance - $2, last_updated = NOW()
		 WHERE user_id = $1 AND balance >= $2
		 RETURNING balance`,
		p.UserID, p.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		// Either no balance row or not enough credits. A concurrent
		// duplicate holding the same key may have drained the balance
		// while we waited on the row lock, so check the key once more
		// before calling this a failure; the duplicate must replay the
		// winner's outcome, not report insufficient funds.
		if rerr := tx.Rollback(); rerr != nil {
			return nil, fmt.Errorf("rollback insufficient deduct: %w", rerr)
		}
		winner, werr := r.GetTransactionByKey(ctx, p.IdempotencyKey)
		if werr == nil {
			return &DeductOutcome{
				Deducted:    true,
				Replayed:    true,
				NewBalance:  winner.BalanceAfter,
				Transaction: winner,
			}, nil
		}
		if !errors.Is(werr, ErrTransactionNotFound) {
			return nil, werr
		}

		available := 0
		berr := r.db.conn.GetContext(ctx, &available,
			`SELECT balance FROM credit_balances WHERE user_id = $1`, p.UserID)
		if berr != nil && !errors.Is(berr, sql.ErrNoRows) {
			return nil, fmt.Errorf("read balance for %s: %w", p.UserID, berr)
		}
		return &DeductOutcome{Deducted: false, NewBalance: available}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("deduct %d from %s: %w", p.Amount, p.UserID, err)
	}

	txn := &models.CreditTransaction{
		ID:             uuid.New(),
		UserID:         p.UserID,
		Amount:         -p.Amount,
		Type:           models.TransactionUsage,
		Description:    p.Description,
		IdempotencyKey: p.IdempotencyKey,
		BalanceAfter:   newBalance,
		CreatedAt:      time.Now().UTC(),
	}

	inserted, err := r.insertTransactionTx(ctx, tx, txn)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// A concurrent request with the same key won the insert. Roll our
		// balance change back and replay the winner's outcome.
		if err := tx.Rollback(); err != nil {
			return nil, fmt.Errorf("rollback lost deduct race: %w", err)
		}
		winner, err := r.GetTransactionByKey(ctx, p.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("read winning deduct for key %s: %w", p.IdempotencyKey, err)
		}
		return &DeductOutcome{
			Deducted:    true,
			Replayed:    true,
			NewBalance:  winner.BalanceAfter,
			Transaction: winner,
		}, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deduct: %w", err)
	}

	return &DeductOutcome{Deducted: true, NewBalance: newBalance, Transaction: txn}, nil
}

// AddCredits grants credits, creating the balance row on first grant.
func (r *LedgerRepository) AddCredits(ctx context.Context, p GrantParams) (*GrantOutcome, error) {
	if p.Amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", p.Amount)
	}
	if p.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("invalid transaction type %q", p.Type)
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grant tx: %w", err)
	}
	defer tx.Rollback()

	if prior, err := r.findByKeyTx(ctx, tx, p.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return &GrantOutcome{Replayed: true, NewBalance: prior.BalanceAfter, Transaction: prior}, nil
	}

	var newBalance int
	err = tx.GetContext(ctx, &newBalance,
		`INSERT INTO credit_balances (user_id, balance, last_updated)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id)
		 DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, last_updated = NOW()
		 RETURNING balance`,
		p.UserID, p.Amount)
	if err != nil {
		return nil, fmt.Errorf("grant %d to %s: %w", p.Amount, p.UserID, err)
	}

	txn := &models.CreditTransaction{
		ID:             uuid.New(),
		UserID:         p.UserID,
		Amount:         p.Amount,
		Type:           p.Type,
		Description:    p.Description,
		IdempotencyKey: p.IdempotencyKey,
		BalanceAfter:   newBalance,
		CreatedAt:      time.Now().UTC(),
	}

	inserted, err := r.insertTransactionTx(ctx, tx, txn)
	if err != nil {
		return nil, err
	}
	if !inserted {
		if err := tx.Rollback(); err != nil {
			return nil, fmt.Errorf("rollback lost grant race: %w", err)
		}
		winner, err := r.GetTransactionByKey(ctx, p.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("read winning grant for key %s: %w", p.IdempotencyKey, err)
		}
		return &GrantOutcome{Replayed: true, NewBalance: winner.BalanceAfter, Transaction: winner}, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grant: %w", err)
	}

	return &GrantOutcome{NewBalance: newBalance, Transaction: txn}, nil
}

// GetTransactionByKey looks up a ledger entry by idempotency key.
func (r *LedgerRepository) GetTransactionByKey(ctx context.Context, key string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	query := fmt.Sprintf(`SELECT %s FROM credit_transactions WHERE idempotency_key = $1`, transactionColumns)
	if err := r.db.conn.GetContext(ctx, &txn, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction by key: %w", err)
	}
	return &txn, nil
}

// ListTransactions returns a user's ledger history, newest first.
func (r *LedgerRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txns []models.CreditTransaction
	query := fmt.Sprintf(
		`SELECT %s FROM credit_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		transactionColumns)
	if err := r.db.conn.SelectContext(ctx, &txns, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", userID, err)
	}
	return txns, nil
}

func (r *LedgerRepository) findByKeyTx(ctx context.Context, tx *sqlx.Tx, key string) (*models.CreditTransaction, error) {
	var txn models.CreditTransaction
	query := fmt.Sprintf(`SELECT %s FROM credit_transactions WHERE idempotency_key = $1`, transactionColumns)
	err := tx.GetContext(ctx, &txn, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replay check for key %s: %w", key, err)
	}
	return &txn, nil
}

// insertTransactionTx writes a ledger entry. Returns false when the
// idempotency key already exists.
func (r *LedgerRepository) insertTransactionTx(ctx context.Context, tx *sqlx.Tx, txn *models.CreditTransaction) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions
		   (id, user_id, amount, type, description, idempotency_key, balance_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		txn.ID, txn.UserID, txn.Amount, txn.Type, txn.Description,
		txn.IdempotencyKey, txn.BalanceAfter, txn.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert transaction rows affected: %w", err)
	}
	return affected == 1, nil
}
