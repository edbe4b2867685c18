package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

const keyLookupPattern = `SELECT id, user_id, amount, type, description, idempotency_key, balance_after, created_at FROM credit_transactions WHERE idempotency_key`

func newMockLedger(t *testing.T) (*LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := &DB{conn: sqlx.NewDb(mockDB, "sqlmock")}
	return NewLedgerRepository(db), mock
}

func transactionRow(txn *models.CreditTransaction) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "amount", "type", "description",
		"idempotency_key", "balance_after", "created_at",
	}).AddRow(txn.ID, txn.UserID, txn.Amount, txn.Type, txn.Description,
		txn.IdempotencyKey, txn.BalanceAfter, txn.CreatedAt)
}

func TestDeduct_Success(t *testing.T) {
	repo, mock := newMockLedger(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(keyLookupPattern).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`UPDATE credit_balances`).
		WithArgs(userID, 2).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(8))
	mock.ExpectExec(`INSERT INTO credit_transactions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.Deduct(context.Background(), DeductParams{
		UserID:         userID,
		Amount:         2,
		IdempotencyKey: "usage:k1",
	})
	require.NoError(t, err)

	assert.True(t, outcome.Deducted)
	assert.False(t, outcome.Replayed)
	assert.Equal(t, 8, outcome.NewBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A duplicate request can lose the balance race: the winner drains the
// balance and commits while the duplicate waits on the row lock, so the
// duplicate's conditional UPDATE matches nothing. The duplicate must
// then replay the winner's outcome, not report insufficient funds.
func TestDeduct_DuplicateLosingBalanceRaceReplays(t *testing.T) {
	repo, mock := newMockLedger(t)
	userID := uuid.New()
	winner := &models.CreditTransaction{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         -1,
		Type:           models.TransactionUsage,
		IdempotencyKey: "usage:k2",
		BalanceAfter:   0,
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectBegin()
	// Replay check: the winner has not committed yet.
	mock.ExpectQuery(keyLookupPattern).WillReturnError(sql.ErrNoRows)
	// Conditional UPDATE re-evaluates after the winner's commit; the
	// balance no longer covers the amount.
	mock.ExpectQuery(`UPDATE credit_balances`).
		WithArgs(userID, 1).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	// Post-rollback key lookup now sees the winner's committed row.
	mock.ExpectQuery(keyLookupPattern).
		WithArgs("usage:k2").
		WillReturnRows(transactionRow(winner))

	outcome, err := repo.Deduct(context.Background(), DeductParams{
		UserID:         userID,
		Amount:         1,
		IdempotencyKey: "usage:k2",
	})
	require.NoError(t, err)

	assert.True(t, outcome.Deducted)
	assert.True(t, outcome.Replayed)
	assert.Equal(t, 0, outcome.NewBalance)
	require.NotNil(t, outcome.Transaction)
	assert.Equal(t, winner.ID, outcome.Transaction.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduct_InsufficientFunds(t *testing.T) {
	repo, mock := newMockLedger(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(keyLookupPattern).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`UPDATE credit_balances`).
		WithArgs(userID, 5).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	// No winner row either; this is a genuine shortfall.
	mock.ExpectQuery(keyLookupPattern).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT balance FROM credit_balances`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(3))

	outcome, err := repo.Deduct(context.Background(), DeductParams{
		UserID:         userID,
		Amount:         5,
		IdempotencyKey: "usage:k3",
	})
	require.NoError(t, err)

	assert.False(t, outcome.Deducted)
	assert.Equal(t, 3, outcome.NewBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduct_ReplaysCommittedKey(t *testing.T) {
	repo, mock := newMockLedger(t)
	userID := uuid.New()
	prior := &models.CreditTransaction{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         -2,
		Type:           models.TransactionUsage,
		IdempotencyKey: "usage:k4",
		BalanceAfter:   6,
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(keyLookupPattern).
		WithArgs("usage:k4").
		WillReturnRows(transactionRow(prior))
	mock.ExpectRollback()

	outcome, err := repo.Deduct(context.Background(), DeductParams{
		UserID:         userID,
		Amount:         2,
		IdempotencyKey: "usage:k4",
	})
	require.NoError(t, err)

	assert.True(t, outcome.Deducted)
	assert.True(t, outcome.Replayed)
	assert.Equal(t, 6, outcome.NewBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}
