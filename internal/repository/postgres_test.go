package repository

import (
	"context"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/coin-ledger/internal/model"
)

// newTestPostgres подключается к БД из DATABASE_URI; без неё тест пропускается.
func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("DATABASE_URI")
	if dsn == "" {
		t.Skip("DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

// testAccountID выдаёт уникальный аккаунт, чтобы тесты не пересекались по данным.
func testAccountID() int64 {
	return time.Now().UnixNano()
}

func TestPostgresWithdrawalLifecycle(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	account := testAccountID()

	_, err := repo.Credit(ctx, account, 500, "seed")
	require.NoError(t, err)

	w, err := repo.CreateWithdrawal(ctx, newBankWithdrawal(account, 200))
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusPending, w.Status)
	assert.Equal(t, "HDFC0001234", w.Details.IFSC)

	balance, err := repo.GetBalance(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)

	updated, tr, err := repo.ProcessWithdrawal(ctx, model.ProcessCommand{
		WithdrawalID:    w.ID,
		Status:          model.WithdrawalStatusRejected,
		RejectionReason: "bad account",
	})
	require.NoError(t, err)
	assert.True(t, tr.Compensate)
	assert.NotNil(t, updated.ProcessedAt)

	balance, err = repo.GetBalance(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	_, _, err = repo.ProcessWithdrawal(ctx, model.ProcessCommand{
		WithdrawalID: w.ID,
		Status:       model.WithdrawalStatusCompleted,
	})
	require.ErrorIs(t, err, model.ErrInvalidStatusTransition)

	txs, err := repo.ListTransactions(ctx, account, 0)
	require.NoError(t, err)

	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	assert.Equal(t, balance, sum)
}

func TestPostgresDebitInsufficient(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	account := testAccountID()

	_, err := repo.Debit(ctx, account, 10, "checkout")
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	_, err = repo.Credit(ctx, account, 5, "seed")
	require.NoError(t, err)

	_, err = repo.Debit(ctx, account, 10, "checkout")
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	balance, err := repo.GetBalance(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}

func TestPostgresCreditOverflow(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	account := testAccountID()

	_, err := repo.Credit(ctx, account, math.MaxInt64, "seed")
	require.NoError(t, err)

	_, err = repo.Credit(ctx, account, 1, "overflow")
	require.ErrorIs(t, err, model.ErrBalanceOverflow)
	assert.NotErrorIs(t, err, model.ErrStorage)

	balance, err := repo.GetBalance(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), balance)
}

func TestPostgresConcurrentWithdrawals(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	account := testAccountID()

	_, err := repo.Credit(ctx, account, 300, "seed")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.CreateWithdrawal(ctx, newBankWithdrawal(account, 100))
		}()
	}
	wg.Wait()

	balance, err := repo.GetBalance(ctx, account)
	require.NoError(t, err)
	assert.Zero(t, balance)

	list, err := repo.ListWithdrawals(ctx, account)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
