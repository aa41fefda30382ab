// Package repository содержит реализации журнала монет: в PostgreSQL и в памяти процесса.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/coin-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// DefaultTransactionsLimit используется, если лимит выборки журнала не задан.
	DefaultTransactionsLimit = 50
	// MaxTransactionsLimit ограничивает выборку журнала сверху.
	MaxTransactionsLimit = 1000
)

// NormalizeLimit приводит лимит выборки журнала к допустимому диапазону.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultTransactionsLimit
	}
	if limit > MaxTransactionsLimit {
		return MaxTransactionsLimit
	}
	return limit
}

const withdrawalColumns = `id, account_id, amount, method, details, status, transaction_ref,
	admin_notes, rejection_reason, created_at, updated_at, processed_at`

const transactionColumns = `id, account_id, amount, kind, withdrawal_id, status, reason, created_at`

// PostgresRepository предоставляет доступ к журналу монет в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:        pool,
		retryDelays: []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return model.NewStorageError("ping", err)
	}
	return nil
}

// Credit начисляет монеты и добавляет запись вида earn. Аккаунт создаётся при первом начислении.
func (r *PostgresRepository) Credit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, model.ErrInvalidAmount
	}

	var res model.Transaction
	err := r.inTx(ctx, "credit", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, balance) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()`,
			accountID, amount,
		)
		if err != nil {
			return fmt.Errorf("upsert balance: %w", err)
		}

		res, err = insertTransaction(ctx, tx, model.Transaction{
			AccountID: accountID,
			Amount:    amount,
			Kind:      model.TransactionKindEarn,
			Status:    model.TransactionStatusCompleted,
			Reason:    reason,
		})
		return err
	})

	return res, err
}

// Debit списывает монеты и добавляет запись вида redeem.
// Списание выполняется условным UPDATE, поэтому баланс не может уйти в минус.
func (r *PostgresRepository) Debit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, model.ErrInvalidAmount
	}

	var res model.Transaction
	err := r.inTx(ctx, "debit", func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance - $2, updated_at = now()
			 WHERE id = $1 AND balance >= $2`,
			accountID, amount,
		)
		if err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return model.ErrInsufficientBalance
		}

		res, err = insertTransaction(ctx, tx, model.Transaction{
			AccountID: accountID,
			Amount:    -amount,
			Kind:      model.TransactionKindRedeem,
			Status:    model.TransactionStatusCompleted,
			Reason:    reason,
		})
		return err
	})

	return res, err
}

// GetBalance возвращает баланс аккаунта. Для неизвестного аккаунта возвращается 0.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, model.NewStorageError("get balance", err)
	}
	return balance, nil
}

// ListTransactions возвращает записи журнала аккаунта от новых к старым.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		accountID, NormalizeLimit(limit),
	)
	if err != nil {
		return nil, model.NewStorageError("select transactions", err)
	}
	defer rows.Close()

	res := make([]model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, model.NewStorageError("scan transaction", err)
		}
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, model.NewStorageError("rows error", err)
	}

	return res, nil
}

// CreateWithdrawal создаёт запрос на вывод. Использует блокировку строки аккаунта для сериализации списаний.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, w model.Withdrawal) (model.Withdrawal, error) {
	if w.Amount <= 0 {
		return model.Withdrawal{}, model.ErrInvalidAmount
	}

	var created model.Withdrawal
	err := r.inTx(ctx, "create withdrawal", func(tx pgx.Tx) error {
		// Блокируем строку аккаунта, чтобы параллельные выводы не превысили баланс.
		var balance int64
		err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, w.AccountID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrInsufficientBalance
			}
			return fmt.Errorf("lock account for update: %w", err)
		}

		if balance < w.Amount {
			return model.ErrInsufficientBalance
		}

		_, err = tx.Exec(ctx,
			`UPDATE accounts SET balance = balance - $2, updated_at = now() WHERE id = $1`,
			w.AccountID, w.Amount,
		)
		if err != nil {
			return fmt.Errorf("reserve balance: %w", err)
		}

		row := tx.QueryRow(ctx,
			`INSERT INTO withdrawals (account_id, amount, method, details, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+withdrawalColumns,
			w.AccountID, w.Amount, string(w.Method), w.Details, string(model.WithdrawalStatusPending),
		)
		created, err = scanWithdrawal(row)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}

		id := created.ID
		_, err = insertTransaction(ctx, tx, model.Transaction{
			AccountID:    created.AccountID,
			Amount:       -created.Amount,
			Kind:         model.TransactionKindWithdrawalPending,
			WithdrawalID: &id,
			Status:       model.TransactionStatusPending,
			Reason:       "withdrawal requested",
		})
		return err
	})

	return created, err
}

// GetWithdrawal возвращает запрос на вывод по идентификатору.
func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id int64) (model.Withdrawal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)

	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Withdrawal{}, model.ErrRequestNotFound
		}
		return model.Withdrawal{}, model.NewStorageError("get withdrawal", err)
	}

	return w, nil
}

// ListWithdrawals возвращает запросы аккаунта от новых к старым.
func (r *PostgresRepository) ListWithdrawals(ctx context.Context, accountID int64) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+`
		 FROM withdrawals
		 WHERE account_id = $1
		 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, model.NewStorageError("select withdrawals", err)
	}
	defer rows.Close()

	res := make([]model.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, model.NewStorageError("scan withdrawal", err)
		}
		res = append(res, w)
	}

	if err := rows.Err(); err != nil {
		return nil, model.NewStorageError("rows error", err)
	}

	return res, nil
}

// ProcessWithdrawal применяет действие оператора. Строка запроса блокируется,
// поэтому повторная обработка видит уже конечный статус и не компенсирует сумму дважды.
func (r *PostgresRepository) ProcessWithdrawal(ctx context.Context, cmd model.ProcessCommand) (model.Withdrawal, model.Transition, error) {
	var (
		updated model.Withdrawal
		applied model.Transition
	)

	err := r.inTx(ctx, "process withdrawal", func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`,
			cmd.WithdrawalID,
		)
		w, err := scanWithdrawal(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrRequestNotFound
			}
			return fmt.Errorf("lock withdrawal for update: %w", err)
		}

		tr, err := model.NextTransition(w.Status, cmd.Status)
		if err != nil {
			return err
		}

		applyCommand(&w, cmd, time.Now().UTC())

		_, err = tx.Exec(ctx,
			`UPDATE withdrawals
			 SET status = $2, transaction_ref = $3, admin_notes = $4, rejection_reason = $5,
			     updated_at = $6, processed_at = $7
			 WHERE id = $1`,
			w.ID, string(w.Status), w.TransactionRef, w.AdminNotes, w.RejectionReason, w.UpdatedAt, w.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE transactions SET kind = $2, status = $3
			 WHERE withdrawal_id = $1 AND kind <> $4`,
			w.ID, string(tr.Kind), string(model.TransactionStatusFor(tr.To)), string(model.TransactionKindWithdrawalReversal),
		)
		if err != nil {
			return fmt.Errorf("mirror transaction status: %w", err)
		}

		if tr.Compensate {
			_, err = tx.Exec(ctx,
				`UPDATE accounts SET balance = balance + $2, updated_at = now() WHERE id = $1`,
				w.AccountID, w.Amount,
			)
			if err != nil {
				return fmt.Errorf("compensate balance: %w", err)
			}

			id := w.ID
			_, err = insertTransaction(ctx, tx, model.Transaction{
				AccountID:    w.AccountID,
				Amount:       w.Amount,
				Kind:         model.TransactionKindWithdrawalReversal,
				WithdrawalID: &id,
				Status:       model.TransactionStatusCompleted,
				Reason:       w.RejectionReason,
			})
			if err != nil {
				return err
			}
		}

		updated, applied = w, tr
		return nil
	})
	if err != nil {
		return model.Withdrawal{}, model.Transition{}, err
	}

	return updated, applied, nil
}

// inTx выполняет fn в транзакции и повторяет её при временных сбоях.
// Доменные ошибки возвращаются как есть, остальные оборачиваются в StorageError.
func (r *PostgresRepository) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if isDomainError(err) {
		return err
	}

	// Нарушение CHECK (balance >= 0) означает нехватку средств, переполнение bigint означает слишком большую сумму.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.CheckViolation:
			return model.ErrInsufficientBalance
		case pgerrcode.NumericValueOutOfRange:
			return model.ErrBalanceOverflow
		}
	}

	return model.NewStorageError(op, err)
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.retryDelays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.retryDelays) {
			break
		}

		timer := time.NewTimer(r.retryDelays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

func isDomainError(err error) bool {
	for _, target := range []error{
		model.ErrInvalidAmount,
		model.ErrInvalidMethodDetails,
		model.ErrInsufficientBalance,
		model.ErrRequestNotFound,
		model.ErrInvalidStatusTransition,
		model.ErrMissingRejectionReason,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t model.Transaction) (model.Transaction, error) {
	row := tx.QueryRow(ctx,
		`INSERT INTO transactions (account_id, amount, kind, withdrawal_id, status, reason)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+transactionColumns,
		t.AccountID, t.Amount, string(t.Kind), t.WithdrawalID, string(t.Status), t.Reason,
	)

	res, err := scanTransaction(row)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return res, nil
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var (
		t      model.Transaction
		kind   string
		status string
	)

	err := row.Scan(&t.ID, &t.AccountID, &t.Amount, &kind, &t.WithdrawalID, &status, &t.Reason, &t.CreatedAt)
	if err != nil {
		return model.Transaction{}, err
	}

	t.Kind = model.TransactionKind(kind)
	t.Status = model.TransactionStatus(status)
	return t, nil
}

func scanWithdrawal(row pgx.Row) (model.Withdrawal, error) {
	var (
		w      model.Withdrawal
		method string
		status string
	)

	err := row.Scan(
		&w.ID, &w.AccountID, &w.Amount, &method, &w.Details, &status, &w.TransactionRef,
		&w.AdminNotes, &w.RejectionReason, &w.CreatedAt, &w.UpdatedAt, &w.ProcessedAt,
	)
	if err != nil {
		return model.Withdrawal{}, err
	}

	w.Method = model.PayoutMethod(method)
	w.Status = model.WithdrawalStatus(status)
	return w, nil
}
