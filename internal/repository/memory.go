package repository

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/coin-ledger/internal/model"
)

// MemoryRepository хранит журнал монет в памяти процесса.
// Все операции выполняются под одной блокировкой, поэтому списание и компенсация атомарны.
type MemoryRepository struct {
	mu sync.Mutex

	balances     map[int64]int64
	transactions map[int64][]model.Transaction
	withdrawals  map[int64]*model.Withdrawal

	nextTxID         int64
	nextWithdrawalID int64

	now func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances:     make(map[int64]int64),
		transactions: make(map[int64][]model.Transaction),
		withdrawals:  make(map[int64]*model.Withdrawal),
		now:          time.Now,
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error {
	return nil
}

// Ping всегда успешен.
func (r *MemoryRepository) Ping(_ context.Context) error {
	return nil
}

// Credit начисляет монеты и добавляет запись вида earn.
func (r *MemoryRepository) Credit(_ context.Context, accountID, amount int64, reason string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, model.ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if amount > math.MaxInt64-r.balances[accountID] {
		return model.Transaction{}, model.ErrBalanceOverflow
	}

	r.balances[accountID] += amount

	return r.appendLocked(model.Transaction{
		AccountID: accountID,
		Amount:    amount,
		Kind:      model.TransactionKindEarn,
		Status:    model.TransactionStatusCompleted,
		Reason:    reason,
	}), nil
}

// Debit списывает монеты и добавляет запись вида redeem.
func (r *MemoryRepository) Debit(_ context.Context, accountID, amount int64, reason string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, model.ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.balances[accountID] < amount {
		return model.Transaction{}, model.ErrInsufficientBalance
	}

	r.balances[accountID] -= amount

	return r.appendLocked(model.Transaction{
		AccountID: accountID,
		Amount:    -amount,
		Kind:      model.TransactionKindRedeem,
		Status:    model.TransactionStatusCompleted,
		Reason:    reason,
	}), nil
}

// GetBalance возвращает баланс аккаунта. Для неизвестного аккаунта возвращается 0.
func (r *MemoryRepository) GetBalance(_ context.Context, accountID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.balances[accountID], nil
}

// ListTransactions возвращает записи журнала аккаунта от новых к старым.
func (r *MemoryRepository) ListTransactions(_ context.Context, accountID int64, limit int) ([]model.Transaction, error) {
	limit = NormalizeLimit(limit)

	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.transactions[accountID]
	res := make([]model.Transaction, 0, min(limit, len(src)))
	for i := len(src) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, cloneTransaction(src[i]))
	}

	return res, nil
}

// CreateWithdrawal резервирует сумму вывода и создаёт запрос вместе со связанной записью журнала.
func (r *MemoryRepository) CreateWithdrawal(_ context.Context, w model.Withdrawal) (model.Withdrawal, error) {
	if w.Amount <= 0 {
		return model.Withdrawal{}, model.ErrInvalidAmount
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.balances[w.AccountID] < w.Amount {
		return model.Withdrawal{}, model.ErrInsufficientBalance
	}

	r.balances[w.AccountID] -= w.Amount

	r.nextWithdrawalID++
	now := r.now()

	created := w
	created.ID = r.nextWithdrawalID
	created.Status = model.WithdrawalStatusPending
	created.CreatedAt = now
	created.UpdatedAt = now
	created.ProcessedAt = nil
	r.withdrawals[created.ID] = &created

	id := created.ID
	r.appendLocked(model.Transaction{
		AccountID:    created.AccountID,
		Amount:       -created.Amount,
		Kind:         model.TransactionKindWithdrawalPending,
		WithdrawalID: &id,
		Status:       model.TransactionStatusPending,
		Reason:       "withdrawal requested",
	})

	return created, nil
}

// GetWithdrawal возвращает запрос на вывод по идентификатору.
func (r *MemoryRepository) GetWithdrawal(_ context.Context, id int64) (model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return model.Withdrawal{}, model.ErrRequestNotFound
	}

	return cloneWithdrawal(*w), nil
}

// ListWithdrawals возвращает запросы аккаунта от новых к старым.
func (r *MemoryRepository) ListWithdrawals(_ context.Context, accountID int64) ([]model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]model.Withdrawal, 0)
	for _, w := range r.withdrawals {
		if w.AccountID == accountID {
			res = append(res, cloneWithdrawal(*w))
		}
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].ID > res[j].ID
	})

	return res, nil
}

// ProcessWithdrawal применяет действие оператора к запросу на вывод.
func (r *MemoryRepository) ProcessWithdrawal(_ context.Context, cmd model.ProcessCommand) (model.Withdrawal, model.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[cmd.WithdrawalID]
	if !ok {
		return model.Withdrawal{}, model.Transition{}, model.ErrRequestNotFound
	}

	tr, err := model.NextTransition(w.Status, cmd.Status)
	if err != nil {
		return model.Withdrawal{}, model.Transition{}, err
	}

	if tr.Compensate && w.Amount > math.MaxInt64-r.balances[w.AccountID] {
		return model.Withdrawal{}, model.Transition{}, model.ErrBalanceOverflow
	}

	now := r.now()
	applyCommand(w, cmd, now)

	txs := r.transactions[w.AccountID]
	for i := range txs {
		if txs[i].WithdrawalID != nil && *txs[i].WithdrawalID == w.ID && txs[i].Kind != model.TransactionKindWithdrawalReversal {
			txs[i].Kind = tr.Kind
			txs[i].Status = model.TransactionStatusFor(tr.To)
		}
	}

	if tr.Compensate {
		r.balances[w.AccountID] += w.Amount

		id := w.ID
		r.appendLocked(model.Transaction{
			AccountID:    w.AccountID,
			Amount:       w.Amount,
			Kind:         model.TransactionKindWithdrawalReversal,
			WithdrawalID: &id,
			Status:       model.TransactionStatusCompleted,
			Reason:       w.RejectionReason,
		})
	}

	return cloneWithdrawal(*w), tr, nil
}

func (r *MemoryRepository) appendLocked(tx model.Transaction) model.Transaction {
	r.nextTxID++
	tx.ID = r.nextTxID
	tx.CreatedAt = r.now()
	r.transactions[tx.AccountID] = append(r.transactions[tx.AccountID], tx)
	return cloneTransaction(tx)
}

// applyCommand переносит поля действия оператора в запрос. ProcessedAt выставляется только в конечном статусе.
func applyCommand(w *model.Withdrawal, cmd model.ProcessCommand, now time.Time) {
	w.Status = cmd.Status
	w.UpdatedAt = now
	if cmd.TransactionRef != "" {
		w.TransactionRef = cmd.TransactionRef
	}
	if cmd.Notes != "" {
		w.AdminNotes = cmd.Notes
	}
	if cmd.RejectionReason != "" {
		w.RejectionReason = cmd.RejectionReason
	}
	if cmd.Status.IsTerminal() {
		processedAt := now
		w.ProcessedAt = &processedAt
	}
}

func cloneTransaction(tx model.Transaction) model.Transaction {
	if tx.WithdrawalID != nil {
		id := *tx.WithdrawalID
		tx.WithdrawalID = &id
	}
	return tx
}

func cloneWithdrawal(w model.Withdrawal) model.Withdrawal {
	if w.ProcessedAt != nil {
		t := *w.ProcessedAt
		w.ProcessedAt = &t
	}
	return w
}
