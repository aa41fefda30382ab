// Package service реализует журнал монет и процесс вывода монет в реальные выплаты.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coin-ledger/internal/metrics"
	"github.com/mmeshcher/coin-ledger/internal/model"
	"github.com/mmeshcher/coin-ledger/internal/notifier"
	"github.com/mmeshcher/coin-ledger/internal/validation"
)

// Repository описывает контракт журнала монет, используемый сервисом.
// Каждая изменяющая операция выполняется хранилищем атомарно.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	Credit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error)
	Debit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error)
	GetBalance(ctx context.Context, accountID int64) (int64, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error)
	CreateWithdrawal(ctx context.Context, w model.Withdrawal) (model.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id int64) (model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, accountID int64) ([]model.Withdrawal, error)
	ProcessWithdrawal(ctx context.Context, cmd model.ProcessCommand) (model.Withdrawal, model.Transition, error)
}

// WithdrawalEvent является полезной нагрузкой событий вывода.
type WithdrawalEvent struct {
	WithdrawalID    int64     `json:"withdrawal_id"`
	AccountID       int64     `json:"account_id"`
	Amount          int64     `json:"amount"`
	Method          string    `json:"method"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	Compensated     bool      `json:"compensated,omitempty"`
	TransactionRef  string    `json:"transaction_ref,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Service содержит бизнес-логику журнала монет.
type Service struct {
	repo          Repository
	publisher     notifier.Publisher
	logger        *zap.Logger
	minWithdrawal int64
}

// Option настраивает Service.
type Option func(s *Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMinWithdrawal задаёт минимальную сумму вывода в монетах.
func WithMinWithdrawal(amount int64) Option {
	return func(s *Service) {
		if amount > 0 {
			s.minWithdrawal = amount
		}
	}
}

// NewService создаёт новый сервис с указанным хранилищем и публикатором событий.
func NewService(repo Repository, publisher notifier.Publisher, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		publisher:     publisher,
		logger:        zap.NewNop(),
		minWithdrawal: 1,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.publisher == nil {
		s.publisher = notifier.NewLogNotifier(s.logger)
	}

	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Credit начисляет монеты (кэшбэк, бонус).
func (s *Service) Credit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, model.ErrInvalidAmount
	}
	return s.repo.Credit(ctx, accountID, amount, strings.TrimSpace(reason))
}

// Debit списывает монеты (оплата заказа монетами).
func (s *Service) Debit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, model.ErrInvalidAmount
	}
	return s.repo.Debit(ctx, accountID, amount, strings.TrimSpace(reason))
}

// GetBalance возвращает баланс аккаунта.
func (s *Service) GetBalance(ctx context.Context, accountID int64) (model.Balance, error) {
	current, err := s.repo.GetBalance(ctx, accountID)
	if err != nil {
		return model.Balance{}, err
	}
	return model.Balance{AccountID: accountID, Current: current}, nil
}

// ListTransactions возвращает историю журнала аккаунта от новых к старым.
func (s *Service) ListTransactions(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID, limit)
}

// RequestWithdrawal создаёт запрос на вывод: проверяет сумму и реквизиты, затем атомарно резервирует монеты.
func (s *Service) RequestWithdrawal(ctx context.Context, accountID, amount int64, method model.PayoutMethod, details model.PayoutDetails) (model.Withdrawal, error) {
	if amount <= 0 {
		return model.Withdrawal{}, model.ErrInvalidAmount
	}
	if amount < s.minWithdrawal {
		return model.Withdrawal{}, fmt.Errorf("%w: minimum withdrawal is %d", model.ErrInvalidAmount, s.minWithdrawal)
	}

	method, err := model.ParsePayoutMethod(string(method))
	if err != nil {
		return model.Withdrawal{}, err
	}

	details = validation.NormalizePayout(details)
	if err := validation.ValidatePayout(method, details); err != nil {
		return model.Withdrawal{}, err
	}

	w, err := s.repo.CreateWithdrawal(ctx, model.Withdrawal{
		AccountID: accountID,
		Amount:    amount,
		Method:    method,
		Details:   details,
	})
	if err != nil {
		return model.Withdrawal{}, err
	}

	s.logger.Info("withdrawal requested",
		zap.Int64("withdrawal_id", w.ID),
		zap.Int64("account", w.AccountID),
		zap.Int64("amount", w.Amount),
		zap.String("method", string(w.Method)),
	)

	s.publisher.Publish(ctx, notifier.TopicWithdrawalCreated, newWithdrawalEvent(w, "", false))

	return w, nil
}

// ProcessWithdrawal применяет действие оператора к запросу на вывод.
// Неизвестный целевой статус считается недопустимым переходом.
func (s *Service) ProcessWithdrawal(ctx context.Context, id int64, status, transactionRef, notes, rejectionReason string) (model.Withdrawal, error) {
	target, err := model.ParseWithdrawalStatus(strings.TrimSpace(status))
	if err != nil {
		return model.Withdrawal{}, err
	}

	rejectionReason = strings.TrimSpace(rejectionReason)
	if model.RequiresReason(target) && rejectionReason == "" {
		return model.Withdrawal{}, model.ErrMissingRejectionReason
	}

	w, tr, err := s.repo.ProcessWithdrawal(ctx, model.ProcessCommand{
		WithdrawalID:    id,
		Status:          target,
		TransactionRef:  strings.TrimSpace(transactionRef),
		Notes:           strings.TrimSpace(notes),
		RejectionReason: rejectionReason,
	})
	if err != nil {
		return model.Withdrawal{}, err
	}

	metrics.WithdrawalTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	if tr.Compensate {
		metrics.WithdrawalCompensations.Inc()
	}

	s.logger.Info("withdrawal status changed",
		zap.Int64("withdrawal_id", w.ID),
		zap.Int64("account", w.AccountID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.Bool("compensated", tr.Compensate),
	)

	s.publisher.Publish(ctx, notifier.TopicWithdrawalStatusChanged, newWithdrawalEvent(w, tr.From, tr.Compensate))

	return w, nil
}

// GetWithdrawal возвращает запрос на вывод по идентификатору.
func (s *Service) GetWithdrawal(ctx context.Context, id int64) (model.Withdrawal, error) {
	return s.repo.GetWithdrawal(ctx, id)
}

// ListWithdrawals возвращает запросы аккаунта от новых к старым.
func (s *Service) ListWithdrawals(ctx context.Context, accountID int64) ([]model.Withdrawal, error) {
	return s.repo.ListWithdrawals(ctx, accountID)
}

func newWithdrawalEvent(w model.Withdrawal, from model.WithdrawalStatus, compensated bool) WithdrawalEvent {
	return WithdrawalEvent{
		WithdrawalID:    w.ID,
		AccountID:       w.AccountID,
		Amount:          w.Amount,
		Method:          string(w.Method),
		Status:          string(w.Status),
		PreviousStatus:  string(from),
		Compensated:     compensated,
		TransactionRef:  w.TransactionRef,
		RejectionReason: w.RejectionReason,
		UpdatedAt:       w.UpdatedAt,
	}
}
