package model

import "fmt"

// WithdrawalStatus описывает состояние запроса на вывод.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

// ParseWithdrawalStatus приводит строку к WithdrawalStatus.
func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	switch WithdrawalStatus(s) {
	case WithdrawalStatusPending,
		WithdrawalStatusProcessing,
		WithdrawalStatusCompleted,
		WithdrawalStatusRejected,
		WithdrawalStatusFailed:
		return WithdrawalStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, s)
	}
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s WithdrawalStatus) IsTerminal() bool {
	switch s {
	case WithdrawalStatusCompleted, WithdrawalStatusRejected, WithdrawalStatusFailed:
		return true
	default:
		return false
	}
}

// Transition описывает допустимый переход и его побочные эффекты в журнале.
type Transition struct {
	From WithdrawalStatus
	To   WithdrawalStatus
	// Compensate: вернуть сумму вывода на баланс.
	Compensate bool
	// RequiresReason: переход требует причины отклонения.
	RequiresReason bool
	// Kind: вид, который принимает связанная запись журнала.
	Kind TransactionKind
}

type transitionKey struct {
	from WithdrawalStatus
	to   WithdrawalStatus
}

var transitions = map[transitionKey]Transition{}

func allow(from, to WithdrawalStatus, kind TransactionKind, compensate bool) {
	transitions[transitionKey{from, to}] = Transition{
		From:           from,
		To:             to,
		Compensate:     compensate,
		RequiresReason: compensate,
		Kind:           kind,
	}
}

func init() {
	allow(WithdrawalStatusPending, WithdrawalStatusProcessing, TransactionKindWithdrawalPending, false)

	for _, from := range []WithdrawalStatus{WithdrawalStatusPending, WithdrawalStatusProcessing} {
		allow(from, WithdrawalStatusCompleted, TransactionKindWithdrawalCompleted, false)
		allow(from, WithdrawalStatusRejected, TransactionKindWithdrawalRejected, true)
		allow(from, WithdrawalStatusFailed, TransactionKindWithdrawalRejected, true)
	}
}

// NextTransition возвращает переход from -> to или ErrInvalidStatusTransition, если его нет в таблице.
func NextTransition(from, to WithdrawalStatus) (Transition, error) {
	t, ok := transitions[transitionKey{from, to}]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	return t, nil
}

// RequiresReason сообщает, нужна ли причина для перехода в статус to из любого состояния.
func RequiresReason(to WithdrawalStatus) bool {
	return to == WithdrawalStatusRejected || to == WithdrawalStatusFailed
}

// TransactionStatusFor возвращает статус записи журнала, отражающий статус вывода.
func TransactionStatusFor(s WithdrawalStatus) TransactionStatus {
	return TransactionStatus(s)
}
