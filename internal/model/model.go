// Package model содержит доменные сущности сервиса учёта монет.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind описывает вид операции в журнале монет.
type TransactionKind string

const (
	TransactionKindEarn                TransactionKind = "earn"
	TransactionKindRedeem              TransactionKind = "redeem"
	TransactionKindWithdrawalPending   TransactionKind = "withdrawal_pending"
	TransactionKindWithdrawalCompleted TransactionKind = "withdrawal_completed"
	TransactionKindWithdrawalRejected  TransactionKind = "withdrawal_rejected"
	// TransactionKindWithdrawalReversal обозначает компенсирующее начисление после отклонённого вывода.
	TransactionKindWithdrawalReversal TransactionKind = "withdrawal_reversal"
)

// TransactionStatus описывает состояние записи журнала.
type TransactionStatus string

const (
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusRejected   TransactionStatus = "rejected"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Transaction описывает запись журнала монет. Amount положителен для начислений и отрицателен для списаний.
type Transaction struct {
	ID           int64
	AccountID    int64
	Amount       int64
	Kind         TransactionKind
	WithdrawalID *int64
	Status       TransactionStatus
	Reason       string
	CreatedAt    time.Time
}

// Balance содержит текущий баланс монет аккаунта.
type Balance struct {
	AccountID int64 `json:"account"`
	Current   int64 `json:"balance"`
}

// PayoutMethod описывает способ выплаты при выводе монет.
type PayoutMethod string

const (
	PayoutMethodBank PayoutMethod = "bank"
	PayoutMethodUPI  PayoutMethod = "upi"
)

// ParsePayoutMethod приводит строку к PayoutMethod.
func ParsePayoutMethod(s string) (PayoutMethod, error) {
	switch PayoutMethod(s) {
	case PayoutMethodBank, PayoutMethodUPI:
		return PayoutMethod(s), nil
	default:
		return "", fmt.Errorf("%w: unknown payout method %q", ErrInvalidMethodDetails, s)
	}
}

// PayoutDetails содержит реквизиты выплаты. Набор обязательных полей зависит от способа выплаты.
type PayoutDetails struct {
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

// Withdrawal описывает запрос на вывод монет в реальную выплату.
type Withdrawal struct {
	ID              int64
	AccountID       int64
	Amount          int64
	Method          PayoutMethod
	Details         PayoutDetails
	Status          WithdrawalStatus
	TransactionRef  string
	AdminNotes      string
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProcessedAt     *time.Time
}

// PayoutValue возвращает сумму выплаты в валюте по курсу rate за одну монету.
func (w Withdrawal) PayoutValue(rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(w.Amount).Mul(rate)
}

// ProcessCommand описывает действие оператора над запросом на вывод.
type ProcessCommand struct {
	WithdrawalID    int64
	Status          WithdrawalStatus
	TransactionRef  string
	Notes           string
	RejectionReason string
}
