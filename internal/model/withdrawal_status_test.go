package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTransition(t *testing.T) {
	tests := []struct {
		name       string
		from       WithdrawalStatus
		to         WithdrawalStatus
		allowed    bool
		compensate bool
		kind       TransactionKind
	}{
		{"pending to processing", WithdrawalStatusPending, WithdrawalStatusProcessing, true, false, TransactionKindWithdrawalPending},
		{"pending to completed", WithdrawalStatusPending, WithdrawalStatusCompleted, true, false, TransactionKindWithdrawalCompleted},
		{"pending to rejected", WithdrawalStatusPending, WithdrawalStatusRejected, true, true, TransactionKindWithdrawalRejected},
		{"pending to failed", WithdrawalStatusPending, WithdrawalStatusFailed, true, true, TransactionKindWithdrawalRejected},
		{"processing to completed", WithdrawalStatusProcessing, WithdrawalStatusCompleted, true, false, TransactionKindWithdrawalCompleted},
		{"processing to rejected", WithdrawalStatusProcessing, WithdrawalStatusRejected, true, true, TransactionKindWithdrawalRejected},
		{"processing to failed", WithdrawalStatusProcessing, WithdrawalStatusFailed, true, true, TransactionKindWithdrawalRejected},
		{"pending to pending", WithdrawalStatusPending, WithdrawalStatusPending, false, false, ""},
		{"processing to pending", WithdrawalStatusProcessing, WithdrawalStatusPending, false, false, ""},
		{"processing to processing", WithdrawalStatusProcessing, WithdrawalStatusProcessing, false, false, ""},
		{"completed to rejected", WithdrawalStatusCompleted, WithdrawalStatusRejected, false, false, ""},
		{"rejected to rejected", WithdrawalStatusRejected, WithdrawalStatusRejected, false, false, ""},
		{"failed to completed", WithdrawalStatusFailed, WithdrawalStatusCompleted, false, false, ""},
		{"rejected to processing", WithdrawalStatusRejected, WithdrawalStatusProcessing, false, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NextTransition(tt.from, tt.to)
			if !tt.allowed {
				require.ErrorIs(t, err, ErrInvalidStatusTransition)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.compensate, tr.Compensate)
			assert.Equal(t, tt.compensate, tr.RequiresReason)
			assert.Equal(t, tt.kind, tr.Kind)
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	all := []WithdrawalStatus{
		WithdrawalStatusPending,
		WithdrawalStatusProcessing,
		WithdrawalStatusCompleted,
		WithdrawalStatusRejected,
		WithdrawalStatusFailed,
	}

	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			_, err := NextTransition(from, to)
			assert.ErrorIs(t, err, ErrInvalidStatusTransition, "%s -> %s", from, to)
		}
	}
}

func TestParseWithdrawalStatus(t *testing.T) {
	s, err := ParseWithdrawalStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, WithdrawalStatusCompleted, s)

	_, err = ParseWithdrawalStatus("approved")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestParsePayoutMethod(t *testing.T) {
	m, err := ParsePayoutMethod("upi")
	require.NoError(t, err)
	assert.Equal(t, PayoutMethodUPI, m)

	_, err = ParsePayoutMethod("paypal")
	assert.ErrorIs(t, err, ErrInvalidMethodDetails)
}

func TestStorageErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := NewStorageError("create withdrawal", cause)

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "create withdrawal")
}

func TestPayoutValue(t *testing.T) {
	w := Withdrawal{Amount: 250}

	got := w.PayoutValue(decimal.RequireFromString("0.10"))
	assert.True(t, got.Equal(decimal.RequireFromString("25")), "got %s", got)
}
