package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount возвращается, если сумма не положительна или меньше допустимого минимума.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidMethodDetails возвращается при неизвестном способе выплаты или неполных реквизитах.
	ErrInvalidMethodDetails = errors.New("invalid payout method details")
	// ErrInsufficientBalance возвращается при попытке списать больше, чем есть на балансе.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrRequestNotFound возвращается, если запрос на вывод не найден.
	ErrRequestNotFound = errors.New("withdrawal request not found")
	// ErrInvalidStatusTransition возвращается при недопустимой смене статуса.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrMissingRejectionReason возвращается, если для отклонения не указана причина.
	ErrMissingRejectionReason = errors.New("rejection reason is required")
	// ErrBalanceOverflow возвращается, если начисление выводит баланс за пределы int64.
	ErrBalanceOverflow = fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
	// ErrStorage означает отказ хранилища.
	ErrStorage = errors.New("storage error")
)

// StorageError оборачивает сбой хранилища. Операция при этом откатывается целиком.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError создаёт StorageError для операции op.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать любую StorageError с ErrStorage через errors.Is.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
