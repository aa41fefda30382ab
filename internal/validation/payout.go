// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mmeshcher/coin-ledger/internal/model"
)

var (
	ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	upiPattern  = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,256}@[a-zA-Z]{2,64}$`)
)

const (
	minAccountNumberLen = 9
	maxAccountNumberLen = 18
)

// NormalizePayout убирает пробелы по краям реквизитов и приводит IFSC к верхнему регистру.
func NormalizePayout(d model.PayoutDetails) model.PayoutDetails {
	return model.PayoutDetails{
		AccountNumber: strings.TrimSpace(d.AccountNumber),
		IFSC:          strings.ToUpper(strings.TrimSpace(d.IFSC)),
		BankName:      strings.TrimSpace(d.BankName),
		AccountHolder: strings.TrimSpace(d.AccountHolder),
		UPIID:         strings.TrimSpace(d.UPIID),
	}
}

// ValidatePayout проверяет, что для способа выплаты заполнены все обязательные реквизиты.
func ValidatePayout(method model.PayoutMethod, d model.PayoutDetails) error {
	switch method {
	case model.PayoutMethodBank:
		if !IsValidAccountNumber(d.AccountNumber) {
			return invalid("account_number")
		}
		if !ifscPattern.MatchString(d.IFSC) {
			return invalid("ifsc")
		}
		if d.BankName == "" {
			return invalid("bank_name")
		}
		return nil
	case model.PayoutMethodUPI:
		if !upiPattern.MatchString(d.UPIID) {
			return invalid("upi_id")
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown payout method %q", model.ErrInvalidMethodDetails, method)
	}
}

// IsValidAccountNumber проверяет, что номер счёта состоит только из цифр ASCII допустимой длины.
func IsValidAccountNumber(number string) bool {
	if len(number) < minAccountNumberLen || len(number) > maxAccountNumberLen {
		return false
	}

	for _, ch := range number {
		if ch < '0' || ch > '9' {
			return false
		}
	}

	return true
}

func invalid(field string) error {
	return fmt.Errorf("%w: %s is missing or malformed", model.ErrInvalidMethodDetails, field)
}
