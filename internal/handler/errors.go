package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mmeshcher/coin-ledger/internal/model"
)

var (
	errBadRequest   = errors.New("malformed request")
	errUnauthorized = errors.New("authentication required")
	errForbidden    = errors.New("access to the account is forbidden")
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	name   string
}

// errorTable сопоставляет ошибки домена с HTTP-ответом. Первое совпадение выигрывает.
var errorTable = []errorMapping{
	{model.ErrInvalidAmount, http.StatusUnprocessableEntity, "InvalidAmount"},
	{model.ErrInvalidMethodDetails, http.StatusUnprocessableEntity, "InvalidMethodDetails"},
	{model.ErrMissingRejectionReason, http.StatusUnprocessableEntity, "MissingRejectionReason"},
	{model.ErrInsufficientBalance, http.StatusPaymentRequired, "InsufficientBalance"},
	{model.ErrRequestNotFound, http.StatusNotFound, "RequestNotFound"},
	{model.ErrInvalidStatusTransition, http.StatusConflict, "InvalidStatusTransition"},
	{errBadRequest, http.StatusBadRequest, "BadRequest"},
	{errUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{errForbidden, http.StatusForbidden, "Forbidden"},
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: "StorageError", Message: "internal storage error"}
	status := http.StatusInternalServerError

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			resp = errorResponse{Error: m.name, Message: err.Error()}
			status = m.status
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
