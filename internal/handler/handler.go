// Package handler содержит HTTP-обработчики API журнала монет.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/coin-ledger/internal/middleware"
	"github.com/mmeshcher/coin-ledger/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	Credit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error)
	Debit(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error)
	GetBalance(ctx context.Context, accountID int64) (model.Balance, error)
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]model.Transaction, error)
	RequestWithdrawal(ctx context.Context, accountID, amount int64, method model.PayoutMethod, details model.PayoutDetails) (model.Withdrawal, error)
	ProcessWithdrawal(ctx context.Context, id int64, status, transactionRef, notes, rejectionReason string) (model.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id int64) (model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, accountID int64) ([]model.Withdrawal, error)
}

// Handler реализует HTTP-обработчики API журнала монет.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	coinValue      decimal.Decimal
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// coinValue задаёт стоимость одной монеты в валюте выплаты.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, coinValue decimal.Decimal) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		coinValue:      coinValue,
	}
}

type withdrawalRequest struct {
	Amount  int64               `json:"amount"`
	Method  string              `json:"method"`
	Details model.PayoutDetails `json:"details"`
}

type processRequest struct {
	Status          string `json:"status"`
	TransactionRef  string `json:"transactionRef"`
	Notes           string `json:"notes"`
	RejectionReason string `json:"rejectionReason"`
}

type ledgerEntryRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type withdrawalResponse struct {
	ID              int64               `json:"id"`
	Account         int64               `json:"account"`
	Amount          int64               `json:"amount"`
	PayoutValue     string              `json:"payout_value"`
	Method          string              `json:"method"`
	Details         model.PayoutDetails `json:"details"`
	Status          string              `json:"status"`
	TransactionRef  string              `json:"transaction_ref,omitempty"`
	AdminNotes      string              `json:"admin_notes,omitempty"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
	ProcessedAt     *string             `json:"processed_at,omitempty"`
}

type transactionResponse struct {
	ID           int64  `json:"id"`
	Account      int64  `json:"account"`
	Amount       int64  `json:"amount"`
	Kind         string `json:"kind"`
	WithdrawalID *int64 `json:"withdrawal_id,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Ping проверяет доступность хранилища.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("ping error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// RequestWithdrawal создаёт запрос на вывод монет с аккаунта вызывающего.
func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthorized)
		return
	}
	// Оператор без собственного аккаунта не может выводить монеты.
	if id.AccountID == 0 {
		h.writeError(w, errBadRequest)
		return
	}

	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errBadRequest)
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), id.AccountID, req.Amount, model.PayoutMethod(req.Method), req.Details)
	if err != nil {
		h.logFailure("request withdrawal error", err, zap.Int64("account", id.AccountID), zap.Int64("amount", req.Amount))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, h.toWithdrawalResponse(wd))
}

// ListWithdrawals возвращает запросы на вывод аккаунта от новых к старым.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListWithdrawals(r.Context(), accountID)
	if err != nil {
		h.logFailure("list withdrawals error", err, zap.Int64("account", accountID))
		h.writeError(w, err)
		return
	}

	resp := make([]withdrawalResponse, 0, len(list))
	for _, wd := range list {
		resp = append(resp, h.toWithdrawalResponse(wd))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetWithdrawal возвращает запрос на вывод владельцу или оператору.
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthorized)
		return
	}

	withdrawalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, errBadRequest)
		return
	}

	wd, err := h.service.GetWithdrawal(r.Context(), withdrawalID)
	if err != nil {
		h.logFailure("get withdrawal error", err, zap.Int64("withdrawal_id", withdrawalID))
		h.writeError(w, err)
		return
	}

	if !id.CanAccess(wd.AccountID) {
		h.writeError(w, errForbidden)
		return
	}

	h.writeJSON(w, http.StatusOK, h.toWithdrawalResponse(wd))
}

// ProcessWithdrawal применяет действие оператора к запросу на вывод.
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, errBadRequest)
		return
	}

	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errBadRequest)
		return
	}

	wd, err := h.service.ProcessWithdrawal(r.Context(), withdrawalID, req.Status, req.TransactionRef, req.Notes, req.RejectionReason)
	if err != nil {
		h.logFailure("process withdrawal error", err, zap.Int64("withdrawal_id", withdrawalID), zap.String("status", req.Status))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.toWithdrawalResponse(wd))
}

// ListTransactions возвращает историю журнала аккаунта.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, errBadRequest)
			return
		}
		limit = n
	}

	txs, err := h.service.ListTransactions(r.Context(), accountID, limit)
	if err != nil {
		h.logFailure("list transactions error", err, zap.Int64("account", accountID))
		h.writeError(w, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, toTransactionResponse(tx))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetBalance возвращает баланс аккаунта.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.resolveAccount(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		h.logFailure("get balance error", err, zap.Int64("account", accountID))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

// Credit начисляет монеты на аккаунт из URL. Доступно только оператору.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	h.ledgerEntry(w, r, "credit", h.service.Credit)
}

// Debit списывает монеты с аккаунта из URL. Доступно только оператору.
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	h.ledgerEntry(w, r, "debit", h.service.Debit)
}

func (h *Handler) ledgerEntry(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	apply func(ctx context.Context, accountID, amount int64, reason string) (model.Transaction, error),
) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "account"), 10, 64)
	if err != nil {
		h.writeError(w, errBadRequest)
		return
	}

	var req ledgerEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errBadRequest)
		return
	}

	tx, err := apply(r.Context(), accountID, req.Amount, req.Reason)
	if err != nil {
		h.logFailure(op+" error", err, zap.Int64("account", accountID), zap.Int64("amount", req.Amount))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

// resolveAccount берёт аккаунт из параметра account или из токена.
// Владелец видит только свой аккаунт, оператор обязан указать аккаунт явно.
func (h *Handler) resolveAccount(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, errUnauthorized)
		return 0, false
	}

	v := r.URL.Query().Get("account")
	if v == "" {
		if id.Operator && id.AccountID == 0 {
			h.writeError(w, errBadRequest)
			return 0, false
		}
		return id.AccountID, true
	}

	accountID, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		h.writeError(w, errBadRequest)
		return 0, false
	}

	if !id.CanAccess(accountID) {
		h.writeError(w, errForbidden)
		return 0, false
	}

	return accountID, true
}

func (h *Handler) toWithdrawalResponse(wd model.Withdrawal) withdrawalResponse {
	resp := withdrawalResponse{
		ID:              wd.ID,
		Account:         wd.AccountID,
		Amount:          wd.Amount,
		PayoutValue:     wd.PayoutValue(h.coinValue).StringFixed(2),
		Method:          string(wd.Method),
		Details:         wd.Details,
		Status:          string(wd.Status),
		TransactionRef:  wd.TransactionRef,
		AdminNotes:      wd.AdminNotes,
		RejectionReason: wd.RejectionReason,
		CreatedAt:       wd.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       wd.UpdatedAt.Format(time.RFC3339),
	}

	if wd.ProcessedAt != nil {
		processedAt := wd.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processedAt
	}

	return resp
}

func toTransactionResponse(tx model.Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		Account:      tx.AccountID,
		Amount:       tx.Amount,
		Kind:         string(tx.Kind),
		WithdrawalID: tx.WithdrawalID,
		Status:       string(tx.Status),
		Reason:       tx.Reason,
		CreatedAt:    tx.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// logFailure пишет в лог сбои хранилища как ошибки, а пользовательские ошибки на уровне debug.
func (h *Handler) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, model.ErrStorage) {
		h.logger.Error(msg, fields...)
		return
	}
	h.logger.Debug(msg, fields...)
}
