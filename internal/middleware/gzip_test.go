package middleware_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/coin-ledger/internal/handler"
	"github.com/mmeshcher/coin-ledger/internal/middleware"
	"github.com/mmeshcher/coin-ledger/internal/model"
	"github.com/mmeshcher/coin-ledger/internal/repository"
	"github.com/mmeshcher/coin-ledger/internal/service"
)

// ledgerEntryHandler разбирает тело запроса на начисление и отвечает баланс в заданном Content-Type.
func ledgerEntryHandler(contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry struct {
			Amount int64  `json:"amount"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(model.Balance{AccountID: 7, Current: entry.Amount})
	}
}

func gzipBytes(t *testing.T, payload string) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(res.Body)
		require.NoError(t, err)
		defer gr.Close()
		r = gr
	}

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestGzipMiddleware(t *testing.T) {
	const entry = `{"amount":120,"reason":"cashback"}`

	tests := []struct {
		name           string
		gzipRequest    bool
		acceptEncoding string
		contentType    string
		wantEncoding   string
	}{
		{"json response compressed", false, "gzip", "application/json", "gzip"},
		{"accept-encoding list", false, "deflate, gzip;q=0.8", "application/json", "gzip"},
		{"client without gzip", false, "", "application/json", ""},
		{"binary response untouched", false, "gzip", "application/octet-stream", ""},
		{"compressed request body", true, "gzip", "application/json", "gzip"},
		{"compressed request, plain response", true, "", "application/json", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(entry)
			if tt.gzipRequest {
				body = gzipBytes(t, entry)
			}

			req := httptest.NewRequest(http.MethodPost, "/accounts/7/credits", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()

			middleware.GzipMiddleware(ledgerEntryHandler(tt.contentType)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			var got model.Balance
			require.NoError(t, json.Unmarshal([]byte(readBody(t, res)), &got))
			assert.Equal(t, int64(120), got.Current)
		})
	}
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/withdrawals", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()

	middleware.GzipMiddleware(ledgerEntryHandler("application/json")).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGzipMiddleware_RouterWithdrawals(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	svc := service.NewService(repo, nil)

	_, err := svc.Credit(ctx, 3, 500, "cashback")
	require.NoError(t, err)
	_, err = svc.RequestWithdrawal(ctx, 3, 200, model.PayoutMethodUPI, model.PayoutDetails{UPIID: "user@okaxis"})
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware("gzip-secret")
	router := handler.NewHandler(svc, zap.NewNop(), auth, decimal.RequireFromString("0.10")).SetupRouter()

	token, err := auth.IssueToken(3, "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/withdrawals", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "gzip", res.Header.Get("Content-Encoding"))
	assert.Contains(t, res.Header.Get("Content-Type"), "application/json")

	var list []struct {
		Account     int64  `json:"account"`
		Amount      int64  `json:"amount"`
		PayoutValue string `json:"payout_value"`
		Status      string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, res)), &list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].Account)
	assert.Equal(t, int64(200), list[0].Amount)
	assert.Equal(t, "20.00", list[0].PayoutValue)
	assert.Equal(t, "pending", list[0].Status)
}
