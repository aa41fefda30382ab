// Package middleware содержит HTTP middleware сервиса журнала монет.
package middleware

import (
	"context"
	"crypto/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const identityKey contextKey = "identity"

// RoleOperator содержится в claim role у операторов выплат.
const RoleOperator = "operator"

const tokenTTL = 24 * time.Hour

// Identity описывает, кто выполняет запрос: владелец аккаунта или оператор.
type Identity struct {
	AccountID int64
	Operator  bool
}

// CanAccess сообщает, может ли вызывающий работать с данными указанного аккаунта.
func (i Identity) CanAccess(accountID int64) bool {
	return i.Operator || i.AccountID == accountID
}

// AuthMiddleware проверяет bearer-токен (JWT HS256) и кладёт Identity в контекст запроса.
type AuthMiddleware struct {
	tokenAuth *jwtauth.JWTAuth
}

// NewAuthMiddleware создаёт AuthMiddleware с указанным секретом. Пустой секрет заменяется случайным.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		tokenAuth: jwtauth.New("HS256", key, nil),
	}
}

// Middleware проверяет токен и добавляет Identity в контекст. Без валидного токена отвечает 401.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return jwtauth.Verifier(a.tokenAuth)(
		jwtauth.Authenticator(a.tokenAuth)(
			identityFromClaims(next),
		),
	)
}

// IssueToken подписывает токен для аккаунта. role может быть пустой или RoleOperator.
func (a *AuthMiddleware) IssueToken(accountID int64, role string) (string, error) {
	claims := map[string]interface{}{
		"sub": strconv.FormatInt(accountID, 10),
	}
	if role != "" {
		claims["role"] = role
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, tokenTTL)

	_, token, err := a.tokenAuth.Encode(claims)
	if err != nil {
		return "", err
	}
	return token, nil
}

func identityFromClaims(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		role, _ := claims["role"].(string)
		id := Identity{Operator: role == RoleOperator}

		sub, _ := claims["sub"].(string)
		if sub != "" {
			accountID, err := strconv.ParseInt(sub, 10, 64)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			id.AccountID = accountID
		} else if !id.Operator {
			// У владельца аккаунта sub обязателен.
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator пропускает только операторов, остальным отвечает 403.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !id.Operator {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext извлекает Identity из контекста запроса.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity кладёт Identity в контекст.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
