// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/schoolgate/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// operatorIDContextKey はリクエストコンテキストに職員IDを格納するためのキー。
var operatorIDContextKey = contextKey("operator_id")

// operatorHolderContextKey はロギングミドルウェアが用意するoperatorHolderのキー。
var operatorHolderContextKey = contextKey("operator_holder")

// operatorHolder は認証済み職員IDを外側のロギングミドルウェアへ渡す。
type operatorHolder struct {
	id string
}

func contextWithOperatorHolder(ctx context.Context, h *operatorHolder) context.Context {
	return context.WithValue(ctx, operatorHolderContextKey, h)
}

// TokenAuthenticator はアクセストークンの検証に必要なインターフェース。
// auth.Serviceが実装する。
type TokenAuthenticator interface {
	Authenticate(token string) (string, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済み職員IDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewAuthMiddleware(authenticator TokenAuthenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			operatorID, err := authenticator.Authenticate(token)
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					apiErr = model.NewUnauthorizedError()
				}
				WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}

			if h, ok := r.Context().Value(operatorHolderContextKey).(*operatorHolder); ok {
				h.id = operatorID
			}
			ctx := context.WithValue(r.Context(), operatorIDContextKey, operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorIDFromContext はリクエストコンテキストから職員IDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func OperatorIDFromContext(ctx context.Context) (string, error) {
	operatorID, ok := ctx.Value(operatorIDContextKey).(string)
	if !ok || operatorID == "" {
		return "", fmt.Errorf("operator ID not found in context")
	}
	return operatorID, nil
}

// ContextWithOperatorID はコンテキストに職員IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithOperatorID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorIDContextKey, operatorID)
}
