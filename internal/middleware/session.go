// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/subtodo/internal/model"
)

// sessionCookieName はIdPのフロントエンドSDKが発行するセッションCookie名。
const sessionCookieName = "__session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// callerContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var callerContextKey = contextKey("caller")

// ErrNoCaller はコンテキストに認証済みの呼び出し元が存在しない場合のエラー。
var ErrNoCaller = errors.New("caller not found in context")

// TokenVerifier はセッショントークンを検証し、呼び出し元を返すインターフェース。
// auth.Verifierが実装する。
type TokenVerifier interface {
	Authenticate(ctx context.Context, token string) (*model.Caller, error)
}

// NewSessionMiddleware はAuthorizationヘッダー（Bearer）または__session Cookieから
// セッショントークンを読み取り、検証するミドルウェアを返す。
// 検証済みの呼び出し元をリクエストコンテキストに注入する。
// 未認証リクエストには401 UNAUTHORIZEDを返す。
func NewSessionMiddleware(verifier TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			caller, err := verifier.Authenticate(r.Context(), token)
			if err != nil || caller == nil || caller.UserID == "" {
				if err != nil {
					logger.Debug("セッショントークンの検証に失敗しました",
						slog.String("error", err.Error()),
					)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// ログ出力用にユーザーIDを記録
			if info := requestInfoFromContext(r.Context()); info != nil {
				info.userID = caller.UserID
			}

			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
		})
	}
}

// sessionToken はBearerトークンを優先し、なければセッションCookieの値を返す。
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// CallerFromContext はリクエストコンテキストから呼び出し元を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func CallerFromContext(ctx context.Context) (*model.Caller, error) {
	caller, ok := ctx.Value(callerContextKey).(*model.Caller)
	if !ok || caller == nil || caller.UserID == "" {
		return nil, ErrNoCaller
	}
	return caller, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	caller, err := CallerFromContext(ctx)
	if err != nil {
		return "", err
	}
	return caller.UserID, nil
}

// ContextWithCaller はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}
