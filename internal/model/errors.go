// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, webhook, subscription, todo, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeTodoNotFound         = "TODO_NOT_FOUND"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeMissingEmail         = "MISSING_EMAIL"
	ErrCodeMissingUserID        = "MISSING_USER_ID"
	ErrCodeMissingConfiguration = "MISSING_CONFIGURATION"
	ErrCodeTodoLimitReached     = "TODO_LIMIT_REACHED"
	ErrCodeInvalidRole          = "INVALID_ROLE"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証が必要な操作を未認証で呼び出した場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は認証済みだが権限がない場合のエラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "権限を持つアカウントで操作してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewTodoNotFoundError はTodoが見つからない場合のエラーを生成する。
func NewTodoNotFoundError(todoID string) *APIError {
	return &APIError{
		Code:     ErrCodeTodoNotFound,
		Message:  fmt.Sprintf("指定されたTodoが見つかりません: %s", todoID),
		Category: "todo",
		Action:   "TodoのIDを確認してください。",
	}
}

// NewInvalidSignatureError はWebhook署名の検証に失敗した場合のエラーを生成する。
// 署名ヘッダーの欠落も同じエラーとして扱う。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Webhookの署名検証に失敗しました。",
		Category: "webhook",
		Action:   "svix-id、svix-timestamp、svix-signatureヘッダーと共有シークレットを確認してください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	}
}

// NewMissingEmailError はイベントにメールアドレスが含まれない場合のエラーを生成する。
func NewMissingEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingEmail,
		Message:  "イベントにメールアドレスが含まれていません。",
		Category: "webhook",
		Action:   "IdP側でユーザーのメールアドレスを確認してください。",
	}
}

// NewMissingUserIDError はイベントにユーザーIDが含まれない場合のエラーを生成する。
func NewMissingUserIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingUserID,
		Message:  "イベントにユーザーIDが含まれていません。",
		Category: "webhook",
		Action:   "イベントのペイロードを確認してください。",
	}
}

// NewMissingConfigurationError は必要な設定値が未設定の場合のエラーを生成する。
func NewMissingConfigurationError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingConfiguration,
		Message:  fmt.Sprintf("サーバー設定が不足しています: %s", name),
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}

// NewTodoLimitReachedError は無料プランのTodo上限に達した場合のエラーを生成する。
func NewTodoLimitReachedError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeTodoLimitReached,
		Message:  fmt.Sprintf("無料プランのTodo上限（%d件）に達しています。", limit),
		Category: "subscription",
		Action:   "購読を開始するか、不要なTodoを削除してください。",
	}
}

// NewInvalidRoleError は指定されたロールが不正な場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効なロールです: %q", role),
		Category: "validation",
		Action:   "ロール名を指定してください。",
	}
}

// NewRateLimitExceededError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
