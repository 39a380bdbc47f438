package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/model"
	"github.com/hitoshi/subtodo/internal/webhook"
)

// maxWebhookBodyBytes はWebhookペイロードの上限。
const maxWebhookBodyBytes = 1 << 20

// WebhookVerifier は署名を検証して型付きイベントを返すインターフェース。
type WebhookVerifier interface {
	Configured() bool
	Verify(payload []byte, headers http.Header) (*webhook.Event, error)
}

// WebhookDispatcher は検証済みイベントを処理するインターフェース。
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, deliveryID string, event *webhook.Event) (*webhook.Result, error)
}

// UserCounter は診断用にユーザー数を返すインターフェース。
type UserCounter interface {
	CountUsers(ctx context.Context) (int, error)
}

// WebhookHandler はIdPからのWebhookを受け付けるHTTPハンドラー。
type WebhookHandler struct {
	verifier   WebhookVerifier
	dispatcher WebhookDispatcher
	users      UserCounter
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(verifier WebhookVerifier, dispatcher WebhookDispatcher, users UserCounter, m metrics.MetricsCollector, logger *slog.Logger) *WebhookHandler {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &WebhookHandler{
		verifier:   verifier,
		dispatcher: dispatcher,
		users:      users,
		metrics:    m,
		logger:     logger,
	}
}

// webhookResponse はWebhook処理結果のレスポンス。
type webhookResponse struct {
	Message   string `json:"message"`
	UserID    string `json:"userId,omitempty"`
	EventType string `json:"eventType,omitempty"`
}

// webhookDiagnosticsResponse は診断エンドポイントのレスポンス。
// シークレットの値や長さは含めない。
type webhookDiagnosticsResponse struct {
	Message          string `json:"message"`
	Database         string `json:"database"`
	UserCount        *int   `json:"userCount,omitempty"`
	HasWebhookSecret bool   `json:"hasWebhookSecret"`
}

// Receive は署名付きWebhookを検証し、イベントを処理する。
// POST /api/webhook/register
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	// 署名検証は受信した生のバイト列に対して行う
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("ペイロードを読み取れません"))
		return
	}

	event, err := h.verifier.Verify(payload, r.Header)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidSignature {
			h.metrics.RecordSignatureFailure()
			h.logger.Warn("Webhookの署名検証に失敗しました",
				slog.String("delivery_id", r.Header.Get(webhook.HeaderID)),
			)
		}
		handleServiceError(w, err)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), r.Header.Get(webhook.HeaderID), event)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWebhookResponse(result))
}

// Diagnostics はエンドポイントの稼働状況を返す。
// データベースに接続できない場合もステータスは200とする。
// GET /api/webhook/register
func (h *WebhookHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	resp := webhookDiagnosticsResponse{
		Message:          "Webhook endpoint is working",
		Database:         "connected",
		HasWebhookSecret: h.verifier.Configured(),
	}

	count, err := h.users.CountUsers(r.Context())
	if err != nil {
		h.logger.Error("ユーザー数の取得に失敗しました", slog.String("error", err.Error()))
		resp.Database = "error"
	} else {
		resp.UserCount = &count
	}

	writeJSON(w, http.StatusOK, resp)
}

func toWebhookResponse(result *webhook.Result) webhookResponse {
	resp := webhookResponse{UserID: result.UserID}
	switch result.Outcome {
	case webhook.OutcomeDuplicate:
		resp = webhookResponse{Message: "duplicate delivery"}
	case webhook.OutcomeIgnored:
		resp = webhookResponse{Message: "Event received but not handled", EventType: result.Type}
	case webhook.OutcomeProcessed:
		switch result.Type {
		case webhook.EventUserCreated:
			resp.Message = "User created successfully"
		case webhook.EventUserUpdated:
			resp.Message = "User updated successfully"
		default:
			resp.Message = "User deleted successfully"
		}
	default:
		switch result.Type {
		case webhook.EventUserCreated:
			resp.Message = "User already exists"
		case webhook.EventUserDeleted:
			resp.Message = "User already deleted"
		default:
			resp.Message = "No changes"
		}
	}
	return resp
}
