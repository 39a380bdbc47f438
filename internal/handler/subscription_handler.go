package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/subtodo/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// GetStatus は遅延失効を適用した後の購読状態を返す。
	GetStatus(ctx context.Context, userID string) (*model.SubscriptionStatus, error)
	// Activate は購読を有効化し、期限を1暦月後に設定する。
	Activate(ctx context.Context, userID string) (*model.SubscriptionStatus, error)
}

// SubscriptionHandler は購読状態のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// subscriptionStatusResponse は購読状態のAPIレスポンス。
// subscriptionEndsは期限なしの場合null。
type subscriptionStatusResponse struct {
	IsSubscribed     bool       `json:"isSubscribed"`
	SubscriptionEnds *time.Time `json:"subscriptionEnds"`
}

// subscriptionActivatedResponse は購読有効化のAPIレスポンス。
type subscriptionActivatedResponse struct {
	Message          string     `json:"message"`
	SubscriptionEnds *time.Time `json:"subscriptionEnds"`
}

// GetStatus は呼び出し元の購読状態を返す。
// GET /api/subscribe
func (h *SubscriptionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionStatusResponse{
		IsSubscribed:     status.IsSubscribed,
		SubscriptionEnds: status.SubscriptionEnds,
	})
}

// Activate は呼び出し元の購読を有効化する。決済は完了済みであることを前提とする。
// POST /api/subscribe
func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.service.Activate(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionActivatedResponse{
		Message:          "Subscription successfully",
		SubscriptionEnds: status.SubscriptionEnds,
	})
}
