package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger はデータストアへの疎通を確認するインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// NewHealthHandler はデータベースへの疎通を確認するヘルスチェックハンドラーを返す。
// 疎通できない場合は503を返す。
// GET /health
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "error"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Database: "connected"})
	}
}
