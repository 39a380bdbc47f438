package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/subtodo/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	apiErr := model.NewTodoLimitReachedError(3)
	WriteErrorResponse(w, http.StatusForbidden, apiErr)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeTodoLimitReached {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeTodoLimitReached)
	}
	if body.Message != apiErr.Message {
		t.Errorf("message = %q, want %q", body.Message, apiErr.Message)
	}
	if body.Category != "subscription" {
		t.Errorf("category = %q, want %q", body.Category, "subscription")
	}
	if body.Action != apiErr.Action {
		t.Errorf("action = %q, want %q", body.Action, apiErr.Action)
	}
}

// TestWriteErrorResponse_DomainErrors はドメインエラーごとのコードとカテゴリが保たれることを検証する。
func TestWriteErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        *model.APIError
		category   string
	}{
		{"Unauthorized", http.StatusUnauthorized, model.NewUnauthorizedError(), "auth"},
		{"Forbidden", http.StatusForbidden, model.NewForbiddenError("test"), "auth"},
		{"InvalidSignature", http.StatusBadRequest, model.NewInvalidSignatureError(), "webhook"},
		{"TodoNotFound", http.StatusNotFound, model.NewTodoNotFoundError("t1"), "todo"},
		{"MissingConfiguration", http.StatusInternalServerError, model.NewMissingConfigurationError("WEBHOOK_SECRET"), "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteErrorResponse(w, tt.statusCode, tt.err)

			resp := w.Result()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.statusCode)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.err.Code {
				t.Errorf("code = %q, want %q", body.Code, tt.err.Code)
			}
			if body.Category != tt.category {
				t.Errorf("category = %q, want %q", body.Category, tt.category)
			}
		})
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["code"] != model.ErrCodeInternal {
		t.Errorf("code = %v, want %q", raw["code"], model.ErrCodeInternal)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
