package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subtodo/internal/model"
)

// TodoServiceInterface はTodoハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	List(ctx context.Context, callerID string) ([]*model.Todo, error)
	Create(ctx context.Context, callerID, title string) (*model.Todo, error)
	SetCompleted(ctx context.Context, callerID, todoID string, completed bool) (*model.Todo, error)
	Delete(ctx context.Context, callerID, todoID string) error
}

// TodoHandler はTodoのHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{
		service: service,
	}
}

// todoResponse はTodoのAPIレスポンス。
type todoResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// createTodoRequest はTodo作成リクエストのボディ。
type createTodoRequest struct {
	Title string `json:"title"`
}

// updateTodoRequest はTodo更新リクエストのボディ。completedは必須。
type updateTodoRequest struct {
	Completed *bool `json:"completed"`
}

func toTodoResponse(t *model.Todo) todoResponse {
	return todoResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Title:     t.Title,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// List は呼び出し元のTodo一覧を返す。
// GET /api/todos
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	todos, err := h.service.List(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]todoResponse, len(todos))
	for i, t := range todos {
		results[i] = toTodoResponse(t)
	}
	writeJSON(w, http.StatusOK, results)
}

// Create はTodoを作成する。
// POST /api/todos
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req createTodoRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	todo, err := h.service.Create(r.Context(), caller.UserID, req.Title)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTodoResponse(todo))
}

// Update はTodoの完了状態を更新する。
// PUT /api/todos/{id}
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req updateTodoRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Completed == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("completedを指定してください"))
		return
	}

	todo, err := h.service.SetCompleted(r.Context(), caller.UserID, chi.URLParam(r, "id"), *req.Completed)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTodoResponse(todo))
}

// Delete はTodoを削除する。
// DELETE /api/todos/{id}
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller.UserID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Todo deleted"})
}
