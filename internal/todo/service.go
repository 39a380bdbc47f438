// Package todo はユーザーごとのTodoのドメインロジックを提供する。
// 変更操作は所有者本人のみが行える。
package todo

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/model"
	"github.com/hitoshi/subtodo/internal/repository"
	"github.com/hitoshi/subtodo/internal/security"
)

// MaxTitleLength はタイトルの最大文字数（サニタイズ後）。
const MaxTitleLength = 200

// SubscriptionChecker は遅延失効を適用した購読状態を返す。
type SubscriptionChecker interface {
	GetStatus(ctx context.Context, userID string) (*model.SubscriptionStatus, error)
}

// Config はTodoサービスの設定。
type Config struct {
	// FreeTodoLimit は未購読ユーザーが保持できるTodoの上限。0以下の場合は無制限。
	FreeTodoLimit int
}

// Service はTodoのサービス層。
type Service struct {
	todoRepo  repository.TodoRepository
	subs      SubscriptionChecker
	sanitizer security.TitleSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	config    Config
	now       func() time.Time
	newID     func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	todoRepo repository.TodoRepository,
	subs SubscriptionChecker,
	sanitizer security.TitleSanitizer,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Service {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{
		todoRepo:  todoRepo,
		subs:      subs,
		sanitizer: sanitizer,
		metrics:   m,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// List は呼び出し元のTodoを作成日時の新しい順で返す。
func (s *Service) List(ctx context.Context, callerID string) ([]*model.Todo, error) {
	if callerID == "" {
		return nil, model.NewUnauthorizedError()
	}
	todos, err := s.todoRepo.ListByUserID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("Todo一覧の取得に失敗しました: %w", err)
	}
	return todos, nil
}

// Create は呼び出し元のTodoを作成する。
// 未購読ユーザーは無料プランの上限件数までしか作成できない。
func (s *Service) Create(ctx context.Context, callerID, rawTitle string) (*model.Todo, error) {
	if callerID == "" {
		return nil, model.NewUnauthorizedError()
	}

	title := s.sanitizer.SanitizeTitle(rawTitle)
	if title == "" {
		return nil, model.NewInvalidRequestError("タイトルを入力してください")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("タイトルは%d文字以内で入力してください", MaxTitleLength))
	}

	// ユーザーの存在確認を兼ねる
	status, err := s.subs.GetStatus(ctx, callerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	todo := &model.Todo{
		ID:        s.newID(),
		UserID:    callerID,
		Title:     title,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if !status.IsSubscribed && s.config.FreeTodoLimit > 0 {
		created, err := s.todoRepo.CreateWithinLimit(ctx, todo, s.config.FreeTodoLimit)
		if err != nil {
			return nil, fmt.Errorf("Todoの作成に失敗しました: %w", err)
		}
		if !created {
			return nil, model.NewTodoLimitReachedError(s.config.FreeTodoLimit)
		}
	} else if err := s.todoRepo.Create(ctx, todo); err != nil {
		return nil, fmt.Errorf("Todoの作成に失敗しました: %w", err)
	}

	s.metrics.RecordTodoOperation("create")
	return todo, nil
}

// SetCompleted はcompletedのみを更新し、更新後のTodoを返す。
func (s *Service) SetCompleted(ctx context.Context, callerID, todoID string, completed bool) (*model.Todo, error) {
	if _, err := s.authorize(ctx, callerID, todoID); err != nil {
		return nil, err
	}

	updated, err := s.todoRepo.UpdateCompleted(ctx, todoID, completed)
	if err != nil {
		return nil, fmt.Errorf("Todoの更新に失敗しました: %w", err)
	}
	if updated == nil {
		// 確認後に削除された
		return nil, model.NewTodoNotFoundError(todoID)
	}

	s.metrics.RecordTodoOperation("update")
	return updated, nil
}

// Delete はTodoを削除する。
func (s *Service) Delete(ctx context.Context, callerID, todoID string) error {
	if _, err := s.authorize(ctx, callerID, todoID); err != nil {
		return err
	}

	deleted, err := s.todoRepo.Delete(ctx, todoID)
	if err != nil {
		return fmt.Errorf("Todoの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewTodoNotFoundError(todoID)
	}

	s.metrics.RecordTodoOperation("delete")
	return nil
}

// authorize はTodoの存在と所有者を確認する。
// 存在しない場合はTODO_NOT_FOUND、所有者以外の場合はFORBIDDENを返す。
func (s *Service) authorize(ctx context.Context, callerID, todoID string) (*model.Todo, error) {
	if callerID == "" {
		return nil, model.NewUnauthorizedError()
	}
	if todoID == "" {
		return nil, model.NewTodoNotFoundError(todoID)
	}

	todo, err := s.todoRepo.FindByID(ctx, todoID)
	if err != nil {
		return nil, fmt.Errorf("Todoの取得に失敗しました: %w", err)
	}
	if todo == nil {
		return nil, model.NewTodoNotFoundError(todoID)
	}
	if !todo.OwnedBy(callerID) {
		s.logger.Warn("所有者以外によるTodoの変更を拒否しました",
			slog.String("todo_id", todoID),
			slog.String("user_id", callerID),
		)
		return nil, model.NewForbiddenError("このTodoの所有者ではありません")
	}
	return todo, nil
}
