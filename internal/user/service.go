// Package user はIdPのWebhookイベントに基づくユーザーディレクトリのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/subtodo/internal/model"
	"github.com/hitoshi/subtodo/internal/repository"
)

// Service はユーザーディレクトリのサービス層。
// user.created / user.updated / user.deleted の反映と件数取得を提供する。
type Service struct {
	userRepo repository.UserRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleCreated はユーザーを作成する。
// 同一IDのユーザーが既に存在する場合は何もせずfalseを返す（少なくとも1回配信の再送を想定）。
// 新規ユーザーは未購読で、subscription_endsには作成時刻が入る。
func (s *Service) HandleCreated(ctx context.Context, id, email string) (bool, error) {
	if id == "" {
		return false, model.NewMissingUserIDError()
	}
	if email == "" {
		return false, model.NewMissingEmailError()
	}

	now := s.now()
	created, err := s.userRepo.CreateIfNotExists(ctx, &model.User{
		ID:               id,
		Email:            email,
		IsSubscribed:     false,
		SubscriptionEnds: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return false, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	if created {
		s.logger.Info("ユーザーを作成しました", slog.String("user_id", id))
	} else {
		s.logger.Info("ユーザーは既に存在するため作成をスキップしました", slog.String("user_id", id))
	}
	return created, nil
}

// HandleUpdated はメールアドレスを更新する。更新した場合はtrueを返す。
// メールアドレスを含まないイベントは保存済みの値を維持し、falseを返す。
// ユーザーが存在しない場合は不整合としてUSER_NOT_FOUNDを返す。
func (s *Service) HandleUpdated(ctx context.Context, id, email string) (bool, error) {
	if id == "" {
		return false, model.NewMissingUserIDError()
	}
	if email == "" {
		user, err := s.userRepo.FindByID(ctx, id)
		if err != nil {
			return false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user == nil {
			s.logger.Warn("更新対象のユーザーが存在しません", slog.String("user_id", id))
			return false, model.NewUserNotFoundError()
		}
		s.logger.Info("メールアドレスを含まない更新イベントのため変更しません", slog.String("user_id", id))
		return false, nil
	}

	found, err := s.userRepo.UpdateEmail(ctx, id, email)
	if err != nil {
		return false, fmt.Errorf("メールアドレスの更新に失敗しました: %w", err)
	}
	if !found {
		s.logger.Warn("更新対象のユーザーが存在しません", slog.String("user_id", id))
		return false, model.NewUserNotFoundError()
	}

	s.logger.Info("ユーザーのメールアドレスを更新しました", slog.String("user_id", id))
	return true, nil
}

// HandleDeleted はユーザーを削除する。Todoはデータベース側でCASCADE削除される。
// 既に存在しない場合も成功として扱い、falseを返す。
func (s *Service) HandleDeleted(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, model.NewMissingUserIDError()
	}

	deleted, err := s.userRepo.DeleteByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	if deleted {
		s.logger.Info("ユーザーを削除しました", slog.String("user_id", id))
	}
	return deleted, nil
}

// CountUsers は登録ユーザー数を返す。
func (s *Service) CountUsers(ctx context.Context) (int, error) {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	return count, nil
}
