// Package role は管理者のみが実行できるロール変更（付与・解除）を提供する。
// ロールはIdPのpublic metadataに保持され、ローカルには永続化しない。
package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/hitoshi/subtodo/internal/clerk"
	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/model"
)

// rolePattern はロール名として許可する形式。
var rolePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

// Provider はIdP上のロールを変更するインターフェース。
type Provider interface {
	Configured() bool
	SetRole(ctx context.Context, userID, role string) error
	RemoveRole(ctx context.Context, userID string) error
}

var _ Provider = (*clerk.Client)(nil)

// Service はロール変更のサービス層。
type Service struct {
	provider Provider
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(provider Provider, m metrics.MetricsCollector, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{
		provider: provider,
		metrics:  m,
		logger:   logger,
	}
}

// SetRole は対象ユーザーのロールを上書きする。呼び出し元は管理者である必要がある。
func (s *Service) SetRole(ctx context.Context, caller *model.Caller, targetUserID, role string) error {
	if err := s.authorize(caller, "set", targetUserID); err != nil {
		return err
	}
	if !rolePattern.MatchString(role) {
		s.metrics.RecordRoleChange("set", "invalid")
		return model.NewInvalidRoleError(role)
	}
	if err := s.ensureConfigured("set"); err != nil {
		return err
	}

	if err := s.provider.SetRole(ctx, targetUserID, role); err != nil {
		return s.providerError("set", targetUserID, err)
	}

	s.metrics.RecordRoleChange("set", "success")
	s.logger.Info("ロールを設定しました",
		slog.String("actor_id", caller.UserID),
		slog.String("target_id", targetUserID),
		slog.String("role", role),
	)
	return nil
}

// RemoveRole は対象ユーザーのロールを解除する。呼び出し元は管理者である必要がある。
func (s *Service) RemoveRole(ctx context.Context, caller *model.Caller, targetUserID string) error {
	if err := s.authorize(caller, "remove", targetUserID); err != nil {
		return err
	}
	if err := s.ensureConfigured("remove"); err != nil {
		return err
	}

	if err := s.provider.RemoveRole(ctx, targetUserID); err != nil {
		return s.providerError("remove", targetUserID, err)
	}

	s.metrics.RecordRoleChange("remove", "success")
	s.logger.Info("ロールを解除しました",
		slog.String("actor_id", caller.UserID),
		slog.String("target_id", targetUserID),
	)
	return nil
}

func (s *Service) authorize(caller *model.Caller, action, targetUserID string) error {
	if caller == nil || caller.UserID == "" {
		s.metrics.RecordRoleChange(action, "unauthorized")
		return model.NewUnauthorizedError()
	}
	if !caller.IsAdmin() {
		s.metrics.RecordRoleChange(action, "forbidden")
		s.logger.Warn("管理者以外によるロール変更を拒否しました",
			slog.String("actor_id", caller.UserID),
			slog.String("target_id", targetUserID),
			slog.String("action", action),
		)
		return model.NewForbiddenError("管理者ロールが必要です")
	}
	if targetUserID == "" {
		s.metrics.RecordRoleChange(action, "invalid")
		return model.NewInvalidRequestError("対象ユーザーIDを指定してください")
	}
	return nil
}

func (s *Service) ensureConfigured(action string) error {
	if s.provider == nil || !s.provider.Configured() {
		s.metrics.RecordRoleChange(action, "error")
		return model.NewMissingConfigurationError("CLERK_SECRET_KEY")
	}
	return nil
}

func (s *Service) providerError(action, targetUserID string, err error) error {
	if errors.Is(err, clerk.ErrUserNotFound) {
		s.metrics.RecordRoleChange(action, "not_found")
		return model.NewUserNotFoundError()
	}
	s.metrics.RecordRoleChange(action, "error")
	return fmt.Errorf("ロールの変更に失敗しました（user=%s）: %w", targetUserID, err)
}
