// Package subscription は購読状態（有料アクセスの有効期限）のドメインロジックを提供する。
//
// 期限切れの購読は読み取り時に失効させる（遅延失効）。失効は
// subscription_endsが現在時刻より前の場合に限る条件付き更新で行うため、
// 同時に読み取りが発生しても結果は変わらない。
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/model"
	"github.com/hitoshi/subtodo/internal/repository"
)

// Service は購読状態のサービス層。
type Service struct {
	userRepo repository.UserRepository
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, m metrics.MetricsCollector, logger *slog.Logger) *Service {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{
		userRepo: userRepo,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus は遅延失効を適用した後の購読状態を返す。
// subscription_endsが現在時刻より前の場合は、読み取りの一部として
// is_subscribed=false, subscription_ends=NULLに更新してから返す。
func (s *Service) GetStatus(ctx context.Context, userID string) (*model.SubscriptionStatus, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !user.SubscriptionExpired(now) {
		return statusOf(user), nil
	}

	expired, err := s.expire(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if expired {
		return &model.SubscriptionStatus{IsSubscribed: false}, nil
	}

	// 同時に有効化または失効された場合は最新の状態を返す
	user, err = s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return statusOf(user), nil
}

// Activate は購読を有効化し、期限を現在時刻の1暦月後に設定する。
// 既存の期限は無条件に上書きする。決済は完了済みであることを前提とする。
func (s *Service) Activate(ctx context.Context, userID string) (*model.SubscriptionStatus, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	// TIMESTAMPTZはマイクロ秒精度のため、保存値とレスポンスを一致させる
	ends := AddCalendarMonth(s.now().Truncate(time.Microsecond))
	found, err := s.userRepo.UpdateSubscription(ctx, userID, true, &ends)
	if err != nil {
		return nil, fmt.Errorf("購読の有効化に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewUserNotFoundError()
	}

	s.metrics.RecordSubscriptionActivated()
	s.logger.Info("購読を有効化しました",
		slog.String("user_id", userID),
		slog.Time("subscription_ends", ends),
	)
	return &model.SubscriptionStatus{IsSubscribed: true, SubscriptionEnds: &ends}, nil
}

// Reconcile は指定ユーザーの購読が期限切れであれば失効させる。
// 失効させた場合はtrueを返す。何度呼び出しても結果は同じになる。
func (s *Service) Reconcile(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, model.NewMissingUserIDError()
	}
	return s.expire(ctx, userID, s.now())
}

// ReconcileAll は期限切れの全ユーザーの購読を失効させ、件数を返す。
// reconcileサブコマンドから一度だけ実行する。
func (s *Service) ReconcileAll(ctx context.Context) (int64, error) {
	start := s.now()
	n, err := s.userRepo.ExpireAllBefore(ctx, start)
	if err != nil {
		return 0, fmt.Errorf("購読の一括失効に失敗しました: %w", err)
	}

	s.metrics.RecordSubscriptionsExpired(int(n))
	s.logger.Info("期限切れの購読を一括失効しました",
		slog.Int64("expired", n),
		slog.Duration("duration", time.Since(start)),
	)
	return n, nil
}

func (s *Service) expire(ctx context.Context, userID string, now time.Time) (bool, error) {
	expired, err := s.userRepo.ExpireSubscription(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("購読の失効に失敗しました: %w", err)
	}
	if expired {
		s.metrics.RecordSubscriptionsExpired(1)
		s.logger.Info("期限切れの購読を失効しました", slog.String("user_id", userID))
	}
	return expired, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func statusOf(user *model.User) *model.SubscriptionStatus {
	return &model.SubscriptionStatus{
		IsSubscribed:     user.IsSubscribed,
		SubscriptionEnds: user.SubscriptionEnds,
	}
}
