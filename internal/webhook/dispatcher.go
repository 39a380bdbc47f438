package webhook

import (
	"context"
	"log/slog"

	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/model"
)

// UserDirectory はuser.*イベントを反映するユーザーディレクトリ。
type UserDirectory interface {
	HandleCreated(ctx context.Context, id, email string) (bool, error)
	HandleUpdated(ctx context.Context, id, email string) (bool, error)
	HandleDeleted(ctx context.Context, id string) (bool, error)
}

// Outcome はイベント処理の結果。
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeNoop      Outcome = "noop"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Result はディスパッチ結果。
type Result struct {
	Type    string
	Outcome Outcome
	UserID  string
}

// Dispatcher は検証済みイベントを種別ごとの処理に振り分ける。
type Dispatcher struct {
	users      UserDirectory
	deliveries DeliveryStore
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewDispatcher はDispatcherを生成する。
// deliveriesがnilの場合は重複排除を行わない。
func NewDispatcher(users UserDirectory, deliveries DeliveryStore, m metrics.MetricsCollector, logger *slog.Logger) *Dispatcher {
	if deliveries == nil {
		deliveries = NopDeliveryStore{}
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Dispatcher{
		users:      users,
		deliveries: deliveries,
		metrics:    m,
		logger:     logger,
	}
}

// Dispatch はイベントを処理する。deliveryIDはsvix-idヘッダーの値。
// 未知の種別は変更なしで受理する。
func (d *Dispatcher) Dispatch(ctx context.Context, deliveryID string, event *Event) (*Result, error) {
	result := &Result{Type: event.Type}
	log := d.logger.With(
		slog.String("event_type", event.Type),
		slog.String("delivery_id", deliveryID),
	)

	if deliveryID != "" {
		seen, err := d.deliveries.Seen(ctx, deliveryID)
		if err != nil {
			// ストア障害時も冪等な書き込みで処理を継続する
			log.Warn("配信IDの確認に失敗しました", slog.String("error", err.Error()))
		}
		if seen {
			result.Outcome = OutcomeDuplicate
			d.finish(log, result)
			return result, nil
		}
	}

	var err error
	switch event.Type {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		err = d.dispatchUser(ctx, event, result)
	default:
		result.Outcome = OutcomeIgnored
	}

	if err != nil {
		result.Outcome = OutcomeFailed
		d.finish(log, result)
		return result, err
	}

	if deliveryID != "" {
		if err := d.deliveries.MarkProcessed(ctx, deliveryID); err != nil {
			log.Warn("配信IDの記録に失敗しました", slog.String("error", err.Error()))
		}
	}
	d.finish(log, result)
	return result, nil
}

func (d *Dispatcher) dispatchUser(ctx context.Context, event *Event, result *Result) error {
	data, err := event.DecodeUserData()
	if err != nil {
		return model.NewInvalidRequestError("ユーザーデータの形式が不正です")
	}
	if data.ID == "" {
		return model.NewMissingUserIDError()
	}
	result.UserID = data.ID

	switch event.Type {
	case EventUserCreated:
		created, err := d.users.HandleCreated(ctx, data.ID, data.PrimaryEmail())
		if err != nil {
			return err
		}
		result.Outcome = outcomeOf(created)
	case EventUserUpdated:
		updated, err := d.users.HandleUpdated(ctx, data.ID, data.PrimaryEmail())
		if err != nil {
			return err
		}
		result.Outcome = outcomeOf(updated)
	case EventUserDeleted:
		deleted, err := d.users.HandleDeleted(ctx, data.ID)
		if err != nil {
			return err
		}
		result.Outcome = outcomeOf(deleted)
	}
	return nil
}

func outcomeOf(changed bool) Outcome {
	if changed {
		return OutcomeProcessed
	}
	return OutcomeNoop
}

func (d *Dispatcher) finish(log *slog.Logger, result *Result) {
	d.metrics.RecordWebhookEvent(result.Type, string(result.Outcome))
	attrs := []any{slog.String("outcome", string(result.Outcome))}
	if result.UserID != "" {
		attrs = append(attrs, slog.String("user_id", result.UserID))
	}
	if result.Outcome == OutcomeFailed {
		log.Warn("Webhookイベントの処理に失敗しました", attrs...)
		return
	}
	log.Info("Webhookイベントを処理しました", attrs...)
}
