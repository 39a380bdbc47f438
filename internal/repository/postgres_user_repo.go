package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/subtodo/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var ends sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, is_subscribed, subscription_ends, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.IsSubscribed, &ends, &user.CreatedAt, &user.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	if ends.Valid {
		t := ends.Time
		user.SubscriptionEnds = &t
	}
	return user, nil
}

// CreateIfNotExists はユーザーを作成する。既に存在する場合はfalseを返す。
func (r *PostgresUserRepo) CreateIfNotExists(ctx context.Context, user *model.User) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, is_subscribed, subscription_ends, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		user.ID, user.Email, user.IsSubscribed, nullTime(user.SubscriptionEnds), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}
	return affected(result)
}

// UpdateEmail はメールアドレスを更新する。ユーザーが存在しない場合はfalseを返す。
func (r *PostgresUserRepo) UpdateEmail(ctx context.Context, id, email string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, updated_at = now() WHERE id = $1`,
		id, email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user email: %w", err)
	}
	return affected(result)
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するtodosはCASCADE削除される。存在しない場合はfalseを返す。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return affected(result)
}

// UpdateSubscription は購読状態を上書きする。
func (r *PostgresUserRepo) UpdateSubscription(ctx context.Context, id string, isSubscribed bool, ends *time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_subscribed = $2, subscription_ends = $3, updated_at = now() WHERE id = $1`,
		id, isSubscribed, nullTime(ends),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}
	return affected(result)
}

// ExpireSubscription はsubscription_endsがnowより前の場合に限り購読を失効させる。
func (r *PostgresUserRepo) ExpireSubscription(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_subscribed = false, subscription_ends = NULL, updated_at = now()
		 WHERE id = $1 AND subscription_ends < $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire subscription: %w", err)
	}
	return affected(result)
}

// ExpireAllBefore はsubscription_endsがnowより前の全ユーザーの購読を失効させる。
func (r *PostgresUserRepo) ExpireAllBefore(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_subscribed = false, subscription_ends = NULL, updated_at = now()
		 WHERE subscription_ends < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Count は登録ユーザー数を返す。
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
