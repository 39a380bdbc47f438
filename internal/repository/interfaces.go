// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/subtodo/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateIfNotExists はユーザーを作成する。
	// 同一IDのユーザーが既に存在する場合は何もせずfalseを返す。
	// 同時配信による競合はデータベースの一意制約で解決する。
	CreateIfNotExists(ctx context.Context, user *model.User) (bool, error)

	// UpdateEmail はメールアドレスを更新する。ユーザーが存在しない場合はfalseを返す。
	UpdateEmail(ctx context.Context, id, email string) (bool, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 存在しない場合もエラーにはせず、falseを返す。関連するtodosはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) (bool, error)

	// UpdateSubscription は購読状態を上書きする。ユーザーが存在しない場合はfalseを返す。
	UpdateSubscription(ctx context.Context, id string, isSubscribed bool, ends *time.Time) (bool, error)

	// ExpireSubscription はsubscription_endsがnowより前の場合に限り購読を失効させる。
	// 失効させた場合はtrueを返す。条件付き更新のため並行実行しても結果は同じになる。
	ExpireSubscription(ctx context.Context, id string, now time.Time) (bool, error)

	// ExpireAllBefore はsubscription_endsがnowより前の全ユーザーの購読を失効させ、件数を返す。
	ExpireAllBefore(ctx context.Context, now time.Time) (int64, error)

	// Count は登録ユーザー数を返す。
	Count(ctx context.Context) (int, error)
}

// TodoRepository はTodoデータの永続化インターフェース。
type TodoRepository interface {
	// FindByID は指定IDのTodoを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Todo, error)

	// Create はTodoを作成する。
	Create(ctx context.Context, todo *model.Todo) error

	// CreateWithinLimit は件数がlimit未満の場合のみTodoを作成する。
	// 件数確認と作成は同一ユーザーに対して直列化される。作成した場合はtrueを返す。
	CreateWithinLimit(ctx context.Context, todo *model.Todo, limit int) (bool, error)

	// ListByUserID はユーザーのTodoを作成日時の新しい順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error)

	// CountByUserID はユーザーのTodo件数を返す。
	CountByUserID(ctx context.Context, userID string) (int, error)

	// UpdateCompleted はcompletedのみを更新し、更新後のTodoを返す。
	// 見つからない場合はnilを返す。
	UpdateCompleted(ctx context.Context, id string, completed bool) (*model.Todo, error)

	// Delete は指定IDのTodoを削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id string) (bool, error)
}
