package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/subtodo/internal/model"
)

// PostgresTodoRepo はPostgreSQLを使用したTodoリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

const todoColumns = `id, user_id, title, completed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*model.Todo, error) {
	todo := &model.Todo{}
	if err := row.Scan(&todo.ID, &todo.UserID, &todo.Title, &todo.Completed, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
		return nil, err
	}
	return todo, nil
}

// FindByID は指定IDのTodoを取得する。見つからない場合はnilを返す。
func (r *PostgresTodoRepo) FindByID(ctx context.Context, id string) (*model.Todo, error) {
	todo, err := scanTodo(r.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find todo by ID: %w", err)
	}
	return todo, nil
}

// Create はTodoを作成する。
func (r *PostgresTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO todos (id, user_id, title, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		todo.ID, todo.UserID, todo.Title, todo.Completed, todo.CreatedAt, todo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create todo: %w", err)
	}
	return nil
}

// CreateWithinLimit は件数がlimit未満の場合のみTodoを作成する。作成した場合はtrueを返す。
// 所有ユーザーの行をロックし、同一ユーザーの作成を直列化する。
func (r *PostgresTodoRepo) CreateWithinLimit(ctx context.Context, todo *model.Todo, limit int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE id = $1 FOR UPDATE`,
		todo.UserID,
	).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("failed to lock todo owner: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM todos WHERE user_id = $1`,
		todo.UserID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count todos: %w", err)
	}
	if count >= limit {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO todos (id, user_id, title, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		todo.ID, todo.UserID, todo.Title, todo.Completed, todo.CreatedAt, todo.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create todo: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ListByUserID はユーザーのTodoを作成日時の新しい順で返す。
func (r *PostgresTodoRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE user_id = $1 ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := make([]*model.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate todos: %w", err)
	}
	return todos, nil
}

// CountByUserID はユーザーのTodo件数を返す。
func (r *PostgresTodoRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM todos WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count todos: %w", err)
	}
	return count, nil
}

// UpdateCompleted はcompletedのみを更新し、更新後のTodoを返す。
func (r *PostgresTodoRepo) UpdateCompleted(ctx context.Context, id string, completed bool) (*model.Todo, error) {
	todo, err := scanTodo(r.db.QueryRowContext(ctx,
		`UPDATE todos SET completed = $2, updated_at = now() WHERE id = $1
		 RETURNING `+todoColumns,
		id, completed,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update todo: %w", err)
	}
	return todo, nil
}

// Delete は指定IDのTodoを削除する。削除した場合はtrueを返す。
func (r *PostgresTodoRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete todo: %w", err)
	}
	return affected(result)
}

// compile-time interface check
var _ TodoRepository = (*PostgresTodoRepo)(nil)
