package todo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/subtodo/internal/logger"
	"github.com/hitoshi/subtodo/internal/metrics"
	"github.com/hitoshi/subtodo/internal/model"
	"github.com/hitoshi/subtodo/internal/security"
)

// --- モック ---

// mockTodoRepo はIDをキーにしたインメモリのTodoRepository。
type mockTodoRepo struct {
	todos map[string]*model.Todo

	createErr error
	countErr  error
	findErr   error

	limitedCreates int
}

func newMockTodoRepo(todos ...*model.Todo) *mockTodoRepo {
	m := &mockTodoRepo{todos: make(map[string]*model.Todo)}
	for _, td := range todos {
		m.todos[td.ID] = td
	}
	return m
}

func (m *mockTodoRepo) FindByID(ctx context.Context, id string) (*model.Todo, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	td, ok := m.todos[id]
	if !ok {
		return nil, nil
	}
	copied := *td
	return &copied, nil
}
func (m *mockTodoRepo) Create(ctx context.Context, todo *model.Todo) error {
	if m.createErr != nil {
		return m.createErr
	}
	copied := *todo
	m.todos[todo.ID] = &copied
	return nil
}
func (m *mockTodoRepo) CreateWithinLimit(ctx context.Context, todo *model.Todo, limit int) (bool, error) {
	m.limitedCreates++
	count, err := m.CountByUserID(ctx, todo.UserID)
	if err != nil {
		return false, err
	}
	if count >= limit {
		return false, nil
	}
	return true, m.Create(ctx, todo)
}
func (m *mockTodoRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Todo, error) {
	out := []*model.Todo{}
	for _, td := range m.todos {
		if td.UserID == userID {
			copied := *td
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
func (m *mockTodoRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, td := range m.todos {
		if td.UserID == userID {
			n++
		}
	}
	return n, nil
}
func (m *mockTodoRepo) UpdateCompleted(ctx context.Context, id string, completed bool) (*model.Todo, error) {
	td, ok := m.todos[id]
	if !ok {
		return nil, nil
	}
	td.Completed = completed
	copied := *td
	return &copied, nil
}
func (m *mockTodoRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := m.todos[id]; !ok {
		return false, nil
	}
	delete(m.todos, id)
	return true, nil
}

// mockSubscriptions はユーザーIDごとの購読状態を返す。登録のないユーザーはUSER_NOT_FOUND。
type mockSubscriptions struct {
	statuses map[string]bool
	err      error
}

func (m *mockSubscriptions) GetStatus(ctx context.Context, userID string) (*model.SubscriptionStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	subscribed, ok := m.statuses[userID]
	if !ok {
		return nil, model.NewUserNotFoundError()
	}
	return &model.SubscriptionStatus{IsSubscribed: subscribed}, nil
}

type countingMetrics struct {
	metrics.NopCollector
	ops map[string]int
}

func (c *countingMetrics) RecordTodoOperation(op string) { c.ops[op]++ }

// --- ヘルパー ---

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repo    *mockTodoRepo
	subs    *mockSubscriptions
	metrics *countingMetrics
}

func newFixture(limit int, todos ...*model.Todo) *fixture {
	repo := newMockTodoRepo(todos...)
	subs := &mockSubscriptions{statuses: map[string]bool{"free": false, "paid": true, "other": false}}
	m := &countingMetrics{ops: make(map[string]int)}
	svc := NewService(repo, subs, security.NewTitleSanitizer(), m, logger.Discard(), Config{FreeTodoLimit: limit})
	svc.now = func() time.Time { return fixedNow }
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("todo-%d", seq)
	}
	return &fixture{svc: svc, repo: repo, subs: subs, metrics: m}
}

func ownedTodo(id, userID string, createdAt time.Time) *model.Todo {
	return &model.Todo{ID: id, UserID: userID, Title: "title " + id, CreatedAt: createdAt, UpdatedAt: createdAt}
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %s, want %s", apiErr.Code, code)
	}
}

// --- List ---

func TestList_ReturnsOnlyCallerTodosNewestFirst(t *testing.T) {
	f := newFixture(3,
		ownedTodo("a", "free", fixedNow.Add(-2*time.Hour)),
		ownedTodo("b", "free", fixedNow.Add(-1*time.Hour)),
		ownedTodo("c", "other", fixedNow),
	)

	todos, err := f.svc.List(context.Background(), "free")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("len(todos) = %d, want 2", len(todos))
	}
	if todos[0].ID != "b" || todos[1].ID != "a" {
		t.Errorf("order = [%s %s], want [b a]", todos[0].ID, todos[1].ID)
	}
}

func TestList_NoTodos_ReturnsEmptySlice(t *testing.T) {
	f := newFixture(3)

	todos, err := f.svc.List(context.Background(), "free")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if todos == nil || len(todos) != 0 {
		t.Errorf("todos = %v, want empty non-nil slice", todos)
	}
}

func TestList_EmptyCaller_ReturnsUnauthorized(t *testing.T) {
	f := newFixture(3)

	_, err := f.svc.List(context.Background(), "")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

// --- Create ---

func TestCreate_StoresSanitizedTitle(t *testing.T) {
	f := newFixture(3)

	todo, err := f.svc.Create(context.Background(), "free", "  <b>Buy</b>   milk<script>alert(1)</script> ")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if todo.Title != "Buy milk" {
		t.Errorf("Title = %q, want %q", todo.Title, "Buy milk")
	}
	if todo.ID != "todo-1" || todo.UserID != "free" || todo.Completed {
		t.Errorf("todo = %+v", todo)
	}
	if !todo.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", todo.CreatedAt, fixedNow)
	}
	if _, ok := f.repo.todos["todo-1"]; !ok {
		t.Error("todo was not persisted")
	}
	if f.metrics.ops["create"] != 1 {
		t.Errorf("create operations = %d, want 1", f.metrics.ops["create"])
	}
}

func TestCreate_EmptyTitle_ReturnsInvalidRequest(t *testing.T) {
	f := newFixture(3)

	for _, title := range []string{"", "   ", "<i></i>"} {
		_, err := f.svc.Create(context.Background(), "free", title)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
	}
	if len(f.repo.todos) != 0 {
		t.Errorf("todos = %d, want 0", len(f.repo.todos))
	}
}

func TestCreate_TitleTooLong_ReturnsInvalidRequest(t *testing.T) {
	f := newFixture(3)

	_, err := f.svc.Create(context.Background(), "free", strings.Repeat("あ", MaxTitleLength+1))
	assertAPIErrorCode(t, err, model.ErrCodeInvalidRequest)

	if _, err := f.svc.Create(context.Background(), "free", strings.Repeat("あ", MaxTitleLength)); err != nil {
		t.Errorf("title with %d runes should be accepted, got %v", MaxTitleLength, err)
	}
}

func TestCreate_FreeUserAtLimit_ReturnsTodoLimitReached(t *testing.T) {
	f := newFixture(2,
		ownedTodo("a", "free", fixedNow),
		ownedTodo("b", "free", fixedNow),
	)

	_, err := f.svc.Create(context.Background(), "free", "third")
	assertAPIErrorCode(t, err, model.ErrCodeTodoLimitReached)
	if len(f.repo.todos) != 2 {
		t.Errorf("todos = %d, want 2", len(f.repo.todos))
	}
}

func TestCreate_FreeUser_UsesLimitedInsert(t *testing.T) {
	f := newFixture(2, ownedTodo("a", "free", fixedNow))

	if _, err := f.svc.Create(context.Background(), "free", "second"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if f.repo.limitedCreates != 1 {
		t.Errorf("limited creates = %d, want 1", f.repo.limitedCreates)
	}
	if len(f.repo.todos) != 2 {
		t.Errorf("todos = %d, want 2", len(f.repo.todos))
	}
}

func TestCreate_FreeUser_LimitedInsertError_IsWrapped(t *testing.T) {
	f := newFixture(2)
	dbErr := errors.New("lock timeout")
	f.repo.countErr = dbErr

	_, err := f.svc.Create(context.Background(), "free", "task")
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapping %v", err, dbErr)
	}
	if f.metrics.ops["create"] != 0 {
		t.Errorf("create operations = %d, want 0", f.metrics.ops["create"])
	}
}

func TestCreate_SubscribedUser_IgnoresLimit(t *testing.T) {
	f := newFixture(1, ownedTodo("a", "paid", fixedNow))

	if _, err := f.svc.Create(context.Background(), "paid", "second"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if f.repo.limitedCreates != 0 {
		t.Errorf("limited creates = %d, want 0", f.repo.limitedCreates)
	}
}

func TestCreate_ZeroLimit_IsUnlimited(t *testing.T) {
	f := newFixture(0, ownedTodo("a", "free", fixedNow))

	if _, err := f.svc.Create(context.Background(), "free", "second"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if f.repo.limitedCreates != 0 {
		t.Errorf("limited creates = %d, want 0", f.repo.limitedCreates)
	}
}

func TestCreate_UnknownUser_ReturnsUserNotFound(t *testing.T) {
	f := newFixture(3)

	_, err := f.svc.Create(context.Background(), "ghost", "task")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

func TestCreate_EmptyCaller_ReturnsUnauthorized(t *testing.T) {
	f := newFixture(3)

	_, err := f.svc.Create(context.Background(), "", "task")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestCreate_RepositoryError_IsWrapped(t *testing.T) {
	f := newFixture(3)
	dbErr := errors.New("connection refused")
	f.repo.createErr = dbErr

	_, err := f.svc.Create(context.Background(), "free", "task")
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapping %v", err, dbErr)
	}
}

// --- SetCompleted ---

func TestSetCompleted_Owner_UpdatesOnlyCompleted(t *testing.T) {
	f := newFixture(3, ownedTodo("a", "free", fixedNow))

	updated, err := f.svc.SetCompleted(context.Background(), "free", "a", true)
	if err != nil {
		t.Fatalf("SetCompleted returned error: %v", err)
	}
	if !updated.Completed {
		t.Error("Completed = false, want true")
	}
	if updated.Title != "title a" {
		t.Errorf("Title = %q, want unchanged", updated.Title)
	}
	if f.metrics.ops["update"] != 1 {
		t.Errorf("update operations = %d, want 1", f.metrics.ops["update"])
	}
}

func TestSetCompleted_NonOwner_ReturnsForbiddenAndLeavesRecord(t *testing.T) {
	f := newFixture(3, ownedTodo("a", "free", fixedNow))

	_, err := f.svc.SetCompleted(context.Background(), "other", "a", true)
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)

	if f.repo.todos["a"].Completed {
		t.Error("todo was modified by non-owner")
	}
}

func TestSetCompleted_Missing_ReturnsTodoNotFound(t *testing.T) {
	f := newFixture(3)

	_, err := f.svc.SetCompleted(context.Background(), "free", "missing", true)
	assertAPIErrorCode(t, err, model.ErrCodeTodoNotFound)
}

func TestSetCompleted_FindError_IsWrapped(t *testing.T) {
	f := newFixture(3, ownedTodo("a", "free", fixedNow))
	dbErr := errors.New("timeout")
	f.repo.findErr = dbErr

	_, err := f.svc.SetCompleted(context.Background(), "free", "a", true)
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapping %v", err, dbErr)
	}
}

// --- Delete ---

func TestDelete_Owner_RemovesTodo(t *testing.T) {
	f := newFixture(3, ownedTodo("a", "free", fixedNow))

	if err := f.svc.Delete(context.Background(), "free", "a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, ok := f.repo.todos["a"]; ok {
		t.Error("todo still exists")
	}
	if f.metrics.ops["delete"] != 1 {
		t.Errorf("delete operations = %d, want 1", f.metrics.ops["delete"])
	}
}

func TestDelete_NonOwner_ReturnsForbiddenAndKeepsTodo(t *testing.T) {
	f := newFixture(3, ownedTodo("a", "free", fixedNow))

	err := f.svc.Delete(context.Background(), "other", "a")
	assertAPIErrorCode(t, err, model.ErrCodeForbidden)

	if _, ok := f.repo.todos["a"]; !ok {
		t.Error("todo was deleted by non-owner")
	}
}

func TestDelete_Missing_ReturnsTodoNotFound(t *testing.T) {
	f := newFixture(3)

	err := f.svc.Delete(context.Background(), "free", "missing")
	assertAPIErrorCode(t, err, model.ErrCodeTodoNotFound)
}

func TestDelete_EmptyCaller_ReturnsUnauthorized(t *testing.T) {
	f := newFixture(3, ownedTodo("a", "free", fixedNow))

	err := f.svc.Delete(context.Background(), "", "a")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}
