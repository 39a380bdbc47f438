package repository

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/hitoshi/subtodo/internal/database"
)

// setupTestDB はマイグレーション適用済みのテスト用データベースを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はテストをスキップする。
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	if _, err := db.Exec(`
		DROP TABLE IF EXISTS todos CASCADE;
		DROP TABLE IF EXISTS users CASCADE;
		DROP TABLE IF EXISTS schema_migrations CASCADE;
	`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	return db
}
