package subscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// schema は購読テーブルの定義。
const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    -- 購読の所有者（1ユーザーにつき1件）
    username TEXT PRIMARY KEY,
    -- ブラウザが発行した購読オブジェクト（不透明なJSON）
    subscription TEXT NOT NULL
);
`

// SQLiteRegistry はSQLiteデータベースを背後に持つ購読レジストリ。
// FileRegistryと同一の契約を提供し、サービス層の変更なしに差し替えられる。
type SQLiteRegistry struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewSQLiteRegistry はスキーマを適用してレジストリを生成する。
func NewSQLiteRegistry(db *sql.DB) (*SQLiteRegistry, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("購読スキーマの適用に失敗: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

// Put は購読を登録する。既存の購読は上書きされる（last-write-wins）。
func (r *SQLiteRegistry) Put(ctx context.Context, owner string, sub json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (username, subscription) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET subscription = excluded.subscription
	`, owner, string(sub))
	if err != nil {
		return fmt.Errorf("購読の登録に失敗: %w", err)
	}
	return nil
}

// Get は指定ユーザーの購読を取得する。未登録の場合はErrNotFoundを返す。
func (r *SQLiteRegistry) Get(ctx context.Context, owner string) (json.RawMessage, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		"SELECT subscription FROM subscriptions WHERE username = ?", owner,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗: %w", err)
	}
	return json.RawMessage(raw), nil
}

// Remove は指定ユーザーの購読を削除する。未登録の場合は何もしない。
func (r *SQLiteRegistry) Remove(ctx context.Context, owner string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM subscriptions WHERE username = ?", owner,
	); err != nil {
		return fmt.Errorf("購読の削除に失敗: %w", err)
	}
	return nil
}
