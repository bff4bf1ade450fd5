package credential

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
)

// schema は資格情報テーブルの定義。
const schema = `
CREATE TABLE IF NOT EXISTS credentials (
    -- ユーザー名（システム全体で一意）
    username TEXT PRIMARY KEY,
    -- パスワード（平文。設計ノート参照）
    password TEXT NOT NULL
);
`

// SQLiteStore はSQLiteデータベースを背後に持つ資格情報ストア。
// FileStoreと同一の契約を提供し、サービス層の変更なしに差し替えられる。
type SQLiteStore struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewSQLiteStore はスキーマを適用してストアを生成する。
// テーブルが空の場合は既定ユーザーを投入する。
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("資格情報スキーマの適用に失敗: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&count); err != nil {
		return nil, fmt.Errorf("資格情報件数の取得に失敗: %w", err)
	}

	if count == 0 {
		for username, password := range defaultUsers {
			if _, err := db.Exec(
				"INSERT INTO credentials (username, password) VALUES (?, ?)",
				username, password,
			); err != nil {
				return nil, fmt.Errorf("既定資格情報の投入に失敗: %w", err)
			}
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Verify はユーザー名とパスワードの組が保存済みの資格情報と一致するか検証する。
func (s *SQLiteStore) Verify(ctx context.Context, username, password string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		"SELECT password FROM credentials WHERE username = ?", username,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("資格情報の取得に失敗: %w", err)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, nil
}

// Exists は指定ユーザー名の資格情報が存在するか返す。
func (s *SQLiteStore) Exists(ctx context.Context, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM credentials WHERE username = ?", username,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("資格情報の存在確認に失敗: %w", err)
	}
	return count > 0, nil
}
