// Package credential はユーザー名とパスワードの資格情報ストアを提供する。
// 起動時に一度だけ読み込み、スナップショットが存在しないか壊れている場合は
// 既定のユーザーセットで初期化して即座に永続化する。
package credential

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// defaultUsers はスナップショット未作成時に投入する既定の資格情報。
// パスワードは平文で保持・比較する。既存データとの互換性維持のため
// ハッシュ化への移行は明示的なマイグレーションなしに行わないこと。
var defaultUsers = map[string]string{
	"kanna":  "pellam",
	"pellam": "kanna",
	"admin":  "admin123",
	"user1":  "meow",
	"user2":  "meow",
	"user3":  "meow",
}

// FileStore はJSONスナップショットファイルを背後に持つ資格情報ストア。
type FileStore struct {
	// mu はusersへのアクセスを保護する。
	mu sync.RWMutex
	// path はスナップショットファイルのパス。
	path string
	// users はユーザー名→パスワードのマッピング。
	users map[string]string
}

// NewFileStore は指定パスのスナップショットを読み込んでストアを生成する。
// ファイルが存在しないか破損している場合は既定ユーザーで初期化し、
// その内容を即座に書き出す。
func NewFileStore(path string) (*FileStore, error) {
	users := make(map[string]string, len(defaultUsers))

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &users); jsonErr != nil {
			log.Printf("資格情報スナップショットの読み込みに失敗したため既定値で初期化します: %v", jsonErr)
			users = copyDefaults()
		}
	case os.IsNotExist(err):
		users = copyDefaults()
	default:
		return nil, fmt.Errorf("資格情報スナップショットの読み込みに失敗: %w", err)
	}

	s := &FileStore{path: path, users: users}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

// Verify はユーザー名とパスワードの組が保存済みの資格情報と一致するか検証する。
// 比較は完全一致（タイミング攻撃対策として一定時間比較）で行う。
func (s *FileStore) Verify(_ context.Context, username, password string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.users[username]
	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, nil
}

// Exists は指定ユーザー名の資格情報が存在するか返す。
func (s *FileStore) Exists(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[username]
	return ok, nil
}

// persist は全資格情報をスナップショットファイルへ書き出す。
// 一時ファイルへの書き込み後にリネームすることで部分書き込みを防ぐ。
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("資格情報のシリアライズに失敗: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("資格情報スナップショットの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("資格情報スナップショットの置き換えに失敗: %w", err)
	}
	return nil
}

// copyDefaults は既定の資格情報のコピーを返す。
func copyDefaults() map[string]string {
	users := make(map[string]string, len(defaultUsers))
	for name, password := range defaultUsers {
		users[name] = password
	}
	return users
}
