// Package subscription はユーザー名とプッシュ購読のレジストリを提供する。
// 購読はブラウザのプッシュAPIが発行した不透明なJSONオブジェクトとして扱い、
// 解釈せずに保存と転送のみを行う。
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound は指定ユーザーの購読が登録されていないことを表す。
var ErrNotFound = errors.New("購読が登録されていません")

// Registry はプッシュ購読レジストリの契約。
// 1ユーザーにつき最大1件の購読を保持し、再登録は上書きとなる。
// すべての変更操作は復帰前に同期的に永続化される。
type Registry interface {
	// Put は購読を登録する。既存の購読は上書きされる。
	Put(ctx context.Context, owner string, sub json.RawMessage) error
	// Get は購読を取得する。未登録の場合はErrNotFoundを返す。
	Get(ctx context.Context, owner string) (json.RawMessage, error)
	// Remove は購読を削除する。未登録の場合は何もしない。
	Remove(ctx context.Context, owner string) error
}

// FileRegistry はJSONスナップショットファイルを背後に持つ購読レジストリ。
// 変更と永続化は単一のロック下で実行され、同一ユーザーへの並行書き込みが
// 部分的なスナップショットを残すことはない。
type FileRegistry struct {
	// mu は変更とスナップショット書き込みを1つの原子的な操作として保護する。
	mu sync.RWMutex
	// path はスナップショットファイルのパス。
	path string
	// subs はユーザー名→購読のマッピング。
	subs map[string]json.RawMessage
}

// NewFileRegistry は指定パスのスナップショットを読み込んでレジストリを生成する。
// ファイルが存在しないか破損している場合は空の状態で初期化し、即座に書き出す。
func NewFileRegistry(path string) (*FileRegistry, error) {
	subs := make(map[string]json.RawMessage)

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &subs); jsonErr != nil {
			// 購読はクライアントが再登録できるため、破損時は空で初期化する
			subs = make(map[string]json.RawMessage)
		}
	case os.IsNotExist(err):
		// 初回起動
	default:
		return nil, fmt.Errorf("購読スナップショットの読み込みに失敗: %w", err)
	}

	r := &FileRegistry{path: path, subs: subs}
	if err := r.persistLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

// Put は購読を登録し、スナップショットを同期的に書き出す。
// 既存の購読は上書きされる（last-write-wins）。
func (r *FileRegistry) Put(_ context.Context, owner string, sub json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[owner] = sub
	return r.persistLocked()
}

// Get は指定ユーザーの購読を取得する。
func (r *FileRegistry) Get(_ context.Context, owner string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[owner]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

// Remove は指定ユーザーの購読を削除する。
// 未登録の場合はスナップショットを書き換えず正常終了する。
func (r *FileRegistry) Remove(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[owner]; !ok {
		return nil
	}
	delete(r.subs, owner)
	return r.persistLocked()
}

// persistLocked は全購読をスナップショットファイルへ書き出す。
// 呼び出し側でmuを保持していること。一時ファイルへの書き込み後に
// リネームすることで部分書き込みを防ぐ。
func (r *FileRegistry) persistLocked() error {
	data, err := json.MarshalIndent(r.subs, "", "  ")
	if err != nil {
		return fmt.Errorf("購読のシリアライズに失敗: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("購読スナップショットの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("購読スナップショットの置き換えに失敗: %w", err)
	}
	return nil
}
