package auth

import (
	"sync"
	"time"
)

// revocationSet はログアウト済みトークンの集合。
// 各エントリはトークン自身の有効期限を寿命として持ち、期限切れの
// エントリは変更操作のたびに掃き出される。期限切れトークンは
// 署名検証の時点で拒否されるため、保持し続ける必要がない。
type revocationSet struct {
	// mu はtokensへのアクセスを保護する。
	mu sync.Mutex
	// tokens はトークン→そのトークンの有効期限のマッピング。
	tokens map[string]time.Time
}

// newRevocationSet は空の失効セットを生成する。
func newRevocationSet() *revocationSet {
	return &revocationSet{tokens: make(map[string]time.Time)}
}

// Add はトークンを失効セットに追加する。追加済みの場合は何もしない。
// 追加のたびに期限切れエントリを掃き出し、セットの無制限な成長を防ぐ。
func (r *revocationSet) Add(token string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for t, exp := range r.tokens {
		if exp.Before(now) {
			delete(r.tokens, t)
		}
	}

	if expiresAt.After(now) {
		r.tokens[token] = expiresAt
	}
}

// Contains はトークンが失効済みか返す。
// エントリの寿命が尽きている場合は失効扱いにしない
// （そのトークンは有効期限検証で拒否される）。
func (r *revocationSet) Contains(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.tokens[token]
	if !ok {
		return false
	}
	if exp.Before(time.Now()) {
		delete(r.tokens, token)
		return false
	}
	return true
}

// Len は失効セットの現在のエントリ数を返す。
func (r *revocationSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
