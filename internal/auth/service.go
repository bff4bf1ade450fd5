// Package auth はセッショントークンの発行・検証・失効を提供する。
// トークンはHS256署名付きJWTで、ユーザー名と有効期限を保持する。
// ログアウトしたトークンはプロセス存続期間の失効セットで管理する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrValidation は入力が形式ルールを満たしていないことを表す。
	ErrValidation = errors.New("入力が不正です")
	// ErrUnknownUser は指定ユーザーが存在しないことを表す。
	ErrUnknownUser = errors.New("ユーザーが存在しません")
	// ErrBadPassword はパスワードが一致しないことを表す。
	ErrBadPassword = errors.New("パスワードが一致しません")
	// ErrUnauthenticated はトークンが欠落しているか形式が不正であることを表す。
	ErrUnauthenticated = errors.New("認証情報がありません")
	// ErrInvalidToken は署名検証の失敗または有効期限切れを表す。
	ErrInvalidToken = errors.New("トークンが無効です")
	// ErrRevoked はトークンがログアウトにより失効済みであることを表す。
	ErrRevoked = errors.New("トークンは失効しています。再度ログインしてください")
	// ErrRateLimited はログイン試行の割り当てを超過したことを表す。
	ErrRateLimited = errors.New("ログイン試行回数が上限を超えました。しばらくしてから再試行してください")
)

// 入力の形式ルール。サービス層とHTTP層の両方で同じ制約を適用する。
const (
	// maxUsernameLength はユーザー名の最大長。
	maxUsernameLength = 50
	// maxPasswordLength はパスワードの最大長。
	maxPasswordLength = 200
)

// tokenTTL はセッショントークンの有効期間。
const tokenTTL = 7 * 24 * time.Hour

// Claims はセッショントークンのクレーム（ペイロード）を表す。
type Claims struct {
	jwt.RegisteredClaims
	// Username は認証済みユーザーのユーザー名。
	Username string `json:"username"`
}

// CredentialStore は認証サービスが必要とする資格情報ストアの契約。
type CredentialStore interface {
	// Verify はユーザー名とパスワードの組が正しいか検証する。
	Verify(ctx context.Context, username, password string) (bool, error)
	// Exists は指定ユーザー名の資格情報が存在するか返す。
	Exists(ctx context.Context, username string) (bool, error)
}

// Service は認証サービス。トークンの発行・検証と失効セットの管理を行う。
// 失効セットはこのサービスが排他的に所有する。
type Service struct {
	// creds は資格情報ストア。
	creds CredentialStore
	// secret はJWT署名用の秘密鍵。
	secret string
	// ttl はトークンの有効期間。
	ttl time.Duration
	// revoked はログアウト済みトークンの失効セット。
	revoked *revocationSet
}

// NewService は新しい認証サービスを生成する。
func NewService(creds CredentialStore, secret string) *Service {
	return &Service{
		creds:   creds,
		secret:  secret,
		ttl:     tokenTTL,
		revoked: newRevocationSet(),
	}
}

// Login は資格情報を検証してセッショントークンを発行する。
// 検査順序: 入力形式 → ユーザー存在 → パスワード一致。
// それぞれの失敗は区別可能なエラー種別として返す。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if !validUsername(username) || password == "" || len(password) > maxPasswordLength {
		return "", ErrValidation
	}

	exists, err := s.creds.Exists(ctx, username)
	if err != nil {
		return "", fmt.Errorf("資格情報の確認に失敗: %w", err)
	}
	if !exists {
		return "", ErrUnknownUser
	}

	ok, err := s.creds.Verify(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("資格情報の検証に失敗: %w", err)
	}
	if !ok {
		return "", ErrBadPassword
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "pushmsg",
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Authenticate はトークンを検証し、認証済みユーザー名を返す。
// 失効セットの照会は署名検証より先に行う。
func (s *Service) Authenticate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}

	if s.revoked.Contains(token) {
		return "", ErrRevoked
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Username == "" {
		return "", ErrInvalidToken
	}

	return claims.Username, nil
}

// Logout はトークンを失効セットに追加する。
// 失効済みトークンのログアウトは何もせず正常終了する（冪等）。
func (s *Service) Logout(_ context.Context, token string) error {
	if token == "" {
		return ErrUnauthenticated
	}

	// トークン自身の有効期限を失効エントリの寿命とする。
	// パースできない場合は最大有効期間を保守的に採用する。
	expiresAt := time.Now().Add(s.ttl)
	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(s.secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	s.revoked.Add(token, expiresAt)
	return nil
}

// validUsername はユーザー名が1〜50文字の英数字のみで構成されているか返す。
func validUsername(username string) bool {
	if username == "" || len(username) > maxUsernameLength {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
