// Package config は環境変数からサーバー設定を読み込む。
// 必須のシークレット（JWT署名鍵とVAPID鍵ペア）が欠けている場合、
// リスナー起動前にエラーを返す。
package config

import (
	"errors"
	"os"
)

// Backend は永続化ストアのバックエンド種別を表す。
type Backend string

const (
	// BackendFile はJSONスナップショットファイルによる永続化を表す。
	BackendFile Backend = "file"
	// BackendSQLite はSQLiteデータベースによる永続化を表す。
	BackendSQLite Backend = "sqlite"
)

// Config はサーバーの起動設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// JWTSecret はセッショントークンの署名用秘密鍵。
	JWTSecret string
	// VAPIDPublicKey はWeb Push送信サーバーを識別する公開鍵。
	VAPIDPublicKey string
	// VAPIDPrivateKey はWeb Push送信サーバーを識別する秘密鍵。
	VAPIDPrivateKey string
	// VAPIDSubscriber はプッシュ配信サービスへ提示する連絡先（mailto: URI）。
	VAPIDSubscriber string
	// FrontendOrigin はCORSで許可するフロントエンドのオリジン。
	FrontendOrigin string
	// UsersFile は資格情報スナップショットのファイルパス。
	UsersFile string
	// SubscriptionsFile は購読レジストリスナップショットのファイルパス。
	SubscriptionsFile string
	// StoreBackend は永続化バックエンドの種別。
	StoreBackend Backend
	// SQLitePath はSQLiteバックエンド使用時のデータベースファイルパス。
	SQLitePath string
}

// ErrMissingSecret は必須のシークレット環境変数が未設定であることを表す。
// この状態でサーバーを起動してはならない。
var ErrMissingSecret = errors.New("JWT_SECRET と VAPID 鍵ペアの設定が必要です")

// Load は環境変数から設定を読み込む。
// JWT_SECRET・VAPID_PUBLIC_KEY・VAPID_PRIVATE_KEYのいずれかが
// 未設定の場合はErrMissingSecretを返す。
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvOr("PORT", "8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		VAPIDPublicKey:    os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:   os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber:   getEnvOr("VAPID_SUBSCRIBER", "mailto:you@example.com"),
		FrontendOrigin:    getEnvOr("FRONTEND_ORIGIN", "http://localhost:3000"),
		UsersFile:         getEnvOr("USERS_FILE", "users.json"),
		SubscriptionsFile: getEnvOr("SUBSCRIPTIONS_FILE", "subscriptions.json"),
		StoreBackend:      Backend(getEnvOr("STORE_BACKEND", string(BackendFile))),
		SQLitePath:        getEnvOr("SQLITE_PATH", "pushmsg.db"),
	}

	if cfg.JWTSecret == "" || cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, ErrMissingSecret
	}

	if cfg.StoreBackend != BackendFile && cfg.StoreBackend != BackendSQLite {
		return nil, errors.New("STORE_BACKEND には file または sqlite を指定してください")
	}

	return cfg, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
