// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// パニックリカバリ、リクエストID付与、CORS設定、
// ログイン試行のレート制限を含む。
package middleware
