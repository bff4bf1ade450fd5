// Package server はプッシュ通知メッセンジャーのHTTP APIサーバーを提供する。
// ログイン・ログアウト・購読登録・通知送信の各エンドポイントを公開し、
// 認証サービス・購読レジストリ・配信サービスへリクエストを接続する。
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/pushmsg/internal/auth"
	"github.com/nao1215/pushmsg/internal/config"
	"github.com/nao1215/pushmsg/internal/credential"
	"github.com/nao1215/pushmsg/internal/delivery"
	"github.com/nao1215/pushmsg/internal/subscription"
	"github.com/nao1215/pushmsg/pkg/middleware"
)

// ログインエンドポイントのレート制限。クライアントアドレスごとに
// 15分間で10回までの試行を許可する。
const (
	loginRateLimit  = 10
	loginRateWindow = 15 * time.Minute
)

// Server はHTTP APIサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteバックエンド使用時のデータベース接続。fileバックエンドではnil。
	db *sql.DB
	// auth は認証サービス。
	auth *auth.Service
	// registry は購読レジストリ。
	registry subscription.Registry
	// delivery は通知配信サービス。
	delivery *delivery.Service
}

// New は設定からサーバーを生成する。
// 永続化バックエンドの初期化、各サービスの組み立て、ルーティング設定を行う。
func New(cfg *config.Config) (*Server, error) {
	var (
		creds    auth.CredentialStore
		registry subscription.Registry
		sqlDB    *sql.DB
	)

	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("データベース接続に失敗: %w", err)
		}
		credStore, err := credential.NewSQLiteStore(db)
		if err != nil {
			return nil, err
		}
		subRegistry, err := subscription.NewSQLiteRegistry(db)
		if err != nil {
			return nil, err
		}
		creds, registry, sqlDB = credStore, subRegistry, db
	default:
		credStore, err := credential.NewFileStore(cfg.UsersFile)
		if err != nil {
			return nil, err
		}
		subRegistry, err := subscription.NewFileRegistry(cfg.SubscriptionsFile)
		if err != nil {
			return nil, err
		}
		creds, registry = credStore, subRegistry
	}

	sender := delivery.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendOrigin}))

	s := &Server{
		router:   router,
		port:     cfg.Port,
		db:       sqlDB,
		auth:     auth.NewService(creds, cfg.JWTSecret),
		registry: registry,
		delivery: delivery.NewService(registry, sender),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ログイン（認証不要・レート制限あり）
	s.router.POST("/login", middleware.RateLimit(loginRateLimit, loginRateWindow), s.handleLogin())

	// 認証必須のエンドポイント
	authed := s.router.Group("/")
	authed.Use(s.authMiddleware())
	{
		authed.POST("/logout", s.handleLogout())
		authed.POST("/subscribe", s.handleSubscribe())
		authed.POST("/send", s.handleSend())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}

// authMiddleware はBearerトークンを検証するミドルウェアを返す。
// 検証に成功した場合、コンテキストに認証済みユーザー名とトークンを設定する。
// 欠落・形式不正・失効は401、署名不正・期限切れは403を返す。
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		token, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		username, err := s.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrRevoked):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			case errors.Is(err, auth.ErrInvalidToken):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			}
			return
		}

		c.Set("username", username)
		c.Set("token", token)
		c.Next()
	}
}

// usernameFromContext はGinコンテキストから認証済みユーザー名を取得する。
func usernameFromContext(c *gin.Context) string {
	username, _ := c.Get("username")
	if name, ok := username.(string); ok {
		return name
	}
	return ""
}

// tokenFromContext はGinコンテキストから検証済みトークンを取得する。
func tokenFromContext(c *gin.Context) string {
	token, _ := c.Get("token")
	if t, ok := token.(string); ok {
		return t
	}
	return ""
}

// loginRequest はログインリクエストのJSON構造。
// サービス層と同じ形式ルールをバインディングでも適用する。
type loginRequest struct {
	// Username はログインするユーザー名（英数字1〜50文字）。
	Username string `json:"username" binding:"required,alphanum,max=50"`
	// Password はパスワード（1〜200文字）。
	Password string `json:"password" binding:"required,max=200"`
}

// handleLogin は資格情報を検証してセッショントークンを返すハンドラ。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		token, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrValidation):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, auth.ErrUnknownUser):
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			case errors.Is(err, auth.ErrBadPassword):
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "ログイン処理に失敗しました"})
				log.Printf("ログインエラー: %v", err)
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// handleLogout はトークンを失効させるハンドラ。冪等。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.auth.Logout(c.Request.Context(), tokenFromContext(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログアウト処理に失敗しました"})
			log.Printf("ログアウトエラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "ログアウトしました"})
	}
}

// subscribeRequest は購読登録リクエストのJSON構造。
type subscribeRequest struct {
	// Subscription はブラウザのプッシュAPIが発行した購読オブジェクト。
	// 不透明なJSONオブジェクトとして扱う。
	Subscription json.RawMessage `json:"subscription" binding:"required"`
}

// handleSubscribe は認証済みユーザーのプッシュ購読を登録するハンドラ。
// 再登録は既存の購読を上書きする。
func (s *Server) handleSubscribe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req subscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if !isJSONObject(req.Subscription) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subscription はJSONオブジェクトである必要があります"})
			return
		}

		username := usernameFromContext(c)
		if err := s.registry.Put(c.Request.Context(), username, req.Subscription); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "購読の登録に失敗しました"})
			log.Printf("購読登録エラー: %v", err)
			return
		}

		log.Printf("購読を登録しました: %s", username)
		c.JSON(http.StatusCreated, gin.H{"success": true})
	}
}

// sendRequest は通知送信リクエストのJSON構造。
type sendRequest struct {
	// Recipient は宛先ユーザー名（英数字1〜50文字）。
	Recipient string `json:"recipient" binding:"required,alphanum,max=50"`
	// Message は通知メッセージ（1〜1000文字）。
	Message string `json:"message" binding:"required,max=1000"`
}

// handleSend は認証済みユーザーから宛先ユーザーへ通知を配信するハンドラ。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		from := usernameFromContext(c)
		if err := s.delivery.Send(c.Request.Context(), from, req.Recipient, req.Message); err != nil {
			switch {
			case errors.Is(err, delivery.ErrValidation):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, delivery.ErrRecipientNotSubscribed):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, delivery.ErrEndpointGone), errors.Is(err, delivery.ErrDeliveryFailed):
				c.JSON(http.StatusBadGateway, gin.H{"error": "通知の配信に失敗しました"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の配信に失敗しました"})
				log.Printf("通知送信エラー: %v", err)
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// isJSONObject はデータがJSONオブジェクトとして解釈できるか返す。
func isJSONObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
