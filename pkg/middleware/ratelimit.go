package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// clientLimiter はクライアントアドレスごとのレートリミッター。
type clientLimiter struct {
	// limiter はトークンバケット方式のリミッター。
	limiter *rate.Limiter
	// lastSeen は最後にリクエストを受けた時刻。
	lastSeen time.Time
}

// RateLimit はクライアントアドレスごとにリクエスト数を制限するGinミドルウェアを返す。
// window期間あたりlimit回までのリクエストを許可し、超過分には429を返す。
// ログインエンドポイントの総当たり対策として、資格情報の検査より前に適用する。
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		// 非アクティブなクライアントのエントリを掃き出す
		for addr, cl := range clients {
			if now.Sub(cl.lastSeen) > window {
				delete(clients, addr)
			}
		}

		cl, ok := clients[ip]
		if !ok {
			cl = &clientLimiter{
				limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			}
			clients[ip] = cl
		}
		cl.lastSeen = now
		allowed := cl.limiter.Allow()
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "ログイン試行回数が上限を超えました。しばらくしてから再試行してください",
			})
			return
		}

		c.Next()
	}
}
