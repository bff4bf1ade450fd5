package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestRequestID はリクエストID付与ミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("リクエストIDが生成されレスポンスヘッダーに設定されること", func(t *testing.T) {
		t.Parallel()

		var gotID string
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			gotID = GetRequestID(c)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if gotID == "" {
			t.Error("コンテキストにリクエストIDが設定されていない")
		}
		if got := w.Header().Get("X-Request-ID"); got != gotID {
			t.Errorf("X-Request-ID = %q, want %q", got, gotID)
		}
	})

	t.Run("クライアント指定のリクエストIDが引き継がれること", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("X-Request-ID", "client-supplied-id")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("X-Request-ID"); got != "client-supplied-id" {
			t.Errorf("X-Request-ID = %q, want %q", got, "client-supplied-id")
		}
	})

	t.Run("ミドルウェア未適用の場合は空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetRequestID(c); got != "" {
			t.Errorf("GetRequestID() = %q, want %q", got, "")
		}
	})
}
