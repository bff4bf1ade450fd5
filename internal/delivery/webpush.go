package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// sendTimeout はプッシュサービスへのHTTPリクエストの上限時間。
// タイムアウトは一時的な失敗として扱い、購読の削除は行わない。
const sendTimeout = 10 * time.Second

// WebPushSender はWeb PushプロトコルでペイロードをSenderの契約に沿って送信する。
// VAPID鍵ペアで送信サーバーを識別する。
type WebPushSender struct {
	// publicKey はVAPID公開鍵。
	publicKey string
	// privateKey はVAPID秘密鍵。
	privateKey string
	// subscriber はプッシュ配信サービスへ提示する連絡先（mailto: URI）。
	subscriber string
	// client はタイムアウト付きのHTTPクライアント。
	client *http.Client
}

// NewWebPushSender は新しいWeb Pushトランスポートを生成する。
func NewWebPushSender(publicKey, privateKey, subscriber string) *WebPushSender {
	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

// Send は購読先へ暗号化ペイロードを送信する。
// プッシュサービスが404または410を返した場合はErrEndpointGoneを返す。
func (w *WebPushSender) Send(ctx context.Context, sub json.RawMessage, payload []byte) error {
	var s webpush.Subscription
	if err := json.Unmarshal(sub, &s); err != nil {
		return fmt.Errorf("購読オブジェクトの解釈に失敗: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &s, &webpush.Options{
		Subscriber:      w.subscriber,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		HTTPClient:      w.client,
		TTL:             60,
	})
	if err != nil {
		return fmt.Errorf("プッシュサービスへの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// プッシュサービスが購読の恒久的な消滅を報告した
		return ErrEndpointGone
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("プッシュサービスがエラーを返しました: status=%d", resp.StatusCode)
	}
	return nil
}
