// Package delivery はWeb Pushによる通知配信を提供する。
// 配信は同期・単発・ベストエフォートで、リトライやキューイングは行わない。
// プッシュサービスが購読の恒久的な消滅を報告した場合のみ、レジストリから
// 該当エントリを削除する。
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/nao1215/pushmsg/internal/subscription"
)

var (
	// ErrValidation は宛先またはメッセージ本文が形式ルールを満たしていないことを表す。
	ErrValidation = errors.New("入力が不正です")
	// ErrRecipientNotSubscribed は宛先ユーザーが購読を登録していないことを表す。
	// 正常系の条件でありエラーログは出力しない。
	ErrRecipientNotSubscribed = errors.New("宛先ユーザーは購読を登録していません")
	// ErrEndpointGone はプッシュサービスが購読エンドポイントの恒久的な消滅を
	// 報告したことを表す。レジストリのエントリは削除済み。
	ErrEndpointGone = errors.New("購読エンドポイントは失効しています")
	// ErrDeliveryFailed は一時的な配信失敗を表す。レジストリは変更されない。
	ErrDeliveryFailed = errors.New("通知の配信に失敗しました")
)

// 入力の形式ルール。
const (
	// maxRecipientLength は宛先ユーザー名の最大長。
	maxRecipientLength = 50
	// maxBodyLength はメッセージ本文の最大長。
	maxBodyLength = 1000
)

// Sender はWeb Pushトランスポートの契約。
// 恒久的に失効したエンドポイントに対してはErrEndpointGoneを返す。
type Sender interface {
	// Send は購読先へ暗号化ペイロードを送信する。
	Send(ctx context.Context, sub json.RawMessage, payload []byte) error
}

// Registry は配信サービスが必要とする購読レジストリの操作。
type Registry interface {
	// Get は購読を取得する。未登録の場合はsubscription.ErrNotFoundを返す。
	Get(ctx context.Context, owner string) (json.RawMessage, error)
	// Remove は購読を削除する。
	Remove(ctx context.Context, owner string) error
}

// payload はプッシュ通知のペイロード構造。
type payload struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
}

// Service は通知配信サービス。
type Service struct {
	// registry は購読レジストリ。
	registry Registry
	// sender はWeb Pushトランスポート。
	sender Sender
}

// NewService は新しい配信サービスを生成する。
func NewService(registry Registry, sender Sender) *Service {
	return &Service{registry: registry, sender: sender}
}

// Send はfromからrecipientへ通知を配信する。
// 宛先が未購読の場合、トランスポートは呼び出されない。
// 恒久的な配信失敗時は購読を削除した上で失敗を返す。
// タイムアウトを含む一時的な失敗ではレジストリを変更しない。
func (s *Service) Send(ctx context.Context, from, recipient, body string) error {
	if !validRecipient(recipient) || body == "" || len(body) > maxBodyLength {
		return ErrValidation
	}

	sub, err := s.registry.Get(ctx, recipient)
	if errors.Is(err, subscription.ErrNotFound) {
		return ErrRecipientNotSubscribed
	}
	if err != nil {
		return fmt.Errorf("購読の取得に失敗: %w", err)
	}

	data, err := json.Marshal(payload{
		Title: fmt.Sprintf("Message from %s", from),
		Body:  body,
	})
	if err != nil {
		return fmt.Errorf("ペイロードのシリアライズに失敗: %w", err)
	}

	if err := s.sender.Send(ctx, sub, data); err != nil {
		if errors.Is(err, ErrEndpointGone) {
			// 失効した購読はクリーンアップし、配信失敗として呼び出し元へ返す
			log.Printf("失効した購読を削除します: recipient=%s", recipient)
			if removeErr := s.registry.Remove(ctx, recipient); removeErr != nil {
				log.Printf("失効した購読の削除に失敗: recipient=%s, error=%v", recipient, removeErr)
			}
			return err
		}
		log.Printf("通知の配信に失敗: recipient=%s, error=%v", recipient, err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	log.Printf("通知を配信しました: from=%s, recipient=%s", from, recipient)
	return nil
}

// validRecipient は宛先が1〜50文字の英数字のみで構成されているか返す。
func validRecipient(recipient string) bool {
	if recipient == "" || len(recipient) > maxRecipientLength {
		return false
	}
	for _, r := range recipient {
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
