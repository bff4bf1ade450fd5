// プッシュ通知メッセンジャーのエントリポイント。
// 認証済みユーザーがブラウザのプッシュ購読を登録し、
// Web Pushプロトコルで互いに短いテキスト通知を送り合う。
package main

import (
	"log"

	"github.com/nao1215/pushmsg/internal/config"
	"github.com/nao1215/pushmsg/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("サーバーの初期化に失敗: %v", err)
	}

	log.Printf("サーバーを起動します: :%s", cfg.Port)
	if err := srv.Run(); err != nil {
		log.Fatalf("サーバーの起動に失敗: %v", err)
	}
}
