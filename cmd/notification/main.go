// 通知サービスのエントリポイント。
// ユーザーごとの通知の保存・一覧取得・既読管理を担当する。
// パスワードリセット受付時にユーザーサービスから内部API経由で
// 通知が登録される。
package main

import (
	"log"
	"os"

	"github.com/nao1215/hospital/internal/notification"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8086"
	}

	server, err := notification.NewServer(port)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}
