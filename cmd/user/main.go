// ユーザー管理サービスのエントリポイント。
// ユーザーの登録・更新・削除とパスワードリセットを担当する。
// センターの存在確認とドクター連携の確認は管理サービスへの
// 問い合わせで行う。
package main

import (
	"log"
	"os"

	"github.com/nao1215/hospital/internal/user"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server, err := user.NewServer(port)
	if err != nil {
		log.Fatalf("ユーザーサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ユーザーサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ユーザーサービスの起動に失敗: %v", err)
	}
}
