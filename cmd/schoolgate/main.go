// Command schoolgate は校門のQR出席管理とWhatsApp通知のサービスを起動する。
//
// サブコマンド:
//
//	serve        APIサーバーとWhatsAppセッション（デフォルト）
//	worker       欠席登録ワーカー
//	migrate      データベースマイグレーション
//	healthcheck  コンテナのヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/schoolgate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "schoolgate: %v\n", err)
		os.Exit(1)
	}
}
