package whatsapp

import (
	"context"
	"log/slog"
	"strings"
)

// 自動応答のトリガーと返信文
const (
	greetingTrigger = "hola"
	greetingReply   = "Hola, estoy activo 🤖"
)

// NewAutoReply は「hola」への自動応答を行うMessageHandlerを生成する。
// 自分が送信したメッセージには反応しない。
func NewAutoReply(logger *slog.Logger) MessageHandler {
	return func(ctx context.Context, conn Conn, msg MessageEvent) {
		if conn == nil || msg.FromMe {
			return
		}
		if !strings.EqualFold(strings.TrimSpace(msg.Text), greetingTrigger) {
			return
		}
		if err := conn.Send(ctx, msg.ChatID, greetingReply); err != nil {
			logger.Warn("自動応答の送信に失敗しました",
				slog.String("chat_id", msg.ChatID),
				slog.String("error", err.Error()),
			)
			return
		}
		logger.Info("自動応答を送信しました", slog.String("chat_id", msg.ChatID))
	}
}
