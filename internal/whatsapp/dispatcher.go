package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/schoolgate/internal/model"
)

// groupSuffix はグループJIDのサフィックス。
const groupSuffix = "@g.us"

// 送信結果のメトリクスラベル
const (
	notifySent          = "sent"
	notifyNotConnected  = "not_connected"
	notifyInvalid       = "invalid_channel"
	notifyTransportFail = "transport_error"
)

// Session は送信可能な接続ハンドルを提供する。Managerが実装する。
type Session interface {
	Connection() (Conn, bool)
}

// NotificationMetrics は通知送信のメトリクス記録インターフェース。
type NotificationMetrics interface {
	RecordNotification(result string)
}

// Dispatcher は保護者グループへの到着通知を送信する。
// 送信前に必ずセッションの状態を確認し、未接続の場合は送信しない。
// 再送やキューイングは行わない。
type Dispatcher struct {
	session Session
	logger  *slog.Logger
	metrics NotificationMetrics
}

// NewDispatcher はDispatcherを生成する。metricsはnilでもよい。
func NewDispatcher(session Session, logger *slog.Logger, metrics NotificationMetrics) *Dispatcher {
	return &Dispatcher{
		session: session,
		logger:  logger,
		metrics: metrics,
	}
}

// Send はchannelIDのグループに生徒の到着通知を1件送信する。
func (d *Dispatcher) Send(ctx context.Context, channelID string, student *model.Student) error {
	// 未接続の間はグループIDに関係なくNOT_CONNECTEDを返す
	conn, ok := d.session.Connection()
	if !ok {
		d.record(notifyNotConnected)
		return model.NewNotConnectedError()
	}

	if err := ValidateChannelID(channelID); err != nil {
		d.record(notifyInvalid)
		return err
	}

	if err := conn.Send(ctx, channelID, FormatNotification(student)); err != nil {
		d.record(notifyTransportFail)
		d.logger.Error("到着通知の送信に失敗しました",
			slog.String("channel_id", channelID),
			slog.String("enrollment", student.Enrollment),
			slog.String("error", err.Error()),
		)
		return model.NewTransportError(err)
	}

	d.record(notifySent)
	d.logger.Info("到着通知を送信しました",
		slog.String("channel_id", channelID),
		slog.String("enrollment", student.Enrollment),
	)
	return nil
}

func (d *Dispatcher) record(result string) {
	if d.metrics != nil {
		d.metrics.RecordNotification(result)
	}
}

// ValidateChannelID はグループJIDの形式を検証する。
func ValidateChannelID(channelID string) error {
	local, ok := strings.CutSuffix(channelID, groupSuffix)
	if !ok || strings.TrimSpace(local) == "" {
		return model.NewInvalidChannelError(channelID)
	}
	return nil
}

// FormatNotification は到着通知の本文を生成する。
func FormatNotification(student *model.Student) string {
	return fmt.Sprintf("📚 Han llegado por:\n👦 Nombre: %s\n📘 Grado: %s°\n👥 Grupo: %s",
		student.FullName, student.Grade, student.Group)
}
