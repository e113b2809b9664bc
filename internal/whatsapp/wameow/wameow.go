// Package wameow はwhatsmeowを使ったwhatsapp.Dialerの実装を提供する。
//
// whatsmeowの鍵データベース（whatsmeow.db）は認証ディレクトリ内に置く。
// ログアウト時にManagerが認証ディレクトリを消去すると、鍵データも一緒に破棄される。
package wameow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlstore用ドライバ
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/hitoshi/schoolgate/internal/whatsapp"
)

// keyDatabase は認証ディレクトリ内のwhatsmeow鍵データベースのファイル名。
const keyDatabase = "whatsmeow.db"

// eventBuffer は接続ごとのイベントチャネルのバッファサイズ。
const eventBuffer = 32

// Dialer はwhatsmeowクライアントを生成するwhatsapp.Dialer。
type Dialer struct {
	dir    string
	logger *slog.Logger
}

var _ whatsapp.Dialer = (*Dialer)(nil)

// NewDialer はDialerを生成する。dirは認証ディレクトリ。
func NewDialer(dir string, logger *slog.Logger) *Dialer {
	return &Dialer{dir: dir, logger: logger}
}

// Dial は鍵データベースを開き、whatsmeowクライアントの接続を開始する。
// 未ペアリングの場合はQRチャネルを購読し、コードをChallengeEventとして発行する。
func (d *Dialer) Dial(ctx context.Context, creds *whatsapp.Credentials) (whatsapp.Conn, error) {
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create auth directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(d.dir, keyDatabase))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, newSlogLogger(d.logger, "whatsmeow.store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open key database: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if creds != nil && device.ID == nil {
		d.logger.Warn("認証情報は保存されていますが鍵データベースにデバイスがありません。QR認証から開始します")
	}

	connCtx, cancel := context.WithCancel(ctx)
	c := &conn{
		client:    whatsmeow.NewClient(device, newSlogLogger(d.logger, "whatsmeow.client")),
		container: container,
		events:    make(chan whatsapp.Event, eventBuffer),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	// 再接続はManagerが制御する
	c.client.EnableAutoReconnect = false
	c.client.AddEventHandler(c.handleEvent)

	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(connCtx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to subscribe QR channel: %w", err)
		}
		go c.relayQR(qrChan)
	}

	if err := c.client.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return c, nil
}

// conn は1回の接続試行に対応するwhatsapp.Conn。
type conn struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	events    chan whatsapp.Event
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ whatsapp.Conn = (*conn)(nil)

func (c *conn) Events() <-chan whatsapp.Event {
	return c.events
}

func (c *conn) Send(ctx context.Context, channelID, body string) error {
	jid, err := types.ParseJID(channelID)
	if err != nil {
		return fmt.Errorf("invalid jid %q: %w", channelID, err)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *conn) FetchParticipatingChannels(ctx context.Context) ([]whatsapp.Channel, error) {
	groups, err := c.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch joined groups: %w", err)
	}
	channels := make([]whatsapp.Channel, 0, len(groups))
	for _, g := range groups {
		channels = append(channels, whatsapp.Channel{ID: g.JID.String(), Name: g.Name})
	}
	return channels, nil
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.client.Disconnect()
		err = c.container.Close()
	})
	return err
}

// emit はイベントを発行する。クローズ後は破棄する。
func (c *conn) emit(ev whatsapp.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *conn) handleEvent(evt interface{}) {
	if ev, ok := translate(evt); ok {
		c.emit(ev)
	}
}

func (c *conn) relayQR(items <-chan whatsmeow.QRChannelItem) {
	for item := range items {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(whatsapp.ChallengeEvent{Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			// PairSuccessとConnectedはイベントハンドラ側で受け取る
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(whatsapp.ConnectionClosedEvent{
				Cause: whatsapp.CauseOther,
				Err:   fmt.Errorf("qr code timed out"),
			})
		default:
			c.emit(whatsapp.ConnectionClosedEvent{
				Cause: whatsapp.CauseOther,
				Err:   qrChannelError(item),
			})
		}
	}
}

// qrChannelError はQRチャネルの終了イベントをエラーに変換する。
func qrChannelError(item whatsmeow.QRChannelItem) error {
	if item.Error == nil {
		return fmt.Errorf("qr channel: %s", item.Event)
	}
	return fmt.Errorf("qr channel: %s: %w", item.Event, item.Error)
}

// translate はwhatsmeowのイベントをwhatsapp.Eventに変換する。
// 対象外のイベントはfalseを返す。
func translate(evt interface{}) (whatsapp.Event, bool) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		return whatsapp.CredentialsRotatedEvent{Material: []byte(e.ID.String())}, true
	case *events.Connected:
		return whatsapp.ConnectionOpenEvent{}, true
	case *events.LoggedOut:
		return whatsapp.ConnectionClosedEvent{
			Cause: whatsapp.CauseLoggedOut,
			Err:   fmt.Errorf("logged out: %v", e.Reason),
		}, true
	case *events.StreamReplaced:
		return whatsapp.ConnectionClosedEvent{Cause: whatsapp.CauseReplaced}, true
	case *events.Disconnected:
		return whatsapp.ConnectionClosedEvent{Cause: whatsapp.CauseConnectionLost}, true
	case *events.ConnectFailure:
		return whatsapp.ConnectionClosedEvent{
			Cause: whatsapp.CauseOther,
			Err:   fmt.Errorf("connect failure: %v", e.Reason),
		}, true
	case *events.TemporaryBan:
		return whatsapp.ConnectionClosedEvent{
			Cause: whatsapp.CauseOther,
			Err:   fmt.Errorf("temporary ban: %v", e.Code),
		}, true
	case *events.ClientOutdated:
		return whatsapp.ConnectionClosedEvent{
			Cause: whatsapp.CauseOther,
			Err:   fmt.Errorf("client outdated"),
		}, true
	case *events.Message:
		text := e.Message.GetConversation()
		if text == "" {
			text = e.Message.GetExtendedTextMessage().GetText()
		}
		if text == "" {
			return nil, false
		}
		return whatsapp.MessageEvent{
			ChatID: e.Info.Chat.String(),
			Text:   text,
			FromMe: e.Info.IsFromMe,
		}, true
	default:
		return nil, false
	}
}
