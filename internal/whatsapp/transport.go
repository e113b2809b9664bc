package whatsapp

import "context"

// Event はトランスポートが発行するイベント。
// 実装はChallengeEvent、CredentialsRotatedEvent、ConnectionOpenEvent、
// ConnectionClosedEvent、MessageEventのいずれか。
type Event interface {
	isEvent()
}

// ChallengeEvent は新しいQR認証コードの発行を表す。
type ChallengeEvent struct {
	Code string
}

// CredentialsRotatedEvent は認証情報の更新を表す。
// Managerは次のイベントを処理する前にMaterialを永続化する。
type CredentialsRotatedEvent struct {
	Material []byte
}

// ConnectionOpenEvent は接続確立を表す。
type ConnectionOpenEvent struct{}

// ConnectionClosedEvent は切断を表す。
type ConnectionClosedEvent struct {
	Cause DisconnectCause
	Err   error
}

// MessageEvent は受信メッセージを表す。
type MessageEvent struct {
	ChatID string
	Text   string
	FromMe bool
}

func (ChallengeEvent) isEvent()          {}
func (CredentialsRotatedEvent) isEvent() {}
func (ConnectionOpenEvent) isEvent()     {}
func (ConnectionClosedEvent) isEvent()   {}
func (MessageEvent) isEvent()            {}

// Channel はボットが参加している送信先（グループ）を表す。
type Channel struct {
	ID   string
	Name string
}

// Conn は1回の接続試行に対応する接続ハンドル。
// 切断のたびに破棄され、再接続のたびに新しいハンドルが作られる。
type Conn interface {
	// Events はこの接続のイベントを発行順に返すチャネル。
	Events() <-chan Event
	// Send はchannelIDにテキストメッセージを1件送信する。
	Send(ctx context.Context, channelID, body string) error
	// FetchParticipatingChannels は参加中のグループ一覧を取得する。
	FetchParticipatingChannels(ctx context.Context) ([]Channel, error)
	// Close は接続を閉じ、関連リソースを解放する。複数回呼んでもよい。
	Close() error
}

// Dialer は新しい接続ハンドルを生成する。
// credsがnilの場合は未認証としてQR認証から開始する。
type Dialer interface {
	Dial(ctx context.Context, creds *Credentials) (Conn, error)
}
