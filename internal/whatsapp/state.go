// Package whatsapp はWhatsAppセッションのライフサイクル管理と通知送信を提供する。
//
// Managerが唯一のセッション（接続ハンドル、状態、再接続予約）を所有し、
// トランスポートから届くイベントを単一のイベントループで処理する。
// Dispatcherは接続状態を確認したうえで通知メッセージを1件だけ送信する。
package whatsapp

// State はセッションのライフサイクル状態を表す。
type State int

const (
	// StateOffline は接続ハンドルを持たない状態。
	StateOffline State = iota
	// StateBootstrapping は認証情報を読み込み接続を開始した状態。
	StateBootstrapping
	// StateAwaitingChallenge はQRコードの読み取り待ちの状態。
	StateAwaitingChallenge
	// StateReady はメッセージ送信が可能な状態。
	StateReady
	// StateLoggedOut はリモートからログアウトされ認証情報を消去している状態。
	StateLoggedOut
)

// String は状態名を返す。ログとメトリクスのラベルに使用する。
func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateBootstrapping:
		return "bootstrapping"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateReady:
		return "ready"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// DisconnectCause は切断理由の分類。
type DisconnectCause int

const (
	// CauseConnectionLost はネットワーク切断などの一時的な切断。
	CauseConnectionLost DisconnectCause = iota
	// CauseLoggedOut はリモート端末からのログアウト。認証情報は無効になる。
	CauseLoggedOut
	// CauseReplaced は別のクライアントによるセッションの置き換え。
	CauseReplaced
	// CauseOther はその他の切断（接続失敗、QRタイムアウトなど）。
	CauseOther
)

// String は切断理由の名前を返す。
func (c DisconnectCause) String() string {
	switch c {
	case CauseConnectionLost:
		return "connection_lost"
	case CauseLoggedOut:
		return "logged_out"
	case CauseReplaced:
		return "replaced"
	default:
		return "other"
	}
}
