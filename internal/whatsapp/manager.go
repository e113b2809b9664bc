package whatsapp

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// デフォルト値
const (
	defaultReconnectDelay = 5 * time.Second
	defaultQueryTimeout   = 60 * time.Second
)

// CredentialStorage はManagerが使用する認証情報ストアのインターフェース。
type CredentialStorage interface {
	Load() (*Credentials, error)
	Save(material []byte) (*Credentials, error)
	Erase() error
}

// SessionMetrics はセッションのメトリクス記録インターフェース。
type SessionMetrics interface {
	RecordSessionState(state string)
	RecordSessionRestart(reason string)
	RecordChallenge()
}

// MessageHandler は受信メッセージを処理する関数。
// 受信した接続ハンドルで返信できるよう、connを受け取る。
type MessageHandler func(ctx context.Context, conn Conn, msg MessageEvent)

// ManagerConfig はManagerの生成パラメータ。
type ManagerConfig struct {
	Dialer      Dialer
	Credentials CredentialStorage
	Relay       *ChallengeRelay
	Logger      *slog.Logger
	// Metrics はnilの場合は記録しない。
	Metrics SessionMetrics
	// ReconnectDelay は再接続までの固定待機時間。0以下の場合は5秒。
	ReconnectDelay time.Duration
	// QueryTimeout は参加グループ取得のタイムアウト。0以下の場合は60秒。
	QueryTimeout time.Duration
	// OnMessage はnilの場合は受信メッセージを無視する。
	OnMessage MessageHandler
}

// Manager はWhatsAppセッションのライフサイクルを管理する。
// 状態を変更するのはRunを実行するイベントループのゴルーチンのみで、
// 他のゴルーチンは読み取りロック越しにスナップショットを参照する。
type Manager struct {
	dialer       Dialer
	creds        CredentialStorage
	relay        *ChallengeRelay
	logger       *slog.Logger
	metrics      SessionMetrics
	delay        time.Duration
	queryTimeout time.Duration
	onMessage    MessageHandler

	// after は再接続タイマーを生成する。テストで差し替える。
	after func(time.Duration) <-chan time.Time

	mu             sync.RWMutex
	state          State
	conn           Conn
	restartPending bool

	// 以下はイベントループ専用
	events        <-chan Event
	restartC      <-chan time.Time
	awaitingFirst bool
}

// NewManager はManagerを生成する。
func NewManager(cfg ManagerConfig) *Manager {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	relay := cfg.Relay
	if relay == nil {
		relay = NewChallengeRelay()
	}
	return &Manager{
		dialer:       cfg.Dialer,
		creds:        cfg.Credentials,
		relay:        relay,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		delay:        delay,
		queryTimeout: queryTimeout,
		onMessage:    cfg.OnMessage,
		after:        time.After,
		state:        StateOffline,
	}
}

// Relay はManagerが書き込むChallengeRelayを返す。
func (m *Manager) Relay() *ChallengeRelay {
	return m.relay
}

// State は現在のライフサイクル状態を返す。
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsReady はメッセージ送信が可能な状態かどうかを返す。
func (m *Manager) IsReady() bool {
	return m.State() == StateReady
}

// RestartPending は再接続が予約中かどうかを返す。
func (m *Manager) RestartPending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartPending
}

// Connection は送信可能な接続ハンドルを返す。
// 状態の確認とハンドルの取得は同じロック内で行う。
func (m *Manager) Connection() (Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady || m.conn == nil {
		return nil, false
	}
	return m.conn, true
}

// Run はセッションを開始し、ctxがキャンセルされるまでイベントを処理する。
// 接続失敗や切断ではエラーを返さず、再接続を予約して処理を継続する。
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("WhatsAppセッションマネージャーを開始しました",
		slog.Duration("reconnect_delay", m.delay),
	)

	m.start(ctx)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			m.logger.Info("WhatsAppセッションマネージャーを停止しました")
			return nil
		case <-m.restartC:
			m.restartC = nil
			m.start(ctx)
		case ev, ok := <-m.events:
			if !ok {
				// イベントチャネルが閉じられた接続は切断として扱う
				ev = ConnectionClosedEvent{Cause: CauseConnectionLost}
			}
			m.handle(ctx, ev)
		}
	}
}

// start は認証情報を読み込み、新しい接続を開始する。
// 接続試行中またはハンドル保持中の場合は何もしない。
func (m *Manager) start(ctx context.Context) {
	m.mu.RLock()
	inFlight := m.conn != nil
	m.mu.RUnlock()
	if inFlight {
		return
	}

	creds, err := m.creds.Load()
	if err != nil {
		m.logger.Error("認証情報の読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		m.failStart("credentials_unreadable")
		return
	}

	m.setState(StateBootstrapping)
	if creds == nil {
		m.logger.Info("保存済みの認証情報がないため、QR認証から開始します")
	}

	conn, err := m.dialer.Dial(ctx, creds)
	if err != nil {
		m.logger.Error("WhatsAppへの接続開始に失敗しました",
			slog.String("error", err.Error()),
		)
		m.setState(StateOffline)
		m.failStart("dial_failed")
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.events = conn.Events()
	m.awaitingFirst = true
}

// failStart は接続試行の失敗を確定させ、次の試行を予約する。
func (m *Manager) failStart(reason string) {
	m.mu.Lock()
	m.restartPending = false
	m.mu.Unlock()
	m.scheduleRestart(reason)
}

// scheduleRestart は固定遅延後の再接続を予約する。
// 既に予約済みの場合は何もしない。
func (m *Manager) scheduleRestart(reason string) {
	m.mu.Lock()
	if m.restartPending {
		m.mu.Unlock()
		m.logger.Debug("再接続は予約済みのためスキップしました",
			slog.String("reason", reason),
		)
		return
	}
	m.restartPending = true
	m.mu.Unlock()

	m.restartC = m.after(m.delay)
	if m.metrics != nil {
		m.metrics.RecordSessionRestart(reason)
	}
	m.logger.Info("再接続を予約しました",
		slog.String("reason", reason),
		slog.Duration("delay", m.delay),
	)
}

func (m *Manager) handle(ctx context.Context, ev Event) {
	if m.awaitingFirst {
		// 新しい接続から最初のイベントが届いた時点で試行中フラグを解除する
		m.awaitingFirst = false
		m.mu.Lock()
		m.restartPending = false
		m.mu.Unlock()
	}

	switch e := ev.(type) {
	case ChallengeEvent:
		m.relay.Set(e.Code)
		if m.metrics != nil {
			m.metrics.RecordChallenge()
		}
		if m.State() != StateReady {
			m.setState(StateAwaitingChallenge)
		}
		m.logger.Info("QRコードを受信しました。管理画面から読み取ってください")

	case CredentialsRotatedEvent:
		creds, err := m.creds.Save(e.Material)
		if err != nil {
			m.logger.Error("認証情報の保存に失敗しました",
				slog.String("error", err.Error()),
			)
			return
		}
		m.logger.Info("認証情報を保存しました",
			slog.Uint64("rotation", creds.Rotation),
		)

	case ConnectionOpenEvent:
		m.relay.Clear()
		m.setState(StateReady)
		m.logger.Info("WhatsAppに接続しました")
		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()
		go m.logChannels(ctx, conn)

	case ConnectionClosedEvent:
		m.handleClosed(e)

	case MessageEvent:
		if m.onMessage == nil {
			return
		}
		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()
		go m.onMessage(ctx, conn, e)
	}
}

func (m *Manager) handleClosed(e ConnectionClosedEvent) {
	attrs := []any{slog.String("cause", e.Cause.String())}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	m.logger.Warn("WhatsAppの接続が切断されました", attrs...)

	m.dropConn()

	if e.Cause == CauseLoggedOut {
		m.setState(StateLoggedOut)
		if err := m.creds.Erase(); err != nil {
			m.logger.Error("認証情報の消去に失敗しました",
				slog.String("error", err.Error()),
			)
		} else {
			m.logger.Info("ログアウトされたため認証情報を消去しました")
		}
	}

	m.setState(StateOffline)
	m.scheduleRestart(e.Cause.String())
}

// dropConn は現在の接続ハンドルを破棄する。
func (m *Manager) dropConn() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.events = nil
	m.awaitingFirst = false
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Warn("接続のクローズに失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Manager) shutdown() {
	m.dropConn()
	m.setState(StateOffline)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("セッション状態が変化しました",
			slog.String("from", prev.String()),
			slog.String("to", s.String()),
		)
	}
	if m.metrics != nil {
		m.metrics.RecordSessionState(s.String())
	}
}

// logChannels は参加中のグループ一覧をログに出力する。
// 取得に失敗しても接続状態には影響しない。
func (m *Manager) logChannels(ctx context.Context, conn Conn) {
	if conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	channels, err := conn.FetchParticipatingChannels(ctx)
	if err != nil {
		m.logger.Warn("参加グループの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	for _, ch := range channels {
		m.logger.Info("参加グループ",
			slog.String("channel_id", ch.ID),
			slog.String("name", ch.Name),
		)
	}
}
