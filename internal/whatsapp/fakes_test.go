package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// --- テスト用ヘルパー ---

// syncBuffer はゴルーチン間で共有できるログ出力先。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// callLog は複数のフェイクにまたがる呼び出し順序を記録する。
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(entry string) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func indexOf(entries []string, target string) int {
	for i, e := range entries {
		if e == target {
			return i
		}
	}
	return -1
}

// waitFor は条件が満たされるまで待機する。
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- フェイク定義 ---

type sentMessage struct {
	channelID string
	body      string
}

// fakeConn はConnのテスト用実装。
type fakeConn struct {
	events chan Event

	mu       sync.Mutex
	sent     []sentMessage
	closed   int
	sendErr  error
	channels []Channel
	fetchErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan Event, 16)}
}

func (c *fakeConn) Events() <-chan Event { return c.events }

func (c *fakeConn) Send(ctx context.Context, channelID, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentMessage{channelID: channelID, body: body})
	return nil
}

func (c *fakeConn) FetchParticipatingChannels(ctx context.Context) ([]Channel, error) {
	return c.channels, c.fetchErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer は用意した接続を順番に返すDialer。
type fakeDialer struct {
	log *callLog

	mu      sync.Mutex
	conns   []*fakeConn
	dials   int
	creds   []*Credentials
	dialErr error
}

func (d *fakeDialer) Dial(ctx context.Context, creds *Credentials) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.creds = append(d.creds, creds)
	if d.log != nil {
		d.log.add(fmt.Sprintf("dial#%d", d.dials))
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if len(d.conns) == 0 {
		return newFakeConn(), nil
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) dialedWith(i int) *Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds[i]
}

// memoryStore はCredentialStorageのインメモリ実装。
type memoryStore struct {
	log *callLog

	mu      sync.Mutex
	creds   *Credentials
	loadErr error
	saved   [][]byte
	erased  int
}

func (s *memoryStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		err := s.loadErr
		s.loadErr = nil
		return nil, err
	}
	if s.creds == nil {
		return nil, nil
	}
	c := *s.creds
	return &c, nil
}

func (s *memoryStore) Save(material []byte) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		s.log.add("save")
	}
	next := &Credentials{Material: material}
	if s.creds != nil {
		next.Rotation = s.creds.Rotation + 1
	}
	s.creds = next
	s.saved = append(s.saved, material)
	return next, nil
}

func (s *memoryStore) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.log != nil {
		s.log.add("erase")
	}
	s.creds = nil
	s.erased++
	return nil
}

func (s *memoryStore) erasedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.erased
}

func (s *memoryStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// fakeTimer は再接続タイマーを手動で発火させる。
type fakeTimer struct {
	mu    sync.Mutex
	chans []chan time.Time
}

func (f *fakeTimer) after(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.chans = append(f.chans, ch)
	return ch
}

func (f *fakeTimer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans)
}

func (f *fakeTimer) fireLast() {
	f.mu.Lock()
	ch := f.chans[len(f.chans)-1]
	f.mu.Unlock()
	ch <- time.Now()
}

// fakeSessionMetrics はSessionMetricsの記録用実装。
type fakeSessionMetrics struct {
	mu         sync.Mutex
	states     []string
	restarts   []string
	challenges int
}

func (m *fakeSessionMetrics) RecordSessionState(state string) {
	m.mu.Lock()
	m.states = append(m.states, state)
	m.mu.Unlock()
}

func (m *fakeSessionMetrics) RecordSessionRestart(reason string) {
	m.mu.Lock()
	m.restarts = append(m.restarts, reason)
	m.mu.Unlock()
}

func (m *fakeSessionMetrics) RecordChallenge() {
	m.mu.Lock()
	m.challenges++
	m.mu.Unlock()
}

func (m *fakeSessionMetrics) stateHistory() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.states...)
}

var errDial = errors.New("dial failed")
