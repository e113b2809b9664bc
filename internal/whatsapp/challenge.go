package whatsapp

import "sync"

// ChallengeRelay は最新のQR認証コードを1件だけ保持する。
// 新しい値は古い値を上書きし、接続完了時にクリアされる。
// 読み取りは値を消費しない。
type ChallengeRelay struct {
	mu    sync.RWMutex
	value string
	set   bool
}

// NewChallengeRelay はChallengeRelayを生成する。
func NewChallengeRelay() *ChallengeRelay {
	return &ChallengeRelay{}
}

// Set はQRコードを上書きする。
func (r *ChallengeRelay) Set(value string) {
	r.mu.Lock()
	r.value = value
	r.set = true
	r.mu.Unlock()
}

// Clear は保持しているQRコードを破棄する。
func (r *ChallengeRelay) Clear() {
	r.mu.Lock()
	r.value = ""
	r.set = false
	r.mu.Unlock()
}

// Get は現在のQRコードを返す。存在しない場合はfalseを返す。
func (r *ChallengeRelay) Get() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value, r.set
}
