// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sessionStates はセッション状態ゲージのラベル値。
var sessionStates = []string{"offline", "bootstrapping", "awaiting_challenge", "ready", "logged_out"}

// MetricsCollector はメトリクス収集のインターフェース。
// セッションマネージャー、通知送信、出席記録、欠席登録ワーカーから利用する。
type MetricsCollector interface {
	RecordSessionState(state string)
	RecordSessionRestart(reason string)
	RecordChallenge()
	RecordNotification(result string)
	RecordScan(category, outcome string)
	RecordAbsencesMarked(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionState   *prometheus.GaugeVec
	restarts       *prometheus.CounterVec
	challenges     prometheus.Counter
	notifications  *prometheus.CounterVec
	scans          *prometheus.CounterVec
	absencesMarked prometheus.Counter

	stateMu sync.Mutex
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "schoolgate_whatsapp_session_state",
			Help: "WhatsAppセッションの現在の状態（該当する状態のみ1）",
		}, []string{"state"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolgate_whatsapp_restarts_total",
			Help: "再接続を予約した回数（理由別）",
		}, []string{"reason"}),
		challenges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolgate_whatsapp_challenges_total",
			Help: "受信したQRチャレンジの合計数",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolgate_notifications_total",
			Help: "保護者通知の送信結果別の合計数",
		}, []string{"result"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolgate_attendance_scans_total",
			Help: "出席読み取りの区分・結果別の合計数",
		}, []string{"category", "outcome"}),
		absencesMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolgate_absences_marked_total",
			Help: "欠席登録ワーカーが作成した欠席記録の合計数",
		}),
	}

	reg.MustRegister(
		c.sessionState,
		c.restarts,
		c.challenges,
		c.notifications,
		c.scans,
		c.absencesMarked,
	)

	for _, s := range sessionStates {
		c.sessionState.WithLabelValues(s).Set(0)
	}
	c.sessionState.WithLabelValues("offline").Set(1)

	return c
}

// RecordSessionState は現在のセッション状態を記録する。
func (c *Collector) RecordSessionState(state string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	for _, s := range sessionStates {
		c.sessionState.WithLabelValues(s).Set(0)
	}
	c.sessionState.WithLabelValues(state).Set(1)
}

// RecordSessionRestart は再接続の予約を記録する。
func (c *Collector) RecordSessionRestart(reason string) {
	c.restarts.WithLabelValues(reason).Inc()
}

// RecordChallenge はQRチャレンジの受信を記録する。
func (c *Collector) RecordChallenge() {
	c.challenges.Inc()
}

// RecordNotification は通知の送信結果を記録する。
func (c *Collector) RecordNotification(result string) {
	c.notifications.WithLabelValues(result).Inc()
}

// RecordScan は出席読み取りの結果を記録する。区分が確定しなかった場合、categoryは空文字列。
func (c *Collector) RecordScan(category, outcome string) {
	if category == "" {
		category = "none"
	}
	c.scans.WithLabelValues(category, outcome).Inc()
}

// RecordAbsencesMarked は欠席登録の件数を記録する。
func (c *Collector) RecordAbsencesMarked(count int64) {
	c.absencesMarked.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
