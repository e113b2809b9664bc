package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/skip2/go-qrcode"

	"github.com/hitoshi/schoolgate/internal/model"
	"github.com/hitoshi/schoolgate/internal/whatsapp"
)

// qrImageSize はQR画像の一辺のピクセル数。
const qrImageSize = 256

// SessionStatus はWhatsAppセッションの状態参照インターフェース。whatsapp.Managerが実装する。
type SessionStatus interface {
	State() whatsapp.State
	IsReady() bool
	RestartPending() bool
}

// ChallengeSource は最新のQR認証コードの参照インターフェース。whatsapp.ChallengeRelayが実装する。
type ChallengeSource interface {
	Get() (string, bool)
}

// WhatsAppHandler はWhatsAppセッションのHTTPハンドラー。
type WhatsAppHandler struct {
	session   SessionStatus
	challenge ChallengeSource
	logger    *slog.Logger
}

// NewWhatsAppHandler はWhatsAppHandlerを生成する。
func NewWhatsAppHandler(session SessionStatus, challenge ChallengeSource, logger *slog.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{session: session, challenge: challenge, logger: logger}
}

type challengeResponse struct {
	QRImage string `json:"qrImage"`
}

type sessionStatusResponse struct {
	State          string `json:"state"`
	Ready          bool   `json:"ready"`
	RestartPending bool   `json:"restart_pending"`
}

// GetChallenge は最新のQR認証コードをPNGのデータURLとして返す。
// GET /api/get-qr
func (h *WhatsAppHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	code, ok := h.challenge.Get()
	if !ok {
		handleServiceError(w, model.NewChallengeNotAvailableError())
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		h.logger.Error("QR画像の生成に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, challengeResponse{
		QRImage: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

// Status はセッションの状態を返す。
// GET /api/whatsapp/status
func (h *WhatsAppHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		State:          h.session.State().String(),
		Ready:          h.session.IsReady(),
		RestartPending: h.session.RestartPending(),
	})
}
