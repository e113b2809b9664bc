package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/schoolgate/internal/scan"
)

// ScanServiceInterface はスキャンハンドラーが必要とするサービスインターフェース。
type ScanServiceInterface interface {
	Scan(ctx context.Context, code string) (*scan.Result, error)
	NotifyGuardian(ctx context.Context, code string) (*scan.Result, error)
}

// ScanHandler は校門のQR読み取りのHTTPハンドラー。
type ScanHandler struct {
	service ScanServiceInterface
}

// NewScanHandler はScanHandlerを生成する。
func NewScanHandler(service ScanServiceInterface) *ScanHandler {
	return &ScanHandler{service: service}
}

// scanRequest は読み取り結果のリクエスト。
// 既存の読み取り端末はqrCodeフィールドで送信する。
type scanRequest struct {
	Code   string `json:"code"`
	QRCode string `json:"qrCode"`
}

func (r scanRequest) value() string {
	if strings.TrimSpace(r.Code) != "" {
		return r.Code
	}
	return r.QRCode
}

type notificationResponse struct {
	Outcome   string           `json:"outcome"`
	Message   string           `json:"msg"`
	Student   *studentResponse `json:"estudiante"`
	ChannelID string           `json:"grupo"`
}

// Scan は読み取ったコードを出席記録または保護者通知として処理する。
// POST /api/scan-qr
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.Scan(r.Context(), req.value())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if res.Kind == scan.KindAttendance {
		writeAttendanceResult(w, res.Attendance)
		return
	}
	writeNotificationResult(w, res)
}

// NotifyGuardian は保護者コードから生徒の到着を通知する。
// GET /api/buscar-qr-padre/{code}
func (h *ScanHandler) NotifyGuardian(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	res, err := h.service.NotifyGuardian(r.Context(), code)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeNotificationResult(w, res)
}

func writeNotificationResult(w http.ResponseWriter, res *scan.Result) {
	writeJSON(w, http.StatusOK, notificationResponse{
		Outcome:   "notified",
		Message:   "Mensaje enviado al grupo",
		Student:   toStudentResponse(res.Student),
		ChannelID: res.ChannelID,
	})
}
