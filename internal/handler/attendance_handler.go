package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/schoolgate/internal/attendance"
	"github.com/hitoshi/schoolgate/internal/model"
)

// AttendanceServiceInterface は出席ハンドラーが必要とするサービスインターフェース。
type AttendanceServiceInterface interface {
	RecordScan(ctx context.Context, enrollment string, now time.Time) (*attendance.Result, error)
	RecordManual(ctx context.Context, input attendance.ManualInput) (*attendance.Result, error)
	UpdateStatus(ctx context.Context, id, status string) (*model.Attendance, error)
	List(ctx context.Context) ([]*model.Attendance, error)
}

// AttendanceHandler は出席記録のHTTPハンドラー。
type AttendanceHandler struct {
	service AttendanceServiceInterface
	now     func() time.Time
}

// NewAttendanceHandler はAttendanceHandlerを生成する。
func NewAttendanceHandler(service AttendanceServiceInterface) *AttendanceHandler {
	return &AttendanceHandler{service: service, now: time.Now}
}

type recordScanRequest struct {
	Enrollment string `json:"matricula"`
}

type manualAttendanceRequest struct {
	Enrollment string    `json:"matricula"`
	Name       string    `json:"nombre"`
	Grade      string    `json:"grado"`
	Group      string    `json:"grupo"`
	Timestamp  time.Time `json:"fecha"`
	Status     string    `json:"status"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// attendanceResultResponse は出席記録の作成・更新結果のレスポンス。
type attendanceResultResponse struct {
	Outcome    string             `json:"outcome"`
	Message    string             `json:"msg"`
	Student    *studentResponse   `json:"estudiante,omitempty"`
	Attendance attendanceResponse `json:"asistencia"`
}

// RecordScan は学籍番号から出席を記録する。
// POST /api/asistencia
func (h *AttendanceHandler) RecordScan(w http.ResponseWriter, r *http.Request) {
	var req recordScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	enrollment := strings.TrimSpace(req.Enrollment)
	if len(enrollment) < 3 {
		handleServiceError(w, model.NewInvalidInputError("matrícula inválida o ausente"))
		return
	}

	res, err := h.service.RecordScan(r.Context(), enrollment, h.now())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeAttendanceResult(w, res)
}

// List は全出席記録を新しい順に返す。
// GET /api/asistencias
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]attendanceResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toAttendanceResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RecordManual は管理者による出席記録を登録する。
// POST /api/asistencias
func (h *AttendanceHandler) RecordManual(w http.ResponseWriter, r *http.Request) {
	var req manualAttendanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.RecordManual(r.Context(), attendance.ManualInput{
		Enrollment: req.Enrollment,
		Name:       req.Name,
		Grade:      req.Grade,
		Group:      req.Group,
		Timestamp:  req.Timestamp,
		Status:     req.Status,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeAttendanceResult(w, res)
}

// UpdateStatus は出席記録のステータスを変更する。
// PUT /api/asistencias/{id}
func (h *AttendanceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(record))
}

// writeAttendanceResult は作成時201、更新時200で結果を書き込む。
func writeAttendanceResult(w http.ResponseWriter, res *attendance.Result) {
	status := http.StatusCreated
	verb := "registrada"
	if res.Outcome == attendance.OutcomeUpdated {
		status = http.StatusOK
		verb = "actualizada"
	}

	writeJSON(w, status, attendanceResultResponse{
		Outcome:    string(res.Outcome),
		Message:    fmt.Sprintf("Asistencia %s como %s", verb, res.Record.Category),
		Student:    toStudentResponse(res.Student),
		Attendance: toAttendanceResponse(res.Record),
	})
}
