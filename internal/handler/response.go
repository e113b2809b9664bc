// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/schoolgate/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// studentResponse は生徒情報のAPIレスポンス。
type studentResponse struct {
	ID         string `json:"id"`
	Enrollment string `json:"matricula"`
	FullName   string `json:"nombreCompleto"`
	Grade      string `json:"grado"`
	Group      string `json:"grupo"`
	Level      string `json:"nivel,omitempty"`
}

// attendanceResponse は出席記録のAPIレスポンス。
type attendanceResponse struct {
	ID          string    `json:"id"`
	Enrollment  string    `json:"matricula"`
	StudentName string    `json:"nombre"`
	Grade       string    `json:"grado"`
	Group       string    `json:"grupo"`
	RecordedAt  time.Time `json:"fecha"`
	Status      string    `json:"status"`
	Category    string    `json:"tipo"`
}

func toStudentResponse(s *model.Student) *studentResponse {
	if s == nil {
		return nil
	}
	return &studentResponse{
		ID:         s.ID,
		Enrollment: s.Enrollment,
		FullName:   s.FullName,
		Grade:      s.Grade,
		Group:      s.Group,
		Level:      s.Level,
	}
}

func toAttendanceResponse(a *model.Attendance) attendanceResponse {
	return attendanceResponse{
		ID:          a.ID,
		Enrollment:  a.Enrollment,
		StudentName: a.StudentName,
		Grade:       a.Grade,
		Group:       a.Group,
		RecordedAt:  a.RecordedAt,
		Status:      string(a.Status),
		Category:    string(a.Category),
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeJSON はリクエストボディをデコードする。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: model.CategoryValidation,
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError && apiErr.Err != nil {
			slog.Error("service error",
				slog.String("code", apiErr.Code),
				slog.String("error", apiErr.Err.Error()),
			)
		}
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeNotConnected, model.ErrCodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeTransportError:
		return http.StatusBadGateway
	case model.ErrCodeSubjectNotFound, model.ErrCodeAttendanceNotFound,
		model.ErrCodeGuardianNotFound, model.ErrCodeCodeNotFound,
		model.ErrCodeChallengeNotAvailable:
		return http.StatusNotFound
	case model.ErrCodeWindowClosed, model.ErrCodeInvalidInput,
		model.ErrCodeInvalidChannel, model.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case model.ErrCodeDuplicateKey:
		return http.StatusConflict
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
