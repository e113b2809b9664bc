package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/schoolgate/internal/model"
	"github.com/hitoshi/schoolgate/internal/student"
)

// StudentServiceInterface は生徒登録ハンドラーが必要とするサービスインターフェース。
type StudentServiceInterface interface {
	Register(ctx context.Context, input student.RegisterInput) (*model.Student, *model.Guardian, error)
}

// StudentHandler は生徒・保護者登録のHTTPハンドラー。
type StudentHandler struct {
	service StudentServiceInterface
}

// NewStudentHandler はStudentHandlerを生成する。
func NewStudentHandler(service StudentServiceInterface) *StudentHandler {
	return &StudentHandler{service: service}
}

type guardianResponse struct {
	ID         string `json:"id"`
	Code       string `json:"qrCode"`
	Enrollment string `json:"matricula"`
	Name       string `json:"nombre"`
	Address    string `json:"domicilio"`
	Phone      string `json:"telefono"`
	ChannelID  string `json:"grupoWhatsapp,omitempty"`
}

type registerStudentResponse struct {
	Message string           `json:"msg"`
	Student *studentResponse `json:"student"`
	Parent  guardianResponse `json:"parent"`
}

// Register は生徒と保護者コードを同時に登録する。
// POST /api/insert
func (h *StudentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req student.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	s, g, err := h.service.Register(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerStudentResponse{
		Message: "Insertado correctamente",
		Student: toStudentResponse(s),
		Parent: guardianResponse{
			ID:         g.ID,
			Code:       g.Code,
			Enrollment: g.StudentEnrollment,
			Name:       g.Name,
			Address:    g.Address,
			Phone:      g.Phone,
			ChannelID:  g.ChannelID,
		},
	})
}
