// Package student は生徒と保護者の登録を提供する。
package student

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/schoolgate/internal/model"
	"github.com/hitoshi/schoolgate/internal/repository"
	"github.com/hitoshi/schoolgate/internal/security"
)

// StudentInput は生徒の登録内容。
type StudentInput struct {
	FullName   string `json:"nombreCompleto" validate:"required,max=255"`
	Enrollment string `json:"matricula" validate:"required,min=3,max=64"`
	Grade      string `json:"grado" validate:"required,max=32"`
	Group      string `json:"grupo" validate:"required,max=32"`
	Level      string `json:"nivel" validate:"required,max=64"`
}

// GuardianInput は保護者の登録内容。
// 電話番号は任意だが、指定する場合は10桁の数字とする。
type GuardianInput struct {
	Name      string `json:"nombre" validate:"required,max=255"`
	Address   string `json:"domicilio" validate:"required,max=255"`
	Phone     string `json:"telefono" validate:"omitempty,len=10,numeric"`
	Code      string `json:"qrCode" validate:"required,min=3,max=64"`
	ChannelID string `json:"grupoWhatsapp" validate:"omitempty,endswith=@g.us"`
}

// RegisterInput は生徒と保護者の同時登録リクエスト。
type RegisterInput struct {
	Student  StudentInput  `json:"student"`
	Guardian GuardianInput `json:"parent"`
}

// Service は生徒登録のビジネスロジックを提供する。
type Service struct {
	students  repository.StudentRepository
	sanitizer security.TextSanitizer
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(students repository.StudentRepository, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	return &Service{
		students:  students,
		sanitizer: sanitizer,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Register は生徒と保護者を登録する。
// 学籍番号または保護者コードが既に登録されている場合はDUPLICATE_KEYを返す。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.Student, *model.Guardian, error) {
	input = s.clean(input)

	if err := s.validate.Struct(input); err != nil {
		return nil, nil, model.NewInvalidInputError(validationMessage(err))
	}
	// 保護者コードと学籍番号が同じ値だと読み取り時に生徒として扱われてしまう
	if input.Student.Enrollment == input.Guardian.Code {
		return nil, nil, model.NewInvalidInputError("qrCode debe ser distinto de la matrícula")
	}

	now := time.Now()
	student := &model.Student{
		ID:         uuid.New().String(),
		Enrollment: input.Student.Enrollment,
		FullName:   input.Student.FullName,
		Grade:      input.Student.Grade,
		Group:      input.Student.Group,
		Level:      input.Student.Level,
		CreatedAt:  now,
	}
	guardian := &model.Guardian{
		ID:                uuid.New().String(),
		Code:              input.Guardian.Code,
		StudentEnrollment: student.Enrollment,
		ChannelID:         input.Guardian.ChannelID,
		Name:              input.Guardian.Name,
		Address:           input.Guardian.Address,
		Phone:             input.Guardian.Phone,
		CreatedAt:         now,
	}

	if err := s.students.CreateWithGuardian(ctx, student, guardian); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, nil, apiErr
		}
		return nil, nil, model.NewStorageUnavailableError(err)
	}

	s.logger.Info("生徒を登録しました",
		slog.String("enrollment", student.Enrollment),
		slog.String("guardian_code", guardian.Code),
	)
	return student, guardian, nil
}

// clean は表示に使う項目からマークアップを除去し、識別子の前後の空白を取り除く。
func (s *Service) clean(in RegisterInput) RegisterInput {
	in.Student.FullName = s.sanitizer.Sanitize(in.Student.FullName)
	in.Student.Enrollment = strings.TrimSpace(in.Student.Enrollment)
	in.Student.Grade = s.sanitizer.Sanitize(in.Student.Grade)
	in.Student.Group = s.sanitizer.Sanitize(in.Student.Group)
	in.Student.Level = s.sanitizer.Sanitize(in.Student.Level)

	in.Guardian.Name = s.sanitizer.Sanitize(in.Guardian.Name)
	in.Guardian.Address = s.sanitizer.Sanitize(in.Guardian.Address)
	in.Guardian.Phone = strings.TrimSpace(in.Guardian.Phone)
	in.Guardian.Code = strings.TrimSpace(in.Guardian.Code)
	in.Guardian.ChannelID = strings.TrimSpace(in.Guardian.ChannelID)
	return in
}

// validationMessage はバリデーションエラーを項目名の一覧に変換する。
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}
