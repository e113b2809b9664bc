// Package scan は校門で読み取ったQRコードを出席記録または保護者通知に振り分ける。
package scan

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/schoolgate/internal/attendance"
	"github.com/hitoshi/schoolgate/internal/model"
	"github.com/hitoshi/schoolgate/internal/repository"
)

// minCodeLength はQRコードとして受け付ける最小の文字数。
const minCodeLength = 3

// Kind は読み取り結果の種別。
type Kind string

const (
	// KindAttendance は生徒のコードとして出席を記録したことを示す。
	KindAttendance Kind = "attendance"
	// KindNotification は保護者のコードとして到着通知を送信したことを示す。
	KindNotification Kind = "notification"
)

// Notifier は到着通知の送信インターフェース。whatsapp.Dispatcherが実装する。
type Notifier interface {
	Send(ctx context.Context, channelID string, student *model.Student) error
}

// AttendanceRecorder は出席記録のインターフェース。attendance.Recorderが実装する。
type AttendanceRecorder interface {
	RecordScan(ctx context.Context, enrollment string, now time.Time) (*attendance.Result, error)
}

// Result は読み取りの処理結果。
type Result struct {
	Kind       Kind
	Student    *model.Student
	Attendance *attendance.Result
	ChannelID  string
}

// Service はQRコードの読み取りを処理する。
type Service struct {
	students       repository.StudentRepository
	guardians      repository.GuardianRepository
	recorder       AttendanceRecorder
	notifier       Notifier
	defaultChannel string
	logger         *slog.Logger
	now            func() time.Time
}

// NewService はServiceを生成する。
// defaultChannelは通知先グループが未設定の保護者に使用するグループID。
func NewService(
	students repository.StudentRepository,
	guardians repository.GuardianRepository,
	recorder AttendanceRecorder,
	notifier Notifier,
	defaultChannel string,
	logger *slog.Logger,
) *Service {
	return &Service{
		students:       students,
		guardians:      guardians,
		recorder:       recorder,
		notifier:       notifier,
		defaultChannel: defaultChannel,
		logger:         logger,
		now:            time.Now,
	}
}

// Scan はコードを生徒の学籍番号として照合し、一致すれば出席を記録する。
// 一致しない場合は保護者コードとして照合し、生徒の到着を通知する。
func (s *Service) Scan(ctx context.Context, code string) (*Result, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	student, err := s.students.FindByEnrollment(ctx, code)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if student != nil {
		res, err := s.recorder.RecordScan(ctx, code, s.now())
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindAttendance, Student: student, Attendance: res}, nil
	}

	guardian, err := s.guardians.FindByCode(ctx, code)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if guardian == nil {
		s.logger.Info("未登録のQRコードが読み取られました", slog.String("code", code))
		return nil, model.NewCodeNotFoundError()
	}
	return s.notify(ctx, guardian)
}

// NotifyGuardian は保護者コードから生徒を特定し、到着を通知する。
func (s *Service) NotifyGuardian(ctx context.Context, code string) (*Result, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	guardian, err := s.guardians.FindByCode(ctx, code)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if guardian == nil {
		return nil, model.NewGuardianNotFoundError()
	}
	return s.notify(ctx, guardian)
}

func (s *Service) notify(ctx context.Context, guardian *model.Guardian) (*Result, error) {
	student, err := s.students.FindByEnrollment(ctx, guardian.StudentEnrollment)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if student == nil {
		return nil, model.NewSubjectNotFoundError(guardian.StudentEnrollment)
	}

	channelID := guardian.ChannelID
	if channelID == "" {
		channelID = s.defaultChannel
	}
	if err := s.notifier.Send(ctx, channelID, student); err != nil {
		return nil, err
	}

	return &Result{Kind: KindNotification, Student: student, ChannelID: channelID}, nil
}

func normalizeCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) < minCodeLength {
		return "", model.NewInvalidInputError("código QR inválido o ausente")
	}
	return code, nil
}
