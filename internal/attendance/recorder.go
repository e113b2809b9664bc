package attendance

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/schoolgate/internal/model"
	"github.com/hitoshi/schoolgate/internal/repository"
)

// Outcome は出席記録の処理結果。
type Outcome string

const (
	// OutcomeCreated は新しい記録を作成したことを示す。
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated は同日の既存記録を上書きしたことを示す。
	OutcomeUpdated Outcome = "updated"
)

// 読み取りのメトリクスラベル（区分が確定しなかった場合）
const (
	scanRejected      = "rejected"
	scanWindowClosed  = "window_closed"
	scanStorageFailed = "storage_error"
)

// ScanMetrics は出席読み取りのメトリクス記録インターフェース。
type ScanMetrics interface {
	RecordScan(category, outcome string)
}

// Result は出席記録の処理結果。
type Result struct {
	Record  *model.Attendance
	Outcome Outcome
	// Student は読み取りで特定された生徒。手動登録では学籍番号が登録済みの場合のみ設定される。
	Student *model.Student
}

// ManualInput は管理者による手動登録の入力値。
type ManualInput struct {
	Enrollment string    `validate:"omitempty,max=64"`
	Name       string    `validate:"required,max=255"`
	Grade      string    `validate:"required,max=32"`
	Group      string    `validate:"required,max=32"`
	Timestamp  time.Time `validate:"required"`
	Status     string    `validate:"required"`
}

// Recorder は出席記録の作成と更新を行う。
// 同一生徒・同一暦日（学校のタイムゾーン基準）の記録を最大1件に保つ。
// 確認と書き込みは学籍番号のロックを保持したトランザクション内で行い、
// 他プロセスの読み取りや欠席登録ジョブと同時に動いても重複を作らない。
type Recorder struct {
	students repository.StudentRepository
	records  repository.AttendanceRepository
	loc      *time.Location
	logger   *slog.Logger
	metrics  ScanMetrics
	validate *validator.Validate

	locks [lockStripes]sync.Mutex
}

// lockStripes はプロセス内ロックの数。学籍番号の数に関係なく一定。
const lockStripes = 64

// NewRecorder はRecorderを生成する。metricsはnilでもよい。
func NewRecorder(
	students repository.StudentRepository,
	records repository.AttendanceRepository,
	loc *time.Location,
	logger *slog.Logger,
	metrics ScanMetrics,
) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{
		students: students,
		records:  records,
		loc:      loc,
		logger:   logger,
		metrics:  metrics,
		validate: validator.New(),
	}
}

// Location は日付の境界に使用するタイムゾーンを返す。
func (r *Recorder) Location() *time.Location {
	return r.loc
}

// RecordScan は生徒のQRコード読み取りを出席として記録する。
// 同日の記録がある場合は区分と記録時刻を上書きし、ない場合は出席として新規作成する。
func (r *Recorder) RecordScan(ctx context.Context, enrollment string, now time.Time) (*Result, error) {
	enrollment = strings.TrimSpace(enrollment)
	if enrollment == "" {
		return nil, model.NewInvalidInputError("matrícula es obligatoria")
	}

	student, err := r.students.FindByEnrollment(ctx, enrollment)
	if err != nil {
		r.recordMetric("", scanStorageFailed)
		return nil, model.NewStorageUnavailableError(err)
	}
	if student == nil {
		r.recordMetric("", scanRejected)
		return nil, model.NewSubjectNotFoundError(enrollment)
	}

	category, ok := Classify(MinuteOfDay(now, r.loc))
	if !ok {
		r.recordMetric("", scanWindowClosed)
		return nil, model.NewWindowClosedError()
	}

	unlock := r.lock(enrollment)
	defer unlock()

	var result *Result
	err = r.records.WithEnrollmentLock(ctx, enrollment, func(tx repository.AttendanceRepository) error {
		existing, err := r.findSameDay(ctx, tx, enrollment, now)
		if err != nil {
			return err
		}

		if existing != nil {
			existing.Category = category
			existing.RecordedAt = now
			existing.UpdatedAt = time.Now()
			if err := tx.Update(ctx, existing); err != nil {
				return err
			}
			result = &Result{Record: existing, Outcome: OutcomeUpdated, Student: student}
			return nil
		}

		record := &model.Attendance{
			ID:          uuid.New().String(),
			Enrollment:  student.Enrollment,
			StudentName: student.FullName,
			Grade:       student.Grade,
			Group:       student.Group,
			RecordedAt:  now,
			Status:      model.StatusPresent,
			Category:    category,
			CreatedAt:   time.Now(),
		}
		record.UpdatedAt = record.CreatedAt
		if err := tx.Create(ctx, record); err != nil {
			return err
		}
		result = &Result{Record: record, Outcome: OutcomeCreated, Student: student}
		return nil
	})
	if err != nil {
		r.recordMetric(string(category), scanStorageFailed)
		return nil, storageError(err)
	}

	r.recordMetric(string(category), string(result.Outcome))
	msg := "出席記録を作成しました"
	if result.Outcome == OutcomeUpdated {
		msg = "出席記録を更新しました"
	}
	r.logger.Info(msg,
		slog.String("enrollment", enrollment),
		slog.String("category", string(category)),
	)
	return result, nil
}

// RecordManual は管理者が入力した出席記録を登録する。
// 学籍番号が省略された場合は「N/A」とし、同日一意の対象外とする。
// 学籍番号がある場合は同日の既存記録のステータス、区分、記録時刻を上書きする。
func (r *Recorder) RecordManual(ctx context.Context, input ManualInput) (*Result, error) {
	if err := r.validate.Struct(input); err != nil {
		return nil, model.NewInvalidInputError(validationMessage(err))
	}
	status, ok := model.ParseAttendanceStatus(input.Status)
	if !ok {
		return nil, model.NewInvalidStatusError(input.Status)
	}

	enrollment := strings.TrimSpace(input.Enrollment)
	if enrollment == "" {
		enrollment = model.UnknownEnrollment
	}

	record := &model.Attendance{
		ID:          uuid.New().String(),
		Enrollment:  enrollment,
		StudentName: input.Name,
		Grade:       input.Grade,
		Group:       input.Group,
		RecordedAt:  input.Timestamp,
		Status:      status,
		Category:    model.CategoryManual,
		CreatedAt:   time.Now(),
	}
	record.UpdatedAt = record.CreatedAt

	if enrollment == model.UnknownEnrollment {
		if err := r.records.Create(ctx, record); err != nil {
			return nil, storageError(err)
		}
		r.logManual("手動入力で出席記録を作成しました", enrollment, status)
		return &Result{Record: record, Outcome: OutcomeCreated}, nil
	}

	unlock := r.lock(enrollment)
	defer unlock()

	var result *Result
	err := r.records.WithEnrollmentLock(ctx, enrollment, func(tx repository.AttendanceRepository) error {
		existing, err := r.findSameDay(ctx, tx, enrollment, input.Timestamp)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Status = status
			existing.Category = model.CategoryManual
			existing.RecordedAt = input.Timestamp
			existing.UpdatedAt = time.Now()
			if err := tx.Update(ctx, existing); err != nil {
				return err
			}
			result = &Result{Record: existing, Outcome: OutcomeUpdated}
			return nil
		}

		student, err := r.students.FindByEnrollment(ctx, enrollment)
		if err != nil {
			return model.NewStorageUnavailableError(err)
		}
		if err := tx.Create(ctx, record); err != nil {
			return err
		}
		result = &Result{Record: record, Outcome: OutcomeCreated, Student: student}
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	if result.Outcome == OutcomeUpdated {
		r.logManual("手動入力で出席記録を更新しました", enrollment, status)
	} else {
		r.logManual("手動入力で出席記録を作成しました", enrollment, status)
	}
	return result, nil
}

func (r *Recorder) logManual(msg, enrollment string, status model.AttendanceStatus) {
	r.logger.Info(msg,
		slog.String("enrollment", enrollment),
		slog.String("status", string(status)),
	)
}

// UpdateStatus は出席記録のステータスを変更する。
func (r *Recorder) UpdateStatus(ctx context.Context, id, status string) (*model.Attendance, error) {
	parsed, ok := model.ParseAttendanceStatus(status)
	if !ok {
		return nil, model.NewInvalidStatusError(status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewAttendanceNotFoundError(id)
	}

	record, err := r.records.FindByID(ctx, id)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if record == nil {
		return nil, model.NewAttendanceNotFoundError(id)
	}

	record.Status = parsed
	record.UpdatedAt = time.Now()
	if err := r.records.Update(ctx, record); err != nil {
		return nil, storageError(err)
	}
	return record, nil
}

// List は全出席記録を新しい順に返す。
func (r *Recorder) List(ctx context.Context) ([]*model.Attendance, error) {
	records, err := r.records.List(ctx)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	return records, nil
}

func (r *Recorder) findSameDay(ctx context.Context, records repository.AttendanceRepository, enrollment string, t time.Time) (*model.Attendance, error) {
	from, to := DayBounds(t, r.loc)
	existing, err := records.FindByEnrollmentBetween(ctx, enrollment, from, to)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	return existing, nil
}

// lock は学籍番号に対応するストライプのロックを取得し、解放関数を返す。
// DBのアドバイザリロック待ちで接続プールを占有しないよう、プロセス内で先に直列化する。
func (r *Recorder) lock(enrollment string) func() {
	mu := r.stripe(enrollment)
	mu.Lock()
	return mu.Unlock
}

func (r *Recorder) stripe(enrollment string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(enrollment))
	return &r.locks[h.Sum32()%lockStripes]
}

func (r *Recorder) recordMetric(category, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordScan(category, outcome)
	}
}

// storageError はAPIErrorはそのまま返し、それ以外をSTORAGE_UNAVAILABLEに変換する。
func storageError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewStorageUnavailableError(err)
}

// validationMessage はバリデーションエラーを項目名の一覧に変換する。
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}
