package scan

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/schoolgate/internal/attendance"
	"github.com/hitoshi/schoolgate/internal/model"
)

// --- モック定義 ---

type mockStudentRepo struct {
	students map[string]*model.Student
	findErr  error
}

func (m *mockStudentRepo) FindByEnrollment(ctx context.Context, enrollment string) (*model.Student, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.students[enrollment], nil
}

func (m *mockStudentRepo) CreateWithGuardian(ctx context.Context, student *model.Student, guardian *model.Guardian) error {
	return nil
}

type mockGuardianRepo struct {
	guardians map[string]*model.Guardian
}

func (m *mockGuardianRepo) FindByCode(ctx context.Context, code string) (*model.Guardian, error) {
	return m.guardians[code], nil
}

type mockRecorder struct {
	calls          []string
	recordScanFunc func(ctx context.Context, enrollment string, now time.Time) (*attendance.Result, error)
}

func (m *mockRecorder) RecordScan(ctx context.Context, enrollment string, now time.Time) (*attendance.Result, error) {
	m.calls = append(m.calls, enrollment)
	if m.recordScanFunc != nil {
		return m.recordScanFunc(ctx, enrollment, now)
	}
	return &attendance.Result{Outcome: attendance.OutcomeCreated, Record: &model.Attendance{Enrollment: enrollment}}, nil
}

type sent struct {
	channelID string
	student   *model.Student
}

type mockNotifier struct {
	sent []sent
	err  error
}

func (m *mockNotifier) Send(ctx context.Context, channelID string, student *model.Student) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sent{channelID: channelID, student: student})
	return nil
}

const defaultGroup = "120363416896007690@g.us"

func newTestService() (*Service, *mockRecorder, *mockNotifier) {
	students := &mockStudentRepo{students: map[string]*model.Student{
		"A001": {Enrollment: "A001", FullName: "Ana López", Grade: "2", Group: "A"},
	}}
	guardians := &mockGuardianRepo{guardians: map[string]*model.Guardian{
		"P-A001":  {Code: "P-A001", StudentEnrollment: "A001"},
		"P-OWN":   {Code: "P-OWN", StudentEnrollment: "A001", ChannelID: "999@g.us"},
		"P-GHOST": {Code: "P-GHOST", StudentEnrollment: "X999"},
	}}
	recorder := &mockRecorder{}
	notifier := &mockNotifier{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return NewService(students, guardians, recorder, notifier, defaultGroup, logger), recorder, notifier
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

func TestScan_StudentCodeRecordsAttendance(t *testing.T) {
	s, recorder, notifier := newTestService()

	res, err := s.Scan(context.Background(), " A001 ")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.Kind != KindAttendance || res.Attendance.Outcome != attendance.OutcomeCreated {
		t.Errorf("result = %+v", res)
	}
	if len(recorder.calls) != 1 || recorder.calls[0] != "A001" {
		t.Errorf("recorder calls = %v", recorder.calls)
	}
	if len(notifier.sent) != 0 {
		t.Error("student scan must not notify")
	}
}

func TestScan_RecorderErrorIsPropagated(t *testing.T) {
	s, recorder, _ := newTestService()
	recorder.recordScanFunc = func(ctx context.Context, enrollment string, now time.Time) (*attendance.Result, error) {
		return nil, model.NewWindowClosedError()
	}

	_, err := s.Scan(context.Background(), "A001")
	assertAPIErrorCode(t, err, model.ErrCodeWindowClosed)
}

func TestScan_GuardianCodeNotifies(t *testing.T) {
	s, recorder, notifier := newTestService()

	res, err := s.Scan(context.Background(), "P-A001")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.Kind != KindNotification || res.ChannelID != defaultGroup {
		t.Errorf("result = %+v", res)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].student.Enrollment != "A001" {
		t.Errorf("sent = %+v", notifier.sent)
	}
	if len(recorder.calls) != 0 {
		t.Error("guardian scan must not record attendance")
	}
}

func TestScan_GuardianOwnChannel(t *testing.T) {
	s, _, notifier := newTestService()

	if _, err := s.Scan(context.Background(), "P-OWN"); err != nil {
		t.Fatal(err)
	}
	if notifier.sent[0].channelID != "999@g.us" {
		t.Errorf("channelID = %q, want guardian's own group", notifier.sent[0].channelID)
	}
}

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"too short", "ab", model.ErrCodeInvalidInput},
		{"unknown code", "ZZZ-1", model.ErrCodeCodeNotFound},
		{"guardian without student", "P-GHOST", model.ErrCodeSubjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestService()
			_, err := s.Scan(context.Background(), tt.code)
			assertAPIErrorCode(t, err, tt.want)
		})
	}
}

func TestScan_NotifierErrorIsPropagated(t *testing.T) {
	s, _, notifier := newTestService()
	notifier.err = model.NewNotConnectedError()

	_, err := s.Scan(context.Background(), "P-A001")
	assertAPIErrorCode(t, err, model.ErrCodeNotConnected)
}

func TestScan_StorageFailure(t *testing.T) {
	s, _, _ := newTestService()
	s.students = &mockStudentRepo{findErr: errors.New("connection refused")}

	_, err := s.Scan(context.Background(), "A001")
	assertAPIErrorCode(t, err, model.ErrCodeStorageUnavailable)
}

func TestNotifyGuardian(t *testing.T) {
	s, _, notifier := newTestService()

	res, err := s.NotifyGuardian(context.Background(), "P-A001")
	if err != nil {
		t.Fatalf("NotifyGuardian() error = %v", err)
	}
	if res.Student.FullName != "Ana López" || len(notifier.sent) != 1 {
		t.Errorf("result = %+v, sent = %d", res, len(notifier.sent))
	}

	// 生徒の学籍番号は保護者コードとして扱わない
	_, err = s.NotifyGuardian(context.Background(), "A001")
	assertAPIErrorCode(t, err, model.ErrCodeGuardianNotFound)
}
