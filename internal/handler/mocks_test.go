package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/schoolgate/internal/attendance"
	"github.com/hitoshi/schoolgate/internal/auth"
	"github.com/hitoshi/schoolgate/internal/model"
	"github.com/hitoshi/schoolgate/internal/scan"
	"github.com/hitoshi/schoolgate/internal/student"
	"github.com/hitoshi/schoolgate/internal/whatsapp"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, input auth.RegisterInput) (*model.Operator, error)
	loginFn    func(ctx context.Context, input auth.LoginInput) (*auth.LoginResult, error)
}

func (m *mockAuthService) Register(ctx context.Context, input auth.RegisterInput) (*model.Operator, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, input)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, input auth.LoginInput) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, input)
	}
	return nil, nil
}

type mockAttendanceService struct {
	recordScanFn   func(ctx context.Context, enrollment string, now time.Time) (*attendance.Result, error)
	recordManualFn func(ctx context.Context, input attendance.ManualInput) (*attendance.Result, error)
	updateStatusFn func(ctx context.Context, id, status string) (*model.Attendance, error)
	listFn         func(ctx context.Context) ([]*model.Attendance, error)
}

func (m *mockAttendanceService) RecordScan(ctx context.Context, enrollment string, now time.Time) (*attendance.Result, error) {
	if m.recordScanFn != nil {
		return m.recordScanFn(ctx, enrollment, now)
	}
	return nil, nil
}

func (m *mockAttendanceService) RecordManual(ctx context.Context, input attendance.ManualInput) (*attendance.Result, error) {
	if m.recordManualFn != nil {
		return m.recordManualFn(ctx, input)
	}
	return nil, nil
}

func (m *mockAttendanceService) UpdateStatus(ctx context.Context, id, status string) (*model.Attendance, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status)
	}
	return nil, nil
}

func (m *mockAttendanceService) List(ctx context.Context) ([]*model.Attendance, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockScanService struct {
	scanFn           func(ctx context.Context, code string) (*scan.Result, error)
	notifyGuardianFn func(ctx context.Context, code string) (*scan.Result, error)
}

func (m *mockScanService) Scan(ctx context.Context, code string) (*scan.Result, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, code)
	}
	return nil, nil
}

func (m *mockScanService) NotifyGuardian(ctx context.Context, code string) (*scan.Result, error) {
	if m.notifyGuardianFn != nil {
		return m.notifyGuardianFn(ctx, code)
	}
	return nil, nil
}

type mockStudentService struct {
	registerFn func(ctx context.Context, input student.RegisterInput) (*model.Student, *model.Guardian, error)
}

func (m *mockStudentService) Register(ctx context.Context, input student.RegisterInput) (*model.Student, *model.Guardian, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, input)
	}
	return nil, nil, nil
}

type mockSession struct {
	state          whatsapp.State
	restartPending bool
}

func (m *mockSession) State() whatsapp.State { return m.state }
func (m *mockSession) IsReady() bool         { return m.state == whatsapp.StateReady }
func (m *mockSession) RestartPending() bool  { return m.restartPending }

type mockChallenge struct {
	code string
}

func (m *mockChallenge) Get() (string, bool) {
	return m.code, m.code != ""
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// parseJSON はレスポンスボディを汎用マップにパースするヘルパー。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}

func testStudent() *model.Student {
	return &model.Student{
		ID:         "stu-1",
		Enrollment: "A001",
		FullName:   "Ana López",
		Grade:      "3",
		Group:      "B",
		Level:      "Primaria",
	}
}

func testAttendance(category model.AttendanceCategory) *model.Attendance {
	return &model.Attendance{
		ID:          "att-1",
		Enrollment:  "A001",
		StudentName: "Ana López",
		Grade:       "3",
		Group:       "B",
		RecordedAt:  time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC),
		Status:      model.StatusPresent,
		Category:    category,
	}
}
