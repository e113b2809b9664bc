package model

import (
	"strings"
	"time"
)

// UnknownEnrollment は学籍番号なしで手動登録された出席記録に設定する値。
const UnknownEnrollment = "N/A"

// Attendance は1件の出席記録を表す。
// 同一生徒・同一日（学校のタイムゾーン基準）の記録は最大1件とし、
// この不変条件はattendance.Recorderが保証する。
type Attendance struct {
	ID          string
	Enrollment  string
	StudentName string
	Grade       string
	Group       string
	RecordedAt  time.Time
	Status      AttendanceStatus
	Category    AttendanceCategory
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AttendanceStatus は出欠ステータスを表す。
type AttendanceStatus string

const (
	// StatusPresent は出席。
	StatusPresent AttendanceStatus = "present"
	// StatusAbsent は欠席。
	StatusAbsent AttendanceStatus = "absent"
	// StatusJustified は届出済みの欠席。
	StatusJustified AttendanceStatus = "justified"
)

// ParseAttendanceStatus は文字列を出欠ステータスに変換する。
// 既存の管理画面が送信する1文字コード（A/F/J）も受け付ける。
func ParseAttendanceStatus(s string) (AttendanceStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present", "a":
		return StatusPresent, true
	case "absent", "f":
		return StatusAbsent, true
	case "justified", "j":
		return StatusJustified, true
	default:
		return "", false
	}
}

// AttendanceCategory は読み取り時刻による出席区分を表す。
type AttendanceCategory string

const (
	// CategoryOnTime は時間内の出席。
	CategoryOnTime AttendanceCategory = "on_time"
	// CategoryLate は遅刻。
	CategoryLate AttendanceCategory = "late"
	// CategoryOutOfWindow は受付時間帯の外（動作確認用の読み取りを含む）。
	CategoryOutOfWindow AttendanceCategory = "out_of_window"
	// CategoryManual は管理者による手動登録。
	CategoryManual AttendanceCategory = "manual"
)
