// Package attendance は出席の区分判定と、生徒ごと1日1件の出席記録を提供する。
package attendance

import (
	"time"

	"github.com/hitoshi/schoolgate/internal/model"
)

// 受付時間帯の境界（0時からの経過分）
const (
	windowOpen    = 6 * 60    // 06:00
	onTimeUntil   = 7*60 + 30 // 07:30
	lateUntil     = 7*60 + 40 // 07:40
	windowReopens = 8 * 60    // 08:00
)

// Classify は0時からの経過分を出席区分に変換する。
//
//	[06:00, 07:30]                  on_time
//	(07:30, 07:40]                  late
//	[08:00, 24:00) と [00:00, 06:00) out_of_window
//	(07:40, 08:00)                  受付終了（falseを返す）
func Classify(minutes int) (model.AttendanceCategory, bool) {
	switch {
	case minutes >= windowOpen && minutes <= onTimeUntil:
		return model.CategoryOnTime, true
	case minutes > onTimeUntil && minutes <= lateUntil:
		return model.CategoryLate, true
	case minutes >= windowReopens || minutes < windowOpen:
		return model.CategoryOutOfWindow, true
	default:
		return "", false
	}
}

// MinuteOfDay はtをlocの現地時刻に変換し、0時からの経過分を返す。
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}

// DayBounds はtを含むlocの暦日の範囲[start, end)を返す。
// 夏時間の切り替え日も暦日の0時同士で区切る。
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}
