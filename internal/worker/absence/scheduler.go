package absence

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner は欠席登録の実行インターフェース。Jobが実装する。
type Runner interface {
	Run(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler は毎日決まった時刻（学校のタイムゾーン基準）にジョブを実行する。
type Scheduler struct {
	job    Runner
	hour   int
	minute int
	loc    *time.Location
	logger *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler はSchedulerを生成する。atは「HH:MM」形式。
func NewScheduler(job Runner, at string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	hour, minute, err := ParseClock(at)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		job:    job,
		hour:   hour,
		minute: minute,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Start はコンテキストがキャンセルされるまで日次実行を続ける。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("欠席登録スケジューラを開始しました",
		slog.String("at", fmt.Sprintf("%02d:%02d", s.hour, s.minute)),
		slog.String("timezone", s.loc.String()),
	)

	for {
		next := NextRun(s.now(), s.hour, s.minute, s.loc)
		select {
		case <-ctx.Done():
			s.logger.Info("欠席登録スケジューラを停止しました")
			return
		case <-s.after(time.Until(next)):
			if _, err := s.job.Run(ctx, next); err != nil {
				s.logger.Error("欠席登録に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// NextRun はnowより後で最初に訪れるhour:minuteの時刻を返す。
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// ParseClock は「HH:MM」形式の時刻を解析する。
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q (want HH:MM): %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
