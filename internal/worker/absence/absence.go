// Package absence は未記録の生徒を欠席として登録する日次ジョブを提供する。
// 当日（学校のタイムゾーン基準）の出席記録がない生徒ごとに、
// status=absent、category=manualの記録を1件作成する。土日は実行しない。
package absence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/schoolgate/internal/attendance"
)

// Marker は欠席記録を一括作成するインターフェース。
// repository.PostgresAttendanceRepo が実装し、出席読み取りと同じ学籍番号ロックの下で挿入する。
type Marker interface {
	MarkAbsent(ctx context.Context, from, to, recordedAt time.Time) (int64, error)
}

// Metrics は欠席登録のメトリクス記録インターフェース。
type Metrics interface {
	RecordAbsencesMarked(count int64)
}

// Job は欠席登録ジョブ。
type Job struct {
	store   Marker
	logger  *slog.Logger
	loc     *time.Location
	metrics Metrics
}

// NewJob は新しいJobを生成する。metricsはnilでもよい。
func NewJob(store Marker, loc *time.Location, logger *slog.Logger, metrics Metrics) *Job {
	if loc == nil {
		loc = time.UTC
	}
	return &Job{
		store:   store,
		logger:  logger,
		loc:     loc,
		metrics: metrics,
	}
}

// Run はnowが属する日の欠席を登録し、作成した件数を返す。
// 土日の場合は何もせず0を返す。
func (j *Job) Run(ctx context.Context, now time.Time) (int64, error) {
	local := now.In(j.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		j.logger.Info("週末のため欠席登録をスキップしました",
			slog.String("date", local.Format(time.DateOnly)),
		)
		return 0, nil
	}

	start := time.Now()
	from, to := attendance.DayBounds(now, j.loc)

	marked, err := j.store.MarkAbsent(ctx, from, to, now)
	if err != nil {
		j.logger.Error("欠席登録ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.String("date", local.Format(time.DateOnly)),
		)
		return 0, fmt.Errorf("欠席登録の実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordAbsencesMarked(marked)
	}
	j.logger.Info("欠席登録ジョブが完了しました",
		slog.Int64("marked_count", marked),
		slog.String("date", local.Format(time.DateOnly)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return marked, nil
}
