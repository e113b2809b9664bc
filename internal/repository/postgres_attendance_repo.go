package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/schoolgate/internal/model"
)

const attendanceColumns = `id, enrollment, student_name, grade, group_name, recorded_at, status, category, created_at, updated_at`

// lockEnrollmentQuery は学籍番号単位のトランザクションスコープのアドバイザリロックを取得する。
// 第1キーは出席記録用の名前空間。
const lockEnrollmentQuery = `SELECT pg_advisory_xact_lock(7001, hashtext($1))`

// lockAllStudentsQuery は全生徒のロックを学籍番号順に取得する。
const lockAllStudentsQuery = `SELECT pg_advisory_xact_lock(7001, hashtext(s.enrollment))
FROM (SELECT enrollment FROM students ORDER BY enrollment) s`

// markAbsentQuery は[$1, $2)に記録がない生徒の欠席記録を作成する。
const markAbsentQuery = `INSERT INTO attendance
	(id, enrollment, student_name, grade, group_name, recorded_at, status, category, created_at, updated_at)
SELECT gen_random_uuid(), s.enrollment, s.full_name, s.grade, s.group_name, $3, 'absent', 'manual', now(), now()
FROM students s
WHERE NOT EXISTS (
	SELECT 1 FROM attendance a
	WHERE a.enrollment = s.enrollment AND a.recorded_at >= $1 AND a.recorded_at < $2
)`

// queryer は *sql.DB と *sql.Tx に共通するクエリ操作。
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresAttendanceRepo はPostgreSQLを使用した出席記録リポジトリ。
// トランザクション内で生成されたものはdbがnilになる。
type PostgresAttendanceRepo struct {
	db *sql.DB
	q  queryer
}

// NewPostgresAttendanceRepo はPostgresAttendanceRepoを生成する。
func NewPostgresAttendanceRepo(db *sql.DB) *PostgresAttendanceRepo {
	return &PostgresAttendanceRepo{db: db, q: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (*model.Attendance, error) {
	a := &model.Attendance{}
	var status, category string
	err := row.Scan(&a.ID, &a.Enrollment, &a.StudentName, &a.Grade, &a.Group,
		&a.RecordedAt, &status, &category, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = model.AttendanceStatus(status)
	a.Category = model.AttendanceCategory(category)
	return a, nil
}

// FindByID は指定IDの出席記録を取得する。見つからない場合はnilを返す。
func (r *PostgresAttendanceRepo) FindByID(ctx context.Context, id string) (*model.Attendance, error) {
	a, err := scanAttendance(r.q.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance by ID: %w", err)
	}
	return a, nil
}

// FindByEnrollmentBetween は[from, to)の範囲で最新の出席記録を返す。見つからない場合はnilを返す。
func (r *PostgresAttendanceRepo) FindByEnrollmentBetween(ctx context.Context, enrollment string, from, to time.Time) (*model.Attendance, error) {
	a, err := scanAttendance(r.q.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE enrollment = $1 AND recorded_at >= $2 AND recorded_at < $3
		 ORDER BY recorded_at DESC
		 LIMIT 1`,
		enrollment, from, to,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance by enrollment and day: %w", err)
	}
	return a, nil
}

// Create は出席記録を作成する。
func (r *PostgresAttendanceRepo) Create(ctx context.Context, record *model.Attendance) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO attendance (`+attendanceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.Enrollment, record.StudentName, record.Grade, record.Group,
		record.RecordedAt, string(record.Status), string(record.Category), record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	return nil
}

// Update は出席記録のステータス、区分、記録時刻を更新する。
func (r *PostgresAttendanceRepo) Update(ctx context.Context, record *model.Attendance) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE attendance
		 SET recorded_at = $2, status = $3, category = $4, updated_at = $5
		 WHERE id = $1`,
		record.ID, record.RecordedAt, string(record.Status), string(record.Category), record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewAttendanceNotFoundError(record.ID)
	}
	return nil
}

// List は全出席記録を記録時刻の新しい順に返す。
func (r *PostgresAttendanceRepo) List(ctx context.Context) ([]*model.Attendance, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance ORDER BY recorded_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	var records []*model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance: %w", err)
	}
	return records, nil
}

// WithEnrollmentLock は学籍番号のアドバイザリロックを保持したトランザクション内でfnを実行する。
// fnがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
func (r *PostgresAttendanceRepo) WithEnrollmentLock(ctx context.Context, enrollment string, fn func(tx AttendanceRepository) error) error {
	if r.db == nil {
		return fmt.Errorf("nested attendance transaction is not supported")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, lockEnrollmentQuery, enrollment); err != nil {
		return fmt.Errorf("failed to lock enrollment: %w", err)
	}

	if err := fn(&PostgresAttendanceRepo{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkAbsent は[from, to)に記録がない全生徒の欠席記録を作成し、作成件数を返す。
// 全生徒のロックを取得してから挿入するため、同時に処理中の読み取りとは重複しない。
func (r *PostgresAttendanceRepo) MarkAbsent(ctx context.Context, from, to, recordedAt time.Time) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("nested attendance transaction is not supported")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, lockAllStudentsQuery); err != nil {
		return 0, fmt.Errorf("failed to lock students: %w", err)
	}

	// READ COMMITTEDでは文ごとにスナップショットを取り直すため、ロック取得前に確定した記録も見える
	result, err := tx.ExecContext(ctx, markAbsentQuery, from, to, recordedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert absences: %w", err)
	}
	marked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return marked, nil
}

// compile-time interface check
var _ AttendanceRepository = (*PostgresAttendanceRepo)(nil)
