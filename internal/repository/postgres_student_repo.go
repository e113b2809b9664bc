package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/schoolgate/internal/model"
)

// PostgresStudentRepo はPostgreSQLを使用した生徒リポジトリ。
type PostgresStudentRepo struct {
	db *sql.DB
}

// NewPostgresStudentRepo はPostgresStudentRepoを生成する。
func NewPostgresStudentRepo(db *sql.DB) *PostgresStudentRepo {
	return &PostgresStudentRepo{db: db}
}

// FindByEnrollment は学籍番号で生徒を取得する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByEnrollment(ctx context.Context, enrollment string) (*model.Student, error) {
	s := &model.Student{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, enrollment, full_name, grade, group_name, level, created_at
		 FROM students WHERE enrollment = $1`,
		enrollment,
	).Scan(&s.ID, &s.Enrollment, &s.FullName, &s.Grade, &s.Group, &s.Level, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student by enrollment: %w", err)
	}

	return s, nil
}

// CreateWithGuardian は生徒と保護者を同一トランザクションで作成する。
func (r *PostgresStudentRepo) CreateWithGuardian(ctx context.Context, student *model.Student, guardian *model.Guardian) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO students (id, enrollment, full_name, grade, group_name, level, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		student.ID, student.Enrollment, student.FullName, student.Grade, student.Group, student.Level, student.CreatedAt,
	)
	if err != nil {
		return translateUniqueViolation(fmt.Errorf("failed to insert student: %w", err))
	}

	if guardian != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO guardians (id, code, student_enrollment, channel_id, name, address, phone, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			guardian.ID, guardian.Code, guardian.StudentEnrollment, guardian.ChannelID,
			guardian.Name, guardian.Address, guardian.Phone, guardian.CreatedAt,
		)
		if err != nil {
			return translateUniqueViolation(fmt.Errorf("failed to insert guardian: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ StudentRepository = (*PostgresStudentRepo)(nil)

// PostgresGuardianRepo はPostgreSQLを使用した保護者リポジトリ。
type PostgresGuardianRepo struct {
	db *sql.DB
}

// NewPostgresGuardianRepo はPostgresGuardianRepoを生成する。
func NewPostgresGuardianRepo(db *sql.DB) *PostgresGuardianRepo {
	return &PostgresGuardianRepo{db: db}
}

// FindByCode は保護者コードで保護者を取得する。見つからない場合はnilを返す。
func (r *PostgresGuardianRepo) FindByCode(ctx context.Context, code string) (*model.Guardian, error) {
	g := &model.Guardian{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, student_enrollment, channel_id, name, address, phone, created_at
		 FROM guardians WHERE code = $1`,
		code,
	).Scan(&g.ID, &g.Code, &g.StudentEnrollment, &g.ChannelID, &g.Name, &g.Address, &g.Phone, &g.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find guardian by code: %w", err)
	}

	return g, nil
}

// compile-time interface check
var _ GuardianRepository = (*PostgresGuardianRepo)(nil)
