// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/schoolgate/internal/model"
)

// StudentRepository は生徒データの永続化インターフェース。
type StudentRepository interface {
	// FindByEnrollment は学籍番号で生徒を取得する。見つからない場合はnilを返す。
	FindByEnrollment(ctx context.Context, enrollment string) (*model.Student, error)

	// CreateWithGuardian は生徒と保護者を同一トランザクションで作成する。
	// guardianがnilの場合は生徒のみ作成する。
	// 学籍番号または保護者コードが重複する場合はDUPLICATE_KEYのAPIErrorを返す。
	CreateWithGuardian(ctx context.Context, student *model.Student, guardian *model.Guardian) error
}

// GuardianRepository は保護者データの永続化インターフェース。
type GuardianRepository interface {
	// FindByCode は保護者コードで保護者を取得する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.Guardian, error)
}

// AttendanceRepository は出席記録の永続化インターフェース。
// 同一生徒・同一日の一意性は、呼び出し側がWithEnrollmentLock内で確認してから書き込むことで保つ。
type AttendanceRepository interface {
	// FindByID は指定IDの出席記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Attendance, error)

	// FindByEnrollmentBetween は[from, to)の範囲に記録された出席記録を1件返す。
	// 複数ある場合は最新のものを返す。見つからない場合はnilを返す。
	FindByEnrollmentBetween(ctx context.Context, enrollment string, from, to time.Time) (*model.Attendance, error)

	// Create は出席記録を作成する。
	Create(ctx context.Context, record *model.Attendance) error

	// Update は出席記録のステータス、区分、記録時刻を更新する。
	Update(ctx context.Context, record *model.Attendance) error

	// List は全出席記録を記録時刻の新しい順に返す。
	List(ctx context.Context) ([]*model.Attendance, error)

	// WithEnrollmentLock は学籍番号単位の排他ロックを保持したトランザクション内でfnを実行する。
	// fnに渡されるリポジトリはそのトランザクション上で動作する。ロックはMarkAbsentとも共有する。
	WithEnrollmentLock(ctx context.Context, enrollment string, fn func(tx AttendanceRepository) error) error

	// MarkAbsent は[from, to)に記録がない全生徒について、recordedAtの欠席記録を作成し作成件数を返す。
	MarkAbsent(ctx context.Context, from, to, recordedAt time.Time) (int64, error)
}

// OperatorRepository は職員アカウントの永続化インターフェース。
type OperatorRepository interface {
	// FindByEmail はメールアドレスで職員を取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Operator, error)

	// Create は職員アカウントを作成する。
	// メールアドレスが重複する場合はDUPLICATE_KEYのAPIErrorを返す。
	Create(ctx context.Context, operator *model.Operator) error
}
