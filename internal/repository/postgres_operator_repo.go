package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/schoolgate/internal/model"
)

// PostgresOperatorRepo はPostgreSQLを使用した職員アカウントリポジトリ。
type PostgresOperatorRepo struct {
	db *sql.DB
}

// NewPostgresOperatorRepo はPostgresOperatorRepoを生成する。
func NewPostgresOperatorRepo(db *sql.DB) *PostgresOperatorRepo {
	return &PostgresOperatorRepo{db: db}
}

// FindByEmail はメールアドレスで職員を取得する。見つからない場合はnilを返す。
func (r *PostgresOperatorRepo) FindByEmail(ctx context.Context, email string) (*model.Operator, error) {
	op := &model.Operator{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM operators WHERE email = $1`,
		email,
	).Scan(&op.ID, &op.Name, &op.Email, &op.PasswordHash, &op.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find operator by email: %w", err)
	}

	return op, nil
}

// Create は職員アカウントを作成する。
func (r *PostgresOperatorRepo) Create(ctx context.Context, operator *model.Operator) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operators (id, name, email, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		operator.ID, operator.Name, operator.Email, operator.PasswordHash, operator.CreatedAt,
	)
	if err != nil {
		return translateUniqueViolation(fmt.Errorf("failed to insert operator: %w", err))
	}
	return nil
}

// compile-time interface check
var _ OperatorRepository = (*PostgresOperatorRepo)(nil)
