// Package auth は職員アカウントの登録・ログインとアクセストークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/schoolgate/internal/model"
	"github.com/hitoshi/schoolgate/internal/repository"
)

// passwordCost はパスワードハッシュのbcryptコスト。
const passwordCost = 10

// RegisterInput は職員登録リクエスト。
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginInput はログインリクエスト。
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Operator  *model.Operator
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	operators repository.OperatorRepository
	tokens    *TokenService
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(operators repository.OperatorRepository, tokens *TokenService, logger *slog.Logger) *Service {
	return &Service{
		operators: operators,
		tokens:    tokens,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Register は職員アカウントを作成する。
// メールアドレスは小文字に正規化して保存する。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.Operator, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return nil, model.NewInvalidInputError("campos incompletos o email inválido")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), passwordCost)
	if err != nil {
		return nil, model.NewInvalidInputError("contraseña inválida")
	}

	operator := &model.Operator{
		ID:           uuid.New().String(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.operators.Create(ctx, operator); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, model.NewStorageUnavailableError(err)
	}

	s.logger.Info("職員アカウントを作成しました",
		slog.String("operator_id", operator.ID),
	)
	return operator, nil
}

// Login はメールアドレスとパスワードを検証し、アクセストークンを発行する。
// 該当アカウントがない場合とパスワード不一致は区別せずINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return nil, model.NewInvalidInputError("campos incompletos o email inválido")
	}

	operator, err := s.operators.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, model.NewStorageUnavailableError(err)
	}
	if operator == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(input.Password)); err != nil {
		s.logger.Warn("ログインに失敗しました",
			slog.String("operator_id", operator.ID),
		)
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(operator)
	if err != nil {
		return nil, err
	}

	s.logger.Info("職員がログインしました",
		slog.String("operator_id", operator.ID),
	)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Operator: operator}, nil
}

// Authenticate はアクセストークンを検証し、職員IDを返す。
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.OperatorID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
