package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/zeus-orchestrator/internal/domain"
	"github.com/xela07ax/zeus-orchestrator/internal/infra/auth"
)

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type AuthService struct {
	repo   AuthProvider
	issuer *auth.BaseValidator
}

func NewAuthService(repo AuthProvider, issuer *auth.BaseValidator) *AuthService {
	return &AuthService{
		repo:   repo,
		issuer: issuer,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — Postgres)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (используем bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Роль из БД попадает в claims и дальше сверяется с RBAC-картой guardrail'ов
	token, expiresIn, err := s.issuer.IssueToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}, nil
}
