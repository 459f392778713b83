package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const minPasswordLength = 8

// AuthService coordinates operator accounts and login.
type AuthService struct {
	operators  repository.OperatorRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, operators repository.OperatorRepository, logger *zap.Logger) *AuthService {
	return &AuthService{
		operators:  operators,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     loggerOrNop(logger),
		now:        clockOrDefault(nil),
	}
}

// NewOperatorInput describes an operator account to create.
type NewOperatorInput struct {
	Email       string
	DisplayName string
	Password    string
	Role        domain.OperatorRole
}

// CreateOperator registers a new operator.
func (s *AuthService) CreateOperator(ctx context.Context, in NewOperatorInput) (*domain.Operator, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !validEmail(email) {
		return nil, apperrors.NewValidationError("email is not a valid address", map[string]any{"email": in.Email})
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperrors.NewValidationError("password must be at least 8 characters", nil)
	}
	role := domain.OperatorRole(strings.ToUpper(strings.TrimSpace(string(in.Role))))
	if role == "" {
		role = domain.OperatorRoleAgent
	}
	if role != domain.OperatorRoleAdmin && role != domain.OperatorRoleAgent {
		return nil, apperrors.NewValidationError("role must be ADMIN or AGENT", map[string]any{"role": in.Role})
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = email
	}
	now := s.now()
	op := &domain.Operator{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  name,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.operators.Create(ctx, op); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("operator created", zap.String("operator_id", op.ID), zap.String("role", string(op.Role)))
	return op, nil
}

// Login authenticates an operator and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Operator, string, time.Time, error) {
	op, err := s.operators.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !op.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("operator inactive")
	}
	if err := auth.ComparePassword(op.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(op)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return op, token, exp, nil
}

// EnsureBootstrapAdmin creates an ADMIN with email when no operator uses it yet.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, nil
	}
	_, err := s.operators.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if _, err := s.CreateOperator(ctx, NewOperatorInput{
		Email:       email,
		DisplayName: "Administrator",
		Password:    password,
		Role:        domain.OperatorRoleAdmin,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
