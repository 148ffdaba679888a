package service

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mesapos/mesa-backend/internal/auth/jwt"
	"github.com/mesapos/mesa-backend/internal/auth/repository"
	"github.com/mesapos/mesa-backend/pkg/authz"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
)

// AuthService handles authentication logic.
type AuthService struct {
	repo       *repository.Repository
	jwtManager *jwt.Manager
	logger     *logger.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(repo *repository.Repository, jwtManager *jwt.Manager, log *logger.Logger) *AuthService {
	return &AuthService{
		repo:       repo,
		jwtManager: jwtManager,
		logger:     log.WithComponent("auth"),
	}
}

// LoginRequest represents a login request. TenantID is omitted for
// super-admin logins.
type LoginRequest struct {
	TenantID string `json:"tenant_id" validate:"omitempty,uuid"`
	Username string `json:"username" validate:"required,min=2"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse represents a login response.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
	User         *UserInfo `json:"user"`
}

// UserInfo represents the authenticated user.
type UserInfo struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Permissions []string `json:"permissions"`
}

// Login authenticates a user and returns a token pair.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var (
		user *repository.User
		err  error
	)
	if req.TenantID == "" {
		user, err = s.repo.FindSuperAdminByUsername(ctx, req.Username)
	} else {
		user, err = s.repo.FindByUsername(ctx, req.TenantID, req.Username)
	}
	if err != nil {
		// Same failure for unknown user and bad password.
		return nil, errors.Unauthenticated("invalid credentials")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, errors.Unauthenticated("invalid credentials")
	}

	if user.Status != authz.StatusActive {
		return nil, errors.Forbidden("account is inactive")
	}

	if user.TenantID != nil {
		status, err := s.repo.GetTenantStatus(ctx, *user.TenantID)
		if err != nil {
			return nil, err
		}
		if status != "ACTIVE" {
			return nil, errors.Forbidden("tenant is not active")
		}
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	s.logger.Info().
		Str("user_id", user.ID).
		Str("tenant_id", tenantID).
		Msg("user logged in")

	return &LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
		TokenType:    tokens.TokenType,
		User: &UserInfo{
			ID:          user.ID,
			Username:    user.Username,
			Role:        user.Role,
			TenantID:    tenantID,
			Permissions: permissionStrings(user.Role),
		},
	}, nil
}

// Refresh rotates a refresh token and returns a fresh token pair. The
// presented token is revoked so it cannot be replayed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	if _, err := s.jwtManager.ValidateRefreshToken(refreshToken); err != nil {
		return nil, err
	}

	stored, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if stored.Revoked {
		// Replay of a rotated token: revoke the whole family.
		s.logger.Warn().Str("user_id", stored.UserID).Msg("revoked refresh token replayed")
		if err := s.repo.RevokeAllForUser(ctx, stored.UserID); err != nil {
			s.logger.Error().Err(err).Msg("failed to revoke token family")
		}
		return nil, errors.Unauthenticated("refresh token revoked")
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, errors.Unauthenticated("refresh token expired")
	}

	user, err := s.repo.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, errors.Unauthenticated("unknown user")
	}
	if user.Status != authz.StatusActive {
		return nil, errors.Forbidden("account is inactive")
	}

	if err := s.repo.RevokeRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

// Logout revokes the presented refresh token. Unknown tokens are not an
// error; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repo.RevokeRefreshToken(ctx, refreshToken); err != nil {
		s.logger.Warn().Err(err).Msg("failed to revoke refresh token")
	}
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *repository.User) (*jwt.TokenPair, error) {
	tenantID := ""
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}

	tokens, err := s.jwtManager.GenerateTokenPair(&jwt.UserInfo{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		TenantID: tenantID,
	})
	if err != nil {
		return nil, errors.Internal("failed to generate tokens")
	}

	expiresAt := time.Now().Add(s.jwtManager.GetRefreshExpiry())
	if err := s.repo.StoreRefreshToken(ctx, user.ID, tokens.RefreshToken, expiresAt); err != nil {
		s.logger.Error().Err(err).Msg("failed to store refresh token")
		return nil, errors.Internal("failed to create session")
	}
	return tokens, nil
}

func permissionStrings(role string) []string {
	perms := authz.PermissionsForRole(role)
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
