package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/spec-kit/qr-ticket-service/internal/auth"
	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// AuthService authenticates door staff against the configured account.
type AuthService struct {
	username     string
	passwordHash string
	tokenMgr     *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		username:     cfg.StaffUsername,
		passwordHash: cfg.StaffPasswordHash,
		tokenMgr:     auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// LoginStaff checks the credentials and returns a role-bearing token.
// Login is disabled while no password hash is configured.
func (s *AuthService) LoginStaff(_ context.Context, username, password string) (string, time.Time, error) {
	if s.passwordHash == "" {
		return "", time.Time{}, apperrors.NewUnauthorized("staff login is disabled")
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK, err := auth.VerifyPassword(s.passwordHash, password)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	if !userOK || !passOK {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(username, domain.StaffRoleAdmin)
	if err != nil {
		return "", time.Time{}, apperrors.NewInternalError(err)
	}
	return token, exp, nil
}

// IssueToken mints a token for a named door account without a password
// check. It backs the administrative CLI.
func (s *AuthService) IssueToken(username string, role domain.StaffRole) (string, time.Time, error) {
	return s.tokenMgr.GenerateToken(username, role)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
