package services

import (
	"context"
	"errors"
	"time"

	"hostelops/internal/identity"
	"hostelops/internal/models"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/jwt"
	"hostelops/pkg/logger"

	"gorm.io/gorm"
)

// AuthService handles password login and the caller's own account
type AuthService struct {
	clock
	db         *gorm.DB
	jwtManager *jwt.JWTManager
}

func NewAuthService(db *gorm.DB, jwtManager *jwt.JWTManager) *AuthService {
	return &AuthService{db: db, jwtManager: jwtManager}
}

// LoginResult is returned on successful login
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
	User      *models.User `json:"user"`
}

func badCredentials() error {
	return apperrors.Invalidf("invalid username or password")
}

// Login checks the password and issues a token. Disabled accounts and
// lapsed visitors are refused even with the right password.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, badCredentials()
		}
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, badCredentials()
	}
	if !user.IsActive {
		return nil, apperrors.Deniedf(apperrors.ReasonRoleNotPermitted, "account is disabled")
	}
	now := s.now()
	if user.IsVisitorExpired(now) {
		return nil, apperrors.Deniedf(apperrors.ReasonExpired, "visitor access has expired")
	}

	token, err := s.jwtManager.GenerateToken(user.ID, user.Role, user.HostelID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		logger.GetLogger().Warnf("update last login for user %d: %v", user.ID, err)
	}
	user.LastLoginAt = &now

	return &LoginResult{
		Token:     token,
		ExpiresAt: now.Add(s.jwtManager.GetTokenDuration()).Unix(),
		User:      &user,
	}, nil
}

// Me reloads the caller's account
func (s *AuthService) Me(ctx context.Context, id *identity.Identity) (*models.User, error) {
	if id == nil {
		return nil, apperrors.Deniedf(apperrors.ReasonRoleNotPermitted, "missing identity")
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id.UserID).Error; err != nil {
		return nil, notFound(err, "user %d not found", id.UserID)
	}
	return &user, nil
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// ChangePassword replaces the caller's password after checking the old one
func (s *AuthService) ChangePassword(ctx context.Context, id *identity.Identity, in ChangePasswordInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	user, err := s.Me(ctx, id)
	if err != nil {
		return err
	}
	if !user.CheckPassword(in.OldPassword) {
		return apperrors.Invalidf("old password does not match")
	}
	if err := user.SetPassword(in.NewPassword); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"password_hash": user.PasswordHash,
		"updated_at":    time.Now(),
	}).Error
}
