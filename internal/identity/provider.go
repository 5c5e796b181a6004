package identity

import (
	"context"
	"errors"

	"hostelops/internal/models"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/jwt"

	"gorm.io/gorm"
)

// Provider authenticates an opaque token.
type Provider interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// JWTProvider verifies bearer tokens and reloads the user so that
// deactivated accounts are rejected even with an unexpired token.
type JWTProvider struct {
	db         *gorm.DB
	jwtManager *jwt.JWTManager
}

func NewJWTProvider(db *gorm.DB, jwtManager *jwt.JWTManager) *JWTProvider {
	return &JWTProvider{db: db, jwtManager: jwtManager}
}

func (p *JWTProvider) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := p.jwtManager.VerifyToken(token)
	if err != nil {
		return nil, apperrors.Invalidf("token invalid or expired").WithCause(err)
	}

	var user models.User
	if err := p.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Invalidf("user %d does not exist", claims.UserID)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.Invalidf("user %d is disabled", user.ID)
	}

	id, err := FromUser(&user)
	if err != nil {
		return nil, apperrors.Invalidf("malformed principal: %v", err)
	}
	return id, nil
}
