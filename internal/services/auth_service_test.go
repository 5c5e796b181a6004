package services

import (
	"context"
	"testing"
	"time"

	"hostelops/internal/models"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthLogin(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	manager := jwt.NewJWTManager("test-secret", time.Hour)
	svc := NewAuthService(db, manager)
	svc.SetClock(func() time.Time { return now })
	ctx := context.Background()

	h := seedHostel(t, db, "H1")
	admin := &models.User{Username: "warden", Name: "Warden", Role: models.RoleHostelAdmin, HostelID: &h.ID, IsActive: true}
	require.NoError(t, admin.SetPassword("correct-horse"))
	require.NoError(t, db.Create(admin).Error)

	res, err := svc.Login(ctx, "warden", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, now.Add(time.Hour).Unix(), res.ExpiresAt)

	claims, err := manager.VerifyToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, claims.UserID)
	assert.Equal(t, models.RoleHostelAdmin, claims.Role)

	var stored models.User
	require.NoError(t, db.First(&stored, admin.ID).Error)
	require.NotNil(t, stored.LastLoginAt)

	_, err = svc.Login(ctx, "warden", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
	_, err = svc.Login(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestAuthLoginRefusesLapsedVisitorAndDisabledUser(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	svc := NewAuthService(db, jwt.NewJWTManager("test-secret", time.Hour))
	svc.SetClock(func() time.Time { return now })
	ctx := context.Background()

	h := seedHostel(t, db, "H1")
	expired := now.Add(-time.Minute)
	visitor := &models.User{Username: "guest", Name: "Guest", Role: models.RoleVisitor, HostelID: &h.ID, IsActive: true, VisitorExpiresAt: &expired}
	require.NoError(t, visitor.SetPassword("visitor-pass"))
	require.NoError(t, db.Create(visitor).Error)

	_, err := svc.Login(ctx, "guest", "visitor-pass")
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindDenied, apperrors.ReasonExpired))

	off := &models.User{Username: "off", Name: "Off", Role: models.RoleTenant, HostelID: &h.ID, IsActive: true}
	require.NoError(t, off.SetPassword("tenant-pass"))
	require.NoError(t, db.Create(off).Error)
	require.NoError(t, db.Model(off).Update("is_active", false).Error)

	_, err = svc.Login(ctx, "off", "tenant-pass")
	assert.ErrorIs(t, err, apperrors.ErrDenied)
}

func TestAuthChangePassword(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, jwt.NewJWTManager("test-secret", time.Hour))
	ctx := context.Background()

	h := seedHostel(t, db, "H1")
	user := &models.User{Username: "warden", Name: "Warden", Role: models.RoleHostelAdmin, HostelID: &h.ID, IsActive: true}
	require.NoError(t, user.SetPassword("first-pass"))
	require.NoError(t, db.Create(user).Error)
	id := hostelAdmin(h.ID)
	id.UserID = user.ID

	err := svc.ChangePassword(ctx, id, ChangePasswordInput{OldPassword: "nope", NewPassword: "second-pass"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	err = svc.ChangePassword(ctx, id, ChangePasswordInput{OldPassword: "first-pass", NewPassword: "short"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	require.NoError(t, svc.ChangePassword(ctx, id, ChangePasswordInput{OldPassword: "first-pass", NewPassword: "second-pass"}))
	_, err = svc.Login(ctx, "warden", "second-pass")
	assert.NoError(t, err)
}
