package identity

import (
	"context"
	"testing"
	"time"

	"hostelops/internal/models"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func uintPtr(v uint) *uint { return &v }

func TestNewValidatesRoleHostelPairing(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	_, err := New(1, SuperAdmin, nil, nil)
	assert.NoError(t, err)

	_, err = New(1, SuperAdmin, uintPtr(1), nil)
	assert.Error(t, err)

	_, err = New(2, HostelAdmin, nil, nil)
	assert.Error(t, err)

	_, err = New(3, Visitor, uintPtr(1), nil)
	assert.Error(t, err)

	id, err := New(3, Visitor, uintPtr(1), &expiry)
	require.NoError(t, err)
	assert.Equal(t, uint(1), id.HomeHostel())

	_, err = New(4, Role("JANITOR"), uintPtr(1), nil)
	assert.Error(t, err)
}

func TestJWTProviderAuthenticate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	hostelID := uint(7)
	active := &models.User{Username: "admin7", Name: "Admin", Role: models.RoleHostelAdmin, HostelID: &hostelID, IsActive: true}
	require.NoError(t, active.SetPassword("secret-pass"))
	require.NoError(t, db.Create(active).Error)

	disabled := &models.User{Username: "gone", Name: "Gone", Role: models.RoleTenant, HostelID: &hostelID, IsActive: true}
	require.NoError(t, disabled.SetPassword("secret-pass"))
	require.NoError(t, db.Create(disabled).Error)
	require.NoError(t, db.Model(disabled).Update("is_active", false).Error)

	manager := jwt.NewJWTManager("test-secret", time.Hour)
	provider := NewJWTProvider(db, manager)

	token, err := manager.GenerateToken(active.ID, active.Role, active.HostelID)
	require.NoError(t, err)

	id, err := provider.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, HostelAdmin, id.Role)
	assert.Equal(t, uint(7), id.HomeHostel())

	token, err = manager.GenerateToken(disabled.ID, disabled.Role, disabled.HostelID)
	require.NoError(t, err)
	_, err = provider.Authenticate(context.Background(), token)
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))

	_, err = provider.Authenticate(context.Background(), "not-a-token")
	assert.Equal(t, apperrors.KindInvalid, apperrors.KindOf(err))
}
