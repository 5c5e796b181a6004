package services

import (
	"context"
	"testing"
	"time"

	"hostelops/internal/models"
	"hostelops/internal/scope"
	"hostelops/pkg/config"
	apperrors "hostelops/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateHostelFields(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"latin", "Green Leaf", true},
		{"devanagari counts runes", "अतिथि", true},
		{"too short", "A", false},
		{"blank", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateName(tt.input))
		})
	}

	assert.True(t, ValidateCode("BLR01"))
	assert.False(t, ValidateCode("BLR-01"))
	assert.False(t, ValidateCode("X"))
}

func TestCreateHostel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	h, err := env.hostels.Create(ctx, superAdmin(), CreateHostelInput{Name: "Green Leaf", Code: "gl01"})
	require.NoError(t, err)
	assert.Equal(t, "GL01", h.Code)
	assert.Equal(t, "Asia/Kolkata", h.Timezone)

	_, err = env.hostels.Create(ctx, superAdmin(), CreateHostelInput{Name: "Copy", Code: "GL01"})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonDuplicate))

	_, err = env.hostels.Create(ctx, hostelAdmin(h.ID), CreateHostelInput{Name: "Mine", Code: "MINE"})
	assert.ErrorIs(t, err, apperrors.ErrDenied)

	_, err = env.hostels.Create(ctx, superAdmin(), CreateHostelInput{Name: "Bad", Code: "B@D"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestGetOtherHostelIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h1 := seedHostel(t, env.db, "H1")
	h2 := seedHostel(t, env.db, "H2")

	_, err := env.hostels.Get(ctx, hostelAdmin(h1.ID), h2.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := env.hostels.Get(ctx, hostelAdmin(h1.ID), h1.ID)
	require.NoError(t, err)
	assert.Equal(t, h1.ID, got.ID)
}

func TestHostelStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedHostel(t, env.db, "H1")
	h2 := seedHostel(t, env.db, "H2")
	h3 := seedHostel(t, env.db, "H3")

	_, err := env.hostels.SetActive(ctx, superAdmin(), h2.ID, false)
	require.NoError(t, err)
	require.NoError(t, env.lifecycle.SoftDelete(ctx, superAdmin(), EntityRef{Entity: scope.EntityHostel, ID: h3.ID}))

	stats, err := env.hostels.GetStats(ctx, superAdmin())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(1), stats.Inactive)
	assert.Equal(t, int64(1), stats.Deleted)

	_, err = env.hostels.GetStats(ctx, hostelAdmin(h2.ID))
	assert.ErrorIs(t, err, apperrors.ErrDenied)
}

func TestSweepSchedulerRunAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	tenant := seedTenant(t, env.db, h.ID, "alice")

	_, err := env.billing.CreateInvoice(ctx, hostelAdmin(h.ID), CreateInvoiceInput{
		TenantID: tenant.ID,
		Amount:   1000,
		DueDate:  env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = env.tenants.CreateVisitor(ctx, hostelAdmin(h.ID), CreateVisitorInput{
		Username: "guest1", Password: "password123", Name: "Guest", DurationDays: 1,
	})
	require.NoError(t, err)

	env.now = env.now.Add(48 * time.Hour)

	scheduler := NewSweepScheduler(config.SchedulerConfig{}, env.billing, env.limiter, env.tenants)
	results, err := scheduler.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[SweepInvoiceOverdue])
	assert.Equal(t, int64(0), results[SweepSubscriptionExpiry])
	assert.Equal(t, int64(1), results[SweepVisitorExpiry])

	var visitor models.User
	require.NoError(t, env.db.Where("username = ?", "guest1").First(&visitor).Error)
	assert.False(t, visitor.IsActive)

	// empty specs register nothing
	require.NoError(t, scheduler.Start())
	assert.Empty(t, scheduler.NextRuns())
	scheduler.Stop()
}

func TestSweepSchedulerRejectsBadSpec(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewSweepScheduler(config.SchedulerConfig{OverdueSpec: "not a cron"}, env.billing, env.limiter, env.tenants)
	assert.Error(t, scheduler.Start())
}
