package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hostelops/internal/models"
	apperrors "hostelops/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tenantInput(n int) CreateTenantInput {
	return CreateTenantInput{
		Username: fmt.Sprintf("tenant%d", n),
		Password: "password123",
		FullName: fmt.Sprintf("Tenant %d", n),
	}
}

func TestTenantLimitThenRenewWithUnlimitedPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	sub := activatePlan(t, env, h.ID, models.PlanTierStandard, intPtr(10), intPtr(10), nil)
	admin := hostelAdmin(h.ID)

	for i := 1; i <= 10; i++ {
		_, err := env.tenants.Create(ctx, admin, tenantInput(i))
		require.NoError(t, err, "tenant %d", i)
	}

	_, err := env.tenants.Create(ctx, admin, tenantInput(11))
	var limitErr *apperrors.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, LimitMaxTenants, limitErr.LimitName)
	assert.Equal(t, int64(10), limitErr.Current)
	assert.Equal(t, int64(10), limitErr.Max)

	// editing the plan alone does not reach the live subscription
	_, err = env.limiter.UpdatePlan(ctx, superAdmin(), sub.PlanID, PlanInput{
		Name:       "Plan STANDARD",
		Tier:       models.PlanTierStandard,
		MaxTenants: nil,
		MaxRooms:   intPtr(10),
	})
	require.NoError(t, err)
	_, err = env.tenants.Create(ctx, admin, tenantInput(11))
	require.ErrorAs(t, err, &limitErr)

	renewed, err := env.limiter.Renew(ctx, superAdmin(), sub.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, renewed.MaxTenants)

	_, err = env.tenants.Create(ctx, admin, tenantInput(11))
	require.NoError(t, err)

	var count int64
	env.db.Model(&models.TenantProfile{}).Where("hostel_id = ?", h.ID).Count(&count)
	assert.Equal(t, int64(11), count)
}

func TestFreeTierAppliesWithoutSubscription(t *testing.T) {
	env := newTestEnv(t)
	h := seedHostel(t, env.db, "H1")

	limits, err := env.limiter.Limits(env.db, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "free_tier", limits.Source)
	require.NotNil(t, limits.MaxTenants)
	assert.Equal(t, 10, *limits.MaxTenants)
	assert.False(t, limits.FeatureEnabled(models.FeaturePayments))

	err = env.limiter.CheckLimit(env.db, h.ID, FeatureResource(models.FeaturePayments), 1)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindDenied, apperrors.ReasonFeatureDisabled))

	err = env.limiter.CheckLimit(env.db, h.ID, "bananas", 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestActivateReplacesCurrentSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")

	first := activatePlan(t, env, h.ID, models.PlanTierStandard, intPtr(20), intPtr(10), nil)
	second := activatePlan(t, env, h.ID, models.PlanTierPremium, nil, nil, map[string]bool{models.FeaturePayments: true})

	var stored models.Subscription
	require.NoError(t, env.db.First(&stored, first.ID).Error)
	assert.Equal(t, models.SubscriptionStatusCancelled, stored.Status)

	active, err := env.limiter.GetActive(ctx, hostelAdmin(h.ID), nil)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	require.NotNil(t, active.Plan)
	assert.Equal(t, models.PlanTierPremium, active.Plan.Tier)

	limits, err := env.limiter.Limits(env.db, h.ID)
	require.NoError(t, err)
	assert.Nil(t, limits.MaxTenants)
	assert.True(t, limits.FeatureEnabled(models.FeaturePayments))
}

func TestHostelAdminCannotManageSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	plan, err := env.limiter.CreatePlan(ctx, superAdmin(), PlanInput{Name: "Std", Tier: models.PlanTierStandard})
	require.NoError(t, err)

	_, err = env.limiter.ActivateSubscription(ctx, hostelAdmin(h.ID), ActivateInput{HostelID: h.ID, PlanID: plan.ID})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindDenied, apperrors.ReasonRoleNotPermitted))

	_, err = env.limiter.CreatePlan(ctx, hostelAdmin(h.ID), PlanInput{Name: "Mine", Tier: models.PlanTierPremium})
	assert.ErrorIs(t, err, apperrors.ErrDenied)
}

func TestInactivePlanCannotBeActivated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	inactive := false
	plan, err := env.limiter.CreatePlan(ctx, superAdmin(), PlanInput{Name: "Old", Tier: models.PlanTierStandard, IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, plan.IsActive)

	_, err = env.limiter.ActivateSubscription(ctx, superAdmin(), ActivateInput{HostelID: h.ID, PlanID: plan.ID})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonInvalidTransition))
}

func TestExpireDueFallsBackToFreeTier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	plan, err := env.limiter.CreatePlan(ctx, superAdmin(), PlanInput{Name: "Std", Tier: models.PlanTierStandard, MaxTenants: intPtr(100)})
	require.NoError(t, err)
	end := env.now.Add(24 * time.Hour)
	sub, err := env.limiter.ActivateSubscription(ctx, superAdmin(), ActivateInput{HostelID: h.ID, PlanID: plan.ID, EndDate: &end})
	require.NoError(t, err)

	env.now = env.now.Add(48 * time.Hour)

	// a lapsed subscription stops counting before the sweep runs
	limits, err := env.limiter.Limits(env.db, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "free_tier", limits.Source)

	expired, err := env.limiter.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	_, err = env.limiter.Renew(ctx, superAdmin(), sub.ID, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	newEnd := env.now.Add(30 * 24 * time.Hour)
	renewed, err := env.limiter.Renew(ctx, superAdmin(), sub.ID, &newEnd)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, renewed.Status)

	limits, err = env.limiter.Limits(env.db, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "subscription", limits.Source)
}

func TestCancelledSubscriptionCannotRenew(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	sub := activatePlan(t, env, h.ID, models.PlanTierStandard, intPtr(10), intPtr(10), nil)

	_, err := env.limiter.Cancel(ctx, superAdmin(), sub.ID)
	require.NoError(t, err)

	_, err = env.limiter.Renew(ctx, superAdmin(), sub.ID, nil)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonTerminalState))

	_, err = env.limiter.GetActive(ctx, superAdmin(), uintPtr(h.ID))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUsageReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	activatePlan(t, env, h.ID, models.PlanTierStandard, intPtr(4), nil, nil)
	seedTenant(t, env.db, h.ID, "alice")
	seedRoom(t, env.db, h.ID, "101", 2)

	report, err := env.limiter.Usage(ctx, hostelAdmin(h.ID), nil)
	require.NoError(t, err)
	assert.Equal(t, "subscription", report.Source)
	assert.Equal(t, int64(1), report.CurrentTenants)
	require.NotNil(t, report.TenantUsagePct)
	assert.InDelta(t, 25.0, *report.TenantUsagePct, 0.001)
	assert.Equal(t, int64(1), report.CurrentRooms)
	assert.Nil(t, report.RoomUsagePct)

	_, err = env.limiter.Usage(ctx, superAdmin(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}
