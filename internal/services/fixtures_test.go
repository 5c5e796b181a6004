package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database. One connection means
// concurrent transactions queue behind each other.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.MigrateDB(db))
	return db
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
	users  []uint
	err    error
}

func (n *fakeNotifier) Notify(ctx context.Context, userID uint, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.users = append(n.users, userID)
	return n.err
}

func (n *fakeNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	db         *gorm.DB
	now        time.Time
	notifier   *fakeNotifier
	limiter    *SubscriptionService
	occupancy  *OccupancyService
	billing    *BillingService
	lifecycle  *LifecycleService
	tenants    *TenantService
	hostels    *HostelService
	complaints *ComplaintService
	leaves     *LeaveService
	info       *PublicInfoService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:       db,
		now:      time.Now().UTC().Truncate(time.Second),
		notifier: &fakeNotifier{},
	}
	env.limiter = NewSubscriptionService(db, config.FreeTierConfig{MaxTenants: 10, MaxRooms: 5})
	env.occupancy = NewOccupancyService(db, env.limiter, env.notifier)
	env.billing = NewBillingService(db, env.limiter, env.notifier, config.BillingConfig{})
	env.lifecycle = NewLifecycleService(db, env.limiter)
	env.tenants = NewTenantService(db, env.limiter)
	env.hostels = NewHostelService(db)
	env.complaints = NewComplaintService(db, env.notifier)
	env.leaves = NewLeaveService(db, env.notifier)
	env.info = NewPublicInfoService(db)

	clockFn := func() time.Time { return env.now }
	for _, c := range []interface{ SetClock(func() time.Time) }{
		env.limiter, env.occupancy, env.billing, env.lifecycle, env.tenants,
		env.hostels, env.complaints, env.leaves, env.info,
	} {
		c.SetClock(clockFn)
	}
	return env
}

// ========== identities ==========

func superAdmin() *identity.Identity {
	return &identity.Identity{UserID: 1, Role: identity.SuperAdmin}
}

func hostelAdmin(hostelID uint) *identity.Identity {
	h := hostelID
	return &identity.Identity{UserID: 2, Role: identity.HostelAdmin, HostelID: &h}
}

func tenantIdentity(p *models.TenantProfile) *identity.Identity {
	h := p.HostelID
	return &identity.Identity{UserID: p.UserID, Role: identity.Tenant, HostelID: &h}
}

func visitorIdentity(hostelID uint, expires time.Time) *identity.Identity {
	h := hostelID
	return &identity.Identity{UserID: 99, Role: identity.Visitor, HostelID: &h, VisitorExpiry: &expires}
}

func uintPtr(v uint) *uint { return &v }

func intPtr(v int) *int { return &v }

// ========== rows ==========

func seedHostel(t *testing.T, db *gorm.DB, code string) *models.Hostel {
	t.Helper()
	h := &models.Hostel{Name: "Hostel " + code, Code: code, IsActive: true}
	require.NoError(t, db.Create(h).Error)
	return h
}

func seedTenant(t *testing.T, db *gorm.DB, hostelID uint, name string) *models.TenantProfile {
	t.Helper()
	h := hostelID
	user := &models.User{
		Username:     fmt.Sprintf("%s%d", name, hostelID),
		PasswordHash: "x",
		Name:         name,
		Role:         models.RoleTenant,
		HostelID:     &h,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	profile := &models.TenantProfile{UserID: user.ID, HostelID: hostelID, FullName: name}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

func seedRoom(t *testing.T, db *gorm.DB, hostelID uint, number string, capacity int) *models.Room {
	t.Helper()
	room := &models.Room{HostelID: hostelID, Number: number, RoomType: models.RoomTypeDouble, Capacity: capacity}
	require.NoError(t, db.Create(room).Error)
	return room
}

func seedBed(t *testing.T, db *gorm.DB, room *models.Room, number string) *models.Bed {
	t.Helper()
	bed := &models.Bed{RoomID: room.ID, HostelID: room.HostelID, Number: number, Status: models.BedStatusFree}
	require.NoError(t, db.Create(bed).Error)
	return bed
}

// activatePlan creates a plan of tier and makes it the hostel's ACTIVE subscription
func activatePlan(t *testing.T, env *testEnv, hostelID uint, tier string, maxTenants, maxRooms *int, features map[string]bool) *models.Subscription {
	t.Helper()
	ctx := context.Background()
	plan, err := env.limiter.CreatePlan(ctx, superAdmin(), PlanInput{
		Name:       "Plan " + tier,
		Tier:       tier,
		MaxTenants: maxTenants,
		MaxRooms:   maxRooms,
		Features:   features,
	})
	require.NoError(t, err)
	sub, err := env.limiter.ActivateSubscription(ctx, superAdmin(), ActivateInput{HostelID: hostelID, PlanID: plan.ID})
	require.NoError(t, err)
	return sub
}

// requireOccupancyConsistent checks the bed/tenant invariant over every row
func requireOccupancyConsistent(t *testing.T, db *gorm.DB) {
	t.Helper()
	var beds []models.Bed
	require.NoError(t, db.Unscoped().Find(&beds).Error)
	var profiles []models.TenantProfile
	require.NoError(t, db.Unscoped().Find(&profiles).Error)

	byID := make(map[uint]models.TenantProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	bedByID := make(map[uint]models.Bed, len(beds))
	for _, b := range beds {
		bedByID[b.ID] = b
		require.True(t, b.Consistent(), "bed %d status %s tenant %v", b.ID, b.Status, b.CurrentTenantID)
		if b.CurrentTenantID != nil {
			p, ok := byID[*b.CurrentTenantID]
			require.True(t, ok)
			require.NotNil(t, p.CurrentBedID)
			require.Equal(t, b.ID, *p.CurrentBedID)
		}
	}
	for _, p := range profiles {
		if p.CurrentBedID == nil {
			continue
		}
		b, ok := bedByID[*p.CurrentBedID]
		require.True(t, ok)
		require.True(t, b.IsOccupied())
		require.Equal(t, p.ID, *b.CurrentTenantID)
	}
}

var errNotifyDown = errors.New("notifier unavailable")
