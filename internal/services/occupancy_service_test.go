package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"hostelops/internal/models"
	"hostelops/internal/scope"
	apperrors "hostelops/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignAndVacateKeepBothSidesConsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	room := seedRoom(t, env.db, h.ID, "101", 2)
	bed := seedBed(t, env.db, room, "A")
	tenant := seedTenant(t, env.db, h.ID, "alice")

	assigned, err := env.occupancy.CheckIn(ctx, hostelAdmin(h.ID), bed.ID, tenant.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.BedStatusOccupied, assigned.Status)
	require.NotNil(t, assigned.CurrentTenantID)
	assert.Equal(t, tenant.ID, *assigned.CurrentTenantID)
	requireOccupancyConsistent(t, env.db)

	var profile models.TenantProfile
	require.NoError(t, env.db.First(&profile, tenant.ID).Error)
	require.NotNil(t, profile.CheckInDate)
	assert.True(t, profile.CheckInDate.Equal(env.now))

	vacated, err := env.occupancy.CheckOut(ctx, hostelAdmin(h.ID), bed.ID, tenant.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.BedStatusFree, vacated.Status)
	assert.Nil(t, vacated.CurrentTenantID)
	requireOccupancyConsistent(t, env.db)

	require.NoError(t, env.db.First(&profile, tenant.ID).Error)
	assert.Nil(t, profile.CurrentBedID)
	assert.NotNil(t, profile.CheckOutDate)

	assert.Equal(t, []string{EventBedAssigned, EventBedVacated}, env.notifier.types())
	assert.Equal(t, []uint{tenant.UserID, tenant.UserID}, env.notifier.users)

	var audits int64
	env.db.Model(&models.AuditLog{}).Where("entity_type = ? AND entity_id = ?", scope.EntityBed, bed.ID).Count(&audits)
	assert.Equal(t, int64(2), audits)
}

func TestAssignRejectsOccupiedBedAndBusyTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	room := seedRoom(t, env.db, h.ID, "101", 2)
	bedA := seedBed(t, env.db, room, "A")
	bedB := seedBed(t, env.db, room, "B")
	alice := seedTenant(t, env.db, h.ID, "alice")
	bob := seedTenant(t, env.db, h.ID, "bob")

	_, err := env.occupancy.AssignBed(ctx, hostelAdmin(h.ID), bedA.ID, alice.ID)
	require.NoError(t, err)

	_, err = env.occupancy.AssignBed(ctx, hostelAdmin(h.ID), bedA.ID, bob.ID)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonBedOccupied))

	_, err = env.occupancy.AssignBed(ctx, hostelAdmin(h.ID), bedB.ID, alice.ID)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonTenantHasBed))

	requireOccupancyConsistent(t, env.db)
	assert.Len(t, env.notifier.types(), 1)
}

func TestAssignAcrossHostels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h1 := seedHostel(t, env.db, "H1")
	h2 := seedHostel(t, env.db, "H2")
	bed := seedBed(t, env.db, seedRoom(t, env.db, h1.ID, "101", 1), "A")
	outsider := seedTenant(t, env.db, h2.ID, "carol")

	// a hostel admin cannot even see the other hostel's tenant
	_, err := env.occupancy.AssignBed(ctx, hostelAdmin(h1.ID), bed.ID, outsider.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = env.occupancy.AssignBed(ctx, superAdmin(), bed.ID, outsider.ID)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonWrongHostel))

	requireOccupancyConsistent(t, env.db)
}

func TestVacateFreeBedIsConflict(t *testing.T) {
	env := newTestEnv(t)
	h := seedHostel(t, env.db, "H1")
	bed := seedBed(t, env.db, seedRoom(t, env.db, h.ID, "101", 1), "A")

	_, err := env.occupancy.VacateBed(context.Background(), hostelAdmin(h.ID), bed.ID)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonBedFree))
	assert.Empty(t, env.notifier.types())
}

func TestCheckOutWithStaleBed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	room := seedRoom(t, env.db, h.ID, "101", 2)
	bedA := seedBed(t, env.db, room, "A")
	bedB := seedBed(t, env.db, room, "B")
	alice := seedTenant(t, env.db, h.ID, "alice")
	bob := seedTenant(t, env.db, h.ID, "bob")

	_, err := env.occupancy.AssignBed(ctx, hostelAdmin(h.ID), bedA.ID, alice.ID)
	require.NoError(t, err)
	_, err = env.occupancy.AssignBed(ctx, hostelAdmin(h.ID), bedB.ID, bob.ID)
	require.NoError(t, err)

	_, err = env.occupancy.CheckOut(ctx, hostelAdmin(h.ID), bedB.ID, alice.ID, nil)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonStaleBed))
	requireOccupancyConsistent(t, env.db)
}

func TestConcurrentAssignOfOneBed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	bed := seedBed(t, env.db, seedRoom(t, env.db, h.ID, "101", 1), "A")
	tenants := []*models.TenantProfile{
		seedTenant(t, env.db, h.ID, "alice"),
		seedTenant(t, env.db, h.ID, "bob"),
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(tenants))
	)
	for i, tenant := range tenants {
		wg.Add(1)
		go func(i int, tenantID uint) {
			defer wg.Done()
			<-start
			_, errs[i] = env.occupancy.AssignBed(ctx, hostelAdmin(h.ID), bed.ID, tenantID)
		}(i, tenant.ID)
	}
	close(start)
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonBedOccupied)):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	requireOccupancyConsistent(t, env.db)
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errNotifyDown
	h := seedHostel(t, env.db, "H1")
	bed := seedBed(t, env.db, seedRoom(t, env.db, h.ID, "101", 1), "A")
	tenant := seedTenant(t, env.db, h.ID, "alice")

	_, err := env.occupancy.AssignBed(context.Background(), hostelAdmin(h.ID), bed.ID, tenant.ID)
	require.NoError(t, err)

	var stored models.Bed
	require.NoError(t, env.db.First(&stored, bed.ID).Error)
	assert.Equal(t, models.BedStatusOccupied, stored.Status)
}

func TestCreateBedRespectsRoomCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")

	room, err := env.occupancy.CreateRoom(ctx, hostelAdmin(h.ID), CreateRoomInput{
		Number:   "201",
		RoomType: models.RoomTypeDouble,
		Capacity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, h.ID, room.HostelID)

	for _, number := range []string{"A", "B"} {
		_, err := env.occupancy.CreateBed(ctx, hostelAdmin(h.ID), CreateBedInput{RoomID: room.ID, Number: number})
		require.NoError(t, err)
	}
	_, err = env.occupancy.CreateBed(ctx, hostelAdmin(h.ID), CreateBedInput{RoomID: room.ID, Number: "C"})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonCapacityReached))

	_, err = env.occupancy.CreateRoom(ctx, hostelAdmin(h.ID), CreateRoomInput{Number: "201", RoomType: models.RoomTypeSingle, Capacity: 1})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonDuplicate))
}

func TestCreateRoomValidation(t *testing.T) {
	env := newTestEnv(t)
	h := seedHostel(t, env.db, "H1")

	_, err := env.occupancy.CreateRoom(context.Background(), hostelAdmin(h.ID), CreateRoomInput{
		Number:   "301",
		RoomType: "PENTHOUSE",
		Capacity: 1,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = env.occupancy.CreateRoom(context.Background(), superAdmin(), CreateRoomInput{
		Number:   "301",
		RoomType: models.RoomTypeSingle,
		Capacity: 1,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalid, "super admin must name a hostel")
}

func TestRoomCreationHitsFreeTierLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	for i := 0; i < 5; i++ {
		seedRoom(t, env.db, h.ID, string(rune('A'+i)), 1)
	}

	_, err := env.occupancy.CreateRoom(ctx, hostelAdmin(h.ID), CreateRoomInput{Number: "F", RoomType: models.RoomTypeSingle, Capacity: 1})
	var limitErr *apperrors.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, LimitMaxRooms, limitErr.LimitName)
	assert.Equal(t, int64(5), limitErr.Current)
	assert.Equal(t, int64(5), limitErr.Max)
	assert.ErrorIs(t, err, apperrors.ErrDenied)
}

func TestListBedsIsScopedAndHidesDeletedAncestors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h1 := seedHostel(t, env.db, "H1")
	h2 := seedHostel(t, env.db, "H2")
	live := seedRoom(t, env.db, h1.ID, "101", 2)
	gone := seedRoom(t, env.db, h1.ID, "102", 2)
	seedBed(t, env.db, live, "A")
	seedBed(t, env.db, gone, "A")
	seedBed(t, env.db, seedRoom(t, env.db, h2.ID, "101", 1), "A")

	require.NoError(t, env.lifecycle.SoftDelete(ctx, hostelAdmin(h1.ID), EntityRef{Entity: scope.EntityRoom, ID: gone.ID}))

	beds, total, err := env.occupancy.ListBeds(ctx, hostelAdmin(h1.ID), BedFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, beds, 1)
	assert.Equal(t, live.ID, beds[0].RoomID)

	_, _, err = env.occupancy.ListBeds(ctx, hostelAdmin(h1.ID), BedFilter{HostelID: uintPtr(h2.ID)})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindDenied, apperrors.ReasonWrongHostel))

	_, total, err = env.occupancy.ListBeds(ctx, superAdmin(), BedFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestAssignToBedInDeletedRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	room := seedRoom(t, env.db, h.ID, "101", 1)
	bed := seedBed(t, env.db, room, "A")
	tenant := seedTenant(t, env.db, h.ID, "alice")

	require.NoError(t, env.lifecycle.SoftDelete(ctx, hostelAdmin(h.ID), EntityRef{Entity: scope.EntityRoom, ID: room.ID}))

	_, err := env.occupancy.AssignBed(ctx, hostelAdmin(h.ID), bed.ID, tenant.ID)
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindConflict, apperrors.ReasonAncestorDeleted))
}
