package services

import (
	"context"
	"testing"
	"time"

	"hostelops/internal/models"
	"hostelops/pkg/config"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherStoresNotificationJobsInInbox(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	alice := seedTenant(t, env.db, h.ID, "alice")

	assigned := &queue.JobMessage{
		JobID:    "job-1",
		Kind:     JobKindNotification,
		HostelID: h.ID,
		UserID:   alice.UserID,
		// numbers arrive as float64 after the redis JSON round trip
		Payload: map[string]interface{}{"type": EventBedAssigned, "entity_id": float64(7), "bed_number": "B-2"},
	}
	receipt := &queue.JobMessage{
		JobID:   "job-2",
		Kind:    JobKindReceipt,
		UserID:  alice.UserID,
		Payload: map[string]interface{}{"type": EventReceiptRequested},
	}
	src := &fakeSource{
		jobs: map[string][]*queue.JobMessage{
			JobKindNotification: {assigned, assigned},
			JobKindReceipt:      {receipt},
		},
		statuses: map[string]string{},
	}
	fallback := &flakyDelivery{}
	d := NewDispatcher(src, NewInboxDelivery(env.db, fallback))

	for _, kind := range []string{JobKindNotification, JobKindNotification, JobKindReceipt} {
		ok, err := d.ProcessOne(ctx, kind)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, JobStatusDelivered, src.statuses["job-1"])
	assert.Equal(t, []string{"job-2"}, fallback.seen)

	var rows []models.Notification
	require.NoError(t, env.db.Find(&rows).Error)
	require.Len(t, rows, 1, "redelivered job must not duplicate the inbox row")
	n := rows[0]
	assert.Equal(t, alice.UserID, n.UserID)
	require.NotNil(t, n.HostelID)
	assert.Equal(t, h.ID, *n.HostelID)
	assert.Equal(t, EventBedAssigned, n.Event)
	assert.Equal(t, uint(7), n.EntityID)
	assert.Equal(t, models.NotificationTypeSuccess, n.Type)
	assert.Contains(t, n.Message, "B-2")
	assert.False(t, n.IsRead)
}

func TestInboxNotifierFeedsNotificationService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := seedHostel(t, env.db, "H1")
	alice := seedTenant(t, env.db, h.ID, "alice")
	bob := seedTenant(t, env.db, h.ID, "bob")

	billing := NewBillingService(env.db, env.limiter, NewInboxNotifier(env.db), config.BillingConfig{})
	billing.SetClock(func() time.Time { return env.now })
	for _, tenant := range []*models.TenantProfile{alice, alice, bob} {
		_, err := billing.CreateInvoice(ctx, hostelAdmin(h.ID), CreateInvoiceInput{
			TenantID: tenant.ID,
			Amount:   5000,
			DueDate:  env.now.Add(72 * time.Hour),
		})
		require.NoError(t, err)
	}

	svc := NewNotificationService(env.db)
	svc.SetClock(func() time.Time { return env.now })
	aliceID := tenantIdentity(alice)

	items, total, err := svc.List(ctx, aliceID, NotificationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	for _, n := range items {
		assert.Equal(t, alice.UserID, n.UserID)
		assert.Equal(t, "New invoice", n.Title)
	}

	counts, err := svc.UnreadCount(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, NotificationCounts{Total: 2, Unread: 2}, *counts)

	read, err := svc.MarkRead(ctx, aliceID, items[0].ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)
	assert.True(t, read.ReadAt.Equal(env.now))

	env.now = env.now.Add(time.Hour)
	again, err := svc.MarkRead(ctx, aliceID, items[0].ID)
	require.NoError(t, err)
	assert.True(t, again.ReadAt.Equal(env.now.Add(-time.Hour)))

	unread := false
	_, total, err = svc.List(ctx, aliceID, NotificationFilter{IsRead: &unread})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	// bob's row is invisible to alice
	bobItems, _, err := svc.List(ctx, tenantIdentity(bob), NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, bobItems, 1)
	_, err = svc.Get(ctx, aliceID, bobItems[0].ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = svc.MarkRead(ctx, aliceID, bobItems[0].ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	updated, err := svc.MarkAllRead(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	counts, err = svc.UnreadCount(ctx, tenantIdentity(bob))
	require.NoError(t, err)
	assert.Equal(t, NotificationCounts{Total: 1, Unread: 1}, *counts)
}

func TestInboxDeniedToExpiredVisitor(t *testing.T) {
	env := newTestEnv(t)
	h := seedHostel(t, env.db, "H1")
	svc := NewNotificationService(env.db)
	svc.SetClock(func() time.Time { return env.now })

	_, _, err := svc.List(context.Background(), visitorIdentity(h.ID, env.now.Add(-time.Minute)), NotificationFilter{})
	assert.ErrorIs(t, err, apperrors.Reason(apperrors.KindDenied, apperrors.ReasonExpired))

	_, _, err = svc.List(context.Background(), visitorIdentity(h.ID, env.now.Add(time.Hour)), NotificationFilter{})
	assert.NoError(t, err)
}
