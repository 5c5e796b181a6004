package main

import (
	"context"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/router"
	"hostelops/internal/services"
	"hostelops/pkg/config"
	"hostelops/pkg/jwt"
	"hostelops/pkg/logger"
	"hostelops/pkg/queue"

	"gorm.io/gorm"
)

// app holds the wired services
type app struct {
	db        *gorm.DB
	queue     *queue.RedisQueue
	jwt       *jwt.JWTManager
	scheduler *services.SweepScheduler

	auth          *services.AuthService
	hostels       *services.HostelService
	occupancy     *services.OccupancyService
	tenants       *services.TenantService
	billing       *services.BillingService
	subscriptions *services.SubscriptionService
	lifecycle     *services.LifecycleService
	complaints    *services.ComplaintService
	leaves        *services.LeaveService
	publicInfo    *services.PublicInfoService
	notifications *services.NotificationService
}

// buildApp wires services. Notifications go to redis when it answers a
// ping, otherwise straight into the inbox.
func buildApp(cfg *config.Config, db *gorm.DB) *app {
	tokenDuration, err := time.ParseDuration(cfg.JWT.TokenDuration)
	if err != nil {
		tokenDuration = 24 * time.Hour
	}
	a := &app{db: db, jwt: jwt.NewJWTManager(cfg.JWT.SecretKey, tokenDuration)}

	var notifier services.Notifier = services.NewInboxNotifier(db)
	q := database.GetRedisQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Ping(ctx); err != nil {
		logger.GetLogger().Warnf("redis unavailable, notifications are delivered in process: %v", err)
	} else {
		a.queue = q
		notifier = services.NewQueueNotifier(q)
	}

	a.subscriptions = services.NewSubscriptionService(db, cfg.FreeTier)
	a.auth = services.NewAuthService(db, a.jwt)
	a.hostels = services.NewHostelService(db)
	a.occupancy = services.NewOccupancyService(db, a.subscriptions, notifier)
	a.tenants = services.NewTenantService(db, a.subscriptions)
	a.billing = services.NewBillingService(db, a.subscriptions, notifier, cfg.Billing)
	a.lifecycle = services.NewLifecycleService(db, a.subscriptions)
	a.complaints = services.NewComplaintService(db, notifier)
	a.leaves = services.NewLeaveService(db, notifier)
	a.publicInfo = services.NewPublicInfoService(db)
	a.notifications = services.NewNotificationService(db)
	a.scheduler = services.NewSweepScheduler(cfg.Scheduler, a.billing, a.subscriptions, a.tenants)
	return a
}

func (a *app) routerDeps(cfg *config.Config) router.Deps {
	return router.Deps{
		Config:        cfg,
		DB:            a.db,
		Queue:         a.queue,
		Provider:      identity.NewJWTProvider(a.db, a.jwt),
		Scheduler:     a.scheduler,
		Auth:          a.auth,
		Hostels:       a.hostels,
		Occupancy:     a.occupancy,
		Tenants:       a.tenants,
		Billing:       a.billing,
		Subscriptions: a.subscriptions,
		Lifecycle:     a.lifecycle,
		Complaints:    a.complaints,
		Leaves:        a.leaves,
		PublicInfo:    a.publicInfo,
		Notifications: a.notifications,
	}
}
