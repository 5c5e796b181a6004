package router

import (
	"hostelops/internal/handlers"
	"hostelops/internal/identity"
	"hostelops/internal/middleware"
	"hostelops/internal/scope"
	"hostelops/internal/services"
	"hostelops/pkg/config"
	"hostelops/pkg/queue"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer is built from
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Queue     *queue.RedisQueue // nil when redis is not configured
	Provider  identity.Provider
	Scheduler *services.SweepScheduler

	Auth          *services.AuthService
	Hostels       *services.HostelService
	Occupancy     *services.OccupancyService
	Tenants       *services.TenantService
	Billing       *services.BillingService
	Subscriptions *services.SubscriptionService
	Lifecycle     *services.LifecycleService
	Complaints    *services.ComplaintService
	Leaves        *services.LeaveService
	PublicInfo    *services.PublicInfoService
	Notifications *services.NotificationService
}

// SetupRouter builds the engine with middleware and all routes
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.AccessLog())
	router.Use(middleware.SetupCORS(deps.Config.CORS))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	registerRoutes(router, deps)
	return router
}

func registerRoutes(router *gin.Engine, deps Deps) {
	auth := middleware.NewAuthMiddleware(deps.Provider)
	adminOnly := auth.RequireRole(identity.SuperAdmin, identity.HostelAdmin)
	superOnly := auth.RequireRole(identity.SuperAdmin)

	systemHandler := handlers.NewSystemHandler(deps.DB, deps.Queue, deps.Scheduler)
	lifecycle := handlers.NewLifecycleHandler(deps.Lifecycle)

	api := router.Group("/api/v1")
	{
		api.GET("/health", systemHandler.Health)
		api.GET("/ping", systemHandler.Ping)

		authHandler := handlers.NewAuthHandler(deps.Auth)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/logout", authHandler.Logout)
			authGroup.GET("/me", auth.RequireLogin(), authHandler.Me)
			authGroup.POST("/change-password", auth.RequireLogin(), authHandler.ChangePassword)
		}

		// Gateway callbacks authenticate by signature, not by token
		billingHandler := handlers.NewBillingHandler(deps.Billing, deps.Config.Billing.WebhookSecret, deps.Config.Server.Mode == gin.ReleaseMode)
		webhooks := api.Group("/webhooks/payments/:gateway")
		{
			webhooks.POST("", billingHandler.GatewayConfirmed)
			webhooks.POST("/accepted", billingHandler.GatewayAccepted)
		}

		secured := api.Group("", auth.RequireLogin())

		hostelHandler := handlers.NewHostelHandler(deps.Hostels)
		hostels := secured.Group("/hostels")
		{
			hostels.POST("", hostelHandler.Create)
			hostels.GET("", adminOnly, hostelHandler.List)
			hostels.GET("/stats", hostelHandler.Stats)
			hostels.GET("/:id", adminOnly, hostelHandler.GetByID)
			hostels.PUT("/:id", hostelHandler.Update)
			hostels.POST("/:id/activate", hostelHandler.Activate)
			hostels.POST("/:id/deactivate", hostelHandler.Deactivate)
			hostels.DELETE("/:id", lifecycle.Delete(scope.EntityHostel))
			hostels.POST("/:id/restore", lifecycle.Restore(scope.EntityHostel))
		}

		occupancyHandler := handlers.NewOccupancyHandler(deps.Occupancy)
		rooms := secured.Group("/rooms")
		{
			rooms.POST("", occupancyHandler.CreateRoom)
			rooms.GET("", occupancyHandler.ListRooms)
			rooms.DELETE("/:id", lifecycle.Delete(scope.EntityRoom))
			rooms.POST("/:id/restore", lifecycle.Restore(scope.EntityRoom))
		}
		beds := secured.Group("/beds")
		{
			beds.POST("", occupancyHandler.CreateBed)
			beds.GET("", occupancyHandler.ListBeds)
			beds.GET("/:id", occupancyHandler.GetBed)
			beds.POST("/:id/assign", occupancyHandler.AssignBed)
			beds.POST("/:id/vacate", occupancyHandler.VacateBed)
			beds.POST("/:id/check-in", occupancyHandler.CheckIn)
			beds.POST("/:id/check-out", occupancyHandler.CheckOut)
			beds.DELETE("/:id", lifecycle.Delete(scope.EntityBed))
			beds.POST("/:id/restore", lifecycle.Restore(scope.EntityBed))
		}

		tenantHandler := handlers.NewTenantHandler(deps.Tenants)
		tenants := secured.Group("/tenants")
		{
			tenants.POST("", tenantHandler.Create)
			tenants.GET("", tenantHandler.List)
			tenants.GET("/:id", tenantHandler.GetByID)
			tenants.DELETE("/:id", lifecycle.Delete(scope.EntityTenant))
			tenants.POST("/:id/restore", lifecycle.Restore(scope.EntityTenant))
		}
		visitors := secured.Group("/visitors", adminOnly)
		{
			visitors.POST("", tenantHandler.CreateVisitor)
			visitors.POST("/:id/extend", tenantHandler.ExtendVisitor)
		}

		invoices := secured.Group("/invoices")
		{
			invoices.POST("", billingHandler.CreateInvoice)
			invoices.GET("", billingHandler.ListInvoices)
			invoices.GET("/:id", billingHandler.GetInvoice)
			invoices.PUT("/:id/adjust", billingHandler.AdjustInvoice)
			invoices.POST("/:id/cancel", billingHandler.CancelInvoice)
		}
		payments := secured.Group("/payments")
		{
			payments.POST("", billingHandler.CreatePayment)
			payments.GET("", billingHandler.ListPayments)
			payments.GET("/:id", billingHandler.GetPayment)
			payments.POST("/:id/refund", billingHandler.RefundPayment)
		}

		subscriptionHandler := handlers.NewSubscriptionHandler(deps.Subscriptions)
		plans := secured.Group("/plans")
		{
			plans.GET("", subscriptionHandler.ListPlans)
			plans.POST("", subscriptionHandler.CreatePlan)
			plans.PUT("/:id", subscriptionHandler.UpdatePlan)
		}
		subscriptions := secured.Group("/subscriptions")
		{
			subscriptions.POST("", subscriptionHandler.Activate)
			subscriptions.GET("/active", subscriptionHandler.GetActive)
			subscriptions.GET("/usage", subscriptionHandler.Usage)
			subscriptions.POST("/:id/renew", subscriptionHandler.Renew)
			subscriptions.POST("/:id/cancel", subscriptionHandler.Cancel)
		}

		residentHandler := handlers.NewResidentHandler(deps.Complaints, deps.Leaves)
		complaints := secured.Group("/complaints")
		{
			complaints.POST("", residentHandler.CreateComplaint)
			complaints.GET("", residentHandler.ListComplaints)
			complaints.PUT("/:id/status", residentHandler.UpdateComplaintStatus)
		}
		leaves := secured.Group("/leaves")
		{
			leaves.POST("", residentHandler.ApplyLeave)
			leaves.GET("", residentHandler.ListLeaves)
			leaves.POST("/:id/decide", residentHandler.DecideLeave)
		}

		notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
		notifications := secured.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/count", notificationHandler.Count)
			notifications.POST("/mark-all-read", notificationHandler.MarkAllRead)
			notifications.GET("/:id", notificationHandler.Get)
			notifications.PATCH("/:id", notificationHandler.MarkRead)
		}

		infoHandler := handlers.NewPublicInfoHandler(deps.PublicInfo)
		public := secured.Group("/public")
		{
			public.GET("/hostel-info", infoHandler.HostelInfo)
			public.GET("/notices", infoHandler.PublicNotices)
			public.GET("/mess-menu", infoHandler.MessMenu)
		}
		secured.GET("/notices", infoHandler.Notices)
		secured.POST("/notices", infoHandler.CreateNotice)
		secured.PUT("/mess-menu", infoHandler.SetMessMenu)

		system := secured.Group("/system", superOnly)
		{
			system.GET("/sweeps", systemHandler.SweepStatus)
			system.POST("/sweeps/run", systemHandler.RunSweeps)
			system.GET("/queues", systemHandler.QueueStatus)
			system.GET("/jobs/:id", systemHandler.JobStatus)
		}
	}
}
