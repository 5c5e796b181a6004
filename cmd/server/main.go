package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/router"
	"hostelops/internal/services"
	"hostelops/pkg/config"
	"hostelops/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hostelops",
		Short:         "Multi-tenant hostel operations server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Initialize(cfg); err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			return database.Initialize(cfg)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if err := database.Close(); err != nil {
				logger.GetLogger().Errorf("close database: %v", err)
			}
			if err := database.CloseRedisQueue(); err != nil {
				logger.GetLogger().Errorf("close redis: %v", err)
			}
		},
	}

	root.AddCommand(newServeCmd(), newWorkerCmd(), newMigrateCmd(), newSeedCmd(), newSweepCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !skipMigrate {
				if err := database.Migrate(); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			return serve()
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not run schema migration on start")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued notifications and receipt jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := database.GetRedisQueue()
			if err := q.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("redis unavailable: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.GetLogger().Info("worker started")
			delivery := services.NewInboxDelivery(database.GetDB(), services.LogDelivery{})
			services.NewDispatcher(q, delivery).Run(ctx)
			logger.GetLogger().Info("worker stopped")
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run the schema migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return database.Migrate()
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the default plans and the bootstrap super admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Migrate(); err != nil {
				return err
			}
			return seedData(database.GetDB(), cfg.Seed)
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run every time-based sweep once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := buildApp(cfg, database.GetDB())
			results, err := app.scheduler.RunAll(cmd.Context())
			for name, count := range results {
				logger.GetLogger().WithField("sweep", name).WithField("updated", count).Info("sweep finished")
			}
			return err
		},
	}
}

func serve() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting hostelops...")

	if cfg.Server.Mode == gin.ReleaseMode && cfg.Billing.WebhookSecret == "" {
		return errors.New("PAYMENT_WEBHOOK_SECRET must be set in release mode")
	}
	gin.SetMode(cfg.Server.Mode)

	app := buildApp(cfg, database.GetDB())
	if err := app.scheduler.Start(); err != nil {
		return fmt.Errorf("start sweep scheduler: %w", err)
	}
	defer app.scheduler.Stop()

	r := router.SetupRouter(app.routerDeps(cfg))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return shutdownServer(ctx, server)
}

// shutdownServer drains in-flight requests until ctx expires
func shutdownServer(ctx context.Context, server *http.Server) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Shutting down server...")
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Errorf("server forced to shutdown: %v", err)
		return err
	}
	appLogger.Info("Server exited")
	return nil
}
