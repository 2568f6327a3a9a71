package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fabricmart/internal/app"
	"fabricmart/internal/config"
	"fabricmart/internal/logging"
	"fabricmart/internal/repositories"
	"fabricmart/internal/services"
	"fabricmart/pkg/rabbitmq"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fabricmart",
		Short:        "Order lifecycle service for the fabric marketplace",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newReleaseHoldsCmd(), newTokenCmd())
	return root
}

// runtime is what every subcommand needs before doing its own work.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func bootstrap(withDB bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger}
	if !withDB {
		return rt, nil
	}

	db, err := repositories.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := repositories.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	rt.db = db
	return rt, nil
}

func (rt *runtime) close() {
	if rt.db != nil {
		if sqlDB, err := rt.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = rt.logger.Sync()
}

func newServeCmd() *cobra.Command {
	var accessLog bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer rt.close()
			return serve(rt, accessLog)
		},
	}
	cmd.Flags().BoolVar(&accessLog, "access-log", true, "log every request")
	return cmd
}

func serve(rt *runtime, accessLog bool) error {
	cfg, log := rt.cfg, rt.logger

	var notifier services.Notifier
	var mqClient *rabbitmq.Client
	switch cfg.NotifyTransport {
	case "http":
		notifier = services.NewHTTPNotifier(cfg.NotifyURL, cfg.AdminKey, cfg.NotifyTimeout)
	case "amqp":
		client, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log.Named("rabbitmq"))
		if err != nil {
			return err
		}
		defer client.Close()
		mqClient = client
		notifier = services.NewQueueNotifier(client)
	}

	a, err := app.New(app.Options{
		Config:    cfg,
		DB:        rt.db,
		Logger:    log,
		Notifier:  notifier,
		AccessLog: accessLog,
	})
	if err != nil {
		return err
	}

	if mqClient != nil {
		if err := mqClient.Consume(a.Notifications.HandleQueuedMessage); err != nil {
			return fmt.Errorf("failed to start notification consumer: %w", err)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go releaseHoldsLoop(ctx, a.Orders, cfg.CartHoldTTL, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", cfg.AppPort))
		errCh <- a.Fiber.Listen(cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")
	if err := a.Fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
	log.Info("server gracefully stopped")
	return nil
}

// releaseHoldsLoop expires abandoned cart holds once per hold TTL.
func releaseHoldsLoop(ctx context.Context, orders *services.OrderService, every time.Duration, log *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := orders.ReleaseStaleHolds(ctx); err != nil {
				log.Warn("periodic hold release failed", zap.Error(err))
			}
		}
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer rt.close()
			rt.logger.Info("database migrated", zap.String("driver", rt.cfg.DatabaseDriver))
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}

func newReleaseHoldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release-holds",
		Short: "Return stale cart holds to ACTIVE",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(true)
			if err != nil {
				return err
			}
			defer rt.close()

			a, err := app.New(app.Options{Config: rt.cfg, DB: rt.db, Logger: rt.logger})
			if err != nil {
				return err
			}
			n, err := a.Orders.ReleaseStaleHolds(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d holds\n", n)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var userID, email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a buyer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(false)
			if err != nil {
				return err
			}
			defer rt.close()

			token, err := services.NewAuthService(rt.cfg.JWTSecret, rt.logger).IssueToken(userID, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "buyer id")
	cmd.Flags().StringVar(&email, "email", "", "buyer email")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
