package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	dbutils "github.com/tendant/db-utils/db"

	"github.com/tendant/identity-core/pkg/bootstrap"
	"github.com/tendant/identity-core/pkg/config"
	"github.com/tendant/identity-core/pkg/event"
	"github.com/tendant/identity-core/pkg/extension"
	"github.com/tendant/identity-core/pkg/iam"
	"github.com/tendant/identity-core/pkg/role"
	"github.com/tendant/identity-core/pkg/setting"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	// Create a logger with source enabled
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Identity bootstrap failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	storeConfig := extension.StoreConfig{DataDir: cfg.Store.DataDir}
	if cfg.Store.Type == "postgres" || cfg.Store.Type == "postgresql" {
		dbConfig := cfg.Database.ToDbConfig()
		pool, err := dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			return err
		}
		defer pool.Close()
		storeConfig.DB = pool
	}

	store, err := extension.NewStore(cfg.Store.Type, storeConfig)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	slog.Info("Store opened", "type", cfg.Store.Type)

	client := extension.NewClient(store)
	roles := role.NewRoleService(client)

	encoder, err := cfg.Password.NewEncoder()
	if err != nil {
		return err
	}

	settings := setting.NewStoreFetcher(client, setting.StaticFetcher{Setting: cfg.UserSetting.ToUserSetting()})

	var publisher event.Publisher = event.NewLogPublisher(logger)
	if cfg.Event.Async {
		async := event.NewAsyncPublisher(publisher, cfg.Event.QueueSize, logger)
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Event.DrainTimeout)
			defer cancel()
			if err := async.Close(drainCtx); err != nil {
				slog.Warn("Events not drained before shutdown", "error", err)
			}
		}()
		publisher = async
	}

	users := iam.NewUserService(client, roles, settings, encoder, publisher, iam.WithLogger(logger))

	result, err := bootstrap.Run(ctx, bootstrap.Config{
		RoleNames:     cfg.Bootstrap.RoleNames(),
		AdminUsername: cfg.Bootstrap.AdminUsername,
		AdminEmail:    cfg.Bootstrap.AdminEmail,
		AdminPassword: cfg.Bootstrap.AdminPassword,
		AdminRole:     cfg.Bootstrap.AdminRole,
		Roles:         roles,
		Users:         users,
	})
	if err != nil {
		return err
	}

	bootstrap.PrintResult(os.Stdout, result)
	bootstrap.LogSummary(logger, result)
	return nil
}
