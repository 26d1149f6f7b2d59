package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aggrelay/aggrelay/internal/catalogue"
	"github.com/aggrelay/aggrelay/internal/config"
	"github.com/aggrelay/aggrelay/internal/credential"
	"github.com/aggrelay/aggrelay/internal/credential/checker"
	"github.com/aggrelay/aggrelay/internal/credential/openrouter"
	"github.com/aggrelay/aggrelay/internal/gateway"
	"github.com/aggrelay/aggrelay/internal/resolver"
	"github.com/aggrelay/aggrelay/internal/server"
	"github.com/aggrelay/aggrelay/internal/storage"
	"github.com/aggrelay/aggrelay/internal/storage/memory"
	"github.com/aggrelay/aggrelay/internal/storage/sqlite"
	"github.com/aggrelay/aggrelay/internal/telemetry"
	"github.com/aggrelay/aggrelay/internal/upstream"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run owns the whole lifecycle so deferred cleanup fires on every exit path.
func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("AGR_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Secrets) == 0 {
		return fmt.Errorf("no credentials configured: set secrets in config.yaml or AGR_SECRETS")
	}

	shutdownTracer, err := telemetry.InitTracer("aggrelay", logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	var clientOpts []upstream.ClientOption
	if cfg.Upstream.BaseURL != "" {
		clientOpts = append(clientOpts, upstream.WithBaseURL(cfg.Upstream.BaseURL))
	}
	client := upstream.NewClient(clientOpts...)

	creds := credential.NewStore(cfg.Secrets, cfg.HealthCheck.Enabled)
	logger.Info("credential pool initialized",
		slog.Int("credentials", creds.Len()),
		slog.Bool("health_checking", cfg.HealthCheck.Enabled))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.HealthCheck.Enabled {
		chk := checker.New(creds, openrouter.New(client).Probe,
			checker.WithPeriod(cfg.HealthCheck.Period),
			checker.WithMinInterval(cfg.HealthCheck.MinInterval),
			checker.WithRecurring(cfg.HealthCheck.Recurring),
			checker.WithLogger(logger),
		)
		chk.Start(ctx)
		defer chk.Stop()
	}

	catalogueSvc := catalogue.NewService(client,
		catalogue.WithTTL(cfg.Catalogue.TTL),
		catalogue.WithLogger(logger),
	)

	var ledger storage.InteractionStore
	switch cfg.Storage.Type {
	case "sqlite":
		ledger, err = sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open ledger database: %w", err)
		}
		defer ledger.Close()
	case "memory":
		ledger = memory.New()
	case "none":
		// Requests are served but not recorded.
	default:
		return fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	policy := resolver.Policy{
		AllowPaid:       cfg.Policy.AllowPaid,
		AllowModerated:  cfg.Policy.AllowModerated,
		BlockedFamilies: resolver.FamilySet(cfg.Policy.BlockedFamilies),
		AllowedFamilies: resolver.FamilySet(cfg.Policy.AllowedFamilies),
	}

	gw := gateway.New(catalogueSvc, creds, client,
		gateway.WithPolicy(policy),
		gateway.WithLedger(ledger),
		gateway.WithLogger(logger),
	)

	handlers := server.NewHandlers(gw, catalogueSvc, creds, ledger, logger)
	srv := server.New(cfg.Server.Port, logger, handlers)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return <-errCh
}
