package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jhjames1/peerchat/pkg/api"
	"github.com/jhjames1/peerchat/pkg/appstate"
	"github.com/jhjames1/peerchat/pkg/auth"
	"github.com/jhjames1/peerchat/pkg/cleanup"
	"github.com/jhjames1/peerchat/pkg/config"
	"github.com/jhjames1/peerchat/pkg/database"
	"github.com/jhjames1/peerchat/pkg/events"
	"github.com/jhjames1/peerchat/pkg/notify"
	"github.com/jhjames1/peerchat/pkg/scheduler"
	"github.com/jhjames1/peerchat/pkg/services"
	"github.com/jhjames1/peerchat/pkg/store"
	"github.com/jhjames1/peerchat/pkg/store/supabase"
	"github.com/jhjames1/peerchat/pkg/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, realtime feed and background loops",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	httpPort := getEnv("HTTP_PORT", cfg.Server.Port)

	slog.Info("Starting peerchat",
		"version", version.Full(),
		"go", version.GoVersion(),
		"http_port", httpPort,
		"config_dir", configDir)

	// 2. Database (migrations run on connect)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Session store
	sessionStore, recomputer, err := newSessionStore(cfg, dbClient)
	if err != nil {
		return err
	}

	// 4. Auth, notifications and domain services
	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret(), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	warnings := services.NewSystemWarningsService()

	var notifier *notify.Service
	if cfg.Slack.Enabled {
		notifier = notify.NewService(notify.ServiceConfig{
			Token:        cfg.Slack.Token(),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.Slack.DashboardURL,
		})
		notifier.SetWarnings(warnings)
	}

	publisher := events.NewEventPublisher(dbClient.DB())
	specialistService := services.NewSpecialistService(dbClient.DB(), cfg.Sessions.DefaultMaxSlots)
	sessionService := services.NewSessionService(sessionStore, specialistService, publisher, notifier)
	messageService := services.NewMessageService(sessionStore, publisher)
	proposalService := services.NewProposalService(dbClient.DB(), notifier)
	eventService := services.NewEventService(dbClient.DB())
	if recomputer == nil {
		recomputer = specialistService
	}
	slog.Info("Services initialized")

	// 5. Realtime feed
	connManager := events.NewConnectionManager(
		events.NewEventServiceAdapter(eventService),
		events.NewSessionAuthorizer(sessionService),
		cfg.Server.WSWriteTimeout,
	)
	notifyListener := events.NewNotifyListener(dbConfig.DSN(), connManager)
	notifyListener.SetHealthReporter(warnings)
	if err := notifyListener.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notify listener: %w", err)
	}
	defer notifyListener.Stop(context.Background())
	connManager.SetListener(notifyListener)
	slog.Info("Realtime feed initialized")

	// 6. Background loops
	if cfg.Scheduler.IsEnabled() {
		statusScheduler := scheduler.New(recomputer, cfg.Scheduler.StatusInterval, warnings)
		statusScheduler.Start(ctx)
		defer statusScheduler.Stop()
	}

	cleanupService := cleanup.NewService(cfg.Retention, proposalService, eventService)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 7. App state
	stateStore, err := appstate.New(cfg.AppState)
	if err != nil {
		return fmt.Errorf("failed to initialize app state store: %w", err)
	}
	defer func() {
		if err := stateStore.Close(); err != nil {
			slog.Error("Error closing app state store", "error", err)
		}
	}()

	// 8. HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpServer := api.NewServer(cfg, dbClient, tokens,
		sessionService, messageService, specialistService, proposalService, connManager)
	httpServer.SetAppStateStore(stateStore)
	httpServer.SetWarnings(warnings)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("peerchat started successfully", "config", cfg.Summary())

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var serveErr error
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case serveErr = <-errCh:
		slog.Error("Server error triggered shutdown", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return serveErr
}

// newSessionStore returns the configured store and, for Supabase, the
// recomputer that runs the status function remotely.
func newSessionStore(cfg *config.Config, dbClient *database.Client) (store.SessionStore, scheduler.StatusRecomputer, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSupabase:
		st, err := supabase.New(supabase.Config{
			URL:    cfg.Store.SupabaseURL(),
			APIKey: cfg.Store.SupabaseKey(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize supabase store: %w", err)
		}
		slog.Info("Using Supabase session store")
		return st, st, nil
	default:
		return store.NewPostgresStore(dbClient.DB()), nil, nil
	}
}
