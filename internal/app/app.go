package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/dropbox-token-relay/internal/identity"
	"github.com/florianilch/dropbox-token-relay/internal/notify"
	"github.com/florianilch/dropbox-token-relay/internal/observability"
	"github.com/florianilch/dropbox-token-relay/internal/refresh"
	"github.com/florianilch/dropbox-token-relay/internal/scheduler"
	"github.com/florianilch/dropbox-token-relay/internal/server"
	"github.com/florianilch/dropbox-token-relay/internal/tokensource"
	"github.com/florianilch/dropbox-token-relay/internal/tokenstore"
)

// App orchestrates the liveness server, the scheduler and the refresh procedure.
type App struct {
	cfg       *Config
	procedure *refresh.Procedure
	notifier  refresh.Notifier
	server    *server.Server
	scheduler *scheduler.Scheduler
}

// New creates a new App instance. No network I/O is performed.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	var serverOpts []server.Option
	procedureOpts := []refresh.Option{refresh.WithLocation(loc)}
	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics()
		procedureOpts = append(procedureOpts, refresh.WithRecorder(metrics))
		serverOpts = append(serverOpts, server.WithMetrics(cfg.Metrics.Path, metrics.Handler()))
	}

	procedure, err := newProcedure(ctx, cfg, notifier, procedureOpts...)
	if err != nil {
		return nil, err
	}

	srv, err := server.New(serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &App{
		cfg:       cfg,
		procedure: procedure,
		notifier:  notifier,
		server:    srv,
		scheduler: scheduler.New(loc, slog.Default()),
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting liveness server", "address", address)
	serverErrCh, err := a.server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	a.announce(gCtx)

	if err := a.scheduler.Add("dropbox-token-refresh", a.cfg.Schedule.Cron, a.runProcedure); err != nil {
		return errors.Join(fmt.Errorf("scheduler setup failed: %w", err), a.server.Shutdown(context.Background()))
	}
	a.scheduler.Start(gCtx)
	shutdownFuncs = append(shutdownFuncs, a.scheduler.Stop)
	slog.InfoContext(gCtx, "refresh scheduled", "cron", a.cfg.Schedule.Cron, "next", a.scheduler.Next())

	if !a.cfg.Schedule.SkipStartupRun {
		g.Go(func() error {
			a.runProcedure(gCtx)
			return nil
		})
	}

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// RunOnce performs a single refresh cycle including its notification.
func (a *App) RunOnce(ctx context.Context) refresh.Result {
	return a.procedure.Run(ctx)
}

func (a *App) runProcedure(ctx context.Context) {
	result := a.procedure.Run(ctx)
	slog.DebugContext(ctx, "refresh cycle finished",
		"run_id", result.RunID,
		"outcome", result.Outcome.String(),
		"duration", result.Duration(),
	)
}

// announce reports the server start. Failures are logged only.
func (a *App) announce(ctx context.Context) {
	if a.cfg.Telegram.SilentStartup {
		return
	}

	text := fmt.Sprintf("✅ Server started on port %d", a.cfg.Server.Port)
	if err := a.notifier.Notify(ctx, text); err != nil {
		slog.ErrorContext(ctx, "failed to send startup notification", "error", err)
		return
	}
	slog.InfoContext(ctx, "startup notification sent")
}

func newNotifier(cfg *Config) (*notify.Telegram, error) {
	return notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		notify.WithBaseURL(cfg.Telegram.BaseURL),
		notify.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
	)
}

// newProcedure wires the refresh procedure's collaborators from configuration.
func newProcedure(ctx context.Context, cfg *Config, notifier refresh.Notifier, opts ...refresh.Option) (*refresh.Procedure, error) {
	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}

	identityOpts := []identity.Option{
		identity.WithAppID(cfg.Firebase.AppID),
		identity.WithHTTPClient(httpClient),
	}
	if cfg.Firebase.AuthEndpoint != "" {
		identityOpts = append(identityOpts, identity.WithEndpoint(cfg.Firebase.AuthEndpoint))
	}
	auth, err := identity.NewFirebase(ctx, cfg.Firebase.APIKey,
		identity.Credentials{Email: cfg.Firebase.Email, Password: cfg.Firebase.Password},
		identityOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	store, err := cfg.Dropbox.RefreshToken.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token store: %w", err)
	}

	endpoint := tokensource.Endpoint
	endpoint.TokenURL = cfg.Dropbox.TokenURL
	exchanger, err := tokensource.NewExchanger(cfg.Dropbox.ClientID, cfg.Dropbox.ClientSecret, store,
		tokensource.WithEndpoint(endpoint),
		tokensource.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token exchanger: %w", err)
	}

	writer, err := tokenstore.NewFirebaseStore(cfg.Firebase.DatabaseURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create database writer: %w", err)
	}

	procedure, err := refresh.New(cfg.Firebase.TokenPath, auth, exchanger, writer, notifier, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh procedure: %w", err)
	}
	return procedure, nil
}

// Compile-time checks that the wired collaborators satisfy the procedure's interfaces.
var (
	_ refresh.Authenticator  = (*identity.Firebase)(nil)
	_ refresh.TokenExchanger = (*tokensource.Exchanger)(nil)
	_ refresh.ValueWriter    = (*tokenstore.FirebaseStore)(nil)
	_ refresh.Notifier       = (*notify.Telegram)(nil)
)
