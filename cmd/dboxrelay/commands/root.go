package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/dropbox-token-relay/internal/app"
	"github.com/florianilch/dropbox-token-relay/internal/observability"
	"github.com/florianilch/dropbox-token-relay/internal/refresh"
	"github.com/florianilch/dropbox-token-relay/internal/tokenstore"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "dboxrelay",
		Usage: "Dropbox access token relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
		},
		Commands: []*cli.Command{
			startCommand(),
			refreshCommand(),
			secretsCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "serve the liveness endpoint and refresh on schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "schedule--cron",
				Usage: "refresh schedule (standard five-field cron)",
				Value: app.DefaultConfigScheduleCron,
			},
		},
		Action: startAction,
	}
}

func startAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := instrument(ctx, cfg)
	if err != nil {
		return err
	}
	defer flush(shutdown)

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "run a single refresh cycle and exit",
		Action: refreshAction,
	}
}

func refreshAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	shutdown, err := instrument(ctx, cfg)
	if err != nil {
		return err
	}
	defer flush(shutdown)

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	result := application.RunOnce(ctx)
	if result.Outcome != refresh.Succeeded {
		return fmt.Errorf("refresh %s failed (%s): %w", result.RunID, result.Kind(), result.Err)
	}

	slog.InfoContext(ctx, "refresh succeeded", "run_id", result.RunID, "duration", result.Duration())
	return nil
}

func secretsCommand() *cli.Command {
	return &cli.Command{
		Name:  "secrets",
		Usage: "manage stored secrets",
		Commands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "store the Dropbox refresh token (read from terminal or stdin)",
				Action: secretsSetAction,
			},
		},
	}
}

func secretsSetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := readConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cfg.Dropbox.RefreshToken.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to open %s token store: %w", cfg.Dropbox.RefreshToken.Storage, err)
	}

	token, err := readSecret(os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	if err := storeSecret(ctx, store, token); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stderr, "refresh token stored (%s)\n", cfg.Dropbox.RefreshToken.Storage)
	return nil
}

// storeSecret writes token to store, explaining read-only backends.
func storeSecret(ctx context.Context, store tokenstore.TokenStore, token string) error {
	if err := store.Write(ctx, token); err != nil {
		if errors.Is(err, tokenstore.ErrReadOnly) {
			return fmt.Errorf("%w; configure file or keyring storage to persist tokens", err)
		}
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// readSecret reads a single secret line. Terminal input is not echoed.
func readSecret(in io.Reader, prompt io.Writer) (string, error) {
	var raw string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Dropbox refresh token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading from terminal: %w", err)
		}
		raw = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading from stdin: %w", err)
		}
		raw = line
	}

	secret := strings.TrimSpace(raw)
	if secret == "" {
		return "", errors.New("refresh token cannot be empty")
	}
	return secret, nil
}

func instrument(ctx context.Context, cfg *app.Config) (func(context.Context) error, error) {
	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:  cfg.LogLevel,
		Format: string(cfg.LogFormat),
		Export: cfg.LogExport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	return shutdown, nil
}

// flush drains exported logs with a fresh context since ctx is usually cancelled by now.
func flush(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), app.DefaultConfigShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
}
