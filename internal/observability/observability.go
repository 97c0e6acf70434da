// Package observability configures process-wide logging and log export.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ScopeName identifies this service's log records in OTel backends.
const ScopeName = "github.com/florianilch/dropbox-token-relay"

// Export selects where log records are exported besides the console.
type Export string

const (
	ExportNone     Export = "none"
	ExportStdout   Export = "stdout"
	ExportOTLPHTTP Export = "otlp-http"
	ExportOTLPGRPC Export = "otlp-grpc"
)

// Options configures Instrument.
type Options struct {
	Level  slog.Level
	Format string // text or json
	Export Export

	// Writer receives console output; defaults to os.Stderr.
	Writer io.Writer
}

// Instrument installs the default slog logger and, if requested, an OTel
// logger provider. The returned function flushes and shuts down exporters.
// OTLP exporters are configured through the standard OTEL_EXPORTER_OTLP_* variables.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var console slog.Handler
	switch opts.Format {
	case "", "text":
		console = slog.NewTextHandler(w, handlerOpts)
	case "json":
		console = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}

	noop := func(context.Context) error { return nil }

	exporter, err := newExporter(ctx, opts.Export)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		slog.SetDefault(slog.New(console))
		return noop, nil
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))),
	)
	global.SetLoggerProvider(provider)

	otelHandler := otelslog.NewHandler(ScopeName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(slogmulti.Fanout(console, otelHandler)))

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down logger provider: %w", err)
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, export Export) (sdklog.Exporter, error) {
	switch export {
	case "", ExportNone:
		return nil, nil
	case ExportStdout:
		return stdoutlog.New()
	case ExportOTLPHTTP:
		return otlploghttp.New(ctx)
	case ExportOTLPGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, errors.New("unsupported log export: " + string(export))
	}
}

// severity maps a slog level onto the OTel severity scale for minsev.
type severity slog.Level

// Compile-time check that severity implements minsev.Severitier.
var _ minsev.Severitier = severity(0)

func (s severity) Severity() otellog.Severity {
	switch l := slog.Level(s); {
	case l < slog.LevelInfo:
		return otellog.SeverityDebug
	case l < slog.LevelWarn:
		return otellog.SeverityInfo
	case l < slog.LevelError:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityError
	}
}
