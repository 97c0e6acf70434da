package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/florianilch/dropbox-token-relay/internal/identity"
)

const tracerName = "github.com/florianilch/dropbox-token-relay/internal/refresh"

// TimestampLayout formats the time in success notifications.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// Authenticator signs in to the identity provider.
type Authenticator interface {
	Authenticate(ctx context.Context) (identity.Session, error)
}

// TokenExchanger obtains a new access token.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context) (string, error)
}

// ValueWriter stores a value at a path on behalf of a session.
type ValueWriter interface {
	WriteValue(ctx context.Context, session identity.Session, path, value string) error
}

// Notifier delivers a text message to operators.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Recorder observes finished cycles and notification attempts.
type Recorder interface {
	RecordRun(result Result)
	RecordNotification(err error)
}

// Option configures a Procedure.
type Option func(*Procedure)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Procedure) {
		p.now = now
	}
}

// WithLocation sets the time zone of notification timestamps.
func WithLocation(loc *time.Location) Option {
	return func(p *Procedure) {
		p.location = loc
	}
}

// WithRecorder registers a Recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Procedure) {
		p.recorder = r
	}
}

// Procedure signs in, exchanges the refresh token, stores the access token and
// reports the outcome. Runs are independent; concurrent runs are not serialized.
type Procedure struct {
	path      string
	auth      Authenticator
	exchanger TokenExchanger
	writer    ValueWriter
	notifier  Notifier

	now      func() time.Time
	location *time.Location
	recorder Recorder
	tracer   trace.Tracer
}

// New creates a Procedure writing access tokens to path.
func New(path string, auth Authenticator, exchanger TokenExchanger, writer ValueWriter, notifier Notifier, opts ...Option) (*Procedure, error) {
	switch {
	case path == "":
		return nil, errors.New("missing token path")
	case auth == nil:
		return nil, errors.New("missing authenticator")
	case exchanger == nil:
		return nil, errors.New("missing token exchanger")
	case writer == nil:
		return nil, errors.New("missing value writer")
	case notifier == nil:
		return nil, errors.New("missing notifier")
	}

	p := &Procedure{
		path:      path,
		auth:      auth,
		exchanger: exchanger,
		writer:    writer,
		notifier:  notifier,
		now:       time.Now,
		location:  time.Local,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Run performs one cycle and reports it. It never returns an error: every
// outcome ends up in the notification, the logs and the returned Result.
func (p *Procedure) Run(ctx context.Context) Result {
	result := p.Refresh(ctx)
	if err := p.Report(ctx, result); err != nil {
		slog.ErrorContext(ctx, "failed to deliver refresh notification",
			"run_id", result.RunID,
			"outcome", result.Outcome.String(),
			"error", err,
		)
	}
	return result
}

// Refresh signs in, exchanges the refresh token and writes the access token.
// It stops at the first failing step and never notifies.
func (p *Procedure) Refresh(ctx context.Context) Result {
	result := Result{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	logger := slog.Default().With("run_id", result.RunID)

	ctx, span := p.tracer.Start(ctx, "refresh", trace.WithAttributes(
		attribute.String("refresh.run_id", result.RunID),
		attribute.String("refresh.path", p.path),
	))
	defer span.End()

	if err := p.refresh(ctx, logger); err != nil {
		result.Outcome = Failed
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Kind.String())
		logger.ErrorContext(ctx, "dropbox token refresh failed", "kind", err.Kind.String(), "error", err)
	} else {
		result.Outcome = Succeeded
		logger.InfoContext(ctx, "dropbox token refreshed", "path", p.path)
	}

	result.FinishedAt = p.now()
	if p.recorder != nil {
		p.recorder.RecordRun(result)
	}
	return result
}

func (p *Procedure) refresh(ctx context.Context, logger *slog.Logger) *Error {
	logger.InfoContext(ctx, "signing in to firebase")
	var session identity.Session
	err := p.step(ctx, "authenticate", func(ctx context.Context) error {
		var err error
		session, err = p.auth.Authenticate(ctx)
		return err
	})
	if err != nil {
		return classify(KindAuthentication, err)
	}
	logger.InfoContext(ctx, "signed in", "email", session.Email)

	logger.InfoContext(ctx, "refreshing dropbox token")
	var accessToken string
	err = p.step(ctx, "exchange_token", func(ctx context.Context) error {
		var err error
		accessToken, err = p.exchanger.ExchangeToken(ctx)
		return err
	})
	if err != nil {
		return classify(KindTokenExchange, err)
	}
	if accessToken == "" {
		return &Error{Kind: KindTokenExchange, Err: ErrNoAccessToken}
	}

	err = p.step(ctx, "write_value", func(ctx context.Context) error {
		return p.writer.WriteValue(ctx, session, p.path, accessToken)
	})
	if err != nil {
		return classify(KindNetwork, err)
	}
	logger.InfoContext(ctx, "dropbox token saved", "path", p.path)

	return nil
}

// step runs fn inside a child span.
func (p *Procedure) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	return nil
}

// Report sends exactly one notification describing result.
// A failed send is returned as a KindNotification error and never alters the result.
// Cancellation of ctx does not suppress the send; the notifier's HTTP timeout bounds it.
func (p *Procedure) Report(ctx context.Context, result Result) error {
	err := p.notifier.Notify(context.WithoutCancel(ctx), p.Message(result))
	if p.recorder != nil {
		p.recorder.RecordNotification(err)
	}
	if err != nil {
		return &Error{Kind: KindNotification, Err: err}
	}

	slog.InfoContext(ctx, "refresh notification sent", "run_id", result.RunID, "outcome", result.Outcome.String())
	return nil
}

// Message renders the notification text for result.
func (p *Procedure) Message(result Result) string {
	if result.Outcome == Succeeded {
		return fmt.Sprintf("✅ Dropbox Token Updated Successfully: %s", result.FinishedAt.In(p.location).Format(TimestampLayout))
	}

	reason := "unknown error"
	if result.Err != nil {
		reason = result.Err.Error()
	}
	return fmt.Sprintf("❌ Dropbox Token Update Failed: %s", reason)
}

// ErrNoAccessToken is reported when the exchanger hands back an empty token.
//
//nolint:staticcheck // text is relayed verbatim to operators
var ErrNoAccessToken = errors.New("Failed to refresh Dropbox token")
