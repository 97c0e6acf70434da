package refresh

import (
	"context"
	"errors"
	"net"
	"time"
)

// Outcome is the terminal state of one refresh cycle. The zero value is
// OutcomeUnknown so an unfinished Result never reads as a success.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Kind classifies why a cycle or its notification failed.
type Kind int

const (
	KindNone Kind = iota
	KindAuthentication
	KindTokenExchange
	KindNetwork
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthentication:
		return "authentication_failure"
	case KindTokenExchange:
		return "token_exchange_failure"
	case KindNetwork:
		return "network_failure"
	case KindNotification:
		return "notification_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Its message is the message of the cause,
// which is what operators see in the failure notification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// classify attributes err to a failure kind. Transport-level errors and
// aborted contexts are network failures regardless of the step they happened in.
func classify(step Kind, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	return &Error{Kind: step, Err: err}
}

// Result describes one refresh cycle.
type Result struct {
	RunID      string
	Outcome    Outcome
	Err        *Error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Kind returns the failure kind, or KindNone for successful cycles.
func (r Result) Kind() Kind {
	if r.Err == nil {
		return KindNone
	}
	return r.Err.Kind
}

// Duration is the wall time the cycle took.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
