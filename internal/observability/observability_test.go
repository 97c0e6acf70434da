package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	slogmulti "github.com/samber/slog-multi"
	otellog "go.opentelemetry.io/otel/log"

	"github.com/florianilch/dropbox-token-relay/internal/refresh"
)

func TestInstrumentConsoleFormats(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{
			format: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "run_id=r1") {
					t.Errorf("text output = %q", out)
				}
			},
		},
		{
			format: "json",
			check: func(t *testing.T, out string) {
				var rec map[string]any
				if err := json.Unmarshal([]byte(out), &rec); err != nil {
					t.Fatalf("json output %q: %v", out, err)
				}
				if rec["msg"] != "hello" || rec["run_id"] != "r1" {
					t.Errorf("json record = %v", rec)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelInfo, Format: tt.format, Writer: &buf})
			if err != nil {
				t.Fatalf("Instrument: %v", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			slog.Debug("hidden")
			slog.Info("hello", "run_id", "r1")

			out := strings.TrimSpace(buf.String())
			if strings.Contains(out, "hidden") {
				t.Errorf("debug record emitted at info level: %q", out)
			}
			tt.check(t, out)
		})
	}
}

func TestInstrumentRejectsUnknownSettings(t *testing.T) {
	if _, err := Instrument(context.Background(), Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := Instrument(context.Background(), Options{Format: "text", Export: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown export")
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  otellog.Severity
	}{
		{slog.LevelDebug, otellog.SeverityDebug},
		{slog.LevelInfo, otellog.SeverityInfo},
		{slog.LevelWarn, otellog.SeverityWarn},
		{slog.LevelError, otellog.SeverityError},
		{slog.LevelError + 4, otellog.SeverityError},
	}

	for _, tt := range tests {
		if got := severity(tt.level).Severity(); got != tt.want {
			t.Errorf("severity(%s) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestFanoutRespectsHandlerLevels(t *testing.T) {
	var infoBuf, errBuf bytes.Buffer
	logger := slog.New(slogmulti.Fanout(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)).With("component", "test")

	logger.Info("routine")
	logger.Error("broken")

	if !strings.Contains(infoBuf.String(), "routine") || !strings.Contains(infoBuf.String(), "broken") {
		t.Errorf("info handler output = %q", infoBuf.String())
	}
	if strings.Contains(errBuf.String(), "routine") || !strings.Contains(errBuf.String(), "broken") {
		t.Errorf("error handler output = %q", errBuf.String())
	}
	if !strings.Contains(errBuf.String(), "component=test") {
		t.Errorf("attrs not propagated: %q", errBuf.String())
	}
}

func TestMetricsRecordRun(t *testing.T) {
	m := NewMetrics()

	m.RecordRun(refresh.Result{Outcome: refresh.Succeeded})
	m.RecordRun(refresh.Result{Outcome: refresh.Failed, Err: &refresh.Error{Kind: refresh.KindAuthentication, Err: errors.New("x")}})
	m.RecordNotification(nil)
	m.RecordNotification(errors.New("down"))

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	counts := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				key := mf.GetName()
				for _, lp := range metric.GetLabel() {
					key += "," + lp.GetName() + "=" + lp.GetValue()
				}
				counts[key] = c.GetValue()
			}
		}
	}

	want := map[string]float64{
		"dboxrelay_refresh_runs_total,kind=none,outcome=succeeded":                1,
		"dboxrelay_refresh_runs_total,kind=authentication_failure,outcome=failed": 1,
		"dboxrelay_notifications_total,result=sent":                               1,
		"dboxrelay_notifications_total,result=failed":                             1,
	}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("%s = %v, want %v", k, counts[k], v)
		}
	}
}
