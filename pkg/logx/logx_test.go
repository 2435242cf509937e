package logx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/logx"
)

func newTestLogger(format logx.Format) (*logx.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	cfg := logx.DefaultConfig()
	cfg.Format = format
	cfg.EnableColors = false
	cfg.Output = &buf
	return logx.NewLogger(cfg), &buf
}

func TestConsoleSortsFields(t *testing.T) {
	l, buf := newTestLogger(logx.FormatConsole)

	l.WithFields(logx.Fields{"zeta": 1, "alpha": "a"}).Info("mailq: batch done")

	out := buf.String()
	if !strings.Contains(out, "[INFO ] mailq: batch done alpha=a zeta=1") {
		t.Fatalf("unexpected console line: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newTestLogger(logx.FormatConsole)
	l.SetLevel(logx.LevelWarn)

	l.WithField("k", "v").Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}

	l.WithField("k", "v").Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("expected warn line")
	}
}

func TestJSONIncludesErrorAndRequestID(t *testing.T) {
	l, buf := newTestLogger(logx.FormatJSON)
	ctx := context.WithValue(context.Background(), kernel.RequestIDKey, "req-123")

	l.WithError(errors.New("smtp down")).WithContext(ctx).Error("notifx: send failed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json line %q: %v", buf.String(), err)
	}
	if line["error"] != "smtp down" || line["request_id"] != "req-123" || line["level"] != "ERROR" {
		t.Fatalf("unexpected json line: %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logx.Level{
		"debug":   logx.LevelDebug,
		"WARNING": logx.LevelWarn,
		"error":   logx.LevelError,
		"bogus":   logx.LevelInfo,
	}
	for in, want := range cases {
		if got := logx.ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
