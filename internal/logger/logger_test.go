package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: FormatJSON, Level: slog.LevelInfo})

	log.Info("session started", "session_id", "rsession-1")

	assert.Contains(t, buf.String(), `"msg":"session started"`)
	assert.Contains(t, buf.String(), `"session_id":"rsession-1"`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestNew_FormatFromEnvironment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{name: "production uses json", environment: "production", wantJSON: true},
		{name: "development uses pretty", environment: "development", wantJSON: false},
		{name: "empty uses pretty", environment: "", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Writer: &buf, Environment: tt.environment})
			log.Info("hello")

			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"hello"`)
			} else {
				assert.Contains(t, buf.String(), "INF")
				assert.NotContains(t, buf.String(), `"msg"`)
			}
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: FormatPretty, Level: slog.LevelWarn})

	log.Info("quiet")
	log.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
	assert.Contains(t, buf.String(), "WRN")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "input %q", in)
	}
}

func TestPrettyHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.With("component", "sweeper").WithGroup("run").Debug("sweep done", "closed", 3, "note", "two words")

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "sweep done")
	assert.Contains(t, out, "component=sweeper")
	assert.Contains(t, out, "run.closed=3")
	assert.Contains(t, out, `run.note="two words"`)
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: FormatJSON})

	log.Component("retention").Info("evicted", "deleted", 2)

	assert.Contains(t, buf.String(), `"component":"retention"`)
	assert.Contains(t, buf.String(), `"deleted":2`)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.NotNil(t, log)
	assert.False(t, log.Enabled(t.Context(), slog.LevelError))
	log.Info("dropped")
}
