package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerJSONOutput(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LOG_LEVEL", "")

	var buf bytes.Buffer
	l := newZerologLogger("central", &buf)
	require.NotNil(t, l)

	l.Infof("listening on %s", ":5000")
	out := buf.String()
	assert.Contains(t, out, `"component":"central"`)
	assert.Contains(t, out, "listening on :5000")
}

func TestZerologLoggerLevelFilter(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	l := newZerologLogger("cp", &buf)

	l.Infof("filtered out")
	l.Debugw("filtered too", map[string]any{"k": 1})
	assert.Empty(t, buf.String())

	l.Warnf("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestZerologLoggerConsoleMode(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	l := newZerologLogger("driver", &buf)

	l.Debugf("debug %d", 1)
	l.Errorf("boom")
	out := buf.String()
	assert.Contains(t, out, "debug 1")
	assert.Contains(t, out, "boom")
}
