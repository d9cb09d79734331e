package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Test", "debug message")
	Info("Test", "info message")
	Warn("Test", "warn message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
}

func TestErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Test", assertError{"boom"}, "operation failed")

	require.Contains(t, buf.String(), "boom")
	require.Contains(t, buf.String(), "operation failed")
}

func TestTruncateSessionID(t *testing.T) {
	assert.Equal(t, "short", TruncateSessionID("short"))
	assert.Equal(t, "abcdefgh...", TruncateSessionID("abcdefghijklmnop"))
}

func TestAuditEventFormatting(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Audit(AuditEvent{
		Action:    "token_refresh",
		Outcome:   "success",
		SessionID: "abcdefghijklmnop",
		Target:    "github-mcp",
	})

	out := buf.String()
	assert.True(t, strings.Contains(out, "[AUDIT]"))
	assert.True(t, strings.Contains(out, "action=token_refresh"))
	assert.True(t, strings.Contains(out, "session=abcdefgh..."))
	assert.False(t, strings.Contains(out, "abcdefghijklmnop"))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
