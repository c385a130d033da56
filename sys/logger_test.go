package sys

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripANSIWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewStripANSIWriter(&buf)

	input := []byte("\x1b[31mERROR\x1b[0m plain")
	n, err := w.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n, "reported length must cover the original bytes")
	assert.Equal(t, "ERROR plain", buf.String())
}

func TestBotLogHandlerSilent(t *testing.T) {
	var buf bytes.Buffer
	h := NewBotLogHandler(&buf, &BotLogHandlerOptions{Silent: true, Level: slog.LevelInfo})

	assert.False(t, h.Enabled(context.Background(), slog.LevelError))

	logger := slog.New(h)
	logger.Error("hidden")
	assert.Empty(t, buf.String())
}

func TestBotLogHandlerComponentTag(t *testing.T) {
	var buf bytes.Buffer
	h := NewBotLogHandler(&buf, &BotLogHandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(h)

	logger.Info("ready", slog.String("component", "voice"))

	out := buf.String()
	assert.Contains(t, out, "[VOICE]")
	assert.Contains(t, out, "ready")
}

func TestBotLogHandlerLevelFiltering(t *testing.T) {
	h := NewBotLogHandler(&bytes.Buffer{}, &BotLogHandlerOptions{Level: slog.LevelInfo})

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
