package sys

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDatabase(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot_test.db")
	require.NoError(t, InitDatabase(context.Background(), path))
	t.Cleanup(CloseDatabase)
}

func TestBotConfigRoundTrip(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	val, err := GetBotConfig(ctx, "cached_bot_name")
	require.NoError(t, err)
	assert.Empty(t, val, "unknown keys read as empty, not as an error")

	require.NoError(t, SetBotConfig(ctx, "cached_bot_name", "melody"))

	val, err = GetBotConfig(ctx, "cached_bot_name")
	require.NoError(t, err)
	assert.Equal(t, "melody", val)
}

func TestBotConfigUpsert(t *testing.T) {
	setupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, SetBotConfig(ctx, "cached_bot_id", "111"))
	require.NoError(t, SetBotConfig(ctx, "cached_bot_id", "222"))

	val, err := GetBotConfig(ctx, "cached_bot_id")
	require.NoError(t, err)
	assert.Equal(t, "222", val)
}
