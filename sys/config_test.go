package sys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DISCORD_TOKEN", "TOKEN", "COMMAND_PREFIX", "PREFIX", "FFMPEG_PATH", "DATABASE_PATH", "SILENT"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DISCORD_TOKEN", "token-value")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "token-value", cfg.Token)
	assert.Equal(t, "!", cfg.Prefix)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.NotEmpty(t, cfg.DatabasePath)
	assert.False(t, cfg.Silent)
}

func TestLoadConfigTokenFallback(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TOKEN", "legacy-token")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", cfg.Token)
}

func TestLoadConfigMissingToken(t *testing.T) {
	clearConfigEnv(t)

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DISCORD_TOKEN", "token-value")
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("DATABASE_PATH", "/tmp/bot.db")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "?", cfg.Prefix)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/tmp/bot.db", cfg.DatabasePath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Token: "t", Prefix: "!"}, false},
		{"missing token", Config{Prefix: "!"}, true},
		{"prefix with space", Config{Token: "t", Prefix: "! "}, true},
		{"prefix with tab", Config{Token: "t", Prefix: "\t"}, true},
		{"word prefix", Config{Token: "t", Prefix: "music!"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
