package proc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not real audio"), 0644))
	return path
}

func TestOpenFileMissingSource(t *testing.T) {
	_, err := OpenFile(context.Background(), "ffmpeg", filepath.Join(t.TempDir(), "missing.mp3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestOpenFileTranscoderNotFound(t *testing.T) {
	path := writeTempAudio(t)

	_, err := OpenFile(context.Background(), filepath.Join(t.TempDir(), "no-such-ffmpeg"), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailed)
}

func TestOpenFileSpawnsTranscoder(t *testing.T) {
	path := writeTempAudio(t)

	// Any reachable binary proves the spawn path; "true" exits immediately.
	p, err := OpenFile(context.Background(), "true", path)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotNil(t, p.Output())

	p.Close()
	p.Close()
}

func TestPipelineCloseIdempotent(t *testing.T) {
	p := &Pipeline{}
	p.Close()
	p.Close()
}
