package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chokun100/discord-music-bot/sys"
	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/time/rate"
)

var (
	// ErrSpawnFailed is returned when the ffmpeg process cannot be started.
	ErrSpawnFailed = errors.New("failed to spawn transcoder process")
	// ErrSourceUnavailable is returned when the media source cannot be opened.
	ErrSourceUnavailable = errors.New("media source unavailable")
)

// ffmpegArgs selects raw input on stdin and a 48kHz 128kbit Ogg/Opus
// elementary stream on stdout.
var ffmpegArgs = []string{
	"-i", "pipe:0",
	"-acodec", "libopus",
	"-f", "opus",
	"-ar", "48000",
	"-b:a", "128k",
	"pipe:1",
}

// Pipeline owns a source-fetch process (optional) chained into an ffmpeg
// transcoder process. The caller owns both handles and must Close them.
type Pipeline struct {
	source *exec.Cmd
	ffmpeg *exec.Cmd
	out    io.ReadCloser

	closeOnce sync.Once

	// Caps diagnostic stderr output from the children.
	stderrLimit *rate.Limiter
}

// OpenStream opens the source URL with yt-dlp requesting the best available
// combined audio track and pipes it through ffmpeg. Backpressure on the
// ffmpeg stdin propagates to the fetch through the pipe.
func OpenStream(ctx context.Context, ffmpegPath, url string) (*Pipeline, error) {
	source := ytdlp.New().
		Format("bestaudio/best").
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, url)
	source.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")

	srcOut, err := source.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	srcErr, _ := source.StderrPipe()

	p := &Pipeline{
		source:      source,
		stderrLimit: rate.NewLimiter(rate.Every(200*time.Millisecond), 20),
	}

	ffmpeg := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs...)
	ffmpeg.Stdin = srcOut
	ffOut, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	ffErr, _ := ffmpeg.StderrPipe()

	if err := source.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if err := ffmpeg.Start(); err != nil {
		_ = source.Process.Kill()
		go source.Wait()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	p.ffmpeg = ffmpeg
	p.out = ffOut
	sys.LogVoice(sys.MsgVoiceFFmpegSpawned, ffmpeg.Process.Pid)

	go p.scanStderr(srcErr, sys.MsgVoiceSourceStderr)
	go p.scanStderr(ffErr, sys.MsgVoiceFFmpegStderr)

	return p, nil
}

// OpenFile transcodes a local audio file through ffmpeg. Used by the
// diagnostic playback path.
func OpenFile(ctx context.Context, ffmpegPath, path string) (*Pipeline, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	args := append([]string{"-i", path}, ffmpegArgs[2:]...)
	ffmpeg := exec.CommandContext(ctx, ffmpegPath, args...)
	ffOut, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	ffErr, _ := ffmpeg.StderrPipe()

	if err := ffmpeg.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	p := &Pipeline{
		ffmpeg:      ffmpeg,
		out:         ffOut,
		stderrLimit: rate.NewLimiter(rate.Every(200*time.Millisecond), 20),
	}
	sys.LogVoice(sys.MsgVoiceFFmpegSpawned, ffmpeg.Process.Pid)

	go p.scanStderr(ffErr, sys.MsgVoiceFFmpegStderr)

	return p, nil
}

// Output is the transcoded Ogg/Opus byte stream.
func (p *Pipeline) Output() io.Reader {
	return p.out
}

// Close terminates both processes and reaps them. Safe to call more than
// once; later calls are no-ops.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		if p.source != nil && p.source.Process != nil {
			_ = p.source.Process.Kill()
		}
		if p.ffmpeg != nil && p.ffmpeg.Process != nil {
			_ = p.ffmpeg.Process.Kill()
		}
		if p.out != nil {
			_ = p.out.Close()
		}
		if p.source != nil {
			_ = p.source.Wait()
		}
		if p.ffmpeg != nil {
			_ = p.ffmpeg.Wait()
		}
	})
}

// scanStderr surfaces child diagnostics as non-fatal log lines, rate limited
// so a chatty transcoder cannot flood the console.
func (p *Pipeline) scanStderr(r io.Reader, format string) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if p.stderrLimit.Allow() {
			sys.LogVoice(format, scanner.Text())
		}
	}
}
