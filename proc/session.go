package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/chokun100/discord-music-bot/sys"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// SessionState tracks one playback session through its lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateArmed
	StateBuffering
	StatePlaying
	StateFinished
	StateErrored
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateArmed:
		return "armed"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Session owns one voice connection, one frame provider and the transcoding
// pipeline feeding it. All handles are released exactly once through Close,
// on terminal player state or on any unrecoverable error.
type Session struct {
	ID        uuid.UUID
	GuildID   snowflake.ID
	ChannelID snowflake.ID

	conn     voice.Conn
	pipe     *Pipeline
	provider *StreamProvider

	state atomic.Int32
	done  chan error

	finishOnce sync.Once
	closeOnce  sync.Once

	registry *VoiceSystem
}

func NewSession(conn voice.Conn, guildID, channelID snowflake.ID) *Session {
	return &Session{
		ID:        uuid.New(),
		GuildID:   guildID,
		ChannelID: channelID,
		conn:      conn,
		done:      make(chan error, 1),
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) transition(to SessionState) {
	from := SessionState(s.state.Swap(int32(to)))
	if from != to {
		sys.LogVoice(sys.MsgVoiceStateChange, s.ID, from, to)
	}
}

// Done delivers exactly one terminal result: nil after normal stream
// exhaustion or an explicit stop, an error after a playback failure.
func (s *Session) Done() <-chan error {
	return s.done
}

// Start opens the voice connection, waits for it to become ready and wires
// the pipeline output into the opus frame provider. On any error the
// pipeline is released before returning.
func (s *Session) Start(ctx context.Context, pipe *Pipeline) error {
	s.transition(StateConnecting)
	s.pipe = pipe

	sys.LogVoice(sys.MsgVoiceJoining, s.ChannelID, s.GuildID)
	if err := s.conn.Open(ctx, s.ChannelID, false, false); err != nil {
		sys.LogVoice(sys.MsgVoiceJoinFail, s.GuildID, err)
		s.Close(ctx)
		return fmt.Errorf("failed to join voice channel: %w", err)
	}
	s.transition(StateArmed)

	p := NewStreamProvider(pipe.Output())
	p.OnFirstFrame = func() {
		s.transition(StatePlaying)
	}
	p.OnFinish = func(err error) {
		if err != nil {
			s.transition(StateErrored)
			sys.LogVoice(sys.MsgVoicePlaybackError, s.ID, err)
		} else {
			s.transition(StateFinished)
			sys.LogVoice(sys.MsgVoicePlaybackFinished, s.ID)
		}
		s.finish(err)
		s.Close(context.Background())
	}
	s.provider = p

	s.conn.SetOpusFrameProvider(p)
	if err := s.conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone); err != nil {
		s.Close(ctx)
		return fmt.Errorf("failed to set speaking flag: %w", err)
	}
	s.transition(StateBuffering)

	return nil
}

func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		s.done <- err
	})
}

// Close releases every held resource: provider, speaking flag, voice
// connection and pipeline processes. Best effort, idempotent; teardown
// failures are logged and never surfaced. A session closed before reaching
// a terminal state counts as a normal stop.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		switch s.State() {
		case StateFinished, StateErrored:
		default:
			s.transition(StateFinished)
		}

		if s.conn != nil {
			s.conn.SetOpusFrameProvider(nil)
			if err := s.conn.SetSpeaking(ctx, 0); err != nil {
				sys.LogVoice(sys.MsgVoiceTeardownError, s.ID, err)
			}
			s.conn.Close(ctx)
		}
		if s.pipe != nil {
			s.pipe.Close()
		}
		if s.registry != nil {
			s.registry.release(s)
		}
		s.finish(nil)
	})
}

// --- Opus Frame Provider ---

// StreamProvider parses an Ogg/Opus byte stream into raw opus packets for
// the voice connection.
type StreamProvider struct {
	reader    *bufio.Reader
	header    []byte
	segBuf    []byte
	packetBuf bytes.Buffer
	queue     [][]byte

	OnFirstFrame func()
	OnFinish     func(err error)

	firstOnce  sync.Once
	finishOnce sync.Once
}

func NewStreamProvider(r io.Reader) *StreamProvider {
	return &StreamProvider{
		reader: bufio.NewReaderSize(r, 16384),
		header: make([]byte, 27),
		segBuf: make([]byte, 255),
	}
}

func (p *StreamProvider) Close() {
	p.triggerFinish(io.EOF)
}

func (p *StreamProvider) triggerFinish(err error) {
	p.finishOnce.Do(func() {
		if p.OnFinish == nil {
			return
		}
		// Stream exhaustion is the normal terminal condition.
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
			p.OnFinish(nil)
			return
		}
		p.OnFinish(err)
	})
}

func (p *StreamProvider) deliver(frame []byte) []byte {
	p.firstOnce.Do(func() {
		if p.OnFirstFrame != nil {
			p.OnFirstFrame()
		}
	})
	return frame
}

// ProvideOpusFrame parses the next opus packet from the Ogg stream.
func (p *StreamProvider) ProvideOpusFrame() ([]byte, error) {
	// 1. Return queued packets if any
	if len(p.queue) > 0 {
		frame := p.queue[0]
		p.queue = p.queue[1:]
		return p.deliver(frame), nil
	}

scanLoop:
	for {
		sig, err := p.reader.Peek(4)
		if err != nil {
			p.triggerFinish(err)
			return nil, err
		}

		if string(sig) == "OggS" {
			if _, err := io.ReadFull(p.reader, p.header); err != nil {
				p.triggerFinish(err)
				return nil, err
			}
		} else {
			_, _ = p.reader.Discard(1)
			continue scanLoop
		}

		numSegs := int(p.header[26])
		segTable := p.segBuf[:numSegs]
		if _, err := io.ReadFull(p.reader, segTable); err != nil {
			p.triggerFinish(err)
			return nil, err
		}

		for _, segLen := range segTable {
			l := int(segLen)
			if _, err := io.CopyN(&p.packetBuf, p.reader, int64(l)); err != nil {
				p.triggerFinish(err)
				return nil, err
			}

			if l < 255 {
				payload := p.packetBuf.Bytes()
				frame := make([]byte, len(payload))
				copy(frame, payload)
				p.packetBuf.Reset()

				// Skip metadata packets (OpusHead/OpusTags).
				if len(frame) > 8 && (string(frame[:8]) == "OpusHead" || string(frame[:8]) == "OpusTags") {
					continue
				}

				p.queue = append(p.queue, frame)
			}
		}

		// If this page yielded any frames, return the first one.
		if len(p.queue) > 0 {
			frame := p.queue[0]
			p.queue = p.queue[1:]
			return p.deliver(frame), nil
		}
	}
}
