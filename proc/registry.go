package proc

import (
	"context"
	"sync"

	"github.com/chokun100/discord-music-bot/sys"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
)

// ConnProvider creates voice connections. *bot.Client's VoiceManager
// satisfies it.
type ConnProvider interface {
	CreateConn(guildID snowflake.ID) voice.Conn
}

var (
	VoiceManager *VoiceSystem
	OnceVoice    sync.Once
)

// VoiceSystem maps each guild to its single active playback session.
type VoiceSystem struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
}

// GetVoiceManager returns the singleton VoiceSystem instance.
func GetVoiceManager() *VoiceSystem {
	OnceVoice.Do(func() {
		VoiceManager = &VoiceSystem{sessions: make(map[snowflake.ID]*Session)}
	})
	return VoiceManager
}

// GetSession retrieves the active session for a guild, if any.
func (vs *VoiceSystem) GetSession(guildID snowflake.ID) *Session {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.sessions[guildID]
}

// Acquire registers a fresh session for the guild. An already-active session
// is replaced: stopped and fully released before the new one takes its slot.
func (vs *VoiceSystem) Acquire(ctx context.Context, conns ConnProvider, guildID, channelID snowflake.ID) *Session {
	vs.mu.Lock()
	old := vs.sessions[guildID]
	sess := NewSession(conns.CreateConn(guildID), guildID, channelID)
	sess.registry = vs
	vs.sessions[guildID] = sess
	vs.mu.Unlock()

	if old != nil {
		sys.LogVoice(sys.MsgVoiceReplacingSession, guildID)
		old.Close(ctx)
	}
	return sess
}

// Leave terminates and unregisters the guild's active session. Reports
// whether one existed.
func (vs *VoiceSystem) Leave(ctx context.Context, guildID snowflake.ID) bool {
	vs.mu.Lock()
	sess, ok := vs.sessions[guildID]
	if ok {
		delete(vs.sessions, guildID)
	}
	vs.mu.Unlock()

	if !ok {
		return false
	}
	sess.Close(ctx)
	return true
}

// Shutdown closes all active sessions and waits for their teardown.
func (vs *VoiceSystem) Shutdown(ctx context.Context) {
	vs.mu.Lock()
	sessions := make([]*Session, 0, len(vs.sessions))
	for id, sess := range vs.sessions {
		sessions = append(sessions, sess)
		delete(vs.sessions, id)
	}
	vs.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close(ctx)
		}(sess)
	}
	wg.Wait()
}

// release removes a session that ended on its own, unless it has already
// been replaced.
func (vs *VoiceSystem) release(s *Session) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.sessions[s.GuildID] == s {
		delete(vs.sessions, s.GuildID)
	}
}
