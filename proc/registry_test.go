package proc

import (
	"context"
	"testing"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnProvider struct {
	created int
}

func (f *fakeConnProvider) CreateConn(guildID snowflake.ID) voice.Conn {
	f.created++
	return nil
}

func newTestVoiceSystem() *VoiceSystem {
	return &VoiceSystem{sessions: make(map[snowflake.ID]*Session)}
}

func TestAcquireRegistersSession(t *testing.T) {
	vs := newTestVoiceSystem()
	conns := &fakeConnProvider{}

	sess := vs.Acquire(context.Background(), conns, 100, 200)
	require.NotNil(t, sess)
	assert.Equal(t, snowflake.ID(100), sess.GuildID)
	assert.Equal(t, snowflake.ID(200), sess.ChannelID)
	assert.Equal(t, 1, conns.created)
	assert.Same(t, sess, vs.GetSession(100))
}

func TestAcquireReplacesActiveSession(t *testing.T) {
	vs := newTestVoiceSystem()
	conns := &fakeConnProvider{}

	old := vs.Acquire(context.Background(), conns, 100, 200)
	replacement := vs.Acquire(context.Background(), conns, 100, 201)

	assert.NotSame(t, old, replacement)
	assert.Same(t, replacement, vs.GetSession(100), "replacement owns the guild slot")
	assert.Equal(t, StateFinished, old.State(), "replaced session must be stopped")

	select {
	case err := <-old.Done():
		assert.NoError(t, err)
	default:
		t.Fatal("replaced session must resolve its Done channel")
	}
}

func TestAcquireIsolatesGuilds(t *testing.T) {
	vs := newTestVoiceSystem()
	conns := &fakeConnProvider{}

	a := vs.Acquire(context.Background(), conns, 1, 10)
	b := vs.Acquire(context.Background(), conns, 2, 20)

	assert.Same(t, a, vs.GetSession(1))
	assert.Same(t, b, vs.GetSession(2))
	assert.NotEqual(t, StateFinished, a.State(), "sessions in other guilds stay untouched")
}

func TestLeave(t *testing.T) {
	vs := newTestVoiceSystem()
	conns := &fakeConnProvider{}

	sess := vs.Acquire(context.Background(), conns, 100, 200)

	require.True(t, vs.Leave(context.Background(), 100))
	assert.Equal(t, StateFinished, sess.State())
	assert.Nil(t, vs.GetSession(100))

	assert.False(t, vs.Leave(context.Background(), 100), "second leave finds nothing")
	assert.False(t, vs.Leave(context.Background(), 999), "unknown guild has no session")
}

func TestSessionCloseReleasesRegistrySlot(t *testing.T) {
	vs := newTestVoiceSystem()
	conns := &fakeConnProvider{}

	sess := vs.Acquire(context.Background(), conns, 100, 200)
	sess.Close(context.Background())

	assert.Nil(t, vs.GetSession(100), "self-terminated session must vacate its slot")
}

func TestReleaseIgnoresReplacedSession(t *testing.T) {
	vs := newTestVoiceSystem()
	conns := &fakeConnProvider{}

	old := vs.Acquire(context.Background(), conns, 100, 200)
	replacement := vs.Acquire(context.Background(), conns, 100, 200)

	// Closing the stale session again must not evict its replacement.
	old.Close(context.Background())
	assert.Same(t, replacement, vs.GetSession(100))
}

func TestShutdownClosesAllSessions(t *testing.T) {
	vs := newTestVoiceSystem()
	conns := &fakeConnProvider{}

	a := vs.Acquire(context.Background(), conns, 1, 10)
	b := vs.Acquire(context.Background(), conns, 2, 20)

	vs.Shutdown(context.Background())

	assert.Equal(t, StateFinished, a.State())
	assert.Equal(t, StateFinished, b.State())
	assert.Nil(t, vs.GetSession(1))
	assert.Nil(t, vs.GetSession(2))
}

func TestGetVoiceManagerSingleton(t *testing.T) {
	assert.Same(t, GetVoiceManager(), GetVoiceManager())
}
