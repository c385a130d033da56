package home

import (
	"context"
	"fmt"
	"os"

	"github.com/chokun100/discord-music-bot/proc"
	"github.com/chokun100/discord-music-bot/sys"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// TestFileName is the fixed local asset played by the diagnostic path.
const TestFileName = "test.mp3"

func init() {
	sys.RegisterMessageCommand("play", handlePlay)
}

func handlePlay(event *events.MessageCreate, args []string) {
	if len(args) == 0 {
		sys.Reply(event, sys.ReplyPlayUsage)
		return
	}

	guildID, channelID, ok := senderVoiceContext(event)
	if !ok {
		sys.Reply(event, sys.ReplyPlayNoVoice)
		return
	}

	if args[0] == "test" {
		playTestFile(event, guildID, channelID)
		return
	}
	playStream(event, guildID, channelID, args)
}

// senderVoiceContext resolves the voice channel the message author currently
// occupies. Absence is a precondition failure, not an error.
func senderVoiceContext(event *events.MessageCreate) (snowflake.ID, snowflake.ID, bool) {
	if event.GuildID == nil {
		return 0, 0, false
	}
	voiceState, ok := event.Client().Caches.VoiceState(*event.GuildID, event.Message.Author.ID)
	if !ok || voiceState.ChannelID == nil {
		return 0, 0, false
	}
	return *event.GuildID, *voiceState.ChannelID, true
}

func playStream(event *events.MessageCreate, guildID, channelID snowflake.ID, args []string) {
	ctx := context.Background()

	loc, err := proc.NewResolver().Resolve(ctx, args[0], args[1:]...)
	if err != nil {
		sys.LogError("Play command failed to resolve %q: %v", args[0], err)
		sys.Reply(event, sys.ReplyPlayError)
		return
	}

	pipe, err := proc.OpenStream(ctx, ffmpegPath(), loc.URL)
	if err != nil {
		sys.LogError("Play command failed to open pipeline for %s: %v", loc.URL, err)
		sys.Reply(event, sys.ReplyPlayError)
		return
	}

	sess := proc.GetVoiceManager().Acquire(ctx, event.Client().VoiceManager, guildID, channelID)
	if err := sess.Start(ctx, pipe); err != nil {
		sys.LogError("Play command failed to start session in guild %s: %v", guildID, err)
		sys.Reply(event, sys.ReplyPlayError)
		return
	}

	title := loc.Title
	if title == "" {
		title = loc.URL
	}
	sys.Reply(event, fmt.Sprintf(sys.ReplyNowPlaying, title))

	if err := <-sess.Done(); err != nil {
		sys.Reply(event, sys.ReplyPlaybackError)
		return
	}
	sys.Reply(event, sys.ReplyFinished)
}

// playTestFile streams the fixed local asset. The asset is checked before
// any connection or process is created.
func playTestFile(event *events.MessageCreate, guildID, channelID snowflake.ID) {
	ctx := context.Background()

	if _, err := os.Stat(TestFileName); err != nil {
		sys.Reply(event, sys.ReplyTestMissing)
		return
	}

	pipe, err := proc.OpenFile(ctx, ffmpegPath(), TestFileName)
	if err != nil {
		sys.LogError("Test playback failed to open pipeline: %v", err)
		sys.Reply(event, sys.ReplyTestFileError)
		return
	}

	sess := proc.GetVoiceManager().Acquire(ctx, event.Client().VoiceManager, guildID, channelID)
	if err := sess.Start(ctx, pipe); err != nil {
		sys.LogError("Test playback failed to start session in guild %s: %v", guildID, err)
		sys.Reply(event, sys.ReplyTestFileError)
		return
	}

	sys.Reply(event, sys.ReplyPlayingTest)

	if err := <-sess.Done(); err != nil {
		sys.Reply(event, sys.ReplyTestFileError)
		return
	}
	sys.Reply(event, sys.ReplyFinishedTest)
}

func ffmpegPath() string {
	if sys.GlobalConfig != nil && sys.GlobalConfig.FFmpegPath != "" {
		return sys.GlobalConfig.FFmpegPath
	}
	return "ffmpeg"
}
