package home

import (
	"context"

	"github.com/chokun100/discord-music-bot/proc"
	"github.com/chokun100/discord-music-bot/sys"
	"github.com/disgoorg/disgo/events"
)

func init() {
	sys.RegisterMessageCommand("leave", handleLeave)
}

func handleLeave(event *events.MessageCreate, _ []string) {
	guildID, _, ok := senderVoiceContext(event)
	if !ok {
		sys.Reply(event, sys.ReplyLeaveNoVoice)
		return
	}

	ctx := context.Background()
	if !proc.GetVoiceManager().Leave(ctx, guildID) {
		// No registered session; clear any stale gateway voice state.
		_ = event.Client().UpdateVoiceState(ctx, guildID, nil, false, false)
	}
	sys.Reply(event, sys.ReplyLeft)
}
