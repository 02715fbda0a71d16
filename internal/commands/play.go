package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/catalog"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/player"
	"github.com/latoulicious/radio/pkg/voice"
)

// PlayCommand starts shuffled playback of the catalog in the caller's voice
// channel. "loop" keeps played tracks eligible.
func (b *Bot) PlayCommand(m *discordgo.MessageCreate, args []string) {
	guildID := m.GuildID
	loop := len(args) > 0 && strings.EqualFold(args[0], "loop")

	voiceChannelID, err := b.findVoice(guildID, m.Author.ID)
	if err != nil {
		if errors.Is(err, voice.ErrUserNotInVoice) {
			b.sendEmbedMessage(m.ChannelID, "❌ Error", "You must be in a voice channel to use this command.", colorError)
			return
		}
		b.logger.Warn("Failed to look up voice channel", pipeline.String("guild_id", guildID), pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Could not determine your voice channel.", colorError)
		return
	}

	// a registered Idle controller is still being started by another !play
	b.mu.Lock()
	if existing, ok := b.players[guildID]; ok {
		if existing.State() != player.StateDisconnected {
			b.mu.Unlock()
			b.sendEmbedMessage(m.ChannelID, "⚠️ Already Playing", fmt.Sprintf("Use `%sskip` or `%sstop`.", b.prefix, b.prefix), colorWarning)
			return
		}
		delete(b.players, guildID)
	}
	b.mu.Unlock()

	ctrl, err := b.factory(guildID)
	if err != nil {
		if errors.Is(err, catalog.ErrEmpty) {
			b.sendEmbedMessage(m.ChannelID, "📭 Empty Playlist", "There are no tracks to play.", colorWarning)
			return
		}
		b.logger.Error("Failed to create player", pipeline.String("guild_id", guildID), pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Failed to load the playlist.", colorError)
		return
	}

	b.mu.Lock()
	if existing, ok := b.players[guildID]; ok && existing.State() != player.StateDisconnected {
		b.mu.Unlock()
		b.sendEmbedMessage(m.ChannelID, "⚠️ Already Playing", fmt.Sprintf("Use `%sskip` or `%sstop`.", b.prefix, b.prefix), colorWarning)
		return
	}
	b.players[guildID] = ctrl
	b.mu.Unlock()

	mode := "shuffle"
	if loop {
		mode = "loop"
	}
	b.sendEmbedMessage(m.ChannelID, "📻 Starting Radio",
		fmt.Sprintf("Playing %d tracks in %s mode.", ctrl.Remaining(), mode), colorInfo)

	if err := ctrl.Play(context.Background(), voiceChannelID, m.ChannelID, loop); err != nil {
		b.unregister(guildID, ctrl)
		// !stop won the race and already answered
		if errors.Is(err, player.ErrDisconnected) || errors.Is(err, player.ErrAlreadyPlaying) {
			return
		}
		b.logger.Error("Failed to start playback",
			pipeline.String("guild_id", guildID),
			pipeline.String("channel_id", voiceChannelID),
			pipeline.Error(err),
		)
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Failed to join your voice channel.", colorError)
		return
	}

	go b.watch(guildID, m.ChannelID, ctrl)
}

// watch reports a session that ended on its own
func (b *Bot) watch(guildID, channelID string, ctrl *player.Controller) {
	<-ctrl.Done()
	if !b.unregister(guildID, ctrl) {
		return
	}

	if err := ctrl.Err(); err != nil {
		b.sendEmbedMessage(channelID, "❌ Playback Stopped", err.Error(), colorError)
		return
	}
	b.sendEmbedMessage(channelID, "📭 Playlist Finished", "Every track has been played.", colorIdle)
}
