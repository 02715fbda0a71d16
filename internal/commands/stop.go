package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
)

// StopCommand stops playback and leaves the voice channel
func (b *Bot) StopCommand(m *discordgo.MessageCreate) {
	b.mu.Lock()
	ctrl, ok := b.players[m.GuildID]
	delete(b.players, m.GuildID)
	b.mu.Unlock()

	if !ok {
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Not connected to a voice channel.", colorError)
		return
	}

	if err := ctrl.Disconnect(); err != nil {
		b.logger.Warn("Disconnect reported an error", pipeline.String("guild_id", m.GuildID), pipeline.Error(err))
	}

	b.sendEmbedMessage(m.ChannelID, "⏹️ Stopped", "Left the voice channel.", colorIdle)
}
