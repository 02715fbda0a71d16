package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
)

// PauseCommand pauses playback
func (b *Bot) PauseCommand(m *discordgo.MessageCreate) {
	ctrl, ok := b.activePlayer(m)
	if !ok {
		return
	}

	changed, err := ctrl.SetPaused(true)
	if err != nil {
		b.logger.Warn("Pause rejected", pipeline.String("guild_id", m.GuildID), pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Failed to pause playback.", colorError)
		return
	}
	if !changed {
		b.sendEmbedMessage(m.ChannelID, "⏸️ Already Paused", "Use `"+b.prefix+"resume` to continue.", colorWarning)
		return
	}

	b.sendEmbedMessage(m.ChannelID, "⏸️ Playback Paused", "Use `"+b.prefix+"resume` to continue.", colorWarning)
}
