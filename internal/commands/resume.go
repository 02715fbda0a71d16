package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
)

// ResumeCommand resumes paused playback
func (b *Bot) ResumeCommand(m *discordgo.MessageCreate) {
	ctrl, ok := b.activePlayer(m)
	if !ok {
		return
	}

	changed, err := ctrl.SetPaused(false)
	if err != nil {
		b.logger.Warn("Resume rejected", pipeline.String("guild_id", m.GuildID), pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Failed to resume playback.", colorError)
		return
	}
	if !changed {
		b.sendEmbedMessage(m.ChannelID, "▶️ Not Paused", "Playback is already running.", colorWarning)
		return
	}

	b.sendEmbedMessage(m.ChannelID, "▶️ Playback Resumed", "", colorSuccess)
}
