package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
)

// SkipCommand ends the current track
func (b *Bot) SkipCommand(m *discordgo.MessageCreate) {
	ctrl, ok := b.activePlayer(m)
	if !ok {
		return
	}

	if err := ctrl.Skip(); err != nil {
		b.logger.Warn("Skip rejected", pipeline.String("guild_id", m.GuildID), pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Nothing to skip.", colorError)
		return
	}

	b.sendEmbedMessage(m.ChannelID, "⏭️ Skipped", "Moving to the next track.", colorInfo)
}
