package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// HelpCommand lists the available commands
func (b *Bot) HelpCommand(m *discordgo.MessageCreate) {
	p := b.prefix
	b.sendEmbed(m.ChannelID, &discordgo.MessageEmbed{
		Title:       "📻 Radio",
		Description: "Plays the local playlist in your voice channel.",
		Color:       colorSuccess,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Radio | Created by latoulicious",
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Music Commands",
				Value: strings.Join([]string{
					"• `" + p + "play` / `" + p + "p` - Shuffle the playlist until every track has played",
					"• `" + p + "play loop` - Shuffle forever",
					"• `" + p + "nowplaying` / `" + p + "np` - Show the current track",
					"• `" + p + "skip` - Skip the current track",
					"• `" + p + "pause` / `" + p + "resume` - Pause or resume playback",
					"• `" + p + "stop` / `" + p + "leave` - Stop and leave the voice channel",
				}, "\n"),
			},
			{
				Name: "Information Commands",
				Value: strings.Join([]string{
					"• `" + p + "history [count]` - Show recently played tracks",
					"• `" + p + "help` / `" + p + "h` - Show this help message",
				}, "\n"),
			},
			{
				Name: "Owner Commands",
				Value: strings.Join([]string{
					"• `" + p + "utility retention` - Show history retention status",
					"• `" + p + "utility prune` - Prune old history now",
				}, "\n"),
			},
		},
	})
}
