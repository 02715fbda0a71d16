package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
)

const (
	defaultHistoryLimit = 5
	maxHistoryLimit     = 20
	historyQueryTimeout = 5 * time.Second
)

var outcomeIcons = map[string]string{
	"completed": "✅",
	"cancelled": "⏭️",
	"failed":    "❌",
}

// HistoryCommand lists the guild's most recent plays. An optional argument
// sets how many.
func (b *Bot) HistoryCommand(m *discordgo.MessageCreate, args []string) {
	if b.history == nil {
		b.sendEmbedMessage(m.ChannelID, "📜 History", "Play history is disabled.", colorIdle)
		return
	}

	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			b.sendEmbedMessage(m.ChannelID, "❌ Usage Error", fmt.Sprintf("Usage: `%shistory [count]`", b.prefix), colorError)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()

	plays, err := b.history.RecentPlays(ctx, m.GuildID, limit)
	if err != nil {
		b.logger.Error("Failed to read history", pipeline.String("guild_id", m.GuildID), pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Failed to read play history.", colorError)
		return
	}
	stats, err := b.history.GuildStats(ctx, m.GuildID)
	if err != nil {
		b.logger.Error("Failed to read history stats", pipeline.String("guild_id", m.GuildID), pipeline.Error(err))
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Failed to read play history.", colorError)
		return
	}

	if len(plays) == 0 {
		b.sendEmbedMessage(m.ChannelID, "📜 History", "Nothing has been played yet.", colorIdle)
		return
	}

	lines := make([]string, 0, len(plays))
	for _, p := range plays {
		icon, ok := outcomeIcons[p.Outcome]
		if !ok {
			icon = "•"
		}
		lines = append(lines, fmt.Sprintf("%s **%s** <t:%d:R>", icon, p.TrackName, p.StartedAt.Unix()))
	}

	b.sendEmbed(m.ChannelID, &discordgo.MessageEmbed{
		Title:       "📜 Recently Played",
		Description: strings.Join(lines, "\n"),
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Sessions", Value: strconv.FormatInt(stats.Sessions, 10), Inline: true},
			{Name: "Plays", Value: strconv.FormatInt(stats.Plays, 10), Inline: true},
			{Name: "Skipped", Value: strconv.FormatInt(stats.Skipped, 10), Inline: true},
			{Name: "Failed", Value: strconv.FormatInt(stats.Failed, 10), Inline: true},
			{Name: "Listened", Value: stats.Listened.Round(time.Second).String(), Inline: true},
		},
	})
}
