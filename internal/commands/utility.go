package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
)

const pruneTimeout = time.Minute

// UtilityCommand handles owner-only maintenance subcommands
func (b *Bot) UtilityCommand(m *discordgo.MessageCreate, args []string) {
	usage := "**Usage:** `" + b.prefix + "utility <subcommand>`\n**Available subcommands:**\n• `retention` - Show history retention status\n• `prune` - Prune old history now"
	if len(args) == 0 {
		b.send(m.ChannelID, "❌ Please specify a subcommand.\n\n"+usage)
		return
	}

	if b.ownerID == "" || m.Author.ID != b.ownerID {
		b.send(m.ChannelID, "❌ This command is restricted to the bot owner only.")
		return
	}
	if b.retention == nil {
		b.send(m.ChannelID, "❌ Play history is disabled.")
		return
	}

	switch strings.ToLower(args[0]) {
	case "retention":
		b.retentionStatus(m)
	case "prune":
		b.pruneNow(m)
	default:
		b.send(m.ChannelID, "❌ Unknown subcommand.\n\n"+usage)
	}
}

func (b *Bot) retentionStatus(m *discordgo.MessageCreate) {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Schedule", Value: "`" + b.retention.GetSchedule() + "`", Inline: true},
	}
	if next := b.retention.GetNextRun(); !next.IsZero() {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Next Run", Value: fmt.Sprintf("<t:%d:R>", next.Unix()), Inline: true})
	}

	last, stats := b.retention.LastRun()
	if last.IsZero() || stats == nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Last Run", Value: "Never", Inline: true})
	} else {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Last Run",
			Value:  fmt.Sprintf("<t:%d:R>: %d sessions, %d plays", last.Unix(), stats.Sessions, stats.Plays),
			Inline: false,
		})
	}

	b.sendEmbed(m.ChannelID, &discordgo.MessageEmbed{
		Title:  "🕐 History Retention",
		Color:  colorInfo,
		Fields: fields,
	})
}

func (b *Bot) pruneNow(m *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	stats, err := b.retention.RunNow(ctx)
	if err != nil {
		b.logger.Error("Manual prune failed", pipeline.Error(err))
		b.send(m.ChannelID, fmt.Sprintf("❌ Prune failed: %v", err))
		return
	}

	b.send(m.ChannelID, fmt.Sprintf("✅ Pruned %d sessions and %d plays in %s.",
		stats.Sessions, stats.Plays, stats.Duration.Round(time.Millisecond)))
}
