package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// NowPlayingCommand shows the track being played
func (b *Bot) NowPlayingCommand(m *discordgo.MessageCreate) {
	ctrl, ok := b.activePlayer(m)
	if !ok {
		return
	}

	track, playing := ctrl.NowPlaying()
	if !playing {
		b.sendEmbedMessage(m.ChannelID, "🎵 Now Playing", "Starting the next track...", colorInfo)
		return
	}

	duration := "unknown"
	if track.Duration > 0 {
		duration = track.Duration.Round(time.Second).String()
	}
	status := "▶️ Playing"
	if ctrl.Paused() {
		status = "⏸️ Paused"
	}
	mode := "Shuffle"
	if ctrl.Loop() {
		mode = "Loop"
	}

	b.sendEmbed(m.ChannelID, &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: fmt.Sprintf("**%s**", track.Name),
		Color:       colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Duration", Value: duration, Inline: true},
			{Name: "Status", Value: status, Inline: true},
			{Name: "Mode", Value: mode, Inline: true},
			{Name: "Remaining", Value: fmt.Sprintf("%d tracks", ctrl.Remaining()), Inline: true},
			{Name: "Uptime", Value: time.Since(ctrl.StartedAt()).Round(time.Second).String(), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Session " + ctrl.SessionID()},
	})
}
