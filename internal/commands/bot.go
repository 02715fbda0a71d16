package commands

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/database"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/player"
)

const (
	colorInfo    = 0x7289DA
	colorSuccess = 0x00ff00
	colorWarning = 0xffa500
	colorError   = 0xff0000
	colorIdle    = 0x808080
)

// Messenger sends replies. *discordgo.Session implements it.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// HistoryReader reads recorded play history. *database.HistoryStore
// implements it.
type HistoryReader interface {
	RecentPlays(ctx context.Context, guildID string, limit int) ([]database.TrackPlay, error)
	GuildStats(ctx context.Context, guildID string) (*database.GuildStats, error)
}

// RetentionRunner prunes history on demand. *cron.RetentionManager
// implements it.
type RetentionRunner interface {
	RunNow(ctx context.Context) (*database.PruneStats, error)
	GetNextRun() time.Time
	GetSchedule() string
	LastRun() (time.Time, *database.PruneStats)
}

// VoiceChannelFinder returns the voice channel a user is in
type VoiceChannelFinder func(guildID, userID string) (string, error)

// BotOptions wires a Bot
type BotOptions struct {
	Messenger Messenger
	FindVoice VoiceChannelFinder
	Factory   ControllerFactory
	History   HistoryReader
	Retention RetentionRunner
	OwnerID   string
	Prefix    string
	Logger    pipeline.Logger
}

// Bot holds the per-guild players and what the commands need to drive them
type Bot struct {
	messenger Messenger
	findVoice VoiceChannelFinder
	factory   ControllerFactory
	history   HistoryReader
	retention RetentionRunner
	ownerID   string
	prefix    string
	logger    pipeline.Logger

	mu      sync.Mutex
	players map[string]*player.Controller
}

// NewBot creates a bot with no active players
func NewBot(opts BotOptions) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "!"
	}
	return &Bot{
		messenger: opts.Messenger,
		findVoice: opts.FindVoice,
		factory:   opts.Factory,
		history:   opts.History,
		retention: opts.Retention,
		ownerID:   opts.OwnerID,
		prefix:    prefix,
		logger:    logger.With(pipeline.String("component", "commands")),
		players:   make(map[string]*player.Controller),
	}
}

// Player returns guildID's registered controller
func (b *Bot) Player(guildID string) (*player.Controller, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ctrl, ok := b.players[guildID]
	return ctrl, ok
}

// Shutdown disconnects every guild's player
func (b *Bot) Shutdown() {
	b.mu.Lock()
	players := make([]*player.Controller, 0, len(b.players))
	for guildID, ctrl := range b.players {
		players = append(players, ctrl)
		delete(b.players, guildID)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, ctrl := range players {
		wg.Add(1)
		go func(ctrl *player.Controller) {
			defer wg.Done()
			ctrl.Disconnect()
		}(ctrl)
	}
	wg.Wait()
}

// unregister removes ctrl if it is still guildID's player, reporting
// whether it was
func (b *Bot) unregister(guildID string, ctrl *player.Controller) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.players[guildID] != ctrl {
		return false
	}
	delete(b.players, guildID)
	return true
}

func (b *Bot) send(channelID, content string) {
	if _, err := b.messenger.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Warn("Failed to send message", pipeline.String("channel_id", channelID), pipeline.Error(err))
	}
}

func (b *Bot) sendEmbed(channelID string, embed *discordgo.MessageEmbed) {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().Format(time.RFC3339)
	}
	if _, err := b.messenger.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.logger.Warn("Failed to send embed", pipeline.String("channel_id", channelID), pipeline.Error(err))
	}
}

func (b *Bot) sendEmbedMessage(channelID, title, description string, color int) {
	b.sendEmbed(channelID, &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
	})
}

// activePlayer returns the guild's player when it holds a session, replying
// "nothing is playing" otherwise
func (b *Bot) activePlayer(m *discordgo.MessageCreate) (*player.Controller, bool) {
	ctrl, ok := b.Player(m.GuildID)
	if !ok {
		b.sendEmbedMessage(m.ChannelID, "❌ Error", "Nothing is playing.", colorError)
		return nil, false
	}
	switch ctrl.State() {
	case player.StatePlaying, player.StatePaused, player.StateSkipping:
		return ctrl, true
	}
	b.sendEmbedMessage(m.ChannelID, "❌ Error", "Nothing is playing.", colorError)
	return nil, false
}
