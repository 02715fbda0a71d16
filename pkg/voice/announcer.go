package voice

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
	"golang.org/x/time/rate"
)

// ErrAnnounceThrottled is returned when announcements arrive faster than the
// configured rate
var ErrAnnounceThrottled = errors.New("announcement throttled")

// MessageSender posts channel messages. *discordgo.Session implements it.
type MessageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Announcer posts now-playing messages to a text channel
type Announcer struct {
	sender  MessageSender
	limiter *rate.Limiter
	logger  pipeline.Logger
}

// NewAnnouncer creates an announcer allowing cfg.Burst messages at once and
// one more every cfg.Interval
func NewAnnouncer(sender MessageSender, cfg pipeline.AnnounceConfig, logger pipeline.Logger) *Announcer {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Announcer{
		sender:  sender,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Announce sends text to channelID
func (a *Announcer) Announce(ctx context.Context, channelID, text string) error {
	if !a.limiter.Allow() {
		return ErrAnnounceThrottled
	}
	if _, err := a.sender.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	a.logger.Debug("Announced", pipeline.String("channel_id", channelID))
	return nil
}
