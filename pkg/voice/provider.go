package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/player"
)

// ErrUserNotInVoice is returned when the requesting user has no voice state
var ErrUserNotInVoice = errors.New("you must be in a voice channel to play music")

// Provider joins voice channels in one guild
type Provider struct {
	session *discordgo.Session
	guildID string
	retries int
	delay   time.Duration
	discord pipeline.DiscordConfig
	logger  pipeline.Logger
}

// NewProvider creates a session provider for guildID
func NewProvider(s *discordgo.Session, guildID string, cfg *pipeline.PipelineConfig, logger pipeline.Logger) *Provider {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Provider{
		session: s,
		guildID: guildID,
		retries: cfg.Session.ConnectRetries,
		delay:   cfg.Session.RetryDelay,
		discord: cfg.Discord,
		logger:  logger.With(pipeline.String("guild_id", guildID)),
	}
}

// Connect joins channelID and waits for the connection to become ready,
// retrying failed joins. It gives up when ctx is done.
func (p *Provider) Connect(ctx context.Context, channelID string) (player.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		vc, err := p.join(ctx, channelID)
		if err == nil {
			if err = waitReady(ctx, vc); err == nil {
				sink, serr := NewSink(vc, p.discord, p.logger)
				if serr != nil {
					vc.Disconnect()
					return nil, fmt.Errorf("failed to create opus encoder: %w", serr)
				}
				p.logger.Info("Voice connection ready", pipeline.String("channel_id", channelID))
				return &Connection{vc: vc, sink: sink}, nil
			}
			vc.Disconnect()
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("Voice join attempt failed",
			pipeline.Int("attempt", attempt),
			pipeline.Int("max_attempts", p.retries),
			pipeline.Error(err),
		)
		if attempt < p.retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * p.delay):
			}
		}
	}
	return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", p.retries, lastErr)
}

// join runs ChannelVoiceJoin, which has no context of its own. A join that
// completes after ctx is done is disconnected.
func (p *Provider) join(ctx context.Context, channelID string) (*discordgo.VoiceConnection, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vc, err := p.session.ChannelVoiceJoin(p.guildID, channelID, false, true)
		ch <- result{vc, err}
	}()

	select {
	case r := <-ch:
		return r.vc, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.vc != nil {
				r.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("voice connection not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Connection is a ready voice connection with its sink
type Connection struct {
	vc   *discordgo.VoiceConnection
	sink *Sink
}

// Sink returns the connection's Opus sink
func (c *Connection) Sink() player.Sink {
	return c.sink
}

// Disconnect leaves the voice channel
func (c *Connection) Disconnect() error {
	return c.vc.Disconnect()
}

// FindUserVoiceChannel returns the voice channel userID is connected to
func FindUserVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("could not find guild: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", ErrUserNotInVoice
}
