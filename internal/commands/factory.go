package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/catalog"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/player"
	"github.com/latoulicious/radio/pkg/transcode"
	"github.com/latoulicious/radio/pkg/voice"
)

// ControllerFactory builds a fresh controller for a guild, with its catalog
// loaded
type ControllerFactory func(guildID string) (*player.Controller, error)

// NewControllerFactory wires controllers to Discord voice and an ffmpeg
// transcoder
func NewControllerFactory(s *discordgo.Session, cfg *pipeline.PipelineConfig, observers []player.Observer, logger pipeline.Logger) ControllerFactory {
	launcher := transcode.NewExecLauncher(logger)

	return func(guildID string) (*player.Controller, error) {
		guildLogger := logger.With(pipeline.String("guild_id", guildID))

		cat, err := catalog.Load(cfg.Catalog.Directory,
			catalog.WithNamePrefix(cfg.Catalog.NamePrefix),
			catalog.WithExtensions(cfg.Catalog.Extensions...),
			catalog.WithDurationProbe(cfg.Catalog.ProbeDurations),
			catalog.WithLogger(guildLogger),
		)
		if err != nil {
			return nil, err
		}
		if cat.IsEmpty() {
			return nil, fmt.Errorf("%w: no tracks in %s", catalog.ErrEmpty, cfg.Catalog.Directory)
		}

		return player.NewController(cfg, player.Dependencies{
			GuildID:    guildID,
			Catalog:    cat,
			Sessions:   voice.NewProvider(s, guildID, cfg, guildLogger),
			Transcoder: transcode.NewManager(cfg.Transcoder, guildLogger, transcode.WithLauncher(launcher)),
			Announcer:  voice.NewAnnouncer(s, cfg.Announce, guildLogger),
			Observers:  observers,
			Metrics:    pipeline.NewPipelineMetricsCollector(guildID, guildLogger),
			Logger:     guildLogger,
		})
	}
}
