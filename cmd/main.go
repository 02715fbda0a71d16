package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/internal/commands"
	"github.com/latoulicious/radio/internal/config"
	"github.com/latoulicious/radio/internal/handlers"
	"github.com/latoulicious/radio/internal/presence"
	"github.com/latoulicious/radio/pkg/cron"
	"github.com/latoulicious/radio/pkg/database"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/player"
	"github.com/latoulicious/radio/pkg/voice"
)

const presenceRefresh = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := pipeline.NewStructuredLogger(cfg.Pipeline.Logging)
	pipeline.NewStdLogAdapter(logger.With(pipeline.String("source", "stdlib"))).SetAsStdLogger()

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("Failed to create Discord session", pipeline.Error(err))
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	presenceManager := presence.NewPresenceManager(dg, logger)
	observers := []player.Observer{presenceManager}

	var (
		history   *database.HistoryStore
		retention *cron.RetentionManager
	)
	if cfg.Pipeline.History.Enabled {
		dbConfig := database.DefaultDatabaseConfig()
		dbConfig.DatabasePath = cfg.Pipeline.History.DatabasePath

		history, err = database.OpenHistoryStore(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to open history store", pipeline.Error(err))
		}
		observers = append(observers, history)

		retention, err = cron.NewRetentionManager(history, cfg.Pipeline.History, logger)
		if err != nil {
			logger.Fatal("Failed to create retention manager", pipeline.Error(err))
		}
	}

	opts := commands.BotOptions{
		Messenger: dg,
		FindVoice: func(guildID, userID string) (string, error) {
			return voice.FindUserVoiceChannel(dg, guildID, userID)
		},
		Factory: commands.NewControllerFactory(dg, cfg.Pipeline, observers, logger),
		OwnerID: cfg.OwnerID,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	}
	// Typed nils must not reach the interfaces
	if history != nil {
		opts.History = history
		opts.Retention = retention
	}
	bot := commands.NewBot(opts)

	dg.AddHandler(handlers.NewMessageHandler(bot, cfg.Prefix).Handle)

	// Open a websocket connection to Discord and begin listening.
	if err := dg.Open(); err != nil {
		logger.Fatal("Failed to open Discord session", pipeline.Error(err))
	}

	presenceManager.UpdateDefaultPresence()
	presenceManager.StartPeriodicUpdates(presenceRefresh)
	if retention != nil {
		retention.Start()
	}

	logger.Info("Bot is running. Press CTRL-C to exit.",
		pipeline.String("prefix", cfg.Prefix),
		pipeline.String("catalog", cfg.Pipeline.Catalog.Directory),
		pipeline.Bool("history", history != nil),
	)

	// Wait here until CTRL-C or other term signal is received.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info("Shutting down")

	bot.Shutdown()
	presenceManager.Stop()
	if retention != nil {
		retention.Stop()
	}
	if history != nil {
		if err := history.Close(); err != nil {
			logger.Warn("Failed to close history store", pipeline.Error(err))
		}
	}

	// Cleanly close down the Discord session.
	if err := dg.Close(); err != nil {
		logger.Warn("Failed to close Discord session", pipeline.Error(err))
	}
}
