package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/spf13/viper"
)

// ErrDiscordTokenNotSet is returned when DISCORD_TOKEN is missing
var ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken string
	Prefix       string
	OwnerID      string
	Pipeline     *pipeline.PipelineConfig
}

// LoadConfig reads .env (if present) and the environment. An optional
// config file named by RADIO_CONFIG is read first; environment variables win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("bot.prefix", "!")
	for key, env := range map[string]string{
		"bot.token":    "DISCORD_TOKEN",
		"bot.prefix":   "BOT_PREFIX",
		"bot.owner_id": "BOT_OWNER_ID",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if err := pipeline.BindEnvironment(v); err != nil {
		return nil, err
	}

	if path := os.Getenv("RADIO_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	token := strings.TrimSpace(v.GetString("bot.token"))
	if token == "" {
		return nil, ErrDiscordTokenNotSet
	}

	pcfg := pipeline.DefaultPipelineConfig()
	pcfg.LoadFromViper(v)
	if err := pcfg.Validate(); err != nil {
		return nil, err
	}

	prefix := v.GetString("bot.prefix")
	if prefix == "" {
		prefix = "!"
	}

	return &Config{
		DiscordToken: token,
		Prefix:       prefix,
		OwnerID:      v.GetString("bot.owner_id"),
		Pipeline:     pcfg,
	}, nil
}
