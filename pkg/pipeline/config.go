package pipeline

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// PipelineConfig contains the configuration for the playback engine
type PipelineConfig struct {
	Catalog    CatalogConfig    `json:"catalog"`
	Transcoder TranscoderConfig `json:"transcoder"`
	Relay      RelayConfig      `json:"relay"`
	Session    SessionConfig    `json:"session"`
	Playback   PlaybackConfig   `json:"playback"`
	Announce   AnnounceConfig   `json:"announce"`
	History    HistoryConfig    `json:"history"`
	Logging    LoggingConfig    `json:"logging"`
	Discord    DiscordConfig    `json:"discord"`
}

// CatalogConfig contains configuration for the track catalog
type CatalogConfig struct {
	Directory      string   `json:"directory"`
	NamePrefix     string   `json:"name_prefix"`
	Extensions     []string `json:"extensions"`
	ProbeDurations bool     `json:"probe_durations"`
}

// TranscoderConfig contains configuration for the ffmpeg process manager
type TranscoderConfig struct {
	BinaryPath  string        `json:"binary_path"`
	KillTimeout time.Duration `json:"kill_timeout"`
}

// RelayConfig contains configuration for the PCM relay
type RelayConfig struct {
	FrameSize int `json:"frame_size"`
}

// SessionConfig contains configuration for voice session acquisition
type SessionConfig struct {
	ConnectTimeout time.Duration `json:"connect_timeout"`
	ConnectRetries int           `json:"connect_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
}

// PlaybackConfig contains configuration for the track loop
type PlaybackConfig struct {
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"`
	FailureDelay           time.Duration `json:"failure_delay"`
}

// AnnounceConfig contains configuration for now-playing announcements
type AnnounceConfig struct {
	Interval time.Duration `json:"interval"`
	Burst    int           `json:"burst"`
}

// HistoryConfig contains configuration for the play history store
type HistoryConfig struct {
	Enabled         bool          `json:"enabled"`
	DatabasePath    string        `json:"database_path"`
	Retention       time.Duration `json:"retention"`
	CleanupSchedule string        `json:"cleanup_schedule"`
}

// LoggingConfig contains configuration for logging
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// DiscordConfig contains configuration for Discord voice delivery
type DiscordConfig struct {
	OpusBitrate int           `json:"opus_bitrate"`
	SendTimeout time.Duration `json:"send_timeout"`
}

// DefaultPipelineConfig returns a configuration with sensible defaults
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Catalog: CatalogConfig{
			Directory:      "music",
			ProbeDurations: true,
		},
		Transcoder: TranscoderConfig{
			BinaryPath:  "ffmpeg",
			KillTimeout: 3 * time.Second,
		},
		Relay: RelayConfig{
			FrameSize: 3840, // 960 samples * 2 channels * 2 bytes (20ms at 48kHz)
		},
		Session: SessionConfig{
			ConnectTimeout: 15 * time.Second,
			ConnectRetries: 3,
			RetryDelay:     time.Second,
		},
		Playback: PlaybackConfig{
			MaxConsecutiveFailures: 3,
			FailureDelay:           2 * time.Second,
		},
		Announce: AnnounceConfig{
			Interval: 2 * time.Second,
			Burst:    2,
		},
		History: HistoryConfig{
			Enabled:         true,
			DatabasePath:    "radio.db",
			Retention:       30 * 24 * time.Hour,
			CleanupSchedule: "0 0 4 * * *", // daily at 04:00
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Discord: DiscordConfig{
			OpusBitrate: 128000,
			SendTimeout: 100 * time.Millisecond,
		},
	}
}

// envBindings maps viper keys to the environment variables that feed them
var envBindings = map[string]string{
	"catalog.directory":        "RADIO_MUSIC_DIR",
	"catalog.name_prefix":      "RADIO_NAME_PREFIX",
	"catalog.probe_durations":  "RADIO_PROBE_DURATIONS",
	"transcoder.binary_path":   "RADIO_FFMPEG_PATH",
	"transcoder.kill_timeout":  "RADIO_KILL_TIMEOUT",
	"session.connect_timeout":  "RADIO_CONNECT_TIMEOUT",
	"playback.max_failures":    "RADIO_MAX_FAILURES",
	"playback.failure_delay":   "RADIO_FAILURE_DELAY",
	"announce.interval":        "RADIO_ANNOUNCE_INTERVAL",
	"history.enabled":          "RADIO_HISTORY_ENABLED",
	"history.database_path":    "RADIO_HISTORY_DB",
	"history.retention":        "RADIO_HISTORY_RETENTION",
	"history.cleanup_schedule": "RADIO_HISTORY_CLEANUP",
	"logging.level":            "RADIO_LOG_LEVEL",
	"logging.format":           "RADIO_LOG_FORMAT",
	"logging.output":           "RADIO_LOG_OUTPUT",
	"discord.opus_bitrate":     "RADIO_OPUS_BITRATE",
}

// BindEnvironment registers the engine's environment variables on v
func BindEnvironment(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// LoadFromViper overrides configuration values with those set in v
func (c *PipelineConfig) LoadFromViper(v *viper.Viper) {
	if v.IsSet("catalog.directory") {
		c.Catalog.Directory = v.GetString("catalog.directory")
	}
	if v.IsSet("catalog.name_prefix") {
		c.Catalog.NamePrefix = v.GetString("catalog.name_prefix")
	}
	if v.IsSet("catalog.probe_durations") {
		c.Catalog.ProbeDurations = v.GetBool("catalog.probe_durations")
	}

	if v.IsSet("transcoder.binary_path") {
		c.Transcoder.BinaryPath = v.GetString("transcoder.binary_path")
	}
	if v.IsSet("transcoder.kill_timeout") {
		c.Transcoder.KillTimeout = v.GetDuration("transcoder.kill_timeout")
	}

	if v.IsSet("session.connect_timeout") {
		c.Session.ConnectTimeout = v.GetDuration("session.connect_timeout")
	}

	if v.IsSet("playback.max_failures") {
		c.Playback.MaxConsecutiveFailures = v.GetInt("playback.max_failures")
	}
	if v.IsSet("playback.failure_delay") {
		c.Playback.FailureDelay = v.GetDuration("playback.failure_delay")
	}

	if v.IsSet("announce.interval") {
		c.Announce.Interval = v.GetDuration("announce.interval")
	}

	if v.IsSet("history.database_path") {
		c.History.DatabasePath = v.GetString("history.database_path")
		c.History.Enabled = c.History.DatabasePath != ""
	}
	if v.IsSet("history.enabled") {
		c.History.Enabled = v.GetBool("history.enabled")
	}
	if v.IsSet("history.retention") {
		c.History.Retention = v.GetDuration("history.retention")
	}
	if v.IsSet("history.cleanup_schedule") {
		c.History.CleanupSchedule = v.GetString("history.cleanup_schedule")
	}

	if v.IsSet("logging.level") {
		c.Logging.Level = v.GetString("logging.level")
	}
	if v.IsSet("logging.format") {
		c.Logging.Format = v.GetString("logging.format")
	}
	if v.IsSet("logging.output") {
		c.Logging.Output = v.GetString("logging.output")
	}

	if v.IsSet("discord.opus_bitrate") {
		c.Discord.OpusBitrate = v.GetInt("discord.opus_bitrate")
	}
}

// Validate validates the configuration and returns any errors
func (c *PipelineConfig) Validate() error {
	var errors []string

	if c.Catalog.Directory == "" {
		errors = append(errors, "catalog directory cannot be empty")
	}

	if c.Transcoder.BinaryPath == "" {
		errors = append(errors, "transcoder binary_path cannot be empty")
	}

	if c.Transcoder.KillTimeout <= 0 {
		errors = append(errors, "transcoder kill_timeout must be > 0")
	}

	if c.Relay.FrameSize <= 0 || c.Relay.FrameSize%4 != 0 {
		errors = append(errors, "relay frame_size must be a positive multiple of 4")
	}

	if c.Session.ConnectTimeout <= 0 {
		errors = append(errors, "session connect_timeout must be > 0")
	}

	if c.Session.ConnectRetries < 1 {
		errors = append(errors, "session connect_retries must be >= 1")
	}

	if c.Playback.MaxConsecutiveFailures < 1 {
		errors = append(errors, "playback max_consecutive_failures must be >= 1")
	}

	if c.Playback.FailureDelay < 0 {
		errors = append(errors, "playback failure_delay must be >= 0")
	}

	if c.Announce.Burst < 1 {
		errors = append(errors, "announce burst must be >= 1")
	}

	if c.History.Enabled {
		if c.History.DatabasePath == "" {
			errors = append(errors, "history database_path cannot be empty")
		}
		if c.History.Retention <= 0 {
			errors = append(errors, "history retention must be > 0")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "logging level must be one of: debug, info, warn, error, fatal")
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "logging format must be one of: json, text, console")
	}

	if c.Discord.OpusBitrate <= 0 {
		errors = append(errors, "discord opus_bitrate must be > 0")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}
