package database

import (
	"time"
)

// DatabaseConfig holds configuration for the history store
type DatabaseConfig struct {
	// Connection settings
	DatabasePath      string        `json:"database_path" yaml:"database_path"`
	MaxConnections    int           `json:"max_connections" yaml:"max_connections"`
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`
	BusyTimeout       time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// Write queue settings
	QueueSize    int           `json:"queue_size" yaml:"queue_size"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// Performance settings
	WALMode         bool   `json:"wal_mode" yaml:"wal_mode"`
	SynchronousMode string `json:"synchronous_mode" yaml:"synchronous_mode"`
}

// DefaultDatabaseConfig returns a configuration with sensible defaults
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		DatabasePath:      "radio.db",
		MaxConnections:    4,
		ConnectionTimeout: 10 * time.Second,
		BusyTimeout:       5 * time.Second,

		QueueSize:    256,
		WriteTimeout: 5 * time.Second,

		WALMode:         true,
		SynchronousMode: "NORMAL",
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DatabasePath == "" {
		return ErrInvalidDatabasePath
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidConnectionTimeout
	}
	if c.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}
	if c.SynchronousMode != "OFF" && c.SynchronousMode != "NORMAL" && c.SynchronousMode != "FULL" {
		return ErrInvalidSynchronousMode
	}
	return nil
}

// PlaySession is one voice session as recorded in history
type PlaySession struct {
	ID        string     `json:"id"`
	GuildID   string     `json:"guild_id"`
	ChannelID string     `json:"channel_id"`
	Loop      bool       `json:"loop"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// TrackPlay is one relayed track
type TrackPlay struct {
	ID         int64         `json:"id"`
	SessionID  string        `json:"session_id"`
	GuildID    string        `json:"guild_id"`
	TrackName  string        `json:"track_name"`
	TrackPath  string        `json:"track_path"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcome    string        `json:"outcome"`
	Bytes      int64         `json:"bytes"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}

// GuildStats summarises a guild's history
type GuildStats struct {
	Sessions  int64         `json:"sessions"`
	Plays     int64         `json:"plays"`
	Completed int64         `json:"completed"`
	Skipped   int64         `json:"skipped"`
	Failed    int64         `json:"failed"`
	Listened  time.Duration `json:"listened"`
}

// PruneStats reports what a retention pass removed
type PruneStats struct {
	Sessions int64         `json:"sessions"`
	Plays    int64         `json:"plays"`
	Duration time.Duration `json:"duration"`
}
