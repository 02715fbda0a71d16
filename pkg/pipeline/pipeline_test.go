package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineConfiguration(t *testing.T) {
	config := DefaultPipelineConfig()
	require.NoError(t, config.Validate(), "default configuration should be valid")

	tests := []struct {
		name   string
		mutate func(c *PipelineConfig)
	}{
		{"empty catalog directory", func(c *PipelineConfig) { c.Catalog.Directory = "" }},
		{"empty ffmpeg path", func(c *PipelineConfig) { c.Transcoder.BinaryPath = "" }},
		{"zero kill timeout", func(c *PipelineConfig) { c.Transcoder.KillTimeout = 0 }},
		{"odd frame size", func(c *PipelineConfig) { c.Relay.FrameSize = 3841 }},
		{"zero connect timeout", func(c *PipelineConfig) { c.Session.ConnectTimeout = 0 }},
		{"zero failure budget", func(c *PipelineConfig) { c.Playback.MaxConsecutiveFailures = 0 }},
		{"bad log level", func(c *PipelineConfig) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *PipelineConfig) { c.Logging.Format = "xml" }},
		{"history without path", func(c *PipelineConfig) { c.History.DatabasePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultPipelineConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadFromViper(t *testing.T) {
	t.Setenv("RADIO_MUSIC_DIR", "/srv/music")
	t.Setenv("RADIO_NAME_PREFIX", "Touhou - ")
	t.Setenv("RADIO_KILL_TIMEOUT", "750ms")
	t.Setenv("RADIO_MAX_FAILURES", "7")
	t.Setenv("RADIO_LOG_LEVEL", "debug")

	v := viper.New()
	require.NoError(t, BindEnvironment(v))

	config := DefaultPipelineConfig()
	config.LoadFromViper(v)

	assert.Equal(t, "/srv/music", config.Catalog.Directory)
	assert.Equal(t, "Touhou - ", config.Catalog.NamePrefix)
	assert.Equal(t, 750*time.Millisecond, config.Transcoder.KillTimeout)
	assert.Equal(t, 7, config.Playback.MaxConsecutiveFailures)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "ffmpeg", config.Transcoder.BinaryPath, "unset values keep defaults")
	assert.NoError(t, config.Validate())
}

func TestStructuredLoggingJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(LoggingConfig{Level: "debug", Format: "json"})
	logger.output = &buf

	child := logger.With(String("component", "test"))
	child.Info("Track started", String("track", "Bad Apple"), Int("pid", 42))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "Track started", entry.Message)
	assert.Equal(t, "test", entry.Fields["component"])
	assert.Equal(t, "Bad Apple", entry.Fields["track"])
	assert.NotEmpty(t, entry.Caller)
}

func TestStructuredLoggingLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "warn")

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown", String("b", "2"), String("a", "1"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown {a=1, b=2}")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestMetricsCollection(t *testing.T) {
	collector := NewPipelineMetricsCollector("guild-1", NullLogger())

	collector.RecordTrackStarted()
	collector.RecordTrackStarted()
	collector.RecordSkip()
	collector.RecordTrackFinished("completed", 3840, 20*time.Millisecond)
	collector.RecordTrackFinished("cancelled", 7680, 40*time.Millisecond)
	collector.RecordCatalogSize(3)

	assert.Equal(t, 2.0, collector.Total("player.tracks.started"))
	assert.Equal(t, 1.0, collector.Total("player.skips"))
	assert.Equal(t, 2.0, collector.Total("player.tracks.finished"))
	assert.Equal(t, 11520.0, collector.Total("player.relay.bytes"))

	timings := collector.GetMetricsByName("player.relay.duration")
	require.Len(t, timings, 1)
	require.NotNil(t, timings[0].Stats)
	assert.Equal(t, 2.0, timings[0].Stats.Count)
	assert.InDelta(t, 30.0, timings[0].Stats.Avg(), 0.001)

	size, ok := collector.GetMetric("player.catalog.size", map[string]string{"guild_id": "guild-1"})
	require.True(t, ok)
	assert.Equal(t, 3.0, size.Value)
}

func TestMetricKeyIsOrderIndependent(t *testing.T) {
	a := buildMetricKey("m", map[string]string{"x": "1", "y": "2"})
	b := buildMetricKey("m", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
	err := NewPipelineError(cause, CategoryProcess, SeverityMedium).With("track", "a.mp3")

	assert.Equal(t, CategoryProcess, err.Category)
	assert.True(t, err.Retryable, "medium severity errors only affect a track")
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Timestamp.IsZero())
	assert.Contains(t, err.Error(), "process error (medium)")
	assert.Len(t, err.Fields(), 5)

	critical := NewPipelineError(cause, CategoryVoice, SeverityCritical)
	assert.False(t, critical.Retryable)
}
