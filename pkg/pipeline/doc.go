// Package pipeline provides the ambient plumbing shared by the playback
// engine: structured logging, in-memory metrics, error classification and the
// engine configuration.
//
// # Logging
//
// StructuredLogger writes json, text or console (coloured) lines. Loggers carry
// persistent fields and are derived per component:
//
//	logger := pipeline.NewStructuredLogger(cfg.Logging)
//	log := logger.With(pipeline.String("component", "transcoder"))
//	log.Info("Started ffmpeg", pipeline.Int("pid", pid))
//
// # Metrics
//
// BasicMetricsCollector keeps counters, gauges and histograms keyed by name and
// tags. PipelineMetricsCollector scopes them to a guild and exposes playback
// helpers such as RecordTrackStarted and RecordSkip.
//
// # Error Handling
//
// Errors are classified by category (catalog, stream, process, voice,
// announce) and severity (low, medium, high, critical). Errors at or below
// medium severity affect a single track; higher severities end a session.
//
// # Configuration
//
// PipelineConfig groups every tunable of the engine. DefaultPipelineConfig
// returns working defaults, LoadFromViper applies overrides bound with
// BindEnvironment, and Validate rejects inconsistent values.
package pipeline
