package pipeline

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType int

const (
	CounterType MetricType = iota
	GaugeType
	HistogramType
)

func (mt MetricType) String() string {
	switch mt {
	case CounterType:
		return "counter"
	case GaugeType:
		return "gauge"
	case HistogramType:
		return "histogram"
	default:
		return "unknown"
	}
}

// Metric represents a single metric measurement
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Stats     *HistogramStats   `json:"stats,omitempty"`
}

// HistogramStats holds the running aggregate of a histogram metric
type HistogramStats struct {
	Count float64 `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Avg returns the mean of all observations
func (h *HistogramStats) Avg() float64 {
	if h.Count == 0 {
		return 0
	}
	return h.Sum / h.Count
}

// MetricSnapshot represents a snapshot of metrics at a point in time
type MetricSnapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Metrics   map[string]Metric `json:"metrics"`
}

// BasicMetricsCollector implements the MetricsCollector interface in memory
type BasicMetricsCollector struct {
	metrics map[string]Metric
	mu      sync.RWMutex
	logger  Logger
}

// NewBasicMetricsCollector creates a new basic metrics collector
func NewBasicMetricsCollector(logger Logger) *BasicMetricsCollector {
	if logger == nil {
		logger = NullLogger()
	}
	return &BasicMetricsCollector{
		metrics: make(map[string]Metric),
		logger:  logger,
	}
}

// RecordCounter records a counter metric
func (c *BasicMetricsCollector) RecordCounter(name string, value int64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buildMetricKey(name, tags)
	total := float64(value)
	if existing, ok := c.metrics[key]; ok && existing.Type == CounterType {
		total += existing.Value
	}

	c.metrics[key] = Metric{
		Name:      name,
		Type:      CounterType,
		Value:     total,
		Tags:      copyTags(tags),
		Timestamp: time.Now(),
	}

	c.logger.Debug("Recorded counter metric",
		String("name", name),
		Int64("value", value),
		Float64("total", total),
	)
}

// RecordGauge records a gauge metric
func (c *BasicMetricsCollector) RecordGauge(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics[buildMetricKey(name, tags)] = Metric{
		Name:      name,
		Type:      GaugeType,
		Value:     value,
		Tags:      copyTags(tags),
		Timestamp: time.Now(),
	}
}

// RecordHistogram records a histogram observation
func (c *BasicMetricsCollector) RecordHistogram(name string, value float64, tags map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := buildMetricKey(name, tags)
	stats := &HistogramStats{Count: 1, Sum: value, Min: value, Max: value}
	if existing, ok := c.metrics[key]; ok && existing.Type == HistogramType && existing.Stats != nil {
		prev := *existing.Stats
		stats = &prev
		stats.Count++
		stats.Sum += value
		if value < stats.Min {
			stats.Min = value
		}
		if value > stats.Max {
			stats.Max = value
		}
	}

	c.metrics[key] = Metric{
		Name:      name,
		Type:      HistogramType,
		Value:     value,
		Tags:      copyTags(tags),
		Timestamp: time.Now(),
		Stats:     stats,
	}
}

// RecordTiming records a duration in milliseconds as a histogram observation
func (c *BasicMetricsCollector) RecordTiming(name string, duration time.Duration, tags map[string]string) {
	c.RecordHistogram(name, float64(duration.Nanoseconds())/1e6, tags)
}

// GetMetric retrieves a specific metric
func (c *BasicMetricsCollector) GetMetric(name string, tags map[string]string) (Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metric, exists := c.metrics[buildMetricKey(name, tags)]
	return metric, exists
}

// GetAllMetrics returns a snapshot of all current metrics
func (c *BasicMetricsCollector) GetAllMetrics() MetricSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := MetricSnapshot{
		Timestamp: time.Now(),
		Metrics:   make(map[string]Metric, len(c.metrics)),
	}
	for key, metric := range c.metrics {
		snapshot.Metrics[key] = metric
	}
	return snapshot
}

// GetMetricsByName returns all metrics with the given name
func (c *BasicMetricsCollector) GetMetricsByName(name string) []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var metrics []Metric
	for _, metric := range c.metrics {
		if metric.Name == name {
			metrics = append(metrics, metric)
		}
	}
	return metrics
}

// Total sums the values of every counter with the given name, across tags
func (c *BasicMetricsCollector) Total(name string) float64 {
	var total float64
	for _, m := range c.GetMetricsByName(name) {
		if m.Type == CounterType {
			total += m.Value
		}
	}
	return total
}

// Reset clears all metrics
func (c *BasicMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = make(map[string]Metric)
}

// buildMetricKey creates a unique key for a metric based on name and sorted tags
func buildMetricKey(name string, tags map[string]string) string {
	if len(tags) == 0 {
		return name
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString(",")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(tags[k])
	}
	return b.String()
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	dup := make(map[string]string, len(tags))
	for k, v := range tags {
		dup[k] = v
	}
	return dup
}

// PipelineMetricsCollector is a metrics collector scoped to one guild's
// playback. Every metric it records carries a guild tag.
type PipelineMetricsCollector struct {
	*BasicMetricsCollector
	guildID string
}

// NewPipelineMetricsCollector creates a new guild-scoped metrics collector
func NewPipelineMetricsCollector(guildID string, logger Logger) *PipelineMetricsCollector {
	return &PipelineMetricsCollector{
		BasicMetricsCollector: NewBasicMetricsCollector(logger),
		guildID:               guildID,
	}
}

func (c *PipelineMetricsCollector) tagged(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	out["guild_id"] = c.guildID
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// RecordTrackStarted counts a transcoder job start
func (c *PipelineMetricsCollector) RecordTrackStarted() {
	c.RecordCounter("player.tracks.started", 1, c.tagged(nil))
}

// RecordTrackFinished records how a track ended and how much audio it delivered
func (c *PipelineMetricsCollector) RecordTrackFinished(outcome string, bytes int64, elapsed time.Duration) {
	c.RecordCounter("player.tracks.finished", 1, c.tagged(map[string]string{"outcome": outcome}))
	c.RecordCounter("player.relay.bytes", bytes, c.tagged(nil))
	c.RecordTiming("player.relay.duration", elapsed, c.tagged(nil))
}

// RecordSkip counts a user skip
func (c *PipelineMetricsCollector) RecordSkip() {
	c.RecordCounter("player.skips", 1, c.tagged(nil))
}

// RecordError counts a classified error
func (c *PipelineMetricsCollector) RecordError(err *PipelineError) {
	c.RecordCounter("player.errors", 1, c.tagged(map[string]string{
		"category": err.Category.String(),
		"severity": err.Severity.String(),
	}))
}

// RecordStateChange records a controller state transition
func (c *PipelineMetricsCollector) RecordStateChange(from, to string) {
	c.RecordCounter("player.state.changes", 1, c.tagged(map[string]string{
		"from_state": from,
		"to_state":   to,
	}))
}

// RecordCatalogSize records how many tracks remain eligible
func (c *PipelineMetricsCollector) RecordCatalogSize(size int) {
	c.RecordGauge("player.catalog.size", float64(size), c.tagged(nil))
}
