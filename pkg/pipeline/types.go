package pipeline

import (
	"fmt"
	"time"
)

// ErrorSeverity represents the severity level of playback errors
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ErrorCategory represents the category of playback errors
type ErrorCategory int

const (
	CategoryCatalog ErrorCategory = iota
	CategoryStream
	CategoryProcess
	CategoryVoice
	CategoryAnnounce
	CategoryUnknown
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryCatalog:
		return "catalog"
	case CategoryStream:
		return "stream"
	case CategoryProcess:
		return "process"
	case CategoryVoice:
		return "voice"
	case CategoryAnnounce:
		return "announce"
	default:
		return "unknown"
	}
}

// PipelineError is an error annotated with a category and severity. Errors
// at or below SeverityMedium only affect a single track.
type PipelineError struct {
	Err       error
	Category  ErrorCategory
	Severity  ErrorSeverity
	Timestamp time.Time
	Context   map[string]interface{}
	Retryable bool
}

func (pe *PipelineError) Error() string {
	return fmt.Sprintf("%s error (%s): %v", pe.Category, pe.Severity, pe.Err)
}

func (pe *PipelineError) Unwrap() error {
	return pe.Err
}

// With attaches a context value and returns the error for chaining
func (pe *PipelineError) With(key string, value interface{}) *PipelineError {
	pe.Context[key] = value
	return pe
}

// Fields returns the error as structured logging fields
func (pe *PipelineError) Fields() []Field {
	fields := []Field{
		Error(pe.Err),
		String("category", pe.Category.String()),
		String("severity", pe.Severity.String()),
		Bool("retryable", pe.Retryable),
	}
	for k, v := range pe.Context {
		fields = append(fields, Any(k, v))
	}
	return fields
}

// NewPipelineError creates a new classified error
func NewPipelineError(err error, category ErrorCategory, severity ErrorSeverity) *PipelineError {
	return &PipelineError{
		Err:       err,
		Category:  category,
		Severity:  severity,
		Timestamp: time.Now(),
		Context:   make(map[string]interface{}),
		Retryable: severity <= SeverityMedium,
	}
}
