// Package transcode owns the ffmpeg subprocess that decodes one track at a
// time into raw PCM.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/latoulicious/radio/pkg/catalog"
	"github.com/latoulicious/radio/pkg/pipeline"
)

// Output format produced by every job: interleaved stereo s16le at 48kHz
const (
	SampleRate = 48000
	Channels   = 2
)

// ErrKillTimeout is returned when a process survives a forced kill for longer
// than the kill timeout
var ErrKillTimeout = errors.New("transcoder did not exit after kill")

// StartError reports a transcoder that could not be launched. It is fatal to
// the track, not to the session.
type StartError struct {
	Track catalog.Track
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start transcoder for %q: %v", e.Track.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Args returns the ffmpeg arguments that decode path to PCM on stdout.
// Downstream audio handling depends on this exact format.
func Args(path string) []string {
	return []string{
		"-i", path,
		"-ac", "2",
		"-f", "s16le",
		"-ar", "48000",
		"pipe:1",
	}
}

// Job is one transcoder invocation bound to one track
type Job struct {
	ID        uint64
	Track     catalog.Track
	StartedAt time.Time

	proc    Process
	once    sync.Once
	killErr error
}

// Output returns the PCM stream
func (j *Job) Output() io.ReadCloser {
	return j.proc.Output()
}

// Pid returns the transcoder's process id
func (j *Job) Pid() int {
	return j.proc.Pid()
}

// Manager launches and terminates transcoder jobs, at most one at a time
type Manager struct {
	binary      string
	killTimeout time.Duration
	launcher    Launcher
	logger      pipeline.Logger

	mu      sync.Mutex
	active  *Job
	nextID  uint64
	started int
	killed  int
}

// Option configures a Manager
type Option func(*Manager)

// WithLauncher replaces the os/exec launcher
func WithLauncher(l Launcher) Option {
	return func(m *Manager) { m.launcher = l }
}

// NewManager creates a transcoder manager
func NewManager(cfg pipeline.TranscoderConfig, logger pipeline.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	logger = logger.With(pipeline.String("component", "transcoder"))

	m := &Manager{
		binary:      cfg.BinaryPath,
		killTimeout: cfg.KillTimeout,
		logger:      logger,
	}
	if m.killTimeout <= 0 {
		m.killTimeout = 3 * time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.launcher == nil {
		m.launcher = NewExecLauncher(logger)
	}
	return m
}

// Start launches the transcoder for track. A job still active from an earlier
// Start is killed first.
func (m *Manager) Start(ctx context.Context, track catalog.Track) (*Job, error) {
	m.mu.Lock()
	prev := m.active
	m.mu.Unlock()

	if prev != nil {
		m.logger.Warn("Previous transcoder job still active, killing it",
			pipeline.Int64("job_id", int64(prev.ID)),
		)
		m.Kill(prev)
	}

	proc, err := m.launcher.Launch(ctx, m.binary, Args(track.Path)...)
	if err != nil {
		return nil, &StartError{Track: track, Err: err}
	}

	m.mu.Lock()
	m.nextID++
	job := &Job{
		ID:        m.nextID,
		Track:     track,
		StartedAt: time.Now(),
		proc:      proc,
	}
	m.active = job
	m.started++
	m.mu.Unlock()

	m.logger.Info("Started transcoder",
		pipeline.Int64("job_id", int64(job.ID)),
		pipeline.Int("pid", proc.Pid()),
		pipeline.String("track", track.Name),
	)
	return job, nil
}

// Kill terminates job and releases its output. It interrupts the process,
// waits up to the kill timeout, then force-kills it. Calling Kill again
// returns the first result.
func (m *Manager) Kill(job *Job) error {
	if job == nil {
		return nil
	}

	job.once.Do(func() {
		job.killErr = m.terminate(job)

		m.mu.Lock()
		if m.active == job {
			m.active = nil
		}
		m.killed++
		m.mu.Unlock()

		fields := []pipeline.Field{
			pipeline.Int64("job_id", int64(job.ID)),
			pipeline.Duration("ran_for", time.Since(job.StartedAt)),
		}
		if job.killErr != nil {
			m.logger.Error("Transcoder may still be running", append(fields, pipeline.Error(job.killErr))...)
		} else {
			m.logger.Debug("Transcoder stopped", fields...)
		}
	})
	return job.killErr
}

func (m *Manager) terminate(job *Job) error {
	// closing stdout first makes a still-writing ffmpeg exit on EPIPE
	job.proc.Output().Close()

	exited := make(chan struct{})
	go func() {
		job.proc.Wait()
		close(exited)
	}()

	if err := job.proc.Signal(os.Interrupt); err == nil || errors.Is(err, os.ErrProcessDone) {
		select {
		case <-exited:
			return nil
		case <-time.After(m.killTimeout):
			m.logger.Warn("Transcoder ignored interrupt, force killing",
				pipeline.Int64("job_id", int64(job.ID)),
				pipeline.Duration("timeout", m.killTimeout),
			)
		}
	}

	if err := job.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Warn("Failed to kill transcoder", pipeline.Error(err))
	}

	select {
	case <-exited:
		return nil
	case <-time.After(m.killTimeout):
		return ErrKillTimeout
	}
}

// Active returns the running job, if any
func (m *Manager) Active() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Started returns how many jobs have been launched
func (m *Manager) Started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Killed returns how many jobs have been terminated
func (m *Manager) Killed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed
}
