package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/latoulicious/radio/pkg/catalog"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/relay"
)

// Dependencies are the collaborators a Controller drives
type Dependencies struct {
	GuildID    string
	Catalog    *catalog.Catalog
	Sessions   SessionProvider
	Transcoder Transcoder
	Announcer  Announcer
	Observers  []Observer
	Metrics    *pipeline.PipelineMetricsCollector
	Logger     pipeline.Logger
}

// Controller plays one guild's catalog into a voice channel. It owns at most
// one session and at most one transcoder job at a time.
type Controller struct {
	guildID    string
	catalog    *catalog.Catalog
	sessions   SessionProvider
	transcoder Transcoder
	announcer  Announcer
	observers  []Observer
	metrics    *pipeline.PipelineMetricsCollector
	logger     pipeline.Logger
	relay      *relay.Relay

	connectTimeout time.Duration
	maxFailures    int
	failureDelay   time.Duration

	mu        sync.Mutex
	state     State
	paused    bool
	loop      bool
	session   *SessionHandle
	cancel    context.CancelFunc
	skip      context.CancelFunc
	current   catalog.Track
	playing   bool
	startedAt time.Time
	err       error

	finishOnce sync.Once
	done       chan struct{}
}

// NewController creates an idle controller
func NewController(cfg *pipeline.PipelineConfig, deps Dependencies) (*Controller, error) {
	if cfg == nil {
		cfg = pipeline.DefaultPipelineConfig()
	}
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("player: catalog is required")
	case deps.Sessions == nil:
		return nil, errors.New("player: session provider is required")
	case deps.Transcoder == nil:
		return nil, errors.New("player: transcoder is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = pipeline.NewPipelineMetricsCollector(deps.GuildID, logger)
	}
	announcer := deps.Announcer
	if announcer == nil {
		announcer = nopAnnouncer{}
	}

	maxFailures := cfg.Playback.MaxConsecutiveFailures
	if maxFailures < 1 {
		maxFailures = 1
	}

	return &Controller{
		guildID:        deps.GuildID,
		catalog:        deps.Catalog,
		sessions:       deps.Sessions,
		transcoder:     deps.Transcoder,
		announcer:      announcer,
		observers:      deps.Observers,
		metrics:        metrics,
		logger:         logger.With(pipeline.String("guild_id", deps.GuildID)),
		relay:          relay.New(cfg.Relay.FrameSize),
		connectTimeout: cfg.Session.ConnectTimeout,
		maxFailures:    maxFailures,
		failureDelay:   cfg.Playback.FailureDelay,
		state:          StateIdle,
		done:           make(chan struct{}),
	}, nil
}

// Play connects to channelID and starts the track loop. Announcements go to
// announceChannelID. With loop set, played tracks stay in the catalog. Play
// returns once the session is acquired; the loop runs until the catalog is
// exhausted, the failure budget is spent, or Disconnect is called.
func (c *Controller) Play(ctx context.Context, channelID, announceChannelID string, loop bool) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state: %s)", ErrAlreadyPlaying, state)
	}
	sessionCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.loop = loop
	c.setState(StateConnecting, "play requested")
	c.mu.Unlock()

	// the caller's context only bounds acquisition, not the session;
	// Disconnect reaches acquisition through sessionCtx
	acquireCtx, cancelAcquire := context.WithCancel(ctx)
	stop := context.AfterFunc(sessionCtx, cancelAcquire)
	handle, err := acquireSession(acquireCtx, c.sessions, channelID, announceChannelID, c.connectTimeout)
	stop()
	cancelAcquire()

	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		if handle != nil {
			if rerr := handle.Release(); rerr != nil {
				c.logger.Warn("Failed to release session after disconnect", pipeline.Error(rerr))
			}
		}
		c.finish(nil)
		return &ConnectError{ChannelID: channelID, Err: ErrDisconnected}
	}
	if err != nil {
		cancel()
		c.cancel = nil
		c.setState(StateIdle, "connect failed")
		c.mu.Unlock()

		perr := pipeline.NewPipelineError(err, pipeline.CategoryVoice, pipeline.SeverityHigh).
			With("channel_id", channelID)
		c.report("Failed to acquire voice session", perr)
		return &ConnectError{ChannelID: channelID, Err: err}
	}
	c.session = handle
	c.startedAt = handle.AcquiredAt
	c.setState(StatePlaying, "session acquired")
	c.mu.Unlock()

	c.logger.Info("Voice session acquired",
		pipeline.String("session_id", handle.ID),
		pipeline.String("channel_id", channelID),
		pipeline.Bool("loop", loop),
		pipeline.Int("tracks", c.catalog.Len()),
	)
	c.metrics.RecordCatalogSize(c.catalog.Len())

	event := c.sessionEvent(handle, nil)
	for _, o := range c.observers {
		o.SessionStarted(event)
	}

	go c.run(sessionCtx, handle, loop)
	return nil
}

// Skip cancels the current track's relay; the loop moves on to the next
// track. It is a no-op between tracks.
func (c *Controller) Skip() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.active() {
		return fmt.Errorf("%w: cannot skip while %s", ErrInvalidState, c.state)
	}
	if c.skip == nil {
		return nil
	}

	c.skip()
	c.skip = nil
	c.setState(StateSkipping, "skip requested")
	c.metrics.RecordSkip()
	c.logger.Info("Skipping track", pipeline.String("track", c.current.Name))
	return nil
}

// Pause toggles the sink between paused and resumed and reports whether
// playback is now paused. A skip while paused keeps the pause.
func (c *Controller) Pause() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.active() {
		return c.paused, fmt.Errorf("%w: cannot pause while %s", ErrInvalidState, c.state)
	}
	c.applyPause(!c.paused)
	return c.paused, nil
}

// SetPaused pauses or resumes the sink and reports whether that changed
// anything. Unlike Pause it is safe to issue twice.
func (c *Controller) SetPaused(paused bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.active() {
		return false, fmt.Errorf("%w: cannot pause while %s", ErrInvalidState, c.state)
	}
	if c.paused == paused {
		return false, nil
	}
	c.applyPause(paused)
	return true, nil
}

// applyPause must be called with mu held in an active state
func (c *Controller) applyPause(paused bool) {
	sink := c.session.Sink()
	if paused {
		sink.Pause()
		c.paused = true
		if c.state == StatePlaying {
			c.setState(StatePaused, "paused")
		}
		return
	}
	sink.Resume()
	c.paused = false
	if c.state == StatePaused {
		c.setState(StatePlaying, "resumed")
	}
}

// Disconnect stops playback, kills the transcoder, and releases the session.
// It blocks until teardown completes and may be called any number of times.
// It must not be called from an Observer.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		<-c.done
		return nil
	case StateIdle:
		c.setState(StateDisconnected, "disconnect requested")
		c.mu.Unlock()
		c.finish(nil)
		return nil
	}

	c.setState(StateDisconnected, "disconnect requested")
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	<-c.done
	return nil
}

// Done is closed once the controller has fully torn down
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err reports why the session ended. It is nil for a natural end or an
// explicit Disconnect.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Paused reports whether the sink is paused
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// NowPlaying returns the track being relayed, if any
func (c *Controller) NowPlaying() (catalog.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.playing
}

// SessionID returns the current session's id, or "" when none is held
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// StartedAt returns when the current session was acquired
func (c *Controller) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Loop reports whether played tracks stay in the catalog
func (c *Controller) Loop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop
}

// Remaining returns how many tracks are still eligible to play
func (c *Controller) Remaining() int {
	return c.catalog.Len()
}

// Metrics returns the controller's metrics collector
func (c *Controller) Metrics() *pipeline.PipelineMetricsCollector {
	return c.metrics
}

func (c *Controller) run(ctx context.Context, handle *SessionHandle, loop bool) {
	err := c.trackLoop(ctx, handle, loop)
	c.finish(err)
}

func (c *Controller) trackLoop(ctx context.Context, handle *SessionHandle, loop bool) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		track, err := c.catalog.PickRandom()
		if errors.Is(err, catalog.ErrEmpty) {
			c.logger.Info("Catalog exhausted, ending session")
			return nil
		}

		c.announce(ctx, handle, track)

		outcome, started := c.playTrack(ctx, handle, track)
		switch {
		case !started:
			// a track that cannot be decoded never becomes playable
			failures++
			c.catalog.Remove(track)
		case outcome.Status == relay.Failed:
			failures++
		case outcome.Status == relay.Completed:
			failures = 0
		}
		if started && !loop {
			c.catalog.Remove(track)
		}
		c.metrics.RecordCatalogSize(c.catalog.Len())

		if ctx.Err() != nil {
			return nil
		}
		if failures >= c.maxFailures {
			c.logger.Error("Too many consecutive failures, ending session",
				pipeline.Int("failures", failures),
			)
			return fmt.Errorf("%w: %d in a row", ErrTooManyFailures, failures)
		}
		if failures > 0 && c.failureDelay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.failureDelay):
			}
		}
	}
}

// playTrack runs one track from transcoder start to kill. It reports false
// when the transcoder could not be started.
func (c *Controller) playTrack(ctx context.Context, handle *SessionHandle, track catalog.Track) (relay.Outcome, bool) {
	job, err := c.transcoder.Start(ctx, track)
	if err != nil {
		perr := pipeline.NewPipelineError(err, pipeline.CategoryProcess, pipeline.SeverityMedium).
			With("track", track.Name)
		c.report("Failed to start transcoder, skipping track", perr)
		return relay.Outcome{Status: relay.Failed, Err: err}, false
	}

	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()

	c.mu.Lock()
	c.skip = cancelRelay
	c.current = track
	c.playing = true
	if c.state.active() {
		if c.paused {
			c.setState(StatePaused, "track started")
		} else {
			c.setState(StatePlaying, "track started")
		}
	}
	c.mu.Unlock()

	startedAt := time.Now()
	c.metrics.RecordTrackStarted()
	for _, o := range c.observers {
		o.TrackStarted(TrackEvent{SessionID: handle.ID, GuildID: c.guildID, Track: track, StartedAt: startedAt})
	}

	outcome := c.relay.Run(relayCtx, job.Output(), handle.Sink())

	c.mu.Lock()
	c.skip = nil
	c.playing = false
	c.mu.Unlock()

	if err := c.transcoder.Kill(job); err != nil {
		perr := pipeline.NewPipelineError(err, pipeline.CategoryProcess, pipeline.SeverityHigh).
			With("job_id", job.ID)
		c.report("Failed to stop transcoder", perr)
	}

	c.metrics.RecordTrackFinished(outcome.Status.String(), outcome.Bytes, outcome.Elapsed)
	if outcome.Status == relay.Failed {
		perr := pipeline.NewPipelineError(outcome.Err, pipeline.CategoryStream, pipeline.SeverityMedium).
			With("track", track.Name)
		c.report("Track relay failed", perr)
	} else {
		c.logger.Info("Track finished",
			pipeline.String("track", track.Name),
			pipeline.String("outcome", outcome.Status.String()),
			pipeline.Int64("bytes", outcome.Bytes),
			pipeline.Duration("elapsed", outcome.Elapsed),
		)
	}

	for _, o := range c.observers {
		o.TrackFinished(TrackEvent{SessionID: handle.ID, GuildID: c.guildID, Track: track, StartedAt: startedAt, Outcome: outcome})
	}
	return outcome, true
}

func (c *Controller) announce(ctx context.Context, handle *SessionHandle, track catalog.Track) {
	if handle.AnnounceChannelID == "" {
		return
	}
	text := fmt.Sprintf("🎶 Now playing: **%s**", track)
	if err := c.announcer.Announce(ctx, handle.AnnounceChannelID, text); err != nil {
		perr := pipeline.NewPipelineError(err, pipeline.CategoryAnnounce, pipeline.SeverityLow).
			With("channel_id", handle.AnnounceChannelID)
		c.report("Failed to announce track", perr)
	}
}

// finish releases the session and closes done, exactly once
func (c *Controller) finish(reason error) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		handle := c.session
		cancel := c.cancel
		c.session = nil
		c.skip = nil
		c.playing = false
		c.err = reason
		c.setState(StateDisconnected, "session ended")
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if handle != nil {
			if err := handle.Release(); err != nil {
				perr := pipeline.NewPipelineError(err, pipeline.CategoryVoice, pipeline.SeverityMedium)
				c.report("Failed to release voice session", perr)
			}
		}
		c.catalog.Clear()

		if handle != nil {
			event := c.sessionEvent(handle, reason)
			event.EndedAt = time.Now()
			for _, o := range c.observers {
				o.SessionEnded(event)
			}
		}

		if reason != nil {
			c.logger.Warn("Player stopped", pipeline.Error(reason))
		} else {
			c.logger.Info("Player stopped")
		}
		close(c.done)
	})
}

func (c *Controller) sessionEvent(handle *SessionHandle, err error) SessionEvent {
	return SessionEvent{
		SessionID: handle.ID,
		GuildID:   c.guildID,
		ChannelID: handle.ChannelID,
		Loop:      c.Loop(),
		StartedAt: handle.AcquiredAt,
		Err:       err,
	}
}

// setState must be called with mu held
func (c *Controller) setState(to State, reason string) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.metrics.RecordStateChange(from.String(), to.String())
	c.logger.Debug("State changed",
		pipeline.String("from", from.String()),
		pipeline.String("to", to.String()),
		pipeline.String("reason", reason),
	)
}

func (c *Controller) report(msg string, perr *pipeline.PipelineError) {
	c.metrics.RecordError(perr)
	if perr.Severity >= pipeline.SeverityHigh {
		c.logger.Error(msg, perr.Fields()...)
	} else {
		c.logger.Warn(msg, perr.Fields()...)
	}
}
