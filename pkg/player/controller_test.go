package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/latoulicious/radio/pkg/catalog"
	"github.com/latoulicious/radio/pkg/pipeline"
	"github.com/latoulicious/radio/pkg/relay"
	"github.com/latoulicious/radio/pkg/transcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const endless = -1

var (
	errSinkClosed = errors.New("sink closed")
	errVoiceWrite = errors.New("voice connection reset")
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeProcess emits payload bytes of silence, or silence until killed
type fakeProcess struct {
	pid      int
	out      *io.PipeReader
	exitOnce sync.Once
	exited   chan struct{}
}

func (p *fakeProcess) produce(pw *io.PipeWriter, payload int) {
	chunk := make([]byte, relay.DefaultFrameSize)
	written := 0
	for payload == endless || written < payload {
		n := len(chunk)
		if payload != endless && payload-written < n {
			n = payload - written
		}
		if _, err := pw.Write(chunk[:n]); err != nil {
			break
		}
		written += n
		if payload == endless {
			time.Sleep(time.Millisecond)
		}
	}
	pw.Close()
	p.exit()
}

func (p *fakeProcess) exit() {
	p.exitOnce.Do(func() { close(p.exited) })
}

func (p *fakeProcess) Output() io.ReadCloser { return p.out }
func (p *fakeProcess) Pid() int              { return p.pid }

func (p *fakeProcess) Signal(os.Signal) error {
	select {
	case <-p.exited:
		return os.ErrProcessDone
	default:
	}
	p.out.Close()
	p.exit()
	return nil
}

func (p *fakeProcess) Kill() error {
	p.out.Close()
	p.exit()
	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	mgr      *transcode.Manager
	payload  int
	fail     map[string]bool
	launches []string
	overlaps int
}

func (l *fakeLauncher) Launch(_ context.Context, _ string, args ...string) (transcode.Process, error) {
	path := args[1]

	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, path)
	if l.mgr.Killed() < l.mgr.Started() {
		l.overlaps++
	}
	if l.fail[path] {
		return nil, errors.New("exec: file not found")
	}

	pr, pw := io.Pipe()
	p := &fakeProcess{pid: 1000 + len(l.launches), out: pr, exited: make(chan struct{})}
	go p.produce(pw, l.payload)
	return p, nil
}

func (l *fakeLauncher) Launches() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.launches...)
}

type fakeSink struct {
	mu         sync.Mutex
	paused     bool
	resume     chan struct{}
	closed     int
	bytes      int64
	failWrites int
}

func (s *fakeSink) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

func (s *fakeSink) WriteContext(ctx context.Context, p []byte) (int, error) {
	for {
		s.mu.Lock()
		if s.closed > 0 {
			s.mu.Unlock()
			return 0, errSinkClosed
		}
		if s.failWrites > 0 {
			s.failWrites--
			s.mu.Unlock()
			return 0, errVoiceWrite
		}
		if !s.paused {
			s.bytes += int64(len(p))
			s.mu.Unlock()
			return len(p), nil
		}
		resume := s.resume
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-resume:
		}
	}
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.paused = true
		s.resume = make(chan struct{})
	}
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		close(s.resume)
	}
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSink) snapshot() (paused bool, closed int, written int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, s.closed, s.bytes
}

type fakeConn struct {
	mu          sync.Mutex
	sink        *fakeSink
	disconnects int
}

func (c *fakeConn) Sink() Sink { return c.sink }

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

func (c *fakeConn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

type fakeProvider struct {
	mu         sync.Mutex
	err        error
	block      bool
	failWrites int
	onConnect  func()
	conns      []*fakeConn
	calls      int
}

func (p *fakeProvider) Connect(ctx context.Context, _ string) (Connection, error) {
	p.mu.Lock()
	p.calls++
	err, block, onConnect := p.err, p.block, p.onConnect
	p.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	conn := &fakeConn{sink: &fakeSink{failWrites: p.failWrites}}
	p.conns = append(p.conns, conn)
	p.mu.Unlock()
	return conn, nil
}

func (p *fakeProvider) conn(t *testing.T) *fakeConn {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.conns, 1)
	return p.conns[0]
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (a *fakeAnnouncer) Announce(_ context.Context, _ string, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return a.err
}

func (a *fakeAnnouncer) Texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

// recorder captures observer events along with the catalog size at each
type recorder struct {
	mu            sync.Mutex
	cat           *catalog.Catalog
	started       []TrackEvent
	startSizes    []int
	finished      []TrackEvent
	finishSizes   []int
	sessionStarts []SessionEvent
	sessionEnds   []SessionEvent
}

func (r *recorder) SessionStarted(e SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionStarts = append(r.sessionStarts, e)
}

func (r *recorder) TrackStarted(e TrackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, e)
	r.startSizes = append(r.startSizes, r.cat.Len())
}

func (r *recorder) TrackFinished(e TrackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, e)
	r.finishSizes = append(r.finishSizes, r.cat.Len())
}

func (r *recorder) SessionEnded(e SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionEnds = append(r.sessionEnds, e)
}

func (r *recorder) startedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func (r *recorder) finishedEvents() []TrackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TrackEvent(nil), r.finished...)
}

type harness struct {
	ctrl      *Controller
	cat       *catalog.Catalog
	launcher  *fakeLauncher
	mgr       *transcode.Manager
	provider  *fakeProvider
	announcer *fakeAnnouncer
	rec       *recorder
	mgrLogs   *syncBuffer
}

func newHarness(t *testing.T, payload int, tracks ...catalog.Track) *harness {
	t.Helper()

	cfg := pipeline.DefaultPipelineConfig()
	cfg.Session.ConnectTimeout = 200 * time.Millisecond
	cfg.Playback.FailureDelay = 0
	cfg.Transcoder.KillTimeout = 200 * time.Millisecond

	h := &harness{
		cat:       catalog.New(tracks),
		launcher:  &fakeLauncher{payload: payload, fail: map[string]bool{}},
		provider:  &fakeProvider{},
		announcer: &fakeAnnouncer{},
		mgrLogs:   &syncBuffer{},
	}
	h.mgr = transcode.NewManager(cfg.Transcoder, pipeline.NewWriterLogger(h.mgrLogs, "warn"),
		transcode.WithLauncher(h.launcher))
	h.launcher.mgr = h.mgr
	h.rec = &recorder{cat: h.cat}

	ctrl, err := NewController(cfg, Dependencies{
		GuildID:    "guild-1",
		Catalog:    h.cat,
		Sessions:   h.provider,
		Transcoder: h.mgr,
		Announcer:  h.announcer,
		Observers:  []Observer{h.rec},
	})
	require.NoError(t, err)
	h.ctrl = ctrl

	t.Cleanup(func() { ctrl.Disconnect() })
	return h
}

// assertOneJobAtATime checks that every launch happened after all earlier
// jobs were killed by the controller itself
func (h *harness) assertOneJobAtATime(t *testing.T) {
	t.Helper()
	h.launcher.mu.Lock()
	overlaps := h.launcher.overlaps
	h.launcher.mu.Unlock()
	assert.Zero(t, overlaps, "a transcoder was launched while another was alive")
	assert.NotContains(t, h.mgrLogs.String(), "still active")
}

func waitDone(t *testing.T, ctrl *Controller) {
	t.Helper()
	select {
	case <-ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not finish")
	}
}

func tracks(names ...string) []catalog.Track {
	out := make([]catalog.Track, len(names))
	for i, name := range names {
		out[i] = catalog.Track{Name: name, Path: "/music/" + name + ".mp3"}
	}
	return out
}

func TestNewControllerRequiresDependencies(t *testing.T) {
	_, err := NewController(nil, Dependencies{})
	assert.Error(t, err)

	_, err = NewController(nil, Dependencies{Catalog: catalog.New(nil)})
	assert.Error(t, err)
}

func TestPlayExhaustsCatalogWithoutLoop(t *testing.T) {
	h := newHarness(t, 2*relay.DefaultFrameSize, tracks("A", "B", "C")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", false))
	waitDone(t, h.ctrl)

	assert.NoError(t, h.ctrl.Err())
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.ElementsMatch(t, []string{"/music/A.mp3", "/music/B.mp3", "/music/C.mp3"}, h.launcher.Launches())
	assert.Equal(t, 3, h.mgr.Started())
	assert.Equal(t, 3, h.mgr.Killed())
	h.assertOneJobAtATime(t)

	assert.True(t, h.cat.IsEmpty())
	_, err := h.cat.PickRandom()
	assert.ErrorIs(t, err, catalog.ErrEmpty)

	for _, e := range h.rec.finishedEvents() {
		assert.Equal(t, relay.Completed, e.Outcome.Status)
		assert.Equal(t, int64(2*relay.DefaultFrameSize), e.Outcome.Bytes)
	}

	conn := h.provider.conn(t)
	_, closed, written := conn.sink.snapshot()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, conn.Disconnects())
	assert.Equal(t, int64(6*relay.DefaultFrameSize), written)
	assert.Len(t, h.announcer.Texts(), 3)
}

func TestPlayRemovesEachTrackOnce(t *testing.T) {
	h := newHarness(t, relay.DefaultFrameSize, tracks("A", "B")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", false))
	waitDone(t, h.ctrl)

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	require.Len(t, h.rec.started, 2)
	assert.NotEqual(t, h.rec.started[0].Track, h.rec.started[1].Track)
	assert.Equal(t, []int{2, 1}, h.rec.startSizes)
	require.Len(t, h.rec.sessionEnds, 1)
	assert.NoError(t, h.rec.sessionEnds[0].Err)
}

func TestPlayLoopReplaysSingleTrack(t *testing.T) {
	h := newHarness(t, relay.DefaultFrameSize, tracks("A")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool { return len(h.rec.finishedEvents()) >= 5 },
		5*time.Second, 5*time.Millisecond)

	h.rec.mu.Lock()
	sizes := append([]int(nil), h.rec.finishSizes[:5]...)
	h.rec.mu.Unlock()
	assert.Equal(t, []int{1, 1, 1, 1, 1}, sizes)

	require.NoError(t, h.ctrl.Disconnect())
	assert.GreaterOrEqual(t, h.mgr.Started(), 5)
	assert.Equal(t, h.mgr.Started(), h.mgr.Killed())
	for _, path := range h.launcher.Launches() {
		assert.Equal(t, "/music/A.mp3", path)
	}
	h.assertOneJobAtATime(t)
}

func TestSkipMovesToNextTrack(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool { return h.rec.startedCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Skip())
	require.Eventually(t, func() bool { return h.rec.startedCount() == 2 }, 5*time.Second, 5*time.Millisecond)

	finished := h.rec.finishedEvents()
	require.Len(t, finished, 1)
	assert.Equal(t, relay.Cancelled, finished[0].Outcome.Status)
	assert.Equal(t, 1, h.mgr.Killed())
	assert.Equal(t, float64(1), h.ctrl.Metrics().Total("player.skips"))
	assert.Equal(t, StatePlaying, h.ctrl.State())

	require.NoError(t, h.ctrl.Disconnect())
	assert.Equal(t, 2, h.mgr.Started())
	assert.Equal(t, 2, h.mgr.Killed())
	h.assertOneJobAtATime(t)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t, endless, tracks("A", "B")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", false))
	require.Eventually(t, func() bool { return h.rec.startedCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Disconnect())
	require.NoError(t, h.ctrl.Disconnect())

	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.Equal(t, h.mgr.Started(), h.mgr.Killed())
	assert.Nil(t, h.mgr.Active())
	assert.True(t, h.cat.IsEmpty())
	assert.Empty(t, h.ctrl.SessionID())

	conn := h.provider.conn(t)
	_, closed, _ := conn.sink.snapshot()
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, conn.Disconnects())

	h.rec.mu.Lock()
	assert.Len(t, h.rec.sessionEnds, 1)
	h.rec.mu.Unlock()

	err := h.ctrl.Play(context.Background(), "voice", "text", false)
	assert.ErrorIs(t, err, ErrAlreadyPlaying)
}

func TestDisconnectFromIdle(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	require.NoError(t, h.ctrl.Disconnect())
	waitDone(t, h.ctrl)
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.Zero(t, h.provider.calls)
	assert.Empty(t, h.launcher.Launches())
}

func TestPlayWhilePlaying(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	err := h.ctrl.Play(context.Background(), "voice", "text", true)
	assert.ErrorIs(t, err, ErrAlreadyPlaying)
}

func TestPlayConnectFailure(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)
	h.provider.err = errors.New("voice gateway unavailable")

	err := h.ctrl.Play(context.Background(), "voice", "text", false)
	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "voice", connErr.ChannelID)
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.launcher.Launches())
	assert.Equal(t, 1, h.cat.Len())

	h.provider.mu.Lock()
	h.provider.err = nil
	h.provider.mu.Unlock()
	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", false))
}

func TestPlayConnectTimeout(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)
	h.provider.block = true

	start := time.Now()
	err := h.ctrl.Play(context.Background(), "voice", "text", false)
	assert.Less(t, time.Since(start), 2*time.Second)

	var connErr *ConnectError
	require.True(t, errors.As(err, &connErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestDisconnectWhileConnecting(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)
	h.provider.block = true

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Play(context.Background(), "voice", "text", false) }()
	require.Eventually(t, func() bool { return h.ctrl.State() == StateConnecting }, time.Second, time.Millisecond)

	require.NoError(t, h.ctrl.Disconnect())
	err := <-errc
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, StateDisconnected, h.ctrl.State())
	assert.Empty(t, h.launcher.Launches())
}

func TestPauseToggles(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	_, err := h.ctrl.Pause()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, h.ctrl.Skip(), ErrInvalidState)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool { return h.rec.startedCount() == 1 }, 5*time.Second, 5*time.Millisecond)
	conn := h.provider.conn(t)

	paused, err := h.ctrl.Pause()
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, StatePaused, h.ctrl.State())
	sinkPaused, _, _ := conn.sink.snapshot()
	assert.True(t, sinkPaused)

	paused, err = h.ctrl.Pause()
	require.NoError(t, err)
	assert.False(t, paused)
	assert.Equal(t, StatePlaying, h.ctrl.State())
	sinkPaused, _, _ = conn.sink.snapshot()
	assert.False(t, sinkPaused)
}

func TestSkipWhilePausedStaysPaused(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool { return h.rec.startedCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	_, err := h.ctrl.Pause()
	require.NoError(t, err)

	require.NoError(t, h.ctrl.Skip())
	require.Eventually(t, func() bool { return h.rec.startedCount() == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePaused, h.ctrl.State())
	assert.True(t, h.ctrl.Paused())

	// a paused sink must not pin the teardown
	require.NoError(t, h.ctrl.Disconnect())
	assert.Equal(t, h.mgr.Started(), h.mgr.Killed())
}

func TestStartFailureRemovesTrack(t *testing.T) {
	h := newHarness(t, relay.DefaultFrameSize, tracks("bad", "good")...)
	h.launcher.fail["/music/bad.mp3"] = true

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool {
		return h.rec.startedCount() >= 2 && h.cat.Len() == 1
	}, 5*time.Second, 5*time.Millisecond)

	left := h.cat.Tracks()
	require.Len(t, left, 1)
	assert.Equal(t, "good", left[0].Name)
	require.NoError(t, h.ctrl.Disconnect())
	assert.NoError(t, h.ctrl.Err())
}

func TestFailureBudgetEndsSession(t *testing.T) {
	h := newHarness(t, relay.DefaultFrameSize, tracks("A", "B", "C", "D")...)
	for _, track := range tracks("A", "B", "C", "D") {
		h.launcher.fail[track.Path] = true
	}

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	waitDone(t, h.ctrl)

	assert.ErrorIs(t, h.ctrl.Err(), ErrTooManyFailures)
	assert.Len(t, h.launcher.Launches(), 3)
	assert.Zero(t, h.mgr.Started())
	assert.Equal(t, float64(3), h.ctrl.Metrics().Total("player.errors"))
}

func TestAnnounceFailureDoesNotStopPlayback(t *testing.T) {
	h := newHarness(t, relay.DefaultFrameSize, tracks("A", "B")...)
	h.announcer.err = errors.New("missing permissions")

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", false))
	waitDone(t, h.ctrl)

	assert.NoError(t, h.ctrl.Err())
	assert.Equal(t, 2, h.mgr.Started())
	texts := h.announcer.Texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Now playing")
}

func TestNowPlaying(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	_, ok := h.ctrl.NowPlaying()
	assert.False(t, ok)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool { return h.rec.startedCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	track, ok := h.ctrl.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "A", track.Name)
	assert.NotEmpty(t, h.ctrl.SessionID())
	assert.True(t, h.ctrl.Loop())
}

func TestRelayFailureMovesToNextTrack(t *testing.T) {
	h := newHarness(t, 2*relay.DefaultFrameSize, tracks("A", "B")...)
	h.provider.failWrites = 1

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", false))
	waitDone(t, h.ctrl)

	assert.NoError(t, h.ctrl.Err())
	finished := h.rec.finishedEvents()
	require.Len(t, finished, 2)
	assert.Equal(t, relay.Failed, finished[0].Outcome.Status)
	assert.ErrorIs(t, finished[0].Outcome.Err, errVoiceWrite)
	assert.Equal(t, relay.Completed, finished[1].Outcome.Status)
	assert.NotEqual(t, finished[0].Track.Path, finished[1].Track.Path)

	assert.Equal(t, 2, h.mgr.Started())
	assert.Equal(t, 2, h.mgr.Killed())
	assert.Equal(t, float64(1), h.ctrl.Metrics().Total("player.errors"))
	h.assertOneJobAtATime(t)
}

func TestSecondSkipDuringOneTrackIsNoop(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool { return h.rec.startedCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.Skip())
	require.NoError(t, h.ctrl.Skip())
	require.Eventually(t, func() bool { return h.rec.startedCount() == 2 }, 5*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, h.rec.startedCount(), "the following track keeps playing")
	assert.Len(t, h.rec.finishedEvents(), 1)
	assert.Equal(t, float64(1), h.ctrl.Metrics().Total("player.skips"))
	assert.Len(t, h.launcher.Launches(), 2)
}

func TestSetPausedIsIdempotent(t *testing.T) {
	h := newHarness(t, endless, tracks("A")...)

	_, err := h.ctrl.SetPaused(true)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, h.ctrl.Play(context.Background(), "voice", "text", true))
	require.Eventually(t, func() bool { return h.rec.startedCount() == 1 }, 5*time.Second, 5*time.Millisecond)

	changed, err := h.ctrl.SetPaused(true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = h.ctrl.SetPaused(true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, h.ctrl.Paused())
	assert.Equal(t, StatePaused, h.ctrl.State())

	changed, err = h.ctrl.SetPaused(false)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = h.ctrl.SetPaused(false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatePlaying, h.ctrl.State())
}

func TestCallerCancelAfterConnectKeepsSession(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, endless, tracks("A")...)
		ctx, cancel := context.WithCancel(context.Background())
		h.provider.onConnect = func() { go cancel() }

		if err := h.ctrl.Play(ctx, "voice", "text", true); err != nil {
			// the cancel landed while connecting
			assert.ErrorIs(t, err, context.Canceled)
			continue
		}

		time.Sleep(10 * time.Millisecond)
		select {
		case <-h.ctrl.Done():
			t.Fatalf("iteration %d: session ended after the caller's context was cancelled", i)
		default:
		}
		require.NoError(t, h.ctrl.Disconnect())
		assert.NoError(t, h.ctrl.Err())
	}
}
