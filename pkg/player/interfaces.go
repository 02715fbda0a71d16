package player

import (
	"context"
	"io"
	"time"

	"github.com/latoulicious/radio/pkg/catalog"
	"github.com/latoulicious/radio/pkg/relay"
	"github.com/latoulicious/radio/pkg/transcode"
)

// Sink accepts raw 48kHz stereo s16le PCM for real-time delivery. Sinks whose
// writes can block should also implement relay.ContextWriter.
type Sink interface {
	io.Writer
	Pause()
	Resume()
	Close() error
}

// Connection is a live voice connection to one channel
type Connection interface {
	Sink() Sink
	Disconnect() error
}

// SessionProvider joins voice channels
type SessionProvider interface {
	Connect(ctx context.Context, channelID string) (Connection, error)
}

// Announcer posts text to a channel. Failures are logged, never fatal.
type Announcer interface {
	Announce(ctx context.Context, channelID, text string) error
}

// Transcoder runs one decoding job per track. *transcode.Manager implements it.
type Transcoder interface {
	Start(ctx context.Context, track catalog.Track) (*transcode.Job, error)
	Kill(job *transcode.Job) error
}

// SessionEvent describes a playback session
type SessionEvent struct {
	SessionID string
	GuildID   string
	ChannelID string
	Loop      bool
	StartedAt time.Time
	EndedAt   time.Time
	Err       error
}

// TrackEvent describes one track within a session. Outcome is zero for
// TrackStarted.
type TrackEvent struct {
	SessionID string
	GuildID   string
	Track     catalog.Track
	StartedAt time.Time
	Outcome   relay.Outcome
}

// Observer receives lifecycle events on the track loop goroutine. Observers
// must not block and must not call back into the controller.
type Observer interface {
	SessionStarted(SessionEvent)
	TrackStarted(TrackEvent)
	TrackFinished(TrackEvent)
	SessionEnded(SessionEvent)
}

// NopObserver implements Observer with no-ops, for embedding
type NopObserver struct{}

func (NopObserver) SessionStarted(SessionEvent) {}
func (NopObserver) TrackStarted(TrackEvent)     {}
func (NopObserver) TrackFinished(TrackEvent)    {}
func (NopObserver) SessionEnded(SessionEvent)   {}

type nopAnnouncer struct{}

func (nopAnnouncer) Announce(context.Context, string, string) error { return nil }
