package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionHandle holds the voice connection and sink for one playback session
type SessionHandle struct {
	ID                string
	ChannelID         string
	AnnounceChannelID string
	AcquiredAt        time.Time

	conn Connection
	sink Sink

	once       sync.Once
	releaseErr error
}

// Sink returns the transport sink
func (h *SessionHandle) Sink() Sink {
	return h.sink
}

// Connection returns the voice connection
func (h *SessionHandle) Connection() Connection {
	return h.conn
}

// Release closes the sink and disconnects. Later calls return the first
// result.
func (h *SessionHandle) Release() error {
	h.once.Do(func() {
		h.releaseErr = errors.Join(h.sink.Close(), h.conn.Disconnect())
	})
	return h.releaseErr
}

// acquireSession connects to channelID, giving up after timeout. A connection
// that arrives after the deadline is disconnected.
func acquireSession(ctx context.Context, provider SessionProvider, channelID, announceChannelID string, timeout time.Duration) (*SessionHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		conn Connection
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := provider.Connect(ctx, channelID)
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &SessionHandle{
			ID:                uuid.NewString(),
			ChannelID:         channelID,
			AnnounceChannelID: announceChannelID,
			AcquiredAt:        time.Now(),
			conn:              r.conn,
			sink:              r.conn.Sink(),
		}, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}
