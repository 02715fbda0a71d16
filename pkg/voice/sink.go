package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/radio/pkg/pipeline"
	"layeh.com/gopus"
)

const (
	sampleRate   = 48000
	channels     = 2
	frameSamples = 960                         // per channel, 20ms at 48kHz
	frameBytes   = frameSamples * channels * 2 // s16le
)

// ErrSinkClosed is returned by writes after Close
var ErrSinkClosed = errors.New("voice sink is closed")

// frameEncoder is the subset of *gopus.Encoder the sink uses
type frameEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

type speaker interface {
	Speaking(b bool) error
}

// Sink encodes PCM to Opus and feeds a voice connection. It blocks while
// paused.
type Sink struct {
	out         chan<- []byte
	speaker     speaker
	encoder     frameEncoder
	sendTimeout time.Duration
	logger      pipeline.Logger

	mu      sync.Mutex
	paused  bool
	resume  chan struct{}
	sent    int64
	dropped int64

	done      chan struct{}
	closeOnce sync.Once
}

// NewSink creates a sink on vc and marks the bot as speaking
func NewSink(vc *discordgo.VoiceConnection, cfg pipeline.DiscordConfig, logger pipeline.Logger) (*Sink, error) {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, err
	}
	encoder.SetBitrate(cfg.OpusBitrate)

	s := newSink(vc.OpusSend, vc, encoder, cfg.SendTimeout, logger)
	if err := vc.Speaking(true); err != nil {
		s.logger.Warn("Failed to set speaking state", pipeline.Error(err))
	}
	return s, nil
}

func newSink(out chan<- []byte, sp speaker, enc frameEncoder, sendTimeout time.Duration, logger pipeline.Logger) *Sink {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Sink{
		out:         out,
		speaker:     sp,
		encoder:     enc,
		sendTimeout: sendTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Write sends p, blocking while paused
func (s *Sink) Write(p []byte) (int, error) {
	return s.WriteContext(context.Background(), p)
}

// WriteContext sends p one 20ms frame at a time. A short final frame is
// padded with silence. It returns early when ctx is done.
func (s *Sink) WriteContext(ctx context.Context, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if err := s.waitResumed(ctx); err != nil {
			return written, err
		}

		end := written + frameBytes
		if end > len(p) {
			end = len(p)
		}
		if err := s.sendFrame(ctx, p[written:end]); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

func (s *Sink) sendFrame(ctx context.Context, frame []byte) error {
	pcm := make([]int16, frameSamples*channels)
	copy(pcm, bytesToInt16(frame))

	opus, err := s.encoder.Encode(pcm, frameSamples, frameBytes)
	if err != nil {
		s.logger.Warn("Opus encoding error, dropping frame", pipeline.Error(err))
		return nil
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	select {
	case s.out <- opus:
		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
		return nil
	case <-timer.C:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		if dropped%50 == 1 {
			s.logger.Warn("Voice send channel blocked, skipping frame", pipeline.Int64("dropped", dropped))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSinkClosed
	}
}

func (s *Sink) waitResumed(ctx context.Context) error {
	for {
		s.mu.Lock()
		paused, resume := s.paused, s.resume
		s.mu.Unlock()

		select {
		case <-s.done:
			return ErrSinkClosed
		default:
		}
		if !paused {
			return nil
		}

		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSinkClosed
		}
	}
}

// Pause holds subsequent writes until Resume
func (s *Sink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.resume = make(chan struct{})
	if err := s.speaker.Speaking(false); err != nil {
		s.logger.Debug("Failed to clear speaking state", pipeline.Error(err))
	}
}

// Resume releases writes held by Pause
func (s *Sink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resume)
	if err := s.speaker.Speaking(true); err != nil {
		s.logger.Debug("Failed to set speaking state", pipeline.Error(err))
	}
}

// Close unblocks pending writes and clears the speaking state. The voice
// connection itself is left open.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.speaker.Speaking(false); err != nil {
			s.logger.Debug("Failed to clear speaking state", pipeline.Error(err))
		}
		s.mu.Lock()
		s.logger.Debug("Voice sink closed",
			pipeline.Int64("frames_sent", s.sent),
			pipeline.Int64("frames_dropped", s.dropped),
		)
		s.mu.Unlock()
	})
	return nil
}

// Stats returns how many frames were sent and dropped
func (s *Sink) Stats() (sent, dropped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped
}

func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
