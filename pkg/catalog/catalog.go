// Package catalog holds the set of local audio files eligible for playback in
// one session.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/latoulicious/radio/pkg/pipeline"
)

// ErrEmpty is returned by PickRandom when no tracks remain
var ErrEmpty = errors.New("catalog is empty")

// Error reports a directory that could not be enumerated
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Track is one playable audio file. Path identifies it.
type Track struct {
	Name     string
	Path     string
	Duration time.Duration
}

func (t Track) String() string {
	if t.Duration > 0 {
		return fmt.Sprintf("%s (%s)", t.Name, formatDuration(t.Duration))
	}
	return t.Name
}

// Catalog is the working set of tracks for a session. It is safe for
// concurrent use.
type Catalog struct {
	mu     sync.Mutex
	tracks []Track
	pick   func(n int) int
}

type options struct {
	prefix     string
	extensions map[string]bool
	probe      bool
	logger     pipeline.Logger
}

// Option configures Load
type Option func(*options)

// WithNamePrefix strips prefix from the start of every display name
func WithNamePrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithExtensions restricts the catalog to files with the given extensions
// (case-insensitive, with or without the leading dot)
func WithExtensions(exts ...string) Option {
	return func(o *options) {
		if len(exts) == 0 {
			return
		}
		o.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			o.extensions[ext] = true
		}
	}
}

// WithDurationProbe enables reading track lengths from mp3 and wav headers
func WithDurationProbe(enabled bool) Option {
	return func(o *options) { o.probe = enabled }
}

// WithLogger sets the logger used while loading
func WithLogger(logger pipeline.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Load enumerates dir non-recursively. Every regular, non-hidden file becomes
// a Track.
func Load(dir string, opts ...Option) (*Catalog, error) {
	o := options{logger: pipeline.NullLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}

	tracks := make([]Track, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if o.extensions != nil && !o.extensions[ext] {
			continue
		}

		track := Track{
			Name: DisplayName(entry.Name(), o.prefix),
			Path: filepath.Join(dir, entry.Name()),
		}
		if o.probe {
			d, err := probeDuration(track.Path)
			if err != nil {
				o.logger.Debug("Could not probe track duration",
					pipeline.String("path", track.Path),
					pipeline.Error(err),
				)
			}
			track.Duration = d
		}
		tracks = append(tracks, track)
	}

	o.logger.Info("Loaded catalog",
		pipeline.String("directory", dir),
		pipeline.Int("tracks", len(tracks)),
	)

	return New(tracks), nil
}

// New builds a catalog from tracks
func New(tracks []Track) *Catalog {
	dup := make([]Track, len(tracks))
	copy(dup, tracks)
	return &Catalog{tracks: dup, pick: rand.IntN}
}

// DisplayName derives a track title from a file name by removing prefix and
// the file extension
func DisplayName(fileName, prefix string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if prefix != "" {
		name = strings.TrimPrefix(name, prefix)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fileName
	}
	return name
}

// PickRandom returns a uniformly random track
func (c *Catalog) PickRandom() (Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tracks) == 0 {
		return Track{}, ErrEmpty
	}
	return c.tracks[c.pick(len(c.tracks))], nil
}

// Remove drops the track with the same path. Removing an absent track is a
// no-op.
func (c *Catalog) Remove(track Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.tracks {
		if t.Path == track.Path {
			c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
			return
		}
	}
}

// IsEmpty reports whether no tracks remain
func (c *Catalog) IsEmpty() bool {
	return c.Len() == 0
}

// Len returns the number of tracks
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

// Tracks returns a copy of the current tracks
func (c *Catalog) Tracks() []Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]Track, len(c.tracks))
	copy(result, c.tracks)
	return result
}

// Clear removes every track
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
