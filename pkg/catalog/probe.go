package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

var errUnsupportedFormat = errors.New("unsupported format for duration probe")

// probeDuration decodes the header of an mp3 or wav file and returns its
// length. Other formats return errUnsupportedFormat.
func probeDuration(path string) (time.Duration, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".mp3" && ext != ".wav" {
		return 0, errUnsupportedFormat
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), nil
}
