// Package media provides decoder services for clips: PCM audio loaded from
// WAV or MP3 files, still image sequences and synthetic video.
package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/reelcut/playback/pkg/core"
)

var (
	// ErrNoVideo is returned by audio-only sources asked for a picture.
	ErrNoVideo = errors.New("source has no video")
	// ErrNoAudio is returned by video-only sources asked for samples.
	ErrNoAudio = errors.New("source has no audio")
	// ErrOutOfRange is returned for positions outside the media.
	ErrOutOfRange = errors.New("position outside media")
)

// Open loads the media at path for props, choosing the decoder by extension.
// A directory is read as an image sequence.
func Open(path string, props core.Properties) (core.Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return LoadWAV(path, props)
	case ".mp3":
		return LoadMP3(path, props)
	case "":
		return NewImageSequence(path)
	default:
		return nil, fmt.Errorf("unsupported media %q", path)
	}
}
