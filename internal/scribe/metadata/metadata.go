// Package metadata reads audio duration from file headers without decoding audio.
package metadata

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidFormat indicates the file does not match the format its parser expects.
var ErrInvalidFormat = errors.New("invalid audio format")

// AudioMetadata contains metadata extracted from an audio file.
type AudioMetadata struct {
	CreationTime time.Time
	Duration     time.Duration
}

// Extractor parses one container format.
type Extractor func(path string) (*AudioMetadata, error)

var extractors = map[string]Extractor{
	".m4a":  ExtractM4A,
	".mp4":  ExtractM4A,
	".wav":  ExtractWAV,
	".flac": ExtractFLAC,
}

// Duration returns the length of the recording at path. The second result is false
// when the format is unsupported, the header is unreadable, or the duration
// is zero.
func Duration(path string) (time.Duration, bool) {
	extract, ok := extractors[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return 0, false
	}
	meta, err := extract(path)
	if err != nil || meta.Duration <= 0 {
		return 0, false
	}
	return meta.Duration, true
}

// Minutes converts a duration to whole minutes, rounding to nearest, with a
// minimum of one.
func Minutes(d time.Duration) int {
	m := int(math.Round(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
