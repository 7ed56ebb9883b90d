package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cwbudde/wav"
)

var (
	// ErrInvalidWAV is returned when the input is not a RIFF/WAVE PCM file.
	ErrInvalidWAV = errors.New("invalid WAV file")
	// ErrNoSamples is returned for a well-formed WAV with an empty data chunk.
	ErrNoSamples = errors.New("WAV contains no samples")
)

// Info describes a decoded WAV stream.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	Duration   time.Duration
}

// Inspect decodes r and reports its format. It fails if r is not a WAV file
// or carries no audio.
func Inspect(r io.ReadSeeker) (Info, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Info{}, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("reading PCM data: %w", err)
	}

	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if info.SampleRate < 1 || info.Channels < 1 {
		return Info{}, fmt.Errorf("%w: sample rate %d, channels %d", ErrInvalidWAV, info.SampleRate, info.Channels)
	}

	info.Frames = len(buf.Data) / info.Channels
	if info.Frames == 0 {
		return Info{}, ErrNoSamples
	}
	info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)

	return info, nil
}

// InspectFile is Inspect for a file on disk.
func InspectFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = f.Close() }()

	return Inspect(f)
}
