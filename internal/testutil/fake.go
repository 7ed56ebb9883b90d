package testutil

import (
	"context"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/example/go-coqui-tts/internal/audio"
)

// FakeSampleRate is the sample rate of audio written by FakeHost, matching
// tacotron2-DDC.
const FakeSampleRate = 22050

// FakeHost stands in for a loaded model. It writes a tone whose length is
// FramesPerChar frames per input character, so callers can tell which text a
// file was rendered from.
type FakeHost struct {
	ID    string
	Err   error
	Delay time.Duration
	// Raw, when set, is written verbatim instead of a WAV.
	Raw []byte

	mu    sync.Mutex
	calls []FakeCall
}

// FakeCall records one SynthesizeToFile invocation.
type FakeCall struct {
	Text string
	Dst  string
}

// FramesPerChar is the number of audio frames FakeHost renders per character.
const FramesPerChar = 100

func (f *FakeHost) ModelID() string {
	if f.ID == "" {
		return "tacotron2-DDC"
	}
	return f.ID
}

func (f *FakeHost) Close() error { return nil }

func (f *FakeHost) SynthesizeToFile(ctx context.Context, text, dst string) error {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Text: text, Dst: dst})
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.Err != nil {
		return f.Err
	}
	if f.Raw != nil {
		return os.WriteFile(dst, f.Raw, 0o600)
	}

	n := utf8.RuneCountInString(text) * FramesPerChar
	dur := time.Duration(n) * time.Second / FakeSampleRate
	samples := audio.Tone(440, FakeSampleRate, dur)
	// Pad rounding loss so the frame count is exact.
	for len(samples) < n {
		samples = append(samples, 0)
	}
	data, err := audio.EncodeWAV(samples[:n], FakeSampleRate)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

// Calls returns a copy of the recorded invocations.
func (f *FakeHost) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}
