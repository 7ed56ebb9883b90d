package audio

import (
	"math"
	"time"
)

// Tone returns a sine wave at freqHz with amplitude 0.5. It is used as a
// stand-in for model output where no model is available.
func Tone(freqHz float64, sampleRate int, dur time.Duration) []float32 {
	if sampleRate < 1 || dur <= 0 {
		return nil
	}
	n := int(dur.Seconds() * float64(sampleRate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
	}
	return out
}
