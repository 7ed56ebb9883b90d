package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeWAV builds a minimal PCM WAV file from parameters for testing.
func makeWAV(sampleRate uint32, numChannels uint16, bitDepth uint16, numFrames int) []byte {
	blockAlign := numChannels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(numFrames) * uint32(blockAlign)
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, numChannels)
	_ = binary.Write(buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, bitDepth)

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}

func TestInspect_Tacotron2Format(t *testing.T) {
	// tacotron2-DDC writes 22050 Hz mono 16-bit.
	data := makeWAV(22050, 1, 16, 22050)

	info, err := Inspect(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, 22050, info.Frames)
	assert.Equal(t, time.Second, info.Duration)
}

func TestInspect_StereoCountsFrames(t *testing.T) {
	data := makeWAV(16000, 2, 16, 8000)

	info, err := Inspect(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 8000, info.Frames)
	assert.Equal(t, 500*time.Millisecond, info.Duration)
}

func TestInspect_RejectsNonWAV(t *testing.T) {
	_, err := Inspect(bytes.NewReader([]byte("this is not audio at all, just text")))
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestInspect_RejectsEmpty(t *testing.T) {
	_, err := Inspect(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestInspect_RejectsZeroSamples(t *testing.T) {
	data := makeWAV(22050, 1, 16, 0)

	_, err := Inspect(bytes.NewReader(data))
	require.Error(t, err)
}

func TestInspectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, os.WriteFile(path, makeWAV(24000, 1, 16, 2400), 0o600))

	info, err := InspectFile(path)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, info.Duration)
}

func TestInspectFile_Missing(t *testing.T) {
	_, err := InspectFile(filepath.Join(t.TempDir(), "nope.wav"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEncodeWAV_RoundTripsThroughInspect(t *testing.T) {
	samples := Tone(440, 22050, 250*time.Millisecond)
	require.Len(t, samples, 5512)

	data, err := EncodeWAV(samples, 22050)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))

	info, err := Inspect(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, len(samples), info.Frames)
}

func TestEncodeWAV_InvalidSampleRate(t *testing.T) {
	_, err := EncodeWAV([]float32{0}, 0)
	require.Error(t, err)
}

func TestTone(t *testing.T) {
	assert.Nil(t, Tone(440, 0, time.Second))
	assert.Nil(t, Tone(440, 8000, 0))

	s := Tone(1000, 8000, 10*time.Millisecond)
	require.Len(t, s, 80)
	assert.InDelta(t, 0, s[0], 1e-6)
	for _, v := range s {
		assert.LessOrEqual(t, v, float32(0.5))
		assert.GreaterOrEqual(t, v, float32(-0.5))
	}
}

func TestSeekBuffer_OverwritesInPlace(t *testing.T) {
	var buf bytes.Buffer
	sb := &seekBuffer{buf: &buf}

	_, err := sb.Write([]byte("abcdef"))
	require.NoError(t, err)

	_, err = sb.Seek(2, 0)
	require.NoError(t, err)

	_, err = sb.Write([]byte("XYZW12"))
	require.NoError(t, err)

	assert.Equal(t, "abXYZW12", buf.String())

	_, err = sb.Seek(-1, 0)
	require.Error(t, err)
}
