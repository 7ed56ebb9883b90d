package model

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-coqui-tts/internal/audio"
	"github.com/example/go-coqui-tts/internal/config"
)

func TestOpen_RemoteBackend(t *testing.T) {
	wav := toneWAV(t)
	srv := fakeCoquiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(wav)
	})

	cfg := config.DefaultConfig().Model
	cfg.Backend = "remote"
	cfg.URL = srv.URL
	cfg.LoadTimeout = 5

	h, err := Open(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	assert.Equal(t, "tacotron2-DDC", h.ModelID())
	_, isLimited := h.(*limited)
	assert.True(t, isLimited, "default max_concurrent=1 must serialize access")

	dst := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, h.SynthesizeToFile(context.Background(), "Hello world", dst))

	info, err := audio.InspectFile(dst)
	require.NoError(t, err)
	assert.Equal(t, 22050, info.SampleRate)
}

func TestOpen_CLIBackend(t *testing.T) {
	exe, _ := newFakeTTS(t)

	cfg := config.DefaultConfig().Model
	cfg.Backend = "cli"
	cfg.CLIPath = exe
	cfg.ID = "ljspeech"
	cfg.MaxConcurrent = 0

	h, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "ljspeech", h.ModelID())
	_, isCLI := h.(*CLI)
	assert.True(t, isCLI, "max_concurrent=0 leaves the backend unwrapped")
}

func TestOpen_LoadFailureIsReported(t *testing.T) {
	cfg := config.DefaultConfig().Model
	cfg.Backend = "cli"
	cfg.CLIPath = filepath.Join(t.TempDir(), "missing-tts")

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load model")
}

func TestOpen_InvalidBackend(t *testing.T) {
	cfg := config.DefaultConfig().Model
	cfg.Backend = "onnx"

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestOpen_RemoteUnreachableTimesOut(t *testing.T) {
	cfg := config.DefaultConfig().Model
	cfg.Backend = "remote"
	cfg.URL = "http://127.0.0.1:" + strconv.Itoa(freePort(t))
	cfg.LoadTimeout = 1

	start := time.Now()
	_, err := Open(context.Background(), cfg, nil)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLoadTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Minute, loadTimeout(config.ModelConfig{}))
	assert.Equal(t, 7*time.Second, loadTimeout(config.ModelConfig{LoadTimeout: 7}))
}

func TestCheckOutput(t *testing.T) {
	dir := t.TempDir()

	require.ErrorIs(t, checkOutput(filepath.Join(dir, "missing.wav")), ErrEmptyOutput)

	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	require.ErrorIs(t, checkOutput(empty), ErrEmptyOutput)

	full := filepath.Join(dir, "full.wav")
	require.NoError(t, os.WriteFile(full, []byte("RIFF"), 0o600))
	require.NoError(t, checkOutput(full))
}

func TestExited(t *testing.T) {
	assert.Nil(t, Exited(&countingHost{}))
	assert.Nil(t, Exited(Limit(&countingHost{}, 1)))

	done := make(chan struct{})
	s := &Server{done: done}
	assert.Equal(t, (<-chan struct{})(done), Exited(s))
	assert.Equal(t, (<-chan struct{})(done), Exited(Limit(s, 1)))
}
