// Package model owns the speech-synthesis model for the lifetime of the
// process. A Host is opened once at startup and shared by every request.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/go-coqui-tts/internal/config"
)

var (
	// ErrEmptyOutput is returned when a backend reports success but left no
	// audio at the destination path.
	ErrEmptyOutput = errors.New("synthesis produced no output")
	// ErrNotReady is returned when the model does not become ready within
	// the load timeout.
	ErrNotReady = errors.New("model not ready")
)

// Host renders text to a WAV file using a loaded model.
type Host interface {
	// ModelID is the short identifier of the loaded model, e.g. "tacotron2-DDC".
	ModelID() string
	// SynthesizeToFile writes a WAV rendering of text to dst, replacing any
	// existing file. On error dst may be absent or partial.
	SynthesizeToFile(ctx context.Context, text, dst string) error
	// Close releases the model. The Host must not be used afterwards.
	Close() error
}

// Open loads the model described by cfg and returns once it can serve
// synthesis calls. Startup failures are returned as-is; callers treat them as
// fatal.
func Open(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (Host, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := config.NormalizeBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout(cfg))
	defer cancel()

	start := time.Now()
	logger.Info("loading model",
		slog.String("backend", backend),
		slog.String("model", cfg.Name),
	)

	var h Host
	switch backend {
	case config.BackendServer:
		h, err = StartServer(loadCtx, ServerOptions{
			Executable: cfg.ServerPath,
			ModelName:  cfg.Name,
			ModelID:    cfg.ShortID(),
			Port:       cfg.Port,
			GPU:        cfg.GPU,
			SpeakerID:  cfg.SpeakerID,
			LanguageID: cfg.LanguageID,
			Logger:     logger,
		})
	case config.BackendRemote:
		h, err = DialRemote(loadCtx, RemoteOptions{
			BaseURL:    cfg.URL,
			ModelID:    cfg.ShortID(),
			SpeakerID:  cfg.SpeakerID,
			LanguageID: cfg.LanguageID,
		})
	case config.BackendCLI:
		h, err = OpenCLI(loadCtx, CLIOptions{
			Executable: cfg.CLIPath,
			ModelName:  cfg.Name,
			ModelID:    cfg.ShortID(),
			GPU:        cfg.GPU,
			SpeakerID:  cfg.SpeakerID,
			LanguageID: cfg.LanguageID,
		})
	default:
		err = fmt.Errorf("unsupported backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("load model %s (%s backend): %w", cfg.Name, backend, err)
	}

	logger.Info("model loaded",
		slog.String("backend", backend),
		slog.String("model", h.ModelID()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return Limit(h, cfg.MaxConcurrent), nil
}

func loadTimeout(cfg config.ModelConfig) time.Duration {
	if cfg.LoadTimeout <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(cfg.LoadTimeout) * time.Second
}

// checkOutput verifies a backend actually left audio at dst.
func checkOutput(dst string) error {
	fi, err := os.Stat(dst)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrEmptyOutput
		}
		return err
	}
	if fi.Size() == 0 {
		return ErrEmptyOutput
	}
	return nil
}

// Exited returns a channel closed when the process backing h stops, or nil
// when h does not own a process.
func Exited(h Host) <-chan struct{} {
	switch v := h.(type) {
	case *limited:
		return Exited(v.Host)
	case *Server:
		return v.Done()
	}
	return nil
}
