package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/go-coqui-tts/internal/audio"
	"github.com/example/go-coqui-tts/internal/config"
	"github.com/example/go-coqui-tts/internal/server"
	"github.com/spf13/cobra"
)

const (
	dryRunSampleRate = 22050
	dryRunFreqHz     = 440
)

func newSynthCmd() *cobra.Command {
	var text string
	var out string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := server.ValidateText(inputText, cfg.Server.MaxTextChars); err != nil {
				return err
			}

			var result []byte
			if dryRun {
				result, err = synthesizeTone(inputText)
			} else {
				result, err = synthesizeWithHost(cmd.Context(), cfg, inputText)
			}
			if err != nil {
				return mapSynthError(err)
			}

			return writeSynthOutput(out, result, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", server.DownloadName, "Output WAV path ('-' for stdout)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Write a test tone instead of loading the model")

	return cmd
}

// synthesizeWithHost loads the configured model, synthesizes text once and
// returns the WAV bytes.
func synthesizeWithHost(ctx context.Context, cfg config.Config, text string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	host, err := openHost(ctx, cfg.Model, slog.Default())
	if err != nil {
		return nil, err
	}
	defer func() { _ = host.Close() }()

	dir, err := os.MkdirTemp(cfg.Server.TempDir, "coquitts-synth-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Server.RequestTimeout)*time.Second)
		defer cancel()
	}

	outPath := filepath.Join(dir, server.DownloadName)
	if err := host.SynthesizeToFile(ctx, text, outPath); err != nil {
		return nil, err
	}
	if _, err := audio.InspectFile(outPath); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// synthesizeTone renders a sine tone whose length grows with the input, for
// checking the output path without a model.
func synthesizeTone(text string) ([]byte, error) {
	dur := time.Duration(len([]rune(text))) * 50 * time.Millisecond
	return audio.EncodeWAV(audio.Tone(dryRunFreqHz, dryRunSampleRate, dur), dryRunSampleRate)
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}

func mapSynthError(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("synth failed: coqui executable not found; set --model-cli-path or --model-server-path: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("synth failed: timed out; raise --server-request-timeout: %w", err)
	}

	return fmt.Errorf("synth failed: %w", err)
}
