package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// warmupText is synthesized once when the CLI backend is opened so that a
// missing or broken model fails at startup, not on the first request.
const warmupText = "Ready."

// CLIOptions configures the per-call Coqui `tts` executable backend.
type CLIOptions struct {
	Executable string
	ModelName  string
	ModelID    string
	GPU        bool
	SpeakerID  string
	LanguageID string
	// SkipWarmup skips the startup synthesis.
	SkipWarmup bool
}

// CLI runs the Coqui `tts` command once per synthesis. Each call reloads the
// model from the local cache, trading latency for having no resident process.
type CLI struct {
	exe  string
	opts CLIOptions
}

// OpenCLI resolves the executable and, unless opts.SkipWarmup is set,
// performs one warm-up synthesis.
func OpenCLI(ctx context.Context, opts CLIOptions) (*CLI, error) {
	if opts.ModelName == "" {
		return nil, errors.New("model name is required")
	}
	exe := opts.Executable
	if exe == "" {
		exe = "tts"
	}
	resolved, err := exec.LookPath(exe)
	if err != nil {
		return nil, fmt.Errorf("coqui tts executable: %w", err)
	}

	c := &CLI{exe: resolved, opts: opts}
	if opts.SkipWarmup {
		return c, nil
	}

	dir, err := os.MkdirTemp("", "coquitts-warmup-")
	if err != nil {
		return nil, fmt.Errorf("warm-up dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if err := c.SynthesizeToFile(ctx, warmupText, filepath.Join(dir, "warmup.wav")); err != nil {
		return nil, fmt.Errorf("warm-up synthesis: %w", err)
	}
	return c, nil
}

func (c *CLI) ModelID() string { return c.opts.ModelID }

func (c *CLI) Close() error { return nil }

// args builds the tts argv. Values are attached with "=" so argparse never
// reads text such as "-hello" as an option.
func (c *CLI) args(text, dst string) []string {
	args := []string{
		"--text=" + text,
		"--model_name=" + c.opts.ModelName,
		"--out_path=" + dst,
	}
	if c.opts.GPU {
		args = append(args, "--use_cuda=true")
	}
	if c.opts.SpeakerID != "" {
		args = append(args, "--speaker_idx="+c.opts.SpeakerID)
	}
	if c.opts.LanguageID != "" {
		args = append(args, "--language_idx="+c.opts.LanguageID)
	}
	return args
}

func (c *CLI) SynthesizeToFile(ctx context.Context, text, dst string) error {
	// #nosec G204 -- arguments are passed as argv, never through a shell.
	cmd := exec.CommandContext(ctx, c.exe, c.args(text, dst)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if tail := lastLine(stderr.String()); tail != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(c.exe), err, tail)
		}
		return fmt.Errorf("%s: %w", filepath.Base(c.exe), err)
	}
	return checkOutput(dst)
}

// lastLine returns the last non-empty line of s, which for a Python traceback
// is the exception message.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
