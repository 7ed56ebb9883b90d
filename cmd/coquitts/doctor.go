package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/go-coqui-tts/internal/config"
	"github.com/example/go-coqui-tts/internal/doctor"
	"github.com/example/go-coqui-tts/internal/model"
	"github.com/spf13/cobra"
)

const remotePingTimeout = 5 * time.Second

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model host checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			dcfg, err := buildDoctorConfig(cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "backend: %s\n", dcfg.backend)

			result := doctor.Run(dcfg.Config, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					// #nosec G705 -- Writes plain diagnostic text to stderr for CLI output, not HTML rendering.
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

type doctorPlan struct {
	doctor.Config
	backend string
}

// buildDoctorConfig selects the checks relevant to the configured backend.
func buildDoctorConfig(cfg config.Config) (doctorPlan, error) {
	backend, err := config.NormalizeBackend(cfg.Model.Backend)
	if err != nil {
		return doctorPlan{}, err
	}

	tempDir := cfg.Server.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "coquitts")
	}

	plan := doctorPlan{backend: backend}
	plan.TempDir = tempDir

	if backend == config.BackendRemote {
		plan.SkipExecutable = true
		plan.SkipPython = true
		plan.RemoteURL = cfg.Model.URL
		plan.PingRemote = func() error {
			r, err := model.NewRemote(model.RemoteOptions{BaseURL: cfg.Model.URL})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), remotePingTimeout)
			defer cancel()
			return r.Ping(ctx)
		}
		return plan, nil
	}

	exe := cfg.Model.ServerPath
	if exe == "" {
		exe = "tts-server"
	}
	if backend == config.BackendCLI {
		exe = cfg.Model.CLIPath
		if exe == "" {
			exe = "tts"
		}
	}

	plan.ExecutableName = filepath.Base(exe)
	plan.ExecutableVersion = func() (string, error) {
		return probeExecutable(exe)
	}
	plan.PythonVersion = func() (string, error) {
		return probePythonVersion(model.DetectPython(exe))
	}
	return plan, nil
}

// probeExecutable resolves exe on PATH and reports where it lives. Coqui's
// entry points have no --version flag, so presence plus --help exiting 0 is
// the check.
func probeExecutable(exe string) (string, error) {
	resolved, err := exec.LookPath(exe)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// #nosec G204 -- executable comes from operator config.
	if err := exec.CommandContext(ctx, resolved, "--help").Run(); err != nil {
		return "", fmt.Errorf("%s --help failed: %w", exe, err)
	}

	return resolved, nil
}

// probePythonVersion runs `<bin> --version` and returns e.g. "3.11.4".
func probePythonVersion(bin string) (string, error) {
	out, err := exec.CommandContext(context.Background(), bin, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s --version failed: %w", bin, err)
	}

	// Output is e.g. "Python 3.11.4\n"
	raw := strings.TrimSpace(string(out))
	raw = strings.TrimPrefix(raw, "Python ")
	if raw == "" {
		return "", fmt.Errorf("%s --version printed nothing", bin)
	}

	return raw, nil
}
