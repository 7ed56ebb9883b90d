// Package doctor provides environment preflight checks for coquitts.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ExecutableName labels the Coqui entry point being checked (tts or tts-server).
	ExecutableName string
	// ExecutableVersion describes the installed executable or reports it missing.
	ExecutableVersion VersionFunc
	// SkipExecutable skips the executable check (remote backend).
	SkipExecutable bool
	// PythonVersion returns the Python version string (e.g. "3.11.4").
	PythonVersion VersionFunc
	// SkipPython skips the Python version check (remote backend).
	SkipPython bool
	// RemoteURL is the tts-server address checked by PingRemote.
	RemoteURL string
	// PingRemote reports whether RemoteURL answers. Nil skips the check.
	PingRemote func() error
	// TempDir must be creatable and writable; empty skips the check.
	TempDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	name := cfg.ExecutableName
	if name == "" {
		name = "tts"
	}

	// ---- Coqui executable -------------------------------------------------
	switch {
	case cfg.SkipExecutable:
		fmt.Fprintf(w, "%s %s binary: skipped\n", PassMark, name)
	case cfg.ExecutableVersion == nil:
		res.fail(fmt.Sprintf("%s binary: no version probe configured", name))
		fmt.Fprintf(w, "%s %s binary: no version probe configured\n", FailMark, name)
	default:
		ver, err := cfg.ExecutableVersion()
		if err != nil {
			res.fail(fmt.Sprintf("%s binary: %v", name, err))
			fmt.Fprintf(w, "%s %s binary: not found (%v)\n", FailMark, name, err)
		} else {
			fmt.Fprintf(w, "%s %s binary: %s\n", PassMark, name, ver)
		}
	}

	// ---- Python version ---------------------------------------------------
	switch {
	case cfg.SkipPython:
		fmt.Fprintf(w, "%s python version: skipped\n", PassMark)
	case cfg.PythonVersion == nil:
		res.fail("python version: no version probe configured")
		fmt.Fprintf(w, "%s python version: no version probe configured\n", FailMark)
	default:
		pyVer, err := cfg.PythonVersion()
		if err != nil {
			res.fail(fmt.Sprintf("python version: %v", err))
			fmt.Fprintf(w, "%s python version: not found (%v)\n", FailMark, err)
		} else if pyErr := checkPythonVersion(pyVer); pyErr != nil {
			res.fail(fmt.Sprintf("python version: %v", pyErr))
			fmt.Fprintf(w, "%s python version %s: %v\n", FailMark, pyVer, pyErr)
		} else {
			fmt.Fprintf(w, "%s python version: %s\n", PassMark, pyVer)
		}
	}

	// ---- remote tts-server ------------------------------------------------
	if cfg.PingRemote != nil {
		if err := cfg.PingRemote(); err != nil {
			res.fail(fmt.Sprintf("tts-server %s: %v", cfg.RemoteURL, err))
			fmt.Fprintf(w, "%s tts-server %s: unreachable (%v)\n", FailMark, cfg.RemoteURL, err)
		} else {
			fmt.Fprintf(w, "%s tts-server: %s\n", PassMark, cfg.RemoteURL)
		}
	}

	// ---- temp dir ---------------------------------------------------------
	if cfg.TempDir != "" {
		if err := checkWritableDir(cfg.TempDir); err != nil {
			res.fail(fmt.Sprintf("temp dir %q: %v", cfg.TempDir, err))
			fmt.Fprintf(w, "%s temp dir %s: %v\n", FailMark, cfg.TempDir, err)
		} else {
			fmt.Fprintf(w, "%s temp dir: %s\n", PassMark, cfg.TempDir)
		}
	}

	return res
}

// checkWritableDir creates dir if needed and writes a probe file into it.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// checkPythonVersion returns an error if ver is outside [3.9, 3.12), the
// range Coqui TTS publishes wheels for. ver is expected to look like "3.11.4".
func checkPythonVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 3 {
		return fmt.Errorf("requires Python 3, got %d", major)
	}
	if minor < 9 {
		return fmt.Errorf("requires Python >=3.9, got 3.%d", minor)
	}
	if minor >= 12 {
		return fmt.Errorf("requires Python <3.12, got 3.%d", minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
