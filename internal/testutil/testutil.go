// Package testutil provides shared skip helpers, fakes and WAV assertions for
// tests.
//
// Skip helpers call t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    exe := testutil.RequireCoquiTTS(t)
//	    ...
//	}
package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// RequireCoquiTTS skips the test if the Coqui `tts` executable is not found in
// PATH or at COQUITTS_MODEL_CLI_PATH. It returns the resolved path.
func RequireCoquiTTS(tb testing.TB) string {
	tb.Helper()
	return requireExecutable(tb, "COQUITTS_MODEL_CLI_PATH", "tts")
}

// RequireTTSServer skips the test if Coqui's `tts-server` executable is not
// found in PATH or at COQUITTS_MODEL_SERVER_PATH. It returns the resolved path.
func RequireTTSServer(tb testing.TB) string {
	tb.Helper()
	return requireExecutable(tb, "COQUITTS_MODEL_SERVER_PATH", "tts-server")
}

// RequireRemoteURL skips the test unless COQUITTS_TEST_REMOTE_URL names a
// running tts-server.
func RequireRemoteURL(tb testing.TB) string {
	tb.Helper()

	u := os.Getenv("COQUITTS_TEST_REMOTE_URL")
	if u == "" {
		tb.Skipf("COQUITTS_TEST_REMOTE_URL not set; no tts-server to test against")
	}
	return u
}

func requireExecutable(tb testing.TB, envVar, fallback string) string {
	tb.Helper()

	exe := os.Getenv(envVar)
	if exe == "" {
		exe = fallback
	}

	resolved, err := exec.LookPath(exe)
	if err != nil {
		tb.Skipf("%s not available (%q not in PATH); set %s to override", fallback, exe, envVar)
		return ""
	}
	return resolved
}
