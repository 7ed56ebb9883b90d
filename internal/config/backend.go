package config

import (
	"fmt"
	"strings"
)

const (
	BackendServer = "server"
	BackendRemote = "remote"
	BackendCLI    = "cli"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendServer
	}
	switch backend {
	case BackendServer, BackendRemote, BackendCLI:
		return backend, nil
	case "tts-server", "managed":
		return BackendServer, nil
	case "http":
		return BackendRemote, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|%s)",
			raw,
			BackendServer,
			BackendRemote,
			BackendCLI,
		)
	}
}
