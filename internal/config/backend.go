package config

import (
	"fmt"
	"strings"
)

const (
	BackendCPU = "cpu"
	BackendORT = "ort"
)

// NormalizeBackend canonicalizes a backend name. An empty name means the CPU
// backend.
func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendCPU
	}
	switch backend {
	case BackendCPU, BackendORT:
		return backend, nil
	case "onnxruntime":
		return BackendORT, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s|onnxruntime)",
			raw,
			BackendCPU,
			BackendORT,
		)
	}
}
