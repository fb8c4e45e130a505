// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireONNXRuntime(t)
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

var ortSystemCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
}

// ONNXRuntimeLibrary returns the path of the ONNX Runtime shared library, or
// "" when none can be located. It checks (in order): the GRAPHSPLIT_ORT_LIB
// env var, the ORT_LIBRARY_PATH env var, then common system library paths.
func ONNXRuntimeLibrary() string {
	for _, env := range []string{"GRAPHSPLIT_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}

	for _, p := range ortSystemCandidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. An env var that points at a missing file skips with a message
// naming the stale path instead of silently falling through.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	for _, env := range []string{"GRAPHSPLIT_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return // found
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}

	for _, p := range ortSystemCandidates {
		if _, err := os.Stat(p); err == nil {
			return // found
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set GRAPHSPLIT_ORT_LIB or ORT_LIBRARY_PATH")
}
