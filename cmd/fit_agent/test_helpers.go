package main

import (
	"os"
	"path/filepath"
	"testing"
)

// envBinary overrides the binary the CLI tests execute
const envBinary = "FIT_AGENT_BIN"

// getBinaryPath returns the fit_agent binary the CLI tests run: $FIT_AGENT_BIN if set,
// otherwise bin/fit_agent at the module root as written by `make build`.
func getBinaryPath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := os.Getenv(envBinary)
	if binaryPath == "" {
		binaryPath = filepath.Join("..", "..", "bin", "fit_agent")
	}
	if _, err := os.Stat(binaryPath); err != nil {
		t.Skipf("fit_agent binary not found at %s; run 'make build' or set %s", binaryPath, envBinary)
	}
	return binaryPath
}
