package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBinaryPath_EnvOverride(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "fit_agent")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))
	t.Setenv(envBinary, bin)

	assert.Equal(t, bin, getBinaryPath(t))
}
