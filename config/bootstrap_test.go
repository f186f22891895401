package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFakeBinary drops an executable stub at dir/name so exec.LookPath
// (given an absolute path) reports it as present without touching the host
// PATH or requiring a real media toolchain.
func writeFakeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func TestBootstrapCreatesLayoutAndAcceptsToolchain(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake shebang binaries require a POSIX shell")
	}
	binDir := t.TempDir()
	ffmpegPath := writeFakeBinary(t, binDir, "ffmpeg")
	writeFakeBinary(t, binDir, "ffprobe")

	origPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", binDir+string(os.PathListSeparator)+origPath))
	defer os.Setenv("PATH", origPath)

	dataDir := t.TempDir()
	require.NoError(t, Bootstrap(dataDir, ffmpegPath))

	for _, d := range dataDirs {
		info, err := os.Stat(filepath.Join(dataDir, d))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestBootstrapFailsWhenToolchainMissing(t *testing.T) {
	dataDir := t.TempDir()
	err := Bootstrap(dataDir, filepath.Join(t.TempDir(), "no-such-ffmpeg"))
	require.Error(t, err)
}
