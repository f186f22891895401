package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// dataDirs lists every directory §4.H requires under the server root.
var dataDirs = []string{DirVideosInput, DirVideosOutput, DirVideosTemp, DirServerLogs, DirQueueDB}

// Bootstrap creates the fixed directory layout under dataDir, verifies the
// ffmpeg/ffprobe toolchain is reachable on PATH, and checks that the logs
// directory is actually writable. Any failure aborts startup with a
// diagnostic (§4.H: "abort with a diagnostic if any fails").
func Bootstrap(dataDir, ffmpegPath string) error {
	for _, d := range dataDirs {
		full := filepath.Join(dataDir, d)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", full, err)
		}
	}

	if _, err := exec.LookPath(ffmpegPath); err != nil {
		return fmt.Errorf("media toolchain binary %q not found on PATH: %w", ffmpegPath, err)
	}
	ffprobePath := "ffprobe"
	if _, err := exec.LookPath(ffprobePath); err != nil {
		return fmt.Errorf("media toolchain binary %q not found on PATH: %w", ffprobePath, err)
	}

	logsDir := filepath.Join(dataDir, DirServerLogs)
	probe := filepath.Join(logsDir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("verifying write access to %s: %w", logsDir, err)
	}
	_ = os.Remove(probe)

	return nil
}
