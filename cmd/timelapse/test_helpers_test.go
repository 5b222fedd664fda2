package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/kknaks/study-timelapse/internal/config"
	"github.com/kknaks/study-timelapse/internal/testsupport"
)

// ffmpegStub answers the version and encoder probes and otherwise copies the
// raw frames on stdin to the output path, which ffmpeg receives last.
const ffmpegStub = `#!/bin/sh
case "$2" in
  -version) echo 'ffmpeg version 7.1-stub Copyright'; exit 0 ;;
  -encoders) echo ' V....D libx264              libx264 H.264'; exit 0 ;;
esac
for out; do :; done
cat > "$out"
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	binDir := testsupport.StubBinaries(t, filepath.Join(base, "stub-bin"), ffmpegStub, "ffmpeg")
	cfg.Assembly.FFmpegBinary = filepath.Join(binDir, "ffmpeg")
	cfg.Capture.FlushThreshold = 2
	cfg.Capture.MaxBuffered = 16

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
