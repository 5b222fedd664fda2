package main

import (
	"os"
	"strings"
	"testing"
)

func TestLogsCommandFiltersBySession(t *testing.T) {
	env := setupCLITestEnv(t)
	lines := []string{
		`{"ts":"2026-03-01T09:00:00Z","level":"info","msg":"capture started","component":"workflow","session_id":"aaaa1111"}`,
		`{"ts":"2026-03-01T09:00:01Z","level":"info","msg":"capture started","component":"workflow","session_id":"bbbb2222"}`,
		`{"ts":"2026-03-01T09:10:00Z","level":"warn","msg":"frame dropped","component":"capture","session_id":"aaaa1111","buffered":16}`,
	}
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(logFilePath(env.cfg.Paths.LogDir), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := env.run(t, "logs", "--session", "aaaa")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if got := strings.Count(out, "\n"); got != 2 {
		t.Fatalf("expected 2 entries, got %d:\n%s", got, out)
	}
	requireContains(t, out, "[capture] frame dropped")
	requireContains(t, out, "buffered=16")

	out, _, err = env.run(t, "logs", "--level", "warn", "--raw")
	if err != nil {
		t.Fatalf("logs --level: %v", err)
	}
	if strings.TrimSpace(out) != lines[2] {
		t.Fatalf("unexpected raw output:\n%s", out)
	}
}

func TestLogsCommandEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, errOut, err := env.run(t, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "" {
		t.Fatalf("expected no output, got %q", out)
	}
	requireContains(t, errOut, "No matching log entries")
}
