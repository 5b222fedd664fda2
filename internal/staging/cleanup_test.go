package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/testsupport"
)

func makeSessionDir(t *testing.T, root, name string, age time.Duration, frames int) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	for i := range frames {
		if err := os.WriteFile(filepath.Join(dir, framestore.FrameName(uint64(i))), []byte("jpeg"), 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(dir, stamp, stamp); err != nil {
		t.Fatalf("set times: %v", err)
	}
	return dir
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, nil, false, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	root := t.TempDir()
	oldDir := makeSessionDir(t, root, "old-session", 2*time.Hour, 3)
	recentDir := makeSessionDir(t, root, "recent-session", 0, 1)

	result := CleanStale(context.Background(), root, time.Hour, nil, false, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected %s removed, got %v", oldDir, result.Removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatal("old directory still exists")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Fatalf("recent directory removed: %v", err)
	}
}

func TestCleanStaleDryRunKeepsFiles(t *testing.T) {
	root := t.TempDir()
	oldDir := makeSessionDir(t, root, "old-session", 48*time.Hour, 2)

	result := CleanStale(context.Background(), root, time.Hour, nil, true, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected one candidate, got %v", result.Removed)
	}
	if _, err := os.Stat(oldDir); err != nil {
		t.Fatalf("dry run removed directory: %v", err)
	}
}

func TestCleanStaleSkipsKeptAndBusy(t *testing.T) {
	root := t.TempDir()
	kept := makeSessionDir(t, root, "kept", 2*time.Hour, 1)

	store, err := framestore.Open(context.Background(), framestore.Options{Root: root, Namespace: "live", Durable: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	durable, ok := store.(*framestore.Durable)
	if !ok {
		t.Fatalf("expected durable store, got %T", store)
	}
	testsupport.FillStore(t, durable, 2, 8, 8)
	t.Cleanup(func() { _ = durable.Dispose() })
	stamp := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(durable.Path(), stamp, stamp); err != nil {
		t.Fatalf("set times: %v", err)
	}

	result := CleanStale(context.Background(), root, time.Hour, map[string]struct{}{"kept": {}}, false, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %v", result.Removed)
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("expected kept and busy directories skipped, got %v", result.Skipped)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("kept directory removed: %v", err)
	}
}

func TestListDirectoriesCountsFrames(t *testing.T) {
	root := t.TempDir()
	makeSessionDir(t, root, "newer", time.Hour, 4)
	makeSessionDir(t, root, "older", 5*time.Hour, 2)
	if err := os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	dirs, err := ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 directories, got %d", len(dirs))
	}
	if dirs[0].Name != "older" || dirs[0].Frames != 2 || dirs[1].Frames != 4 {
		t.Fatalf("unexpected listing %+v", dirs)
	}
	if dirs[0].Busy || dirs[0].Size != 8 {
		t.Fatalf("unexpected metadata %+v", dirs[0])
	}
}
