package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/logging"
)

// DirInfo describes one session frame directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	Frames  uint64
	Busy    bool
}

// CleanStaleResult contains the outcome of a cleanup pass.
type CleanStaleResult struct {
	Removed []string
	Skipped []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// ListDirectories returns the session directories under sessionsDir, oldest
// first. A missing sessionsDir yields no entries.
func ListDirectories(sessionsDir string) ([]DirInfo, error) {
	sessionsDir = strings.TrimSpace(sessionsDir)
	if sessionsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(sessionsDir, entry.Name())
		size, frames := scan(dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
			Frames:  frames,
			Busy:    framestore.Busy(dirPath),
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].ModTime.Before(dirs[j].ModTime) })
	return dirs, nil
}

// CleanStale removes session directories last modified before maxAge ago.
// Directories named in keep and directories locked by a live recording are
// skipped. With dryRun set nothing is removed; Removed lists what would be.
func CleanStale(ctx context.Context, sessionsDir string, maxAge time.Duration, keep map[string]struct{}, dryRun bool, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	dirs, err := ListDirectories(sessionsDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: sessionsDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if !dir.ModTime.Before(cutoff) {
			continue
		}
		if _, kept := keep[dir.Name]; kept || dir.Busy {
			result.Skipped = append(result.Skipped, dir.Path)
			continue
		}
		if dryRun {
			result.Removed = append(result.Removed, dir.Path)
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale session directory", "session_cleanup_failed",
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.data_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		logger.Info("removed stale session directory",
			logging.String("path", dir.Path),
			logging.Uint64("frames", dir.Frames),
			logging.Duration("age", time.Since(dir.ModTime)),
			logging.String(logging.FieldEventType, "session_cleanup"),
		)
	}
	return result
}

// scan sums file sizes and counts frame files. Errors are ignored.
func scan(path string) (int64, uint64) {
	var size int64
	var frames uint64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		if _, ok := framestore.ParseFrameName(d.Name()); ok {
			frames++
		}
		return nil
	})
	return size, frames
}
