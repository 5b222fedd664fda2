package framestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/kknaks/study-timelapse/internal/fileutil"
	"github.com/kknaks/study-timelapse/internal/services"
)

const (
	lockName    = ".lock"
	framePrefix = "frame_"
	frameExt    = ".jpg"
	probeName   = ".probe"
)

var (
	errReadOnly = errors.New("store opened read-only")
	errLowSpace = errors.New("insufficient free space")
)

// FrameName returns the entry name for index.
func FrameName(index uint64) string {
	return fmt.Sprintf("%s%08d%s", framePrefix, index, frameExt)
}

// ParseFrameName is the inverse of FrameName.
func ParseFrameName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, framePrefix) || !strings.HasSuffix(name, frameExt) {
		return 0, false
	}
	idx, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, framePrefix), frameExt), 10, 64)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Durable writes one file per frame inside a session namespace directory.
// The namespace is locked for the store's lifetime.
type Durable struct {
	dir      string
	lock     *flock.Flock
	minFree  uint64
	readOnly bool

	mu       sync.RWMutex
	count    uint64
	disposed bool
}

func openDurable(root, namespace string, minFree uint64) (*Durable, error) {
	dir := filepath.Join(root, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create namespace: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock namespace: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("namespace %s is in use by another process", dir)
	}
	return &Durable{dir: dir, lock: lock, minFree: minFree}, nil
}

// Reopen opens an existing namespace read-only, for assembling a recording
// that was captured earlier. Count is derived from the files present.
func Reopen(dir string) (*Durable, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read namespace: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryRLock()
	if err != nil {
		return nil, fmt.Errorf("lock namespace: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("namespace %s is still being recorded", dir)
	}
	d := &Durable{dir: dir, lock: lock, readOnly: true}
	for _, entry := range entries {
		if idx, ok := ParseFrameName(entry.Name()); ok && idx+1 > d.count {
			d.count = idx + 1
		}
	}
	return d, nil
}

// Busy reports whether a live session holds the namespace lock in dir.
func Busy(dir string) bool {
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryRLock()
	if err != nil {
		return false
	}
	if !ok {
		return true
	}
	_ = lock.Unlock()
	return false
}

// Path returns the namespace directory.
func (d *Durable) Path() string { return d.dir }

func (d *Durable) Mode() Mode { return ModeDurable }

func (d *Durable) Write(ctx context.Context, index uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return writeFailed(index, err)
	}
	if d.readOnly {
		return writeFailed(index, errReadOnly)
	}
	d.mu.RLock()
	disposed := d.disposed
	d.mu.RUnlock()
	if disposed {
		return writeFailed(index, errDisposed)
	}
	if d.minFree > 0 {
		free, err := freeBytes(d.dir)
		if err != nil {
			return writeFailed(index, err)
		}
		if free < d.minFree {
			return writeFailed(index, fmt.Errorf("%w: %d bytes available", errLowSpace, free))
		}
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(d.dir, FrameName(index)), data, 0o644); err != nil {
		return writeFailed(index, err)
	}

	d.mu.Lock()
	if index+1 > d.count {
		d.count = index + 1
	}
	d.mu.Unlock()
	return nil
}

func (d *Durable) Read(ctx context.Context, index uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, readMissing(index, err)
	}
	data, err := os.ReadFile(filepath.Join(d.dir, FrameName(index)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, readMissing(index, nil)
		}
		return nil, readMissing(index, err)
	}
	return data, nil
}

func (d *Durable) Count() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// Dispose releases the namespace lock and removes the namespace directory.
func (d *Durable) Dispose() error {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return nil
	}
	d.disposed = true
	d.count = 0
	d.mu.Unlock()

	_ = d.lock.Unlock()
	if err := os.RemoveAll(d.dir); err != nil {
		return services.Wrap(services.ErrDisposeFailed, "framestore", "dispose", d.dir, err)
	}
	return nil
}

// Close releases the namespace lock and keeps the frames on disk.
func (d *Durable) Close() error {
	return d.lock.Unlock()
}

// probe round-trips a small file so a read-only or full filesystem is
// detected before capture starts.
func (d *Durable) probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(d.dir, probeName)
	payload := []byte("probe")
	if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
		return fmt.Errorf("probe write: %w", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("probe read: %w", err)
	}
	if !bytes.Equal(got, payload) {
		return errors.New("probe read back different bytes")
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("probe remove: %w", err)
	}
	if d.minFree > 0 {
		free, err := freeBytes(d.dir)
		if err != nil {
			return fmt.Errorf("probe free space: %w", err)
		}
		if free < d.minFree {
			return fmt.Errorf("%w: %d bytes available", errLowSpace, free)
		}
	}
	return nil
}

func freeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
