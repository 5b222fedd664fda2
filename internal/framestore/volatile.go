package framestore

import (
	"context"
	"errors"
	"sync"
)

var errDisposed = errors.New("store disposed")

// Volatile keeps frames in memory.
type Volatile struct {
	mu       sync.RWMutex
	frames   map[uint64][]byte
	count    uint64
	disposed bool
}

// NewVolatile returns an empty in-memory store.
func NewVolatile() *Volatile {
	return &Volatile{frames: make(map[uint64][]byte)}
}

func (v *Volatile) Write(ctx context.Context, index uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return writeFailed(index, err)
	}
	buf := append([]byte(nil), data...)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return writeFailed(index, errDisposed)
	}
	v.frames[index] = buf
	if index+1 > v.count {
		v.count = index + 1
	}
	return nil
}

func (v *Volatile) Read(_ context.Context, index uint64) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	data, ok := v.frames[index]
	if !ok {
		return nil, readMissing(index, nil)
	}
	return append([]byte(nil), data...), nil
}

func (v *Volatile) Count() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.count
}

func (v *Volatile) Dispose() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.frames = make(map[uint64][]byte)
	v.count = 0
	v.disposed = true
	return nil
}

func (v *Volatile) Mode() Mode { return ModeVolatile }
