package framestore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/services"
)

func openDurable(t *testing.T, root string) framestore.Store {
	t.Helper()
	store, err := framestore.Open(context.Background(), framestore.Options{Root: root, Durable: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Mode() != framestore.ModeDurable {
		t.Fatalf("expected durable store, got %s", store.Mode())
	}
	return store
}

func backends(t *testing.T) map[string]framestore.Store {
	return map[string]framestore.Store{
		"durable":  openDurable(t, t.TempDir()),
		"volatile": framestore.NewVolatile(),
	}
}

func TestStoreRoundTripAndReadIdempotence(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Dispose()
			for i := uint64(0); i < 5; i++ {
				if err := store.Write(ctx, i, []byte{byte(i), 0xff}); err != nil {
					t.Fatalf("Write(%d): %v", i, err)
				}
			}
			if got := store.Count(); got != 5 {
				t.Fatalf("Count = %d, want 5", got)
			}
			for i := uint64(0); i < 5; i++ {
				first, err := store.Read(ctx, i)
				if err != nil {
					t.Fatalf("Read(%d): %v", i, err)
				}
				second, err := store.Read(ctx, i)
				if err != nil {
					t.Fatalf("second Read(%d): %v", i, err)
				}
				if !bytes.Equal(first, second) || first[0] != byte(i) {
					t.Fatalf("frame %d read %v then %v", i, first, second)
				}
			}
		})
	}
}

func TestStoreGapReadsMissing(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Dispose()
			if err := store.Write(ctx, 0, []byte("a")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := store.Write(ctx, 3, []byte("d")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if got := store.Count(); got != 4 {
				t.Fatalf("Count = %d, want 4", got)
			}
			_, err := store.Read(ctx, 1)
			if !errors.Is(err, services.ErrReadMissing) {
				t.Fatalf("expected ErrReadMissing, got %v", err)
			}
			if _, err := store.Read(ctx, 99); !errors.Is(err, services.ErrReadMissing) {
				t.Fatalf("expected ErrReadMissing past count, got %v", err)
			}
		})
	}
}

func TestVolatileCopiesBuffers(t *testing.T) {
	ctx := context.Background()
	store := framestore.NewVolatile()
	data := []byte("frame")
	if err := store.Write(ctx, 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data[0] = 'X'
	got, _ := store.Read(ctx, 0)
	if string(got) != "frame" {
		t.Fatalf("stored data aliased caller buffer: %q", got)
	}
	got[1] = 'X'
	again, _ := store.Read(ctx, 0)
	if string(again) != "frame" {
		t.Fatalf("read data aliased store buffer: %q", again)
	}
}

func TestDisposeRemovesNamespace(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := openDurable(t, root)
	if err := store.Write(ctx, 0, []byte("a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dir := store.(*framestore.Durable).Path()
	if _, err := os.Stat(filepath.Join(dir, framestore.FrameName(0))); err != nil {
		t.Fatalf("frame file missing: %v", err)
	}
	if err := store.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("namespace still present: %v", err)
	}
	if err := store.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("Count after dispose = %d", store.Count())
	}
	if err := store.Write(ctx, 1, []byte("b")); !errors.Is(err, services.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed after dispose, got %v", err)
	}
}

func TestOpenFallsBackToVolatile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	store, err := framestore.Open(context.Background(), framestore.Options{Root: blocker, Durable: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Mode() != framestore.ModeVolatile {
		t.Fatalf("expected volatile fallback, got %s", store.Mode())
	}
}

func TestOpenVolatileWhenDurableDisabled(t *testing.T) {
	store, err := framestore.Open(context.Background(), framestore.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if store.Mode() != framestore.ModeVolatile {
		t.Fatalf("expected volatile store, got %s", store.Mode())
	}
}

func TestOpenHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := framestore.Open(ctx, framestore.Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNamespaceLockedWhileOpen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	first, err := framestore.Open(ctx, framestore.Options{Root: root, Namespace: "session", Durable: true})
	if err != nil || first.Mode() != framestore.ModeDurable {
		t.Fatalf("Open first: %v (%v)", err, first)
	}
	defer first.Dispose()
	second, err := framestore.Open(ctx, framestore.Options{Root: root, Namespace: "session", Durable: true})
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	if second.Mode() != framestore.ModeVolatile {
		t.Fatalf("expected locked namespace to fall back to memory, got %s", second.Mode())
	}
}

func TestReopenDerivesCount(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := framestore.Open(ctx, framestore.Options{Root: root, Namespace: "kept", Durable: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	durable := store.(*framestore.Durable)
	for _, idx := range []uint64{0, 1, 6} {
		if err := durable.Write(ctx, idx, []byte{byte(idx)}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := durable.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := framestore.Reopen(filepath.Join(root, "kept"))
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer reopened.Close()
	if got := reopened.Count(); got != 7 {
		t.Fatalf("Count = %d, want 7", got)
	}
	data, err := reopened.Read(ctx, 6)
	if err != nil || len(data) != 1 || data[0] != 6 {
		t.Fatalf("Read(6) = %v, %v", data, err)
	}
	if err := reopened.Write(ctx, 7, []byte("x")); !errors.Is(err, services.ErrWriteFailed) {
		t.Fatalf("expected read-only write to fail, got %v", err)
	}
}

func TestFrameNameRoundTrip(t *testing.T) {
	name := framestore.FrameName(42)
	if name != "frame_00000042.jpg" {
		t.Fatalf("FrameName = %q", name)
	}
	idx, ok := framestore.ParseFrameName(name)
	if !ok || idx != 42 {
		t.Fatalf("ParseFrameName = %d, %v", idx, ok)
	}
	for _, bad := range []string{".lock", "frame_x.jpg", "frame_00000001.png"} {
		if _, ok := framestore.ParseFrameName(bad); ok {
			t.Fatalf("ParseFrameName(%q) accepted", bad)
		}
	}
}
