package capture_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/kknaks/study-timelapse/internal/capture"
	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/services"
)

type countingSource struct {
	mu     sync.Mutex
	n      int
	frozen bool
}

func (s *countingSource) Snapshot(context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shade := uint8((s.n % 16) * 16)
	if !s.frozen {
		s.n++
	}
	img := image.NewGray(image.Rect(0, 0, 32, 24))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	if !s.frozen {
		// vary the gradient so the difference hash changes between frames
		img.SetGray(int(shade)%32, 0, color.Gray{Y: 255 - shade})
	}
	return img, nil
}

func (s *countingSource) Dimensions() (int, int) { return 32, 24 }

type flakyStore struct {
	*framestore.Volatile
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Write(ctx context.Context, index uint64, data []byte) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return services.Wrap(services.ErrWriteFailed, "test", "write", "injected", nil)
	}
	f.mu.Unlock()
	return f.Volatile.Write(ctx, index, data)
}

type gatedStore struct {
	*framestore.Volatile
	gate chan struct{}
}

func (g *gatedStore) Write(ctx context.Context, index uint64, data []byte) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Volatile.Write(ctx, index, data)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestPipelineFlushesInCaptureOrder(t *testing.T) {
	store := framestore.NewVolatile()
	p := capture.New(store, capture.Options{FlushThreshold: 3}, nil)
	if err := p.Start(context.Background(), &countingSource{}, 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ten captures", func() bool { return p.Stats().Captured >= 10 })
	if store.Count() == 0 {
		waitFor(t, "a background flush", func() bool { return store.Count() > 0 })
	}

	res, err := p.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Frames != res.Captured || res.Dropped != 0 || res.Unflushed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Mode != framestore.ModeVolatile {
		t.Fatalf("Mode = %s", res.Mode)
	}
	for i := uint64(0); i < res.Frames; i++ {
		data, err := store.Read(context.Background(), i)
		if err != nil {
			t.Fatalf("Read(%d): %v", i, err)
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		r, _, _, _ := img.At(31, 23).RGBA()
		want := int((i % 16) * 16)
		if got := int(r >> 8); got < want-6 || got > want+6 {
			t.Fatalf("frame %d shade = %d, want about %d", i, got, want)
		}
	}
	if p.State() != capture.StateStopped {
		t.Fatalf("State = %s", p.State())
	}
}

func TestStopFlushesPartialBuffer(t *testing.T) {
	store := framestore.NewVolatile()
	p := capture.New(store, capture.Options{FlushThreshold: 100}, nil)
	if err := p.Start(context.Background(), &countingSource{}, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "the immediate capture", func() bool { return p.Stats().Captured == 1 })
	if store.Count() != 0 {
		t.Fatalf("frame flushed before threshold")
	}
	res, err := p.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Frames != 1 || store.Count() != 1 {
		t.Fatalf("expected one stored frame, got %+v", res)
	}
	again, err := p.Stop(context.Background())
	if err != nil || again.Frames != 1 {
		t.Fatalf("second Stop = %+v, %v", again, err)
	}
}

func TestFailedWritesAreRequeued(t *testing.T) {
	store := &flakyStore{Volatile: framestore.NewVolatile(), failures: 2}
	p := capture.New(store, capture.Options{FlushThreshold: 2}, nil)
	if err := p.Start(context.Background(), &countingSource{}, 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "a failed flush", func() bool { return p.Stats().FlushFailures > 0 })
	waitFor(t, "more captures", func() bool { return p.Stats().Captured >= 8 })
	res, err := p.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Unflushed != 0 {
		t.Fatalf("Unflushed = %d", res.Unflushed)
	}
	for i := uint64(0); i < res.Captured; i++ {
		if _, err := store.Read(context.Background(), i); err != nil {
			t.Fatalf("frame %d lost after retry: %v", i, err)
		}
	}
}

func TestPauseResumeKeepsIndices(t *testing.T) {
	store := framestore.NewVolatile()
	p := capture.New(store, capture.Options{FlushThreshold: 4}, nil)
	if err := p.Start(context.Background(), &countingSource{}, 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "three captures", func() bool { return p.Stats().Captured >= 3 })
	p.Pause()
	if p.State() != capture.StatePaused {
		t.Fatalf("State = %s", p.State())
	}
	paused := p.Stats().Captured
	time.Sleep(20 * time.Millisecond)
	if got := p.Stats().Captured; got != paused {
		t.Fatalf("captured while paused: %d -> %d", paused, got)
	}
	p.Resume()
	waitFor(t, "captures after resume", func() bool { return p.Stats().Captured >= paused+3 })
	res, err := p.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for i := uint64(0); i < res.Frames; i++ {
		if _, err := store.Read(context.Background(), i); err != nil {
			t.Fatalf("gap at %d: %v", i, err)
		}
	}
	if res.Frames != res.Captured {
		t.Fatalf("Frames = %d, Captured = %d", res.Frames, res.Captured)
	}
}

// slowSource ignores ctx so a snapshot outlives the ticker that started it.
type slowSource struct {
	countingSource
	delay time.Duration
}

func (s *slowSource) Snapshot(ctx context.Context) (image.Image, error) {
	time.Sleep(s.delay)
	return s.countingSource.Snapshot(ctx)
}

func TestResumeDuringPauseDoesNotBlockPause(t *testing.T) {
	store := framestore.NewVolatile()
	p := capture.New(store, capture.Options{FlushThreshold: 4}, nil)
	if err := p.Start(context.Background(), &slowSource{delay: 50 * time.Millisecond}, time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}

	paused := make(chan struct{})
	go func() {
		p.Pause()
		close(paused)
	}()
	time.Sleep(5 * time.Millisecond)
	p.Resume()

	select {
	case <-paused:
	case <-time.After(2 * time.Second):
		p.Abort()
		t.Fatalf("Pause blocked after a concurrent Resume; state=%s", p.State())
	}

	res, err := p.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.State() != capture.StateStopped {
		t.Fatalf("State = %s", p.State())
	}
	if res.Frames != res.Captured {
		t.Fatalf("Frames = %d, Captured = %d", res.Frames, res.Captured)
	}
}

func TestResumeIgnoredWhileStopping(t *testing.T) {
	store := framestore.NewVolatile()
	p := capture.New(store, capture.Options{FlushThreshold: 4}, nil)
	if err := p.Start(context.Background(), &slowSource{delay: 50 * time.Millisecond}, time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopped := make(chan error, 1)
	go func() {
		_, err := p.Stop(context.Background())
		stopped <- err
	}()
	time.Sleep(5 * time.Millisecond)
	p.Resume()

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		p.Abort()
		t.Fatal("Stop blocked after a concurrent Resume")
	}
	if p.State() != capture.StateStopped {
		t.Fatalf("State = %s, want stopped", p.State())
	}
	captured := p.Stats().Captured
	time.Sleep(20 * time.Millisecond)
	if got := p.Stats().Captured; got != captured {
		t.Fatalf("captured after stop: %d -> %d", captured, got)
	}
}

func TestFullBufferDropsFramesButConsumesIndex(t *testing.T) {
	store := &gatedStore{Volatile: framestore.NewVolatile(), gate: make(chan struct{})}
	p := capture.New(store, capture.Options{FlushThreshold: 2, MaxBuffered: 2}, nil)
	if err := p.Start(context.Background(), &countingSource{}, 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "a dropped frame", func() bool { return p.Stats().Dropped > 0 })
	close(store.gate)
	res, err := p.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	readable := uint64(0)
	missing := 0
	for i := uint64(0); i < res.Frames; i++ {
		_, err := store.Read(context.Background(), i)
		switch {
		case err == nil:
			readable++
		case errors.Is(err, services.ErrReadMissing):
			missing++
		default:
			t.Fatalf("Read(%d): %v", i, err)
		}
	}
	if readable != res.Captured-res.Dropped {
		t.Fatalf("readable = %d, captured %d dropped %d", readable, res.Captured, res.Dropped)
	}
	if missing == 0 && res.Frames == res.Captured {
		t.Fatalf("dropped frame left no gap: %+v", res)
	}
}

func TestStallDetection(t *testing.T) {
	p := capture.New(framestore.NewVolatile(), capture.Options{StallFrames: 3}, nil)
	if err := p.Start(context.Background(), &countingSource{frozen: true}, 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Abort()
	waitFor(t, "stall detection", func() bool { return p.Stats().Stalled })
}

func TestAbortDiscardsBuffer(t *testing.T) {
	store := framestore.NewVolatile()
	p := capture.New(store, capture.Options{FlushThreshold: 100}, nil)
	if err := p.Start(context.Background(), &countingSource{}, 2*time.Millisecond); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "two captures", func() bool { return p.Stats().Captured >= 2 })
	p.Abort()
	if p.State() != capture.StateStopped {
		t.Fatalf("State = %s", p.State())
	}
	if store.Count() != 0 {
		t.Fatalf("aborted capture wrote %d frames", store.Count())
	}
	if got := p.Stats().Buffered; got != 0 {
		t.Fatalf("Buffered = %d after abort", got)
	}
}

func TestStartValidation(t *testing.T) {
	p := capture.New(framestore.NewVolatile(), capture.Options{}, nil)
	if err := p.Start(context.Background(), nil, time.Second); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for nil source, got %v", err)
	}
	if err := p.Start(context.Background(), &countingSource{}, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for zero interval, got %v", err)
	}
	if _, err := p.Stop(context.Background()); err == nil {
		t.Fatal("expected Stop before Start to fail")
	}
	if err := p.Start(context.Background(), &countingSource{}, time.Hour); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Abort()
	if err := p.Start(context.Background(), &countingSource{}, time.Hour); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
