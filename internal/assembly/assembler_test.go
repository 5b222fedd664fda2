package assembly_test

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/kknaks/study-timelapse/internal/assembly"
	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/overlay"
	"github.com/kknaks/study-timelapse/internal/sampling"
	"github.com/kknaks/study-timelapse/internal/services"
	"github.com/kknaks/study-timelapse/internal/testsupport"
)

func TestAssembleEmptyStoreNeverOpensEncoder(t *testing.T) {
	enc := &testsupport.RecordingEncoder{}
	_, err := assembly.New(enc, assembly.Options{}, nil).Assemble(context.Background(), framestore.NewVolatile(), assembly.Job{OutputSeconds: 30}, nil)
	if !errors.Is(err, services.ErrNoFramesCaptured) {
		t.Fatalf("expected ErrNoFramesCaptured, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("no-frames failure must not be retryable")
	}
	if began, _, _ := enc.Counts(); began != 0 {
		t.Fatalf("encoder opened %d times", began)
	}
}

func TestAssembleAllFramesInOrder(t *testing.T) {
	store := framestore.NewVolatile()
	testsupport.FillStore(t, store, 12, 32, 24)
	enc := &testsupport.RecordingEncoder{Path: "out.mp4"}

	var reports []assembly.Progress
	artifact, err := assembly.New(enc, assembly.Options{}, nil).Assemble(context.Background(), store,
		assembly.Job{OutputSeconds: 60, RecordingSeconds: 24}, func(p assembly.Progress) { reports = append(reports, p) })
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if enc.Spec != (assembly.Spec{Width: 32, Height: 24, FPS: sampling.BaseFPS}) {
		t.Fatalf("Spec = %+v", enc.Spec)
	}
	if len(enc.Frames) != 12 || artifact.Frames != 12 || artifact.Skipped != 0 {
		t.Fatalf("encoded %d frames, artifact %+v", len(enc.Frames), artifact)
	}
	if artifact.Path != "out.mp4" || artifact.Plan.Case != sampling.AllFrames {
		t.Fatalf("artifact = %+v", artifact)
	}
	for i, frame := range enc.Frames {
		want := testsupport.ShadeFor(uint64(i)).R
		got := frame.NRGBAAt(16, 12).R
		if diff := int(got) - int(want); diff < -6 || diff > 6 {
			t.Fatalf("frame %d shade %d, want about %d", i, got, want)
		}
	}
	if len(reports) != 12 || reports[11].Fraction != 1 || reports[0].Done != 1 {
		t.Fatalf("unexpected progress reports: %+v", reports)
	}
	_, ended, aborted := enc.Counts()
	if ended != 1 || aborted != 0 {
		t.Fatalf("ended=%d aborted=%d", ended, aborted)
	}
}

func TestAssembleDecimates(t *testing.T) {
	store := framestore.NewVolatile()
	// 2 seconds of output needs 60 frames; 240 frames keeps every 4th.
	testsupport.FillStore(t, store, 240, 8, 8)
	enc := &testsupport.RecordingEncoder{}
	artifact, err := assembly.New(enc, assembly.Options{}, nil).Assemble(context.Background(), store, assembly.Job{OutputSeconds: 2}, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if artifact.Plan.Case != sampling.Decimate || artifact.Plan.KeepEveryN != 4 {
		t.Fatalf("plan = %+v", artifact.Plan)
	}
	if len(enc.Frames) != 60 || artifact.Seconds != 2 {
		t.Fatalf("frames=%d seconds=%v", len(enc.Frames), artifact.Seconds)
	}
	second := enc.Frames[1].NRGBAAt(4, 4).R
	if want := testsupport.ShadeFor(4).R; int(second) < int(want)-6 || int(second) > int(want)+6 {
		t.Fatalf("second output frame shade %d, want index 4 shade %d", second, want)
	}
}

func TestAssembleSkipsMissingFrames(t *testing.T) {
	store := framestore.NewVolatile()
	testsupport.FillStore(t, store, 10, 16, 16, 0, 4, 7)
	if err := store.Write(context.Background(), 5, []byte("not an image")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	enc := &testsupport.RecordingEncoder{}
	artifact, err := assembly.New(enc, assembly.Options{}, nil).Assemble(context.Background(), store, assembly.Job{OutputSeconds: 30}, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if artifact.Frames != 6 || artifact.Skipped != 4 {
		t.Fatalf("frames=%d skipped=%d", artifact.Frames, artifact.Skipped)
	}
}

func TestAssembleAllSelectedUnreadable(t *testing.T) {
	store := framestore.NewVolatile()
	for i := uint64(0); i < 3; i++ {
		if err := store.Write(context.Background(), i, []byte("garbage")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	enc := &testsupport.RecordingEncoder{}
	_, err := assembly.New(enc, assembly.Options{}, nil).Assemble(context.Background(), store, assembly.Job{OutputSeconds: 30}, nil)
	if !errors.Is(err, services.ErrNoFramesCaptured) {
		t.Fatalf("expected ErrNoFramesCaptured, got %v", err)
	}
	if began, _, _ := enc.Counts(); began != 0 {
		t.Fatalf("encoder opened for unreadable store")
	}
}

func TestAssembleResizesMismatchedFrames(t *testing.T) {
	store := framestore.NewVolatile()
	ctx := context.Background()
	if err := store.Write(ctx, 0, testsupport.JPEGFrame(t, 40, 30, 0)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write(ctx, 1, testsupport.JPEGFrame(t, 80, 60, 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	enc := &testsupport.RecordingEncoder{}
	if _, err := assembly.New(enc, assembly.Options{}, nil).Assemble(ctx, store, assembly.Job{OutputSeconds: 10}, nil); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for i, frame := range enc.Frames {
		if b := frame.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
			t.Fatalf("frame %d bounds %v", i, b)
		}
	}
}

func TestAssembleEncoderFailure(t *testing.T) {
	store := framestore.NewVolatile()
	testsupport.FillStore(t, store, 5, 8, 8)
	enc := &testsupport.RecordingEncoder{FailAfter: 2}
	_, err := assembly.New(enc, assembly.Options{}, nil).Assemble(context.Background(), store, assembly.Job{OutputSeconds: 30}, nil)
	if !errors.Is(err, services.ErrEncodeFailed) {
		t.Fatalf("expected ErrEncodeFailed, got %v", err)
	}
	if services.FailureReason(err) != "encoding failed" {
		t.Fatalf("reason = %q", services.FailureReason(err))
	}
	if _, ended, aborted := enc.Counts(); ended != 0 || aborted != 1 {
		t.Fatalf("ended=%d aborted=%d", ended, aborted)
	}

	enc = &testsupport.RecordingEncoder{BeginErr: errors.New("no codec")}
	_, err = assembly.New(enc, assembly.Options{}, nil).Assemble(context.Background(), store, assembly.Job{OutputSeconds: 30}, nil)
	if !errors.Is(err, services.ErrEncodeFailed) {
		t.Fatalf("expected ErrEncodeFailed from Begin, got %v", err)
	}
}

func TestAssembleCancelled(t *testing.T) {
	store := framestore.NewVolatile()
	testsupport.FillStore(t, store, 5, 8, 8)
	ctx, cancel := context.WithCancel(context.Background())
	enc := &testsupport.RecordingEncoder{}
	_, err := assembly.New(enc, assembly.Options{}, nil).Assemble(ctx, store, assembly.Job{OutputSeconds: 30}, func(p assembly.Progress) {
		if p.Done == 2 {
			cancel()
		}
	})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if _, _, aborted := enc.Counts(); aborted != 1 {
		t.Fatalf("encoder not aborted")
	}
}

func TestAssembleDrawsOverlay(t *testing.T) {
	store := framestore.NewVolatile()
	ctx := context.Background()
	for i := uint64(0); i < 3; i++ {
		if err := store.Write(ctx, i, testsupport.JPEGFrame(t, 320, 240, 0)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	cfg := overlay.DefaultConfig()
	cfg.Theme = overlay.ThemeProgressBar
	cfg.Color = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	enc := &testsupport.RecordingEncoder{}
	job := assembly.Job{OutputSeconds: 30, RecordingSeconds: 3600, Overlay: &cfg}
	if _, err := assembly.New(enc, assembly.Options{}, nil).Assemble(ctx, store, job, nil); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	comp, err := overlay.New(cfg, 3.0/sampling.BaseFPS, 3600)
	if err != nil {
		t.Fatalf("overlay.New: %v", err)
	}
	area := comp.Layout(320, 240)
	if area.Empty() {
		t.Fatal("empty overlay layout")
	}
	lit := false
	last := enc.Frames[len(enc.Frames)-1]
	for y := area.Min.Y; y < area.Max.Y && !lit; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if last.NRGBAAt(x, y).R > 128 {
				lit = true
				break
			}
		}
	}
	if !lit {
		t.Fatal("overlay not drawn on the black frame")
	}
}
