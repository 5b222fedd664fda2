package assembly

import (
	"context"
	"image"

	"github.com/kknaks/study-timelapse/internal/sampling"
)

// Spec declares the stream an Encoder is opened for.
type Spec struct {
	Width  int
	Height int
	FPS    int
}

// Artifact is the finished timelapse.
type Artifact struct {
	Path    string
	Size    int64
	Frames  int
	Skipped int
	FPS     int
	Seconds float64
	Plan    sampling.Plan
}

// Encoder turns composed frames into a video artifact. One Begin/End (or
// Abort) cycle covers one assembly job; frames arrive in presentation order.
type Encoder interface {
	Begin(ctx context.Context, spec Spec) error
	// EncodeFrame must not retain frame after it returns; the assembler
	// reuses the surface.
	EncodeFrame(ctx context.Context, frame image.Image) error
	End(ctx context.Context) (Artifact, error)
	// Abort releases the encoder without producing an artifact.
	Abort()
}
