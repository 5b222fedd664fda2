package testsupport

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/kknaks/study-timelapse/internal/assembly"
)

// RecordingEncoder is an in-memory assembly.Encoder that keeps copies of the
// frames it receives.
type RecordingEncoder struct {
	mu sync.Mutex

	// FailAfter makes EncodeFrame fail once this many frames were accepted.
	// Zero disables the failure.
	FailAfter int
	BeginErr  error
	Path      string

	Spec    assembly.Spec
	Frames  []*image.NRGBA
	Began   int
	Ended   int
	Aborted int
}

func (e *RecordingEncoder) Begin(_ context.Context, spec assembly.Spec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Began++
	if e.BeginErr != nil {
		return e.BeginErr
	}
	e.Spec = spec
	e.Frames = nil
	return nil
}

func (e *RecordingEncoder) EncodeFrame(ctx context.Context, frame image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailAfter > 0 && len(e.Frames) >= e.FailAfter {
		return errEncoderFull
	}
	e.Frames = append(e.Frames, imaging.Clone(frame))
	return nil
}

func (e *RecordingEncoder) End(context.Context) (assembly.Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Ended++
	return assembly.Artifact{Path: e.Path, Size: int64(len(e.Frames))}, nil
}

func (e *RecordingEncoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Aborted++
}

// Counts returns the lifecycle call counters.
func (e *RecordingEncoder) Counts() (began, ended, aborted int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Began, e.Ended, e.Aborted
}

type encoderError string

func (e encoderError) Error() string { return string(e) }

const errEncoderFull = encoderError("recording encoder rejected frame")
