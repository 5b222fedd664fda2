package assembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"

	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/overlay"
	"github.com/kknaks/study-timelapse/internal/sampling"
	"github.com/kknaks/study-timelapse/internal/services"
)

// Job is one assembly request. It is consumed by a single Assemble call.
type Job struct {
	// Plan is the optimistic plan computed when capture started. It is only
	// used for diagnostics; Assemble recomputes the plan from the store.
	Plan             sampling.Plan
	Overlay          *overlay.Config
	RecordingSeconds float64
	OutputSeconds    float64
}

// Progress is reported after every selected frame.
type Progress struct {
	Done     int
	Total    int
	Skipped  int
	Fraction float64
}

// Options tunes assembly.
type Options struct {
	// Realtime paces frame submission at 1/fps, for encoders that timestamp
	// frames by arrival.
	Realtime bool
}

// Assembler reads frames back from a store, composes the overlay, and drives
// an Encoder.
type Assembler struct {
	encoder Encoder
	opts    Options
	logger  *slog.Logger
}

// New returns an Assembler bound to encoder.
func New(encoder Encoder, opts Options, logger *slog.Logger) *Assembler {
	return &Assembler{
		encoder: encoder,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "assembly"),
	}
}

// Assemble produces the timelapse for the frames in store. A missing or
// undecodable frame is skipped; an empty store fails with
// services.ErrNoFramesCaptured before the encoder is opened.
func (a *Assembler) Assemble(ctx context.Context, store framestore.Store, job Job, progress func(Progress)) (Artifact, error) {
	logger := logging.WithContext(ctx, a.logger)
	if a.encoder == nil {
		return Artifact{}, services.Wrap(services.ErrConfiguration, "assembly", "assemble", "encoder not configured", nil)
	}

	total := store.Count()
	if total == 0 {
		return Artifact{}, services.Wrap(services.ErrNoFramesCaptured, "assembly", "assemble", "frame store is empty", nil)
	}
	plan, err := sampling.Compute(total, job.OutputSeconds)
	if err != nil {
		return Artifact{}, err
	}
	selected := sampling.Select(total, plan.KeepEveryN)
	fps := float64(plan.OutputFPS)
	logger.Info("assembly planned",
		logging.Uint64("frames", total),
		logging.Int("selected", len(selected)),
		logging.String("plan", plan.String()),
		logging.String("initial_plan", job.Plan.String()),
	)

	firstOrder, first, err := a.firstFrame(ctx, store, selected)
	if err != nil {
		return Artifact{}, err
	}
	bounds := first.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var compositor *overlay.Compositor
	if job.Overlay != nil && job.Overlay.Theme != overlay.ThemeNone {
		compositor, err = overlay.New(*job.Overlay, float64(len(selected))/fps, job.RecordingSeconds)
		if err != nil {
			return Artifact{}, services.Wrap(services.ErrValidation, "assembly", "overlay", "", err)
		}
	}

	if err := a.encoder.Begin(ctx, Spec{Width: width, Height: height, FPS: plan.OutputFPS}); err != nil {
		return Artifact{}, encodeFailed("begin", err)
	}

	surface := image.NewRGBA(image.Rect(0, 0, width, height))
	var pace *time.Ticker
	if a.opts.Realtime {
		pace = time.NewTicker(time.Duration(float64(time.Second) / fps))
		defer pace.Stop()
	}

	encoded, skipped := 0, firstOrder
	for order := firstOrder; order < len(selected); order++ {
		if err := ctx.Err(); err != nil {
			a.encoder.Abort()
			return Artifact{}, services.Wrap(services.ErrCancelled, "assembly", "assemble", "", err)
		}

		img := first
		if order != firstOrder {
			img, err = readFrame(ctx, store, selected[order])
			if err != nil {
				skipped++
				logging.WarnWithContext(logger, "skipping unreadable frame", "assembly_frame_skipped",
					logging.Uint64("index", selected[order]),
					logging.Error(err),
					logging.String(logging.FieldImpact, "the timelapse is one frame shorter"),
					logging.String(logging.FieldErrorHint, "frames missing from the store were never flushed"),
				)
				a.report(progress, order+1, len(selected), skipped)
				continue
			}
		}

		if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
			img = imaging.Resize(img, width, height, imaging.Lanczos)
		}
		draw.Draw(surface, surface.Bounds(), img, img.Bounds().Min, draw.Src)
		compositor.Render(surface, float64(order)/fps)

		if pace != nil {
			select {
			case <-pace.C:
			case <-ctx.Done():
				a.encoder.Abort()
				return Artifact{}, services.Wrap(services.ErrCancelled, "assembly", "assemble", "", ctx.Err())
			}
		}
		if err := a.encoder.EncodeFrame(ctx, surface); err != nil {
			a.encoder.Abort()
			return Artifact{}, encodeFailed(fmt.Sprintf("frame %d", selected[order]), err)
		}
		encoded++
		a.report(progress, order+1, len(selected), skipped)
	}

	artifact, err := a.encoder.End(ctx)
	if err != nil {
		return Artifact{}, encodeFailed("finalize", err)
	}
	artifact.Frames = encoded
	artifact.Skipped = skipped
	artifact.FPS = plan.OutputFPS
	artifact.Seconds = float64(encoded) / fps
	artifact.Plan = plan

	logger.Info("assembly complete",
		logging.String("artifact", artifact.Path),
		logging.Int("frames", encoded),
		logging.Int("skipped", skipped),
		logging.Float64("seconds", artifact.Seconds),
	)
	return artifact, nil
}

// firstFrame returns the first selected frame that decodes, which fixes the
// surface dimensions for the whole job.
func (a *Assembler) firstFrame(ctx context.Context, store framestore.Store, selected []uint64) (int, image.Image, error) {
	for order, index := range selected {
		if err := ctx.Err(); err != nil {
			return 0, nil, services.Wrap(services.ErrCancelled, "assembly", "assemble", "", err)
		}
		img, err := readFrame(ctx, store, index)
		if err == nil {
			return order, img, nil
		}
		a.logger.Debug("selected frame unreadable", logging.Uint64("index", index), logging.Error(err))
	}
	return 0, nil, services.Wrap(services.ErrNoFramesCaptured, "assembly", "assemble", "no selected frame was readable", nil)
}

func (a *Assembler) report(progress func(Progress), done, total, skipped int) {
	if progress == nil {
		return
	}
	progress(Progress{Done: done, Total: total, Skipped: skipped, Fraction: float64(done) / float64(total)})
}

func readFrame(ctx context.Context, store framestore.Store, index uint64) (image.Image, error) {
	data, err := store.Read(ctx, index)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrReadMissing, "assembly", "decode", fmt.Sprintf("frame %d", index), err)
	}
	return img, nil
}

func encodeFailed(op string, err error) error {
	if errors.Is(err, services.ErrEncodeFailed) {
		return err
	}
	return services.Wrap(services.ErrEncodeFailed, "assembly", "encode", op, err)
}
