package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"

	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/services"
)

// VideoSource is a live frame producer. The pipeline only reads from it.
type VideoSource interface {
	Snapshot(ctx context.Context) (image.Image, error)
	Dimensions() (int, int)
}

// State is the pipeline lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

const (
	DefaultFlushThreshold = 10
	DefaultMaxBuffered    = 300
	DefaultJPEGQuality    = 85
)

// Options tunes buffering and encoding.
type Options struct {
	// FlushThreshold is the buffer length that triggers a background flush.
	FlushThreshold int
	// MaxBuffered bounds frames held in memory; captures beyond it are dropped.
	MaxBuffered int
	JPEGQuality int
	// StallFrames is the number of consecutive identical frames reported as a
	// stalled source. Zero disables detection.
	StallFrames int
}

func (o Options) withDefaults() Options {
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = DefaultFlushThreshold
	}
	if o.MaxBuffered < o.FlushThreshold {
		o.MaxBuffered = max(DefaultMaxBuffered, o.FlushThreshold)
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	return o
}

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	State         State
	Interval      time.Duration
	Captured      uint64
	Flushed       uint64
	Dropped       uint64
	FlushFailures uint64
	Buffered      int
	Stalled       bool
	Width         int
	Height        int
}

// Result summarises a stopped session.
type Result struct {
	// Frames is the store's authoritative count.
	Frames    uint64
	Captured  uint64
	Dropped   uint64
	Unflushed int
	Mode      framestore.Mode
	Elapsed   time.Duration
}

// Pipeline captures frames on a fixed interval into a RAM buffer and drains
// the buffer into a frame store in the background.
type Pipeline struct {
	store  framestore.Store
	opts   Options
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	src          VideoSource
	interval     time.Duration
	runCtx       context.Context
	runCancel    context.CancelFunc
	tickStop     context.CancelFunc
	stopping     bool
	repeaterDone chan struct{} // closed when the current repeater loop returns
	flushDone    chan struct{}

	nextIndex uint64
	buffer    []framestore.Frame
	stats     Stats

	lastHash  *goimagehash.ImageHash
	sameCount int

	activeSince time.Time
	elapsed     time.Duration
}

// New constructs an idle pipeline writing into store.
func New(store framestore.Store, opts Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(logger, "capture"),
		state:  StateIdle,
	}
}

// Start captures one frame immediately and then one every interval.
func (p *Pipeline) Start(ctx context.Context, src VideoSource, interval time.Duration) error {
	if src == nil {
		return services.Wrap(services.ErrValidation, "capture", "start", "video source is required", nil)
	}
	if interval <= 0 {
		return services.Wrap(services.ErrValidation, "capture", "start", fmt.Sprintf("invalid interval %s", interval), nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return fmt.Errorf("capture already %s", p.state)
	}
	p.src = src
	p.interval = interval
	p.runCtx, p.runCancel = context.WithCancel(ctx)
	p.stats.Width, p.stats.Height = src.Dimensions()
	p.logger = logging.WithContext(ctx, p.logger)
	p.startRepeaterLocked(true)
	p.logger.Info("capture started",
		logging.Duration("interval", interval),
		logging.String("store_mode", string(p.store.Mode())),
		logging.Int("flush_threshold", p.opts.FlushThreshold),
	)
	return nil
}

// Pause stops the timer. Buffer and index state are kept.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StatePaused
	p.elapsed += time.Since(p.activeSince)
	stop, done := p.tickStop, p.repeaterDone
	p.tickStop = nil
	p.mu.Unlock()

	stop()
	<-done
	p.logger.Debug("capture paused")
}

// Resume restarts the timer without an immediate capture.
func (p *Pipeline) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused || p.stopping {
		return
	}
	p.startRepeaterLocked(false)
	p.logger.Debug("capture resumed")
}

// Stop pauses capture, waits for an in-flight flush, then flushes whatever is
// still buffered. Frames are readable from the store once Stop returns.
func (p *Pipeline) Stop(ctx context.Context) (Result, error) {
	p.mu.Lock()
	switch p.state {
	case StateIdle:
		p.mu.Unlock()
		return Result{}, errors.New("capture not started")
	case StateStopped:
		res := p.resultLocked(len(p.buffer))
		p.mu.Unlock()
		return res, nil
	}
	p.stopping = true
	p.mu.Unlock()

	p.Pause()

	p.mu.Lock()
	done, repeater := p.flushDone, p.repeaterDone
	p.mu.Unlock()
	// a Pause racing this Stop may still be waiting for its loop
	if repeater != nil {
		<-repeater
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Result{}, services.Wrap(services.ErrCancelled, "capture", "stop", "waiting for flush", ctx.Err())
		}
	}

	p.mu.Lock()
	batch := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	failed := p.writeBatch(ctx, batch)

	p.mu.Lock()
	p.buffer = append(failed, p.buffer...)
	p.state = StateStopped
	res := p.resultLocked(len(p.buffer))
	cancel := p.runCancel
	p.mu.Unlock()
	cancel()

	if res.Unflushed > 0 {
		logging.WarnWithContext(p.logger, "frames left unflushed at stop", "capture_unflushed",
			logging.Int("unflushed", res.Unflushed),
			logging.String(logging.FieldImpact, "missing frames are skipped during assembly"),
			logging.String(logging.FieldErrorHint, "check frame store disk space and permissions"),
		)
	}
	p.logger.Info("capture stopped",
		logging.Uint64("frames", res.Frames),
		logging.Uint64("captured", res.Captured),
		logging.Uint64("dropped", res.Dropped),
		logging.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// Abort stops capture without flushing. Buffered frames are discarded.
func (p *Pipeline) Abort() {
	p.mu.Lock()
	if p.state == StateIdle || p.state == StateStopped {
		p.state = StateStopped
		p.mu.Unlock()
		return
	}
	if p.state == StateRunning {
		p.elapsed += time.Since(p.activeSince)
	}
	p.state = StateStopped
	stop, done := p.tickStop, p.repeaterDone
	p.tickStop = nil
	cancel := p.runCancel
	p.buffer = nil
	p.mu.Unlock()

	if stop != nil {
		stop()
	}
	cancel()
	if done != nil {
		<-done
	}
	p.logger.Info("capture aborted")
}

// State returns the lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns current counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.State = p.state
	s.Interval = p.interval
	s.Buffered = len(p.buffer)
	return s
}

// Elapsed returns time spent in the running state.
func (p *Pipeline) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsedLocked()
}

func (p *Pipeline) elapsedLocked() time.Duration {
	if p.state == StateRunning {
		return p.elapsed + time.Since(p.activeSince)
	}
	return p.elapsed
}

func (p *Pipeline) resultLocked(unflushed int) Result {
	return Result{
		Frames:    p.store.Count(),
		Captured:  p.stats.Captured,
		Dropped:   p.stats.Dropped,
		Unflushed: unflushed,
		Mode:      p.store.Mode(),
		Elapsed:   p.elapsedLocked(),
	}
}

func (p *Pipeline) startRepeaterLocked(immediate bool) {
	tickCtx, stop := context.WithCancel(p.runCtx)
	p.tickStop = stop
	p.state = StateRunning
	p.activeSince = time.Now()
	done := make(chan struct{})
	p.repeaterDone = done
	go p.loop(tickCtx, immediate, done)
}

func (p *Pipeline) loop(ctx context.Context, immediate bool, done chan<- struct{}) {
	defer close(done)

	if immediate {
		p.captureFrame(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.captureFrame(ctx)
		}
	}
}

func (p *Pipeline) captureFrame(ctx context.Context) {
	img, err := p.src.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(p.logger, "snapshot failed; skipping tick", "capture_snapshot_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "one capture interval has no frame"),
			logging.String(logging.FieldErrorHint, "check the video source"),
		)
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
		logging.WarnWithContext(p.logger, "frame encode failed; skipping tick", "capture_encode_failed", logging.Error(err))
		return
	}
	var hash *goimagehash.ImageHash
	if p.opts.StallFrames > 0 {
		hash, err = goimagehash.DifferenceHash(img)
		if err != nil {
			p.logger.Debug("frame hash failed", logging.Error(err))
		}
	}
	bounds := img.Bounds()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return
	}
	index := p.nextIndex
	p.nextIndex++
	p.stats.Captured++
	p.trackStallLocked(hash, index)

	if len(p.buffer) >= p.opts.MaxBuffered {
		p.stats.Dropped++
		logging.WarnWithContext(p.logger, "frame buffer full; dropping frame", "capture_frame_dropped",
			logging.Uint64("index", index),
			logging.Int("buffered", len(p.buffer)),
			logging.String(logging.FieldImpact, "the timelapse skips this frame"),
			logging.String(logging.FieldErrorHint, "the frame store is not keeping up; check disk throughput"),
		)
		return
	}
	p.buffer = append(p.buffer, framestore.Frame{
		Index:  index,
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	})
	if len(p.buffer) >= p.opts.FlushThreshold && p.flushDone == nil {
		p.startFlushLocked()
	}
}

func (p *Pipeline) trackStallLocked(hash *goimagehash.ImageHash, index uint64) {
	if hash == nil {
		return
	}
	prev := p.lastHash
	p.lastHash = hash
	if prev == nil {
		return
	}
	if dist, err := prev.Distance(hash); err != nil || dist != 0 {
		p.sameCount = 0
		p.stats.Stalled = false
		return
	}
	p.sameCount++
	if p.sameCount+1 >= p.opts.StallFrames && !p.stats.Stalled {
		p.stats.Stalled = true
		logging.WarnWithContext(p.logger, "video source appears frozen", "capture_source_stalled",
			logging.Uint64("index", index),
			logging.Int("identical_frames", p.sameCount+1),
			logging.String(logging.FieldImpact, "the timelapse will show a still image"),
			logging.String(logging.FieldErrorHint, "check that the camera is still delivering frames"),
		)
	}
}

// startFlushLocked swaps the buffer out and drains it on its own goroutine so
// capture never waits on the store.
func (p *Pipeline) startFlushLocked() {
	batch := p.buffer
	p.buffer = nil
	done := make(chan struct{})
	p.flushDone = done
	ctx := p.runCtx
	go func() {
		failed := p.writeBatch(ctx, batch)
		p.mu.Lock()
		p.buffer = append(failed, p.buffer...)
		p.flushDone = nil
		p.mu.Unlock()
		close(done)
	}()
}

// writeBatch writes frames in index order and returns those that failed.
func (p *Pipeline) writeBatch(ctx context.Context, batch []framestore.Frame) []framestore.Frame {
	if len(batch) == 0 {
		return nil
	}
	var failed []framestore.Frame
	var written uint64
	for _, frame := range batch {
		if err := p.store.Write(ctx, frame.Index, frame.Data); err != nil {
			failed = append(failed, frame)
			if ctx.Err() == nil {
				p.logger.Debug("frame write failed; will retry", logging.Uint64("index", frame.Index), logging.Error(err))
			}
			continue
		}
		written++
	}
	p.mu.Lock()
	p.stats.Flushed += written
	if len(failed) > 0 {
		p.stats.FlushFailures++
	}
	p.mu.Unlock()
	if len(failed) > 0 && ctx.Err() == nil {
		logging.WarnWithContext(p.logger, "frame flush incomplete; requeued failed frames", "capture_flush_failed",
			logging.Int("failed", len(failed)),
			logging.Int("batch", len(batch)),
			logging.String(logging.FieldImpact, "frames stay buffered until the next flush"),
			logging.String(logging.FieldErrorHint, "check frame store disk space and permissions"),
		)
	}
	return failed
}
