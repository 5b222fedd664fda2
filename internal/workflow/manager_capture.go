package workflow

import (
	"context"
	"math"
	"time"

	"github.com/kknaks/study-timelapse/internal/capture"
	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/sampling"
	"github.com/kknaks/study-timelapse/internal/services"
)

// minAutoStopWait keeps the auto-stop watcher from spinning when a paused
// session sits just short of its planned duration.
const minAutoStopWait = 10 * time.Millisecond

// startCapture opens the store and starts a fresh pipeline. from is the state
// the session must still be in once everything is ready; a concurrent Cancel
// changes it and the new resources are released again.
func (m *Manager) startCapture(ctx context.Context, from State) error {
	m.mu.Lock()
	session, src := m.session, m.source
	m.mu.Unlock()

	plannedSeconds := session.PlannedDuration.Seconds()
	plan, err := sampling.Compute(uint64(math.Round(plannedSeconds*sampling.BaseFPS)), session.OutputSeconds)
	if err != nil {
		m.fail(stepCapture, err)
		return err
	}
	interval := session.PlannedInterval
	if interval <= 0 {
		interval, err = sampling.CaptureInterval(plannedSeconds, session.OutputSeconds)
		if err != nil {
			m.fail(stepCapture, err)
			return err
		}
	}

	runCtx, cancel := context.WithCancel(services.WithSessionID(ctx, session.ID))
	store, err := m.openStore(runCtx, session.ID)
	if err != nil {
		cancel()
		err = services.Wrap(services.ErrCancelled, "workflow", "open store", "", err)
		m.abort(err)
		return err
	}

	pipeline := capture.New(store, m.opts.Capture, m.logger)
	if err := pipeline.Start(services.WithStage(runCtx, "capture"), src, interval); err != nil {
		cancel()
		_ = store.Dispose()
		m.fail(stepCapture, err)
		return err
	}
	captureCtx, captureCancel := context.WithCancel(runCtx)

	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		captureCancel()
		cancel()
		pipeline.Abort()
		_ = store.Dispose()
		return services.Wrap(services.ErrCancelled, "workflow", "start", "session cancelled while starting", nil)
	}
	m.ctx, m.cancel = runCtx, cancel
	m.captureCancel = captureCancel
	m.store = store
	m.storeMode = store.Mode()
	m.storePath = ""
	if located, ok := store.(interface{ Path() string }); ok {
		m.storePath = located.Path()
	}
	m.pipeline = pipeline
	m.plan = plan
	m.stopping = false
	m.setStateLocked(StateCapturing, 0)
	m.wg.Add(1)
	m.mu.Unlock()

	go m.watchCapture(captureCtx, runCtx, pipeline, session.PlannedDuration)

	m.logger.Info("session recording",
		logging.String(logging.FieldSessionID, session.ID),
		logging.Duration("planned_duration", session.PlannedDuration),
		logging.Float64("output_seconds", session.OutputSeconds),
		logging.Duration("interval", interval),
		logging.String("initial_plan", plan.String()),
		logging.String("store_mode", string(store.Mode())),
	)
	m.persist()
	return nil
}

// watchCapture stops the session once active capture time reaches planned,
// and cancels it when the run context ends first.
func (m *Manager) watchCapture(ctx, runCtx context.Context, pipeline *capture.Pipeline, planned time.Duration) {
	defer m.wg.Done()

	for {
		var wait <-chan time.Time
		var timer *time.Timer
		if planned > 0 {
			remaining := planned - pipeline.Elapsed()
			if remaining <= 0 && pipeline.State() == capture.StateRunning {
				m.autoStop(runCtx, pipeline)
				return
			}
			timer = time.NewTimer(max(remaining, minAutoStopWait))
			wait = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if runCtx.Err() != nil {
				m.abort(services.Wrap(services.ErrCancelled, "workflow", "capture", "run context ended", runCtx.Err()))
			}
			return
		case <-wait:
		}
	}
}

func (m *Manager) autoStop(ctx context.Context, pipeline *capture.Pipeline) {
	m.mu.Lock()
	if m.state != StateCapturing || m.stopping {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	stopWatch := m.captureCancel
	m.mu.Unlock()
	stopWatch()

	m.logger.Info("planned duration reached; stopping capture",
		logging.String(logging.FieldSessionID, m.session.ID),
		logging.Duration("elapsed", pipeline.Elapsed()),
	)
	if err := m.finishCapture(ctx, pipeline); err != nil {
		m.logger.Debug("automatic stop did not complete", logging.Error(err))
	}
}

func (m *Manager) openStore(ctx context.Context, sessionID string) (framestore.Store, error) {
	if m.deps.OpenStore != nil {
		return m.deps.OpenStore(ctx, sessionID)
	}
	opts := m.opts.Store
	opts.Namespace = sessionID
	if opts.Logger == nil {
		opts.Logger = m.logger
	}
	return framestore.Open(ctx, opts)
}
