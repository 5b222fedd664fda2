package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kknaks/study-timelapse/internal/assembly"
	"github.com/kknaks/study-timelapse/internal/capture"
	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/jobs"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/sampling"
	"github.com/kknaks/study-timelapse/internal/services"
)

// Manager drives a single session through its processing states. A Manager
// handles one session at a time; Retry reuses it after a failure.
type Manager struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	changed  chan struct{}
	state    State
	progress float64
	lastErr  error
	failed   step
	stopping bool

	session Session
	source  capture.VideoSource
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	store         framestore.Store
	storeMode     framestore.Mode
	storePath     string
	pipeline      *capture.Pipeline
	captureCancel context.CancelFunc
	plan          sampling.Plan
	captured      capture.Result

	artifact    assembly.Artifact
	fileID      string
	taskID      string
	downloadURL string

	persistMu sync.Mutex
	run       *jobs.Run
}

// New constructs an idle Manager.
func New(deps Deps, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		deps:    deps,
		opts:    opts.withDefaults(),
		logger:  logging.NewComponentLogger(logger, "workflow"),
		changed: make(chan struct{}),
		state:   StateIdle,
	}
}

// Start opens a frame store for the session and begins capturing from src.
// ctx bounds the whole run: cancelling it cancels the session.
func (m *Manager) Start(ctx context.Context, session Session, src capture.VideoSource) error {
	if src == nil {
		return services.Wrap(services.ErrValidation, "workflow", "start", "video source is required", nil)
	}
	if session.PlannedDuration < 0 {
		return services.Wrap(services.ErrValidation, "workflow", "start",
			fmt.Sprintf("planned duration must not be negative, got %s", session.PlannedDuration), nil)
	}
	if m.deps.NewEncoder == nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "start", "encoder factory not configured", nil)
	}
	if _, err := sampling.Compute(0, session.OutputSeconds); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateIdle || m.session.ID != "" {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("workflow: session already %s", state)
	}
	if strings.TrimSpace(session.ID) == "" {
		session.ID = uuid.NewString()
	}
	m.session = session
	m.source = src
	m.parent = ctx
	m.mu.Unlock()

	m.createRun(ctx)
	return m.startCapture(ctx, StateIdle)
}

// Pause suspends capture. Active time stops accruing toward the auto-stop.
func (m *Manager) Pause() error {
	pipeline, err := m.capturingPipeline("pause")
	if err != nil {
		return err
	}
	pipeline.Pause()
	return nil
}

// Resume continues a paused capture.
func (m *Manager) Resume() error {
	pipeline, err := m.capturingPipeline("resume")
	if err != nil {
		return err
	}
	pipeline.Resume()
	return nil
}

func (m *Manager) capturingPipeline(op string) (*capture.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCapturing || m.stopping || m.pipeline == nil {
		return nil, fmt.Errorf("workflow: cannot %s while %s", op, m.state)
	}
	return m.pipeline, nil
}

// Stop ends capture, waits for buffered frames to reach the store, and starts
// processing in the background. Use Wait to observe the outcome.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateCapturing || m.stopping {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("workflow: cannot stop while %s", state)
	}
	m.stopping = true
	pipeline := m.pipeline
	stopWatch := m.captureCancel
	m.mu.Unlock()

	stopWatch()
	return m.finishCapture(ctx, pipeline)
}

func (m *Manager) finishCapture(ctx context.Context, pipeline *capture.Pipeline) error {
	res, err := pipeline.Stop(ctx)

	m.mu.Lock()
	if m.state != StateCapturing {
		m.mu.Unlock()
		return services.Wrap(services.ErrCancelled, "workflow", "stop", "session cancelled", nil)
	}
	if err != nil {
		m.mu.Unlock()
		pipeline.Abort()
		m.fail(stepCapture, err)
		return err
	}
	m.captured = res
	m.storeMode = res.Mode
	m.setStateLocked(StateAssembling, 0)
	runCtx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	m.persist()
	go m.process(runCtx, stepAssemble)
	return nil
}

// Cancel abandons the session from any state except Completed. Capture, the
// poll loop, and the encoder are stopped and the frame store is disposed.
// Cancel returns once background work has exited; it must not be called
// from a ResultConsumer.
func (m *Manager) Cancel() {
	m.abort(services.Wrap(services.ErrCancelled, "workflow", "cancel", "cancelled by request", nil))
	m.wg.Wait()
}

// Retry resumes a failed session. RetryStep repeats only the failed step and
// requires the frames or artifact it consumes to still exist; RetryFull
// discards everything and records again from the original source.
func (m *Manager) Retry(ctx context.Context, scope RetryScope) error {
	m.mu.Lock()
	if m.state != StateFailed {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("workflow: retry requires failed state, got %s", state)
	}

	switch scope {
	case RetryStep:
		failed := m.failed
		if reason := m.stepRetryBlockedLocked(); reason != "" {
			m.mu.Unlock()
			return services.Wrap(services.ErrValidation, "workflow", "retry", reason+"; use a full retry", nil)
		}
		if m.cancel != nil {
			m.cancel()
		}
		m.ctx, m.cancel = context.WithCancel(services.WithSessionID(ctx, m.session.ID))
		m.parent = ctx
		m.lastErr = nil
		m.failed = ""
		m.setStateLocked(stateForStep(failed), m.progress)
		runCtx := m.ctx
		m.wg.Add(1)
		m.mu.Unlock()

		m.logger.Info("retrying failed step", logging.String("step", string(failed)))
		m.persist()
		go m.process(runCtx, failed)
		return nil

	case RetryFull:
		if m.cancel != nil {
			m.cancel()
		}
		m.parent = ctx
		m.lastErr = nil
		m.failed = ""
		m.progress = 0
		m.captured = capture.Result{}
		m.artifact = assembly.Artifact{}
		m.fileID, m.taskID, m.downloadURL = "", "", ""
		m.mu.Unlock()

		m.wg.Wait()
		m.releaseStore(false)
		m.logger.Info("retrying session from capture")
		return m.startCapture(ctx, StateFailed)

	default:
		m.mu.Unlock()
		return services.Wrap(services.ErrValidation, "workflow", "retry", fmt.Sprintf("unknown retry scope %q", scope), nil)
	}
}

func (m *Manager) stepRetryBlockedLocked() string {
	switch {
	case m.failed == "" || m.failed == stepCapture:
		return "capture failures cannot be retried alone"
	case !services.Retryable(m.lastErr):
		return services.FailureReason(m.lastErr)
	case m.failed == stepAssemble && m.store == nil:
		return "frames are no longer available"
	case m.failed != stepAssemble && m.artifact.Path == "":
		return "artifact is no longer available"
	case m.failed == stepPoll && m.taskID == "":
		return "conversion task is unknown"
	default:
		return ""
	}
}

func stateForStep(s step) State {
	switch s {
	case stepUpload:
		return StateUploading
	case stepConvert:
		return StateConverting
	case stepPoll:
		return StatePolling
	default:
		return StateAssembling
	}
}

// Status returns the current snapshot.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		SessionID:    m.session.ID,
		State:        m.state,
		Progress:     m.progress,
		Err:          m.lastErr,
		FailedStep:   string(m.failed),
		Plan:         m.plan,
		StoreMode:    m.storeMode,
		ArtifactPath: m.artifact.Path,
		TaskID:       m.taskID,
		DownloadURL:  m.downloadURL,
	}
	if m.lastErr != nil {
		snap.Reason = services.FailureReason(m.lastErr)
	}
	if m.run != nil {
		snap.RunID = m.run.ID
	}
	pipeline := m.pipeline
	m.mu.Unlock()

	if pipeline != nil {
		snap.Capture = pipeline.Stats()
		snap.Elapsed = pipeline.Elapsed()
	}
	return snap
}

// Wait blocks until the session reaches Completed, Failed, or Cancelled and
// its background work has exited, so the run record and ResultConsumer are
// settled. It returns the final snapshot together with the failure, if any.
// Like Cancel it must not be called from a ResultConsumer.
func (m *Manager) Wait(ctx context.Context) (Snapshot, error) {
	for {
		m.mu.Lock()
		state, err, changed := m.state, m.lastErr, m.changed
		m.mu.Unlock()
		if state.Terminal() {
			m.wg.Wait()
			if state == StateCompleted {
				err = nil
			}
			return m.Status(), err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return m.Status(), ctx.Err()
		}
	}
}

func (m *Manager) setStateLocked(state State, progress float64) {
	from := m.state
	m.state = state
	m.progress = progress
	close(m.changed)
	m.changed = make(chan struct{})
	if from != state {
		m.logger.Info("session state changed",
			logging.String(logging.FieldSessionID, m.session.ID),
			logging.String("from", string(from)),
			logging.String("to", string(state)),
		)
	}
}

func (m *Manager) setProgress(progress float64) {
	m.mu.Lock()
	if !m.state.Terminal() {
		m.progress = progress
	}
	m.mu.Unlock()
}

func (m *Manager) fail(s step, err error) {
	m.mu.Lock()
	if m.state == StateCancelled || m.state == StateCompleted {
		m.mu.Unlock()
		return
	}
	m.lastErr = err
	m.failed = s
	m.setStateLocked(StateFailed, m.progress)
	m.mu.Unlock()

	logging.ErrorWithContext(m.logger, "session failed", "session_failed",
		logging.String(logging.FieldSessionID, m.session.ID),
		logging.String("step", string(s)),
		logging.String("reason", services.FailureReason(err)),
		logging.Bool("step_retryable", services.Retryable(err)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
	m.persist()
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrNoFramesCaptured):
		return "check the video source and frame store, then retry in full"
	case errors.Is(err, services.ErrEncodeFailed):
		return "run `timelapse doctor` to verify the ffmpeg installation"
	case errors.Is(err, services.ErrPermissionDenied):
		return "check conversion.api_token"
	case errors.Is(err, services.ErrUploadFailed), errors.Is(err, services.ErrConversionFailed):
		return "check conversion.base_url and network connectivity, then retry the step"
	case errors.Is(err, services.ErrConversionTimeout):
		return "raise conversion.max_wait_seconds or retry the step"
	default:
		return "inspect the error and retry"
	}
}

// abort moves the session to Cancelled and releases its resources without
// waiting for background goroutines. It reports whether the state changed.
func (m *Manager) abort(cause error) bool {
	m.mu.Lock()
	if m.state == StateCompleted || m.state == StateCancelled {
		m.mu.Unlock()
		return false
	}
	m.lastErr = cause
	m.setStateLocked(StateCancelled, m.progress)
	cancel, captureCancel, pipeline := m.cancel, m.captureCancel, m.pipeline
	m.mu.Unlock()

	if captureCancel != nil {
		captureCancel()
	}
	if cancel != nil {
		cancel()
	}
	if pipeline != nil {
		pipeline.Abort()
	}
	m.releaseStore(false)
	m.logger.Info("session cancelled", logging.String(logging.FieldSessionID, m.session.ID))
	m.persist()
	return true
}

// releaseStore disposes the frame store, or only unlocks it when keep is set.
func (m *Manager) releaseStore(keep bool) {
	m.mu.Lock()
	store := m.store
	m.store = nil
	m.mu.Unlock()
	if store == nil {
		return
	}
	if keep {
		if closer, ok := store.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				m.logger.Debug("frame store close failed", logging.Error(err))
			}
		}
		return
	}
	if err := store.Dispose(); err != nil {
		logging.WarnWithContext(m.logger, "frame store dispose failed", "framestore_dispose_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "session frames remain on disk"),
			logging.String(logging.FieldErrorHint, "remove the session directory under paths.data_dir manually"),
		)
	}
}

func (m *Manager) backgroundContext() context.Context {
	m.mu.Lock()
	parent := m.parent
	m.mu.Unlock()
	if parent == nil {
		return context.Background()
	}
	return context.WithoutCancel(parent)
}
