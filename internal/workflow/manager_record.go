package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/services"
)

func (m *Manager) createRun(ctx context.Context) {
	if m.deps.Recorder == nil {
		return
	}
	run, err := m.deps.Recorder.Create(ctx, m.session.ID)
	if err != nil {
		logging.WarnWithContext(m.logger, "failed to record session", "run_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "session is missing from job history"),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions"),
		)
		return
	}
	m.mu.Lock()
	m.run = run
	m.mu.Unlock()
}

// persist mirrors the current state into the recorder. Failures are logged
// and otherwise ignored.
func (m *Manager) persist() {
	if m.deps.Recorder == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if m.run == nil {
		m.mu.Unlock()
		return
	}
	run := *m.run
	run.State = m.state
	run.Progress = m.progress
	run.PlanCase = string(m.plan.Case)
	run.KeepEveryN = m.plan.KeepEveryN
	run.OutputFPS = m.plan.OutputFPS
	if m.artifact.Plan.KeepEveryN > 0 {
		run.PlanCase = string(m.artifact.Plan.Case)
		run.KeepEveryN = m.artifact.Plan.KeepEveryN
		run.OutputFPS = m.artifact.Plan.OutputFPS
	}
	run.FramesCaptured = m.captured.Frames
	run.FramesDropped = m.captured.Dropped
	run.RecordingSeconds = m.captured.Elapsed.Seconds()
	run.OutputSeconds = m.session.OutputSeconds
	run.ArtifactPath = m.artifact.Path
	run.TaskID = m.taskID
	run.DownloadURL = m.downloadURL
	run.StoreMode = string(m.storeMode)
	run.StorePath = m.storePath
	run.Reason, run.ErrorMessage = "", ""
	if m.lastErr != nil && m.state.Terminal() {
		run.Reason = services.FailureReason(m.lastErr)
		run.ErrorMessage = strings.TrimSpace(m.lastErr.Error())
	}
	m.mu.Unlock()

	ctx := m.backgroundContext()
	if err := m.deps.Recorder.Update(ctx, &run); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("run update skipped during shutdown")
			return
		}
		logging.WarnWithContext(m.logger, "failed to persist session state", "run_record_failed",
			logging.Error(err),
			logging.String("state", string(run.State)),
			logging.String(logging.FieldImpact, "job history shows a stale state"),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions"),
		)
		return
	}
	m.mu.Lock()
	if m.run != nil {
		m.run.UpdatedAt = run.UpdatedAt
	}
	m.mu.Unlock()
}
