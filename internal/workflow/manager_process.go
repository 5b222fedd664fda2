package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kknaks/study-timelapse/internal/assembly"
	"github.com/kknaks/study-timelapse/internal/conversion"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/overlay"
	"github.com/kknaks/study-timelapse/internal/services"
)

var processingSteps = []step{stepAssemble, stepUpload, stepConvert, stepPoll}

// process runs the processing steps starting at from and settles the
// session in a terminal state.
func (m *Manager) process(ctx context.Context, from step) {
	defer m.wg.Done()

	failedStep, err := m.runSteps(ctx, from)
	switch {
	case err == nil:
		m.complete(ctx)
	case ctx.Err() != nil || errors.Is(err, services.ErrCancelled):
		m.abort(err)
	default:
		m.fail(failedStep, err)
	}
}

func (m *Manager) runSteps(ctx context.Context, from step) (step, error) {
	started := false
	for _, s := range processingSteps {
		if s == from {
			started = true
		}
		if !started {
			continue
		}
		if s != stepAssemble && m.deps.Conversion == nil {
			break
		}
		var err error
		switch s {
		case stepAssemble:
			err = m.assemble(services.WithStage(ctx, "assembly"))
		case stepUpload:
			err = m.upload(services.WithStage(ctx, "upload"))
		case stepConvert:
			err = m.requestConversion(services.WithStage(ctx, "conversion"))
		case stepPoll:
			err = m.poll(services.WithStage(ctx, "polling"))
		}
		if err != nil {
			return s, err
		}
	}
	return "", nil
}

// enter switches to state unless the session was cancelled meanwhile.
func (m *Manager) enter(state State, progress float64) error {
	m.mu.Lock()
	if m.state == StateCancelled {
		m.mu.Unlock()
		return services.Wrap(services.ErrCancelled, "workflow", string(state), "session cancelled", nil)
	}
	m.setStateLocked(state, progress)
	m.mu.Unlock()
	m.persist()
	return nil
}

func (m *Manager) assemble(ctx context.Context) error {
	if err := m.enter(StateAssembling, 0); err != nil {
		return err
	}
	m.mu.Lock()
	store, session, captured, plan := m.store, m.session, m.captured, m.plan
	m.mu.Unlock()
	if store == nil {
		return services.Wrap(services.ErrNoFramesCaptured, "workflow", "assemble", "frame store released", nil)
	}

	encoder, err := m.deps.NewEncoder(session.ID)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "workflow", "assemble", "create encoder", err)
	}

	logger := logging.WithContext(ctx, m.logger)
	sampler := logging.NewProgressSampler(10)
	job := assembly.Job{
		Plan:             plan,
		Overlay:          session.Overlay,
		RecordingSeconds: captured.Elapsed.Seconds(),
		OutputSeconds:    session.OutputSeconds,
	}
	artifact, err := assembly.New(encoder, m.opts.Assembly, m.logger).Assemble(ctx, store, job, func(p assembly.Progress) {
		m.setProgress(p.Fraction * progressAssemblyEnd)
		if sampler.ShouldLog(p.Fraction * 100) {
			logger.Info("assembly progress",
				logging.Int("done", p.Done),
				logging.Int("total", p.Total),
				logging.Int("skipped", p.Skipped),
			)
		}
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.artifact = artifact
	m.progress = progressAssemblyEnd
	m.mu.Unlock()
	logger.Info("timelapse assembled",
		logging.String("path", artifact.Path),
		logging.Int("frames", artifact.Frames),
		logging.Int("skipped", artifact.Skipped),
		logging.Int("fps", artifact.FPS),
		logging.Float64("seconds", artifact.Seconds),
		logging.String("plan", artifact.Plan.String()),
	)
	return nil
}

func (m *Manager) upload(ctx context.Context) error {
	if err := m.enter(StateUploading, progressAssemblyEnd); err != nil {
		return err
	}
	m.mu.Lock()
	path := m.artifact.Path
	m.mu.Unlock()

	fileID, err := m.deps.Conversion.Upload(ctx, path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.fileID = fileID
	m.progress = progressUploadEnd
	m.mu.Unlock()
	logging.WithContext(ctx, m.logger).Info("artifact uploaded", logging.String("file_id", fileID))
	return nil
}

func (m *Manager) requestConversion(ctx context.Context) error {
	if err := m.enter(StateConverting, progressUploadEnd); err != nil {
		return err
	}
	m.mu.Lock()
	req := conversion.Request{
		FileID:           m.fileID,
		OutputSeconds:    m.session.OutputSeconds,
		RecordingSeconds: m.captured.Elapsed.Seconds(),
		Overlay:          overlayHints(m.session.Overlay),
	}
	m.mu.Unlock()

	taskID, err := m.deps.Conversion.RequestConversion(ctx, req)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.taskID = taskID
	m.mu.Unlock()
	logging.WithContext(ctx, m.logger).Info("conversion requested", logging.String("task_id", taskID))
	return nil
}

// poll asks for the task status every PollInterval until the task settles or
// MaxWait elapses. Transient errors are logged and polling continues.
func (m *Manager) poll(ctx context.Context) error {
	if err := m.enter(StatePolling, progressUploadEnd); err != nil {
		return err
	}
	m.mu.Lock()
	taskID := m.taskID
	m.mu.Unlock()
	logger := logging.WithContext(ctx, m.logger).With(logging.String("task_id", taskID))

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	var deadline <-chan time.Time
	if m.opts.MaxWait > 0 {
		timer := time.NewTimer(m.opts.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrCancelled, "conversion", "poll", "", ctx.Err())
		case <-deadline:
			return services.Wrap(services.ErrConversionTimeout, "conversion", "poll",
				fmt.Sprintf("task %s unfinished after %s", taskID, m.opts.MaxWait), nil)
		case <-ticker.C:
		}

		status, err := m.deps.Conversion.PollStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, services.ErrPermissionDenied) || errors.Is(err, services.ErrCancelled) {
				return err
			}
			logging.WarnWithContext(logger, "conversion status unavailable; polling again", "conversion_poll_retry",
				logging.Error(err),
				logging.Duration("poll_interval", m.opts.PollInterval),
				logging.String(logging.FieldImpact, "conversion result is delayed"),
				logging.String(logging.FieldErrorHint, "check connectivity to conversion.base_url"),
			)
			continue
		}

		switch status.Status {
		case conversion.StatusCompleted:
			m.mu.Lock()
			m.downloadURL = status.DownloadURL
			m.mu.Unlock()
			logger.Info("conversion completed", logging.String("download_url", status.DownloadURL))
			return nil
		case conversion.StatusFailed:
			return services.Wrap(services.ErrConversionFailed, "conversion", "poll",
				fmt.Sprintf("task %s reported failure", taskID), nil)
		default:
			m.setProgress(math.Min(progressPollCeiling, progressUploadEnd+status.Progress*0.5))
			logger.Debug("conversion in progress", logging.Float64("progress", status.Progress))
		}
	}
}

func (m *Manager) complete(ctx context.Context) {
	m.mu.Lock()
	if m.state == StateCancelled {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateCompleted, progressDone)
	result := Result{
		SessionID:        m.session.ID,
		ArtifactPath:     m.artifact.Path,
		DownloadURL:      m.downloadURL,
		RecordingSeconds: m.captured.Elapsed.Seconds(),
		OutputSeconds:    m.artifact.Seconds,
	}
	m.mu.Unlock()

	m.releaseStore(m.opts.KeepFrames)
	m.persist()
	m.logger.Info("session completed",
		logging.String(logging.FieldSessionID, result.SessionID),
		logging.String("artifact", result.ArtifactPath),
		logging.String("download_url", result.DownloadURL),
		logging.Float64("recording_seconds", result.RecordingSeconds),
		logging.Float64("output_seconds", result.OutputSeconds),
	)

	if m.deps.Consumer == nil {
		return
	}
	if err := m.deps.Consumer.Consume(ctx, result); err != nil {
		logging.WarnWithContext(m.logger, "result consumer failed", "result_consumer_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the timelapse was produced but not delivered"),
			logging.String(logging.FieldErrorHint, "the artifact remains at its output path"),
		)
	}
}

func overlayHints(cfg *overlay.Config) *conversion.OverlayHints {
	if cfg == nil || cfg.Theme == overlay.ThemeNone {
		return nil
	}
	return &conversion.OverlayHints{
		Theme:    string(cfg.Theme),
		Position: cfg.Anchor.String(),
		Color:    fmt.Sprintf("#%02x%02x%02x", cfg.Color.R, cfg.Color.G, cfg.Color.B),
		Size:     string(cfg.Size),
	}
}
