package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = "id, session_id, state, reason, error_message, plan_case, keep_every_n, output_fps, frames_captured, frames_dropped, recording_seconds, output_seconds, progress_percent, artifact_path, download_url, task_id, store_mode, store_path, created_at, updated_at"

// Create inserts a new run in the idle state.
func (s *Store) Create(ctx context.Context, sessionID string) (*Run, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`INSERT INTO runs (session_id, state, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sessionID, StateIdle, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches a run by id. A missing run returns nil without error.
func (s *Store) Get(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// Update persists every mutable field of run.
func (s *Store) Update(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	run.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(ctx,
		`UPDATE runs
         SET state = ?, reason = ?, error_message = ?, plan_case = ?, keep_every_n = ?,
             output_fps = ?, frames_captured = ?, frames_dropped = ?, recording_seconds = ?,
             output_seconds = ?, progress_percent = ?, artifact_path = ?, download_url = ?,
             task_id = ?, store_mode = ?, store_path = ?, updated_at = ?
         WHERE id = ?`,
		run.State,
		nullableString(run.Reason),
		nullableString(run.ErrorMessage),
		nullableString(run.PlanCase),
		run.KeepEveryN,
		run.OutputFPS,
		int64(run.FramesCaptured),
		int64(run.FramesDropped),
		run.RecordingSeconds,
		run.OutputSeconds,
		run.Progress,
		nullableString(run.ArtifactPath),
		nullableString(run.DownloadURL),
		nullableString(run.TaskID),
		nullableString(run.StoreMode),
		nullableString(run.StorePath),
		run.UpdatedAt.Format(time.RFC3339Nano),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// List returns runs newest first, optionally filtered by state. limit <= 0
// returns every match.
func (s *Store) List(ctx context.Context, limit int, states ...State) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(states)+1)
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, state)
		}
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Summarize counts runs by outcome.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM runs GROUP BY state`)
	if err != nil {
		return Summary{}, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		switch state {
		case StateCompleted:
			summary.Completed += count
		case StateFailed:
			summary.Failed += count
		case StateCancelled:
			summary.Cancelled += count
		default:
			summary.Active += count
		}
	}
	return summary, rows.Err()
}

// MarkInterrupted fails every run left in a non-terminal state, which only
// happens when a previous process exited mid-run.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET state = ?, reason = ?, updated_at = ? WHERE state NOT IN (?, ?, ?)`,
		StateFailed, InterruptedReason, time.Now().UTC().Format(time.RFC3339Nano),
		StateCompleted, StateFailed, StateCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a run by id.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearFinished removes completed and cancelled runs. Failed runs are kept
// for retry.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE state IN (?, ?)`, StateCompleted, StateCancelled)
	if err != nil {
		return 0, fmt.Errorf("clear finished runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		state        string
		reason       sql.NullString
		errorMessage sql.NullString
		planCase     sql.NullString
		captured     int64
		dropped      int64
		artifactPath sql.NullString
		downloadURL  sql.NullString
		taskID       sql.NullString
		storeMode    sql.NullString
		storePath    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.SessionID,
		&state,
		&reason,
		&errorMessage,
		&planCase,
		&run.KeepEveryN,
		&run.OutputFPS,
		&captured,
		&dropped,
		&run.RecordingSeconds,
		&run.OutputSeconds,
		&run.Progress,
		&artifactPath,
		&downloadURL,
		&taskID,
		&storeMode,
		&storePath,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	run.State = State(state)
	run.Reason = reason.String
	run.ErrorMessage = errorMessage.String
	run.PlanCase = planCase.String
	run.FramesCaptured = uint64(max(captured, 0))
	run.FramesDropped = uint64(max(dropped, 0))
	run.ArtifactPath = artifactPath.String
	run.DownloadURL = downloadURL.String
	run.TaskID = taskID.String
	run.StoreMode = storeMode.String
	run.StorePath = storePath.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		run.UpdatedAt = updated
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
