package workflow

import (
	"context"
	"time"

	"github.com/kknaks/study-timelapse/internal/assembly"
	"github.com/kknaks/study-timelapse/internal/capture"
	"github.com/kknaks/study-timelapse/internal/conversion"
	"github.com/kknaks/study-timelapse/internal/framestore"
	"github.com/kknaks/study-timelapse/internal/jobs"
	"github.com/kknaks/study-timelapse/internal/overlay"
	"github.com/kknaks/study-timelapse/internal/sampling"
)

// State is the processing state of the managed session.
type State = jobs.State

const (
	StateIdle       = jobs.StateIdle
	StateCapturing  = jobs.StateCapturing
	StateAssembling = jobs.StateAssembling
	StateUploading  = jobs.StateUploading
	StateConverting = jobs.StateConverting
	StatePolling    = jobs.StatePolling
	StateCompleted  = jobs.StateCompleted
	StateFailed     = jobs.StateFailed
	StateCancelled  = jobs.StateCancelled
)

// Progress milestones reported through Snapshot.Progress.
const (
	progressAssemblyEnd = 30
	progressUploadEnd   = 40
	progressPollCeiling = 90
	progressDone        = 100
)

// Session describes one recording. It is fixed once Start is called.
type Session struct {
	// ID names the session. A UUID is generated when empty.
	ID string
	// PlannedDuration triggers an automatic stop once that much active
	// capture time has elapsed. Zero disables the auto-stop.
	PlannedDuration time.Duration
	// OutputSeconds is the requested timelapse length.
	OutputSeconds float64
	// PlannedInterval overrides the capture period derived from the plan.
	PlannedInterval time.Duration
	// Overlay is drawn onto every output frame when set.
	Overlay *overlay.Config
}

// RetryScope selects how much work Retry repeats.
type RetryScope string

const (
	// RetryFull discards the frames and records again from the same source.
	RetryFull RetryScope = "full"
	// RetryStep repeats only the step that failed.
	RetryStep RetryScope = "step"
)

type step string

const (
	stepCapture  step = "capture"
	stepAssemble step = "assemble"
	stepUpload   step = "upload"
	stepConvert  step = "convert"
	stepPoll     step = "poll"
)

// Result is handed to the ResultConsumer when a run completes.
type Result struct {
	SessionID        string
	ArtifactPath     string
	DownloadURL      string
	RecordingSeconds float64
	OutputSeconds    float64
}

// ResultConsumer receives completed runs.
type ResultConsumer interface {
	Consume(ctx context.Context, result Result) error
}

// ResultConsumerFunc adapts a function to ResultConsumer.
type ResultConsumerFunc func(ctx context.Context, result Result) error

// Consume calls f.
func (f ResultConsumerFunc) Consume(ctx context.Context, result Result) error {
	return f(ctx, result)
}

// Recorder persists run state. jobs.Store satisfies it.
type Recorder interface {
	Create(ctx context.Context, sessionID string) (*jobs.Run, error)
	Update(ctx context.Context, run *jobs.Run) error
}

// EncoderFactory returns a fresh encoder for one assembly attempt.
type EncoderFactory func(sessionID string) (assembly.Encoder, error)

// StoreOpener opens the frame store for a session.
type StoreOpener func(ctx context.Context, sessionID string) (framestore.Store, error)

// Deps are the collaborators the Manager drives.
type Deps struct {
	// NewEncoder is required.
	NewEncoder EncoderFactory
	// OpenStore defaults to framestore.Open with Options.Store.
	OpenStore StoreOpener
	// Conversion is optional. Without it a run completes after assembly.
	Conversion conversion.Service
	Recorder   Recorder
	Consumer   ResultConsumer
}

// Options tunes the Manager.
type Options struct {
	Capture  capture.Options
	Store    framestore.Options
	Assembly assembly.Options

	// PollInterval is the delay between conversion status requests.
	PollInterval time.Duration
	// MaxWait bounds the whole poll loop; zero means unbounded.
	MaxWait time.Duration
	// KeepFrames leaves the frame store on disk after a completed run.
	KeepFrames bool
}

const defaultPollInterval = 2 * time.Second

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	return o
}

// Snapshot is a point-in-time view of the managed session.
type Snapshot struct {
	SessionID    string
	RunID        int64
	State        State
	Progress     float64
	Reason       string
	Err          error
	FailedStep   string
	Plan         sampling.Plan
	Capture      capture.Stats
	Elapsed      time.Duration
	StoreMode    framestore.Mode
	ArtifactPath string
	TaskID       string
	DownloadURL  string
}
