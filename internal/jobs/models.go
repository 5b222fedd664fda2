package jobs

import (
	"strings"
	"time"
)

// State is the processing state of a run.
type State string

const (
	StateIdle       State = "idle"
	StateCapturing  State = "capturing"
	StateAssembling State = "assembling"
	StateUploading  State = "uploading"
	StateConverting State = "converting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// InterruptedReason is recorded on runs that were active when the process
// exited.
const InterruptedReason = "interrupted"

var allStates = []State{
	StateIdle,
	StateCapturing,
	StateAssembling,
	StateUploading,
	StateConverting,
	StatePolling,
	StateCompleted,
	StateFailed,
	StateCancelled,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// Terminal reports whether no further transition happens without a retry.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ParseState normalizes a state name.
func ParseState(value string) (State, bool) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	_, ok := stateSet[state]
	return state, ok
}

// AllStates returns every state in lifecycle order.
func AllStates() []State {
	return append([]State(nil), allStates...)
}

// Run is one orchestrated recording and its processing outcome.
type Run struct {
	ID               int64
	SessionID        string
	State            State
	Reason           string
	ErrorMessage     string
	PlanCase         string
	KeepEveryN       int
	OutputFPS        int
	FramesCaptured   uint64
	FramesDropped    uint64
	RecordingSeconds float64
	OutputSeconds    float64
	Progress         float64
	ArtifactPath     string
	DownloadURL      string
	TaskID           string
	StoreMode        string
	StorePath        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Summary counts runs by outcome.
type Summary struct {
	Total     int
	Active    int
	Completed int
	Failed    int
	Cancelled int
}
