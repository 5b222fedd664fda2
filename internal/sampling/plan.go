package sampling

import (
	"fmt"
	"math"
	"time"

	"github.com/kknaks/study-timelapse/internal/services"
)

const (
	// BaseFPS is the nominal capture and playback rate.
	BaseFPS = 30
	// MaxKeep is the coarsest decimation allowed before the output fps is raised instead.
	MaxKeep = 60
	// MaxFPS caps the encode rate in the fps-boost case.
	MaxFPS = 240

	minInterval = time.Second / BaseFPS
	maxInterval = 10 * time.Second
)

// Case identifies which branch of the planner produced a plan.
type Case string

const (
	AllFrames Case = "all_frames"
	Decimate  Case = "decimate"
	FpsBoost  Case = "fps_boost"
)

// Plan describes how a recording is reduced to a timelapse.
type Plan struct {
	Case                    Case    `json:"case"`
	KeepEveryN              int     `json:"keep_every_n"`
	OutputFPS               int     `json:"output_fps"`
	AchievableOutputSeconds float64 `json:"achievable_output_seconds"`
}

// Compute maps the number of available frames and the requested output length
// to a sampling plan. It has no side effects.
func Compute(totalFrames uint64, outputSeconds float64) (Plan, error) {
	if math.IsNaN(outputSeconds) || math.IsInf(outputSeconds, 0) || outputSeconds <= 0 {
		return Plan{}, services.Wrap(services.ErrInvalidPlan, "sampling", "plan",
			fmt.Sprintf("output seconds must be positive, got %v", outputSeconds), nil)
	}

	total := float64(totalFrames)
	needed := BaseFPS * outputSeconds

	if total <= needed {
		achievable := math.Floor(total / BaseFPS)
		if achievable < 1 {
			achievable = 1
		}
		return Plan{
			Case:                    AllFrames,
			KeepEveryN:              1,
			OutputFPS:               BaseFPS,
			AchievableOutputSeconds: achievable,
		}, nil
	}

	keep := math.Floor(total / needed)
	if keep <= MaxKeep {
		return Plan{
			Case:                    Decimate,
			KeepEveryN:              int(keep),
			OutputFPS:               BaseFPS,
			AchievableOutputSeconds: outputSeconds,
		}, nil
	}

	usable := math.Floor(total / MaxKeep)
	fps := math.Min(MaxFPS, math.Ceil(usable/outputSeconds))
	if fps < 1 {
		fps = 1
	}
	keep = math.Max(1, math.Floor(total/(fps*outputSeconds)))
	return Plan{
		Case:                    FpsBoost,
		KeepEveryN:              int(keep),
		OutputFPS:               int(fps),
		AchievableOutputSeconds: outputSeconds,
	}, nil
}

// OutputFrames returns how many frames the plan selects from total.
func (p Plan) OutputFrames(total uint64) uint64 {
	if total == 0 || p.KeepEveryN < 1 {
		return 0
	}
	keep := uint64(p.KeepEveryN)
	return (total + keep - 1) / keep
}

func (p Plan) String() string {
	return fmt.Sprintf("%s keep=1/%d fps=%d output=%.1fs", p.Case, p.KeepEveryN, p.OutputFPS, p.AchievableOutputSeconds)
}

// Select returns the indices 0, keep, 2*keep, ... below total.
func Select(total uint64, keep int) []uint64 {
	if total == 0 {
		return nil
	}
	if keep < 1 {
		keep = 1
	}
	step := uint64(keep)
	out := make([]uint64, 0, (total+step-1)/step)
	for idx := uint64(0); idx < total; idx += step {
		out = append(out, idx)
	}
	return out
}

// CaptureInterval derives the capture period for a session from an optimistic
// plan over the frames a full-length recording would produce at BaseFPS.
func CaptureInterval(plannedSeconds, outputSeconds float64) (time.Duration, error) {
	if math.IsNaN(plannedSeconds) || plannedSeconds < 0 {
		return 0, services.Wrap(services.ErrInvalidPlan, "sampling", "capture interval",
			fmt.Sprintf("planned seconds must not be negative, got %v", plannedSeconds), nil)
	}
	plan, err := Compute(uint64(math.Round(plannedSeconds*BaseFPS)), outputSeconds)
	if err != nil {
		return 0, err
	}
	interval := minInterval
	if plan.Case != AllFrames {
		interval = time.Duration(float64(plan.KeepEveryN) * float64(time.Second) / BaseFPS)
	}
	return clampInterval(interval), nil
}

func clampInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	if d > maxInterval {
		return maxInterval
	}
	return d
}
