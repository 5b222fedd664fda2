package sampling_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/kknaks/study-timelapse/internal/sampling"
)

func TestPropertyComputeDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.Uint64Range(0, 50_000_000).Draw(rt, "total")
		output := rapid.Float64Range(0.5, 3600).Draw(rt, "output")

		first, err := sampling.Compute(total, output)
		if err != nil {
			rt.Fatalf("Compute failed: %v", err)
		}
		second, err := sampling.Compute(total, output)
		if err != nil {
			rt.Fatalf("Compute failed: %v", err)
		}
		if first != second {
			rt.Fatalf("Compute not deterministic: %+v vs %+v", first, second)
		}
	})
}

func TestPropertyPlanBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.Uint64Range(0, 50_000_000).Draw(rt, "total")
		output := float64(rapid.IntRange(1, 3600).Draw(rt, "output"))

		plan, err := sampling.Compute(total, output)
		if err != nil {
			rt.Fatalf("Compute failed: %v", err)
		}
		if plan.KeepEveryN < 1 {
			rt.Fatalf("keepEveryN = %d, want >= 1", plan.KeepEveryN)
		}
		if plan.OutputFPS < 1 || plan.OutputFPS > sampling.MaxFPS {
			rt.Fatalf("outputFps = %d outside [1,%d]", plan.OutputFPS, sampling.MaxFPS)
		}
		if plan.AchievableOutputSeconds < 1 {
			rt.Fatalf("achievable = %v, want >= 1", plan.AchievableOutputSeconds)
		}

		needed := float64(sampling.BaseFPS) * output
		switch {
		case float64(total) <= needed:
			if plan.Case != sampling.AllFrames {
				rt.Fatalf("total %d <= needed %v should be AllFrames, got %s", total, needed, plan.Case)
			}
		case plan.Case == sampling.Decimate:
			if plan.KeepEveryN > sampling.MaxKeep {
				rt.Fatalf("decimate keep %d exceeds MaxKeep", plan.KeepEveryN)
			}
		case plan.Case == sampling.FpsBoost:
			if int(float64(total)/needed) <= sampling.MaxKeep {
				rt.Fatalf("fps boost chosen although raw keep fits: total=%d output=%v", total, output)
			}
		default:
			rt.Fatalf("unexpected case %s", plan.Case)
		}
	})
}

func TestPropertyBoundaryFlip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		output := rapid.IntRange(1, 600).Draw(rt, "output")
		needed := uint64(sampling.BaseFPS * output)

		atBoundary, _ := sampling.Compute(needed, float64(output))
		if atBoundary.Case != sampling.AllFrames {
			rt.Fatalf("total == needed should be AllFrames, got %s", atBoundary.Case)
		}

		lastDecimate := needed*(sampling.MaxKeep+1) - 1
		plan, _ := sampling.Compute(lastDecimate, float64(output))
		if plan.Case != sampling.Decimate || plan.KeepEveryN != sampling.MaxKeep {
			rt.Fatalf("total %d should decimate at MaxKeep, got %+v", lastDecimate, plan)
		}

		plan, _ = sampling.Compute(lastDecimate+1, float64(output))
		if plan.Case != sampling.FpsBoost {
			rt.Fatalf("total %d should boost fps, got %+v", lastDecimate+1, plan)
		}
	})
}
