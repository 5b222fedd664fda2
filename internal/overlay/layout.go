package overlay

import (
	"fmt"
	"math"
)

const margin = 20.0

// place returns the top-left corner of a w x h element inside a W x H frame.
func place(a Anchor, frameW, frameH, w, h float64) (x, y float64) {
	if a.Normalized() {
		x, y = a.X*frameW, a.Y*frameH
	} else {
		switch a.Position {
		case TopLeft:
			x, y = margin, margin
		case TopRight:
			x, y = frameW-w-margin, margin
		case BottomLeft:
			x, y = margin, frameH-h-margin
		case Center:
			x, y = (frameW-w)/2, (frameH-h)/2
		default:
			x, y = frameW-w-margin, frameH-h-margin
		}
	}
	return clamp(x, 0, frameW-w), clamp(y, 0, frameH-h)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// FormatClock renders seconds as HH:MM:SS. Negative input is treated as zero.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
