package overlay

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Theme selects what the compositor draws.
type Theme string

const (
	ThemeNone         Theme = "none"
	ThemeDigitalTimer Theme = "digital_timer"
	ThemeAnalogClock  Theme = "analog_clock"
	ThemeProgressBar  Theme = "progress_bar"
	ThemeMinimalText  Theme = "minimal_text"
)

// Size is a discrete font-size tier.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// FontSize returns the pixel size for the tier.
func (s Size) FontSize() float64 {
	switch s {
	case SizeSmall:
		return 24
	case SizeLarge:
		return 52
	default:
		return 36
	}
}

// Position names a fixed anchor.
type Position string

const (
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
	Center      Position = "center"
)

// Anchor is either a named position or a normalized point in [0,1]x[0,1].
// A normalized point locates the top-left corner of the overlay element.
type Anchor struct {
	Position Position
	X, Y     float64
}

// At returns a named anchor.
func At(p Position) Anchor { return Anchor{Position: p} }

// Point returns a normalized anchor.
func Point(x, y float64) Anchor { return Anchor{X: x, Y: y} }

// Normalized reports whether the anchor is a coordinate rather than a name.
func (a Anchor) Normalized() bool { return a.Position == "" }

func (a Anchor) String() string {
	if a.Normalized() {
		return strconv.FormatFloat(a.X, 'f', -1, 64) + "," + strconv.FormatFloat(a.Y, 'f', -1, 64)
	}
	return string(a.Position)
}

// Config is the full description of one overlay.
type Config struct {
	Theme  Theme
	Anchor Anchor
	Color  color.RGBA
	Size   Size
}

// DefaultConfig is a white medium digital timer in the bottom-right corner.
func DefaultConfig() Config {
	return Config{
		Theme:  ThemeDigitalTimer,
		Anchor: At(BottomRight),
		Color:  color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		Size:   SizeMedium,
	}
}

// ParseConfig builds a Config from its textual form.
func ParseConfig(theme, anchor, hex, size string) (Config, error) {
	var cfg Config
	var err error
	if cfg.Theme, err = ParseTheme(theme); err != nil {
		return Config{}, err
	}
	if cfg.Anchor, err = ParseAnchor(anchor); err != nil {
		return Config{}, err
	}
	if cfg.Color, err = ParseColor(hex); err != nil {
		return Config{}, err
	}
	if cfg.Size, err = ParseSize(size); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseTheme accepts snake, kebab, or camel case theme names.
func ParseTheme(value string) (Theme, error) {
	switch canonical(value) {
	case "", "none", "off":
		return ThemeNone, nil
	case "digitaltimer", "timer", "stopwatch":
		return ThemeDigitalTimer, nil
	case "analogclock", "clock":
		return ThemeAnalogClock, nil
	case "progressbar", "progress":
		return ThemeProgressBar, nil
	case "minimaltext", "minimal":
		return ThemeMinimalText, nil
	default:
		return "", fmt.Errorf("unknown overlay theme %q", value)
	}
}

// ParseSize accepts small/medium/large and the sm/md/lg shorthands.
func ParseSize(value string) (Size, error) {
	switch canonical(value) {
	case "small", "sm":
		return SizeSmall, nil
	case "", "medium", "md":
		return SizeMedium, nil
	case "large", "lg":
		return SizeLarge, nil
	default:
		return "", fmt.Errorf("unknown overlay size %q", value)
	}
}

// ParseAnchor accepts a position name or "x,y" with both values in [0,1].
func ParseAnchor(value string) (Anchor, error) {
	trimmed := strings.TrimSpace(value)
	if xs, ys, ok := strings.Cut(trimmed, ","); ok {
		x, errX := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if errX != nil || errY != nil {
			return Anchor{}, fmt.Errorf("invalid overlay anchor %q", value)
		}
		if x < 0 || x > 1 || y < 0 || y > 1 {
			return Anchor{}, fmt.Errorf("overlay anchor %q outside [0,1]", value)
		}
		return Point(x, y), nil
	}
	switch canonical(trimmed) {
	case "topleft":
		return At(TopLeft), nil
	case "topright":
		return At(TopRight), nil
	case "bottomleft":
		return At(BottomLeft), nil
	case "", "bottomright":
		return At(BottomRight), nil
	case "center", "centre":
		return At(Center), nil
	default:
		return Anchor{}, fmt.Errorf("unknown overlay anchor %q", value)
	}
}

// ParseColor parses #rgb or #rrggbb into an opaque color.
func ParseColor(value string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid overlay color %q", value)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid overlay color %q", value)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func canonical(value string) string {
	r := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(value)))
}
