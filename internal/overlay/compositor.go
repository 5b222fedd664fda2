package overlay

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/vector"
)

// Compositor draws a time overlay onto output frames. Its configuration is
// fixed at construction. Render serializes callers because font faces keep
// glyph caches.
type Compositor struct {
	cfg              Config
	outputSeconds    float64
	recordingSeconds float64
	fontSize         float64

	mu    sync.Mutex
	face  font.Face
	label font.Face
	z     *vector.Rasterizer
}

// New validates the configuration and prepares fonts for the selected theme.
// outputSeconds is the playback length of the timelapse and recordingSeconds
// the length of the original session it compresses.
func New(cfg Config, outputSeconds, recordingSeconds float64) (*Compositor, error) {
	if outputSeconds <= 0 || math.IsNaN(outputSeconds) || math.IsInf(outputSeconds, 0) {
		return nil, fmt.Errorf("overlay: output seconds must be positive, got %v", outputSeconds)
	}
	if recordingSeconds < 0 || math.IsNaN(recordingSeconds) || math.IsInf(recordingSeconds, 0) {
		return nil, fmt.Errorf("overlay: recording seconds must not be negative, got %v", recordingSeconds)
	}
	if cfg.Theme == "" {
		cfg.Theme = ThemeNone
	}
	if cfg.Size == "" {
		cfg.Size = SizeMedium
	}
	c := &Compositor{
		cfg:              cfg,
		outputSeconds:    outputSeconds,
		recordingSeconds: recordingSeconds,
		fontSize:         cfg.Size.FontSize(),
		z:                &vector.Rasterizer{},
	}

	var err error
	switch cfg.Theme {
	case ThemeNone, ThemeAnalogClock:
	case ThemeDigitalTimer:
		c.face, err = newFace(monoFont, c.fontSize)
	case ThemeMinimalText:
		c.face, err = newFace(textFont, c.fontSize)
	case ThemeProgressBar:
		c.label, err = newFace(monoFont, c.fontSize*0.6)
	default:
		return nil, fmt.Errorf("overlay: unknown theme %q", cfg.Theme)
	}
	if err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	return c, nil
}

// Config returns the configuration the compositor was built with.
func (c *Compositor) Config() Config { return c.cfg }

// OriginalSeconds maps a playback timestamp in the output video back to the
// study-session clock.
func (c *Compositor) OriginalSeconds(playbackSeconds float64) float64 {
	if playbackSeconds <= 0 {
		return 0
	}
	return playbackSeconds / c.outputSeconds * c.recordingSeconds
}

// Progress is the fraction of the session elapsed at playbackSeconds, in [0,1].
func (c *Compositor) Progress(playbackSeconds float64) float64 {
	if c.recordingSeconds <= 0 {
		return 0
	}
	return clamp(c.OriginalSeconds(playbackSeconds)/c.recordingSeconds, 0, 1)
}

// Layout returns the pixel rectangle the overlay occupies on a frame of the
// given size. It is empty for ThemeNone.
func (c *Compositor) Layout(width, height int) image.Rectangle {
	if c.cfg.Theme == ThemeNone {
		return image.Rectangle{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w, h := c.elementSize(float64(width), 0)
	x, y := place(c.cfg.Anchor, float64(width), float64(height), w, h)
	return image.Rect(int(math.Floor(x)), int(math.Floor(y)), int(math.Ceil(x+w)), int(math.Ceil(y+h)))
}

// Render draws the overlay for playbackSeconds onto dst.
func (c *Compositor) Render(dst draw.Image, playbackSeconds float64) {
	if c == nil || c.cfg.Theme == ThemeNone || dst == nil {
		return
	}
	bounds := dst.Bounds()
	if bounds.Empty() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seconds := c.OriginalSeconds(playbackSeconds)
	frameW, frameH := float64(bounds.Dx()), float64(bounds.Dy())
	w, h := c.elementSize(frameW, seconds)
	x, y := place(c.cfg.Anchor, frameW, frameH, w, h)
	x += float64(bounds.Min.X)
	y += float64(bounds.Min.Y)

	switch c.cfg.Theme {
	case ThemeDigitalTimer:
		c.drawDigitalTimer(dst, x, y, w, h, seconds)
	case ThemeAnalogClock:
		c.drawAnalogClock(dst, x, y, w, seconds)
	case ThemeProgressBar:
		c.drawProgressBar(dst, x, y, w, h, seconds, c.Progress(playbackSeconds))
	case ThemeMinimalText:
		c.drawMinimalText(dst, x, y, w, h, seconds)
	}
}

// elementSize reports the overlay's width and height. Text widths are
// measured on a fixed-width sample so the element does not jitter.
func (c *Compositor) elementSize(frameW, seconds float64) (float64, float64) {
	switch c.cfg.Theme {
	case ThemeDigitalTimer:
		tw, th := textExtent(c.face, clockSample(seconds))
		return tw + 2*boxPadding, th + 2*boxPadding
	case ThemeAnalogClock:
		d := 2 * c.clockRadius()
		return d, d
	case ThemeProgressBar:
		_, lh := textExtent(c.label, "00:00:00")
		return c.barWidth(frameW), lh + labelGap + c.barHeight()
	case ThemeMinimalText:
		return textExtent(c.face, clockSample(seconds))
	default:
		return 0, 0
	}
}

func (c *Compositor) clockRadius() float64 { return c.fontSize * 1.2 }

func (c *Compositor) barHeight() float64 { return c.fontSize * 0.6 * 0.6 }

func (c *Compositor) barWidth(frameW float64) float64 { return math.Min(frameW*0.4, 200) }

// clockSample has the same glyph count as FormatClock(seconds) with the widest digits.
func clockSample(seconds float64) string {
	hours := len(FormatClock(seconds)) - len(":00:00")
	sample := make([]byte, 0, hours+6)
	for range hours {
		sample = append(sample, '0')
	}
	return string(append(sample, ":00:00"...))
}

func textExtent(face font.Face, s string) (float64, float64) {
	if face == nil {
		return 0, 0
	}
	m := face.Metrics()
	return float64(font.MeasureString(face, s)) / 64, float64(m.Ascent+m.Descent) / 64
}
