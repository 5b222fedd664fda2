package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	boxPadding = 8.0
	boxRadius  = 8.0
	barRadius  = 4.0
	labelGap   = 8.0
	shadowBlur = 6.0
)

func (c *Compositor) drawDigitalTimer(dst draw.Image, x, y, w, h, seconds float64) {
	cv := newCanvas(dst, c.z, x, y, w, h)
	cv.roundRect(x, y, w, h, boxRadius, backdrop)
	text := FormatClock(seconds)
	tw, _ := textExtent(c.face, text)
	drawText(dst, c.face, text, x+(w-tw)/2, y+boxPadding, c.cfg.Color)
}

func (c *Compositor) drawAnalogClock(dst draw.Image, x, y, size, seconds float64) {
	r := size / 2
	cx, cy := x+r, y+r
	cv := newCanvas(dst, c.z, x, y, size, size)
	fg := c.cfg.Color

	cv.circle(cx, cy, r, backdrop)
	cv.ring(cx, cy, r-2, 2, fg)

	for i := range 12 {
		angle := float64(i)*2*math.Pi/12 - math.Pi/2
		width := 1.0
		if i%3 == 0 {
			width = 2
		}
		cos, sin := math.Cos(angle), math.Sin(angle)
		cv.line(cx+cos*r*0.75, cy+sin*r*0.75, cx+cos*r*0.9, cy+sin*r*0.9, width, fg)
	}

	hours := math.Mod(seconds/3600, 12)
	minutes := math.Mod(seconds, 3600) / 60
	secs := math.Mod(seconds, 60)
	hand := func(fraction, length, width float64, col color.Color) {
		angle := fraction*2*math.Pi - math.Pi/2
		cv.line(cx, cy, cx+math.Cos(angle)*r*length, cy+math.Sin(angle)*r*length, width, col)
	}
	hand(hours/12, 0.45, 3, fg)
	hand(minutes/60, 0.65, 2, fg)
	hand(secs/60, 0.75, 1, secondHand)

	cv.circle(cx, cy, 3, fg)
}

func (c *Compositor) drawProgressBar(dst draw.Image, x, y, w, h, seconds, progress float64) {
	pct := strconv.Itoa(int(math.Floor(progress*100))) + "%"
	drawText(dst, c.label, pct, x, y, c.cfg.Color)
	clock := FormatClock(seconds)
	tw, _ := textExtent(c.label, clock)
	drawText(dst, c.label, clock, x+w-tw, y, c.cfg.Color)

	barH := c.barHeight()
	barY := y + h - barH
	cv := newCanvas(dst, c.z, x, barY, w, barH)
	cv.roundRect(x, barY, w, barH, barRadius, trackColor)
	cv.roundRect(x, barY, w*progress, barH, barRadius, c.cfg.Color)
}

func (c *Compositor) drawMinimalText(dst draw.Image, x, y, w, h, seconds float64) {
	text := FormatClock(seconds)
	pad := int(math.Ceil(shadowBlur * 2))
	scratch := image.NewNRGBA(image.Rect(0, 0, int(math.Ceil(w))+2*pad, int(math.Ceil(h))+2*pad))
	drawText(scratch, c.face, text, float64(pad), float64(pad), shadow)
	blurred := imaging.Blur(scratch, shadowBlur/2)

	origin := image.Pt(int(math.Round(x))+1-pad, int(math.Round(y))+1-pad)
	draw.Draw(dst, blurred.Bounds().Add(origin), blurred, image.Point{}, draw.Over)
	drawText(dst, c.face, text, x, y, c.cfg.Color)
}

// drawText draws s with its line box's top-left corner at (x, y).
func drawText(dst draw.Image, face font.Face, s string, x, y float64, col color.Color) {
	if face == nil {
		return
	}
	ascent := face.Metrics().Ascent
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(math.Round(x * 64)), Y: fixed.Int26_6(math.Round(y*64)) + ascent},
	}
	d.DrawString(s)
}
