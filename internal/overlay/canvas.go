package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

var (
	backdrop   = color.RGBA{A: 153}
	trackColor = color.RGBA{R: 51, G: 51, B: 51, A: 51}
	shadow     = color.RGBA{A: 204}
	secondHand = color.RGBA{R: 0xff, G: 0x6b, B: 0x6b, A: 0xff}
)

// canvas rasterizes vector shapes into a clipped region of dst. Shape
// coordinates are absolute frame coordinates.
type canvas struct {
	dst draw.Image
	box image.Rectangle
	z   *vector.Rasterizer
}

func newCanvas(dst draw.Image, z *vector.Rasterizer, x, y, w, h float64) *canvas {
	box := image.Rect(
		int(math.Floor(x))-2, int(math.Floor(y))-2,
		int(math.Ceil(x+w))+2, int(math.Ceil(y+h))+2,
	).Intersect(dst.Bounds())
	return &canvas{dst: dst, box: box, z: z}
}

func (c *canvas) begin() bool {
	if c.box.Empty() {
		return false
	}
	c.z.Reset(c.box.Dx(), c.box.Dy())
	return true
}

func (c *canvas) fill(col color.Color) {
	c.z.Draw(c.dst, c.box, image.NewUniform(col), image.Point{})
}

func (c *canvas) pt(x, y float64) (float32, float32) {
	return float32(x - float64(c.box.Min.X)), float32(y - float64(c.box.Min.Y))
}

func (c *canvas) moveTo(x, y float64) { c.z.MoveTo(c.pt(x, y)) }

func (c *canvas) lineTo(x, y float64) { c.z.LineTo(c.pt(x, y)) }

func (c *canvas) cubeTo(x1, y1, x2, y2, x3, y3 float64) {
	ax, ay := c.pt(x1, y1)
	bx, by := c.pt(x2, y2)
	cx, cy := c.pt(x3, y3)
	c.z.CubeTo(ax, ay, bx, by, cx, cy)
}

// circlePath adds a closed circle. Reversed circles punch holes in a
// preceding circle of the same path.
func (c *canvas) circlePath(cx, cy, r float64, reverse bool) {
	k := r * kappa
	if !reverse {
		c.moveTo(cx+r, cy)
		c.cubeTo(cx+r, cy+k, cx+k, cy+r, cx, cy+r)
		c.cubeTo(cx-k, cy+r, cx-r, cy+k, cx-r, cy)
		c.cubeTo(cx-r, cy-k, cx-k, cy-r, cx, cy-r)
		c.cubeTo(cx+k, cy-r, cx+r, cy-k, cx+r, cy)
	} else {
		c.moveTo(cx+r, cy)
		c.cubeTo(cx+r, cy-k, cx+k, cy-r, cx, cy-r)
		c.cubeTo(cx-k, cy-r, cx-r, cy-k, cx-r, cy)
		c.cubeTo(cx-r, cy+k, cx-k, cy+r, cx, cy+r)
		c.cubeTo(cx+k, cy+r, cx+r, cy+k, cx+r, cy)
	}
	c.z.ClosePath()
}

func (c *canvas) circle(cx, cy, r float64, col color.Color) {
	if r <= 0 || !c.begin() {
		return
	}
	c.circlePath(cx, cy, r, false)
	c.fill(col)
}

// ring strokes a circle of radius r with the given line width.
func (c *canvas) ring(cx, cy, r, width float64, col color.Color) {
	if !c.begin() {
		return
	}
	c.circlePath(cx, cy, r+width/2, false)
	c.circlePath(cx, cy, math.Max(0, r-width/2), true)
	c.fill(col)
}

// line strokes a butt-capped segment.
func (c *canvas) line(x0, y0, x1, y1, width float64, col color.Color) {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 || !c.begin() {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	c.moveTo(x0+nx, y0+ny)
	c.lineTo(x1+nx, y1+ny)
	c.lineTo(x1-nx, y1-ny)
	c.lineTo(x0-nx, y0-ny)
	c.z.ClosePath()
	c.fill(col)
}

func (c *canvas) roundRect(x, y, w, h, r float64, col color.Color) {
	if w <= 0 || h <= 0 || !c.begin() {
		return
	}
	r = math.Min(r, math.Min(w, h)/2)
	k := r * kappa
	c.moveTo(x+r, y)
	c.lineTo(x+w-r, y)
	c.cubeTo(x+w-r+k, y, x+w, y+r-k, x+w, y+r)
	c.lineTo(x+w, y+h-r)
	c.cubeTo(x+w, y+h-r+k, x+w-r+k, y+h, x+w-r, y+h)
	c.lineTo(x+r, y+h)
	c.cubeTo(x+r-k, y+h, x, y+h-r+k, x, y+h-r)
	c.lineTo(x, y+r)
	c.cubeTo(x, y+r-k, x+r-k, y, x+r, y)
	c.z.ClosePath()
	c.fill(col)
}
