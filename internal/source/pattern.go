package source

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync/atomic"

	"github.com/disintegration/imaging"
)

var bars = []color.NRGBA{
	{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff},
	{R: 0xc0, G: 0xc0, B: 0x00, A: 0xff},
	{R: 0x00, G: 0xc0, B: 0xc0, A: 0xff},
	{R: 0x00, G: 0xc0, B: 0x00, A: 0xff},
	{R: 0xc0, G: 0x00, B: 0xc0, A: 0xff},
	{R: 0xc0, G: 0x00, B: 0x00, A: 0xff},
	{R: 0x00, G: 0x00, B: 0xc0, A: 0xff},
}

// Pattern generates a test card: colour bars with a white block that moves
// one step per snapshot, so consecutive frames always differ.
type Pattern struct {
	width  int
	height int
	frame  atomic.Uint64
}

// NewPattern returns a synthetic source of the given size.
func NewPattern(width, height int) *Pattern {
	return &Pattern{width: max(width, 1), height: max(height, 1)}
}

// Dimensions returns the frame size.
func (p *Pattern) Dimensions() (int, int) { return p.width, p.height }

// Frames returns how many snapshots have been taken.
func (p *Pattern) Frames() uint64 { return p.frame.Load() }

// Snapshot renders the next test card.
func (p *Pattern) Snapshot(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := p.frame.Add(1) - 1
	return Render(p.width, p.height, n), nil
}

// Render draws test card number n.
func Render(width, height int, n uint64) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{A: 0xff})
	barW := max(width/len(bars), 1)
	barH := height * 2 / 3
	for i, c := range bars {
		r := image.Rect(i*barW, 0, (i+1)*barW, barH)
		if i == len(bars)-1 {
			r.Max.X = width
		}
		draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
	}

	block := max(min(width, height)/8, 1)
	span := max(width-block, 1)
	x := int(n % uint64(span))
	y := barH + (height-barH-block)/2
	draw.Draw(img, image.Rect(x, y, x+block, y+block), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}
