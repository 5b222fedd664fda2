package testsupport

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/kknaks/study-timelapse/internal/framestore"
)

// SolidFrame returns a width x height image filled with c.
func SolidFrame(width, height int, c color.Color) *image.NRGBA {
	return imaging.New(width, height, c)
}

// JPEGFrame encodes a solid grey frame whose shade identifies index.
func JPEGFrame(t testing.TB, width, height int, index uint64) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := SolidFrame(width, height, ShadeFor(index))
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		t.Fatalf("encode frame %d: %v", index, err)
	}
	return buf.Bytes()
}

// ShadeFor is the grey used by JPEGFrame for index.
func ShadeFor(index uint64) color.NRGBA {
	v := uint8((index % 16) * 16)
	return color.NRGBA{R: v, G: v, B: v, A: 255}
}

// FillStore writes count JPEG frames into store, skipping any index in skip.
func FillStore(t testing.TB, store framestore.Store, count uint64, width, height int, skip ...uint64) {
	t.Helper()
	skipped := make(map[uint64]bool, len(skip))
	for _, idx := range skip {
		skipped[idx] = true
	}
	for i := uint64(0); i < count; i++ {
		if skipped[i] {
			continue
		}
		if err := store.Write(context.Background(), i, JPEGFrame(t, width, height, i)); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}
}
