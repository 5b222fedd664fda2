package source

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

var stillExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
}

// Directory replays the still images in a directory in name order, looping
// back to the first after the last. Every image is scaled and cropped to the
// source dimensions.
type Directory struct {
	files  []string
	width  int
	height int

	mu   sync.Mutex
	next int
}

// NewDirectory lists the images in dir. When width or height is zero the
// first image's size is used.
func NewDirectory(dir string, width, height int) (*Directory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := stillExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	slices.Sort(files)

	if width <= 0 || height <= 0 {
		first, err := imaging.Open(files[0], imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", files[0], err)
		}
		width, height = first.Bounds().Dx(), first.Bounds().Dy()
	}
	return &Directory{files: files, width: width, height: height}, nil
}

// Len returns the number of images in the replay loop.
func (d *Directory) Len() int { return len(d.files) }

// Dimensions returns the output frame size.
func (d *Directory) Dimensions() (int, int) { return d.width, d.height }

// Snapshot decodes the next image.
func (d *Directory) Snapshot(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	b := img.Bounds()
	if b.Dx() == d.width && b.Dy() == d.height {
		return img, nil
	}
	return imaging.Fill(img, d.width, d.height, imaging.Center, imaging.Lanczos), nil
}
