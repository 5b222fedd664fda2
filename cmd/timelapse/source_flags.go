package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kknaks/study-timelapse/internal/capture"
	"github.com/kknaks/study-timelapse/internal/config"
	"github.com/kknaks/study-timelapse/internal/overlay"
	"github.com/kknaks/study-timelapse/internal/source"
)

const defaultPatternSize = "1280x720"

type sourceFlags struct {
	dir     string
	pattern string
	size    string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "source", "", "Replay still images from this directory in name order")
	cmd.Flags().StringVar(&f.pattern, "pattern", "", "Capture a synthetic test pattern of this size (WxH)")
	cmd.Flags().StringVar(&f.size, "size", "", "Scale --source images to WxH (default: first image size)")
}

func (f *sourceFlags) open() (capture.VideoSource, string, error) {
	dir := strings.TrimSpace(f.dir)
	pattern := strings.TrimSpace(f.pattern)
	if dir != "" && pattern != "" {
		return nil, "", errors.New("use either --source or --pattern, not both")
	}
	if dir != "" {
		w, h := 0, 0
		if strings.TrimSpace(f.size) != "" {
			var err error
			if w, h, err = parseSize(f.size); err != nil {
				return nil, "", err
			}
		}
		src, err := source.NewDirectory(dir, w, h)
		if err != nil {
			return nil, "", err
		}
		return src, fmt.Sprintf("directory %s (%d images)", dir, src.Len()), nil
	}
	if pattern == "" {
		pattern = defaultPatternSize
	}
	w, h, err := parseSize(pattern)
	if err != nil {
		return nil, "", err
	}
	return source.NewPattern(w, h), "test pattern " + pattern, nil
}

func parseSize(value string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q (want WxH)", value)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q (want WxH)", value)
	}
	return w, h, nil
}

type overlayFlags struct {
	disabled bool
	theme    string
	anchor   string
	color    string
	size     string
}

func (f *overlayFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.disabled, "no-overlay", false, "Do not draw a time overlay")
	cmd.Flags().StringVar(&f.theme, "overlay-theme", "", "Overlay theme (digital_timer, analog_clock, progress_bar, minimal_text)")
	cmd.Flags().StringVar(&f.anchor, "overlay-anchor", "", "Overlay position name or normalized x,y")
	cmd.Flags().StringVar(&f.color, "overlay-color", "", "Overlay color as #rrggbb")
	cmd.Flags().StringVar(&f.size, "overlay-size", "", "Overlay size (small, medium, large)")
}

// resolve merges the flags over the configured overlay. A nil result means no
// overlay is drawn.
func (f *overlayFlags) resolve(cfg *config.Config) (*overlay.Config, error) {
	if f.disabled {
		return nil, nil
	}
	pick := func(flag, fallback string) string {
		if strings.TrimSpace(flag) != "" {
			return flag
		}
		return fallback
	}
	parsed, err := overlay.ParseConfig(
		pick(f.theme, cfg.Overlay.Theme),
		pick(f.anchor, cfg.Overlay.Anchor),
		pick(f.color, cfg.Overlay.Color),
		pick(f.size, cfg.Overlay.Size),
	)
	if err != nil {
		return nil, err
	}
	if parsed.Theme == overlay.ThemeNone {
		return nil, nil
	}
	return &parsed, nil
}
