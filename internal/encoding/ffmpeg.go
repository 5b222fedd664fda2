package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kknaks/study-timelapse/internal/assembly"
	"github.com/kknaks/study-timelapse/internal/fileutil"
	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/services"
)

const (
	defaultBinary = "ffmpeg"
	defaultCodec  = "libx264"
	defaultPreset = "fast"
	defaultCRF    = 23
	stderrTail    = 4096
	partialSuffix = ".part"
)

// Options configures the ffmpeg encoder.
type Options struct {
	Binary string
	Codec  string
	Preset string
	CRF    int
	// OutputPath is where the finished MP4 is written.
	OutputPath string
	// ProbeBinary, when set, is used to verify the finished file.
	ProbeBinary string
}

// FFmpeg is an assembly.Encoder that pipes raw RGBA frames into an ffmpeg
// process. One value encodes one job.
type FFmpeg struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writer  *bufio.Writer
	stderr  *tailBuffer
	spec    assembly.Spec
	scratch *image.RGBA
	partial string
	frames  int
}

// NewFFmpeg returns an encoder writing to opts.OutputPath.
func NewFFmpeg(opts Options, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = defaultBinary
	}
	if strings.TrimSpace(opts.Codec) == "" {
		opts.Codec = defaultCodec
	}
	if strings.TrimSpace(opts.Preset) == "" {
		opts.Preset = defaultPreset
	}
	if opts.CRF <= 0 {
		opts.CRF = defaultCRF
	}
	return &FFmpeg{opts: opts, logger: logging.NewComponentLogger(logger, "encoder")}
}

// Args returns the ffmpeg arguments used for spec, writing to output.
func (f *FFmpeg) Args(spec assembly.Spec, output string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-r", strconv.Itoa(spec.FPS),
		"-i", "-",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", f.opts.Codec,
		"-preset", f.opts.Preset,
		"-crf", strconv.Itoa(f.opts.CRF),
		"-pix_fmt", "yuv420p",
		"-an",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	}
}

func (f *FFmpeg) Begin(ctx context.Context, spec assembly.Spec) error {
	if spec.Width <= 0 || spec.Height <= 0 || spec.FPS <= 0 {
		return services.Wrap(services.ErrEncodeFailed, "encoding", "begin", fmt.Sprintf("invalid stream %dx%d@%d", spec.Width, spec.Height, spec.FPS), nil)
	}
	output := strings.TrimSpace(f.opts.OutputPath)
	if output == "" {
		return services.Wrap(services.ErrConfiguration, "encoding", "begin", "output path not set", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd != nil {
		return services.Wrap(services.ErrEncodeFailed, "encoding", "begin", "encoder already running", nil)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrEncodeFailed, "encoding", "begin", "create output dir", err)
	}

	partial := output + partialSuffix
	cmd := exec.CommandContext(ctx, f.opts.Binary, f.Args(spec, partial)...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return services.Wrap(services.ErrEncodeFailed, "encoding", "begin", "stdin pipe", err)
	}
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrEncodeFailed, "encoding", "begin", "start "+f.opts.Binary, err)
	}

	f.cmd = cmd
	f.stdin = stdin
	f.writer = bufio.NewWriterSize(stdin, spec.Width*spec.Height*4)
	f.stderr = stderr
	f.spec = spec
	f.partial = partial
	f.frames = 0
	f.scratch = image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	f.logger.Debug("ffmpeg started",
		logging.String("binary", f.opts.Binary),
		logging.String("output", output),
		logging.Int("width", spec.Width),
		logging.Int("height", spec.Height),
		logging.Int("fps", spec.FPS),
	)
	return nil
}

func (f *FFmpeg) EncodeFrame(ctx context.Context, frame image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd == nil {
		return services.Wrap(services.ErrEncodeFailed, "encoding", "frame", "encoder not started", nil)
	}
	if _, err := f.writer.Write(f.pixels(frame)); err != nil {
		return services.Wrap(services.ErrEncodeFailed, "encoding", "frame", f.stderr.String(), err)
	}
	f.frames++
	return nil
}

// pixels returns frame as tightly packed RGBA rows of the declared size.
func (f *FFmpeg) pixels(frame image.Image) []byte {
	want := image.Rect(0, 0, f.spec.Width, f.spec.Height)
	if rgba, ok := frame.(*image.RGBA); ok && rgba.Rect == want && rgba.Stride == 4*f.spec.Width {
		return rgba.Pix
	}
	draw.Draw(f.scratch, want, frame, frame.Bounds().Min, draw.Src)
	return f.scratch.Pix
}

func (f *FFmpeg) End(ctx context.Context) (assembly.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd == nil {
		return assembly.Artifact{}, services.Wrap(services.ErrEncodeFailed, "encoding", "end", "encoder not started", nil)
	}
	cmd, partial, stderr := f.cmd, f.partial, f.stderr
	flushErr := f.writer.Flush()
	closeErr := f.stdin.Close()
	waitErr := cmd.Wait()
	f.reset()

	if err := errors.Join(flushErr, closeErr, waitErr); err != nil {
		_ = os.Remove(partial)
		return assembly.Artifact{}, services.Wrap(services.ErrEncodeFailed, "encoding", "end", stderr.String(), err)
	}
	output := f.opts.OutputPath
	if err := fileutil.MoveFile(partial, output); err != nil {
		return assembly.Artifact{}, services.Wrap(services.ErrEncodeFailed, "encoding", "end", "publish output", err)
	}
	info, err := os.Stat(output)
	if err != nil {
		return assembly.Artifact{}, services.Wrap(services.ErrEncodeFailed, "encoding", "end", "stat output", err)
	}
	artifact := assembly.Artifact{Path: output, Size: info.Size()}

	if probe := strings.TrimSpace(f.opts.ProbeBinary); probe != "" {
		result, err := Inspect(ctx, probe, output)
		switch {
		case err != nil:
			logging.WarnWithContext(f.logger, "could not verify encoded timelapse", "encode_probe_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the file was written but not inspected"),
				logging.String(logging.FieldErrorHint, "check that ffprobe is installed"),
			)
		case result.VideoStream() == nil:
			return assembly.Artifact{}, services.Wrap(services.ErrEncodeFailed, "encoding", "verify", "output has no video stream", nil)
		default:
			f.logger.Debug("encoded timelapse verified",
				logging.Float64("duration_seconds", result.DurationSeconds()),
				logging.String("codec", result.VideoStream().CodecName),
			)
		}
	}
	return artifact, nil
}

// Abort kills ffmpeg and removes the partial output.
func (f *FFmpeg) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd == nil {
		return
	}
	cmd, partial := f.cmd, f.partial
	_ = f.stdin.Close()
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
	f.reset()
	_ = os.Remove(partial)
	f.logger.Debug("ffmpeg aborted")
}

// Frames returns the number of frames written in the current or last job.
func (f *FFmpeg) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func (f *FFmpeg) reset() {
	f.cmd = nil
	f.stdin = nil
	f.writer = nil
	f.scratch = nil
	f.partial = ""
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
