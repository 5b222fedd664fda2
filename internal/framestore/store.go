package framestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kknaks/study-timelapse/internal/logging"
	"github.com/kknaks/study-timelapse/internal/services"
)

// Mode identifies the active backend, for diagnostics only.
type Mode string

const (
	ModeDurable  Mode = "durable"
	ModeVolatile Mode = "volatile"
)

// Store is append-only, index-addressed storage for encoded frames.
type Store interface {
	// Write stores data under index. Failures wrap services.ErrWriteFailed.
	Write(ctx context.Context, index uint64, data []byte) error
	// Read returns the bytes stored under index. An index that was never
	// written wraps services.ErrReadMissing.
	Read(ctx context.Context, index uint64) ([]byte, error)
	// Count is one past the highest index written.
	Count() uint64
	// Dispose discards every frame. It is safe to call more than once.
	Dispose() error
	Mode() Mode
}

// Frame is one captured still.
type Frame struct {
	Index  uint64
	Data   []byte
	Width  int
	Height int
}

// Options controls backend selection.
type Options struct {
	// Root is the directory holding session namespaces.
	Root string
	// Namespace names this session's directory; a UUID is generated when empty.
	Namespace string
	// Durable requests on-disk storage. When false, or when the probe fails,
	// frames are kept in memory.
	Durable bool
	// MinFreeBytes fails writes once the filesystem has less free space.
	MinFreeBytes uint64
	Logger       *slog.Logger
}

// Open selects a backend for one session. It never fails because the
// volatile backend is always available; the error return is reserved for a
// cancelled context.
func Open(ctx context.Context, opts Options) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := logging.NewComponentLogger(opts.Logger, "framestore")
	if !opts.Durable || strings.TrimSpace(opts.Root) == "" {
		logger.Info("using in-memory frame store", logging.String("reason", "durable storage disabled"))
		return NewVolatile(), nil
	}

	namespace := strings.TrimSpace(opts.Namespace)
	if namespace == "" {
		namespace = uuid.NewString()
	}
	store, err := openDurable(opts.Root, namespace, opts.MinFreeBytes)
	if err == nil {
		err = store.probe(ctx)
		if err != nil {
			_ = store.Dispose()
		}
	}
	if err != nil {
		logging.WarnWithContext(logger, "durable frame store unavailable; falling back to memory", "framestore_fallback",
			logging.Error(err),
			logging.String("root", opts.Root),
			logging.String(logging.FieldImpact, "frames are lost if the process exits before assembly"),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions and free space"),
		)
		return NewVolatile(), nil
	}
	logger.Info("opened durable frame store", logging.String("path", store.Path()))
	return store, nil
}

func writeFailed(index uint64, err error) error {
	return services.Wrap(services.ErrWriteFailed, "framestore", "write", fmt.Sprintf("frame %d", index), err)
}

func readMissing(index uint64, err error) error {
	return services.Wrap(services.ErrReadMissing, "framestore", "read", fmt.Sprintf("frame %d", index), err)
}
