package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrExternalTool  = errors.New("external tool error")
	ErrCancelled     = errors.New("cancelled")

	// Planner.
	ErrInvalidPlan = errors.New("invalid sampling plan input")

	// Frame store.
	ErrWriteFailed   = errors.New("frame write failed")
	ErrReadMissing   = errors.New("frame missing")
	ErrDisposeFailed = errors.New("frame store dispose failed")

	// Assembly.
	ErrNoFramesCaptured = errors.New("no frames captured")
	ErrEncodeFailed     = errors.New("encode failed")

	// Processing.
	ErrUploadFailed      = errors.New("upload failed")
	ErrConversionFailed  = errors.New("conversion failed")
	ErrConversionTimeout = errors.New("conversion timed out")
	ErrPermissionDenied  = errors.New("permission denied")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureReason maps a processing error to the short reason shown to users
// when a run ends in the failed state.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrNoFramesCaptured):
		return "no data captured"
	case errors.Is(err, ErrEncodeFailed):
		return "encoding failed"
	case errors.Is(err, ErrPermissionDenied):
		return "permission denied"
	case errors.Is(err, ErrUploadFailed):
		return "network/upload failed"
	case errors.Is(err, ErrConversionTimeout):
		return "conversion timed out"
	case errors.Is(err, ErrConversionFailed):
		return "server conversion failed"
	default:
		return "processing failed"
	}
}

// Retryable reports whether a failure can be recovered by retrying the
// failed step alone. A run that captured nothing has to be re-recorded.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNoFramesCaptured) && !errors.Is(err, ErrInvalidPlan) && !errors.Is(err, ErrCancelled)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
