// Package services defines shared utilities consumed by the capture,
// assembly, and processing packages.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, run IDs, and stage names for
//     logging.
//   - Structured error markers plus the Wrap helper so failures crossing a
//     package boundary can be classified with errors.Is.
//   - FailureReason, which turns a terminal error into the short reason shown
//     to users (re-record vs. resubmit).
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the engine.
package services
