// Package workflow sequences one recording session from capture through
// assembly and optional remote conversion to a finished result.
//
// The Manager owns a capture.Pipeline and its framestore.Store while the
// session records, stops capture on request or when the planned duration
// elapses, hands the stored frames to the assembly.Assembler, and then, when a
// conversion.Service is configured, uploads the artifact and polls the remote
// task until it settles. Every transition is mirrored into an optional
// Recorder (the jobs ledger) and the finished result is handed to an optional
// ResultConsumer.
//
// Cancel is accepted from any non-terminal state: it stops capture and the
// poll loop, aborts the encoder through context cancellation, and disposes
// the frame store. Failed runs can be retried in full or from the failed step.
package workflow
