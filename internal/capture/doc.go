// Package capture drives periodic frame acquisition from a VideoSource into a
// framestore.Store.
//
// A repeater goroutine snapshots the source on a ticker, JPEG-encodes the
// frame, and appends it to a bounded RAM buffer under a monotonically
// increasing index. Crossing the flush threshold swaps the buffer out and
// writes it to the store on a separate goroutine, so capture and flush run
// concurrently. Frames that fail to write are put back at the front of the
// buffer for the next flush. Stop performs a final forced flush and must
// return before assembly reads the store.
package capture
