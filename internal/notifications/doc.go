// Package notifications pushes session outcomes to ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so callers
// publish unconditionally. Each Event maps to a fixed title, tag set, and
// priority; the message body is built from the event Payload.
package notifications
