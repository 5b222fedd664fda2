package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kknaks/study-timelapse/internal/logging"
)

// Entry is one decoded JSON log record.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	SessionID string
	EventType string
	Attrs     map[string]any
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Parse decodes a line written by the JSON handler. Lines that are not JSON
// objects are returned as plain messages.
func Parse(line string) Entry {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{Message: line}
	}
	take := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		delete(raw, key)
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	entry := Entry{
		Level:     strings.ToLower(take("level")),
		Message:   take("msg"),
		Component: take(logging.FieldComponent),
		SessionID: take(logging.FieldSessionID),
		EventType: take(logging.FieldEventType),
	}
	if ts := take("ts"); ts != "" {
		entry.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	delete(raw, "source")
	entry.Attrs = raw
	return entry
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	SessionID string
	MinLevel  string
	Component string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.SessionID != "" && !strings.HasPrefix(e.SessionID, f.SessionID) {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToLower(f.MinLevel)]
		if ok && levelRank[e.Level] < want {
			return false
		}
	}
	return true
}

// Format renders e as a single console line with attributes in key order.
func Format(e Entry) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	if e.Level != "" {
		fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	}
	if e.Component != "" {
		fmt.Fprintf(&b, "[%s] ", e.Component)
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}
