package journal

import (
	"time"

	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

// Filter selects log entries.
type Filter struct {
	Clients   []string          // Only include these clients (empty = all)
	Direction monitor.Direction // Received, Sent or Both
	After     time.Time         // Only include entries after this time (zero = no limit)
	Before    time.Time         // Only include entries before this time (zero = no limit)
}

// Match reports whether e passes the filter.
func (f *Filter) Match(e monitor.LogEntry) bool {
	if len(f.Clients) > 0 && !contains(f.Clients, e.ClientName) {
		return false
	}
	if !f.Direction.Match(e) {
		return false
	}
	ts := e.Time()
	if !f.After.IsZero() && !ts.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !ts.Before(f.Before) {
		return false
	}
	return true
}

// Merge returns the entries passing f as one unified log, sorted by
// timestamp with ties kept in input order. A nil filter keeps everything.
// The input is not modified.
func Merge(entries []monitor.LogEntry, f *Filter) []monitor.LogEntry {
	out := make([]monitor.LogEntry, 0, len(entries))
	for _, e := range entries {
		if f == nil || f.Match(e) {
			out = append(out, e)
		}
	}
	return monitor.Merge(out)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
