package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// State is the connectivity of the monitor's transport handle.
type State int

const (
	Disconnected State = iota
	Connecting
	Online
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = Disconnected
	case "connecting":
		*s = Connecting
	case "online":
		*s = Online
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// LogEntry is one confirmed message between the monitor and a client.
// IsReceiver is true when the monitor received the message from the client.
type LogEntry struct {
	ClientName string `json:"clientName"`
	Timestamp  int64  `json:"timestamp"`
	Msg        string `json:"msg"`
	IsReceiver bool   `json:"isReceiver"`
}

// Time returns the entry timestamp as a time.Time.
func (e LogEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Line renders the entry the way the unified log shows it.
func (e LogEntry) Line(loc *time.Location) string {
	verb := "sent"
	if e.IsReceiver {
		verb = "received"
	}
	return fmt.Sprintf("@%s - %s %s: %s", e.Time().In(loc).Format(time.TimeOnly), e.ClientName, verb, e.Msg)
}

// Merge sorts entries by timestamp in place. Entries with equal timestamps
// keep their relative order.
func Merge(entries []LogEntry) []LogEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
	return entries
}

// Direction selects log entries by who sent them.
type Direction int

const (
	Both Direction = iota
	Received
	Sent
)

// ParseDirection maps "", "all", "received" and "sent" to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "all", "both":
		return Both, nil
	case "received":
		return Received, nil
	case "sent":
		return Sent, nil
	}
	return Both, fmt.Errorf("unknown direction %q, must be one of: all, received, sent", s)
}

// Match reports whether e passes the direction filter.
func (d Direction) Match(e LogEntry) bool {
	switch d {
	case Received:
		return e.IsReceiver
	case Sent:
		return !e.IsReceiver
	}
	return true
}

// Filter returns the entries matching d, in order.
func (d Direction) Filter(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if d.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// ConnError describes the last failed connection attempt.
type ConnError struct {
	Kind    string    `json:"kind"`
	Status  int       `json:"status,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Observer is told about every confirmed log entry, outside the store lock
// and in arrival order.
type Observer interface {
	OnLogEntry(LogEntry)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(LogEntry)

func (f ObserverFunc) OnLogEntry(e LogEntry) { f(e) }
