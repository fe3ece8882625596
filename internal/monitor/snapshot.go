package monitor

import (
	"github.com/SmitUplenchwar2687/Robomon/internal/camera"
)

// Snapshot is an immutable copy of the store state. Nothing in a snapshot
// aliases store memory.
type Snapshot struct {
	Version   uint64                 `json:"version"`
	State     State                  `json:"state"`
	Online    bool                   `json:"online"`
	SessionID string                 `json:"session_id,omitempty"`
	HasHandle bool                   `json:"has_handle"`
	LastError *ConnError             `json:"last_error,omitempty"`
	Clients   []string               `json:"clients"`
	Connected []string               `json:"connected"`
	Logs      map[string][]LogEntry  `json:"logs"`
	Cameras   map[string]camera.Feed `json:"cameras"`

	timeline []LogEntry
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Version:   s.version,
		State:     s.state,
		Online:    s.state == Online,
		SessionID: s.sessionID,
		HasHandle: s.sock != nil,
		Clients:   append([]string{}, s.clients...),
		Connected: append([]string{}, s.connected...),
		Logs:      s.copyLogsLocked(),
		Cameras:   make(map[string]camera.Feed, len(s.cameras)),
		timeline:  append([]LogEntry{}, s.timeline...),
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	for id, f := range s.cameras {
		snap.Cameras[id] = f.Clone()
	}
	return snap
}

// IsConnected reports whether id is in the connected set.
func (s Snapshot) IsConnected(id string) bool {
	for _, c := range s.Connected {
		if c == id {
			return true
		}
	}
	return false
}

// AllLogs returns every entry sorted by timestamp. Entries with the same
// timestamp stay in arrival order.
func (s Snapshot) AllLogs() []LogEntry {
	return Merge(append([]LogEntry{}, s.timeline...))
}

// ConnectedLogs returns the logs of connected clients only, the view a
// per-client card list shows.
func (s Snapshot) ConnectedLogs() map[string][]LogEntry {
	out := make(map[string][]LogEntry, len(s.Connected))
	for _, id := range s.Connected {
		if log, ok := s.Logs[id]; ok {
			out[id] = log
		}
	}
	return out
}
