// Package journal keeps confirmed log entries beyond the store: a sink that
// retains and exports them, and archives that keep per-client history.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

const (
	defaultSinkBuffer   = 1024
	defaultWriteTimeout = 2 * time.Second
)

// Sink is a store observer that retains confirmed entries and hands them
// to an archive from a background worker, so slow storage never holds up
// the store. Entries arriving while the queue is full are dropped and
// counted.
type Sink struct {
	archive Archive
	retain  bool
	log     zerolog.Logger

	queue chan monitor.LogEntry
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
	entries []monitor.LogEntry
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithSinkLogger sets the sink logger.
func WithSinkLogger(l zerolog.Logger) SinkOption {
	return func(s *Sink) { s.log = l }
}

// WithRetention keeps every written entry in memory for Entries and
// ExportFile.
func WithRetention() SinkOption {
	return func(s *Sink) { s.retain = true }
}

// WithBuffer sets the queue size.
func WithBuffer(n int) SinkOption {
	return func(s *Sink) {
		if n > 0 {
			s.queue = make(chan monitor.LogEntry, n)
		}
	}
}

// NewSink starts a sink. A nil archive is allowed.
func NewSink(archive Archive, opts ...SinkOption) *Sink {
	s := &Sink{
		archive: archive,
		log:     zerolog.Nop(),
		queue:   make(chan monitor.LogEntry, defaultSinkBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// OnLogEntry implements monitor.Observer.
func (s *Sink) OnLogEntry(e monitor.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- e:
	default:
		s.dropped++
		s.log.Warn().Str("client", e.ClientName).Uint64("dropped", s.dropped).Msg("journal queue full, entry dropped")
	}
}

// Dropped returns how many entries were lost to a full queue.
func (s *Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Entries returns a copy of the retained entries in arrival order.
func (s *Sink) Entries() []monitor.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]monitor.LogEntry(nil), s.entries...)
}

// Len returns the number of retained entries.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ExportFile writes the retained entries to path. Call it after Close to
// include everything that was queued.
func (s *Sink) ExportFile(path string) error {
	return WriteFile(path, s.Entries())
}

// Close stops accepting entries and waits until the queued ones are written.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.write(e)
	}
}

func (s *Sink) write(e monitor.LogEntry) {
	if s.retain {
		s.mu.Lock()
		s.entries = append(s.entries, e)
		s.mu.Unlock()
	}
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	defer cancel()
	if err := s.archive.Append(ctx, e); err != nil {
		s.log.Error().Err(err).Str("client", e.ClientName).Msg("failed to archive entry")
	}
}

var _ monitor.Observer = (*Sink)(nil)
