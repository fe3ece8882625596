// Package monitor holds the connection state store: the single owner of the
// transport handle and of everything learned from it.
//
// Consumers read the store through immutable snapshots and change it only
// through its actions (Connect, Disconnect, Reconnect, Broadcast, SendTo,
// QueryAlive). Inbound events are applied one at a time under the store
// lock, and only while the handle that delivered them is still bound.
package monitor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Robomon/internal/camera"
	"github.com/SmitUplenchwar2687/Robomon/internal/clock"
	"github.com/SmitUplenchwar2687/Robomon/internal/metrics"
	"github.com/SmitUplenchwar2687/Robomon/internal/protocol"
	"github.com/SmitUplenchwar2687/Robomon/internal/transport"
)

// ErrUnknownClient is returned for lookups of a client the store never saw.
var ErrUnknownClient = errors.New("monitor: unknown client")

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp broadcast deliveries.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics sets the collectors the store updates.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithObserver adds an observer of confirmed log entries.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// WithAutoReconnect controls whether a lost connection makes the store
// acquire a fresh handle right away. Enabled by default.
func WithAutoReconnect(on bool) Option {
	return func(s *Store) { s.autoReconnect = on }
}

// Store is the connection state store.
type Store struct {
	factory       transport.Factory
	clock         clock.Clock
	log           zerolog.Logger
	metrics       *metrics.Metrics
	observers     []Observer
	autoReconnect bool

	mu        sync.Mutex
	sock      transport.Socket
	binding   uint64
	state     State
	sessionID string
	lastErr   *ConnError
	clients   []string
	logs      map[string][]LogEntry
	timeline  []LogEntry
	connected []string
	cameras   map[string]*camera.Feed
	version   uint64
	subs      map[chan struct{}]struct{}
	closed    bool
}

// New creates a store that obtains transport handles from factory. The store
// starts Disconnected; call Start to connect.
func New(factory transport.Factory, opts ...Option) *Store {
	s := &Store{
		factory:       factory,
		clock:         clock.NewRealClock(),
		log:           zerolog.Nop(),
		autoReconnect: true,
		logs:          make(map[string][]LogEntry),
		cameras:       make(map[string]*camera.Feed),
		subs:          make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// effects are collected under the lock and carried out after it is released.
type effects struct {
	entries []LogEntry
	changed bool
	connect bool
	release transport.Socket
}

// Start connects once if the store holds no handle yet.
func (s *Store) Start() {
	s.mu.Lock()
	has := s.sock != nil
	s.mu.Unlock()
	if !has {
		s.Connect()
	}
}

// Connect replaces the transport handle with a fresh one and starts
// connecting it. Listeners of the previous handle are released first.
func (s *Store) Connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	sock := s.factory()
	old := s.releaseLocked()
	s.bindLocked(sock)
	gen := s.binding
	s.state = Connecting
	s.bumpLocked()
	s.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	s.log.Debug().Uint64("binding", gen).Msg("connecting")
	sock.Connect()
	s.notify()
}

// Reconnect asks the current handle to resume. Without a handle it falls
// back to Connect. It does nothing while online.
func (s *Store) Reconnect() {
	s.mu.Lock()
	sock := s.sock
	if sock == nil {
		s.mu.Unlock()
		s.Connect()
		return
	}
	if s.state == Online {
		s.mu.Unlock()
		return
	}
	s.state = Connecting
	s.bumpLocked()
	s.mu.Unlock()

	sock.Connect()
	s.notify()
}

// Disconnect releases the handle and forces the Disconnected state. The
// store stays disconnected until Connect or Reconnect.
func (s *Store) Disconnect() {
	s.mu.Lock()
	old := s.releaseLocked()
	s.state = Disconnected
	s.sessionID = ""
	s.metrics.SetOnline(false)
	s.bumpLocked()
	s.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	s.notify()
}

// Close disconnects and ends every subscription. The store cannot be
// reconnected afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	// Marking closed and dropping the handle together keeps an in-flight
	// auto-reconnect from binding a new handle in between.
	s.closed = true
	old := s.releaseLocked()
	s.state = Disconnected
	s.sessionID = ""
	s.metrics.SetOnline(false)
	s.bumpLocked()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
}

// QueryAlive empties the connected set and asks every client to answer the
// roll call. Replies repopulate the set.
func (s *Store) QueryAlive() bool {
	s.mu.Lock()
	changed := len(s.connected) > 0
	s.connected = []string{}
	sent := s.emitLocked(protocol.EventAskWhoIsAlive, nil)
	if changed {
		s.connectedChangedLocked()
		s.bumpLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return sent
}

// SendTo sends msg to one client. Blank messages are ignored. The log only
// records the message once the relay confirms it.
func (s *Store) SendTo(clientID, msg string) bool {
	if strings.TrimSpace(msg) == "" || clientID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitLocked(protocol.EventSendMsgTo, protocol.SendMsgTo{Dest: clientID, Msg: msg})
}

// Broadcast sends msg to every client. Blank messages are ignored. Log
// entries appear as the relay reports each delivery.
func (s *Store) Broadcast(msg string) bool {
	if strings.TrimSpace(msg) == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitLocked(protocol.EventBroadcast, protocol.Broadcast{From: protocol.MonitorName, Msg: msg})
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals coalesce; read Snapshot to see the current state. The
// returned function ends the subscription.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

// IsOnline reports whether the handle is connected.
func (s *Store) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Online
}

// State returns the connectivity state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectedClients returns the connected set in the order clients joined it.
func (s *Store) ConnectedClients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.connected...)
}

// Logs returns a copy of every client's log.
func (s *Store) Logs() map[string][]LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLogsLocked()
}

// ClientLog returns one client's log.
func (s *Store) ClientLog(clientID string) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[clientID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClient, "client %q", clientID)
	}
	return append([]LogEntry{}, log...), nil
}

// CameraImage returns the latest frame of a client's camera, or the
// placeholder when there is none. ok is false for clients without a feed.
func (s *Store) CameraImage(clientID string) (img []byte, live bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, found := s.cameras[clientID]
	if !found {
		return camera.Placeholder(), false, false
	}
	return append([]byte(nil), f.Image()...), f.Active && f.HasFrame(), true
}

// releaseLocked unbinds the current handle and returns it so the caller can
// stop it once the lock is released.
func (s *Store) releaseLocked() transport.Socket {
	old := s.sock
	if old != nil {
		old.RemoveAllListeners()
	}
	s.sock = nil
	s.binding++
	return old
}

// bindLocked makes sock the current handle and attaches the store's
// listeners to it, exactly once, after clearing any it already had.
func (s *Store) bindLocked(sock transport.Socket) {
	s.binding++
	gen := s.binding
	s.sock = sock

	sock.RemoveAllListeners()
	sock.On(protocol.EventConnected, s.listener(gen, s.onConnected))
	sock.On(protocol.EventConnectError, s.listener(gen, s.onConnectError))
	sock.On(protocol.EventDisconnected, s.listener(gen, s.onDisconnected))
	sock.On(protocol.EventNewRobot, s.listener(gen, s.onNewRobot))
	sock.On(protocol.EventIsAlive, s.listener(gen, s.onIsAlive))
	sock.On(protocol.EventSendBroadcastToMonitor, s.listener(gen, s.onBroadcastDelivered))
	sock.On(protocol.EventConfirmReception, s.listener(gen, s.onReceptionConfirmed))
	sock.OnAny(s.listener(gen, s.onOther))
}

type applyFunc func(msg protocol.Message, fx *effects) error

func (s *Store) listener(gen uint64, fn applyFunc) transport.Handler {
	return func(msg protocol.Message) {
		fx, stale, err := s.apply(gen, msg, fn)
		if stale {
			s.metrics.Stale()
			s.log.Debug().Str("event", msg.Event).Msg("dropping event from released handle")
			return
		}
		if err != nil {
			s.metrics.HandlerError(metricEvent(msg.Event))
			s.log.Warn().Err(err).Str("event", msg.Event).Msg("failed to apply event")
		}
		s.flush(fx)
	}
}

func (s *Store) apply(gen uint64, msg protocol.Message, fn applyFunc) (fx effects, stale bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic applying %q: %v", msg.Event, r)
		}
	}()

	if s.closed || s.binding != gen {
		return fx, true, nil
	}
	s.metrics.Inbound(metricEvent(msg.Event))
	err = fn(msg, &fx)
	if fx.changed {
		s.bumpLocked()
	}
	return fx, false, err
}

func (s *Store) flush(fx effects) {
	if fx.release != nil {
		fx.release.Disconnect()
	}
	for _, e := range fx.entries {
		for _, o := range s.observers {
			o.OnLogEntry(e)
		}
	}
	if fx.changed {
		s.notify()
	}
	if fx.connect {
		s.Connect()
	}
}

func (s *Store) onConnected(_ protocol.Message, fx *effects) error {
	s.state = Online
	s.sessionID = s.sock.ID()
	s.lastErr = nil
	s.metrics.SetOnline(true)
	s.emitLocked(protocol.EventMonitorOnline, s.sessionID)
	s.log.Info().Str("session", s.sessionID).Msg("monitor online")
	fx.changed = true
	return nil
}

func (s *Store) onConnectError(msg protocol.Message, fx *effects) error {
	s.state = Disconnected
	s.metrics.SetOnline(false)

	ce := &ConnError{Kind: string(transport.KindProtocol), At: s.clock.Now()}
	if terr, ok := transport.AsConnectError(msg); ok {
		ce.Kind = string(terr.Kind)
		ce.Status = terr.Status
		ce.Message = terr.Error()
	} else if msg.Err != nil {
		ce.Message = msg.Err.Error()
	}
	s.lastErr = ce
	s.metrics.ConnectError(ce.Kind)
	s.log.Warn().Str("kind", ce.Kind).Str("error", ce.Message).Msg("connection failed")
	fx.changed = true
	return nil
}

func (s *Store) onDisconnected(msg protocol.Message, fx *effects) error {
	var reason string
	if len(msg.Data) > 0 {
		if err := msg.Decode(&reason); err != nil {
			s.log.Debug().Err(err).Msg("unreadable disconnect reason")
		}
	}
	s.log.Info().Str("reason", reason).Msg("monitor offline")

	s.state = Disconnected
	s.sessionID = ""
	s.metrics.SetOnline(false)
	fx.release = s.releaseLocked()
	fx.connect = s.autoReconnect
	fx.changed = true
	return nil
}

func (s *Store) onNewRobot(msg protocol.Message, fx *effects) error {
	var p protocol.NewRobot
	if err := msg.Decode(&p); err != nil {
		return err
	}
	if p.NewRobot == "" {
		return errors.New("new_robot without client id")
	}
	s.upsertLocked(p.NewRobot, fx)
	return nil
}

func (s *Store) onIsAlive(msg protocol.Message, fx *effects) error {
	var p protocol.IsAlive
	if err := msg.Decode(&p); err != nil {
		return err
	}
	if p.ID == "" {
		return errors.New("is_alive without client id")
	}
	s.upsertLocked(p.ID, fx)
	return nil
}

func (s *Store) onBroadcastDelivered(msg protocol.Message, fx *effects) error {
	var p protocol.BroadcastDelivered
	if err := msg.Decode(&p); err != nil {
		return err
	}
	if p.From == "" {
		return errors.New("broadcast delivery without client id")
	}
	ts := p.Timestamp
	if ts == 0 {
		ts = clock.Millis(s.clock)
	}
	s.appendLocked(LogEntry{ClientName: p.From, Timestamp: ts, Msg: p.Msg, IsReceiver: p.IsReceiver}, fx)
	return nil
}

func (s *Store) onReceptionConfirmed(msg protocol.Message, fx *effects) error {
	var p protocol.ReceptionConfirmed
	if err := msg.Decode(&p); err != nil {
		return err
	}
	if p.ID == "" {
		return errors.New("confirmation without client id")
	}
	s.appendLocked(LogEntry{ClientName: p.ID, Timestamp: p.Timestamp, Msg: p.Msg, IsReceiver: p.IsReceiver}, fx)
	return nil
}

// onOther handles events without a fixed name: the per-client camera events.
func (s *Store) onOther(msg protocol.Message, fx *effects) error {
	id, action, ok := protocol.ParseCameraEvent(msg.Event)
	if !ok {
		s.log.Debug().Str("event", msg.Event).Msg("ignoring unknown event")
		return nil
	}

	feed, found := s.cameras[id]
	if !found {
		feed = &camera.Feed{}
		s.cameras[id] = feed
	}
	now := s.clock.Now()
	switch action {
	case protocol.CameraInit:
		feed.Start(now)
		s.log.Info().Str("client", id).Msg("camera started")
	case protocol.CameraDisable:
		feed.Stop(now)
		s.log.Info().Str("client", id).Msg("camera stopped")
	case protocol.CameraFrame:
		if !feed.Active {
			feed.Dropped++
			s.metrics.CameraFrame("dropped")
			return nil
		}
		if err := feed.Push(msg.Binary, now); err != nil {
			s.metrics.CameraFrame("malformed")
			fx.changed = true
			return errors.Wrapf(err, "client %q", id)
		}
		s.metrics.CameraFrame("accepted")
	}
	fx.changed = true
	return nil
}

// upsertLocked makes sure id has a log and is in the connected set.
func (s *Store) upsertLocked(id string, fx *effects) {
	if _, ok := s.logs[id]; !ok {
		s.logs[id] = []LogEntry{}
		s.clients = append(s.clients, id)
		fx.changed = true
	}
	for _, c := range s.connected {
		if c == id {
			return
		}
	}
	s.connected = append(s.connected, id)
	s.connectedChangedLocked()
	fx.changed = true
}

func (s *Store) appendLocked(e LogEntry, fx *effects) {
	if _, ok := s.logs[e.ClientName]; !ok {
		s.clients = append(s.clients, e.ClientName)
	}
	s.logs[e.ClientName] = append(s.logs[e.ClientName], e)
	s.timeline = append(s.timeline, e)
	s.metrics.LogEntry(e.IsReceiver)
	fx.entries = append(fx.entries, e)
	fx.changed = true
}

// connectedChangedLocked pushes the connected set to the relay.
func (s *Store) connectedChangedLocked() {
	s.metrics.SetConnected(len(s.connected))
	s.emitLocked(protocol.EventSendAvailableEpucks, protocol.AvailableClients{
		ListEpucks: append([]string{}, s.connected...),
	})
}

// emitLocked is fire-and-forget: failures are counted and logged only.
func (s *Store) emitLocked(event string, v any) bool {
	if s.sock == nil {
		s.metrics.EmitFailed(event)
		s.log.Debug().Str("event", event).Msg("no transport handle, event dropped")
		return false
	}
	if err := s.sock.Emit(event, v); err != nil {
		s.metrics.EmitFailed(event)
		s.log.Debug().Err(err).Str("event", event).Msg("emit failed")
		return false
	}
	s.metrics.Outbound(event)
	return true
}

func (s *Store) bumpLocked() {
	s.version++
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) copyLogsLocked() map[string][]LogEntry {
	out := make(map[string][]LogEntry, len(s.logs))
	for id, log := range s.logs {
		out[id] = append([]LogEntry{}, log...)
	}
	return out
}

var knownEvents = map[string]bool{
	protocol.EventConnected:              true,
	protocol.EventConnectError:           true,
	protocol.EventDisconnected:           true,
	protocol.EventNewRobot:               true,
	protocol.EventIsAlive:                true,
	protocol.EventSendBroadcastToMonitor: true,
	protocol.EventConfirmReception:       true,
}

// metricEvent bounds the event label: per-client camera events collapse to
// their action and names the relay invents become "other".
func metricEvent(event string) string {
	if knownEvents[event] {
		return event
	}
	if _, action, ok := protocol.ParseCameraEvent(event); ok {
		return "camera_" + action.String()
	}
	return "other"
}
