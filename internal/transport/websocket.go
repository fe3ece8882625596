package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Robomon/internal/clock"
	"github.com/SmitUplenchwar2687/Robomon/internal/protocol"
)

const (
	defaultReconnectAttempts = 1
	defaultReconnectDelay    = time.Second
	defaultDialTimeout       = 5 * time.Second
	defaultSendBuffer        = 256
	writeWait                = 10 * time.Second

	// Disconnect reasons carried by disconnected events.
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// Option configures a WSSocket.
type Option func(*WSSocket)

// WithReconnectAttempts sets how many automatic reconnection attempts follow
// a failed dial or a lost connection. Zero disables them.
func WithReconnectAttempts(n int) Option {
	return func(s *WSSocket) {
		if n >= 0 {
			s.attempts = n
		}
	}
}

// WithReconnectDelay sets the pause before each reconnection attempt.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *WSSocket) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithDialTimeout bounds each dial, handshake included.
func WithDialTimeout(d time.Duration) Option {
	return func(s *WSSocket) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithSendBuffer sets the outbound queue size.
func WithSendBuffer(n int) Option {
	return func(s *WSSocket) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithHeader adds headers to the handshake request.
func WithHeader(h http.Header) Option {
	return func(s *WSSocket) {
		s.header = h.Clone()
	}
}

// WithClock sets the clock used for reconnection delays.
func WithClock(c clock.Clock) Option {
	return func(s *WSSocket) {
		s.clock = c
	}
}

// WithLogger sets the socket logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *WSSocket) {
		s.log = l
	}
}

// WSSocket is a Socket over gorilla/websocket.
type WSSocket struct {
	url         string
	attempts    int
	delay       time.Duration
	dialTimeout time.Duration
	sendBuffer  int
	header      http.Header
	clock       clock.Clock
	log         zerolog.Logger
	dialer      *websocket.Dialer

	mu       sync.Mutex
	id       string
	conn     *websocket.Conn
	send     chan []byte
	cancel   context.CancelFunc
	runGen   uint64
	handlers map[string][]Handler
	any      []Handler
}

// New creates an unconnected socket for the relay at url (ws:// or wss://).
func New(url string, opts ...Option) *WSSocket {
	s := &WSSocket{
		url:         url,
		attempts:    defaultReconnectAttempts,
		delay:       defaultReconnectDelay,
		dialTimeout: defaultDialTimeout,
		sendBuffer:  defaultSendBuffer,
		clock:       clock.NewRealClock(),
		log:         zerolog.Nop(),
		handlers:    make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.dialTimeout,
	}
	return s
}

// NewFactory returns a Factory producing sockets for url.
func NewFactory(url string, opts ...Option) Factory {
	return func() Socket {
		return New(url, opts...)
	}
}

func (s *WSSocket) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *WSSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *WSSocket) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

func (s *WSSocket) OnAny(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.any = append(s.any, h)
}

func (s *WSSocket) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = make(map[string][]Handler)
	s.any = nil
}

func (s *WSSocket) Emit(event string, v any) error {
	frame, err := protocol.EncodeText(event, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *WSSocket) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.runGen++
	go s.run(ctx, s.runGen)
}

func (s *WSSocket) Disconnect() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	conn := s.conn
	s.conn = nil
	s.id = ""
	s.mu.Unlock()

	if conn == nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	conn.Close()
	s.dispatch(disconnectedMessage(ReasonClientDisconnect))
}

// run owns the connection lifecycle: dial, serve, and the bounded
// reconnection attempts after a failure.
func (s *WSSocket) run(ctx context.Context, gen uint64) {
	defer func() {
		s.mu.Lock()
		if s.runGen == gen && s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	retries := 0
	for {
		conn, err := s.dial(ctx)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			s.log.Debug().Err(err).Int("retry", retries).Msg("dial failed")
			s.dispatch(protocol.Message{Event: protocol.EventConnectError, Err: err})
		} else {
			retries = 0
			reason, ok := s.serve(ctx, conn)
			if !ok {
				return
			}
			s.dispatch(disconnectedMessage(reason))
		}

		if retries >= s.attempts {
			return
		}
		retries++
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.delay):
		}
	}
}

func (s *WSSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(dctx, s.url, s.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, Classify(err, resp)
	}
	return conn, nil
}

// serve attaches conn, dispatches connected and pumps frames until the
// connection ends. ok is false when the socket was stopped by Disconnect.
func (s *WSSocket) serve(ctx context.Context, conn *websocket.Conn) (reason string, ok bool) {
	send := make(chan []byte, s.sendBuffer)

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return "", false
	}
	s.conn = conn
	s.send = send
	s.id = uuid.NewString()
	id := s.id
	s.mu.Unlock()

	s.log.Info().Str("session", id).Str("url", s.url).Msg("connected")
	s.dispatch(protocol.Message{Event: protocol.EventConnected})

	done := make(chan struct{})
	go s.writePump(conn, send, done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	reason = s.readPump(conn)
	close(done)
	conn.Close()

	s.mu.Lock()
	stillOwned := s.conn == conn
	if stillOwned {
		s.conn = nil
		s.id = ""
	}
	s.mu.Unlock()

	if ctx.Err() != nil || !stillOwned {
		return "", false
	}
	return reason, true
}

func (s *WSSocket) readPump(conn *websocket.Conn) string {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ReasonTransportClose
			}
			s.log.Debug().Err(err).Msg("read failed")
			return ReasonTransportError
		}

		var msg protocol.Message
		switch mt {
		case websocket.TextMessage:
			msg, err = protocol.DecodeText(data)
		case websocket.BinaryMessage:
			msg, err = protocol.DecodeBinary(data)
		default:
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		s.dispatch(msg)
	}
}

func (s *WSSocket) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug().Err(err).Msg("write failed")
				conn.Close()
				return
			}
		}
	}
}

// dispatch delivers msg to its exact listeners, or to the catch-all
// listeners when there are none. A panicking listener is logged and skipped.
func (s *WSSocket) dispatch(msg protocol.Message) {
	s.mu.Lock()
	hs := append([]Handler(nil), s.handlers[msg.Event]...)
	if len(hs) == 0 {
		hs = append(hs, s.any...)
	}
	s.mu.Unlock()

	for _, h := range hs {
		s.call(h, msg)
	}
}

func (s *WSSocket) call(h Handler, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("event", msg.Event).Interface("panic", r).Msg("listener panicked")
		}
	}()
	h(msg)
}

func disconnectedMessage(reason string) protocol.Message {
	data, _ := json.Marshal(reason)
	return protocol.Message{Event: protocol.EventDisconnected, Data: data}
}

var _ Socket = (*WSSocket)(nil)
