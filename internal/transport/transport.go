// Package transport implements the monitor's transport handle: a socket that
// speaks named events to the relay over WebSocket.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"

	"github.com/SmitUplenchwar2687/Robomon/internal/protocol"
)

var (
	// ErrNotConnected is returned by Emit while the socket has no live connection.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrSendBufferFull is returned by Emit when the write queue is saturated.
	ErrSendBufferFull = errors.New("transport: send buffer full")
)

// Handler receives one event. Handlers run on the socket's read goroutine.
type Handler func(msg protocol.Message)

// Socket is a transport handle. A socket can connect, lose its connection
// and connect again; its listeners stay registered until RemoveAllListeners.
type Socket interface {
	// ID is the session id of the current connection, empty while offline.
	ID() string
	// On registers h for an exact event name.
	On(event string, h Handler)
	// OnAny registers h for events that have no exact listener.
	OnAny(h Handler)
	// RemoveAllListeners drops every registered handler.
	RemoveAllListeners()
	// Emit queues an event with an optional JSON payload.
	Emit(event string, v any) error
	// Connect starts connecting in the background. It is a no-op while a
	// connection or connection attempt is already in progress.
	Connect()
	// Disconnect stops the socket and closes its connection.
	Disconnect()
	// Connected reports whether the socket has a live connection.
	Connected() bool
}

// Factory creates a fresh, unconnected socket.
type Factory func() Socket

// ErrorKind classifies why a connection could not be established.
type ErrorKind string

const (
	// KindUnreachable means the relay could not be reached at the network level.
	KindUnreachable ErrorKind = "unreachable"
	// KindRejected means the relay answered but refused the WebSocket upgrade.
	KindRejected ErrorKind = "rejected"
	// KindProtocol covers every other failure (bad URL, malformed handshake).
	KindProtocol ErrorKind = "protocol"
)

// ConnectError is carried by connect_error events.
type ConnectError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Classify turns a dial error and the optional handshake response into a
// ConnectError.
func Classify(err error, resp *http.Response) *ConnectError {
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		return &ConnectError{Kind: KindRejected, Status: resp.StatusCode, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &ConnectError{Kind: KindUnreachable, Err: err}
	}
	return &ConnectError{Kind: KindProtocol, Err: err}
}

// AsConnectError extracts the ConnectError from a connect_error message.
func AsConnectError(msg protocol.Message) (*ConnectError, bool) {
	var ce *ConnectError
	if msg.Err == nil || !errors.As(msg.Err, &ce) {
		return nil, false
	}
	return ce, true
}
