package transport

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SmitUplenchwar2687/Robomon/internal/protocol"
)

const waitTimeout = 3 * time.Second

type testRelay struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func startTestRelay(t *testing.T) *testRelay {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	r := &testRelay{conns: make(chan *websocket.Conn, 8)}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.conns <- conn
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *testRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *testRelay) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-r.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitTimeout):
		t.Fatal("relay did not receive a connection")
		return nil
	}
}

func collect(s Socket, events ...string) chan protocol.Message {
	ch := make(chan protocol.Message, 64)
	for _, e := range events {
		s.On(e, func(msg protocol.Message) { ch <- msg })
	}
	return ch
}

func waitFor(t *testing.T, ch <-chan protocol.Message, event string) protocol.Message {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg := <-ch:
			if msg.Event == event {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
			return protocol.Message{}
		}
	}
}

func TestWSSocket_ConnectEmitAndReceive(t *testing.T) {
	relay := startTestRelay(t)
	s := New(relay.url())
	events := collect(s, protocol.EventConnected, protocol.EventConfirmReception)
	s.Connect()
	defer s.Disconnect()

	server := relay.accept(t)
	waitFor(t, events, protocol.EventConnected)
	if !s.Connected() || s.ID() == "" {
		t.Fatalf("Connected() = %v, ID() = %q", s.Connected(), s.ID())
	}

	if err := s.Emit(protocol.EventSendMsgTo, protocol.SendMsgTo{Dest: "r2d2", Msg: "hi"}); err != nil {
		t.Fatal(err)
	}
	server.SetReadDeadline(time.Now().Add(waitTimeout))
	_, data, err := server.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := protocol.DecodeText(data)
	if err != nil {
		t.Fatal(err)
	}
	var out protocol.SendMsgTo
	if err := msg.Decode(&out); err != nil || out.Dest != "r2d2" || out.Msg != "hi" {
		t.Errorf("relay got %+v (err %v)", out, err)
	}

	frame, _ := protocol.EncodeText(protocol.EventConfirmReception,
		protocol.ReceptionConfirmed{ID: "r2d2", Msg: "hello", IsReceiver: true, Timestamp: 1000})
	server.WriteMessage(websocket.TextMessage, frame)

	got := waitFor(t, events, protocol.EventConfirmReception)
	var in protocol.ReceptionConfirmed
	if err := got.Decode(&in); err != nil || in.Timestamp != 1000 {
		t.Errorf("client got %+v (err %v)", in, err)
	}
}

func TestWSSocket_BinaryFramesReachCatchAll(t *testing.T) {
	relay := startTestRelay(t)
	s := New(relay.url())
	events := collect(s, protocol.EventConnected)
	s.OnAny(func(msg protocol.Message) { events <- msg })
	s.Connect()
	defer s.Disconnect()

	server := relay.accept(t)
	waitFor(t, events, protocol.EventConnected)

	frame, _ := protocol.EncodeBinary("r2d2_stream_img_monitor", []byte{1, 2, 3})
	server.WriteMessage(websocket.BinaryMessage, frame)

	got := waitFor(t, events, "r2d2_stream_img_monitor")
	if len(got.Binary) != 3 {
		t.Errorf("binary payload = %v", got.Binary)
	}
}

func TestWSSocket_ExactListenerShadowsCatchAll(t *testing.T) {
	relay := startTestRelay(t)
	s := New(relay.url())
	events := collect(s, protocol.EventConnected, protocol.EventIsAlive)
	caught := make(chan protocol.Message, 8)
	s.OnAny(func(msg protocol.Message) { caught <- msg })
	s.Connect()
	defer s.Disconnect()

	server := relay.accept(t)
	waitFor(t, events, protocol.EventConnected)

	frame, _ := protocol.EncodeText(protocol.EventIsAlive, protocol.IsAlive{ID: "r2d2"})
	server.WriteMessage(websocket.TextMessage, frame)
	waitFor(t, events, protocol.EventIsAlive)

	select {
	case msg := <-caught:
		t.Errorf("catch-all received %q", msg.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWSSocket_ListenerPanicIsIsolated(t *testing.T) {
	relay := startTestRelay(t)
	s := New(relay.url())
	events := collect(s, protocol.EventConnected)
	s.On(protocol.EventNewRobot, func(protocol.Message) { panic("boom") })
	s.On(protocol.EventNewRobot, func(msg protocol.Message) { events <- msg })
	s.Connect()
	defer s.Disconnect()

	server := relay.accept(t)
	waitFor(t, events, protocol.EventConnected)

	frame, _ := protocol.EncodeText(protocol.EventNewRobot, protocol.NewRobot{NewRobot: "r2d2"})
	server.WriteMessage(websocket.TextMessage, frame)
	server.WriteMessage(websocket.TextMessage, frame)

	waitFor(t, events, protocol.EventNewRobot)
	waitFor(t, events, protocol.EventNewRobot)
	if !s.Connected() {
		t.Error("socket should survive a panicking listener")
	}
}

func TestWSSocket_UnreachableRetriesOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := New("ws://"+addr, WithReconnectDelay(0), WithDialTimeout(time.Second))
	events := collect(s, protocol.EventConnectError)
	s.Connect()
	defer s.Disconnect()

	for i := 0; i < 2; i++ {
		msg := waitFor(t, events, protocol.EventConnectError)
		ce, ok := AsConnectError(msg)
		if !ok {
			t.Fatalf("connect_error without ConnectError: %v", msg.Err)
		}
		if ce.Kind != KindUnreachable {
			t.Errorf("Kind = %q, want %q", ce.Kind, KindUnreachable)
		}
	}

	select {
	case msg := <-events:
		t.Errorf("unexpected third attempt: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWSSocket_RejectedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	s := New("ws"+strings.TrimPrefix(srv.URL, "http"), WithReconnectAttempts(0))
	events := collect(s, protocol.EventConnectError)
	s.Connect()
	defer s.Disconnect()

	ce, ok := AsConnectError(waitFor(t, events, protocol.EventConnectError))
	if !ok {
		t.Fatal("expected ConnectError")
	}
	if ce.Kind != KindRejected || ce.Status != http.StatusForbidden {
		t.Errorf("got %v, want rejected/403", ce)
	}
}

func TestWSSocket_ServerCloseThenReconnect(t *testing.T) {
	relay := startTestRelay(t)
	s := New(relay.url(), WithReconnectDelay(0))
	events := collect(s, protocol.EventConnected, protocol.EventDisconnected)
	s.Connect()
	defer s.Disconnect()

	first := relay.accept(t)
	waitFor(t, events, protocol.EventConnected)
	firstID := s.ID()

	first.Close()
	msg := waitFor(t, events, protocol.EventDisconnected)
	var reason string
	msg.Decode(&reason)
	if reason == ReasonClientDisconnect {
		t.Errorf("reason = %q, want a transport reason", reason)
	}

	relay.accept(t)
	waitFor(t, events, protocol.EventConnected)
	if s.ID() == "" || s.ID() == firstID {
		t.Errorf("reconnected session id = %q, first was %q", s.ID(), firstID)
	}
}

func TestWSSocket_Disconnect(t *testing.T) {
	relay := startTestRelay(t)
	s := New(relay.url())
	events := collect(s, protocol.EventConnected, protocol.EventDisconnected)
	s.Connect()

	relay.accept(t)
	waitFor(t, events, protocol.EventConnected)

	s.Disconnect()
	msg := waitFor(t, events, protocol.EventDisconnected)
	var reason string
	msg.Decode(&reason)
	if reason != ReasonClientDisconnect {
		t.Errorf("reason = %q, want %q", reason, ReasonClientDisconnect)
	}
	if s.Connected() {
		t.Error("Connected() should be false after Disconnect")
	}
	if err := s.Emit(protocol.EventAskWhoIsAlive, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Emit err = %v, want ErrNotConnected", err)
	}
}

func TestWSSocket_RemoveAllListeners(t *testing.T) {
	relay := startTestRelay(t)
	s := New(relay.url())
	events := collect(s, protocol.EventConnected, protocol.EventIsAlive)
	s.Connect()
	defer s.Disconnect()

	server := relay.accept(t)
	waitFor(t, events, protocol.EventConnected)
	s.RemoveAllListeners()

	frame, _ := protocol.EncodeText(protocol.EventIsAlive, protocol.IsAlive{ID: "r2d2"})
	server.WriteMessage(websocket.TextMessage, frame)

	select {
	case msg := <-events:
		t.Errorf("listener fired after RemoveAllListeners: %q", msg.Event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClassify(t *testing.T) {
	err := errors.New("boom")
	if ce := Classify(err, &http.Response{StatusCode: http.StatusUnauthorized}); ce.Kind != KindRejected {
		t.Errorf("Kind = %q, want rejected", ce.Kind)
	}
	if ce := Classify(&net.OpError{Op: "dial", Err: err}, nil); ce.Kind != KindUnreachable {
		t.Errorf("Kind = %q, want unreachable", ce.Kind)
	}
	if ce := Classify(err, nil); ce.Kind != KindProtocol {
		t.Errorf("Kind = %q, want protocol", ce.Kind)
	}
	if ce := Classify(err, nil); !errors.Is(ce, err) {
		t.Error("ConnectError should unwrap to the dial error")
	}
}
