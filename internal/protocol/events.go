// Package protocol defines the named events exchanged with the relay server
// and how they are framed on a WebSocket connection.
package protocol

import "strings"

// Local transport events. They are dispatched by the socket itself and
// never travel on the wire.
const (
	EventConnected    = "connected"
	EventConnectError = "connect_error"
	EventDisconnected = "disconnected"
)

// Inbound events sent by the relay.
const (
	EventNewRobot               = "new_robot"
	EventIsAlive                = "is_alive"
	EventSendBroadcastToMonitor = "send_broadcast_to_monitor"
	EventConfirmReception       = "confirm_reception"
)

// Outbound events emitted by the monitor.
const (
	EventMonitorOnline       = "monitor_online"
	EventAskWhoIsAlive       = "ask_who_is_alive"
	EventSendMsgTo           = "send_msg_to"
	EventBroadcast           = "broadcast"
	EventSendAvailableEpucks = "send_available_epucks"
)

// MonitorName is the sender name the monitor uses for broadcasts.
const MonitorName = "monitor"

// Per-client camera event suffixes. The full event name is the client id
// followed by the suffix, e.g. "r2d2_init_camera".
const (
	SuffixInitCamera    = "_init_camera"
	SuffixStreamImg     = "_stream_img_monitor"
	SuffixDisableCamera = "_disable_camera"
)

// CameraAction is what a per-client camera event asks for.
type CameraAction int

const (
	CameraNone CameraAction = iota
	CameraInit
	CameraFrame
	CameraDisable
)

func (a CameraAction) String() string {
	switch a {
	case CameraInit:
		return "init"
	case CameraFrame:
		return "frame"
	case CameraDisable:
		return "disable"
	default:
		return "none"
	}
}

// ParseCameraEvent splits a camera event name into its client id and action.
// ok is false for names that are not camera events or carry an empty id.
func ParseCameraEvent(name string) (clientID string, action CameraAction, ok bool) {
	for _, s := range []struct {
		suffix string
		action CameraAction
	}{
		{SuffixStreamImg, CameraFrame},
		{SuffixInitCamera, CameraInit},
		{SuffixDisableCamera, CameraDisable},
	} {
		if id, found := strings.CutSuffix(name, s.suffix); found && id != "" {
			return id, s.action, true
		}
	}
	return "", CameraNone, false
}

// CameraEvent builds the event name for a client's camera action.
func CameraEvent(clientID string, action CameraAction) string {
	switch action {
	case CameraInit:
		return clientID + SuffixInitCamera
	case CameraFrame:
		return clientID + SuffixStreamImg
	case CameraDisable:
		return clientID + SuffixDisableCamera
	}
	return ""
}

// NewRobot announces a client that joined.
type NewRobot struct {
	NewRobot string `json:"new_robot"`
	Msg      string `json:"msg"`
}

// IsAlive answers an ask_who_is_alive roll call.
type IsAlive struct {
	ID string `json:"id"`
}

// BroadcastDelivered notifies the monitor that a broadcast reached a client.
// Timestamp is optional; the relay normally leaves it out.
type BroadcastDelivered struct {
	From       string `json:"from"`
	Msg        string `json:"msg"`
	IsReceiver bool   `json:"is_receiver"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// ReceptionConfirmed reports a message received from a client, stamped by
// the server in epoch milliseconds.
type ReceptionConfirmed struct {
	ID         string `json:"id"`
	Msg        string `json:"msg"`
	IsReceiver bool   `json:"is_receiver"`
	Timestamp  int64  `json:"timestamp"`
}

// SendMsgTo is a message directed at one client.
type SendMsgTo struct {
	Dest string `json:"dest"`
	Msg  string `json:"msg"`
}

// Broadcast is a message for every connected client.
type Broadcast struct {
	From string `json:"from"`
	Msg  string `json:"msg"`
}

// AvailableClients pushes the monitor's view of connected clients.
type AvailableClients struct {
	ListEpucks []string `json:"list_epucks"`
}
