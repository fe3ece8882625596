package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyEvent is returned when a frame carries no event name.
	ErrEmptyEvent = errors.New("protocol: empty event name")
	// ErrShortFrame is returned when a binary frame is truncated.
	ErrShortFrame = errors.New("protocol: short binary frame")
	// ErrNameTooLong is returned when an event name does not fit a binary frame header.
	ErrNameTooLong = errors.New("protocol: event name too long")
	// ErrNoPayload is returned by Decode on a message without data.
	ErrNoPayload = errors.New("protocol: message has no payload")
)

// Message is one decoded event. Text frames fill Data, binary frames fill
// Binary. Err is only set on local transport events such as connect_error.
type Message struct {
	Event  string
	Data   json.RawMessage
	Binary []byte
	Err    error
}

// Decode unmarshals the JSON payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return errors.Wrapf(ErrNoPayload, "event %q", m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.Wrapf(err, "failed to decode %q payload", m.Event)
	}
	return nil
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeText builds a text frame for event with an optional JSON payload.
// A nil v produces a frame without data.
func EncodeText(event string, v any) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	env := envelope{Event: event}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %q payload", event)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeText parses a text frame.
func DecodeText(frame []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, errors.Wrap(err, "failed to decode text frame")
	}
	if env.Event == "" {
		return Message{}, ErrEmptyEvent
	}
	if bytes.Equal(env.Data, []byte("null")) {
		env.Data = nil
	}
	return Message{Event: env.Event, Data: env.Data}, nil
}

// EncodeBinary builds a binary frame: uint16 big-endian name length, the
// name, then the raw payload.
func EncodeBinary(event string, payload []byte) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	if len(event) > math.MaxUint16 {
		return nil, ErrNameTooLong
	}
	frame := make([]byte, 2+len(event)+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(event)))
	copy(frame[2:], event)
	copy(frame[2+len(event):], payload)
	return frame, nil
}

// DecodeBinary parses a binary frame. The returned payload is a copy.
func DecodeBinary(frame []byte) (Message, error) {
	if len(frame) < 2 {
		return Message{}, ErrShortFrame
	}
	n := int(binary.BigEndian.Uint16(frame))
	if n == 0 {
		return Message{}, ErrEmptyEvent
	}
	if len(frame) < 2+n {
		return Message{}, ErrShortFrame
	}
	payload := make([]byte, len(frame)-2-n)
	copy(payload, frame[2+n:])
	return Message{Event: string(frame[2 : 2+n]), Binary: payload}, nil
}
