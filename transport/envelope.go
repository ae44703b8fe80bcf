package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// EnvelopeType identifies relay protocol messages.
type EnvelopeType uint8

const (
	// EnvelopeHello is sent by a client to join the room. Payload is the display name.
	EnvelopeHello EnvelopeType = 0x01
	// EnvelopeWelcome answers Hello with the id assigned to the client.
	EnvelopeWelcome EnvelopeType = 0x02
	// EnvelopeJoined announces a participant. Payload is its display name.
	EnvelopeJoined EnvelopeType = 0x03
	// EnvelopeLeft announces that a participant left.
	EnvelopeLeft EnvelopeType = 0x04
	// EnvelopeFrame carries a filedrop frame. The server stamps the sender id.
	EnvelopeFrame EnvelopeType = 0x05
)

const (
	// envelopeHeaderSize covers the type byte and the peer id.
	envelopeHeaderSize = 5

	// MaxEnvelopeSize bounds the body of a single relay message.
	MaxEnvelopeSize = 64 << 20
)

var (
	// ErrShortEnvelope is returned for bodies smaller than the envelope header.
	ErrShortEnvelope = errors.New("envelope shorter than header")
	// ErrEnvelopeTooLarge is returned when a length prefix exceeds MaxEnvelopeSize.
	ErrEnvelopeTooLarge = errors.New("envelope exceeds maximum size")
)

// String returns a short name for the envelope type.
func (t EnvelopeType) String() string {
	switch t {
	case EnvelopeHello:
		return "HELLO"
	case EnvelopeWelcome:
		return "WELCOME"
	case EnvelopeJoined:
		return "JOINED"
	case EnvelopeLeft:
		return "LEFT"
	case EnvelopeFrame:
		return "FRAME"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// Envelope is a single relay protocol message.
type Envelope struct {
	Type    EnvelopeType
	PeerID  uint32
	Payload []byte
}

// MarshalBinary encodes the envelope body: [type][peer id (4 bytes BE)][payload].
// The length prefix is added by WriteEnvelope.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	if e == nil {
		return nil, errors.New("envelope is nil")
	}
	if envelopeHeaderSize+len(e.Payload) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooLarge, envelopeHeaderSize+len(e.Payload))
	}

	body := make([]byte, envelopeHeaderSize+len(e.Payload))
	body[0] = byte(e.Type)
	binary.BigEndian.PutUint32(body[1:5], e.PeerID)
	copy(body[envelopeHeaderSize:], e.Payload)
	return body, nil
}

// UnmarshalEnvelope decodes an envelope body produced by MarshalBinary.
func UnmarshalEnvelope(body []byte) (*Envelope, error) {
	if len(body) < envelopeHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortEnvelope, len(body))
	}

	env := &Envelope{
		Type:    EnvelopeType(body[0]),
		PeerID:  binary.BigEndian.Uint32(body[1:5]),
		Payload: make([]byte, len(body)-envelopeHeaderSize),
	}
	copy(env.Payload, body[envelopeHeaderSize:])
	return env, nil
}
