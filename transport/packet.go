package transport

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame indicates a frame too short to carry a kind discriminator.
var ErrMalformedFrame = errors.New("malformed frame")

// PacketType identifies the kind of a filedrop frame.
type PacketType byte

const (
	// PacketFileName announces the name of the file that follows.
	PacketFileName PacketType = 0x00
	// PacketFileData carries the compressed file contents.
	PacketFileData PacketType = 0x01
)

// IsKnown reports whether the discriminator is one this version understands.
func (t PacketType) IsKnown() bool {
	return t == PacketFileName || t == PacketFileData
}

// String returns a short name for the packet type.
func (t PacketType) String() string {
	switch t {
	case PacketFileName:
		return "FILE_NAME"
	case PacketFileData:
		return "FILE_DATA"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}

// Packet represents a single filedrop frame.
type Packet struct {
	PacketType PacketType
	Data       []byte
}

// Serialize converts a packet to a byte slice for transmission.
func (p *Packet) Serialize() ([]byte, error) {
	if p == nil {
		return nil, errors.New("packet is nil")
	}

	// Format: [packet type (1 byte)][data (variable length)]
	result := make([]byte, 1+len(p.Data))
	result[0] = byte(p.PacketType)
	copy(result[1:], p.Data)

	return result, nil
}

// ParsePacket converts a byte slice to a Packet structure.
// Unknown discriminators are passed through so newer peers can extend the
// protocol without breaking older ones.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < 1 {
		return nil, ErrMalformedFrame
	}

	packet := &Packet{
		PacketType: PacketType(data[0]),
		Data:       make([]byte, len(data)-1),
	}

	copy(packet.Data, data[1:])

	return packet, nil
}

// Encode builds a frame of the given kind around payload.
func Encode(kind PacketType, payload []byte) []byte {
	frame, _ := (&Packet{PacketType: kind, Data: payload}).Serialize()
	return frame
}

// Decode splits a frame into its kind and payload.
func Decode(frame []byte) (PacketType, []byte, error) {
	packet, err := ParsePacket(frame)
	if err != nil {
		return 0, nil, err
	}
	return packet.PacketType, packet.Data, nil
}
