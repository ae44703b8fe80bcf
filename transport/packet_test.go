package transport

import (
	"bytes"
	"errors"
	"testing"
)

// TestPacketSerialize tests the Packet.Serialize method.
func TestPacketSerialize(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
	}{
		{
			name: "file name",
			packet: &Packet{
				PacketType: PacketFileName,
				Data:       []byte("a.txt"),
			},
		},
		{
			name: "file data",
			packet: &Packet{
				PacketType: PacketFileData,
				Data:       []byte{1, 2, 3, 4},
			},
		},
		{
			name: "empty data",
			packet: &Packet{
				PacketType: PacketFileData,
				Data:       []byte{},
			},
		},
		{
			name: "nil data",
			packet: &Packet{
				PacketType: PacketFileName,
				Data:       nil,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.packet.Serialize()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			// Verify format: [packet type (1 byte)][data]
			if len(result) != 1+len(tt.packet.Data) {
				t.Errorf("Expected length %d, got %d", 1+len(tt.packet.Data), len(result))
			}
			if result[0] != byte(tt.packet.PacketType) {
				t.Errorf("Expected packet type %d, got %d", tt.packet.PacketType, result[0])
			}
			if !bytes.Equal(result[1:], tt.packet.Data) {
				t.Error("Data mismatch")
			}
		})
	}
}

func TestSerializeNilPacket(t *testing.T) {
	var p *Packet
	if _, err := p.Serialize(); err == nil {
		t.Error("Expected error for nil packet")
	}
}

// TestParsePacket tests the ParsePacket function.
func TestParsePacket(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantType PacketType
		wantData []byte
		wantErr  bool
	}{
		{
			name:     "name frame",
			data:     []byte{0x00, 'a', '.', 't', 'x', 't'},
			wantType: PacketFileName,
			wantData: []byte("a.txt"),
		},
		{
			name:     "data frame",
			data:     []byte{0x01, 9, 8, 7},
			wantType: PacketFileData,
			wantData: []byte{9, 8, 7},
		},
		{
			name:     "discriminator only",
			data:     []byte{0x01},
			wantType: PacketFileData,
			wantData: []byte{},
		},
		{
			name:     "unknown kind passes through",
			data:     []byte{0x7f, 1},
			wantType: PacketType(0x7f),
			wantData: []byte{1},
		},
		{
			name:    "empty",
			data:    []byte{},
			wantErr: true,
		},
		{
			name:    "nil",
			data:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := ParsePacket(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedFrame) {
					t.Errorf("Expected ErrMalformedFrame, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if packet.PacketType != tt.wantType {
				t.Errorf("Expected type %v, got %v", tt.wantType, packet.PacketType)
			}
			if !bytes.Equal(packet.Data, tt.wantData) {
				t.Errorf("Expected data %v, got %v", tt.wantData, packet.Data)
			}
		})
	}
}

func TestParsePacketCopiesInput(t *testing.T) {
	raw := []byte{0x01, 1, 2, 3}
	packet, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	raw[1] = 0xff
	if packet.Data[0] != 1 {
		t.Error("ParsePacket must not alias the input buffer")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello"),
		[]byte("naïve résumé.pdf"),
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	for _, kind := range []PacketType{PacketFileName, PacketFileData} {
		for _, p := range payloads {
			gotKind, gotPayload, err := Decode(Encode(kind, p))
			if err != nil {
				t.Fatalf("Decode(Encode(%v)) failed: %v", kind, err)
			}
			if gotKind != kind {
				t.Errorf("Expected kind %v, got %v", kind, gotKind)
			}
			if !bytes.Equal(gotPayload, p) {
				t.Errorf("Payload mismatch for kind %v (len %d)", kind, len(p))
			}
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	_, _, err := Decode([]byte{})
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame, got %v", err)
	}
}

func TestPacketTypeString(t *testing.T) {
	tests := []struct {
		kind PacketType
		want string
	}{
		{PacketFileName, "FILE_NAME"},
		{PacketFileData, "FILE_DATA"},
		{PacketType(0x42), "UNKNOWN(0x42)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("PacketType(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
	if PacketType(0x02).IsKnown() {
		t.Error("0x02 should not be a known kind")
	}
}
