package interfaces

import (
	"errors"
	"fmt"
)

// PeerID identifies a participant on a channel. Ids are assigned by the
// channel and stay unique for the lifetime of a session.
type PeerID uint32

// String renders the id for logs.
func (id PeerID) String() string {
	return fmt.Sprintf("peer-%d", uint32(id))
}

// ReceiveHandler is called for every frame delivered by the channel.
type ReceiveHandler func(sender PeerID, frame []byte)

// PeerJoinedHandler is called when a participant joins the channel.
type PeerJoinedHandler func(id PeerID, displayName string)

// PeerLeftHandler is called when a participant leaves the channel.
type PeerLeftHandler func(id PeerID)

// DisconnectHandler is called once when the local side loses the channel.
type DisconnectHandler func(err error)

// ProgressFunc receives (current, total) segment counts while a frame is written.
type ProgressFunc func(current, total int)

// IChannel is the multi-user messaging channel filedrop transfers files over.
// Broadcast delivers to every other participant; the channel does not echo
// frames back to the sender.
type IChannel interface {
	// SelfID returns the id the channel assigned to the local participant.
	SelfID() PeerID

	// SelfName returns the display name of the local participant.
	SelfName() string

	// Broadcast sends a frame to all remote participants.
	Broadcast(frame []byte) error

	// OnReceive registers the inbound frame handler.
	OnReceive(handler ReceiveHandler)

	// OnPeerJoined registers the membership join handler.
	OnPeerJoined(handler PeerJoinedHandler)

	// OnPeerLeft registers the membership leave handler.
	OnPeerLeft(handler PeerLeftHandler)

	// OnDisconnect registers the handler invoked when the channel drops.
	OnDisconnect(handler DisconnectHandler)

	// Close leaves the channel.
	Close() error
}

// ProgressChannel is implemented by channels that write large frames in
// segments and can report how far a broadcast has got.
type ProgressChannel interface {
	IChannel

	// BroadcastWithProgress behaves like Broadcast and calls progress after
	// every segment handed to the underlying connection.
	BroadcastWithProgress(frame []byte, progress ProgressFunc) error
}

var (
	// ErrInvalidTimeout is returned when WriteTimeout is not positive.
	ErrInvalidTimeout = errors.New("write timeout must be positive")
	// ErrInvalidSegmentSize is returned when SegmentSize is not positive.
	ErrInvalidSegmentSize = errors.New("segment size must be positive")
	// ErrMissingRelayAddress is returned when a real channel has no relay to dial.
	ErrMissingRelayAddress = errors.New("relay address is required")
	// ErrMissingDisplayName is returned when no display name is configured.
	ErrMissingDisplayName = errors.New("display name is required")
)

// ChannelConfig holds configuration for channel implementations.
type ChannelConfig struct {
	// UseSimulation selects the in-memory channel instead of the TCP relay.
	UseSimulation bool

	// RelayAddress is the host:port of the relay server.
	RelayAddress string

	// DisplayName is announced to the other participants on join.
	DisplayName string

	// WriteTimeout bounds a single socket write, in milliseconds.
	WriteTimeout int

	// SegmentSize is the number of bytes written per progress segment.
	SegmentSize int
}

// Validate checks the configuration for values no channel can work with.
func (c *ChannelConfig) Validate() error {
	if c.DisplayName == "" {
		return ErrMissingDisplayName
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, c.WriteTimeout)
	}
	if c.SegmentSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSegmentSize, c.SegmentSize)
	}
	if !c.UseSimulation && c.RelayAddress == "" {
		return ErrMissingRelayAddress
	}
	return nil
}
