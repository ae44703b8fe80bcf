package filedrop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opd-ai/filedrop/factory"
	"github.com/opd-ai/filedrop/file"
	"github.com/opd-ai/filedrop/interfaces"
	"github.com/opd-ai/filedrop/peer"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by operations on a closed FileDrop.
var ErrClosed = errors.New("filedrop closed")

// Options contains configuration for joining a channel.
//
// Zero values for RelayAddress, WriteTimeout and SegmentSize keep the
// factory's defaults, including any FILEDROP_* environment overrides.
type Options struct {
	DisplayName      string
	RelayAddress     string
	UseSimulation    bool
	WriteTimeout     time.Duration
	SegmentSize      int
	ProgressInterval int

	// Channel, when set, is used as-is and the fields above that describe
	// the connection are ignored.
	Channel interfaces.IChannel
	// Factory creates the channel when Channel is nil. Channels created by
	// one factory in simulation mode can reach each other.
	Factory *factory.ChannelFactory
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		ProgressInterval: file.DefaultProgressInterval,
	}
}

// PeerEventFunc is called when a participant joins or leaves.
type PeerEventFunc func(id interfaces.PeerID, displayName string)

// FileAnnouncedFunc is called when a participant announces a file.
type FileAnnouncedFunc func(id interfaces.PeerID, senderName, fileName string)

// FileReceivedFunc is called when a participant's file has arrived in full.
type FileReceivedFunc func(id interfaces.PeerID, senderName, fileName string, data []byte)

// TransferCancelledFunc is called when an inbound transfer is dropped.
type TransferCancelledFunc func(id interfaces.PeerID, senderName string)

// DisconnectedFunc is called when the channel connection is lost.
type DisconnectedFunc func(err error)

// FileDrop joins one channel and exchanges files with everyone in it.
type FileDrop struct {
	options     *Options
	channel     interfaces.IChannel
	registry    *peer.Registry
	coordinator *file.Coordinator

	peerJoinedCallback        PeerEventFunc
	peerLeftCallback          PeerEventFunc
	fileAnnouncedCallback     FileAnnouncedFunc
	fileReceivedCallback      FileReceivedFunc
	transferCancelledCallback TransferCancelledFunc
	disconnectedCallback      DisconnectedFunc
	callbackMu                sync.RWMutex

	closeOnce sync.Once
	closed    chan struct{}
}

// New joins a channel and wires it to a peer registry and a transfer
// coordinator.
func New(ctx context.Context, options *Options) (*FileDrop, error) {
	if options == nil {
		options = NewOptions()
	}

	ch := options.Channel
	if ch == nil {
		var err error
		ch, err = createChannel(ctx, options)
		if err != nil {
			return nil, err
		}
	}

	fd := &FileDrop{
		options:     options,
		channel:     ch,
		registry:    peer.NewRegistry(),
		coordinator: file.NewCoordinator(ch),
		closed:      make(chan struct{}),
	}
	if options.ProgressInterval > 0 {
		fd.coordinator.SetProgressInterval(options.ProgressInterval)
	}
	fd.registry.SetSelf(ch.SelfID(), ch.SelfName())
	fd.wire()

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"self_id":  uint32(ch.SelfID()),
		"name":     ch.SelfName(),
	}).Info("Joined channel")

	return fd, nil
}

// createChannel builds the channel configuration from options and the
// factory defaults.
func createChannel(ctx context.Context, options *Options) (interfaces.IChannel, error) {
	f := options.Factory
	if f == nil {
		f = factory.NewChannelFactory()
	}

	config := f.GetCurrentConfig()
	config.DisplayName = options.DisplayName
	if options.UseSimulation {
		config.UseSimulation = true
	}
	if options.RelayAddress != "" {
		config.RelayAddress = options.RelayAddress
	}
	if options.WriteTimeout > 0 {
		config.WriteTimeout = int(options.WriteTimeout / time.Millisecond)
	}
	if options.SegmentSize > 0 {
		config.SegmentSize = options.SegmentSize
	}

	ch, err := f.CreateChannelWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("join channel: %w", err)
	}
	return ch, nil
}

// wire routes channel events into the registry and the coordinator. Peer
// handlers are registered before OnPeerJoined so the replay of existing
// members lands in the registry.
func (fd *FileDrop) wire() {
	fd.coordinator.OnTransferStarted(func(id interfaces.PeerID, fileName string) {
		if cb := fd.fileAnnounced(); cb != nil {
			cb(id, fd.registry.Lookup(id), fileName)
		}
	})
	fd.coordinator.OnChunkReceived(func(id interfaces.PeerID, fileName string, data []byte, _ int) {
		if cb := fd.fileReceived(); cb != nil {
			cb(id, fd.registry.Lookup(id), fileName, data)
		}
	})
	fd.coordinator.OnTransferCancelled(func(id interfaces.PeerID) {
		if cb := fd.transferCancelled(); cb != nil {
			cb(id, fd.registry.Lookup(id))
		}
	})

	fd.channel.OnReceive(fd.handleFrame)
	fd.channel.OnPeerLeft(fd.handlePeerLeft)
	fd.channel.OnDisconnect(fd.handleDisconnect)
	fd.channel.OnPeerJoined(fd.handlePeerJoined)
}

func (fd *FileDrop) handleFrame(sender interfaces.PeerID, frame []byte) {
	if err := fd.coordinator.OnFrameReceived(sender, frame); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "handleFrame",
			"sender_id": uint32(sender),
			"sender":    fd.registry.Lookup(sender),
			"error":     err.Error(),
		}).Warn("Discarded frame")
	}
}

func (fd *FileDrop) handlePeerJoined(id interfaces.PeerID, displayName string) {
	fd.registry.Add(id, displayName)

	fd.callbackMu.RLock()
	cb := fd.peerJoinedCallback
	fd.callbackMu.RUnlock()
	if cb != nil {
		cb(id, displayName)
	}
}

// handlePeerLeft cancels the peer's transfer while its name is still known,
// then forgets the peer.
func (fd *FileDrop) handlePeerLeft(id interfaces.PeerID) {
	name := fd.registry.Lookup(id)
	fd.coordinator.OnPeerLeft(id)
	fd.registry.Remove(id)

	fd.callbackMu.RLock()
	cb := fd.peerLeftCallback
	fd.callbackMu.RUnlock()
	if cb != nil {
		cb(id, name)
	}
}

func (fd *FileDrop) handleDisconnect(err error) {
	logrus.WithFields(logrus.Fields{
		"function": "handleDisconnect",
		"error":    fmt.Sprint(err),
	}).Warn("Channel disconnected")

	fd.coordinator.Reset()
	fd.registry.Clear()

	fd.callbackMu.RLock()
	cb := fd.disconnectedCallback
	fd.callbackMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// OnPeerJoined sets the callback for participants joining. Participants
// already present are reported when the channel is joined, before New
// returns, so they are only visible through Peers.
func (fd *FileDrop) OnPeerJoined(callback PeerEventFunc) {
	fd.callbackMu.Lock()
	defer fd.callbackMu.Unlock()
	fd.peerJoinedCallback = callback
}

// OnPeerLeft sets the callback for participants leaving.
func (fd *FileDrop) OnPeerLeft(callback PeerEventFunc) {
	fd.callbackMu.Lock()
	defer fd.callbackMu.Unlock()
	fd.peerLeftCallback = callback
}

// OnFileAnnounced sets the callback for file announcements.
func (fd *FileDrop) OnFileAnnounced(callback FileAnnouncedFunc) {
	fd.callbackMu.Lock()
	defer fd.callbackMu.Unlock()
	fd.fileAnnouncedCallback = callback
}

// OnFileReceived sets the callback for completed inbound transfers.
func (fd *FileDrop) OnFileReceived(callback FileReceivedFunc) {
	fd.callbackMu.Lock()
	defer fd.callbackMu.Unlock()
	fd.fileReceivedCallback = callback
}

// OnTransferCancelled sets the callback for dropped inbound transfers.
func (fd *FileDrop) OnTransferCancelled(callback TransferCancelledFunc) {
	fd.callbackMu.Lock()
	defer fd.callbackMu.Unlock()
	fd.transferCancelledCallback = callback
}

// OnDisconnected sets the callback for a lost channel connection.
func (fd *FileDrop) OnDisconnected(callback DisconnectedFunc) {
	fd.callbackMu.Lock()
	defer fd.callbackMu.Unlock()
	fd.disconnectedCallback = callback
}

// OnProgress sets the callback for outbound send progress.
func (fd *FileDrop) OnProgress(callback file.ProgressFunc) {
	fd.coordinator.OnProgress(callback)
}

// OnSendCompleted sets the callback for the end of each send.
func (fd *FileDrop) OnSendCompleted(callback file.SendCompletedFunc) {
	fd.coordinator.OnSendCompleted(callback)
}

func (fd *FileDrop) fileAnnounced() FileAnnouncedFunc {
	fd.callbackMu.RLock()
	defer fd.callbackMu.RUnlock()
	return fd.fileAnnouncedCallback
}

func (fd *FileDrop) fileReceived() FileReceivedFunc {
	fd.callbackMu.RLock()
	defer fd.callbackMu.RUnlock()
	return fd.fileReceivedCallback
}

func (fd *FileDrop) transferCancelled() TransferCancelledFunc {
	fd.callbackMu.RLock()
	defer fd.callbackMu.RUnlock()
	return fd.transferCancelledCallback
}

// SelfID returns the local participant id.
func (fd *FileDrop) SelfID() interfaces.PeerID {
	return fd.channel.SelfID()
}

// SelfName returns the local display name.
func (fd *FileDrop) SelfName() string {
	return fd.channel.SelfName()
}

// Send broadcasts data under fileName to every participant.
func (fd *FileDrop) Send(fileName string, data []byte) error {
	if fd.isClosed() {
		return ErrClosed
	}
	return fd.coordinator.BeginSend(fileName, data)
}

// SendFile reads path and broadcasts it under its base name.
func (fd *FileDrop) SendFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return fd.Send(filepath.Base(path), data)
}

// CancelSend stops the in-flight send before its data is broadcast.
func (fd *FileDrop) CancelSend() error {
	return fd.coordinator.CancelSend()
}

// IsSending reports whether a send is in flight.
func (fd *FileDrop) IsSending() bool {
	return fd.coordinator.IsSending()
}

// Wait blocks until no send is in flight or ctx is done.
func (fd *FileDrop) Wait(ctx context.Context) error {
	return fd.coordinator.Wait(ctx)
}

// Transfers returns a snapshot of inbound transfers ordered by sender.
func (fd *FileDrop) Transfers() []file.InboundTransfer {
	return fd.coordinator.Transfers()
}

// Transfer returns the inbound transfer from id.
func (fd *FileDrop) Transfer(id interfaces.PeerID) (file.InboundTransfer, bool) {
	return fd.coordinator.Transfer(id)
}

// Discard drops the inbound transfer from id without notifying anyone.
func (fd *FileDrop) Discard(id interfaces.PeerID) bool {
	return fd.coordinator.Discard(id)
}

// Save writes the completed transfer from id into dir and returns the path.
func (fd *FileDrop) Save(dir string, id interfaces.PeerID) (string, error) {
	return fd.coordinator.SaveTransfer(dir, id)
}

// Peers returns the participants currently known, including the local one.
func (fd *FileDrop) Peers() []peer.Peer {
	return fd.registry.List()
}

// PeerName returns the display name for id, or "<Unknown>".
func (fd *FileDrop) PeerName(id interfaces.PeerID) string {
	return fd.registry.Lookup(id)
}

// PeerLabel returns the name to show for id; the local participant carries a
// "(You)" suffix.
func (fd *FileDrop) PeerLabel(id interfaces.PeerID) string {
	return fd.registry.Label(id)
}

// Coordinator exposes the underlying transfer coordinator.
func (fd *FileDrop) Coordinator() *file.Coordinator {
	return fd.coordinator
}

// Registry exposes the underlying peer registry.
func (fd *FileDrop) Registry() *peer.Registry {
	return fd.registry
}

// Close leaves the channel and drops every inbound transfer. It is safe to
// call more than once.
func (fd *FileDrop) Close() error {
	var err error
	fd.closeOnce.Do(func() {
		close(fd.closed)
		fd.coordinator.CancelSend()
		err = fd.channel.Close()
		fd.coordinator.Reset()
		fd.registry.Clear()

		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"self_id":  uint32(fd.channel.SelfID()),
		}).Info("Left channel")
	})
	return err
}

func (fd *FileDrop) isClosed() bool {
	select {
	case <-fd.closed:
		return true
	default:
		return false
	}
}
