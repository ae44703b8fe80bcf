package file

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opd-ai/filedrop/compression"
	"github.com/opd-ai/filedrop/interfaces"
	"github.com/opd-ai/filedrop/limits"
	"github.com/opd-ai/filedrop/transport"
	"github.com/sirupsen/logrus"
)

// DefaultProgressInterval is how many channel segments pass between progress
// notifications.
const DefaultProgressInterval = 50

// compress is replaced in tests to pause a send between its two broadcasts.
var compress = compression.Compress

// TransferStartedFunc is called when a peer announces a file.
type TransferStartedFunc func(peerID interfaces.PeerID, fileName string)

// ChunkReceivedFunc is called when a peer's file data has been decompressed.
type ChunkReceivedFunc func(peerID interfaces.PeerID, fileName string, data []byte, size int)

// TransferCancelledFunc is called when an inbound transfer is dropped because
// its sender left or the channel disconnected.
type TransferCancelledFunc func(peerID interfaces.PeerID)

// ProgressFunc receives (current, total) while the local file is broadcast.
type ProgressFunc func(current, total int)

// SendCompletedFunc is called once per accepted BeginSend. err is non-nil
// only for OutcomeFailed and wraps ErrSendFailed.
type SendCompletedFunc func(outcome Outcome, err error)

// Coordinator owns the inbound transfer table and drives outbound sends over
// a channel. All methods are safe for concurrent use. Callbacks are invoked
// without the coordinator lock held.
type Coordinator struct {
	channel          interfaces.IChannel
	transfers        map[interfaces.PeerID]*InboundTransfer
	outbound         *OutboundTransfer
	idle             chan struct{}
	progressInterval int
	timeProvider     TimeProvider

	transferStartedCallback   TransferStartedFunc
	chunkReceivedCallback     ChunkReceivedFunc
	transferCancelledCallback TransferCancelledFunc
	progressCallback          ProgressFunc
	sendCompletedCallback     SendCompletedFunc

	mu sync.Mutex
}

// NewCoordinator creates a coordinator that broadcasts over ch. The caller
// routes the channel's receive and peer-left events to OnFrameReceived and
// OnPeerLeft.
func NewCoordinator(ch interfaces.IChannel) *Coordinator {
	idle := make(chan struct{})
	close(idle)

	logrus.WithFields(logrus.Fields{
		"function": "NewCoordinator",
		"self_id":  uint32(ch.SelfID()),
	}).Info("Creating transfer coordinator")

	return &Coordinator{
		channel:          ch,
		transfers:        make(map[interfaces.PeerID]*InboundTransfer),
		idle:             idle,
		progressInterval: DefaultProgressInterval,
		timeProvider:     DefaultTimeProvider{},
	}
}

// SetTimeProvider replaces the clock used for transfer timestamps.
func (c *Coordinator) SetTimeProvider(tp TimeProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	c.timeProvider = tp
}

// SetProgressInterval sets how many segments pass between progress
// notifications. Values below 1 are treated as 1.
func (c *Coordinator) SetProgressInterval(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 {
		n = 1
	}
	c.progressInterval = n
}

// OnTransferStarted sets the TransferStarted callback.
func (c *Coordinator) OnTransferStarted(callback TransferStartedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transferStartedCallback = callback
}

// OnChunkReceived sets the ChunkReceived callback.
func (c *Coordinator) OnChunkReceived(callback ChunkReceivedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunkReceivedCallback = callback
}

// OnTransferCancelled sets the TransferCancelled callback.
func (c *Coordinator) OnTransferCancelled(callback TransferCancelledFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transferCancelledCallback = callback
}

// OnProgress sets the Progress callback.
func (c *Coordinator) OnProgress(callback ProgressFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progressCallback = callback
}

// OnSendCompleted sets the SendCompleted callback.
func (c *Coordinator) OnSendCompleted(callback SendCompletedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCompletedCallback = callback
}

// BeginSend starts broadcasting fileName and data to every peer. It returns
// ErrBusy while a previous send is in flight, limits.ErrInvalidFileName for a
// name that cannot be announced and limits.ErrMessageTooLarge for data over
// limits.MaxFileSize. The send itself runs on its own goroutine
// and ends with exactly one SendCompleted notification.
func (c *Coordinator) BeginSend(fileName string, data []byte) error {
	if err := limits.ValidateFileName(fileName); err != nil {
		return err
	}
	if err := limits.ValidateFileSize(data); err != nil {
		return err
	}

	c.mu.Lock()
	if c.outbound != nil {
		busyWith := c.outbound.FileName
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "BeginSend",
			"file_name": fileName,
			"busy_with": busyWith,
		}).Warn("Rejected send while another is in flight")
		return ErrBusy
	}

	out := &OutboundTransfer{
		FileName:  fileName,
		Payload:   data,
		StartedAt: c.timeProvider.Now(),
	}
	c.outbound = out
	idle := make(chan struct{})
	c.idle = idle
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "BeginSend",
		"file_name": fileName,
		"file_size": len(data),
	}).Info("Starting send")

	go c.runSend(out, idle)
	return nil
}

// CancelSend asks the in-flight send to stop before its data frame is
// broadcast. It does not interrupt a broadcast already handed to the channel.
func (c *Coordinator) CancelSend() error {
	c.mu.Lock()
	out := c.outbound
	c.mu.Unlock()

	if out == nil {
		return ErrNothingToCancel
	}

	out.cancelled.Store(true)

	logrus.WithFields(logrus.Fields{
		"function":  "CancelSend",
		"file_name": out.FileName,
	}).Info("Send cancellation requested")

	return nil
}

// State returns the outbound state.
func (c *Coordinator) State() SendState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outbound != nil {
		return SendStateSending
	}
	return SendStateIdle
}

// IsSending reports whether a send is in flight.
func (c *Coordinator) IsSending() bool {
	return c.State() == SendStateSending
}

// Wait blocks until no send is in flight or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runSend performs the send and reports its outcome.
func (c *Coordinator) runSend(out *OutboundTransfer, idle chan struct{}) {
	outcome, err := c.performSend(out)

	c.mu.Lock()
	c.outbound = nil
	callback := c.sendCompletedCallback
	c.mu.Unlock()

	fields := logrus.Fields{
		"function":  "runSend",
		"file_name": out.FileName,
		"outcome":   outcome.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Error("Send failed")
	} else {
		logrus.WithFields(fields).Info("Send finished")
	}

	if callback != nil {
		callback(outcome, err)
	}
	close(idle)
}

// performSend broadcasts the name frame, compresses the payload, checks for
// cancellation and then broadcasts the data frame. Every broadcast frame is also fed to
// OnFrameReceived as coming from the local peer.
func (c *Coordinator) performSend(out *OutboundTransfer) (Outcome, error) {
	selfID := c.channel.SelfID()

	nameFrame := transport.Encode(transport.PacketFileName, []byte(out.FileName))
	if err := c.channel.Broadcast(nameFrame); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: name frame: %w", ErrSendFailed, err)
	}
	c.loopback(selfID, nameFrame)

	payload := compress(out.Payload)
	dataFrame := transport.Encode(transport.PacketFileData, payload)

	if out.cancelled.Load() {
		return OutcomeCancelled, nil
	}

	logrus.WithFields(logrus.Fields{
		"function":        "performSend",
		"file_name":       out.FileName,
		"file_size":       len(out.Payload),
		"compressed_size": len(payload),
	}).Debug("Broadcasting data frame")

	c.mu.Lock()
	progress := newProgressThrottle(c.progressInterval, c.progressCallback)
	c.mu.Unlock()

	var err error
	if pc, ok := c.channel.(interfaces.ProgressChannel); ok {
		err = pc.BroadcastWithProgress(dataFrame, progress.report)
	} else {
		progress.report(0, 1)
		err = c.channel.Broadcast(dataFrame)
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: data frame: %w", ErrSendFailed, err)
	}
	progress.finish()

	c.loopback(selfID, dataFrame)
	return OutcomeCompleted, nil
}

// loopback delivers a frame the local peer just broadcast to its own inbound
// handler, so the sender sees its upload like any other transfer.
func (c *Coordinator) loopback(selfID interfaces.PeerID, frame []byte) {
	if err := c.OnFrameReceived(selfID, frame); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "loopback",
			"self_id":  uint32(selfID),
			"error":    err.Error(),
		}).Warn("Loopback delivery failed")
	}
}

// OnFrameReceived handles a frame delivered by the channel. Empty frames yield
// transport.ErrMalformedFrame and undecodable data yields
// compression.ErrCorruptPayload; both affect only that frame. Data frames with
// no announced transfer and frames of unknown kind are ignored.
func (c *Coordinator) OnFrameReceived(senderID interfaces.PeerID, frame []byte) error {
	kind, payload, err := transport.Decode(frame)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "OnFrameReceived",
			"sender_id": uint32(senderID),
			"error":     err.Error(),
		}).Warn("Discarding malformed frame")
		return err
	}

	switch kind {
	case transport.PacketFileName:
		return c.handleFileName(senderID, payload)
	case transport.PacketFileData:
		return c.handleFileData(senderID, payload)
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "OnFrameReceived",
			"sender_id":   uint32(senderID),
			"packet_type": kind.String(),
		}).Debug("Ignoring frame of unknown kind")
		return nil
	}
}

// handleFileName creates or replaces the sender's transfer.
func (c *Coordinator) handleFileName(senderID interfaces.PeerID, payload []byte) error {
	fileName := string(payload)
	if err := limits.ValidateFileName(fileName); err != nil {
		// The announcement still supersedes the previous one, so the data
		// that follows it must not land under the old name.
		c.mu.Lock()
		_, dropped := c.transfers[senderID]
		delete(c.transfers, senderID)
		c.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":  "handleFileName",
			"sender_id": uint32(senderID),
			"dropped":   dropped,
			"error":     err.Error(),
		}).Warn("Discarding announcement with invalid file name")
		return err
	}

	c.mu.Lock()
	_, replaced := c.transfers[senderID]
	c.transfers[senderID] = &InboundTransfer{
		SenderID:    senderID,
		FileName:    fileName,
		State:       TransferStateAnnounced,
		AnnouncedAt: c.timeProvider.Now(),
	}
	callback := c.transferStartedCallback
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "handleFileName",
		"sender_id": uint32(senderID),
		"file_name": fileName,
		"replaced":  replaced,
	}).Info("Transfer announced")

	if callback != nil {
		callback(senderID, fileName)
	}
	return nil
}

// handleFileData decompresses and stores the data for the sender's transfer.
func (c *Coordinator) handleFileData(senderID interfaces.PeerID, payload []byte) error {
	c.mu.Lock()
	transfer, exists := c.transfers[senderID]
	c.mu.Unlock()

	if !exists {
		logrus.WithFields(logrus.Fields{
			"function":  "handleFileData",
			"sender_id": uint32(senderID),
		}).Debug("Discarding data frame without announcement")
		return nil
	}

	data, err := compression.Decompress(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "handleFileData",
			"sender_id": uint32(senderID),
			"file_name": transfer.FileName,
			"error":     err.Error(),
		}).Warn("Discarding corrupt data frame")
		return err
	}

	c.mu.Lock()
	if c.transfers[senderID] != transfer {
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "handleFileData",
			"sender_id": uint32(senderID),
		}).Debug("Transfer replaced or removed during decompression")
		return nil
	}
	transfer.Data = data
	transfer.State = TransferStateComplete
	transfer.CompletedAt = c.timeProvider.Now()
	fileName := transfer.FileName
	callback := c.chunkReceivedCallback
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "handleFileData",
		"sender_id": uint32(senderID),
		"file_name": fileName,
		"size":      len(data),
	}).Info("Transfer complete")

	if callback != nil {
		callback(senderID, fileName, data, len(data))
	}
	return nil
}

// OnPeerLeft drops any transfer from peerID and emits TransferCancelled if
// there was one.
func (c *Coordinator) OnPeerLeft(peerID interfaces.PeerID) {
	c.mu.Lock()
	_, exists := c.transfers[peerID]
	delete(c.transfers, peerID)
	callback := c.transferCancelledCallback
	c.mu.Unlock()

	if !exists {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "OnPeerLeft",
		"peer_id":  uint32(peerID),
	}).Info("Transfer cancelled, sender left")

	if callback != nil {
		callback(peerID)
	}
}

// Discard removes the transfer from peerID without emitting an event. It
// reports whether a transfer existed.
func (c *Coordinator) Discard(peerID interfaces.PeerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.transfers[peerID]
	delete(c.transfers, peerID)
	return exists
}

// Reset drops every inbound transfer and emits TransferCancelled for each, in
// peer id order. Used when the channel disconnects.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	ids := make([]interfaces.PeerID, 0, len(c.transfers))
	for id := range c.transfers {
		ids = append(ids, id)
	}
	c.transfers = make(map[interfaces.PeerID]*InboundTransfer)
	callback := c.transferCancelledCallback
	c.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	logrus.WithFields(logrus.Fields{
		"function":  "Reset",
		"cancelled": len(ids),
	}).Info("Cleared inbound transfers")

	if callback == nil {
		return
	}
	for _, id := range ids {
		callback(id)
	}
}

// Transfer returns a snapshot of the transfer from peerID. The Data slice is
// shared with the coordinator and must not be modified.
func (c *Coordinator) Transfer(peerID interfaces.PeerID) (InboundTransfer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.transfers[peerID]
	if !ok {
		return InboundTransfer{}, false
	}
	return *t, true
}

// Transfers returns snapshots of all inbound transfers ordered by sender id.
func (c *Coordinator) Transfers() []InboundTransfer {
	c.mu.Lock()
	out := make([]InboundTransfer, 0, len(c.transfers))
	for _, t := range c.transfers {
		out = append(out, *t)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out
}

// SaveTransfer writes the completed transfer from peerID into dir. See SaveTo.
func (c *Coordinator) SaveTransfer(dir string, peerID interfaces.PeerID) (string, error) {
	t, ok := c.Transfer(peerID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTransferNotFound, peerID)
	}
	return SaveTo(dir, t)
}
