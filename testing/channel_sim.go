package testing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/filedrop/interfaces"
	"github.com/sirupsen/logrus"
)

// DefaultSegmentSize is used when a hub is created without a configuration.
const DefaultSegmentSize = 4096

// ErrChannelClosed is returned when broadcasting on a channel that left the hub.
var ErrChannelClosed = errors.New("simulated channel closed")

// DeliveryRecord represents a frame delivery event for testing verification
type DeliveryRecord struct {
	SenderID    interfaces.PeerID
	RecipientID interfaces.PeerID
	FrameSize   int
	Timestamp   int64
	Success     bool
	Error       error
}

// HubStats summarises a hub's activity.
type HubStats struct {
	MemberCount          int
	TotalDeliveries      int
	SuccessfulDeliveries int
	FailedDeliveries     int
}

// SimulatedHub is an in-memory multi-user room. Channels joined to the same
// hub see each other's frames and membership events synchronously.
type SimulatedHub struct {
	members     map[interfaces.PeerID]*SimulatedChannel
	nextID      interfaces.PeerID
	segmentSize int
	deliveryLog []DeliveryRecord
	mu          sync.RWMutex
}

// NewSimulatedHub creates an empty room. A nil config uses DefaultSegmentSize.
func NewSimulatedHub(config *interfaces.ChannelConfig) *SimulatedHub {
	segmentSize := DefaultSegmentSize
	if config != nil && config.SegmentSize > 0 {
		segmentSize = config.SegmentSize
	}

	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function":     "NewSimulatedHub",
		"segment_size": segmentSize,
	}).Info("Creating simulated hub for testing")

	return &SimulatedHub{
		members:     make(map[interfaces.PeerID]*SimulatedChannel),
		nextID:      1,
		segmentSize: segmentSize,
		deliveryLog: make([]DeliveryRecord, 0),
	}
}

// Join adds a participant and returns its channel. Existing members are told
// about the newcomer; the newcomer learns about them when it registers its
// OnPeerJoined handler.
func (h *SimulatedHub) Join(displayName string) *SimulatedChannel {
	h.mu.Lock()
	ch := &SimulatedChannel{
		hub:  h,
		id:   h.nextID,
		name: displayName,
	}
	h.nextID++
	others := h.membersExcept(ch.id)
	h.members[ch.id] = ch
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SimulatedHub.Join",
		"peer_id":  uint32(ch.id),
		"name":     displayName,
	}).Info("Member joined simulation")

	for _, m := range others {
		if handler := m.joinedHandler(); handler != nil {
			handler(ch.id, displayName)
		}
	}
	return ch
}

// Disconnect drops a member as if its connection failed: its disconnect
// handler receives err and the remaining members see it leave.
func (h *SimulatedHub) Disconnect(id interfaces.PeerID, err error) {
	ch := h.remove(id)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	ch.closed = true
	handler := ch.onDisconnect
	ch.mu.Unlock()

	if handler != nil {
		handler(err)
	}
}

// SetBroadcastError makes every broadcast from id fail with err until it is
// reset with a nil error.
func (h *SimulatedHub) SetBroadcastError(id interfaces.PeerID, err error) {
	h.mu.RLock()
	ch := h.members[id]
	h.mu.RUnlock()
	if ch == nil {
		return
	}

	ch.mu.Lock()
	ch.broadcastErr = err
	ch.mu.Unlock()
}

// Members returns the ids currently in the room in ascending order.
func (h *SimulatedHub) Members() []interfaces.PeerID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]interfaces.PeerID, 0, len(h.members))
	for id := range h.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetDeliveryLog returns the complete delivery log for test verification
func (h *SimulatedHub) GetDeliveryLog() []DeliveryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Return a copy to prevent external modifications
	log := make([]DeliveryRecord, len(h.deliveryLog))
	copy(log, h.deliveryLog)
	return log
}

// ClearDeliveryLog clears the delivery log for test cleanup
func (h *SimulatedHub) ClearDeliveryLog() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliveryLog = make([]DeliveryRecord, 0)
}

// GetStats returns statistics about the simulation
func (h *SimulatedHub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{
		MemberCount:     len(h.members),
		TotalDeliveries: len(h.deliveryLog),
	}
	for _, record := range h.deliveryLog {
		if record.Success {
			stats.SuccessfulDeliveries++
		} else {
			stats.FailedDeliveries++
		}
	}
	return stats
}

// remove deletes a member and notifies the others. It returns the removed
// channel or nil.
func (h *SimulatedHub) remove(id interfaces.PeerID) *SimulatedChannel {
	h.mu.Lock()
	ch, ok := h.members[id]
	delete(h.members, id)
	others := h.membersExcept(id)
	h.mu.Unlock()

	if !ok {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "SimulatedHub.remove",
		"peer_id":  uint32(id),
	}).Info("Member left simulation")

	for _, m := range others {
		if handler := m.leftHandler(); handler != nil {
			handler(id)
		}
	}
	return ch
}

// deliver hands frame to every member except the sender.
func (h *SimulatedHub) deliver(sender interfaces.PeerID, frame []byte) {
	h.mu.RLock()
	targets := h.membersExcept(sender)
	h.mu.RUnlock()

	records := make([]DeliveryRecord, 0, len(targets))
	for _, m := range targets {
		record := DeliveryRecord{
			SenderID:    sender,
			RecipientID: m.id,
			FrameSize:   len(frame),
			Timestamp:   time.Now().UnixNano(),
			Success:     true,
		}
		handler := m.receiveHandler()
		if handler == nil {
			record.Success = false
			record.Error = fmt.Errorf("peer %d has no receive handler", m.id)
		} else {
			handler(sender, append([]byte(nil), frame...))
		}
		records = append(records, record)
	}

	h.mu.Lock()
	h.deliveryLog = append(h.deliveryLog, records...)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "SimulatedHub.deliver",
		"sender_id":  uint32(sender),
		"frame_size": len(frame),
		"recipients": len(records),
	}).Debug("Frame delivery simulated")
}

// membersExcept returns members other than id ordered by id. Callers hold h.mu.
func (h *SimulatedHub) membersExcept(id interfaces.PeerID) []*SimulatedChannel {
	out := make([]*SimulatedChannel, 0, len(h.members))
	for mid, m := range h.members {
		if mid != id {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// SimulatedChannel is one participant's view of a SimulatedHub. It implements
// interfaces.ProgressChannel.
type SimulatedChannel struct {
	hub          *SimulatedHub
	id           interfaces.PeerID
	name         string
	onReceive    interfaces.ReceiveHandler
	onPeerJoined interfaces.PeerJoinedHandler
	onPeerLeft   interfaces.PeerLeftHandler
	onDisconnect interfaces.DisconnectHandler
	broadcastErr error
	closed       bool
	mu           sync.RWMutex
}

// SelfID implements interfaces.IChannel.
func (c *SimulatedChannel) SelfID() interfaces.PeerID {
	return c.id
}

// SelfName implements interfaces.IChannel.
func (c *SimulatedChannel) SelfName() string {
	return c.name
}

// Broadcast implements interfaces.IChannel.
func (c *SimulatedChannel) Broadcast(frame []byte) error {
	return c.BroadcastWithProgress(frame, nil)
}

// BroadcastWithProgress implements interfaces.ProgressChannel. Progress is
// reported per hub segment before the frame is delivered.
func (c *SimulatedChannel) BroadcastWithProgress(frame []byte, progress interfaces.ProgressFunc) error {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")

	c.mu.RLock()
	closed := c.closed
	err := c.broadcastErr
	c.mu.RUnlock()

	if closed {
		return ErrChannelClosed
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SimulatedChannel.Broadcast",
			"peer_id":  uint32(c.id),
			"error":    err.Error(),
		}).Warn("Injected broadcast failure")
		return err
	}

	if progress != nil {
		segmentSize := c.hub.segmentSize
		total := (len(frame) + segmentSize - 1) / segmentSize
		if total == 0 {
			total = 1
		}
		for i := 1; i <= total; i++ {
			progress(i, total)
		}
	}

	c.hub.deliver(c.id, frame)
	return nil
}

// OnReceive implements interfaces.IChannel.
func (c *SimulatedChannel) OnReceive(handler interfaces.ReceiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReceive = handler
}

// OnPeerJoined implements interfaces.IChannel. The handler is called at once
// for every member already in the hub.
func (c *SimulatedChannel) OnPeerJoined(handler interfaces.PeerJoinedHandler) {
	c.mu.Lock()
	c.onPeerJoined = handler
	c.mu.Unlock()

	if handler == nil {
		return
	}

	c.hub.mu.RLock()
	existing := c.hub.membersExcept(c.id)
	c.hub.mu.RUnlock()

	for _, m := range existing {
		handler(m.id, m.name)
	}
}

// OnPeerLeft implements interfaces.IChannel.
func (c *SimulatedChannel) OnPeerLeft(handler interfaces.PeerLeftHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPeerLeft = handler
}

// OnDisconnect implements interfaces.IChannel.
func (c *SimulatedChannel) OnDisconnect(handler interfaces.DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = handler
}

// Close leaves the hub. It is safe to call more than once.
func (c *SimulatedChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.hub.remove(c.id)
	return nil
}

func (c *SimulatedChannel) receiveHandler() interfaces.ReceiveHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onReceive
}

func (c *SimulatedChannel) joinedHandler() interfaces.PeerJoinedHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onPeerJoined
}

func (c *SimulatedChannel) leftHandler() interfaces.PeerLeftHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onPeerLeft
}
