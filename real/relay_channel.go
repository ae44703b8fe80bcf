package real

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/filedrop/interfaces"
	"github.com/opd-ai/filedrop/limits"
	"github.com/opd-ai/filedrop/transport"
	"github.com/sirupsen/logrus"
)

// DialAttempts is how many times Connect tries to reach the relay.
const DialAttempts = 3

// ErrNotConnected is returned when broadcasting on a closed or dropped channel.
var ErrNotConnected = errors.New("not connected to relay")

// ErrUnexpectedGreeting is returned when the relay does not answer Hello with Welcome.
var ErrUnexpectedGreeting = errors.New("relay did not send welcome")

// Sleeper provides an abstraction over time.Sleep for deterministic testing.
type Sleeper interface {
	// Sleep pauses execution for the specified duration.
	Sleep(d time.Duration)
}

// DefaultSleeper implements Sleeper using the standard library time.Sleep.
type DefaultSleeper struct{}

// Sleep pauses execution for the specified duration using time.Sleep.
func (DefaultSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// ChannelStats reports traffic counters for a relay channel.
type ChannelStats struct {
	FramesSent     uint64
	BytesSent      uint64
	FramesReceived uint64
	PeerCount      int
}

// RelayChannel is a TCP client of transport.RelayServer. It implements
// interfaces.ProgressChannel.
type RelayChannel struct {
	conn     net.Conn
	config   *interfaces.ChannelConfig
	selfID   interfaces.PeerID
	selfName string
	peers    map[interfaces.PeerID]string

	onReceive    interfaces.ReceiveHandler
	onPeerJoined interfaces.PeerJoinedHandler
	onPeerLeft   interfaces.PeerLeftHandler
	onDisconnect interfaces.DisconnectHandler

	framesSent     atomic.Uint64
	bytesSent      atomic.Uint64
	framesReceived atomic.Uint64

	connected bool
	closing   bool
	writeMu   sync.Mutex
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

// Connect dials the relay named in config, joins the room under
// config.DisplayName and starts reading. Dial failures are retried
// DialAttempts times with a growing pause.
func Connect(ctx context.Context, config *interfaces.ChannelConfig) (*RelayChannel, error) {
	return ConnectWithSleeper(ctx, config, DefaultSleeper{})
}

// ConnectWithSleeper is Connect with a custom Sleeper (primarily for testing).
func ConnectWithSleeper(ctx context.Context, config *interfaces.ChannelConfig, sleeper Sleeper) (*RelayChannel, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel config: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"relay":    config.RelayAddress,
		"name":     config.DisplayName,
	}).Info("Connecting to relay")

	conn, err := dialWithRetries(ctx, config, sleeper)
	if err != nil {
		return nil, err
	}

	welcome, err := handshake(conn, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	ch := &RelayChannel{
		conn:      conn,
		config:    config,
		selfID:    interfaces.PeerID(welcome.PeerID),
		selfName:  string(welcome.Payload),
		peers:     make(map[interfaces.PeerID]string),
		connected: true,
	}

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"relay":    config.RelayAddress,
		"self_id":  welcome.PeerID,
	}).Info("Joined relay room")

	ch.wg.Add(1)
	go ch.readLoop()

	return ch, nil
}

// dialWithRetries dials the relay, pausing between failed attempts.
func dialWithRetries(ctx context.Context, config *interfaces.ChannelConfig, sleeper Sleeper) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: time.Duration(config.WriteTimeout) * time.Millisecond}

	var lastErr error
	for attempt := 0; attempt < DialAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", config.RelayAddress)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logDialRetry(config.RelayAddress, attempt+1, err)

		if ctx.Err() != nil {
			break
		}
		if attempt < DialAttempts-1 {
			sleeper.Sleep(time.Duration(500*(attempt+1)) * time.Millisecond)
		}
	}

	return nil, fmt.Errorf("failed to reach relay %s after %d attempts: %w", config.RelayAddress, DialAttempts, lastErr)
}

// logDialRetry logs a failed dial attempt.
func logDialRetry(address string, attempt int, err error) {
	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"relay":    address,
		"attempt":  attempt,
		"error":    err.Error(),
	}).Warn("Relay dial attempt failed")
}

// handshake sends Hello and waits for Welcome.
func handshake(conn net.Conn, config *interfaces.ChannelConfig) (*transport.Envelope, error) {
	timeout := time.Duration(config.WriteTimeout) * time.Millisecond

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer conn.SetDeadline(time.Time{})

	hello := &transport.Envelope{Type: transport.EnvelopeHello, Payload: []byte(config.DisplayName)}
	if err := transport.WriteEnvelope(conn, hello); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	welcome, err := transport.ReadEnvelope(conn)
	if err != nil {
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != transport.EnvelopeWelcome {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedGreeting, welcome.Type)
	}
	return welcome, nil
}

// SelfID implements interfaces.IChannel.
func (c *RelayChannel) SelfID() interfaces.PeerID {
	return c.selfID
}

// SelfName implements interfaces.IChannel.
func (c *RelayChannel) SelfName() string {
	return c.selfName
}

// IsConnected reports whether the relay connection is still up.
func (c *RelayChannel) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Broadcast implements interfaces.IChannel.
func (c *RelayChannel) Broadcast(frame []byte) error {
	return c.BroadcastWithProgress(frame, nil)
}

// BroadcastWithProgress implements interfaces.ProgressChannel. The frame is
// written in config.SegmentSize pieces and progress is called after each.
// A failed write closes the connection since the stream can no longer be
// resynchronised.
func (c *RelayChannel) BroadcastWithProgress(frame []byte, progress interfaces.ProgressFunc) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := limits.ValidateFrame(frame); err != nil {
		return err
	}

	env := &transport.Envelope{Type: transport.EnvelopeFrame, PeerID: uint32(c.selfID), Payload: frame}
	w := &deadlineWriter{conn: c.conn, timeout: time.Duration(c.config.WriteTimeout) * time.Millisecond}

	c.writeMu.Lock()
	err := transport.WriteEnvelopeSegmented(w, env, c.config.SegmentSize, progress)
	c.writeMu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "RelayChannel.Broadcast",
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Error("Relay write failed, dropping connection")
		c.conn.Close()
		return fmt.Errorf("broadcast frame: %w", err)
	}

	c.framesSent.Add(1)
	c.bytesSent.Add(uint64(len(frame)))

	logrus.WithFields(logrus.Fields{
		"function":   "RelayChannel.Broadcast",
		"frame_size": len(frame),
	}).Debug("Frame broadcast via relay")

	return nil
}

// OnReceive implements interfaces.IChannel.
func (c *RelayChannel) OnReceive(handler interfaces.ReceiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReceive = handler
}

// OnPeerJoined implements interfaces.IChannel. Members already announced by
// the relay are replayed to the new handler.
func (c *RelayChannel) OnPeerJoined(handler interfaces.PeerJoinedHandler) {
	c.mu.Lock()
	c.onPeerJoined = handler
	known := make(map[interfaces.PeerID]string, len(c.peers))
	for id, name := range c.peers {
		known[id] = name
	}
	c.mu.Unlock()

	if handler == nil {
		return
	}
	for id, name := range known {
		handler(id, name)
	}
}

// OnPeerLeft implements interfaces.IChannel.
func (c *RelayChannel) OnPeerLeft(handler interfaces.PeerLeftHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPeerLeft = handler
}

// OnDisconnect implements interfaces.IChannel. The handler is not called for
// a local Close.
func (c *RelayChannel) OnDisconnect(handler interfaces.DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = handler
}

// Stats returns the channel's traffic counters.
func (c *RelayChannel) Stats() ChannelStats {
	c.mu.RLock()
	peers := len(c.peers)
	c.mu.RUnlock()

	return ChannelStats{
		FramesSent:     c.framesSent.Load(),
		BytesSent:      c.bytesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		PeerCount:      peers,
	}
}

// Close leaves the room and waits for the read loop to exit.
func (c *RelayChannel) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.connected = false
	c.mu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "RelayChannel.Close",
		"self_id":  uint32(c.selfID),
	}).Info("Left relay room")

	return err
}

// readLoop dispatches envelopes from the relay until the connection ends.
func (c *RelayChannel) readLoop() {
	defer c.wg.Done()

	for {
		env, err := transport.ReadEnvelope(c.conn)
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.dispatch(env)
	}
}

// dispatch routes one envelope to the registered handler.
func (c *RelayChannel) dispatch(env *transport.Envelope) {
	id := interfaces.PeerID(env.PeerID)

	switch env.Type {
	case transport.EnvelopeFrame:
		c.framesReceived.Add(1)
		c.mu.RLock()
		handler := c.onReceive
		c.mu.RUnlock()
		if handler == nil {
			logrus.WithFields(logrus.Fields{
				"function":  "RelayChannel.dispatch",
				"sender_id": env.PeerID,
			}).Debug("Dropping frame, no receive handler")
			return
		}
		handler(id, env.Payload)

	case transport.EnvelopeJoined:
		name := string(env.Payload)
		c.mu.Lock()
		c.peers[id] = name
		handler := c.onPeerJoined
		c.mu.Unlock()
		if handler != nil {
			handler(id, name)
		}

	case transport.EnvelopeLeft:
		c.mu.Lock()
		delete(c.peers, id)
		handler := c.onPeerLeft
		c.mu.Unlock()
		if handler != nil {
			handler(id)
		}

	default:
		logrus.WithFields(logrus.Fields{
			"function":      "RelayChannel.dispatch",
			"envelope_type": env.Type.String(),
		}).Warn("Ignoring unexpected envelope from relay")
	}
}

// handleReadError marks the channel disconnected and notifies the handler
// unless the channel is being closed locally.
func (c *RelayChannel) handleReadError(err error) {
	c.mu.Lock()
	closing := c.closing
	c.connected = false
	c.peers = make(map[interfaces.PeerID]string)
	handler := c.onDisconnect
	c.mu.Unlock()

	if closing {
		return
	}

	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("relay closed the connection: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "RelayChannel.readLoop",
		"self_id":  uint32(c.selfID),
		"error":    err.Error(),
	}).Warn("Relay connection lost")

	if handler != nil {
		handler(err)
	}
}

// deadlineWriter sets a fresh write deadline before every write.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return 0, err
	}
	return w.conn.Write(p)
}
