package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRelayWriteTimeout bounds each write the relay server makes to a client.
const DefaultRelayWriteTimeout = 5 * time.Second

// helloTimeout bounds how long a new connection may take to send Hello.
const helloTimeout = 10 * time.Second

// ErrHelloExpected is returned when a client opens with anything but Hello.
var ErrHelloExpected = errors.New("first envelope must be hello")

// relayMember is one connected participant of the relay room.
type relayMember struct {
	id      uint32
	name    string
	conn    net.Conn
	writeMu sync.Mutex
}

// RelayServer is a minimal multi-user room over TCP. It assigns every client a
// peer id, fans frames out to all other members and announces joins and leaves.
type RelayServer struct {
	listener     net.Listener
	members      map[uint32]*relayMember
	conns        map[net.Conn]struct{}
	nextID       uint32
	writeTimeout time.Duration
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewRelayServer listens on listenAddr and starts accepting clients.
func NewRelayServer(listenAddr string) (*RelayServer, error) {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listenAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	server := &RelayServer{
		listener:     listener,
		members:      make(map[uint32]*relayMember),
		conns:        make(map[net.Conn]struct{}),
		nextID:       1,
		writeTimeout: DefaultRelayWriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRelayServer",
		"address":  listener.Addr().String(),
	}).Info("Relay server listening")

	server.wg.Add(1)
	go server.acceptConnections()

	return server, nil
}

// Addr returns the address the server is listening on.
func (s *RelayServer) Addr() net.Addr {
	return s.listener.Addr()
}

// MemberCount returns the number of participants currently in the room.
func (s *RelayServer) MemberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Close stops accepting clients, disconnects every member and waits for the
// connection handlers to exit.
func (s *RelayServer) Close() error {
	s.cancel()
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	logrus.WithField("function", "RelayServer.Close").Info("Relay server stopped")
	return err
}

// acceptConnections handles incoming connections until the server is closed.
func (s *RelayServer) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptConnections",
				"error":    err.Error(),
			}).Warn("Accept failed")
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs the join handshake and then relays frames for one client.
func (s *RelayServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	if !s.trackConn(conn) {
		conn.Close()
		return
	}
	defer s.untrackConn(conn)

	name, err := s.readHello(conn)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleConnection",
			"remote":   conn.RemoteAddr().String(),
			"error":    err.Error(),
		}).Warn("Rejected client")
		return
	}

	member, err := s.join(conn, name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleConnection",
			"remote":   conn.RemoteAddr().String(),
			"error":    err.Error(),
		}).Warn("Failed to welcome client")
		s.leave(member)
		return
	}
	defer s.leave(member)

	s.processEnvelopeLoop(member)
}

// trackConn records an open connection so Close can interrupt it. It reports
// false once the server is shutting down.
func (s *RelayServer) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

// untrackConn closes and forgets a connection.
func (s *RelayServer) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// readHello reads the opening Hello envelope and returns the display name.
func (s *RelayServer) readHello(conn net.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(helloTimeout)); err != nil {
		return "", err
	}
	env, err := ReadEnvelope(conn)
	if err != nil {
		return "", fmt.Errorf("read hello: %w", err)
	}
	if env.Type != EnvelopeHello {
		return "", fmt.Errorf("%w: got %s", ErrHelloExpected, env.Type)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	return string(env.Payload), nil
}

// join registers the client, sends it Welcome plus the current member list and
// announces it to everyone else. The member's write lock is held until the
// member list has been sent so relayed frames cannot overtake Welcome.
func (s *RelayServer) join(conn net.Conn, name string) (*relayMember, error) {
	member := &relayMember{name: name, conn: conn}
	member.writeMu.Lock()

	s.mu.Lock()
	member.id = s.nextID
	s.nextID++
	existing := make([]*relayMember, 0, len(s.members))
	for _, m := range s.members {
		existing = append(existing, m)
	}
	s.members[member.id] = member
	s.mu.Unlock()

	err := s.writeLocked(member, &Envelope{Type: EnvelopeWelcome, PeerID: member.id, Payload: []byte(name)})
	for _, m := range existing {
		if err != nil {
			break
		}
		err = s.writeLocked(member, &Envelope{Type: EnvelopeJoined, PeerID: m.id, Payload: []byte(m.name)})
	}
	member.writeMu.Unlock()
	if err != nil {
		return member, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "join",
		"peer_id":  member.id,
		"name":     name,
		"members":  len(existing) + 1,
	}).Info("Client joined relay")

	s.fanOut(member.id, &Envelope{Type: EnvelopeJoined, PeerID: member.id, Payload: []byte(name)})
	return member, nil
}

// leave removes the member and announces its departure.
func (s *RelayServer) leave(member *relayMember) {
	if member == nil {
		return
	}

	s.mu.Lock()
	_, present := s.members[member.id]
	delete(s.members, member.id)
	s.mu.Unlock()

	if !present {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "leave",
		"peer_id":  member.id,
		"name":     member.name,
	}).Info("Client left relay")

	s.fanOut(member.id, &Envelope{Type: EnvelopeLeft, PeerID: member.id})
}

// processEnvelopeLoop relays frames from member until its connection ends.
func (s *RelayServer) processEnvelopeLoop(member *relayMember) {
	for {
		env, err := ReadEnvelope(member.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "processEnvelopeLoop",
					"peer_id":  member.id,
					"error":    err.Error(),
				}).Debug("Client connection ended")
			}
			return
		}

		if env.Type != EnvelopeFrame {
			logrus.WithFields(logrus.Fields{
				"function":      "processEnvelopeLoop",
				"peer_id":       member.id,
				"envelope_type": env.Type.String(),
			}).Warn("Ignoring unexpected envelope from client")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function":  "processEnvelopeLoop",
			"peer_id":   member.id,
			"data_size": len(env.Payload),
		}).Debug("Relaying frame")

		s.fanOut(member.id, &Envelope{Type: EnvelopeFrame, PeerID: member.id, Payload: env.Payload})
	}
}

// fanOut writes env to every member except the one with id exclude. A member
// whose write fails is disconnected; its own handler announces the leave.
func (s *RelayServer) fanOut(exclude uint32, env *Envelope) {
	s.mu.RLock()
	targets := make([]*relayMember, 0, len(s.members))
	for id, m := range s.members {
		if id != exclude {
			targets = append(targets, m)
		}
	}
	s.mu.RUnlock()

	for _, m := range targets {
		m.writeMu.Lock()
		err := s.writeLocked(m, env)
		m.writeMu.Unlock()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":      "fanOut",
				"peer_id":       m.id,
				"envelope_type": env.Type.String(),
				"error":         err.Error(),
			}).Warn("Dropping client after failed write")
			m.conn.Close()
		}
	}
}

// writeLocked writes env to the member. The caller holds member.writeMu.
func (s *RelayServer) writeLocked(member *relayMember, env *Envelope) error {
	if err := member.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	defer member.conn.SetWriteDeadline(time.Time{})
	return WriteEnvelope(member.conn, env)
}
