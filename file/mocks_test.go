package file

import (
	"sync"
	"time"

	"github.com/opd-ai/filedrop/interfaces"
)

// mockChannel is a mock implementation of interfaces.IChannel for testing.
type mockChannel struct {
	selfID interfaces.PeerID
	frames [][]byte

	// failOnCall makes the nth Broadcast (1-based) return broadcastErr.
	failOnCall   int
	broadcastErr error
	calls        int

	// gate, when set, blocks every Broadcast until it is closed.
	gate chan struct{}
	// entered receives a value each time Broadcast is entered.
	entered chan struct{}

	mu sync.Mutex
}

func newMockChannel(selfID interfaces.PeerID) *mockChannel {
	return &mockChannel{
		selfID:  selfID,
		entered: make(chan struct{}, 16),
	}
}

func (m *mockChannel) SelfID() interfaces.PeerID { return m.selfID }
func (m *mockChannel) SelfName() string { return "self" }
func (m *mockChannel) OnReceive(interfaces.ReceiveHandler) {}
func (m *mockChannel) OnPeerJoined(interfaces.PeerJoinedHandler) {}
func (m *mockChannel) OnPeerLeft(interfaces.PeerLeftHandler) {}
func (m *mockChannel) OnDisconnect(interfaces.DisconnectHandler) {}
func (m *mockChannel) Close() error { return nil }

func (m *mockChannel) Broadcast(frame []byte) error {
	select {
	case m.entered <- struct{}{}:
	default:
	}

	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOnCall == m.calls {
		return m.broadcastErr
	}
	m.frames = append(m.frames, append([]byte(nil), frame...))
	return nil
}

func (m *mockChannel) sentFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

// progressMockChannel reports a fixed number of segments per broadcast.
type progressMockChannel struct {
	*mockChannel
	segments int
}

func (p *progressMockChannel) BroadcastWithProgress(frame []byte, progress interfaces.ProgressFunc) error {
	for i := 1; i <= p.segments; i++ {
		progress(i, p.segments)
	}
	return p.Broadcast(frame)
}

// mockTimeProvider is a mock implementation of TimeProvider for testing.
type mockTimeProvider struct {
	fixedTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.fixedTime
}

type startedEvent struct {
	peerID   interfaces.PeerID
	fileName string
}

type chunkEvent struct {
	peerID   interfaces.PeerID
	fileName string
	data     []byte
	size     int
}

type completion struct {
	outcome Outcome
	err     error
}

// eventRecorder captures every coordinator notification.
type eventRecorder struct {
	started     []startedEvent
	chunks      []chunkEvent
	cancelled   []interfaces.PeerID
	progress    [][2]int
	completions []completion
	mu          sync.Mutex
}

func newRecorder(c *Coordinator) *eventRecorder {
	r := &eventRecorder{}
	c.OnTransferStarted(func(id interfaces.PeerID, name string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.started = append(r.started, startedEvent{id, name})
	})
	c.OnChunkReceived(func(id interfaces.PeerID, name string, data []byte, size int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.chunks = append(r.chunks, chunkEvent{id, name, data, size})
	})
	c.OnTransferCancelled(func(id interfaces.PeerID) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.cancelled = append(r.cancelled, id)
	})
	c.OnProgress(func(current, total int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.progress = append(r.progress, [2]int{current, total})
	})
	c.OnSendCompleted(func(outcome Outcome, err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.completions = append(r.completions, completion{outcome, err})
	})
	return r
}

func (r *eventRecorder) chunkEvents() []chunkEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chunkEvent(nil), r.chunks...)
}

func (r *eventRecorder) startedEvents() []startedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]startedEvent(nil), r.started...)
}

func (r *eventRecorder) cancelledEvents() []interfaces.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interfaces.PeerID(nil), r.cancelled...)
}

func (r *eventRecorder) progressEvents() [][2]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]int(nil), r.progress...)
}

func (r *eventRecorder) completionEvents() []completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]completion(nil), r.completions...)
}
