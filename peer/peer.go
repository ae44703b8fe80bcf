package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/filedrop/interfaces"
	"github.com/sirupsen/logrus"
)

// UnknownName is returned by Lookup for ids that are not registered.
const UnknownName = "<Unknown>"

// selfSuffix marks the local participant in labels.
const selfSuffix = " (You)"

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Peer is a participant of the channel.
type Peer struct {
	ID       interfaces.PeerID
	Name     string
	Self     bool
	JoinedAt time.Time
}

// Registry tracks channel membership and display names. It has no knowledge of
// transfers and is safe for concurrent use.
type Registry struct {
	peers        map[interfaces.PeerID]Peer
	timeProvider TimeProvider
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return NewRegistryWithTimeProvider(DefaultTimeProvider{})
}

// NewRegistryWithTimeProvider creates an empty registry with a custom time provider.
func NewRegistryWithTimeProvider(tp TimeProvider) *Registry {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	return &Registry{
		peers:        make(map[interfaces.PeerID]Peer),
		timeProvider: tp,
	}
}

// Add records a peer that joined. Adding an existing id updates its name.
func (r *Registry) Add(id interfaces.PeerID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.peers[id]
	p := Peer{ID: id, Name: displayName, JoinedAt: r.timeProvider.Now()}
	if ok {
		p.Self = existing.Self
		p.JoinedAt = existing.JoinedAt
	}
	r.peers[id] = p

	logrus.WithFields(logrus.Fields{
		"function": "Add",
		"peer_id":  uint32(id),
		"name":     displayName,
		"updated":  ok,
	}).Debug("Registered peer")
}

// SetSelf records the local participant. Its label carries a "(You)" suffix.
func (r *Registry) SetSelf(id interfaces.PeerID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pid, p := range r.peers {
		if p.Self && pid != id {
			p.Self = false
			r.peers[pid] = p
		}
	}
	r.peers[id] = Peer{ID: id, Name: displayName, Self: true, JoinedAt: r.timeProvider.Now()}

	logrus.WithFields(logrus.Fields{
		"function": "SetSelf",
		"peer_id":  uint32(id),
		"name":     displayName,
	}).Debug("Registered local peer")
}

// Remove forgets a peer. It reports whether the peer was known.
func (r *Registry) Remove(id interfaces.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.peers[id]
	delete(r.peers, id)

	logrus.WithFields(logrus.Fields{
		"function": "Remove",
		"peer_id":  uint32(id),
		"known":    ok,
	}).Debug("Removed peer")

	return ok
}

// Lookup returns the display name for id, or UnknownName. It never fails.
func (r *Registry) Lookup(id interfaces.PeerID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.peers[id]; ok {
		return p.Name
	}
	return UnknownName
}

// Label returns the name to render for id. The local participant is shown as
// "<name> (You)".
func (r *Registry) Label(id interfaces.PeerID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	if !ok {
		return UnknownName
	}
	if p.Self {
		return p.Name + selfSuffix
	}
	return p.Name
}

// Get returns a copy of the peer record for id.
func (r *Registry) Get(id interfaces.PeerID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	return p, ok
}

// List returns all peers ordered by id.
func (r *Registry) List() []Peer {
	r.mu.RLock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered peers, including the local one.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Clear forgets every peer. Used when the channel disconnects.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.peers)
	r.peers = make(map[interfaces.PeerID]Peer)
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Clear",
		"removed":  n,
	}).Info("Cleared peer registry")
}
