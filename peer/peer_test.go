package peer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/filedrop/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupUnknown(t *testing.T) {
	reg := NewRegistry()
	if got := reg.Lookup(42); got != UnknownName {
		t.Errorf("Lookup(42) = %q, want %q", got, UnknownName)
	}
	if UnknownName != "<Unknown>" {
		t.Errorf("UnknownName = %q", UnknownName)
	}
}

func TestAddLookupRemove(t *testing.T) {
	reg := NewRegistry()

	reg.Add(7, "bob")
	assert.Equal(t, "bob", reg.Lookup(7))
	assert.Equal(t, 1, reg.Count())

	assert.True(t, reg.Remove(7))
	assert.Equal(t, UnknownName, reg.Lookup(7))
	assert.False(t, reg.Remove(7))
	assert.Equal(t, 0, reg.Count())
}

func TestAddExistingKeepsJoinTime(t *testing.T) {
	clock := &mockTimeProvider{fixedTime: time.Unix(1000, 0)}
	reg := NewRegistryWithTimeProvider(clock)

	reg.Add(3, "carol")
	clock.fixedTime = time.Unix(2000, 0)
	reg.Add(3, "caroline")

	p, ok := reg.Get(3)
	require.True(t, ok)
	assert.Equal(t, "caroline", p.Name)
	assert.Equal(t, time.Unix(1000, 0), p.JoinedAt)
}

func TestSelfLabel(t *testing.T) {
	reg := NewRegistry()
	reg.SetSelf(1, "alice")
	reg.Add(2, "bob")

	assert.Equal(t, "alice (You)", reg.Label(1))
	assert.Equal(t, "alice", reg.Lookup(1))
	assert.Equal(t, "bob", reg.Label(2))
	assert.Equal(t, UnknownName, reg.Label(3))

	self, ok := reg.Get(1)
	require.True(t, ok)
	assert.True(t, self.Self)

	// Re-adding the local id as a plain join keeps it marked as self.
	reg.Add(1, "alice")
	assert.Equal(t, "alice (You)", reg.Label(1))
}

func TestSetSelfMovesMarker(t *testing.T) {
	reg := NewRegistry()
	reg.SetSelf(1, "alice")
	reg.SetSelf(5, "alice")

	assert.Equal(t, "alice", reg.Label(1))
	assert.Equal(t, "alice (You)", reg.Label(5))
}

func TestListSortedByID(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []interfaces.PeerID{9, 2, 5} {
		reg.Add(id, fmt.Sprintf("peer%d", id))
	}

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, interfaces.PeerID(2), list[0].ID)
	assert.Equal(t, interfaces.PeerID(5), list[1].ID)
	assert.Equal(t, interfaces.PeerID(9), list[2].ID)
}

func TestClear(t *testing.T) {
	reg := NewRegistry()
	reg.SetSelf(1, "alice")
	reg.Add(2, "bob")

	reg.Clear()
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, UnknownName, reg.Lookup(1))
}

func TestConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id interfaces.PeerID) {
			defer wg.Done()
			reg.Add(id, "p")
			reg.Remove(id)
		}(interfaces.PeerID(i))
		go func(id interfaces.PeerID) {
			defer wg.Done()
			_ = reg.Lookup(id)
			_ = reg.List()
		}(interfaces.PeerID(i))
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Count())
}
