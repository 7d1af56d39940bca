// Package praeftest provides an integration test harness: unique peer names
// and an in-memory bus for wiring a small cluster of in-process peers.
// Leak checks are left to the tests that use it.
package praeftest

import (
	"sync"

	"github.com/google/uuid"

	"github.com/praefectus-go/praef/internal/bus"
)

// UniqueName generates a unique, human-readable name for a test peer or
// partition.
func UniqueName(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// MemoryBus is an in-process Bus implementation for deterministic tests:
// every route is a direct channel hookup to another MemoryBus in the same
// Network, with no real network I/O.
type MemoryBus struct {
	self    bus.NetID
	network *Network

	mu     sync.Mutex
	routes map[bus.NetID]bool
	inbox  chan inbound
}

type inbound struct {
	data []byte
	from bus.NetID
}

// Network is the shared fabric a set of MemoryBus peers register with.
type Network struct {
	mu    sync.Mutex
	peers map[bus.NetID]*MemoryBus
}

// NewNetwork creates an empty in-memory fabric.
func NewNetwork() *Network {
	return &Network{peers: make(map[bus.NetID]*MemoryBus)}
}

// NewPeer registers and returns a new MemoryBus identified by id.
func (n *Network) NewPeer(id bus.NetID) *MemoryBus {
	mb := &MemoryBus{self: id, network: n, routes: make(map[bus.NetID]bool), inbox: make(chan inbound, 256)}
	n.mu.Lock()
	n.peers[id] = mb
	n.mu.Unlock()
	return mb
}

func (mb *MemoryBus) CreateRoute(id bus.NetID) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.routes[id] = true
	return true
}

func (mb *MemoryBus) DeleteRoute(id bus.NetID) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.routes, id)
	return true
}

func (mb *MemoryBus) Unicast(id bus.NetID, data []byte) error {
	mb.network.mu.Lock()
	peer, ok := mb.network.peers[id]
	mb.network.mu.Unlock()
	if !ok {
		return nil
	}
	peer.inbox <- inbound{data: data, from: mb.self}
	return nil
}

func (mb *MemoryBus) TriangularUnicast(id bus.NetID, data []byte) error { return mb.Unicast(id, data) }

func (mb *MemoryBus) Broadcast(data []byte) error {
	mb.mu.Lock()
	ids := make([]bus.NetID, 0, len(mb.routes))
	for id := range mb.routes {
		ids = append(ids, id)
	}
	mb.mu.Unlock()
	for _, id := range ids {
		if err := mb.Unicast(id, data); err != nil {
			return err
		}
	}
	return nil
}

func (mb *MemoryBus) Recv() ([]byte, bus.NetID, bool) {
	select {
	case m := <-mb.inbox:
		return m.data, m.from, true
	default:
		return nil, "", false
	}
}

func (mb *MemoryBus) Close() error {
	mb.network.mu.Lock()
	delete(mb.network.peers, mb.self)
	mb.network.mu.Unlock()
	return nil
}
