// Package bus implements the message-bus contract the core consumes:
// route management plus unicast/triangular-unicast/broadcast/recv, backed
// by github.com/jabolina/relt for reliable group delivery between peer
// processes.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/jabolina/relt/pkg/relt"

	"github.com/praefectus-go/praef/internal/praeflog"
)

// NetID is the wire network identifier a route is keyed by. The core only
// ever treats it as an opaque, comparable key; address-family interpretation
// lives at the join-protocol layer.
type NetID string

// Bus is the capability the core drives: create/delete routes, unicast,
// triangular unicast, broadcast, and non-blocking receive.
type Bus interface {
	CreateRoute(id NetID) bool
	DeleteRoute(id NetID) bool
	Unicast(id NetID, data []byte) error
	TriangularUnicast(id NetID, data []byte) error
	Broadcast(data []byte) error
	Recv() ([]byte, NetID, bool)
	Close() error
}

// Relt is the default Bus, backed by one relt group per route.
type Relt struct {
	log praeflog.Logger
	ctx context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	routes map[NetID]*relt.Relt

	inbox chan inboundMsg
}

type inboundMsg struct {
	from NetID
	data []byte
}

// NewRelt creates a Bus with no routes yet established. name identifies
// this peer's own relt group.
func NewRelt(name string, log praeflog.Logger) *Relt {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relt{
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		routes: make(map[NetID]*relt.Relt),
		inbox:  make(chan inboundMsg, 256),
	}
}

// CreateRoute registers a route to id, idempotently.
func (b *Relt) CreateRoute(id NetID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.routes[id]; ok {
		return true
	}

	conf := relt.DefaultReltConfiguration()
	conf.Name = string(id)
	conf.Exchange = relt.GroupAddress(id)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		b.log.Errorf("bus: failed creating route to %s: %v", id, err)
		return false
	}
	b.routes[id] = r
	go b.poll(id, r)
	return true
}

// DeleteRoute tears down the route to id, idempotently.
func (b *Relt) DeleteRoute(id NetID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.routes[id]
	if !ok {
		return true
	}
	delete(b.routes, id)
	if err := r.Close(); err != nil {
		b.log.Errorf("bus: failed closing route to %s: %v", id, err)
		return false
	}
	return true
}

func (b *Relt) send(id NetID, data []byte) error {
	b.mu.Lock()
	r, ok := b.routes[id]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Broadcast(b.ctx, relt.Send{Address: relt.GroupAddress(id), Data: data})
}

// Unicast sends data to exactly one route.
func (b *Relt) Unicast(id NetID, data []byte) error { return b.send(id, data) }

// TriangularUnicast additionally mirrors via a vertex server for NAT
// hole-punching when one is configured; no concrete vertex/NAT transport is
// in scope here (only the abstract bus contract), so this degrades to a
// plain unicast.
func (b *Relt) TriangularUnicast(id NetID, data []byte) error { return b.send(id, data) }

// Broadcast sends data to every currently known route.
func (b *Relt) Broadcast(data []byte) error {
	b.mu.Lock()
	ids := make([]NetID, 0, len(b.routes))
	for id := range b.routes {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := b.send(id, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recv returns the next pending message, non-blocking; ok is false if none
// is pending.
func (b *Relt) Recv() ([]byte, NetID, bool) {
	select {
	case m := <-b.inbox:
		return m.data, m.from, true
	default:
		return nil, "", false
	}
}

func (b *Relt) poll(id NetID, r *relt.Relt) {
	listener, err := r.Consume()
	if err != nil {
		b.log.Errorf("bus: failed consuming from %s: %v", id, err)
		return
	}
	for {
		select {
		case <-b.ctx.Done():
			return
		case recv, ok := <-listener:
			if !ok {
				return
			}
			if recv.Error != nil {
				b.log.Warnf("bus: receive error from %s: %v", id, recv.Error)
				continue
			}
			b.deliver(id, recv.Data)
		}
	}
}

func (b *Relt) deliver(from NetID, data []byte) {
	timeout, cancel := context.WithTimeout(b.ctx, 250*time.Millisecond)
	defer cancel()
	select {
	case <-timeout.Done():
		b.log.Warnf("bus: dropped message from %s, inbox full", from)
	case b.inbox <- inboundMsg{from: from, data: data}:
	}
}

// Close tears down every route and stops all polling goroutines.
func (b *Relt) Close() error {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for id, r := range b.routes {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.routes, id)
	}
	return firstErr
}
