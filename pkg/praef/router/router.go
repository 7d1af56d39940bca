// Package router wires per-system and per-node outboxes together and
// computes each node's visibility horizon: how far into the committed
// past that node is currently allowed to see.
package router

import (
	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/pkg/praef/commitchain"
	"github.com/praefectus-go/praef/pkg/praef/hlmsg"
	"github.com/praefectus-go/praef/pkg/praef/outbox"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/signator"
)

// NodeID identifies a peer for routing purposes; it is the same logical
// identity tracked by the meta-transactor and commit-chain, independent of
// whatever transport address currently reaches that peer.
type NodeID = pcontext.ObjectID

// VisibilityInput is everything Router.VisibilityHorizon needs to know
// about one remote node to compute its threshold.
type VisibilityInput struct {
	IsLocal                       bool
	HasDeny                       bool
	Committed                     pcontext.Instant
	CommitLagLaxness              pcontext.Instant
	LocalMinLatency               pcontext.Instant // one-quarter of min RTT to any live peer
	SelfCommitLagCompensationNum, SelfCommitLagCompensationDenom uint16
}

// VisibilityHorizon computes visibility_horizon(node): local nodes
// see everything, denied nodes see nothing, and everyone else sees up to
// their own committed progress plus a laxness/latency-compensation term.
func VisibilityHorizon(in VisibilityInput) pcontext.Instant {
	if in.IsLocal {
		return outbox.Infinite
	}
	if in.HasDeny {
		return 0
	}
	compensation := pcontext.Instant(0)
	if in.SelfCommitLagCompensationDenom != 0 {
		compensation = pcontext.Instant(uint64(in.LocalMinLatency) * uint64(in.SelfCommitLagCompensationNum) / uint64(in.SelfCommitLagCompensationDenom))
	}
	return in.Committed + in.CommitLagLaxness + compensation
}

// NetID is the bus-level address a Node currently routes through.
type NetID = bus.NetID

// Node bundles one peer's routing state: its per-node outboxes, commit
// chain, and an idle timestamp (see IdleSince). A Node is keyed by logical
// NodeID (the object id the meta-transactor and commit-chain know it by);
// its NetID (the transport address traffic is actually unicast to) is
// filled in once learned from an inbound datagram's sender address, and may
// change over a Node's lifetime without losing its identity.
type Node struct {
	ID    NodeID
	NetID NetID

	// RPCOutbox is this node's own rpc-class encoder/outbox (§4.8: "Per-node:
	// one rpc outbox"), fanning exclusively into RPCQueue. It shares the
	// router's one rpc serial-number cell with every other node's rpc
	// outbox, since serials are a property of the sender, not the
	// destination.
	RPCOutbox      *outbox.Outbox
	RPCQueue       *outbox.MessageQueue
	CommittedQueue *outbox.MessageQueue

	Chain *commitchain.Chain

	// HasDeny is set by the mod subsystem once this node's DENY bit has
	// taken effect locally; it drives its visibility horizon to zero.
	HasDeny bool

	// HasGrant mirrors this node's GRANT status as last observed through
	// the meta-transactor.
	HasGrant bool

	// IdleSince is a slot for the last instant traffic was seen from this
	// node. No subsystem sets or reads it, so it stays zero, and routes are
	// never dropped for idleness.
	IdleSince pcontext.Instant
}

// Router owns the system-wide outboxes (one committed-redistributable, one
// uncommitted-redistributable) and every known peer's per-node outboxes.
type Router struct {
	CommittedSystem   *outbox.Outbox
	UncommittedSystem *outbox.Outbox

	// uncommittedQueue is the single bus-broadcast MQ the uncommitted
	// system outbox fans into (§4.8: "one uncommitted-redistributable
	// outbox (with a bus-broadcast MQ)").
	uncommittedQueue *outbox.MessageQueue

	signer    signator.Signator
	rpcSerial *pcontext.Serial
	mtu       int

	nodes map[NodeID]*Node
}

// New creates a Router fronting the given system-wide outboxes. signer and
// rpcSerial are shared by every per-node rpc outbox this Router creates in
// AddNode.
func New(committedSystem, uncommittedSystem *outbox.Outbox, signer signator.Signator, rpcSerial *pcontext.Serial, mtu int) *Router {
	r := &Router{
		CommittedSystem:   committedSystem,
		UncommittedSystem: uncommittedSystem,
		signer:            signer,
		rpcSerial:         rpcSerial,
		mtu:               mtu,
		nodes:             make(map[NodeID]*Node),
	}
	if uncommittedSystem != nil {
		r.uncommittedQueue = outbox.NewMessageQueue("", true, false)
		r.uncommittedQueue.Threshold = outbox.Infinite
		uncommittedSystem.Subscribe(r.uncommittedQueue)
	}
	return r
}

// AddNode registers a new peer's per-node outbox state, subscribing its
// committed-redistributable queue to the system-wide committed outbox and
// giving it its own rpc outbox/queue for point-to-point delivery. If id is
// already known, its NetID is simply refreshed (peers can change transport
// address, e.g. after a reconnect, without losing their logical identity).
func (r *Router) AddNode(id NodeID, netID NetID) *Node {
	if n, ok := r.nodes[id]; ok {
		n.NetID = netID
		n.RPCQueue.Destination = netID
		n.CommittedQueue.Destination = netID
		return n
	}

	rpcEncoder, _ := hlmsg.NewEncoder(hlmsg.ClassRPC, r.signer, r.rpcSerial, r.mtu, 0)
	n := &Node{
		ID:             id,
		NetID:          netID,
		RPCOutbox:      outbox.New(rpcEncoder),
		RPCQueue:       outbox.NewMessageQueue(netID, false, false),
		CommittedQueue: outbox.NewMessageQueue(netID, false, false),
		Chain:          commitchain.New(),
	}
	// RPC traffic (ping/pong/join handshake) is never visibility-gated the
	// way committed messages are; it must flush as soon as it is queued.
	n.RPCQueue.Threshold = outbox.Infinite
	n.RPCOutbox.Subscribe(n.RPCQueue)
	if r.CommittedSystem != nil {
		r.CommittedSystem.Subscribe(n.CommittedQueue)
	}

	r.nodes[id] = n
	return n
}

// Node looks up a previously-registered peer by logical id.
func (r *Router) Node(id NodeID) (*Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

// ByNetID looks up a previously-registered peer by its last-known transport
// address.
func (r *Router) ByNetID(netID NetID) (*Node, bool) {
	for _, n := range r.nodes {
		if n.NetID == netID {
			return n, true
		}
	}
	return nil, false
}

// AllNodes returns every registered peer, keyed by logical id.
func (r *Router) AllNodes() map[NodeID]*Node { return r.nodes }

// UpdateThresholds recomputes every known node's committed-queue visibility
// threshold for the current frame.
func (r *Router) UpdateThresholds(localMinLatency pcontext.Instant, laxness pcontext.Instant, compNum, compDenom uint16, localID NodeID) {
	for id, n := range r.nodes {
		in := VisibilityInput{
			IsLocal:                       id == localID,
			HasDeny:                       n.HasDeny,
			Committed:                     n.Chain.Committed(),
			CommitLagLaxness:              laxness,
			LocalMinLatency:               localMinLatency,
			SelfCommitLagCompensationNum:   compNum,
			SelfCommitLagCompensationDenom: compDenom,
		}
		n.CommittedQueue.Threshold = VisibilityHorizon(in)
	}
}

// Flush drains every queue (system-wide and per-node) through b.
func (r *Router) Flush(b bus.Bus) error {
	if r.uncommittedQueue != nil {
		if err := r.uncommittedQueue.Update(b); err != nil {
			return err
		}
	}
	for _, n := range r.nodes {
		if err := n.RPCQueue.Update(b); err != nil {
			return err
		}
		if err := n.CommittedQueue.Update(b); err != nil {
			return err
		}
	}
	return nil
}
