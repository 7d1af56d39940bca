// Package dispatch implements the inbound message dispatcher: for each
// incoming envelope, validate structurally, identify the origin, update its clock
// sample, class-dispatch, and invoke a per-kind sub-message handler.
package dispatch

import (
	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/internal/praeflog"
	"github.com/praefectus-go/praef/pkg/praef/clock"
	"github.com/praefectus-go/praef/pkg/praef/commitchain"
	"github.com/praefectus-go/praef/pkg/praef/hlmsg"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/signator"
)

// Handler processes one decoded segment, given the envelope it arrived in,
// the bus address it arrived from, and the NodeID its signature resolved to
// (0 if unknown).
type Handler func(env hlmsg.Envelope, from bus.NetID, origin signator.NodeID, seg hlmsg.Segment)

// Dispatcher owns the per-kind handler table and the shared verifier used
// to identify envelope origins.
type Dispatcher struct {
	log      praeflog.Logger
	verifier signator.Verifier
	localID  signator.NodeID
	sigLen   int

	handlers map[hlmsg.Kind]Handler

	// ClockSink, when non-nil, is fed (origin, envelope.Instant, latency)
	// whenever an envelope from a known peer is dispatched.
	ClockSink func(origin signator.NodeID, instant, latency clock.Instant)

	// Negative is called to mark a peer's disposition negative on a
	// protocol violation (chmod outside its permissible window, etc.).
	Negative func(origin signator.NodeID)

	// Reveal is called once per committed-class envelope (not per
	// segment), feeding the commit-chain the hash of the on-wire message so
	// its declared/revealed hashes can be cross-checked (§4.9).
	Reveal func(origin signator.NodeID, instant pcontext.Instant, hash commitchain.Hash)
}

// New creates a Dispatcher. sigLen is the fixed signature size the verifier
// produces, used to split the envelope header from its signed body.
func New(log praeflog.Logger, verifier signator.Verifier, localID signator.NodeID, sigLen int) *Dispatcher {
	return &Dispatcher{
		log:      log,
		verifier: verifier,
		localID:  localID,
		sigLen:   sigLen,
		handlers: make(map[hlmsg.Kind]Handler),
	}
}

// On registers the handler invoked for every segment of the given kind.
func (d *Dispatcher) On(kind hlmsg.Kind, h Handler) { d.handlers[kind] = h }

// SetLocalID updates the id Dispatch compares envelope origins against to
// drop self-originated loopback traffic. Used once a joining node learns
// its own id partway through its lifetime.
func (d *Dispatcher) SetLocalID(id signator.NodeID) { d.localID = id }

// Dispatch validates and processes one incoming datagram. Malformed input
// (failing structural validation) is silently dropped.
func (d *Dispatcher) Dispatch(datagram []byte, from bus.NetID) {
	env, err := hlmsg.Decode(datagram, d.sigLen, nil)
	if err != nil {
		return // malformed input: silently discarded
	}

	signedBody := datagram[2+d.sigLen:]
	origin := d.verifier.Verify(env.Hint, env.Signature, signedBody)
	if origin != 0 && origin == d.localID {
		return // drop messages we somehow received from ourselves
	}

	if origin != 0 && d.ClockSink != nil {
		d.ClockSink(origin, clock.Instant(env.Instant), 0)
	}

	if origin != 0 && env.Class == hlmsg.ClassCommitted && d.Reveal != nil {
		d.Reveal(origin, env.Instant, commitchain.HashMessage(datagram))
	}

	for _, seg := range env.Segments {
		h, ok := d.handlers[seg.Kind]
		if !ok {
			continue
		}
		h(env, from, origin, seg)
	}
}
