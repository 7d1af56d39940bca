package system

import (
	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/pkg/praef/clock"
	"github.com/praefectus-go/praef/pkg/praef/commitchain"
	"github.com/praefectus-go/praef/pkg/praef/hlmsg"
	"github.com/praefectus-go/praef/pkg/praef/meta"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/router"
	"github.com/praefectus-go/praef/pkg/praef/signator"
	"github.com/praefectus-go/praef/pkg/praef/wire"
)

// wireHandlers registers every dispatcher handler and every manager
// callback this System drives. It is called once, at the end of both
// NewBootstrap and NewJoiner, after every subsystem it references has
// already been constructed.
func (s *System) wireHandlers() {
	s.disp.ClockSink = func(origin signator.NodeID, instant, latency clock.Instant) {
		s.clock.Sample(clock.NodeID(origin), instant, latency)
	}
	s.disp.Reveal = func(origin signator.NodeID, instant pcontext.Instant, hash commitchain.Hash) {
		s.commitMgr.Reveal(router.NodeID(origin), instant, hash)
	}

	s.commitMgr.Broadcast = func(start, end pcontext.Instant, hash commitchain.Hash) {
		payload := wire.Commit{Start: start, End: end, Hash: hash}.Encode()
		if err := s.uncommittedOut.Singleton(s.clock.Monotime, hlmsg.KindCommit, payload); err != nil {
			s.log.Errorf("system: commit broadcast: %v", err)
		}
	}
	s.commitMgr.Negative = s.markNegative

	s.modMgr.Broadcast = func(node pcontext.ObjectID, effective pcontext.Instant, bit meta.Bit) {
		payload := wire.Chmod{Target: node, Effective: effective, Bit: bit}.Encode()
		if err := s.committedOut.Singleton(s.clock.Monotime, hlmsg.KindChmod, payload); err != nil {
			s.log.Errorf("system: chmod broadcast: %v", err)
		}
	}

	s.routeMgr.SendPing = func(peer router.NodeID, pingID uint64) {
		n, ok := s.router.Node(peer)
		if !ok {
			return
		}
		if err := n.RPCOutbox.Singleton(s.clock.Monotime, hlmsg.KindPing, wire.Ping{ID: pingID}.Encode()); err != nil {
			s.log.Errorf("system: ping: %v", err)
		}
	}
	s.routeMgr.AnnounceRoute = func(pcontext.ObjectID) {
		if err := s.uncommittedOut.Singleton(s.clock.Monotime, hlmsg.KindRoute, wire.Route{}.Encode()); err != nil {
			s.log.Errorf("system: route announce: %v", err)
		}
	}

	s.join.SendGetNetworkInfo = func(contact string, req wire.GetNetworkInfo) {
		s.sendAdhocRPC(bus.NetID(contact), hlmsg.KindGetNetworkInfo, req.Encode())
	}
	s.join.SendJoinRequest = func(contact string, req wire.JoinRequest) {
		s.sendAdhocRPC(bus.NetID(contact), hlmsg.KindJoinRequest, req.Encode())
	}

	s.disp.On(hlmsg.KindPing, s.onPing)
	s.disp.On(hlmsg.KindPong, s.onPong)
	s.disp.On(hlmsg.KindRoute, s.onRoute)
	s.disp.On(hlmsg.KindChmod, s.onChmod)
	s.disp.On(hlmsg.KindCommit, s.onCommit)
	s.disp.On(hlmsg.KindVote, s.onVote)
	s.disp.On(hlmsg.KindAppEvent, s.onAppEvent)
	s.disp.On(hlmsg.KindGetNetworkInfo, s.onGetNetworkInfo)
	s.disp.On(hlmsg.KindNetworkInfo, s.onNetworkInfo)
	s.disp.On(hlmsg.KindJoinRequest, s.onJoinRequest)
	s.disp.On(hlmsg.KindEndorsement, s.onEndorsement)
}

// sendAdhocRPC signs and unicasts one standalone rpc-class envelope to a peer
// not yet registered in the router (the join handshake's earliest steps,
// before either side knows the other's logical NodeID). It establishes a bus
// route to the destination first since the underlying bus requires one.
func (s *System) sendAdhocRPC(to bus.NetID, kind hlmsg.Kind, payload []byte) {
	s.bus.CreateRoute(to)
	var out [][]byte
	if err := s.adhocEncoder.Singleton(s.clock.Monotime, kind, payload, &out); err != nil {
		s.log.Errorf("system: adhoc rpc encode: %v", err)
		return
	}
	for _, envelope := range out {
		if err := s.bus.Unicast(to, envelope); err != nil {
			s.log.Errorf("system: adhoc rpc unicast to %s: %v", to, err)
		}
	}
}

func (s *System) onPing(_ hlmsg.Envelope, from bus.NetID, origin signator.NodeID, seg hlmsg.Segment) {
	ping, ok := wire.DecodePing(seg.Payload)
	if !ok {
		return
	}
	pong := wire.Pong{ID: ping.ID}.Encode()
	if n, ok := s.router.Node(pcontext.ObjectID(origin)); ok {
		if err := n.RPCOutbox.Singleton(s.clock.Monotime, hlmsg.KindPong, pong); err != nil {
			s.log.Errorf("system: pong: %v", err)
		}
		return
	}
	s.sendAdhocRPC(from, hlmsg.KindPong, pong)
}

func (s *System) onPong(_ hlmsg.Envelope, _ bus.NetID, origin signator.NodeID, seg hlmsg.Segment) {
	pong, ok := wire.DecodePong(seg.Payload)
	if !ok || origin == 0 {
		return
	}
	s.routeMgr.ReceivePong(router.NodeID(origin), pong.ID, s.clock.Monotime)
}

// onRoute registers (or refreshes) the sender of a route announcement in the
// router, learning both its logical NodeID (from the envelope's signature)
// and its current transport address.
func (s *System) onRoute(_ hlmsg.Envelope, from bus.NetID, origin signator.NodeID, _ hlmsg.Segment) {
	if origin == 0 {
		return
	}
	s.bus.CreateRoute(from)
	s.router.AddNode(router.NodeID(origin), from)
}

func (s *System) onChmod(env hlmsg.Envelope, _ bus.NetID, origin signator.NodeID, seg hlmsg.Segment) {
	if origin == 0 {
		return
	}
	chmod, ok := wire.DecodeChmod(seg.Payload)
	if !ok {
		return
	}
	s.modMgr.Receive(pcontext.ObjectID(origin), chmod.Target, chmod.Bit, chmod.Effective, env.Instant, s.markNegative)
}

func (s *System) onCommit(_ hlmsg.Envelope, _ bus.NetID, origin signator.NodeID, seg hlmsg.Segment) {
	if origin == 0 {
		return
	}
	c, ok := wire.DecodeCommit(seg.Payload)
	if !ok {
		return
	}
	s.commitMgr.ReceiveCommit(router.NodeID(origin), c.Start, c.End, c.Hash)
}

func (s *System) onVote(_ hlmsg.Envelope, _ bus.NetID, origin signator.NodeID, seg hlmsg.Segment) {
	if origin == 0 {
		return
	}
	v, ok := wire.DecodeVote(seg.Payload)
	if !ok {
		return
	}
	ev := s.tx.VoteFor(v.Object, v.Instant, v.Serial)
	s.meta.AddEvent(pcontext.ObjectID(origin), ev)
}

// onAppEvent forwards an application-defined event into the transactor, gated
// by its originating node's GRANT/DENY status. Applications that never
// register Callbacks.DecodeEvent simply never see KindAppEvent traffic.
func (s *System) onAppEvent(_ hlmsg.Envelope, _ bus.NetID, origin signator.NodeID, seg hlmsg.Segment) {
	if origin == 0 || s.cb == nil || s.cb.DecodeEvent == nil {
		return
	}
	delegate, ok := s.cb.DecodeEvent(seg.Payload)
	if !ok {
		return
	}
	wrapped := s.tx.PutEvent(delegate, false)
	s.meta.AddEvent(pcontext.ObjectID(origin), wrapped)
}

func (s *System) onGetNetworkInfo(_ hlmsg.Envelope, from bus.NetID, _ signator.NodeID, seg hlmsg.Segment) {
	req, ok := wire.DecodeGetNetworkInfo(seg.Payload)
	if !ok {
		return
	}
	info := s.join.ReceiveGetNetworkInfo(string(s.selfNetID))
	to := bus.NetID(req.RetAddr)
	if to == "" {
		to = from
	}
	s.sendAdhocRPC(to, hlmsg.KindNetworkInfo, info.Encode())
}

func (s *System) onNetworkInfo(_ hlmsg.Envelope, _ bus.NetID, _ signator.NodeID, seg hlmsg.Segment) {
	info, ok := wire.DecodeNetworkInfo(seg.Payload)
	if !ok {
		return
	}
	s.join.ReceiveNetworkInfo(info)
}

// onJoinRequest answers a join request addressed to this node, provided this
// node itself already holds a live id; the generated Endorsement is
// broadcast uncommitted so every peer, including the requester via loopback,
// registers the new node identically.
func (s *System) onJoinRequest(_ hlmsg.Envelope, _ bus.NetID, _ signator.NodeID, seg hlmsg.Segment) {
	if s.localID == 0 {
		return
	}
	req, ok := wire.DecodeJoinRequest(seg.Payload)
	if !ok {
		return
	}
	now := s.clock.Monotime
	endorsement, accepted := s.join.ReceiveJoinRequest(now, req, s.meta.LiveCount(now))
	if !accepted {
		return
	}
	if err := s.uncommittedOut.Singleton(now, hlmsg.KindEndorsement, endorsement.Encode()); err != nil {
		s.log.Errorf("system: endorsement broadcast: %v", err)
	}
}

func (s *System) onEndorsement(_ hlmsg.Envelope, _ bus.NetID, _ signator.NodeID, seg hlmsg.Segment) {
	e, ok := wire.DecodeEndorsement(seg.Payload)
	if !ok {
		return
	}
	now := s.clock.Monotime
	isLive := func(id pcontext.ObjectID) bool { return s.meta.Status(id, now) == meta.Alive }
	s.join.ReceiveEndorsement(e, isLive)
}
