package dispatch

import (
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/router"
)

// PingState tracks one peer's in-flight ping and round-trip latency
// samples for RouteManager.
type PingState struct {
	HasRoute     bool
	LastPing     pcontext.Instant
	LastPong     pcontext.Instant
	InFlightID   uint64
	InFlightSent pcontext.Instant

	samples    [8]pcontext.Instant
	sampleHead int
	sampleN    int
	MeanLatency pcontext.Instant
}

func (p *PingState) recordSample(rtt pcontext.Instant) {
	p.samples[p.sampleHead] = rtt
	p.sampleHead = (p.sampleHead + 1) % len(p.samples)
	if p.sampleN < len(p.samples) {
		p.sampleN++
	}
	var sum pcontext.Instant
	for i := 0; i < p.sampleN; i++ {
		sum += p.samples[i]
	}
	p.MeanLatency = sum / pcontext.Instant(p.sampleN)
}

// RouteManager handles periodic route (re-)announcement and ping/pong
// liveness tracking.
type RouteManager struct {
	ungrantedInterval pcontext.Instant
	grantedInterval   pcontext.Instant
	pingInterval      pcontext.Instant
	maxPongSilence    pcontext.Instant

	states map[router.NodeID]*PingState

	// SendPing/AnnounceRoute are invoked with the peer to contact.
	SendPing      func(peer router.NodeID, pingID uint64)
	AnnounceRoute func(peer router.NodeID)

	nextPingID uint64
}

// NewRouteManager creates a RouteManager with the given tunables.
func NewRouteManager(ungrantedInterval, grantedInterval, pingInterval, maxPongSilence pcontext.Instant) *RouteManager {
	return &RouteManager{
		ungrantedInterval: ungrantedInterval,
		grantedInterval:   grantedInterval,
		pingInterval:       pingInterval,
		maxPongSilence:     maxPongSilence,
		states:             make(map[router.NodeID]*PingState),
	}
}

func (rm *RouteManager) stateFor(peer router.NodeID) *PingState {
	s, ok := rm.states[peer]
	if !ok {
		s = &PingState{}
		rm.states[peer] = s
	}
	return s
}

// Tick runs one frame's worth of route-manager work for peer, which holds
// GRANT iff granted.
func (rm *RouteManager) Tick(now pcontext.Instant, peer router.NodeID, granted bool) {
	s := rm.stateFor(peer)

	interval := rm.ungrantedInterval
	if granted {
		interval = rm.grantedInterval
	}
	if now-s.LastPing >= interval && rm.AnnounceRoute != nil {
		rm.AnnounceRoute(peer)
	}

	if now-s.LastPing >= rm.pingInterval {
		rm.nextPingID++
		s.InFlightID = rm.nextPingID
		s.InFlightSent = now
		s.LastPing = now
		if rm.SendPing != nil {
			rm.SendPing(peer, s.InFlightID)
		}
	}

	if s.HasRoute && now-s.LastPong > rm.maxPongSilence {
		s.HasRoute = false
	}
}

// MinLatency returns one-quarter of the smallest mean round-trip latency
// observed across peers currently holding a route, used as the router's
// self-commit-lag compensation input; zero if no peer has a route yet.
func (rm *RouteManager) MinLatency() pcontext.Instant {
	var min pcontext.Instant
	found := false
	for _, s := range rm.states {
		if !s.HasRoute {
			continue
		}
		if !found || s.MeanLatency < min {
			min = s.MeanLatency
			found = true
		}
	}
	return min / 4
}

// ReceivePong records a round-trip sample for a matching in-flight ping.
func (rm *RouteManager) ReceivePong(peer router.NodeID, id uint64, now pcontext.Instant) {
	s := rm.stateFor(peer)
	if id != s.InFlightID {
		return
	}
	s.LastPong = now
	s.HasRoute = true
	s.recordSample(now - s.InFlightSent)
}
