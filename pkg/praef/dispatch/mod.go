package dispatch

import (
	"github.com/praefectus-go/praef/pkg/praef/meta"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/router"
)

// ModManager handles node status voting: proposing GRANT for the local node, casting
// DENY against peers marked negative, and routing received Chmod votes into
// the meta-transactor within their permissible window.
type ModManager struct {
	self     pcontext.ObjectID
	meta     *meta.MetaTransactor
	proposeGrantInterval pcontext.Instant
	voteDenyInterval     pcontext.Instant
	voteChmodOffset      pcontext.Instant

	lastGrantPropose pcontext.Instant
	deniedThisWindow map[pcontext.ObjectID]bool

	// Broadcast is called to emit a Chmod{node, effective, bit} vote.
	Broadcast func(node pcontext.ObjectID, effective pcontext.Instant, bit meta.Bit)
}

// NewModManager creates a ModManager voting on behalf of self.
func NewModManager(self pcontext.ObjectID, m *meta.MetaTransactor, proposeGrantInterval, voteDenyInterval, voteChmodOffset pcontext.Instant) *ModManager {
	return &ModManager{
		self:                 self,
		meta:                 m,
		proposeGrantInterval: proposeGrantInterval,
		voteDenyInterval:     voteDenyInterval,
		voteChmodOffset:      voteChmodOffset,
		deniedThisWindow:     make(map[pcontext.ObjectID]bool),
	}
}

// Tick runs one frame's worth of mod-manager work. negativePeers lists
// peers the commit manager currently considers negative.
func (m *ModManager) Tick(now pcontext.Instant, negativePeers []pcontext.ObjectID) {
	if m.meta.Status(m.self, now) != meta.Alive && now-m.lastGrantPropose >= m.proposeGrantInterval {
		m.propose(m.self, now+m.voteChmodOffset, meta.Grant)
		m.lastGrantPropose = now
	}

	for _, peer := range negativePeers {
		if m.meta.GetDeny(peer) != ^pcontext.Instant(0) {
			continue // already has DENY
		}
		if m.deniedThisWindow[peer] {
			continue
		}
		m.propose(peer, now+m.voteChmodOffset, meta.Deny)
		m.deniedThisWindow[peer] = true
	}
}

func (m *ModManager) propose(node pcontext.ObjectID, effective pcontext.Instant, bit meta.Bit) {
	if m.Broadcast != nil {
		m.Broadcast(node, effective, bit)
	}
	m.meta.Chmod(node, m.self, bit, effective)
}

// Receive handles an incoming Chmod vote. envelopeInstant is the instant
// carried by the envelope the vote arrived in; if it falls outside
// [effective-voteChmodOffset, effective] this is a protocol violation and
// the voter is marked negative.
func (m *ModManager) Receive(voter, target pcontext.ObjectID, bit meta.Bit, effective, envelopeInstant pcontext.Instant, negative func(pcontext.ObjectID)) {
	windowStart := effective - m.voteChmodOffset
	if envelopeInstant < windowStart || envelopeInstant > effective {
		if negative != nil {
			negative(voter)
		}
		return
	}
	m.meta.Chmod(target, voter, bit, effective)
}

// RouterDenyMirror keeps a router.Node's HasDeny/HasGrant fields in sync
// with the meta-transactor's view, so the router's visibility-horizon
// calculation sees current status. This is a direct lookup, not a guess:
// router.Node is keyed by the same logical NodeID (pcontext.ObjectID) the
// meta-transactor tracks status against.
func RouterDenyMirror(m *meta.MetaTransactor, now pcontext.Instant, r *router.Router) {
	for id, n := range r.AllNodes() {
		status := m.Status(id, now)
		n.HasDeny = status == meta.Stillborn || status == meta.Killed
		n.HasGrant = status == meta.Alive
	}
}
