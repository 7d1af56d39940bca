package dispatch

import (
	"github.com/praefectus-go/praef/pkg/praef/commitchain"
	"github.com/praefectus-go/praef/pkg/praef/hashtree"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/router"
)

// CommitManager ticks the commit cycle: every commit_interval ticks it builds and
// broadcasts a commit hash for the messages accumulated since the last
// commit, and every frame it checks each peer's commit-chain health.
type CommitManager struct {
	interval   pcontext.Instant
	maxLag     pcontext.Instant
	maxValLag  pcontext.Instant
	lastCommit pcontext.Instant

	local *hashtree.Tree
	router *router.Router

	// Broadcast is called with the [start, end) range and hash to declare.
	Broadcast func(start, end pcontext.Instant, hash commitchain.Hash)

	// Negative is called when a peer's commit-chain fails a health check.
	Negative func(peer router.NodeID)
}

// NewCommitManager creates a CommitManager building commits from local's
// hash-tree of sent/received messages and monitoring peers through r.
func NewCommitManager(interval, maxLag, maxValidatedLag pcontext.Instant, local *hashtree.Tree, r *router.Router) *CommitManager {
	return &CommitManager{interval: interval, maxLag: maxLag, maxValLag: maxValidatedLag, local: local, router: r}
}

// Tick runs one frame's worth of commit-manager work at the given monotime.
func (m *CommitManager) Tick(monotime pcontext.Instant) {
	if monotime-m.lastCommit >= m.interval {
		m.commit(monotime)
	}
	m.checkPeers(monotime)
}

func (m *CommitManager) commit(monotime pcontext.Instant) {
	start := m.lastCommit
	end := monotime

	hashes := m.local.GetRange(hashtree.Hash{}, 0, 0, 1<<20)
	var revealed []commitchain.Hash
	for _, h := range hashes {
		revealed = append(revealed, commitchain.Hash(h))
	}
	chainHash := commitchain.Hash{}
	if len(revealed) > 0 {
		chainHash = revealed[len(revealed)-1]
	}

	if m.Broadcast != nil {
		m.Broadcast(start, end, chainHash)
	}
	m.lastCommit = end
}

func (m *CommitManager) checkPeers(monotime pcontext.Instant) {
	for id, n := range m.router.AllNodes() {
		if n.Chain.IsDead() {
			m.markNegative(id)
			continue
		}
		if n.HasGrant && monotime-n.Chain.Committed() > m.maxLag {
			m.markNegative(id)
			continue
		}
		if n.HasGrant && monotime-n.Chain.Validated() > m.maxValLag {
			m.markNegative(id)
		}
	}
}

func (m *CommitManager) markNegative(id router.NodeID) {
	if m.Negative != nil {
		m.Negative(id)
	}
}

// ReceiveCommit records a peer's declared commit hash for [start, end),
// registering it against that peer's commit-chain so future Reveal calls
// (fed by the dispatcher for every committed-class envelope from that peer,
// including this one) can be checked for consistency.
func (m *CommitManager) ReceiveCommit(peer router.NodeID, start, end pcontext.Instant, hash commitchain.Hash) {
	n, ok := m.router.Node(peer)
	if !ok {
		return
	}
	n.Chain.Commit(start, end, hash)
}

// Reveal feeds one message's hash, seen at instant, into peer's commit-chain.
// It is the dispatch.Dispatcher.Reveal hook's entry point into the commit
// manager.
func (m *CommitManager) Reveal(peer router.NodeID, instant pcontext.Instant, hash commitchain.Hash) {
	n, ok := m.router.Node(peer)
	if !ok {
		return
	}
	n.Chain.Reveal(instant, hash)
}
