// Package meta implements the meta-transactor: a layer above the
// transactor that gates each node's events by that node's GRANT/DENY
// status, and emits node-count-delta events to the transactor as nodes'
// statuses change.
package meta

import "github.com/praefectus-go/praef/pkg/praef/pcontext"

// Bit indexes a node's two monotone status bits.
type Bit int

const (
	Grant Bit = iota
	Deny
)

// notSet is the sentinel "~0" value meaning a bit has never been set.
const notSet = pcontext.Instant(^uint32(0))

// Status is the derived two-bit node status.
type Status int

const (
	Unborn Status = iota
	Alive
	Stillborn
	Killed
)

// Adapter is the small interface the meta-transactor uses to talk to the
// layer below it (ordinarily a *transactor.Transactor, via TransactorAdapter
// in this package's sibling).
type Adapter interface {
	// Accept hands an event down to the transactor's master context.
	Accept(e pcontext.Event)
	// Redact removes a previously-accepted event from the transactor's
	// master context.
	Redact(e pcontext.Event)
	// NodeCountDelta asks the transactor to build a node-count-delta event;
	// the caller is responsible for Accept-ing it.
	NodeCountDelta(sign int, when pcontext.Instant) pcontext.Event
}

type nodeEvent struct {
	instant         pcontext.Instant
	delegate        pcontext.Event
	hasBeenAccepted bool
}

type node struct {
	id            pcontext.ObjectID
	bitsSet       [2]pcontext.Instant
	events        []*nodeEvent
	countDeltaRef [2]pcontext.Event
}

type chmodKey struct {
	target pcontext.ObjectID
	when   pcontext.Instant
	bit    Bit
}

type chmodState struct {
	key    chmodKey
	voters map[pcontext.ObjectID]bool
}

// MetaTransactor gates application events by their originating node's
// GRANT/DENY status and drives node-count-delta events down to the
// transactor as that status changes.
//
// It keeps its own logical/applied instant pair, mirroring pcontext.Context,
// so that a vote arriving for an already-processed instant can roll the
// applied state back and replay forward deterministically.
type MetaTransactor struct {
	adapter   Adapter
	bootstrap pcontext.ObjectID

	nodes           map[pcontext.ObjectID]*node
	chmods          map[chmodKey]*chmodState
	chmodsByInstant map[pcontext.Instant][]chmodKey

	logicalNow pcontext.Instant
	appliedNow pcontext.Instant
}

// New creates a MetaTransactor talking to adapter, with the given bootstrap
// node id already registered and pre-granted at instant 0.
func New(adapter Adapter, bootstrap pcontext.ObjectID) *MetaTransactor {
	m := &MetaTransactor{
		adapter:         adapter,
		bootstrap:       bootstrap,
		nodes:           make(map[pcontext.ObjectID]*node),
		chmods:          make(map[chmodKey]*chmodState),
		chmodsByInstant: make(map[pcontext.Instant][]chmodKey),
	}
	m.AddNode(bootstrap)
	m.nodes[bootstrap].bitsSet[Grant] = 0
	return m
}

// AddNode registers a new node with status UNBORN. Returns false if the
// node already exists.
func (m *MetaTransactor) AddNode(id pcontext.ObjectID) bool {
	if _, ok := m.nodes[id]; ok {
		return false
	}
	m.nodes[id] = &node{id: id, bitsSet: [2]pcontext.Instant{notSet, notSet}}
	return true
}

// aliveAt reports whether id is ALIVE at the given instant: its GRANT bit
// was set strictly before `at`, and its DENY bit (if ever set) is not yet
// reached.
func (m *MetaTransactor) aliveAt(id pcontext.ObjectID, at pcontext.Instant) bool {
	n, ok := m.nodes[id]
	if !ok {
		return false
	}
	return n.bitsSet[Grant] < at && at <= n.bitsSet[Deny]
}

// Status returns the derived UNBORN/ALIVE/STILLBORN/KILLED status of id at
// instant `at`, for reporting purposes.
func (m *MetaTransactor) Status(id pcontext.ObjectID, at pcontext.Instant) Status {
	n, ok := m.nodes[id]
	if !ok {
		return Unborn
	}
	grant := n.bitsSet[Grant] < at
	deny := n.bitsSet[Deny] < at
	switch {
	case grant && !deny:
		return Alive
	case !grant && deny:
		return Stillborn
	case grant && deny:
		return Killed
	default:
		return Unborn
	}
}

// LiveCount returns the number of nodes currently ALIVE at instant at, used
// by the join protocol's MaxLiveNodes admission check.
func (m *MetaTransactor) LiveCount(at pcontext.Instant) int {
	n := 0
	for id := range m.nodes {
		if m.aliveAt(id, at) {
			n++
		}
	}
	return n
}

// GetGrant / GetDeny expose the instant at which a node gained (or will
// gain) the respective bit; notSet is returned if it never has.
func (m *MetaTransactor) GetGrant(id pcontext.ObjectID) pcontext.Instant { return m.bitOf(id, Grant) }
func (m *MetaTransactor) GetDeny(id pcontext.ObjectID) pcontext.Instant  { return m.bitOf(id, Deny) }

func (m *MetaTransactor) bitOf(id pcontext.ObjectID, bit Bit) pcontext.Instant {
	n, ok := m.nodes[id]
	if !ok {
		return notSet
	}
	return n.bitsSet[bit]
}

// AddEvent wraps delegate (already a transactor-level event) for node_id.
// If delegate's instant is already covered and node_id was ALIVE at that
// instant, it is forwarded immediately. Returns false if node_id does not
// exist.
func (m *MetaTransactor) AddEvent(nodeID pcontext.ObjectID, delegate pcontext.Event) bool {
	n, ok := m.nodes[nodeID]
	if !ok {
		return false
	}

	ne := &nodeEvent{instant: delegate.Key().Instant, delegate: delegate}
	n.events = insertNodeEvent(n.events, ne)

	if ne.instant <= m.appliedNow && m.aliveAt(nodeID, ne.instant) {
		m.adapter.Accept(delegate)
		ne.hasBeenAccepted = true
	}
	return true
}

func insertNodeEvent(events []*nodeEvent, ne *nodeEvent) []*nodeEvent {
	i := len(events)
	for i > 0 && events[i-1].instant > ne.instant {
		i--
	}
	events = append(events, nil)
	copy(events[i+1:], events[i:])
	events[i] = ne
	return events
}

// Chmod registers target's voter voting for mask (exactly Grant or Deny) to
// take effect at instant when. Re-evaluates every event and bit that might
// depend on the new vote.
func (m *MetaTransactor) Chmod(target, voter pcontext.ObjectID, bit Bit, when pcontext.Instant) bool {
	if _, ok := m.nodes[target]; !ok {
		return false
	}
	if _, ok := m.nodes[voter]; !ok {
		return false
	}

	key := chmodKey{target: target, when: when, bit: bit}
	cs, ok := m.chmods[key]
	if !ok {
		cs = &chmodState{key: key, voters: make(map[pcontext.ObjectID]bool)}
		m.chmods[key] = cs
		m.chmodsByInstant[when] = append(m.chmodsByInstant[when], key)
	}
	if cs.voters[voter] {
		return true
	}
	cs.voters[voter] = true

	m.rewindTo(when)
	return true
}

// HasChmod reports whether voter has already cast this exact vote.
func (m *MetaTransactor) HasChmod(target, voter pcontext.ObjectID, bit Bit, when pcontext.Instant) bool {
	cs, ok := m.chmods[chmodKey{target: target, when: when, bit: bit}]
	return ok && cs.voters[voter]
}

// Advance moves the meta-transactor forward by delta ticks, processing
// chmod applications and node-event accept/redact transitions instant by
// instant.
func (m *MetaTransactor) Advance(delta pcontext.Instant) {
	m.logicalNow += delta
	m.catchUp()
}

func (m *MetaTransactor) catchUp() {
	for m.appliedNow < m.logicalNow {
		m.processInstant(m.appliedNow)
		m.appliedNow++
	}
}

func (m *MetaTransactor) processInstant(i pcontext.Instant) {
	for _, key := range m.chmodsByInstant[i] {
		m.applyChmod(key)
	}

	for _, n := range m.nodes {
		alive := m.aliveAt(n.id, i)
		for _, ne := range n.events {
			if ne.instant != i {
				continue
			}
			if alive != ne.hasBeenAccepted {
				if alive {
					m.adapter.Accept(ne.delegate)
				} else {
					m.adapter.Redact(ne.delegate)
				}
				ne.hasBeenAccepted = alive
			}
		}
	}
}

func (m *MetaTransactor) applyChmod(key chmodKey) {
	cs := m.chmods[key]
	n := m.nodes[key.target]

	voters := 0
	for v := range cs.voters {
		if m.aliveAt(v, key.when) {
			voters++
		}
	}
	eligible := 0
	for id := range m.nodes {
		if m.aliveAt(id, key.when) {
			eligible++
		}
	}
	if voters*2 < eligible {
		return
	}

	if n.bitsSet[key.bit] > key.when {
		delta := 1
		if key.bit == Deny {
			delta = -1
		}
		ncd := m.adapter.NodeCountDelta(delta, key.when)
		m.adapter.Accept(ncd)
		n.countDeltaRef[key.bit] = ncd
	}
	if key.when < n.bitsSet[key.bit] {
		n.bitsSet[key.bit] = key.when
	}
}

// rewindTo resets the meta-transactor's applied instant back to t (if t is
// in the past), undoing bit assignments and event forwarding that happened
// at or after t, then replays forward to the current logical instant.
func (m *MetaTransactor) rewindTo(t pcontext.Instant) {
	if t >= m.appliedNow {
		return
	}

	for _, n := range m.nodes {
		for _, bit := range [2]Bit{Grant, Deny} {
			if n.bitsSet[bit] != notSet && n.bitsSet[bit] >= t {
				if ref := n.countDeltaRef[bit]; ref != nil {
					m.adapter.Redact(ref)
					n.countDeltaRef[bit] = nil
				}
				n.bitsSet[bit] = notSet
			}
		}
		for _, ne := range n.events {
			if ne.instant >= t && ne.hasBeenAccepted {
				m.adapter.Redact(ne.delegate)
				ne.hasBeenAccepted = false
			}
		}
	}

	if boot, ok := m.nodes[m.bootstrap]; ok {
		boot.bitsSet[Grant] = 0
	}

	m.appliedNow = t
	m.catchUp()
}
