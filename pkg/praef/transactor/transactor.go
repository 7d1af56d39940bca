// Package transactor implements the voting layer that sits between a
// master context (application/meta events) and a slave context (what the
// rest of the simulation actually observes): an event only appears in the
// slave while it holds either an optimistic grant or a majority of
// concurrent votes.
package transactor

import "github.com/praefectus-go/praef/pkg/praef/pcontext"

const (
	snMask       pcontext.Serial = 0x3FFFFFFF
	snNodeCount  pcontext.Serial = 0x00000000
	snEvent      pcontext.Serial = 0x40000000
	snVoteFor    pcontext.Serial = 0x80000000
	snDeadline   pcontext.Serial = 0xC0000000
	proxyObject  pcontext.ObjectID = 1
)

// NodeCount is a piecewise-constant function of instant: "from ValidAfter
// onward, the live node count is Count".
type NodeCount struct {
	ValidAfter pcontext.Instant
	Count      int
}

// journalEntry is an undo record pushed onto the LIFO journal by every
// event this package applies; rewinding pops and invokes entries whose
// instant is >= the rewind target.
type journalEntry struct {
	when    pcontext.Instant
	unapply func()
}

type wrappedEvent struct {
	delegate pcontext.Event
	key      pcontext.EventKey // == delegate.Key(), kept for proxy identity

	votes            int
	optimistic       bool
	hasBeenAccepted  bool
}

// Transactor is the one-object proxy installed in the master context that
// drives the slave context.
type Transactor struct {
	master *pcontext.Context
	slave  *pcontext.Context

	nodeCount []NodeCount // head = most recently pushed, mirrors SLIST
	journal   []journalEntry
	events    map[pcontext.EventKey]*wrappedEvent

	nextSerial pcontext.Serial
}

// New creates a Transactor driving the given slave context, and installs
// its proxy object (id 1) into a freshly created master context.
func New(slave *pcontext.Context) *Transactor {
	tx := &Transactor{
		master:    pcontext.New(),
		slave:     slave,
		nodeCount: []NodeCount{{ValidAfter: 0, Count: 1}},
		events:    make(map[pcontext.EventKey]*wrappedEvent),
	}
	tx.master.AddObject(proxyObjectAdapter{tx})
	return tx
}

// Master returns the context events are fed into.
func (tx *Transactor) Master() *pcontext.Context { return tx.master }

// Slave returns the context the rest of the system observes.
func (tx *Transactor) Slave() *pcontext.Context { return tx.slave }

// proxyObjectAdapter installs Transactor as a pcontext.Object without
// exposing Step/Rewind on the public type.
type proxyObjectAdapter struct{ tx *Transactor }

func (a proxyObjectAdapter) ID() pcontext.ObjectID { return proxyObject }
func (a proxyObjectAdapter) Step()                 {}
func (a proxyObjectAdapter) Rewind(when pcontext.Instant) {
	for len(a.tx.journal) > 0 && a.tx.journal[len(a.tx.journal)-1].when >= when {
		top := a.tx.journal[len(a.tx.journal)-1]
		a.tx.journal = a.tx.journal[:len(a.tx.journal)-1]
		top.unapply()
	}
}

func (tx *Transactor) allocSerial(prefix pcontext.Serial) pcontext.Serial {
	sn := (tx.nextSerial & snMask) | prefix
	tx.nextSerial++
	return sn
}

func (tx *Transactor) nodeCountAt(when pcontext.Instant) int {
	for _, nc := range tx.nodeCount {
		if nc.ValidAfter <= when {
			return nc.Count
		}
	}
	panic("transactor: node count list exhausted without an initial entry")
}

func (tx *Transactor) pushJournal(e journalEntry) { tx.journal = append(tx.journal, e) }

// acceptOrReject re-evaluates a wrapped event's acceptance and inserts or
// removes its proxy event from the slave context as needed.
func (tx *Transactor) acceptOrReject(w *wrappedEvent) {
	count := tx.nodeCountAt(w.key.Instant)
	shouldBeAccepted := w.optimistic || w.votes*2 >= count
	if shouldBeAccepted {
		if !w.hasBeenAccepted {
			tx.slave.AddEvent(delegateProxy{w})
			w.hasBeenAccepted = true
		}
	} else if w.hasBeenAccepted {
		tx.slave.RedactEvent(w.key.Object, w.key.Instant, w.key.Serial)
		w.hasBeenAccepted = false
	}
}

// delegateProxy is the event actually inserted into the slave context; it
// carries the wrapped event's original key and forwards Apply to the
// delegate.
type delegateProxy struct{ w *wrappedEvent }

func (p delegateProxy) Key() pcontext.EventKey { return p.w.key }
func (p delegateProxy) Apply(obj pcontext.Object, userdata interface{}) {
	p.w.delegate.Apply(obj, userdata)
}

// ---------------------------------------------------------------------
// put_event
// ---------------------------------------------------------------------

type putEvent struct {
	tx       *Transactor
	key      pcontext.EventKey
	delegate pcontext.Event
	optimistic bool
}

// PutEvent constructs a master-context event that, once applied, registers
// delegate as a wrapped event: it appears in the slave context while
// accepted (optimistic, or a majority of votes), and is removed when it
// stops being accepted. PutEvent takes ownership of delegate.
func (tx *Transactor) PutEvent(delegate pcontext.Event, optimistic bool) pcontext.Event {
	return putEvent{
		tx:         tx,
		key:        pcontext.EventKey{Instant: delegate.Key().Instant, Object: proxyObject, Serial: tx.allocSerial(snEvent)},
		delegate:   delegate,
		optimistic: optimistic,
	}
}

func (e putEvent) Key() pcontext.EventKey { return e.key }

func (e putEvent) Apply(_ pcontext.Object, _ interface{}) {
	w := &wrappedEvent{
		delegate:   e.delegate,
		key:        e.delegate.Key(),
		optimistic: e.optimistic,
	}
	e.tx.events[w.key] = w
	e.tx.acceptOrReject(w)
	e.tx.pushJournal(journalEntry{
		when: e.key.Instant,
		unapply: func() {
			if w.hasBeenAccepted {
				e.tx.slave.RedactEvent(w.key.Object, w.key.Instant, w.key.Serial)
			}
			delete(e.tx.events, w.key)
		},
	})
}

// ---------------------------------------------------------------------
// node_count_delta
// ---------------------------------------------------------------------

type nodeCountDeltaEvent struct {
	tx    *Transactor
	key   pcontext.EventKey
	delta int
}

// NodeCountDelta records that, from `when` onward, the live node count
// changes by delta relative to whatever it was previously.
func (tx *Transactor) NodeCountDelta(delta int, when pcontext.Instant) pcontext.Event {
	return nodeCountDeltaEvent{
		tx:    tx,
		key:   pcontext.EventKey{Instant: when, Object: proxyObject, Serial: tx.allocSerial(snNodeCount)},
		delta: delta,
	}
}

func (e nodeCountDeltaEvent) Key() pcontext.EventKey { return e.key }

func (e nodeCountDeltaEvent) Apply(_ pcontext.Object, _ interface{}) {
	prev := e.tx.nodeCount[0].Count
	entry := NodeCount{ValidAfter: e.key.Instant, Count: prev + e.delta}
	e.tx.nodeCount = append([]NodeCount{entry}, e.tx.nodeCount...)
	e.tx.pushJournal(journalEntry{
		when: e.key.Instant,
		unapply: func() {
			e.tx.nodeCount = e.tx.nodeCount[1:]
		},
	})
}

// ---------------------------------------------------------------------
// votefor
// ---------------------------------------------------------------------

type voteForEvent struct {
	tx     *Transactor
	key    pcontext.EventKey
	target pcontext.EventKey
}

// VoteFor casts one vote for the wrapped event at (object, instant, serial).
func (tx *Transactor) VoteFor(object pcontext.ObjectID, instant pcontext.Instant, serial pcontext.Serial) pcontext.Event {
	return voteForEvent{
		tx:     tx,
		key:    pcontext.EventKey{Instant: instant, Object: proxyObject, Serial: tx.allocSerial(snVoteFor)},
		target: pcontext.EventKey{Instant: instant, Object: object, Serial: serial},
	}
}

func (e voteForEvent) Key() pcontext.EventKey { return e.key }

func (e voteForEvent) Apply(_ pcontext.Object, _ interface{}) {
	w, ok := e.tx.events[e.target]
	if !ok {
		return
	}
	w.votes++
	e.tx.acceptOrReject(w)
	e.tx.pushJournal(journalEntry{
		when: e.key.Instant,
		unapply: func() {
			w.votes--
			e.tx.acceptOrReject(w)
		},
	})
}

// ---------------------------------------------------------------------
// deadline
// ---------------------------------------------------------------------

type deadlineEvent struct {
	tx     *Transactor
	key    pcontext.EventKey
	target pcontext.EventKey
}

// Deadline clears the optimistic flag on the wrapped event targeted by the
// given event's key, at instant `at`.
func (tx *Transactor) Deadline(target pcontext.Event, at pcontext.Instant) pcontext.Event {
	return deadlineEvent{
		tx:     tx,
		key:    pcontext.EventKey{Instant: at, Object: proxyObject, Serial: tx.allocSerial(snDeadline)},
		target: target.Key(),
	}
}

func (e deadlineEvent) Key() pcontext.EventKey { return e.key }

func (e deadlineEvent) Apply(_ pcontext.Object, _ interface{}) {
	w, ok := e.tx.events[e.target]
	if !ok {
		return
	}
	w.optimistic = false
	e.tx.acceptOrReject(w)
	e.tx.pushJournal(journalEntry{
		when: e.key.Instant,
		unapply: func() {
			w.optimistic = true
			e.tx.acceptOrReject(w)
		},
	})
}
