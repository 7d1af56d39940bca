package transactor

import (
	"testing"

	"github.com/praefectus-go/praef/pkg/praef/pcontext"
)

type appliedObject struct {
	id      pcontext.ObjectID
	applied []string
}

func (o *appliedObject) ID() pcontext.ObjectID    { return o.id }
func (o *appliedObject) Step()                    {}
func (o *appliedObject) Rewind(pcontext.Instant)  {}

type labeledEvent struct {
	key   pcontext.EventKey
	label string
	sink  *[]string
}

func (e labeledEvent) Key() pcontext.EventKey { return e.key }
func (e labeledEvent) Apply(pcontext.Object, interface{}) {
	*e.sink = append(*e.sink, e.label)
}

func setup(t *testing.T) (*Transactor, *appliedObject) {
	t.Helper()
	slave := pcontext.New()
	obj := &appliedObject{id: 42}
	slave.AddObject(obj)
	tx := New(slave)
	return tx, obj
}

func inSlave(slave *pcontext.Context, key pcontext.EventKey) bool {
	return slave.Event(key) != nil
}

func TestPutEvent_NonOptimisticRequiresMajorityVotes(t *testing.T) {
	tx, obj := setup(t)
	var sink []string
	delegateKey := pcontext.EventKey{Instant: 10, Object: obj.id, Serial: 0}
	delegate := labeledEvent{key: delegateKey, label: "d", sink: &sink}

	wrapped := tx.PutEvent(delegate, false)
	tx.master.AddEvent(wrapped)
	// node count defaults to 1, so a single vote (2*1 >= 1) suffices.
	tx.master.AddEvent(tx.NodeCountDelta(2, 0)) // count becomes 3 -> need 2 votes
	tx.master.Advance(11, nil) // past instant 10, so the wrapped event and later votes are applied

	if inSlave(tx.slave, delegateKey) {
		t.Fatalf("event should not be accepted before any votes")
	}

	v1 := tx.VoteFor(obj.id, 10, 0)
	tx.master.AddEvent(v1)
	tx.master.Advance(0, nil)
	if inSlave(tx.slave, delegateKey) {
		t.Fatalf("single vote should not satisfy majority of 3")
	}

	v2 := tx.VoteFor(obj.id, 10, 0)
	tx.master.AddEvent(v2)
	tx.master.Advance(0, nil)
	if !inSlave(tx.slave, delegateKey) {
		t.Fatalf("two votes out of three nodes should satisfy majority")
	}
}

func TestPutEvent_OptimisticThenDeadline(t *testing.T) {
	tx, obj := setup(t)
	var sink []string
	delegateKey := pcontext.EventKey{Instant: 5, Object: obj.id, Serial: 0}
	delegate := labeledEvent{key: delegateKey, label: "d", sink: &sink}

	wrapped := tx.PutEvent(delegate, true)
	tx.master.AddEvent(wrapped)
	tx.master.Advance(6, nil)
	if !inSlave(tx.slave, delegateKey) {
		t.Fatalf("optimistic event should appear immediately")
	}

	deadline := tx.Deadline(wrapped, 8)
	tx.master.AddEvent(deadline)
	tx.master.Advance(0, nil)

	if !inSlave(tx.slave, delegateKey) {
		t.Fatalf("event should still appear before the deadline takes effect")
	}
}

func TestRewindToPastReplaysIdentically(t *testing.T) {
	tx, obj := setup(t)
	var sink []string
	delegateKey := pcontext.EventKey{Instant: 5, Object: obj.id, Serial: 0}
	delegate := labeledEvent{key: delegateKey, label: "d", sink: &sink}

	wrapped := tx.PutEvent(delegate, true)
	tx.master.AddEvent(wrapped)
	tx.master.Advance(10, nil)

	before := inSlave(tx.slave, delegateKey)

	// Insert an earlier master event to force a rewind, then replay.
	tx.master.AddEvent(tx.NodeCountDelta(1, 2))
	tx.master.Advance(0, nil)

	after := inSlave(tx.slave, delegateKey)
	if before != after || !after {
		t.Fatalf("rewind+replay should leave the wrapped event accepted: before=%v after=%v", before, after)
	}
}
