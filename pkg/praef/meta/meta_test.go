package meta

import (
	"testing"

	"github.com/praefectus-go/praef/pkg/praef/pcontext"
)

// stubAdapter is a bare-bones Adapter used to test MetaTransactor in
// isolation from the transactor package: Accept/Redact just record calls,
// and NodeCountDelta returns a tagged marker event.
type stubAdapter struct {
	accepted []pcontext.Event
	redacted []pcontext.Event
	deltas   []struct {
		sign int
		when pcontext.Instant
	}
}

type markerEvent struct {
	key pcontext.EventKey
}

func (m markerEvent) Key() pcontext.EventKey               { return m.key }
func (m markerEvent) Apply(pcontext.Object, interface{})   {}

func (a *stubAdapter) Accept(e pcontext.Event) { a.accepted = append(a.accepted, e) }
func (a *stubAdapter) Redact(e pcontext.Event) {
	a.redacted = append(a.redacted, e)
	kept := a.accepted[:0]
	for _, ae := range a.accepted {
		if ae.Key() != e.Key() {
			kept = append(kept, ae)
		}
	}
	a.accepted = kept
}
func (a *stubAdapter) NodeCountDelta(sign int, when pcontext.Instant) pcontext.Event {
	a.deltas = append(a.deltas, struct {
		sign int
		when pcontext.Instant
	}{sign, when})
	return markerEvent{key: pcontext.EventKey{Instant: when, Object: 1, Serial: pcontext.Serial(len(a.deltas))}}
}

func (a *stubAdapter) hasAccepted(key pcontext.EventKey) bool {
	for _, e := range a.accepted {
		if e.Key() == key {
			return true
		}
	}
	return false
}

const (
	bootstrapID pcontext.ObjectID = 1
	nodeAID     pcontext.ObjectID = 2
)

func TestAddEvent_UnbornNodeNeverReachesSlave(t *testing.T) {
	adapter := &stubAdapter{}
	m := New(adapter, bootstrapID)
	m.AddNode(nodeAID)

	evtKey := pcontext.EventKey{Instant: 5, Object: nodeAID, Serial: 0}
	m.AddEvent(nodeAID, markerEvent{key: evtKey})

	m.Advance(20)

	if adapter.hasAccepted(evtKey) {
		t.Fatalf("event from an UNBORN node must never be forwarded")
	}
}

func TestBootstrapAlwaysAliveFromInstantOne(t *testing.T) {
	adapter := &stubAdapter{}
	m := New(adapter, bootstrapID)

	if got := m.Status(bootstrapID, 1); got != Alive {
		t.Fatalf("expected bootstrap node ALIVE at instant 1, got %v", got)
	}
}

func TestChmodCarryingGrantEmitsNodeCountDelta(t *testing.T) {
	adapter := &stubAdapter{}
	m := New(adapter, bootstrapID)
	m.AddNode(nodeAID)

	// Two nodes total (bootstrap + nodeA), only bootstrap is ALIVE at when=3,
	// so a single vote from bootstrap is a majority (1*2 >= 1).
	m.Chmod(nodeAID, bootstrapID, Grant, 3)
	m.Advance(10)

	if len(adapter.deltas) != 1 {
		t.Fatalf("expected exactly one node-count-delta emission, got %d", len(adapter.deltas))
	}
	if adapter.deltas[0].sign != 1 || adapter.deltas[0].when != 3 {
		t.Fatalf("expected +1 delta at instant 3, got %+v", adapter.deltas[0])
	}
	if got := m.Status(nodeAID, 4); got != Alive {
		t.Fatalf("expected nodeA ALIVE at instant 4 after grant, got %v", got)
	}
}

func TestEventForwardedOnceNodeBecomesAlive(t *testing.T) {
	adapter := &stubAdapter{}
	m := New(adapter, bootstrapID)
	m.AddNode(nodeAID)
	m.Chmod(nodeAID, bootstrapID, Grant, 3)

	evtKey := pcontext.EventKey{Instant: 5, Object: nodeAID, Serial: 0}
	m.AddEvent(nodeAID, markerEvent{key: evtKey})

	m.Advance(10)

	if !adapter.hasAccepted(evtKey) {
		t.Fatalf("expected nodeA's event at instant 5 to be forwarded once ALIVE")
	}
}

func TestGrantPersistsAcrossRewind(t *testing.T) {
	adapter := &stubAdapter{}
	m := New(adapter, bootstrapID)
	m.AddNode(nodeAID)

	m.Chmod(nodeAID, bootstrapID, Grant, 3)
	m.Advance(20)

	evtKey := pcontext.EventKey{Instant: 15, Object: nodeAID, Serial: 0}
	m.AddEvent(nodeAID, markerEvent{key: evtKey})
	m.Advance(0)

	if !adapter.hasAccepted(evtKey) {
		t.Fatalf("expected event at instant 15 forwarded before any rewind")
	}

	// A second, redundant vote for the same (target, bit, when) triggers a
	// rewind to instant 3; the grant should be re-derived identically and
	// the already-forwarded event should still be present afterward.
	m.AddNode(3)
	m.Chmod(nodeAID, 3, Grant, 3)

	if !adapter.hasAccepted(evtKey) {
		t.Fatalf("expected grant and event forwarding to survive rewind+replay")
	}
}
