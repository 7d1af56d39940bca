package pcontext

import "testing"

// counterObject counts how many times it has been stepped, and supports
// rewinding by replaying a log of step counts recorded per instant.
type counterObject struct {
	id      ObjectID
	applied []string
	steps   int
	history []int
}

func newCounter(id ObjectID) *counterObject {
	return &counterObject{id: id}
}

func (o *counterObject) ID() ObjectID { return o.id }

func (o *counterObject) Step() {
	o.steps++
	o.history = append(o.history, o.steps)
}

func (o *counterObject) Rewind(instant Instant) {
	if int(instant) <= len(o.history) {
		o.history = o.history[:instant]
	}
	if len(o.history) == 0 {
		o.steps = 0
	} else {
		o.steps = o.history[len(o.history)-1]
	}
}

type recordEvent struct {
	key    EventKey
	record *[]string
	label  string
}

func (e recordEvent) Key() EventKey { return e.key }
func (e recordEvent) Apply(obj Object, _ interface{}) {
	*e.record = append(*e.record, e.label)
}

func TestAddObject_RejectsNullID(t *testing.T) {
	c := New()
	o := newCounter(0)
	if got := c.AddObject(o); got != o {
		t.Fatalf("expected rejection of id-0 object to return itself")
	}
}

func TestAddObject_DuplicateReturnsExisting(t *testing.T) {
	c := New()
	first := newCounter(5)
	second := newCounter(5)
	if got := c.AddObject(first); got != nil {
		t.Fatalf("first insert should succeed, got %v", got)
	}
	if got := c.AddObject(second); got != first {
		t.Fatalf("duplicate insert should return existing object")
	}
}

func TestAddEvent_DropsWhenObjectMissing(t *testing.T) {
	c := New()
	var record []string
	evt := recordEvent{key: EventKey{Instant: 1, Object: 99, Serial: 0}, record: &record, label: "x"}
	if got := c.AddEvent(evt); got != NullEvent {
		t.Fatalf("expected NullEvent sentinel, got %v", got)
	}
}

func TestAddEvent_ConflictReturnsExisting(t *testing.T) {
	c := New()
	c.AddObject(newCounter(1))
	var record []string
	first := recordEvent{key: EventKey{Instant: 1, Object: 1, Serial: 0}, record: &record, label: "first"}
	second := recordEvent{key: EventKey{Instant: 1, Object: 1, Serial: 0}, record: &record, label: "second"}
	if got := c.AddEvent(first); got != nil {
		t.Fatalf("first add should succeed")
	}
	if got := c.AddEvent(second); got != first {
		t.Fatalf("conflicting add should return the existing event")
	}
}

func TestAdvance_AppliesEventsInOrderThenSteps(t *testing.T) {
	c := New()
	c.AddObject(newCounter(1))

	var record []string
	c.AddEvent(recordEvent{key: EventKey{Instant: 0, Object: 1, Serial: 1}, record: &record, label: "b"})
	c.AddEvent(recordEvent{key: EventKey{Instant: 0, Object: 1, Serial: 0}, record: &record, label: "a"})

	c.Advance(1, nil)

	if len(record) != 2 || record[0] != "a" || record[1] != "b" {
		t.Fatalf("expected [a b], got %v", record)
	}
	if c.Now() != 1 || c.ActualNow() != 1 {
		t.Fatalf("expected both clocks at 1, got now=%d actual=%d", c.Now(), c.ActualNow())
	}
}

func TestAddEvent_RewindsWhenInThePast(t *testing.T) {
	c := New()
	obj := newCounter(1)
	c.AddObject(obj)
	c.Advance(100, nil)
	if c.ActualNow() != 100 {
		t.Fatalf("expected actual_now=100, got %d", c.ActualNow())
	}

	var record []string
	c.AddEvent(recordEvent{key: EventKey{Instant: 50, Object: 1, Serial: 0}, record: &record, label: "late"})

	if c.ActualNow() != 50 {
		t.Fatalf("expected rewind to 50, got %d", c.ActualNow())
	}

	c.Advance(0, nil)
	if c.ActualNow() != 100 {
		t.Fatalf("expected replay back to 100, got %d", c.ActualNow())
	}
	if len(record) != 1 || record[0] != "late" {
		t.Fatalf("expected the late event applied once, got %v", record)
	}
}

func TestRedactEvent_NullEventCannotBeRemoved(t *testing.T) {
	c := New()
	if c.RedactEvent(0, 0, 0) {
		t.Fatalf("null event must never be redactable")
	}
}

func TestRedactEvent_ThenAdvanceIsNoOp(t *testing.T) {
	c := New()
	c.AddObject(newCounter(1))
	var record []string
	key := EventKey{Instant: 5, Object: 1, Serial: 0}
	c.AddEvent(recordEvent{key: key, record: &record, label: "x"})
	if !c.RedactEvent(1, 5, 0) {
		t.Fatalf("expected redact to succeed")
	}
	c.Advance(10, nil)
	if len(record) != 0 {
		t.Fatalf("expected no events applied after redact, got %v", record)
	}
}

func TestAddEvent_OrderIndependentForDistinctKeys(t *testing.T) {
	mkCtx := func(first, second recordEvent) []string {
		c := New()
		c.AddObject(newCounter(1))
		c.AddEvent(first)
		c.AddEvent(second)
		c.Advance(1, nil)
		return *first.record
	}

	var recA []string
	e1 := recordEvent{key: EventKey{Instant: 0, Object: 1, Serial: 0}, record: &recA, label: "1"}
	e2 := recordEvent{key: EventKey{Instant: 0, Object: 1, Serial: 1}, record: &recA, label: "2"}
	got1 := mkCtx(e1, e2)

	var recB []string
	e1b := recordEvent{key: EventKey{Instant: 0, Object: 1, Serial: 0}, record: &recB, label: "1"}
	e2b := recordEvent{key: EventKey{Instant: 0, Object: 1, Serial: 1}, record: &recB, label: "2"}
	got2 := mkCtx(e2b, e1b)

	if len(got1) != 2 || len(got2) != 2 || got1[0] != got2[0] || got1[1] != got2[1] {
		t.Fatalf("insertion order should not affect application order: %v vs %v", got1, got2)
	}
}
