package pcontext

import "container/list"

// Context holds a reversible timeline: a set of objects, the events that
// mutate them, and the two clocks that track how far callers and objects
// have each been advanced.
//
// Events are kept both in a map (for key lookup) and in a doubly linked
// list ordered by EventKey, mirroring the C implementation's splay tree +
// TAILQ pairing. Insertion walks the list to find its sorted position;
// this is the one place this package trades asymptotic insert cost for
// simplicity, which is acceptable given the single-threaded, per-frame
// scale this runs at.
type Context struct {
	sequence *list.List
	index    map[EventKey]*list.Element
	objects  map[ObjectID]Object

	// logicalNow is what external callers see; actualNow <= logicalNow is
	// how far objects have actually been stepped.
	logicalNow Instant
	actualNow  Instant
}

// New creates an empty Context containing only the null event.
func New() *Context {
	c := &Context{
		sequence: list.New(),
		index:    make(map[EventKey]*list.Element),
		objects:  make(map[ObjectID]Object),
	}
	el := c.sequence.PushBack(NullEvent)
	c.index[NullEvent.Key()] = el
	return c
}

// Now returns logical_now, the instant external callers see.
func (c *Context) Now() Instant { return c.logicalNow }

// ActualNow returns actual_now, how far objects have actually been stepped.
func (c *Context) ActualNow() Instant { return c.actualNow }

// Object looks up a registered object by id, or nil.
func (c *Context) Object(id ObjectID) Object { return c.objects[id] }

// Event looks up the event at the given key, or nil.
func (c *Context) Event(key EventKey) Event {
	if el, ok := c.index[key]; ok {
		return el.Value.(Event)
	}
	return nil
}

// AddObject inserts o into the context. If o.ID() == 0 the object is
// rejected and returned unchanged. If an object with the same id is already
// registered, that existing object is returned and o is discarded. On a
// fresh insert, o.Rewind(actualNow) is invoked immediately and nil is
// returned to signal success.
func (c *Context) AddObject(o Object) Object {
	if o.ID() == 0 {
		return o
	}
	if existing, ok := c.objects[o.ID()]; ok {
		return existing
	}
	c.objects[o.ID()] = o
	o.Rewind(c.actualNow)
	return nil
}

// AddEvent inserts e into the context.
//
//   - If no object with id e.Key().Object exists, e is dropped and the
//     shared NullEvent is returned.
//   - If another event already occupies e.Key(), e is dropped and the
//     conflicting event is returned.
//   - Otherwise e is inserted in sorted order and, if e.Key().Instant is
//     in the past, every object is rewound to that instant. nil is
//     returned to signal success.
func (c *Context) AddEvent(e Event) Event {
	key := e.Key()
	if _, ok := c.objects[key.Object]; !ok {
		return NullEvent
	}
	if existing, ok := c.index[key]; ok {
		return existing.Value.(Event)
	}

	el := c.insertSorted(e)
	c.index[key] = el

	c.rollBackTo(key.Instant)
	return nil
}

// insertSorted walks the list from the back (new events are usually close
// to the current instant) to find e's sorted position and inserts it there.
func (c *Context) insertSorted(e Event) *list.Element {
	key := e.Key()
	for el := c.sequence.Back(); el != nil; el = el.Prev() {
		if el.Value.(Event).Key().Less(key) {
			return c.sequence.InsertAfter(e, el)
		}
	}
	return c.sequence.PushFront(e)
}

// RedactEvent removes the event at (object, instant, serial). The null
// event (0,0,0) can never be redacted. Returns false if no such event
// exists.
func (c *Context) RedactEvent(object ObjectID, instant Instant, serial Serial) bool {
	key := EventKey{Instant: instant, Object: object, Serial: serial}
	if key == (EventKey{}) {
		return false
	}
	el, ok := c.index[key]
	if !ok {
		return false
	}

	c.rollBackTo(key.Instant)

	c.sequence.Remove(el)
	delete(c.index, key)
	return true
}

// rollBackTo rewinds every object to `when` if that is in the past.
func (c *Context) rollBackTo(when Instant) {
	if when < c.actualNow {
		c.actualNow = when
		for _, o := range c.objects {
			o.Rewind(c.actualNow)
		}
	}
}

// Advance moves logical_now forward by delta and then steps objects and
// applies events until actual_now catches up. Events scheduled at the same
// instant are applied in key order before any object is stepped.
func (c *Context) Advance(delta Instant, userdata interface{}) {
	c.logicalNow += delta

	el := c.firstEventAtOrAfter(c.actualNow)
	for c.actualNow != c.logicalNow {
		for el != nil && el.Value.(Event).Key().Instant == c.actualNow {
			e := el.Value.(Event)
			c.applyEvent(e, userdata)
			el = el.Next()
		}

		for _, o := range c.objects {
			o.Step()
		}
		c.actualNow++
	}
}

func (c *Context) applyEvent(e Event, userdata interface{}) {
	obj := c.objects[e.Key().Object]
	e.Apply(obj, userdata)
}

// firstEventAtOrAfter returns the first list element whose key.Instant >= when.
func (c *Context) firstEventAtOrAfter(when Instant) *list.Element {
	for el := c.sequence.Front(); el != nil; el = el.Next() {
		if el.Value.(Event).Key().Instant >= when {
			return el
		}
	}
	return nil
}
