// Package pcontext implements the reversible timeline described by the
// framework: a set of objects and events that can be advanced forward and
// rewound to any earlier instant.
package pcontext

import "fmt"

// Instant is a 32-bit logical time step. All timestamps in the system are
// instants.
type Instant uint32

// ObjectID identifies an Object. 0 is reserved for "no object" and 1 is
// reserved for the transactor's synthetic proxy object.
type ObjectID uint32

// Serial disambiguates events that share the same (Instant, ObjectID).
type Serial uint32

// EventKey is the total order key for an Event: (instant, object, serial).
type EventKey struct {
	Instant Instant
	Object  ObjectID
	Serial  Serial
}

// Less reports whether a sorts before b under the triple order.
func (a EventKey) Less(b EventKey) bool {
	if a.Instant != b.Instant {
		return a.Instant < b.Instant
	}
	if a.Object != b.Object {
		return a.Object < b.Object
	}
	return a.Serial < b.Serial
}

func (a EventKey) String() string {
	return fmt.Sprintf("(%d,%d,%d)", a.Instant, a.Object, a.Serial)
}

// Object is application-defined state that can be stepped one instant
// forward or rewound to the beginning of a given instant. Implementations
// must retain enough history to satisfy any rewind the context issues.
type Object interface {
	ID() ObjectID
	Step()
	Rewind(Instant)
}

// Event is an application-defined mutation of a single Object at a single
// instant. Events are owned by the Context once inserted: Apply is invoked
// with the object it targets and arbitrary caller-supplied userdata.
type Event interface {
	Key() EventKey
	Apply(obj Object, userdata interface{})
}

// nullEvent is the sentinel (0,0,0) event that always exists in a Context
// and can never be redacted.
type nullEvent struct{}

func (nullEvent) Key() EventKey             { return EventKey{} }
func (nullEvent) Apply(Object, interface{}) {}

// NullEvent is the shared (0,0,0) sentinel returned by AddEvent when the
// target object does not exist.
var NullEvent Event = nullEvent{}
