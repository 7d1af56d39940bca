package system

import "github.com/praefectus-go/praef/pkg/praef/pcontext"

// Status is the application-visible disposition of a running System.
// Anything recoverable is handled internally; the application only ever
// sees status transitions.
type Status int

const (
	StatusOK Status = iota
	StatusAnonymous
	StatusPartitioned
	StatusKicked
	StatusOOM
	StatusOverflow
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAnonymous:
		return "anonymous"
	case StatusPartitioned:
		return "partitioned"
	case StatusKicked:
		return "kicked"
	case StatusOOM:
		return "oom"
	case StatusOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Callbacks bundles the optional application hooks a System invokes.
// Every field may be left nil.
type Callbacks struct {
	AcquireID         func(id uint32)
	DiscoverNode      func(netid string, id uint32)
	RemoveNode        func(id uint32)
	JoinTreeTraversed func()
	HTScanProgress    func(num, denom int)
	InformationComplete func()
	ClockSynced       func()
	GainedGrant       func()
	Log               func(msg string)

	// DecodeEvent decodes an application-defined KindAppEvent payload into a
	// transactor event; returning false drops the payload. Applications that
	// never send app-level events can leave this nil.
	DecodeEvent func(payload []byte) (pcontext.Event, bool)
}

func (c *Callbacks) log(msg string) {
	if c != nil && c.Log != nil {
		c.Log(msg)
	}
}
