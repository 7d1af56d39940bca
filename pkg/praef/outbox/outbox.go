// Package outbox implements the queued-delivery layer: an Outbox fronts a
// hlmsg encoder and fans finalised envelopes out to subscribed
// MessageQueues, each of which holds envelopes until their queue-instant
// crosses a visibility threshold before handing them to the message bus.
package outbox

import (
	"math"

	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/pkg/praef/hlmsg"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
)

// Infinite is the threshold value meaning "deliver everything queued so
// far", used for peers that currently hold GRANT.
const Infinite = pcontext.Instant(math.MaxUint32)

type queuedEnvelope struct {
	instant pcontext.Instant
	bytes   []byte
}

// MessageQueue holds envelopes tagged with the instant they were queued at,
// in a power-of-two ring buffer that grows on demand, releasing them to the
// bus once their instant is at or below Threshold.
type MessageQueue struct {
	Destination bus.NetID
	Broadcast   bool
	Triangular  bool
	Threshold   pcontext.Instant

	buf        []queuedEnvelope
	head, size int
}

// NewMessageQueue creates an empty queue with an initial power-of-two
// capacity.
func NewMessageQueue(dest bus.NetID, broadcast, triangular bool) *MessageQueue {
	return &MessageQueue{Destination: dest, Broadcast: broadcast, Triangular: triangular, buf: make([]queuedEnvelope, 8)}
}

func (q *MessageQueue) push(instant pcontext.Instant, envelope []byte) {
	if q.size == len(q.buf) {
		q.grow()
	}
	idx := (q.head + q.size) % len(q.buf)
	q.buf[idx] = queuedEnvelope{instant: instant, bytes: envelope}
	q.size++
}

func (q *MessageQueue) grow() {
	bigger := make([]queuedEnvelope, len(q.buf)*2)
	for i := 0; i < q.size; i++ {
		bigger[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = bigger
	q.head = 0
}

func (q *MessageQueue) pop() queuedEnvelope {
	e := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return e
}

// Update sends every pending envelope whose queue-instant is at or below
// Threshold through b, then drops it from the queue.
func (q *MessageQueue) Update(b bus.Bus) error {
	for q.size > 0 && q.buf[q.head].instant <= q.Threshold {
		e := q.pop()
		var err error
		switch {
		case q.Broadcast:
			err = b.Broadcast(e.bytes)
		case q.Triangular:
			err = b.TriangularUnicast(q.Destination, e.bytes)
		default:
			err = b.Unicast(q.Destination, e.bytes)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Outbox fronts a hlmsg encoder and fans every finalised envelope out to
// every subscribed MessageQueue.
type Outbox struct {
	encoder     *hlmsg.Encoder
	subscribers []*MessageQueue
}

// New creates an Outbox driven by encoder.
func New(encoder *hlmsg.Encoder) *Outbox {
	return &Outbox{encoder: encoder}
}

// Subscribe adds q as a recipient of every envelope this outbox finalises.
func (o *Outbox) Subscribe(q *MessageQueue) { o.subscribers = append(o.subscribers, q) }

func (o *Outbox) fanOut(instant pcontext.Instant, envelopes [][]byte) {
	for _, e := range envelopes {
		for _, q := range o.subscribers {
			q.push(instant, e)
		}
	}
}

// Append encodes a sub-message, possibly finalising the pending envelope
// first, and fans any finalised envelopes out to subscribers.
func (o *Outbox) Append(instant pcontext.Instant, kind hlmsg.Kind, payload []byte) error {
	var finalised [][]byte
	if err := o.encoder.Append(instant, kind, payload, &finalised); err != nil {
		return err
	}
	o.fanOut(instant, finalised)
	return nil
}

// Singleton always produces and fans out a fresh, single-segment envelope.
func (o *Outbox) Singleton(instant pcontext.Instant, kind hlmsg.Kind, payload []byte) error {
	var finalised [][]byte
	if err := o.encoder.Singleton(instant, kind, payload, &finalised); err != nil {
		return err
	}
	o.fanOut(instant, finalised)
	return nil
}

// Flush finalises any pending accumulator and fans it out.
func (o *Outbox) Flush(instant pcontext.Instant) error {
	var finalised [][]byte
	if err := o.encoder.Flush(&finalised); err != nil {
		return err
	}
	o.fanOut(instant, finalised)
	return nil
}
