// Package hlmsg implements the high-level message envelope: a fixed byte
// layout carrying a signed, classified batch of sub-messages, plus the
// encoder that packs sub-messages into envelopes bounded by an MTU.
package hlmsg

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/sha3"

	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/signator"
)

// Class is the envelope's redistribution class. All segments in one
// envelope must decode to sub-message kinds compatible with its class.
type Class byte

const (
	ClassCommitted Class = iota
	ClassUncommitted
	ClassRPC
)

// Kind identifies a sub-message's type, used both for dispatch and for
// class-compatibility checking.
type Kind byte

const (
	KindPing Kind = iota
	KindPong
	KindGetNetworkInfo
	KindNetworkInfo
	KindJoinRequest
	KindHashTreeLs
	KindHashTreeDir
	KindHashTreeRead
	KindHashTreeRange
	KindAppUni
	KindReceived
	KindJoinTree
	KindJoinTreeEntry

	KindEndorsement
	KindCommandeer
	KindCommit
	KindRoute

	KindChmod
	KindAppEvent
	KindVote
)

// kindClass maps every sub-message kind to the single class it is allowed
// to travel in; mixing classes inside one envelope is invalid.
var kindClass = map[Kind]Class{
	KindPing:           ClassRPC,
	KindPong:            ClassRPC,
	KindGetNetworkInfo: ClassRPC,
	KindNetworkInfo:     ClassRPC,
	KindJoinRequest:     ClassRPC,
	KindHashTreeLs:      ClassRPC,
	KindHashTreeDir:     ClassRPC,
	KindHashTreeRead:    ClassRPC,
	KindHashTreeRange:   ClassRPC,
	KindAppUni:          ClassRPC,
	KindReceived:        ClassRPC,
	KindJoinTree:        ClassRPC,
	KindJoinTreeEntry:   ClassRPC,

	KindEndorsement: ClassUncommitted,
	KindCommandeer:  ClassUncommitted,
	KindCommit:      ClassUncommitted,
	KindRoute:       ClassUncommitted,

	KindChmod:    ClassCommitted,
	KindAppEvent: ClassCommitted,
	KindVote:     ClassCommitted,
}

// ClassOf reports the envelope class a sub-message kind must travel in.
func ClassOf(k Kind) (Class, bool) {
	c, ok := kindClass[k]
	return c, ok
}

// Segment is one decoded sub-message: its kind tag plus its PER-encoded
// payload bytes (opaque to this package; sub-message packages own their
// own encode/decode).
type Segment struct {
	Kind    Kind
	Payload []byte
}

// Envelope is a fully decoded (or about-to-be-encoded) message.
type Envelope struct {
	Hint      signator.Hint
	Signature []byte
	Class     Class
	Instant   pcontext.Instant
	Serial    pcontext.Serial
	Segments  []Segment
}

var (
	ErrTooShort       = errors.New("hlmsg: buffer shorter than header + one segment")
	ErrBadFlags       = errors.New("hlmsg: flags field out of range")
	ErrNoTerminator   = errors.New("hlmsg: segment chain never reaches its zero terminator")
	ErrMixedClass     = errors.New("hlmsg: segments mix incompatible classes")
	ErrUnknownKind    = errors.New("hlmsg: segment kind not valid for this envelope's class")
	ErrGarbageTooShort = errors.New("hlmsg: append_garbage=1 leaves no room for garbage bytes")
)

const headerLen = 2 /*hint*/ + 1 /*flags*/ + 4 /*instant*/ + 4 /*serial*/

// Decode parses buf (the 2-byte hint, a signature of the caller's fixed
// length sigLen, then the signed body) into an Envelope, validating its
// structure per IsValid.
func Decode(buf []byte, sigLen int, decodeSegment func(Kind, []byte) (bool, error)) (Envelope, error) {
	if len(buf) < headerLen+sigLen+2 {
		return Envelope{}, ErrTooShort
	}

	var e Envelope
	copy(e.Hint[:], buf[0:2])
	e.Signature = append([]byte(nil), buf[2:2+sigLen]...)
	rest := buf[2+sigLen:]

	flags := rest[0]
	if flags > 2 {
		return Envelope{}, ErrBadFlags
	}
	e.Class = Class(flags)
	e.Instant = pcontext.Instant(binary.LittleEndian.Uint32(rest[1:5]))
	e.Serial = pcontext.Serial(binary.LittleEndian.Uint32(rest[5:9]))

	body := rest[9:]
	off := 0
	for {
		if off >= len(body) {
			return Envelope{}, ErrNoTerminator
		}
		length := int(body[off])
		off++
		if length == 0 {
			break // zero terminator
		}
		if off+length > len(body) {
			return Envelope{}, ErrNoTerminator
		}
		seg := body[off : off+length]
		off += length

		kind := Kind(seg[0])
		c, ok := kindClass[kind]
		if !ok {
			return Envelope{}, ErrUnknownKind
		}
		if c != e.Class {
			return Envelope{}, ErrMixedClass
		}
		if decodeSegment != nil {
			ok, err := decodeSegment(kind, seg[1:])
			if err != nil {
				return Envelope{}, err
			}
			if !ok {
				return Envelope{}, ErrUnknownKind
			}
		}
		e.Segments = append(e.Segments, Segment{Kind: kind, Payload: append([]byte(nil), seg[1:]...)})
	}

	if len(e.Segments) == 0 {
		return Envelope{}, ErrTooShort
	}
	return e, nil
}

// IsValid reports whether buf structurally decodes, without requiring a
// caller-supplied sub-message validator.
func IsValid(buf []byte, sigLen int) bool {
	_, err := Decode(buf, sigLen, nil)
	return err == nil
}

// Encoder accumulates sub-message segments into MTU-bounded envelopes of a
// single class, signing and garbage-filling each as it finalises.
type Encoder struct {
	class         Class
	signer        signator.Signator
	serial        *pcontext.Serial // external or private serial cell
	mtu           int
	appendGarbage int
	overhead      int // hint + signature bytes preceding the signed body

	accum []byte // body being built: flags..instant..serial..segments so far
}

// NewEncoder creates an Encoder for the given class, signer, MTU, and
// append_garbage length (0 disables garbage filling; 1 is invalid).
func NewEncoder(class Class, signer signator.Signator, serial *pcontext.Serial, mtu, appendGarbage int) (*Encoder, error) {
	if appendGarbage == 1 {
		return nil, ErrGarbageTooShort
	}
	overhead := 2 + len(signer.Sign(nil))
	return &Encoder{class: class, signer: signer, serial: serial, mtu: mtu, appendGarbage: appendGarbage, overhead: overhead}, nil
}

func (e *Encoder) startAccum(instant pcontext.Instant) {
	e.accum = make([]byte, 9)
	e.accum[0] = byte(e.class)
	binary.LittleEndian.PutUint32(e.accum[1:5], uint32(instant))
}

// Append encodes kind/payload (already PER-encoded by the caller) into a
// ≤255-byte segment and appends it to the pending envelope, flushing first
// if it wouldn't fit.
func (e *Encoder) Append(instant pcontext.Instant, kind Kind, payload []byte, out *[][]byte) error {
	if len(payload)+1 > 255 {
		return errors.New("hlmsg: encoded sub-message too large for a segment")
	}
	encoded := append([]byte{byte(kind)}, payload...)

	if len(e.accum) == 0 {
		e.startAccum(instant)
	}

	need := 1 + len(encoded) + e.appendGarbage
	if e.overhead+len(e.accum)+need+1 > e.mtu { // +1 for the terminator we'll need to add
		if err := e.Flush(out); err != nil {
			return err
		}
		e.startAccum(instant)
	}

	e.accum = append(e.accum, byte(len(encoded)))
	e.accum = append(e.accum, encoded...)
	return nil
}

// Singleton always produces a fresh envelope with exactly one segment.
func (e *Encoder) Singleton(instant pcontext.Instant, kind Kind, payload []byte, out *[][]byte) error {
	if err := e.Flush(out); err != nil {
		return err
	}
	if err := e.Append(instant, kind, payload, out); err != nil {
		return err
	}
	return e.Flush(out)
}

// Flush finalises any pending accumulator into out.
func (e *Encoder) Flush(out *[][]byte) error {
	if len(e.accum) == 0 {
		return nil
	}

	binary.LittleEndian.PutUint32(e.accum[5:9], uint32(*e.serial))
	*e.serial++

	buf := append([]byte(nil), e.accum...)
	buf = append(buf, 0) // zero terminator

	if e.class == ClassCommitted && e.appendGarbage > 0 {
		buf = append(buf, squeezeGarbage(buf, e.appendGarbage-1)...)
	}

	sig := e.signer.Sign(buf)
	hint := e.signer.Hint()

	final := make([]byte, 0, 2+len(sig)+len(buf))
	final = append(final, hint[:]...)
	final = append(final, sig...)
	final = append(final, buf...)

	*out = append(*out, final)
	e.accum = nil
	return nil
}

// squeezeGarbage fills n trailing bytes by squeezing SHAKE256 over whatever
// has been written to buf so far. No secret key or salt is mixed in, so the
// padding is a deterministic function of the envelope's own bytes.
func squeezeGarbage(buf []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	h := sha3.NewShake256()
	h.Write(buf)
	out := make([]byte, n)
	h.Read(out)
	return out
}
