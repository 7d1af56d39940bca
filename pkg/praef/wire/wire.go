// Package wire implements the fixed binary layout of every hlmsg
// sub-message payload named in §6.2's wire-format choice. hlmsg itself
// treats a segment's payload as opaque bytes (see pkg/praef/hlmsg); this
// package is where each kind's concrete encode/decode lives, the way
// spec.md's own "packed encoding rules" footnote assigns each sub-message
// ownership of its own body format.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/praefectus-go/praef/pkg/praef/commitchain"
	"github.com/praefectus-go/praef/pkg/praef/meta"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
)

// ErrShort is returned by every Decode function when the payload is
// truncated.
var ErrShort = errors.New("wire: payload too short")

func appendBytes(buf, data []byte) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(data)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, data...)
}

func readBytes(b []byte) (data, rest []byte, ok bool) {
	if len(b) < 2 {
		return nil, nil, false
	}
	n := int(binary.LittleEndian.Uint16(b))
	if len(b) < 2+n {
		return nil, nil, false
	}
	return b[2 : 2+n], b[2+n:], true
}

// Ping carries a nonce the sender expects echoed back in the matching Pong.
type Ping struct{ ID uint64 }

func (p Ping) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, p.ID)
	return buf
}

// DecodePing parses a Ping payload.
func DecodePing(b []byte) (Ping, bool) {
	if len(b) < 8 {
		return Ping{}, false
	}
	return Ping{ID: binary.LittleEndian.Uint64(b)}, true
}

// Pong echoes a Ping's nonce back to its sender.
type Pong struct{ ID uint64 }

func (p Pong) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, p.ID)
	return buf
}

// DecodePong parses a Pong payload.
func DecodePong(b []byte) (Pong, bool) {
	if len(b) < 8 {
		return Pong{}, false
	}
	return Pong{ID: binary.LittleEndian.Uint64(b)}, true
}

// Route announces that the sender believes it has (or wants) a route to
// the peer this envelope was addressed to; its mere arrival is the signal,
// so it carries no payload.
type Route struct{}

func (Route) Encode() []byte { return nil }

// DecodeRoute parses a Route payload (always empty).
func DecodeRoute([]byte) (Route, bool) { return Route{}, true }

// Chmod proposes or endorses setting bit against Target, effective at
// Effective.
type Chmod struct {
	Target    pcontext.ObjectID
	Effective pcontext.Instant
	Bit       meta.Bit
}

func (c Chmod) Encode() []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(c.Target))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(c.Effective))
	buf[8] = byte(c.Bit)
	return buf
}

// DecodeChmod parses a Chmod payload.
func DecodeChmod(b []byte) (Chmod, bool) {
	if len(b) < 9 {
		return Chmod{}, false
	}
	return Chmod{
		Target:    pcontext.ObjectID(binary.LittleEndian.Uint32(b[0:4])),
		Effective: pcontext.Instant(binary.LittleEndian.Uint32(b[4:8])),
		Bit:       meta.Bit(b[8]),
	}, true
}

// Commit declares the commit hash the sender computed for [Start, End).
type Commit struct {
	Start, End pcontext.Instant
	Hash       commitchain.Hash
}

func (c Commit) Encode() []byte {
	buf := make([]byte, 8+len(c.Hash))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(c.Start))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(c.End))
	copy(buf[8:], c.Hash[:])
	return buf
}

// DecodeCommit parses a Commit payload.
func DecodeCommit(b []byte) (Commit, bool) {
	if len(b) < 8+len(commitchain.Hash{}) {
		return Commit{}, false
	}
	c := Commit{
		Start: pcontext.Instant(binary.LittleEndian.Uint32(b[0:4])),
		End:   pcontext.Instant(binary.LittleEndian.Uint32(b[4:8])),
	}
	copy(c.Hash[:], b[8:8+len(c.Hash)])
	return c, true
}

// Vote casts a vote for the transactor event identified by the triple
// (Object, Instant, Serial).
type Vote struct {
	Object  pcontext.ObjectID
	Instant pcontext.Instant
	Serial  pcontext.Serial
}

func (v Vote) Encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(v.Object))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(v.Instant))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(v.Serial))
	return buf
}

// DecodeVote parses a Vote payload.
func DecodeVote(b []byte) (Vote, bool) {
	if len(b) < 12 {
		return Vote{}, false
	}
	return Vote{
		Object:  pcontext.ObjectID(binary.LittleEndian.Uint32(b[0:4])),
		Instant: pcontext.Instant(binary.LittleEndian.Uint32(b[4:8])),
		Serial:  pcontext.Serial(binary.LittleEndian.Uint32(b[8:12])),
	}, true
}

// GetNetworkInfo asks a target peer for the system's salt and bootstrap
// identity, giving RetAddr as the network identifier the reply should be
// unicast back to.
type GetNetworkInfo struct{ RetAddr string }

func (g GetNetworkInfo) Encode() []byte { return appendBytes(nil, []byte(g.RetAddr)) }

// DecodeGetNetworkInfo parses a GetNetworkInfo payload.
func DecodeGetNetworkInfo(b []byte) (GetNetworkInfo, bool) {
	addr, _, ok := readBytes(b)
	if !ok {
		return GetNetworkInfo{}, false
	}
	return GetNetworkInfo{RetAddr: string(addr)}, true
}

// NetworkInfo answers a GetNetworkInfo with the system's salt (signed by
// the bootstrap node) and the bootstrap's identity, so the joiner can
// verify the salt and derive its own id later.
type NetworkInfo struct {
	Salt            [32]byte
	SaltSig         []byte
	BootstrapPubkey []byte
	BootstrapNetID  string
}

func (n NetworkInfo) Encode() []byte {
	buf := append([]byte(nil), n.Salt[:]...)
	buf = appendBytes(buf, n.SaltSig)
	buf = appendBytes(buf, n.BootstrapPubkey)
	buf = appendBytes(buf, []byte(n.BootstrapNetID))
	return buf
}

// DecodeNetworkInfo parses a NetworkInfo payload.
func DecodeNetworkInfo(b []byte) (NetworkInfo, bool) {
	if len(b) < 32 {
		return NetworkInfo{}, false
	}
	var n NetworkInfo
	copy(n.Salt[:], b[:32])
	rest := b[32:]

	sig, rest, ok := readBytes(rest)
	if !ok {
		return NetworkInfo{}, false
	}
	pub, rest, ok := readBytes(rest)
	if !ok {
		return NetworkInfo{}, false
	}
	netid, _, ok := readBytes(rest)
	if !ok {
		return NetworkInfo{}, false
	}
	n.SaltSig = sig
	n.BootstrapPubkey = pub
	n.BootstrapNetID = string(netid)
	return n, true
}

// JoinRequest is a joiner's signed request to be admitted, naming its
// public key and the network identifier it claims to be reachable at.
type JoinRequest struct {
	Pubkey     []byte
	Identifier string
}

func (r JoinRequest) Encode() []byte {
	buf := appendBytes(nil, r.Pubkey)
	buf = appendBytes(buf, []byte(r.Identifier))
	return buf
}

// DecodeJoinRequest parses a JoinRequest payload.
func DecodeJoinRequest(b []byte) (JoinRequest, bool) {
	pub, rest, ok := readBytes(b)
	if !ok {
		return JoinRequest{}, false
	}
	id, _, ok := readBytes(rest)
	if !ok {
		return JoinRequest{}, false
	}
	return JoinRequest{Pubkey: pub, Identifier: string(id)}, true
}

// Endorsement ("Accept") quotes the exact bytes of a signed JoinRequest,
// endorsing the id computed from it. RequestEncoded is the canonical
// re-encoded JoinRequest body and RequestSig is its original signature,
// carried verbatim so every recipient can re-verify it and derive the same
// id independently.
type Endorsement struct {
	Instant        pcontext.Instant
	RequestSig     []byte
	RequestEncoded []byte
}

func (e Endorsement) Encode() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(e.Instant))
	buf = appendBytes(buf, e.RequestSig)
	buf = appendBytes(buf, e.RequestEncoded)
	return buf
}

// DecodeEndorsement parses an Endorsement ("Accept") payload.
func DecodeEndorsement(b []byte) (Endorsement, bool) {
	if len(b) < 4 {
		return Endorsement{}, false
	}
	instant := pcontext.Instant(binary.LittleEndian.Uint32(b[0:4]))
	sig, rest, ok := readBytes(b[4:])
	if !ok {
		return Endorsement{}, false
	}
	req, _, ok := readBytes(rest)
	if !ok {
		return Endorsement{}, false
	}
	return Endorsement{Instant: instant, RequestSig: sig, RequestEncoded: req}, true
}
