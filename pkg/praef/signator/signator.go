// Package signator defines the signing and verification capability
// contracts used to authenticate messages, plus a default ed25519-backed
// implementation. The specific signature curve is deliberately not fixed
// by the contract: any implementation producing a fixed-size signature and
// a two-byte hint works.
package signator

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
)

// NodeID identifies a registered peer by its numeric id.
type NodeID uint32

// Hint is a short, lossy fingerprint of a public key, used to narrow down
// candidate keys before attempting a full signature verification.
type Hint [2]byte

// Signator signs byte ranges and can be asked for the hint that verifiers
// should use to find its public key.
type Signator interface {
	Sign(data []byte) []byte
	Hint() Hint
	PublicKey() []byte
}

// Verifier holds a registry of (hint, public key) -> NodeID and resolves
// signatures back to the node that produced them.
type Verifier interface {
	Assoc(pubkey []byte, id NodeID) error
	Disassoc(pubkey []byte)
	Verify(hint Hint, signature, data []byte) NodeID
	VerifyOnce(pubkey, signature, data []byte) bool
}

var (
	// ErrZeroID is returned by Assoc when asked to register the reserved
	// null node id.
	ErrZeroID = errors.New("signator: cannot assoc the null node id")
	// ErrAlreadyRegistered is returned by Assoc when the public key is
	// already associated with a node id.
	ErrAlreadyRegistered = errors.New("signator: public key already registered")
)

func hintOf(pubkey []byte) Hint {
	if len(pubkey) < 2 {
		var h Hint
		copy(h[:], pubkey)
		return h
	}
	return Hint{pubkey[0], pubkey[1]}
}

// Ed25519Signator is the default Signator, backed by the standard library's
// ed25519 implementation.
type Ed25519Signator struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewEd25519Signator generates a fresh keypair.
func NewEd25519Signator() (*Ed25519Signator, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519Signator{public: pub, private: priv}, nil
}

func (s *Ed25519Signator) Sign(data []byte) []byte   { return ed25519.Sign(s.private, data) }
func (s *Ed25519Signator) Hint() Hint                { return hintOf(s.public) }
func (s *Ed25519Signator) PublicKey() []byte         { return []byte(s.public) }

type verifierEntry struct {
	hint   Hint
	pubkey []byte
	id     NodeID
}

// Ed25519Verifier is the default Verifier, matching Ed25519Signator.
type Ed25519Verifier struct {
	entries []verifierEntry
}

// NewEd25519Verifier creates an empty verifier.
func NewEd25519Verifier() *Ed25519Verifier { return &Ed25519Verifier{} }

func (v *Ed25519Verifier) Assoc(pubkey []byte, id NodeID) error {
	if id == 0 {
		return ErrZeroID
	}
	for _, e := range v.entries {
		if string(e.pubkey) == string(pubkey) {
			return ErrAlreadyRegistered
		}
	}
	v.entries = append(v.entries, verifierEntry{hint: hintOf(pubkey), pubkey: append([]byte(nil), pubkey...), id: id})
	return nil
}

func (v *Ed25519Verifier) Disassoc(pubkey []byte) {
	for i, e := range v.entries {
		if string(e.pubkey) == string(pubkey) {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			return
		}
	}
}

func (v *Ed25519Verifier) Verify(hint Hint, signature, data []byte) NodeID {
	for _, e := range v.entries {
		if e.hint != hint {
			continue
		}
		if ed25519.Verify(ed25519.PublicKey(e.pubkey), data, signature) {
			return e.id
		}
	}
	return 0
}

func (v *Ed25519Verifier) VerifyOnce(pubkey, signature, data []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pubkey), data, signature)
}
