package dispatch

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/praefectus-go/praef/pkg/praef/meta"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/signator"
	"github.com/praefectus-go/praef/pkg/praef/wire"
)

// BootstrapID is the well-known, pre-GRANTed node id the system's founder
// adopts.
const BootstrapID pcontext.ObjectID = 1

// ReservedIDs are never assigned to a joining node: 0 (null) and 1
// (bootstrap / transactor proxy object).
func ReservedIDs(id pcontext.ObjectID) bool { return id == 0 || id == 1 }

// JoinPhase tracks a joining node's progress through the admission
// handshake (§4.13). A bootstrap JoinManager (created by Bootstrap) never
// advances through these phases; it only ever answers other nodes' requests.
type JoinPhase int

const (
	// PhaseDiscovering: the system salt is not yet known; retransmit
	// GetNetworkInfo to contact until a NetworkInfo reply arrives.
	PhaseDiscovering JoinPhase = iota
	// PhaseRequesting: the salt is known; retransmit JoinRequest until an
	// Endorsement naming this node's own pubkey is observed.
	PhaseRequesting
	// PhaseJoined: this node recognized its own Endorsement and has a
	// live id.
	PhaseJoined
)

// JoinManager implements both sides of the admission handshake: a bootstrap
// (or any already-live node) answering GetNetworkInfo/JoinRequest RPCs and
// broadcasting Endorsements, and a not-yet-live node discovering the salt
// and requesting its own admission.
//
// The full join-tree walk (iteratively paging through JoinTree/JoinTreeEntry
// RPCs to reconstruct every node's status history before a newly-admitted
// node trusts its local meta-transactor state) is not modeled here; once
// PhaseJoined is reached this node starts voting/committing from its
// current (possibly incomplete) view rather than first reconciling against
// a quorum of join-tree responses.
type JoinManager struct {
	salt    [32]byte
	saltSig []byte
	signer  signator.Signator
	verifier signator.Verifier
	meta    *meta.MetaTransactor
	permit  func(pcontext.ObjectID) bool
	maxLive int

	// joiner-only state; zero value means "this JoinManager is bootstrap/
	// already-live only".
	phase         JoinPhase
	contact       string
	selfNetID     string
	retryInterval pcontext.Instant
	lastSent      pcontext.Instant
	localID       pcontext.ObjectID

	// SendGetNetworkInfo/SendJoinRequest are invoked by Tick to actually
	// emit the corresponding RPC. Endorsements are not sent from here:
	// ReceiveJoinRequest returns one for the caller to broadcast.
	SendGetNetworkInfo func(contact string, req wire.GetNetworkInfo)
	SendJoinRequest    func(contact string, req wire.JoinRequest)

	// OnJoined is invoked once this node recognizes its own Endorsement,
	// with the id it was assigned.
	OnJoined func(id pcontext.ObjectID)
}

// Bootstrap creates a new system: generates a random system salt and signs
// it with signer. It does not register anything in m; the bootstrap node is
// already registered and pre-GRANTed at instant 0 by meta.New.
func Bootstrap(signer signator.Signator, verifier signator.Verifier, m *meta.MetaTransactor) (*JoinManager, error) {
	jm := &JoinManager{signer: signer, verifier: verifier, meta: m, maxLive: 64}
	if _, err := rand.Read(jm.salt[:]); err != nil {
		return nil, err
	}
	jm.saltSig = signer.Sign(jm.salt[:])
	return jm, nil
}

// NewJoiner creates a JoinManager for a not-yet-live node: it knows neither
// the system salt nor its own id yet, and must discover both from contact,
// a net address of some already-live peer.
func NewJoiner(signer signator.Signator, verifier signator.Verifier, m *meta.MetaTransactor, selfNetID, contact string, retryInterval pcontext.Instant) *JoinManager {
	return &JoinManager{
		signer:        signer,
		verifier:      verifier,
		meta:          m,
		maxLive:       64,
		phase:         PhaseDiscovering,
		contact:       contact,
		selfNetID:     selfNetID,
		retryInterval: retryInterval,
	}
}

// Salt returns the system salt and its signature, as sent in NetworkInfo.
func (j *JoinManager) Salt() ([32]byte, []byte) { return j.salt, j.saltSig }

// SetPermit installs the application's permit_object_id callback; nil means
// every non-reserved id is permitted.
func (j *JoinManager) SetPermit(permit func(pcontext.ObjectID) bool) { j.permit = permit }

// SetMaxLiveNodes sets the accept-time cap on simultaneously live nodes.
func (j *JoinManager) SetMaxLiveNodes(n int) { j.maxLive = n }

// Phase reports a joiner's current handshake phase.
func (j *JoinManager) Phase() JoinPhase { return j.phase }

// LocalID returns the id this node was assigned, valid once Phase() ==
// PhaseJoined.
func (j *JoinManager) LocalID() pcontext.ObjectID { return j.localID }

// Tick (re)transmits the RPC appropriate to the current join phase, at
// most once per retryInterval. It is a no-op for a bootstrap/already-live
// JoinManager (retryInterval is zero).
func (j *JoinManager) Tick(now pcontext.Instant) {
	if j.retryInterval == 0 || j.phase == PhaseJoined {
		return
	}
	if now-j.lastSent < j.retryInterval && j.lastSent != 0 {
		return
	}
	j.lastSent = now

	switch j.phase {
	case PhaseDiscovering:
		if j.SendGetNetworkInfo != nil {
			j.SendGetNetworkInfo(j.contact, wire.GetNetworkInfo{RetAddr: j.selfNetID})
		}
	case PhaseRequesting:
		if j.SendJoinRequest != nil {
			j.SendJoinRequest(j.contact, wire.JoinRequest{Pubkey: j.signer.PublicKey(), Identifier: j.selfNetID})
		}
	}
}

// ReceiveNetworkInfo advances a discovering joiner to PhaseRequesting once
// the salt's signature checks out against the responder's claimed pubkey.
func (j *JoinManager) ReceiveNetworkInfo(info wire.NetworkInfo) {
	if j.phase != PhaseDiscovering {
		return
	}
	if !j.verifier.VerifyOnce(info.BootstrapPubkey, info.SaltSig, info.Salt[:]) {
		return
	}
	j.salt = info.Salt
	j.saltSig = info.SaltSig
	j.phase = PhaseRequesting
	j.lastSent = 0
}

// ReceiveGetNetworkInfo answers a GetNetworkInfo RPC with the system salt
// this node currently holds, identifying itself as the responder.
func (j *JoinManager) ReceiveGetNetworkInfo(localNetID string) wire.NetworkInfo {
	return wire.NetworkInfo{
		Salt:            j.salt,
		SaltSig:         j.saltSig,
		BootstrapPubkey: j.signer.PublicKey(),
		BootstrapNetID:  localNetID,
	}
}

// DeriveID computes the new node id for a join request's public key: the
// first 32-bit squeeze of SHA-3(salt || pubkey) that is not reserved and
// passes the permit check, incrementing past collisions.
func (j *JoinManager) DeriveID(pubkey []byte, isLive func(pcontext.ObjectID) bool) pcontext.ObjectID {
	h := sha3.New256()
	h.Write(j.salt[:])
	h.Write(pubkey)
	sum := h.Sum(nil)
	candidate := pcontext.ObjectID(binary.BigEndian.Uint32(sum[:4]))

	for {
		if !ReservedIDs(candidate) && j.permitted(candidate) && !isLive(candidate) {
			return candidate
		}
		candidate++
	}
}

func (j *JoinManager) permitted(id pcontext.ObjectID) bool {
	if j.permit == nil {
		return true
	}
	return j.permit(id)
}

// ReceiveJoinRequest handles an incoming JoinRequest addressed to this
// (already-live) node: if accepting would stay within MaxLiveNodes, it
// returns the Endorsement ("Accept") this node should broadcast; every
// recipient of that broadcast, including the requester itself via loopback,
// derives the identical id from the quoted request and registers it.
func (j *JoinManager) ReceiveJoinRequest(now pcontext.Instant, req wire.JoinRequest, currentLive int) (wire.Endorsement, bool) {
	if !j.CanAccept(currentLive) {
		return wire.Endorsement{}, false
	}
	return wire.Endorsement{
		Instant:        now,
		RequestEncoded: req.Encode(),
	}, true
}

// ReceiveEndorsement processes a broadcast Endorsement: it decodes the
// quoted JoinRequest, derives the id every recipient will agree on, and
// registers it in the meta-transactor. If the embedded pubkey matches this
// node's own signing key, this is the local node recognizing its own
// admission: its id is recorded, the id is associated with its pubkey in
// the verifier so future signatures from it resolve correctly, and
// OnJoined fires.
func (j *JoinManager) ReceiveEndorsement(e wire.Endorsement, isLive func(pcontext.ObjectID) bool) (pcontext.ObjectID, bool) {
	req, ok := wire.DecodeJoinRequest(e.RequestEncoded)
	if !ok {
		return 0, false
	}
	id := j.DeriveID(req.Pubkey, isLive)
	j.meta.AddNode(id)

	if j.phase == PhaseRequesting && string(req.Pubkey) == string(j.signer.PublicKey()) {
		j.localID = id
		j.phase = PhaseJoined
		_ = j.verifier.Assoc(req.Pubkey, signator.NodeID(id))
		if j.OnJoined != nil {
			j.OnJoined(id)
		}
	}
	return id, true
}

// Accept registers a newly-joined node in the meta-transactor at instant;
// used when this node derived and accepted an id directly (e.g. the
// bootstrap accepting itself) rather than via a broadcast Endorsement.
func (j *JoinManager) Accept(id pcontext.ObjectID, at pcontext.Instant) {
	j.meta.AddNode(id)
}

// CanAccept reports whether accepting one more node would stay within
// MaxLiveNodes, given the current live count.
func (j *JoinManager) CanAccept(currentLive int) bool { return currentLive < j.maxLive }
