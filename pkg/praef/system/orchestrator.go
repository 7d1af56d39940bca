package system

import (
	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/internal/praeflog"
	"github.com/praefectus-go/praef/pkg/praef/clock"
	"github.com/praefectus-go/praef/pkg/praef/dispatch"
	"github.com/praefectus-go/praef/pkg/praef/hashtree"
	"github.com/praefectus-go/praef/pkg/praef/hlmsg"
	"github.com/praefectus-go/praef/pkg/praef/meta"
	"github.com/praefectus-go/praef/pkg/praef/outbox"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/router"
	"github.com/praefectus-go/praef/pkg/praef/signator"
	"github.com/praefectus-go/praef/pkg/praef/transactor"
)

// System is the per-frame orchestrator: it owns one instance of every
// subsystem and drives them through exactly one frame per Step call.
type System struct {
	Config *Config
	log    praeflog.Logger
	status Status
	cb     *Callbacks

	bus       bus.Bus
	selfNetID bus.NetID
	clock     *clock.Clock
	router    *router.Router
	disp      *dispatch.Dispatcher
	signer    signator.Signator
	verifier  signator.Verifier

	meta *meta.MetaTransactor
	tx   *transactor.Transactor
	ht   *hashtree.Tree

	commitMgr *dispatch.CommitManager
	modMgr    *dispatch.ModManager
	routeMgr  *dispatch.RouteManager
	join      *dispatch.JoinManager

	committedOut   *outbox.Outbox
	uncommittedOut *outbox.Outbox
	adhocEncoder   *hlmsg.Encoder

	rpcSerial         pcontext.Serial
	committedSerial   pcontext.Serial
	uncommittedSerial pcontext.Serial
	adhocSerial       pcontext.Serial

	negative map[pcontext.ObjectID]bool

	localID pcontext.ObjectID
}

// newCore builds every subsystem shared by a bootstrap and a joining
// System: a keypair, the reversible timeline, the hash-tree, the two
// system-wide outboxes, the router, clock, and dispatcher. It does not
// decide node identity or wire any handler table; NewBootstrap/NewJoiner do
// that.
func newCore(cfg *Config, log praeflog.Logger, b bus.Bus, selfNetID bus.NetID) (*System, error) {
	signer, err := signator.NewEd25519Signator()
	if err != nil {
		return nil, err
	}
	verifier := signator.NewEd25519Verifier()

	slave := pcontext.New()
	tx := transactor.New(slave)
	mt := meta.New(meta.NewTransactorAdapter(tx), dispatch.BootstrapID)
	ht := hashtree.New()

	s := &System{
		Config:    cfg,
		log:       log,
		status:    StatusAnonymous,
		bus:       b,
		selfNetID: selfNetID,
		signer:    signer,
		verifier:  verifier,
		meta:      mt,
		tx:        tx,
		ht:        ht,
		negative:  make(map[pcontext.ObjectID]bool),
	}

	committedEnc, err := hlmsg.NewEncoder(hlmsg.ClassCommitted, signer, &s.committedSerial, cfg.MTU, 0)
	if err != nil {
		return nil, err
	}
	s.committedOut = outbox.New(committedEnc)

	uncommittedEnc, err := hlmsg.NewEncoder(hlmsg.ClassUncommitted, signer, &s.uncommittedSerial, cfg.MTU, 0)
	if err != nil {
		return nil, err
	}
	s.uncommittedOut = outbox.New(uncommittedEnc)

	adhocEncoder, err := hlmsg.NewEncoder(hlmsg.ClassRPC, signer, &s.adhocSerial, cfg.MTU, 0)
	if err != nil {
		return nil, err
	}
	s.adhocEncoder = adhocEncoder

	s.router = router.New(s.committedOut, s.uncommittedOut, signer, &s.rpcSerial, cfg.MTU)
	s.clock = clock.New(cfg.ClockObsolescenceInterval, cfg.ClockTolerance)
	s.disp = dispatch.New(log, verifier, 0, len(signer.Sign([]byte("x"))))

	s.commitMgr = dispatch.NewCommitManager(cfg.CommitInterval, cfg.MaxCommitLag, cfg.MaxValidatedLag, ht, s.router)
	s.routeMgr = dispatch.NewRouteManager(cfg.UngrantedRouteInterval, cfg.GrantedRouteInterval, cfg.PingInterval, cfg.MaxPongSilence)

	return s, nil
}

// NewBootstrap creates the founding node of a new system: it mints the
// system salt, adopts dispatch.BootstrapID immediately (pre-GRANTed at
// instant 0 by meta.New), and is ready to answer other nodes' join
// handshakes from frame one.
func NewBootstrap(cfg *Config, log praeflog.Logger, b bus.Bus, selfNetID bus.NetID) (*System, error) {
	s, err := newCore(cfg, log, b, selfNetID)
	if err != nil {
		return nil, err
	}

	s.localID = dispatch.BootstrapID
	s.disp.SetLocalID(signator.NodeID(s.localID))
	if err := s.verifier.Assoc(s.signer.PublicKey(), signator.NodeID(s.localID)); err != nil {
		return nil, err
	}

	jm, err := dispatch.Bootstrap(s.signer, s.verifier, s.meta)
	if err != nil {
		return nil, err
	}
	jm.SetMaxLiveNodes(cfg.MaxLiveNodes)
	s.join = jm
	s.modMgr = dispatch.NewModManager(s.localID, s.meta, cfg.ProposeGrantInterval, cfg.VoteDenyInterval, cfg.VoteChmodOffset)
	s.status = StatusOK

	s.wireHandlers()
	return s, nil
}

// NewJoiner creates a node that does not yet belong to the system: it must
// discover the system salt and request admission from contact, an already-
// live peer's net address, before it can vote, commit, or propose chmods of
// its own. Until that completes, Status() reports StatusAnonymous.
func NewJoiner(cfg *Config, log praeflog.Logger, b bus.Bus, selfNetID, contact bus.NetID) (*System, error) {
	s, err := newCore(cfg, log, b, selfNetID)
	if err != nil {
		return nil, err
	}

	s.bus.CreateRoute(contact)

	jm := dispatch.NewJoiner(s.signer, s.verifier, s.meta, string(selfNetID), string(contact), cfg.UngrantedRouteInterval)
	jm.SetMaxLiveNodes(cfg.MaxLiveNodes)
	s.join = jm
	s.modMgr = dispatch.NewModManager(0, s.meta, cfg.ProposeGrantInterval, cfg.VoteDenyInterval, cfg.VoteChmodOffset)

	jm.OnJoined = func(id pcontext.ObjectID) {
		s.localID = id
		s.disp.SetLocalID(signator.NodeID(id))
		broadcast := s.modMgr.Broadcast
		s.modMgr = dispatch.NewModManager(id, s.meta, cfg.ProposeGrantInterval, cfg.VoteDenyInterval, cfg.VoteChmodOffset)
		s.modMgr.Broadcast = broadcast
		s.status = StatusOK
		s.cb.log("join: acquired id")
		if s.cb != nil && s.cb.AcquireID != nil {
			s.cb.AcquireID(uint32(id))
		}
	}

	s.wireHandlers()
	return s, nil
}

// SetCallbacks installs the application hooks this System invokes.
func (s *System) SetCallbacks(cb *Callbacks) { s.cb = cb }

// LocalID returns this node's id, valid once Status() != StatusAnonymous.
func (s *System) LocalID() pcontext.ObjectID { return s.localID }

// Status returns the application-visible disposition.
func (s *System) Status() Status { return s.status }

// Step runs exactly one frame:
//  1. pull and dispatch every pending datagram,
//  2. advance the clock and the reversible timeline,
//  3. run per-node and per-system subsystem updates,
//  4. flush outboxes.
func (s *System) Step() {
	for {
		data, from, ok := s.bus.Recv()
		if !ok {
			break
		}
		s.disp.Dispatch(data, from)
	}

	s.clock.Advance(1)
	s.tx.Master().Advance(1, nil)
	s.meta.Advance(1)

	now := s.clock.Monotime
	s.join.Tick(now)

	s.commitMgr.Tick(now)
	s.modMgr.Tick(now, s.negativeList())

	for id := range s.router.AllNodes() {
		s.routeMgr.Tick(now, id, s.meta.Status(id, now) == meta.Alive)
	}

	dispatch.RouterDenyMirror(s.meta, now, s.router)
	s.router.UpdateThresholds(s.routeMgr.MinLatency(), s.Config.CommitLagLaxness, s.Config.SelfCommitLagCompensationNum, s.Config.SelfCommitLagCompensationDenom, s.localID)

	if err := s.committedOut.Flush(now); err != nil {
		s.log.Errorf("system: committed flush failed: %v", err)
	}
	if err := s.uncommittedOut.Flush(now); err != nil {
		s.log.Errorf("system: uncommitted flush failed: %v", err)
	}
	if err := s.router.Flush(s.bus); err != nil {
		s.log.Errorf("system: flush failed: %v", err)
	}
}

func (s *System) negativeList() []pcontext.ObjectID {
	out := make([]pcontext.ObjectID, 0, len(s.negative))
	for id := range s.negative {
		out = append(out, id)
	}
	return out
}

func (s *System) markNegative(id pcontext.ObjectID) {
	s.negative[id] = true
}

// Shutdown tears down the bus and releases any resources the System owns.
func (s *System) Shutdown() error {
	return s.bus.Close()
}
