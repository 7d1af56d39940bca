// Package system ties every other pkg/praef subsystem together into the
// per-frame orchestrator applications actually drive.
package system

import "github.com/praefectus-go/praef/pkg/praef/pcontext"

// Config holds every runtime tunable. The zero value is not meaningful; use
// DefaultConfig to get sensible defaults derived from a standard latency
// estimate, then apply Strict() or Lax() for the named profile presets.
type Config struct {
	ClockObsolescenceInterval pcontext.Instant
	ClockTolerance            pcontext.Instant

	CommitInterval    pcontext.Instant
	MaxCommitLag      pcontext.Instant
	MaxValidatedLag   pcontext.Instant
	CommitLagLaxness  pcontext.Instant

	// SelfCommitLagCompensationNum/Denom express self_commit_lag_compensation
	// as a fraction, mapped internally to a 16-bit ratio.
	SelfCommitLagCompensationNum   uint16
	SelfCommitLagCompensationDenom uint16

	HTRangeMax           int
	HTRangeQueryInterval pcontext.Instant
	HTSnapshotInterval   pcontext.Instant
	HTNumSnapshots       int
	HTRootQueryInterval  pcontext.Instant
	HTRootQueryOffset    pcontext.Instant

	JoinTreeQueryInterval pcontext.Instant
	AcceptInterval        pcontext.Instant
	MaxLiveNodes          int

	ProposeGrantInterval pcontext.Instant
	VoteDenyInterval     pcontext.Instant
	VoteChmodOffset      pcontext.Instant

	UngrantedRouteInterval pcontext.Instant
	GrantedRouteInterval   pcontext.Instant
	PingInterval           pcontext.Instant
	MaxPongSilence         pcontext.Instant

	// RouteExpiry is an idle-route lifetime. No subsystem reads it; idle
	// peers keep their routes.
	RouteExpiry pcontext.Instant

	MTU int
}

// DefaultConfig derives a full tunable set from stdLatency, the estimated
// typical one-way latency to a peer (e.g. commit_interval = max(std_latency/2, 1)).
func DefaultConfig(stdLatency pcontext.Instant) *Config {
	half := stdLatency / 2
	if half < 1 {
		half = 1
	}
	return &Config{
		ClockObsolescenceInterval: 8 * stdLatency,
		ClockTolerance:            stdLatency,

		CommitInterval:   half,
		MaxCommitLag:     8 * stdLatency,
		MaxValidatedLag:  16 * stdLatency,
		CommitLagLaxness: 0,

		SelfCommitLagCompensationNum:   0,
		SelfCommitLagCompensationDenom: 1,

		HTRangeMax:           256,
		HTRangeQueryInterval: 4 * stdLatency,
		HTSnapshotInterval:   64 * stdLatency,
		HTNumSnapshots:       4,
		HTRootQueryInterval:  4 * stdLatency,
		HTRootQueryOffset:    0,

		JoinTreeQueryInterval: 2 * stdLatency,
		AcceptInterval:        stdLatency,
		MaxLiveNodes:          64,

		ProposeGrantInterval: 4 * stdLatency,
		VoteDenyInterval:     4 * stdLatency,
		VoteChmodOffset:      2 * stdLatency,

		UngrantedRouteInterval: stdLatency,
		GrantedRouteInterval:   8 * stdLatency,
		PingInterval:           2 * stdLatency,
		MaxPongSilence:         16 * stdLatency,

		RouteExpiry: 64 * stdLatency,

		MTU: 1400,
	}
}

// Strict zeroes every latency-compensation field, for deployments that
// would rather wait than guess.
func (c *Config) Strict() *Config {
	c.CommitLagLaxness = 0
	c.SelfCommitLagCompensationNum = 0
	c.SelfCommitLagCompensationDenom = 1
	return c
}

// Lax sets commit_lag_laxness to one standard latency (stdLatency, the same
// value DefaultConfig derived everything else from) and self-compensation
// to 1/1, trading consistency lag for responsiveness.
func (c *Config) Lax(stdLatency pcontext.Instant) *Config {
	c.CommitLagLaxness = stdLatency
	c.SelfCommitLagCompensationNum = 1
	c.SelfCommitLagCompensationDenom = 1
	return c
}
