// Package clock implements the tolerance-based synchronized clock: each
// peer proposes a wall-time sample, and the local clock nudges its notion
// of systime toward the median of live samples rather than trusting any
// single peer.
package clock

import "sort"

// Instant mirrors pcontext.Instant's resolution without importing it,
// keeping this package usable standalone.
type Instant uint32

// NodeID identifies the peer a ClockSource belongs to.
type NodeID uint32

// ClockSource holds one peer's latest sampled (instant, latency) pair.
type ClockSource struct {
	Node      NodeID
	Instant   Instant
	Latency   Instant
	sampledAt Instant // monotime at which this sample was taken, for obsolescence
}

// Clock holds the three instants described by the synchronized-clock
// contract: monotime (local ticks), systime (agreed wall time), and ticks
// (frames elapsed).
type Clock struct {
	Monotime Instant
	Systime  Instant
	Ticks    Instant

	ObsolescenceInterval Instant
	Tolerance             Instant

	sources map[NodeID]*ClockSource
}

// New creates a Clock with the given obsolescence interval and tolerance.
func New(obsolescenceInterval, tolerance Instant) *Clock {
	return &Clock{
		ObsolescenceInterval: obsolescenceInterval,
		Tolerance:             tolerance,
		sources:               make(map[NodeID]*ClockSource),
	}
}

// Sample records node's latest reported (instant, latency) pair.
func (c *Clock) Sample(node NodeID, instant, latency Instant) {
	c.sources[node] = &ClockSource{Node: node, Instant: instant, Latency: latency, sampledAt: c.Monotime}
}

// Advance moves the clock forward by delta ticks, discarding obsolete
// sources, then nudges systime toward the median proposed time.
func (c *Clock) Advance(delta Instant) {
	c.Monotime += delta
	c.Ticks += delta

	for id, s := range c.sources {
		if c.Monotime-s.sampledAt > c.ObsolescenceInterval {
			delete(c.sources, id)
		}
	}

	proposed := c.medianProposedTime()

	if absDiff(c.Systime, proposed) > c.Tolerance {
		c.Systime = proposed
	} else if c.Systime < proposed {
		c.Systime++
	} else if c.Systime > proposed {
		c.Systime--
	}
}

func absDiff(a, b Instant) Instant {
	if a > b {
		return a - b
	}
	return b - a
}

// medianProposedTime is the median of instant+latency across all live
// sources, with the local monotime counted as one additional source.
func (c *Clock) medianProposedTime() Instant {
	proposals := make([]Instant, 0, len(c.sources)+1)
	proposals = append(proposals, c.Monotime)
	for _, s := range c.sources {
		proposals = append(proposals, s.Instant+s.Latency)
	}
	sort.Slice(proposals, func(i, j int) bool { return proposals[i] < proposals[j] })
	return proposals[len(proposals)/2]
}
