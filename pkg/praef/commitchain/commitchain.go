// Package commitchain detects divergence between peers by hash-chaining
// declared commits over instant-ranges against the hashes of messages
// actually revealed within those ranges.
package commitchain

import (
	"sort"

	"golang.org/x/crypto/sha3"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
)

// Hash is a SHA-3-256 digest.
type Hash [32]byte

// HashMessage hashes the raw on-wire bytes of a message (never including
// the trailing in-memory zero byte).
func HashMessage(wire []byte) Hash {
	return Hash(sha3.Sum256(wire))
}

type commitRange struct {
	start, end    pcontext.Instant
	declared      Hash
	revealed      []Hash // kept in arrival order; chainHash sorts before hashing, so order doesn't matter
	validated     bool
}

// Chain is one peer's commit-chain.
type Chain struct {
	ranges  []*commitRange // sorted by start
	pending map[pcontext.Instant][]Hash
	dead    bool
}

// New creates an empty commit-chain.
func New() *Chain {
	return &Chain{pending: make(map[pcontext.Instant][]Hash)}
}

func (c *Chain) rangeContaining(instant pcontext.Instant) *commitRange {
	for _, r := range c.ranges {
		if r.start <= instant && instant < r.end {
			return r
		}
	}
	return nil
}

// Reveal records that hash was seen at instant, inserting it into whichever
// committed range currently covers that instant, or buffering it as pending
// if no such range exists yet. Out-of-order reveals are permitted.
func (c *Chain) Reveal(instant pcontext.Instant, hash Hash) {
	if r := c.rangeContaining(instant); r != nil {
		r.revealed = append(r.revealed, hash)
		c.checkValidity(r)
		return
	}
	c.pending[instant] = append(c.pending[instant], hash)
}

// Commit declares a range [start, end) with hash as its committed hash,
// absorbing any previously-pending reveals that fall inside it.
func (c *Chain) Commit(start, end pcontext.Instant, declared Hash) {
	r := &commitRange{start: start, end: end, declared: declared}
	for instant, hashes := range c.pending {
		if start <= instant && instant < end {
			r.revealed = append(r.revealed, hashes...)
			delete(c.pending, instant)
		}
	}

	c.ranges = append(c.ranges, r)
	sort.Slice(c.ranges, func(i, j int) bool { return c.ranges[i].start < c.ranges[j].start })

	c.checkValidity(r)
}

// CreateCommit produces the commit hash the local node should declare for
// [start, end) from whatever has been revealed so far in that range.
func (c *Chain) CreateCommit(start, end pcontext.Instant) Hash {
	var revealed []Hash
	for instant, hashes := range c.pending {
		if start <= instant && instant < end {
			revealed = append(revealed, hashes...)
		}
	}
	for _, r := range c.ranges {
		if r.start >= start && r.end <= end {
			revealed = append(revealed, r.revealed...)
		}
	}
	return chainHash(revealed)
}

func chainHash(hashes []Hash) Hash {
	sorted := append([]Hash(nil), hashes...)
	sort.Slice(sorted, func(i, j int) bool { return string(sorted[i][:]) < string(sorted[j][:]) })
	h := sha3.New256()
	for _, hh := range sorted {
		h.Write(hh[:])
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// checkValidity marks r validated if the chain hash of its revealed hashes
// so far matches its declared hash. A mismatch is not treated as an error
// here, since more reveals for the range may still arrive; only Validate
// marks the chain dead on a mismatch.
func (c *Chain) checkValidity(r *commitRange) {
	if chainHash(r.revealed) == r.declared {
		r.validated = true
	}
}

// Validate forces a consistency check of range [start, end) against its
// current reveal set, marking the chain dead if it disagrees outright.
func (c *Chain) Validate(start, end pcontext.Instant) {
	r := c.rangeContaining(start)
	if r == nil || r.start != start || r.end != end {
		return
	}
	if chainHash(r.revealed) != r.declared {
		c.dead = true
		return
	}
	r.validated = true
}

// Committed returns the highest instant t such that [0, t) is entirely
// covered by declared commit ranges with no gaps.
func (c *Chain) Committed() pcontext.Instant {
	return c.coverageFold(func(r *commitRange) bool { return true })
}

// Validated returns the highest instant t such that [0, t) is entirely
// covered by validated commit ranges with no gaps.
func (c *Chain) Validated() pcontext.Instant {
	return c.coverageFold(func(r *commitRange) bool { return r.validated })
}

func (c *Chain) coverageFold(include func(*commitRange) bool) pcontext.Instant {
	var frontier pcontext.Instant
	for _, r := range c.ranges {
		if !include(r) {
			break
		}
		if r.start != frontier {
			break
		}
		frontier = r.end
	}
	return frontier
}

// IsDead reports whether any commit's declared hash ever disagreed with its
// revealed hashes.
func (c *Chain) IsDead() bool { return c.dead }
