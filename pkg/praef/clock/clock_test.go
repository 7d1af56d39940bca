package clock

import "testing"

func TestAdvance_JumpsWhenOutsideTolerance(t *testing.T) {
	c := New(1000, 2)
	c.Sample(1, 100, 0)
	c.Advance(1)

	if c.Systime != 100 {
		t.Fatalf("expected systime to jump to the median proposal (100), got %d", c.Systime)
	}
}

func TestAdvance_StepsOneTickWhenWithinTolerance(t *testing.T) {
	c := New(1000, 100)
	c.Systime = 10
	c.Sample(1, 12, 0)
	c.Advance(1)

	if c.Systime != 11 {
		t.Fatalf("expected systime to move one tick toward the proposal, got %d", c.Systime)
	}
}

func TestAdvance_DiscardsObsoleteSources(t *testing.T) {
	c := New(5, 1000)
	c.Sample(1, 100, 0)
	c.Advance(10) // older than ObsolescenceInterval

	if _, stillThere := c.sources[1]; stillThere {
		t.Fatalf("expected the stale source to be discarded")
	}
}
