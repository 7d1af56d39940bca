package commitchain

import "testing"

func TestCommitThenReveal_ValidatesWhenHashesMatch(t *testing.T) {
	c := New()
	h1 := HashMessage([]byte("msg1"))
	h2 := HashMessage([]byte("msg2"))
	declared := chainHash([]Hash{h1, h2})

	c.Commit(0, 10, declared)
	c.Reveal(2, h1)
	c.Reveal(5, h2)

	if c.Validated() != 10 {
		t.Fatalf("expected [0,10) validated once revealed hashes match the declaration, got %d", c.Validated())
	}
	if c.IsDead() {
		t.Fatalf("chain should not be dead on a consistent commit")
	}
}

func TestRevealBeforeCommit_IsAbsorbedOutOfOrder(t *testing.T) {
	c := New()
	h1 := HashMessage([]byte("early"))
	c.Reveal(3, h1)

	declared := chainHash([]Hash{h1})
	c.Commit(0, 5, declared)

	if c.Validated() != 5 {
		t.Fatalf("expected pending reveal to be absorbed into the later commit, got validated=%d", c.Validated())
	}
}

func TestCommitted_StopsAtFirstGap(t *testing.T) {
	c := New()
	c.Commit(0, 5, chainHash(nil))
	c.Commit(10, 15, chainHash(nil))

	if got := c.Committed(); got != 5 {
		t.Fatalf("expected committed() to stop at the gap after instant 5, got %d", got)
	}
}

func TestValidate_MismatchMarksChainDead(t *testing.T) {
	c := New()
	c.Commit(0, 5, Hash{0xFF})
	c.Reveal(1, HashMessage([]byte("whatever")))

	c.Validate(0, 5)

	if !c.IsDead() {
		t.Fatalf("expected an explicit Validate mismatch to mark the chain dead")
	}
}

func TestCreateCommit_MatchesWhatCommitWouldValidate(t *testing.T) {
	c := New()
	h := HashMessage([]byte("m"))
	c.Reveal(1, h)

	got := c.CreateCommit(0, 5)
	want := chainHash([]Hash{h})
	if got != want {
		t.Fatalf("CreateCommit should reproduce the same hash Commit would validate against")
	}
}
