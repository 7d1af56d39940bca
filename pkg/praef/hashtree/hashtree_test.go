package hashtree

import "testing"

func TestAdd_SamePayloadTwiceIsAlreadyPresent(t *testing.T) {
	tree := New()
	if _, res := tree.Add([]byte("hello")); res != Added {
		t.Fatalf("expected first add to report Added")
	}
	if _, res := tree.Add([]byte("hello")); res != AlreadyPresent {
		t.Fatalf("expected second add of the same payload to report AlreadyPresent")
	}
}

func TestGetByHashAndGetByID(t *testing.T) {
	tree := New()
	id, _ := tree.Add([]byte("payload"))

	h := HashOf([]byte("payload"))
	got, ok := tree.GetByHash(h)
	if !ok || string(got) != "payload" {
		t.Fatalf("GetByHash failed: ok=%v got=%q", ok, got)
	}

	got2, ok := tree.GetByID(id)
	if !ok || string(got2) != "payload" {
		t.Fatalf("GetByID failed: ok=%v got=%q", ok, got2)
	}
}

func TestFork_SharesStorageUntilMutated(t *testing.T) {
	tree := New()
	tree.Add([]byte("a"))

	fork := tree.Fork()
	if _, ok := fork.GetByHash(HashOf([]byte("a"))); !ok {
		t.Fatalf("expected forked tree to see objects added before the fork")
	}

	fork.Add([]byte("b"))
	if _, ok := tree.GetByHash(HashOf([]byte("b"))); ok {
		t.Fatalf("mutating the fork must not affect the original tree's trie shape")
	}
	if _, ok := fork.GetByHash(HashOf([]byte("a"))); !ok {
		t.Fatalf("forked tree should still see objects from before the fork after its own mutation")
	}
}

func TestMinimumHashLength_SingleObjectIsOneNybble(t *testing.T) {
	tree := New()
	tree.Add([]byte("solo"))
	h := HashOf([]byte("solo"))
	if got := tree.MinimumHashLength(h); got != 1 {
		t.Fatalf("expected a lone object to be disambiguated by its first nybble, got %d", got)
	}
}

func TestGetRange_FiltersByFinalByte(t *testing.T) {
	tree := New()
	for _, p := range [][]byte{[]byte("one"), []byte("two"), []byte("three"), []byte("four")} {
		tree.Add(p)
	}
	all := tree.GetRange(Hash{}, 0, 0, 100)
	if len(all) != 4 {
		t.Fatalf("expected all 4 objects with a no-op mask, got %d", len(all))
	}
}
