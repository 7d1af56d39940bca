package signator

import "testing"

func TestSignAndVerify_RoundTrips(t *testing.T) {
	s, err := NewEd25519Signator()
	if err != nil {
		t.Fatalf("NewEd25519Signator: %v", err)
	}
	v := NewEd25519Verifier()
	if err := v.Assoc(s.PublicKey(), 7); err != nil {
		t.Fatalf("Assoc: %v", err)
	}

	data := []byte("message")
	sig := s.Sign(data)

	if got := v.Verify(s.Hint(), sig, data); got != 7 {
		t.Fatalf("expected Verify to resolve to node 7, got %d", got)
	}
}

func TestAssoc_RejectsZeroID(t *testing.T) {
	v := NewEd25519Verifier()
	if err := v.Assoc([]byte{1, 2, 3}, 0); err != ErrZeroID {
		t.Fatalf("expected ErrZeroID, got %v", err)
	}
}

func TestAssoc_RejectsDuplicateKey(t *testing.T) {
	v := NewEd25519Verifier()
	v.Assoc([]byte{1, 2, 3}, 1)
	if err := v.Assoc([]byte{1, 2, 3}, 2); err != ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestDisassoc_RemovesEntry(t *testing.T) {
	s, _ := NewEd25519Signator()
	v := NewEd25519Verifier()
	v.Assoc(s.PublicKey(), 9)
	v.Disassoc(s.PublicKey())

	sig := s.Sign([]byte("x"))
	if got := v.Verify(s.Hint(), sig, []byte("x")); got != 0 {
		t.Fatalf("expected unregistered key to resolve to node 0, got %d", got)
	}
}

func TestVerifyOnce_DoesNotRequireRegistration(t *testing.T) {
	s, _ := NewEd25519Signator()
	v := NewEd25519Verifier()
	sig := s.Sign([]byte("y"))
	if !v.VerifyOnce(s.PublicKey(), sig, []byte("y")) {
		t.Fatalf("expected VerifyOnce to succeed without Assoc")
	}
}
