package hlmsg

import (
	"testing"

	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/signator"
)

func TestEncodeThenDecode_SingletonRoundTrips(t *testing.T) {
	signer, err := signator.NewEd25519Signator()
	if err != nil {
		t.Fatalf("NewEd25519Signator: %v", err)
	}
	var serial pcontext.Serial
	enc, err := NewEncoder(ClassRPC, signer, &serial, 512, 0)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	var out [][]byte
	payload := []byte("ping-payload")
	if err := enc.Singleton(10, KindPing, payload, &out); err != nil {
		t.Fatalf("Singleton: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly one finalised envelope, got %d", len(out))
	}

	sigLen := len(signer.Sign([]byte("x")))
	env, err := Decode(out[0], sigLen, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Class != ClassRPC || env.Instant != 10 {
		t.Fatalf("unexpected envelope header: %+v", env)
	}
	if len(env.Segments) != 1 || env.Segments[0].Kind != KindPing || string(env.Segments[0].Payload) != "ping-payload" {
		t.Fatalf("unexpected segments: %+v", env.Segments)
	}
}

func TestNewEncoder_RejectsGarbageOfOne(t *testing.T) {
	signer, _ := signator.NewEd25519Signator()
	var serial pcontext.Serial
	if _, err := NewEncoder(ClassCommitted, signer, &serial, 512, 1); err != ErrGarbageTooShort {
		t.Fatalf("expected ErrGarbageTooShort, got %v", err)
	}
}

func TestAppend_FlushesWhenMTUWouldOverflow(t *testing.T) {
	signer, _ := signator.NewEd25519Signator()
	var serial pcontext.Serial
	sigLen := len(signer.Sign([]byte("x")))
	enc, _ := NewEncoder(ClassUncommitted, signer, &serial, 2+sigLen+9+1+20+1, 0)

	var out [][]byte
	big := make([]byte, 15)
	enc.Append(1, KindRoute, big, &out)
	enc.Append(1, KindRoute, big, &out)
	enc.Flush(&out)

	if len(out) != 2 {
		t.Fatalf("expected the second append to force a flush, got %d envelopes", len(out))
	}
}

func TestDecode_RejectsBadFlags(t *testing.T) {
	buf := make([]byte, 20)
	buf[2] = 3 // flags byte right after the 2-byte hint, with sigLen=0
	if _, err := Decode(buf, 0, nil); err != ErrBadFlags {
		t.Fatalf("expected ErrBadFlags, got %v", err)
	}
}
