package dispatch

import (
	"testing"

	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/internal/praeflog"
	"github.com/praefectus-go/praef/pkg/praef/hlmsg"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
	"github.com/praefectus-go/praef/pkg/praef/router"
	"github.com/praefectus-go/praef/pkg/praef/signator"
)

func TestDispatch_MalformedInputIsSilentlyDropped(t *testing.T) {
	d := New(praeflog.NewLogrus(), signator.NewEd25519Verifier(), 0, 64)
	called := false
	d.On(hlmsg.KindPing, func(hlmsg.Envelope, bus.NetID, signator.NodeID, hlmsg.Segment) { called = true })

	d.Dispatch([]byte{1, 2, 3}, "peer") // too short to be a valid envelope

	if called {
		t.Fatalf("expected malformed input not to reach any handler")
	}
}

func TestDispatch_RoutesToRegisteredHandler(t *testing.T) {
	signer, _ := signator.NewEd25519Signator()
	verifier := signator.NewEd25519Verifier()
	verifier.Assoc(signer.PublicKey(), 42)

	sigLen := len(signer.Sign([]byte("x")))
	var serial pcontext.Serial
	enc, _ := hlmsg.NewEncoder(hlmsg.ClassRPC, signer, &serial, 512, 0)

	var out [][]byte
	enc.Singleton(3, hlmsg.KindPing, []byte("pingdata"), &out)

	d := New(praeflog.NewLogrus(), verifier, 0, sigLen)
	var gotOrigin signator.NodeID
	var gotFrom bus.NetID
	d.On(hlmsg.KindPing, func(env hlmsg.Envelope, from bus.NetID, origin signator.NodeID, seg hlmsg.Segment) {
		gotOrigin = origin
		gotFrom = from
	})

	d.Dispatch(out[0], "peer-a")

	if gotOrigin != 42 {
		t.Fatalf("expected the handler to see origin 42, got %d", gotOrigin)
	}
	if gotFrom != "peer-a" {
		t.Fatalf("expected the handler to see from %q, got %q", "peer-a", gotFrom)
	}
}

func TestRouteManager_PongRestoresHasRoute(t *testing.T) {
	rm := NewRouteManager(10, 100, 5, 20)

	var peer router.NodeID = 7
	rm.Tick(0, peer, false)
	s := rm.stateFor(peer)
	rm.ReceivePong(peer, s.InFlightID, 2)

	if !s.HasRoute {
		t.Fatalf("expected HasRoute to be set after a matching pong")
	}
}
