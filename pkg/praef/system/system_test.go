package system

import (
	"testing"

	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/internal/praeflog"
)

type noopBus struct{ closed bool }

func (n *noopBus) CreateRoute(bus.NetID) bool                { return true }
func (n *noopBus) DeleteRoute(bus.NetID) bool                { return true }
func (n *noopBus) Unicast(bus.NetID, []byte) error           { return nil }
func (n *noopBus) TriangularUnicast(bus.NetID, []byte) error { return nil }
func (n *noopBus) Broadcast([]byte) error                    { return nil }
func (n *noopBus) Recv() ([]byte, bus.NetID, bool)           { return nil, "", false }
func (n *noopBus) Close() error                              { n.closed = true; return nil }

func TestSystem_BootstrapStepDoesNotPanicWithNoTraffic(t *testing.T) {
	cfg := DefaultConfig(4)
	s, err := NewBootstrap(cfg, praeflog.NewLogrus(), &noopBus{}, "node-1")
	if err != nil {
		t.Fatalf("NewBootstrap: %v", err)
	}

	for i := 0; i < 5; i++ {
		s.Step()
	}

	if s.Status() != StatusOK {
		t.Fatalf("expected a bootstrap's status to be ok, got %v", s.Status())
	}
	if s.LocalID() != 1 {
		t.Fatalf("expected a bootstrap to adopt id 1, got %d", s.LocalID())
	}
}

func TestSystem_JoinerStartsAnonymous(t *testing.T) {
	cfg := DefaultConfig(4)
	s, err := NewJoiner(cfg, praeflog.NewLogrus(), &noopBus{}, "node-2", "node-1")
	if err != nil {
		t.Fatalf("NewJoiner: %v", err)
	}

	for i := 0; i < 5; i++ {
		s.Step()
	}

	if s.Status() != StatusAnonymous {
		t.Fatalf("expected status to remain anonymous with no peers, got %v", s.Status())
	}
}

func TestSystem_ShutdownClosesBus(t *testing.T) {
	cfg := DefaultConfig(4)
	b := &noopBus{}
	s, err := NewBootstrap(cfg, praeflog.NewLogrus(), b, "node-1")
	if err != nil {
		t.Fatalf("NewBootstrap: %v", err)
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !b.closed {
		t.Fatalf("expected Shutdown to close the bus")
	}
}
