package outbox

import (
	"testing"

	"github.com/praefectus-go/praef/internal/bus"
	"github.com/praefectus-go/praef/pkg/praef/pcontext"
)

type fakeBus struct {
	unicasts   [][]byte
	broadcasts [][]byte
}

func (f *fakeBus) CreateRoute(bus.NetID) bool { return true }
func (f *fakeBus) DeleteRoute(bus.NetID) bool { return true }
func (f *fakeBus) Unicast(id bus.NetID, data []byte) error {
	f.unicasts = append(f.unicasts, data)
	return nil
}
func (f *fakeBus) TriangularUnicast(id bus.NetID, data []byte) error { return f.Unicast(id, data) }
func (f *fakeBus) Broadcast(data []byte) error {
	f.broadcasts = append(f.broadcasts, data)
	return nil
}
func (f *fakeBus) Recv() ([]byte, bus.NetID, bool) { return nil, "", false }
func (f *fakeBus) Close() error                    { return nil }

func TestMessageQueue_UpdateReleasesUpToThreshold(t *testing.T) {
	q := NewMessageQueue("peer", false, false)
	q.push(5, []byte("a"))
	q.push(10, []byte("b"))
	q.Threshold = 5

	fb := &fakeBus{}
	if err := q.Update(fb); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fb.unicasts) != 1 || string(fb.unicasts[0]) != "a" {
		t.Fatalf("expected only the instant-5 envelope released, got %v", fb.unicasts)
	}

	q.Threshold = Infinite
	if err := q.Update(fb); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fb.unicasts) != 2 {
		t.Fatalf("expected the remaining envelope released once threshold is infinite, got %d", len(fb.unicasts))
	}
}

func TestMessageQueue_GrowsOnDemand(t *testing.T) {
	q := NewMessageQueue("peer", false, false)
	for i := 0; i < 20; i++ {
		q.push(pcontext.Instant(i), []byte{byte(i)})
	}
	if q.size != 20 {
		t.Fatalf("expected all 20 pushed envelopes retained, got %d", q.size)
	}
}
