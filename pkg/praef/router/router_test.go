package router

import (
	"testing"

	"github.com/praefectus-go/praef/pkg/praef/outbox"
)

func TestVisibilityHorizon_LocalIsInfinite(t *testing.T) {
	got := VisibilityHorizon(VisibilityInput{IsLocal: true})
	if got != outbox.Infinite {
		t.Fatalf("expected local node to see everything, got %d", got)
	}
}

func TestVisibilityHorizon_DeniedIsZero(t *testing.T) {
	got := VisibilityHorizon(VisibilityInput{HasDeny: true, Committed: 100})
	if got != 0 {
		t.Fatalf("expected a denied node's horizon to be zero, got %d", got)
	}
}

func TestVisibilityHorizon_AddsLaxnessAndCompensation(t *testing.T) {
	got := VisibilityHorizon(VisibilityInput{
		Committed:                     10,
		CommitLagLaxness:              5,
		LocalMinLatency:               65536,
		SelfCommitLagCompensationNum:   1,
		SelfCommitLagCompensationDenom: 1,
	})
	if got != 10+5+65536 {
		t.Fatalf("expected committed+laxness+compensation, got %d", got)
	}
}
