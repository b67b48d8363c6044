package gate

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"spacetimekv/internal/event"
	"spacetimekv/internal/spacetime"
	"spacetimekv/internal/wire"
)

func TestEnforcesPropagationDelay(t *testing.T) {
	spacetime.CSet(100) // c = 100 m/s
	mock := clock.NewMock()
	g := New(nil, mock)

	msg := wire.Gossip{Event: event.New(nil, spacetime.Coord{}, event.Genesis{})}
	g.Ingest(msg, 1000) // expected delay = 1000/100 = 10s

	if got := g.DrainArrived(); len(got) != 0 {
		t.Fatalf("expected nothing ready immediately, got %d", len(got))
	}

	mock.Add(9 * time.Second)
	if got := g.DrainArrived(); len(got) != 0 {
		t.Fatalf("expected nothing ready before deadline, got %d", len(got))
	}

	mock.Add(1 * time.Second) // total 10s elapsed
	got := g.DrainArrived()
	if len(got) != 1 {
		t.Fatalf("expected 1 message ready at deadline, got %d", len(got))
	}
}

func TestReleaseOrderIsDeadlineAscending(t *testing.T) {
	spacetime.CSet(1) // c = 1 m/s for simple arithmetic
	mock := clock.NewMock()
	g := New(nil, mock)

	far := wire.Hello{X: 1}
	near := wire.Hello{X: 2}
	g.Ingest(far, 10) // 10s delay
	g.Ingest(near, 2) // 2s delay

	mock.Add(11 * time.Second)
	got := g.DrainArrived()
	if len(got) != 2 {
		t.Fatalf("expected both messages ready, got %d", len(got))
	}
	if got[0] != wire.ProtocolMessage(near) {
		t.Fatalf("expected near (smaller deadline) first, got %+v", got[0])
	}
}

func TestFIFOTiebreakOnEqualDeadlines(t *testing.T) {
	spacetime.CSet(DefaultCForTest)
	mock := clock.NewMock()
	g := New(nil, mock)

	first := wire.Hello{X: 1}
	second := wire.Hello{X: 2}
	g.Ingest(first, 0)
	g.Ingest(second, 0)

	got := g.DrainArrived()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0] != wire.ProtocolMessage(first) || got[1] != wire.ProtocolMessage(second) {
		t.Fatalf("expected FIFO order [first, second], got %+v", got)
	}
}

func TestNegativeAndNaNDistanceClampToZeroDelay(t *testing.T) {
	spacetime.CSet(100)
	mock := clock.NewMock()
	g := New(nil, mock)

	g.Ingest(wire.Hello{X: 1}, -50)
	g.Ingest(wire.Hello{X: 2}, nan())

	got := g.DrainArrived()
	if len(got) != 2 {
		t.Fatalf("expected both messages immediately ready, got %d", len(got))
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

// DefaultCForTest keeps the FIFO tiebreak test's arithmetic independent of
// whatever speed of light another test left configured.
const DefaultCForTest = spacetime.DefaultC
