package transport

import (
	"context"
	"testing"
	"time"

	"spacetimekv/internal/event"
	"spacetimekv/internal/spacetime"
	"spacetimekv/internal/wire"
)

func newLoopbackNode(t *testing.T, ctx context.Context) *Node {
	t.Helper()
	n, err := New(ctx, Config{
		ListenAddr:   "/ip4/127.0.0.1/tcp/0",
		DiscoveryTag: "spacetimekv-test",
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestSendDeliversAcrossDirectlyDialedNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newLoopbackNode(t, ctx)
	b := newLoopbackNode(t, ctx)

	addrs := a.Addrs()
	if len(addrs) == 0 {
		t.Fatal("expected node a to have at least one listen address")
	}
	if err := b.DialSeed(addrs); err != nil {
		t.Fatalf("DialSeed: %v", err)
	}

	// gossipsub needs a brief settling period after connect before mesh
	// membership propagates and a publish is guaranteed deliverable.
	time.Sleep(200 * time.Millisecond)

	e := event.New(nil, spacetime.Coord{}, event.Put{Key: "k", Value: []byte("v")})
	sent := wire.Gossip{Event: e}

	msgs := b.Messages()
	if err := a.Send(ctx, "", sent); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-msgs:
		g, ok := got.(wire.Gossip)
		if !ok {
			t.Fatalf("expected Gossip, got %T", got)
		}
		if g.Event.Hash != e.Hash {
			t.Fatalf("hash mismatch: got %s want %s", g.Event.Hash, e.Hash)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for gossip delivery")
	}
}
