// Package replica is the thin orchestration layer that wires the spacetime,
// event, dag, and gate subsystems together with an external transport: it
// authors local events, gossips them to peers, and ingests inbound
// messages through the physics gate before admitting them to the DAG.
package replica

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"spacetimekv/internal/dag"
	"spacetimekv/internal/event"
	"spacetimekv/internal/gate"
	"spacetimekv/internal/spacetime"
	"spacetimekv/internal/wire"
)

// Transport is the contract a replica needs from the outside world: a
// reliable, authenticated, message-oriented send operation addressed to an
// opaque peer identifier. See spec.md §6; the concrete implementation
// (package transport) is a libp2p-backed adapter and is otherwise not the
// concern of this package.
type Transport interface {
	Send(ctx context.Context, peer string, msg wire.ProtocolMessage) error
}

// Config holds the knobs spec.md §6 enumerates for a replica.
type Config struct {
	SelfCoord        spacetime.Coord
	Peers            []string
	GateTickInterval time.Duration
}

// Replica owns one DAG, one gate, a local coordinate, and a transport
// handle. It runs three concurrent activities: authoring (application
// triggered), ingestion (one call per inbound message), and periodic
// release (draining the gate on a tick).
type Replica struct {
	cfg       Config
	dag       *dag.DAG
	gate      *gate.Gate
	transport Transport
	clk       clock.Clock
	log       *logrus.Logger
}

// New wires a Replica from its subsystems. Pass clock.New() in production;
// tests may substitute clock.NewMock() to drive the release loop and
// author timestamps deterministically.
func New(cfg Config, d *dag.DAG, g *gate.Gate, t Transport, clk clock.Clock, log *logrus.Logger) *Replica {
	if log == nil {
		log = discardLogger()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.GateTickInterval <= 0 {
		cfg.GateTickInterval = 50 * time.Millisecond
	}
	return &Replica{cfg: cfg, dag: d, gate: g, transport: t, clk: clk, log: log}
}

func discardLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

// Put authors a Put(key, value) event, admits it locally, and gossips it
// (preceded by its direct parents) to every configured peer.
func (r *Replica) Put(ctx context.Context, key string, value []byte) (event.Hash, error) {
	return r.author(ctx, event.Put{Key: key, Value: value})
}

// Delete authors a Delete(key) event, admits it locally, and gossips it.
func (r *Replica) Delete(ctx context.Context, key string) (event.Hash, error) {
	return r.author(ctx, event.Delete{Key: key})
}

// author implements spec.md §4.5's Authoring sequence: snapshot heads as
// parents, construct the event at the local coordinate, admit it locally
// (an admit failure here is a programmer-error invariant violation, not an
// environmental error), then fan the event plus its direct parents out to
// every peer.
func (r *Replica) author(ctx context.Context, payload event.Operation) (event.Hash, error) {
	parents := r.dag.Heads()

	parentEvents := make([]event.Event, 0, len(parents))
	for _, p := range parents {
		if pe, ok := r.dag.Get(p); ok {
			parentEvents = append(parentEvents, pe)
		}
	}

	coords := spacetime.Coord{
		T: uint64(r.clk.Now().UnixNano()),
		X: r.cfg.SelfCoord.X,
		Y: r.cfg.SelfCoord.Y,
		Z: r.cfg.SelfCoord.Z,
	}
	e := event.New(parents, coords, payload)

	if err := r.dag.AddEvent(e); err != nil {
		// Admitting a freshly-authored event whose parents are this
		// replica's own heads must always succeed; failure here means the
		// DAG's invariants have already been violated elsewhere.
		r.log.WithError(err).WithField("hash", e.Hash.String()).Panic("replica: failed to admit locally-authored event")
	}

	gossipSet := append(parentEvents, e)
	for _, peer := range r.cfg.Peers {
		for _, ge := range gossipSet {
			if err := r.transport.Send(ctx, peer, wire.Gossip{Event: ge}); err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{
					"peer": peer,
					"hash": ge.Hash.String(),
				}).Warn("replica: gossip send failed")
			}
		}
	}

	return e.Hash, nil
}

// Ingest computes the sender/receiver separation for msg and hands it to
// the physics gate. Gossip messages carry the author's coordinates;
// Hello messages are treated as zero-distance (spec.md §4.5).
func (r *Replica) Ingest(msg wire.ProtocolMessage) {
	dist := 0.0
	if g, ok := msg.(wire.Gossip); ok {
		dist = r.distanceTo(g.Event.Coords)
	}
	r.gate.Ingest(msg, dist)
}

func (r *Replica) distanceTo(c spacetime.Coord) float64 {
	dx := c.X - r.cfg.SelfCoord.X
	dy := c.Y - r.cfg.SelfCoord.Y
	dz := c.Z - r.cfg.SelfCoord.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// ReleaseOnce drains every message whose light-cone deadline has arrived
// and admits each released Gossip event to the DAG. A MissingParent result
// is expected and not fatal: the DAG itself buffers the event as an
// orphan and will admit it once the missing parent arrives via a later
// release.
func (r *Replica) ReleaseOnce() {
	for _, msg := range r.gate.DrainArrived() {
		switch m := msg.(type) {
		case wire.Gossip:
			if err := r.dag.AddEvent(m.Event); err != nil {
				r.log.WithError(err).WithField("hash", m.Event.Hash.String()).Debug("replica: event not yet admissible")
			}
		case wire.Hello:
			r.log.WithFields(logrus.Fields{"x": m.X, "y": m.Y, "z": m.Z}).Debug("replica: received hello")
		default:
			r.log.Warnf("replica: unknown protocol message %T", msg)
		}
	}
}

// Run drives the periodic release activity until ctx is canceled, ticking
// at cfg.GateTickInterval.
func (r *Replica) Run(ctx context.Context) {
	ticker := r.clk.Ticker(r.cfg.GateTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReleaseOnce()
		}
	}
}

// DAG exposes the replica's DAG for read-only inspection (CLI, HTTP API).
func (r *Replica) DAG() *dag.DAG { return r.dag }

// Gate exposes the replica's gate for read-only inspection.
func (r *Replica) Gate() *gate.Gate { return r.gate }

// SendHello announces this replica's position to peer.
func (r *Replica) SendHello(ctx context.Context, peer string) error {
	msg := wire.Hello{X: r.cfg.SelfCoord.X, Y: r.cfg.SelfCoord.Y, Z: r.cfg.SelfCoord.Z}
	if err := r.transport.Send(ctx, peer, msg); err != nil {
		return fmt.Errorf("replica: send hello to %s: %w", peer, err)
	}
	return nil
}
