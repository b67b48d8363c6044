// Package dag implements the append-only, content-addressed event graph
// that is the store's CRDT backbone: replicas admit immutable events whose
// parent links encode causality, and the set of heads is the concurrency
// frontier new events should extend.
package dag

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"spacetimekv/internal/event"
	"spacetimekv/internal/spacetime"
)

func discardLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

// ErrMissingParent is returned by AddEvent when at least one declared
// parent is not yet resident. The event is held in the orphan index and
// retried automatically once the missing parent is admitted.
var ErrMissingParent = errors.New("dag: missing parent event")

// ErrDuplicate is returned by AddEvent when the event's hash is already
// resident. Admission is a no-op in this case; the DAG is left unchanged.
var ErrDuplicate = errors.New("dag: duplicate event")

// ErrInvariant marks an internal invariant violation (missing genesis,
// inconsistent heads, …). Unlike the errors above, this is never expected
// in correct operation and callers should treat it as fatal, per
// spec.md §7's InternalInvariantViolation category.
var ErrInvariant = errors.New("dag: invariant violation")

// DAG is an append-only, indexed directed graph of Events. Mutations are
// guarded by a single exclusive lock held only across a single AddEvent or
// Heads snapshot; readers never observe a partially-applied admit.
type DAG struct {
	mu      sync.Mutex
	index   map[event.Hash]event.Event
	heads   []event.Hash
	orphans map[event.Hash][]event.Event // keyed by the missing parent hash
	log     *logrus.Logger
}

// New creates a DAG containing exactly the genesis event, with heads
// equal to {genesis.Hash}.
func New(log *logrus.Logger) *DAG {
	if log == nil {
		log = discardLogger()
	}
	genesis := event.New(nil, spacetime.Coord{}, event.Genesis{})
	d := &DAG{
		index:   map[event.Hash]event.Event{genesis.Hash: genesis},
		heads:   []event.Hash{genesis.Hash},
		orphans: make(map[event.Hash][]event.Event),
		log:     log,
	}
	return d
}

// AddEvent admits e to the DAG. On success it inserts the node, connects
// edges to its parents, and updates heads atomically with respect to
// concurrent Heads() readers. ErrMissingParent is returned (and e is
// buffered as an orphan) when a parent is not yet resident; ErrDuplicate
// is returned when e.Hash is already resident.
func (d *DAG) AddEvent(e event.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addLocked(e)
}

// addLocked performs a single admission and then drains any orphans that
// were waiting on e, recursing transitively. Must be called with mu held.
func (d *DAG) addLocked(e event.Event) error {
	if _, exists := d.index[e.Hash]; exists {
		d.log.WithField("hash", e.Hash.String()).Debug("dag: duplicate admit ignored")
		return ErrDuplicate
	}

	for _, p := range e.Parents {
		if _, ok := d.index[p]; !ok {
			d.bufferOrphan(p, e)
			d.log.WithFields(logrus.Fields{
				"hash":   e.Hash.String(),
				"parent": p.String(),
			}).Debug("dag: buffered orphan awaiting missing parent")
			return ErrMissingParent
		}
	}

	d.admit(e)
	d.drainOrphans(e.Hash)
	return nil
}

// admit inserts e and updates the head set. Callers must already have
// verified every parent is resident and must hold mu.
func (d *DAG) admit(e event.Event) {
	d.index[e.Hash] = e

	parentSet := make(map[event.Hash]struct{}, len(e.Parents))
	for _, p := range e.Parents {
		parentSet[p] = struct{}{}
	}
	kept := d.heads[:0]
	for _, h := range d.heads {
		if _, isParent := parentSet[h]; !isParent {
			kept = append(kept, h)
		}
	}
	d.heads = append(kept, e.Hash)

	d.log.WithFields(logrus.Fields{
		"hash":  e.Hash.String(),
		"heads": len(d.heads),
	}).Debug("dag: event admitted")
}

// bufferOrphan queues e under the missing parent hash so it is retried
// once that parent becomes resident.
func (d *DAG) bufferOrphan(missing event.Hash, e event.Event) {
	for _, existing := range d.orphans[missing] {
		if existing.Hash == e.Hash {
			return
		}
	}
	d.orphans[missing] = append(d.orphans[missing], e)
}

// drainOrphans retries every orphan waiting on parentHash now that it has
// been admitted, recursing into any orphan that becomes admissible as a
// result. This implements the orphan-buffering behavior spec.md §4.5/§9
// calls out as the prototype's principal correctness gap.
func (d *DAG) drainOrphans(parentHash event.Hash) {
	waiting, ok := d.orphans[parentHash]
	if !ok {
		return
	}
	delete(d.orphans, parentHash)

	for _, orphan := range waiting {
		ready := true
		for _, p := range orphan.Parents {
			if _, resident := d.index[p]; !resident {
				ready = false
				d.bufferOrphan(p, orphan)
			}
		}
		if !ready {
			continue
		}
		if _, exists := d.index[orphan.Hash]; exists {
			continue
		}
		d.admit(orphan)
		d.drainOrphans(orphan.Hash)
	}
}

// Heads returns a snapshot of the current concurrency frontier.
func (d *DAG) Heads() []event.Hash {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Hash, len(d.heads))
	copy(out, d.heads)
	return out
}

// Get returns the resident event with the given hash, if any.
func (d *DAG) Get(hash event.Hash) (event.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.index[hash]
	return e, ok
}

// Len returns the number of resident events, including genesis.
func (d *DAG) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// OrphanCount returns the number of events currently buffered awaiting a
// missing parent. Exposed for observability (httpapi, CLI).
func (d *DAG) OrphanCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, waiting := range d.orphans {
		n += len(waiting)
	}
	return n
}

// CausalClosure returns the transitive parent closure of hash: hash
// itself plus every ancestor reachable by following parent links, up to
// maxDepth hops (0 means unbounded). The result is a gossip payload a peer
// can admit without hitting MissingParent; the replica driver does not call
// it and gossips only an event's direct parents.
func (d *DAG) CausalClosure(hash event.Hash, maxDepth int) ([]event.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start, ok := d.index[hash]
	if !ok {
		return nil, fmt.Errorf("dag: %w: %s not resident", ErrInvariant, hash)
	}

	seen := map[event.Hash]struct{}{hash: {}}
	out := []event.Event{start}
	frontier := []event.Hash{hash}
	depth := 0
	for len(frontier) > 0 && (maxDepth <= 0 || depth < maxDepth) {
		var next []event.Hash
		for _, h := range frontier {
			e := d.index[h]
			for _, p := range e.Parents {
				if _, dup := seen[p]; dup {
					continue
				}
				seen[p] = struct{}{}
				pe, ok := d.index[p]
				if !ok {
					return nil, fmt.Errorf("dag: %w: parent %s of %s not resident", ErrInvariant, p, h)
				}
				out = append(out, pe)
				next = append(next, p)
			}
		}
		frontier = next
		depth++
	}
	return out, nil
}
