// Package gate implements the physics gate: a priority buffer that withholds
// inbound protocol messages from the application until their simulated
// light-cone propagation time has elapsed.
package gate

import (
	"container/heap"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"spacetimekv/internal/spacetime"
	"spacetimekv/internal/wire"
)

// pendingPacket is one buffered message awaiting its causal arrival time.
// seq breaks ties between packets with identical deadlines in FIFO order,
// since container/heap is not otherwise stable.
type pendingPacket struct {
	availableAt time.Time
	seq         uint64
	msg         wire.ProtocolMessage
}

// pendingQueue implements container/heap.Interface, ordered ascending by
// deadline and then by ingest sequence.
type pendingQueue []*pendingPacket

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].availableAt.Equal(q[j].availableAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].availableAt.Before(q[j].availableAt)
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x any) { *q = append(*q, x.(*pendingPacket)) }

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Gate buffers inbound messages until t_received + dist/c has elapsed. It
// is guarded by a single exclusive lock held only across Ingest or
// DrainArrived.
type Gate struct {
	mu    sync.Mutex
	queue pendingQueue
	seq   uint64
	clk   clock.Clock
	log   *logrus.Logger
}

// New creates an empty gate using clk as its time source. Pass clock.New()
// in production and clock.NewMock() in tests, so deadlines can be advanced
// deterministically instead of sleeping.
func New(log *logrus.Logger, clk clock.Clock) *Gate {
	if log == nil {
		log = discardLogger()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Gate{clk: clk, log: log}
}

func discardLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

// Ingest schedules msg for delivery once dist meters of simulated
// propagation delay have elapsed, using the speed of light configured via
// spacetime.CGet at the moment of ingest (not at drain time). Negative or
// NaN distances are clamped to zero delay.
func (g *Gate) Ingest(msg wire.ProtocolMessage, dist float64) {
	if dist < 0 || dist != dist { // dist != dist catches NaN
		dist = 0
	}
	c := spacetime.CGet()
	delay := time.Duration(dist / c * float64(time.Second))

	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	pkt := &pendingPacket{
		availableAt: g.clk.Now().Add(delay),
		seq:         g.seq,
		msg:         msg,
	}
	heap.Push(&g.queue, pkt)
	g.log.WithFields(logrus.Fields{
		"dist":  dist,
		"delay": delay,
	}).Debug("gate: ingested message")
}

// DrainArrived removes and returns, in ascending deadline order, every
// message whose deadline has passed. It never returns a message whose
// deadline is still in the future.
func (g *Gate) DrainArrived() []wire.ProtocolMessage {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clk.Now()
	var ready []wire.ProtocolMessage
	for g.queue.Len() > 0 {
		top := g.queue[0]
		if top.availableAt.After(now) {
			break
		}
		popped := heap.Pop(&g.queue).(*pendingPacket)
		ready = append(ready, popped.msg)
	}
	if len(ready) > 0 {
		g.log.WithField("count", len(ready)).Debug("gate: released arrived messages")
	}
	return ready
}

// Pending returns the number of messages currently buffered.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queue.Len()
}
