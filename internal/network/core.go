// Package network implements the simulated transport every other actor in a
// Maelstrom-Go test run communicates through: the routing table, per-edge
// link state, the pending-delivery priority queue, and the fault-injection
// knobs the nemesis drives.
package network

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/maelerr"
)

// ErrClosed is returned by Endpoint.Recv once the endpoint has been
// detached from the core.
var ErrClosed = errors.New("network: endpoint closed")

// LinkState is the per-directed-pair transport state. The matrix need
// not be symmetric: partitioning (a->b) need not partition (b->a).
type LinkState struct {
	Partitioned     bool
	LatencyMeanMS   uint32
	LatencyJitterMS uint32
	LossRate        float64 // independent random-drop probability, outside of partitions
}

type linkKey struct{ src, dest envelope.NodeID }

// pqEvent is one entry in the pending-delivery / wake priority queue.
type pqEvent struct {
	at  time.Time
	seq uint64
	msg *envelope.Message // non-nil: a scheduled delivery
	fn  func()            // non-nil: a scheduled generic wake-up (timer)
}

type eventQueue []*pqEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq // ties broken by insertion order
	}
	return q[i].at.Before(q[j].at)
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(*pqEvent)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// endpoint is the core's side of an attached actor.
type endpoint struct {
	id     envelope.NodeID
	inbox  chan envelope.Message
	paused atomic.Bool

	mu                 sync.Mutex
	pendingWhilePaused []envelope.Message
}

// Endpoint is the handle an actor (user node supervisor, client, built-in
// service, nemesis) uses to talk to the network core.
type Endpoint struct {
	id   envelope.NodeID
	core *Core
	ep   *endpoint
}

// ID returns the endpoint's node id.
func (e *Endpoint) ID() envelope.NodeID { return e.id }

// Send addresses a message to dest. Send never blocks and never reports a
// transport-level failure to the caller: an unknown destination or a
// partitioned link instead produces an error reply (for unknown
// destinations) or a silent drop (for partitions), exactly as a real,
// asynchronous network would.
func (e *Endpoint) Send(dest envelope.NodeID, body json.RawMessage) {
	e.core.send(e.id, dest, body)
}

// Recv blocks until a message addressed to this endpoint is ready for
// delivery, or ctx is done.
func (e *Endpoint) Recv(ctx context.Context) (envelope.Message, error) {
	select {
	case m, ok := <-e.ep.inbox:
		if !ok {
			return envelope.Message{}, ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return envelope.Message{}, ctx.Err()
	}
}

// Close detaches the endpoint from the core. Its inbox is closed; any
// in-flight Recv returns ErrClosed.
func (e *Endpoint) Close() {
	e.core.detach(e.id)
}

// Config bundles the defaults a new Core applies to every link until the
// nemesis (or a test) overrides them.
type Config struct {
	DefaultLatencyMeanMS   uint32
	DefaultLatencyJitterMS uint32
	Duplicate              bool
	Seed                   uint64
}

// Core is the simulated network: the routing table, link matrix,
// pending-delivery queue, and fault policy shared by every attached actor.
type Core struct {
	clock   clock.Clock
	journal *journal.Journal
	rng     *rand.Rand

	mu        sync.Mutex
	nodes     map[envelope.NodeID]*endpoint
	links     map[linkKey]*LinkState
	defaults  LinkState
	duplicate bool
	nextMsgID uint64
	seq       uint64
	pq        eventQueue
	closed    bool

	wake chan struct{}
	done chan struct{}
}

// NewCore constructs a Core and starts the goroutine that pumps its
// pending-delivery queue; Close stops it.
func NewCore(clk clock.Clock, j *journal.Journal, cfg Config) *Core {
	c := &Core{
		clock:   clk,
		journal: j,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		nodes:   make(map[envelope.NodeID]*endpoint),
		links:   make(map[linkKey]*LinkState),
		defaults: LinkState{
			LatencyMeanMS:   cfg.DefaultLatencyMeanMS,
			LatencyJitterMS: cfg.DefaultLatencyJitterMS,
		},
		duplicate: cfg.Duplicate,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go c.loop()
	return c
}

// Attach registers a new actor with id and returns its Endpoint. Attaching
// the same id twice is a programmer error and panics.
func (c *Core) Attach(id envelope.NodeID) *Endpoint {
	c.mu.Lock()
	if _, exists := c.nodes[id]; exists {
		c.mu.Unlock()
		panic(fmt.Sprintf("network: node %q already attached", id))
	}
	ep := &endpoint{id: id, inbox: make(chan envelope.Message, 64)}
	c.nodes[id] = ep
	c.mu.Unlock()
	return &Endpoint{id: id, core: c, ep: ep}
}

func (c *Core) detach(id envelope.NodeID) {
	c.mu.Lock()
	ep, ok := c.nodes[id]
	if ok {
		delete(c.nodes, id)
	}
	c.mu.Unlock()
	if ok {
		close(ep.inbox)
	}
}

// NodeIDs returns every currently attached node id, in no particular order.
func (c *Core) NodeIDs() []envelope.NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]envelope.NodeID, 0, len(c.nodes))
	for id := range c.nodes {
		out = append(out, id)
	}
	return out
}

// Link returns the current link state for the directed pair (src -> dest),
// for introspection by the debug console or a test.
func (c *Core) Link(src, dest envelope.NodeID) LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.linkLocked(src, dest)
}

// SetLink sets the link state for the directed pair (src -> dest).
func (c *Core) SetLink(src, dest envelope.NodeID, state LinkState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := state
	c.links[linkKey{src, dest}] = &s
}

// Partition sets (or heals) the directed link (src -> dest). Partitioning
// is one-way by construction: the caller decides whether to also call
// Partition(dest, src, ...) for a symmetric split.
func (c *Core) Partition(src, dest envelope.NodeID, partitioned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	link := c.linkLocked(src, dest)
	cp := *link
	cp.Partitioned = partitioned
	c.links[linkKey{src, dest}] = &cp
}

// Pause suspends delivery to id: messages addressed to it accumulate
// in-order until Unpause is called.
func (c *Core) Pause(id envelope.NodeID) {
	c.mu.Lock()
	ep := c.nodes[id]
	c.mu.Unlock()
	if ep != nil {
		ep.paused.Store(true)
	}
}

// Unpause resumes delivery to id, flushing any messages that accumulated
// while it was paused, in the order they were originally scheduled.
func (c *Core) Unpause(id envelope.NodeID) {
	c.mu.Lock()
	ep := c.nodes[id]
	c.mu.Unlock()
	if ep == nil {
		return
	}
	ep.paused.Store(false)
	ep.mu.Lock()
	pending := ep.pendingWhilePaused
	ep.pendingWhilePaused = nil
	ep.mu.Unlock()
	for _, msg := range pending {
		c.deliverNow(ep, msg)
	}
}

// ScheduleWake enqueues fn to run after d elapses, on the same priority
// queue that carries message deliveries. fn runs in its own
// goroutine so it never blocks the pump.
func (c *Core) ScheduleWake(d time.Duration, fn func()) {
	at := c.clock.Now().Add(d)
	c.mu.Lock()
	c.seq++
	heap.Push(&c.pq, &pqEvent{at: at, seq: c.seq, fn: fn})
	c.mu.Unlock()
	c.poke()
}

// Close stops the pump and detaches every remaining endpoint.
func (c *Core) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ids := make([]envelope.NodeID, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	close(c.done)
	for _, id := range ids {
		c.detach(id)
	}
}

func (c *Core) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Core) linkLocked(src, dest envelope.NodeID) *LinkState {
	if l, ok := c.links[linkKey{src, dest}]; ok {
		return l
	}
	cp := c.defaults
	return &cp
}

func (c *Core) send(src, dest envelope.NodeID, body json.RawMessage) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.nextMsgID++
	id := c.nextMsgID
	now := c.clock.Now()
	msg := envelope.Message{ID: id, Src: src, Dest: dest, Body: body}
	c.journal.Append(journal.Entry{TimeNanos: now.UnixNano(), Direction: journal.Send, Message: msg})

	_, destOK := c.nodes[dest]
	_, srcOK := c.nodes[src]
	if !destOK {
		c.mu.Unlock()
		if srcOK {
			c.sendUnknownDestError(src, dest, body)
		}
		return
	}
	link := c.linkLocked(src, dest)
	if link.Partitioned {
		c.mu.Unlock()
		return
	}
	if link.LossRate > 0 && c.rng.Float64() < link.LossRate {
		c.mu.Unlock()
		return
	}
	duplicate := c.duplicate
	c.mu.Unlock()

	c.scheduleDeliver(msg, c.sampleLatency(src, dest))
	if duplicate {
		c.scheduleDeliver(msg, c.sampleLatency(src, dest))
	}
}

func (c *Core) sendUnknownDestError(src, dest envelope.NodeID, reqBody json.RawMessage) {
	errFields := map[string]any{
		"type": "error",
		"code": int(maelerr.NodeDoesNotExist),
		"text": "node does not exist",
	}
	if reserved, err := (envelope.Message{Body: reqBody}).Reserved(); err == nil && reserved.MsgID != nil {
		errFields["in_reply_to"] = *reserved.MsgID
	}
	body, err := envelope.NewBody(errFields)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.nextMsgID++
	id := c.nextMsgID
	// The reply is synthesized by the core "as" the unreachable destination.
	msg := envelope.Message{ID: id, Src: dest, Dest: src, Body: body}
	c.journal.Append(journal.Entry{TimeNanos: c.clock.Now().UnixNano(), Direction: journal.Send, Message: msg})
	c.mu.Unlock()
	c.scheduleDeliver(msg, c.sampleLatency(dest, src))
}

func (c *Core) sampleLatency(src, dest envelope.NodeID) time.Duration {
	c.mu.Lock()
	link := c.linkLocked(src, dest)
	mean := float64(link.LatencyMeanMS)
	jitter := float64(link.LatencyJitterMS)
	var d float64
	if jitter > 0 {
		d = mean + c.rng.NormFloat64()*jitter
	} else {
		d = mean
	}
	c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	return time.Duration(d * float64(time.Millisecond))
}

func (c *Core) scheduleDeliver(msg envelope.Message, d time.Duration) {
	at := c.clock.Now().Add(d)
	c.mu.Lock()
	c.seq++
	m := msg
	heap.Push(&c.pq, &pqEvent{at: at, seq: c.seq, msg: &m})
	c.mu.Unlock()
	c.poke()
}

func (c *Core) deliverNow(ep *endpoint, msg envelope.Message) {
	c.journal.Append(journal.Entry{TimeNanos: c.clock.Now().UnixNano(), Direction: journal.Recv, Message: msg})
	select {
	case ep.inbox <- msg:
	default:
		go func() { ep.inbox <- msg }()
	}
}

func (c *Core) loop() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if len(c.pq) == 0 {
			c.mu.Unlock()
			select {
			case <-c.wake:
			case <-c.done:
				return
			}
			continue
		}
		next := c.pq[0]
		now := c.clock.Now()
		if next.at.After(now) {
			c.mu.Unlock()
			if v, ok := c.clock.(*clock.Virtual); ok {
				v.Advance(next.at)
				continue
			}
			select {
			case <-time.After(next.at.Sub(now)):
			case <-c.wake:
			case <-c.done:
				return
			}
			continue
		}
		ev := heap.Pop(&c.pq).(*pqEvent)
		c.mu.Unlock()
		c.dispatch(ev)
	}
}

func (c *Core) dispatch(ev *pqEvent) {
	if ev.fn != nil {
		go ev.fn()
		return
	}
	msg := *ev.msg
	c.mu.Lock()
	ep, ok := c.nodes[msg.Dest]
	c.mu.Unlock()
	if !ok {
		return
	}
	if ep.paused.Load() {
		ep.mu.Lock()
		ep.pendingWhilePaused = append(ep.pendingWhilePaused, msg)
		ep.mu.Unlock()
		return
	}
	c.deliverNow(ep, msg)
}
