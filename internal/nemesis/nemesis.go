// Package nemesis implements the fault scheduler actor: a periodic actor
// whose policy is a small state machine driven by a pluggable nemesis
// kind. It never touches node binaries or the network core
// directly; the runner supplies a Controls implementation that performs
// the actual partition/pause/kill mechanics, so this package stays a
// pure policy.
package nemesis

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
)

// Kind selects a nemesis's fault policy.
type Kind string

const (
	None      Kind = "none"
	Partition Kind = "partition"
	Pause     Kind = "pause"
	Kill      Kind = "kill"
)

// Scheduler lets a Nemesis tie its periodic transitions to the same
// virtual clock the network core runs its event pump on, instead of a
// wall-clock timer, so fault injection stays in step with a run driven
// by clock.Virtual.
type Scheduler interface {
	// ScheduleWake calls fn once d has elapsed, measured against the
	// scheduler's own clock.
	ScheduleWake(d time.Duration, fn func())
}

// Controls is the set of disruptive actions a nemesis may perform. The
// runner implements it against the live network core and supervisors; the
// nemesis itself holds no reference to either, keeping the fault policy
// testable in isolation.
type Controls interface {
	// Partition sets whether src can reach dest; callers flip both
	// directions to fully sever a pair.
	Partition(src, dest envelope.NodeID, partitioned bool)
	// PauseNode suspends a node process without closing its pipes.
	PauseNode(id envelope.NodeID) error
	// ResumeNode un-suspends a previously paused node.
	ResumeNode(id envelope.NodeID) error
	// KillNode terminates a node process and has the runner respawn and
	// re-initialize it with a fresh init.
	KillNode(id envelope.NodeID) error
}

// Config configures a Nemesis run.
type Config struct {
	Kind          Kind
	Nodes         []envelope.NodeID
	FaultInterval time.Duration
	Seed          uint64
}

// Nemesis is the fault scheduler actor.
type Nemesis struct {
	cfg      Config
	controls Controls
	hist     *history.History
	logger   *slog.Logger
	rng      *rand.Rand

	healed      bool              // current state for the partition kind: true = healed
	pausedNodes []envelope.NodeID // current state for the pause kind: nodes suspended since the last resume
}

// New constructs a Nemesis.
func New(cfg Config, controls Controls, hist *history.History, logger *slog.Logger) *Nemesis {
	return &Nemesis{
		cfg:      cfg,
		controls: controls,
		hist:     hist,
		logger:   logger.With("nemesis", cfg.Kind),
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		healed:   true,
	}
}

// Run fires transitions every cfg.FaultInterval, scheduled through sched
// rather than a wall-clock timer, until ctx is done; it then returns
// without healing (the caller calls Heal once the load phase ends).
func (n *Nemesis) Run(ctx context.Context, clk clock.Clock, sched Scheduler) {
	if n.cfg.Kind == None || n.cfg.FaultInterval <= 0 {
		<-ctx.Done()
		return
	}
	var tick func()
	tick = func() {
		if ctx.Err() != nil {
			return
		}
		n.transition(clk)
		sched.ScheduleWake(n.cfg.FaultInterval, tick)
	}
	sched.ScheduleWake(n.cfg.FaultInterval, tick)
	<-ctx.Done()
}

func (n *Nemesis) transition(clk clock.Clock) {
	var desc string
	var err error
	switch n.cfg.Kind {
	case Partition:
		desc, err = n.transitionPartition()
	case Pause:
		desc, err = n.transitionPause()
	case Kill:
		desc, err = n.transitionKill()
	}
	if err != nil {
		n.logger.Warn("nemesis transition failed", "err", err)
		desc = desc + " (failed: " + err.Error() + ")"
	}
	n.record(clk, desc)
}

// transitionPartition alternates between healed and partitioned, picking
// a fresh random majority/minority split each time it partitions.
func (n *Nemesis) transitionPartition() (string, error) {
	if n.healed {
		minority := n.randomSplit()
		for _, a := range minority {
			for _, b := range n.cfg.Nodes {
				if inSet(minority, b) {
					continue
				}
				n.controls.Partition(a, b, true)
				n.controls.Partition(b, a, true)
			}
		}
		n.healed = false
		return "partition", nil
	}
	n.healAll()
	n.healed = true
	return "heal", nil
}

// transitionPause alternates between suspending a fresh random node and
// resuming every node it previously suspended, the same way
// transitionPartition alternates between partitioning and healing.
func (n *Nemesis) transitionPause() (string, error) {
	if len(n.cfg.Nodes) == 0 {
		return "pause", nil
	}
	if len(n.pausedNodes) > 0 {
		var resumed []string
		for _, id := range n.pausedNodes {
			if err := n.controls.ResumeNode(id); err != nil {
				return "resume " + string(id), err
			}
			resumed = append(resumed, string(id))
		}
		n.pausedNodes = nil
		return "resume " + strings.Join(resumed, ","), nil
	}
	target := n.cfg.Nodes[n.rng.IntN(len(n.cfg.Nodes))]
	if err := n.controls.PauseNode(target); err != nil {
		return "pause " + string(target), err
	}
	n.pausedNodes = append(n.pausedNodes, target)
	return "pause " + string(target), nil
}

func (n *Nemesis) transitionKill() (string, error) {
	if len(n.cfg.Nodes) == 0 {
		return "kill", nil
	}
	target := n.cfg.Nodes[n.rng.IntN(len(n.cfg.Nodes))]
	if err := n.controls.KillNode(target); err != nil {
		return "kill " + string(target), err
	}
	return "kill " + string(target), nil
}

// Heal restores full connectivity and resumes any paused node; the
// runner calls this once before the quiet/drain period begins.
func (n *Nemesis) Heal() {
	n.healAll()
	n.healed = true
	for _, id := range n.cfg.Nodes {
		_ = n.controls.ResumeNode(id)
	}
	n.pausedNodes = nil
}

func (n *Nemesis) healAll() {
	for _, a := range n.cfg.Nodes {
		for _, b := range n.cfg.Nodes {
			if a == b {
				continue
			}
			n.controls.Partition(a, b, false)
		}
	}
}

// randomSplit returns a non-empty, non-full subset of cfg.Nodes to use as
// the minority side of a partition.
func (n *Nemesis) randomSplit() []envelope.NodeID {
	if len(n.cfg.Nodes) < 2 {
		return nil
	}
	size := 1 + n.rng.IntN(max((len(n.cfg.Nodes)-1)/2, 1))
	shuffled := append([]envelope.NodeID(nil), n.cfg.Nodes...)
	n.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:size]
}

func inSet(set []envelope.NodeID, id envelope.NodeID) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

// record appends desc to history as an operation on the distinguished
// nemesis pseudo-process, so the checker can correlate faults with
// anomalies.
func (n *Nemesis) record(clk clock.Clock, desc string) {
	now := clk.Now().UnixNano()
	if _, err := n.hist.Invoke(history.NemesisProcess, now, desc, nil); err != nil {
		n.logger.Warn("record nemesis invoke", "err", err)
		return
	}
	if err := n.hist.Complete(history.NemesisProcess, now, history.Info, desc, nil); err != nil {
		n.logger.Warn("record nemesis complete", "err", err)
	}
}
