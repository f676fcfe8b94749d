// Package runner is the test runner: it owns every node supervisor and
// the network core for one test's lifetime, driving setup, concurrent
// load and fault injection, drain, teardown, checking, and result
// aggregation in sequence.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/maelerr"
	"github.com/distlab/maelstrom/internal/nemesis"
	"github.com/distlab/maelstrom/internal/network"
	"github.com/distlab/maelstrom/internal/result"
	"github.com/distlab/maelstrom/internal/services/debugconsole"
	"github.com/distlab/maelstrom/internal/services/kv"
	"github.com/distlab/maelstrom/internal/services/tso"
	"github.com/distlab/maelstrom/internal/supervisor"
	"github.com/distlab/maelstrom/internal/workload"
	logicalclient "github.com/distlab/maelstrom/internal/client"
)

// Config bundles the primitive values --test accepts.
type Config struct {
	RunID         string
	BinPath       string
	WorkloadName  string
	NodeCount     int
	Concurrency   int
	RatePerSec    float64
	TimeLimit     time.Duration
	LatencyMeanMS uint32
	LatencyJitter uint32
	NemesisKind   nemesis.Kind
	FaultInterval time.Duration
	RequestTimeout time.Duration
	InitTimeout   time.Duration
	LogDir        string
	Seed          uint64
	UseVirtualClock bool
	DebugAddr     string // if set, serves a RESP debug console on this addr for the run's duration
	LogStderr     bool
}

// Result is the final report a run produces, alongside the journal and
// history it was built from (useful for archiving and visualization).
type Result struct {
	Report  result.Result
	Journal *journal.Journal
	History *history.History
}

// Runner orchestrates one complete test run.
type Runner struct {
	cfg    Config
	w      workload.Workload
	logger *slog.Logger

	core *network.Core
	j    *journal.Journal
	hist *history.History
	clk  clock.Clock

	mu           sync.Mutex
	supervisors  map[envelope.NodeID]*supervisor.Supervisor
	endpoints    map[envelope.NodeID]*network.Endpoint
	relayCancels map[envelope.NodeID]context.CancelFunc
}

// New constructs a Runner for one test. w must be the workload named by
// cfg.WorkloadName (the caller looks it up via workload.Lookup).
func New(cfg Config, w workload.Workload, logger *slog.Logger) *Runner {
	var clk clock.Clock
	if cfg.UseVirtualClock {
		clk = clock.NewVirtual(time.Unix(0, 0))
	} else {
		clk = clock.OS{}
	}
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{
		DefaultLatencyMeanMS:   cfg.LatencyMeanMS,
		DefaultLatencyJitterMS: cfg.LatencyJitter,
		Seed:                   cfg.Seed,
	})
	return &Runner{
		cfg:         cfg,
		w:           w,
		logger:      logger.With("run_id", cfg.RunID, "workload", cfg.WorkloadName),
		core:        core,
		j:           j,
		hist:        history.New(),
		clk:         clk,
		supervisors:  make(map[envelope.NodeID]*supervisor.Supervisor),
		endpoints:    make(map[envelope.NodeID]*network.Endpoint),
		relayCancels: make(map[envelope.NodeID]context.CancelFunc),
	}
}

func (r *Runner) nodeIDs() []envelope.NodeID {
	ids := make([]envelope.NodeID, r.cfg.NodeCount)
	for i := range ids {
		ids[i] = envelope.NodeID(fmt.Sprintf("n%d", i+1))
	}
	return ids
}

// Run executes the full test lifecycle: setup, load+faults, drain,
// teardown, check, and returns the aggregated result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	nodes := r.nodeIDs()

	if err := r.setup(ctx, nodes); err != nil {
		return Result{}, fmt.Errorf("runner: setup: %w", err)
	}
	defer r.teardown(nodes)

	svcCtx, cancelServices := context.WithCancel(ctx)
	defer cancelServices()
	r.startServices(svcCtx)

	if r.cfg.DebugAddr != "" {
		console := debugconsole.New(r.core, r.j, r.hist, r.LogTail, r.logger)
		ln, err := net.Listen("tcp", r.cfg.DebugAddr)
		if err != nil {
			r.logger.Warn("debug console listen failed", "addr", r.cfg.DebugAddr, "err", err)
		} else {
			go func() {
				if err := console.ServeTCP(ln); err != nil {
					r.logger.Warn("debug console serve failed", "err", err)
				}
			}()
			defer console.Close()
		}
	}

	targets := nodes
	nem := nemesis.New(nemesis.Config{
		Kind:          r.cfg.NemesisKind,
		Nodes:         nodes,
		FaultInterval: r.cfg.FaultInterval,
		Seed:          r.cfg.Seed,
	}, &coreControls{r: r}, r.hist, r.logger)

	loadCtx, cancelLoad := context.WithTimeout(svcCtx, r.cfg.TimeLimit)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); nem.Run(loadCtx, r.clk, r.core) }()

	r.runClients(loadCtx, &wg, targets)
	<-loadCtx.Done()
	cancelLoad()
	wg.Wait()

	// Quiet period: heal the network so outstanding effects can converge
	// before the final read.
	nem.Heal()
	time.Sleep(r.quietPeriod())

	r.runFinalOps(svcCtx, targets)
	r.hist.Close()

	records := r.hist.Records()
	check := r.w.Check(records, map[string]any{"deadline": time.Minute})
	sends, recvs := r.j.SendRecvCounts()
	report := result.Build(r.cfg.RunID, r.cfg.WorkloadName, records, check, sends, recvs)

	return Result{Report: report, Journal: r.j, History: r.hist}, nil
}

func (r *Runner) quietPeriod() time.Duration {
	if r.cfg.RequestTimeout > 0 {
		return r.cfg.RequestTimeout
	}
	return 2 * time.Second
}

// setup spawns every node, wires its supervisor to the network core, and
// drives the init handshake.
func (r *Runner) setup(ctx context.Context, nodes []envelope.NodeID) error {
	allIDs := nodes
	for _, id := range nodes {
		sup := supervisor.New(supervisor.Config{
			NodeID:    id,
			BinPath:   r.cfg.BinPath,
			LogDir:    r.cfg.LogDir,
			LogStderr: r.cfg.LogStderr,
		}, r.logger)
		r.mu.Lock()
		r.supervisors[id] = sup
		r.mu.Unlock()

		ep := r.core.Attach(id)
		r.mu.Lock()
		r.endpoints[id] = ep
		r.mu.Unlock()
		sup.OnReceive = func(msg envelope.Message) { ep.Send(msg.Dest, msg.Body) }
		sup.OnExit = func(err error, tail string) {
			r.logger.Error("node exited", "node_id", id, "err", err, "stderr_tail", tail)
		}
		if err := sup.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", id, err)
		}
		relayCtx, cancelRelay := context.WithCancel(ctx)
		r.mu.Lock()
		r.relayCancels[id] = cancelRelay
		r.mu.Unlock()
		go r.relayToNode(relayCtx, ep, sup)

		if err := r.initNode(ctx, ep, id, allIDs); err != nil {
			return fmt.Errorf("init %s: %w", id, err)
		}
	}
	return nil
}

func (r *Runner) relayToNode(ctx context.Context, ep *network.Endpoint, sup *supervisor.Supervisor) {
	for {
		msg, err := ep.Recv(ctx)
		if err != nil {
			return
		}
		if err := sup.Send(msg); err != nil {
			r.logger.Warn("relay to node failed", "err", err)
		}
	}
}

type initRequest struct {
	Type     string          `json:"type"`
	MsgID    uint64          `json:"msg_id"`
	NodeID   envelope.NodeID `json:"node_id"`
	NodeIDs  []envelope.NodeID `json:"node_ids"`
}

// initNode sends the init body and, on reply, the topology handshake.
func (r *Runner) initNode(ctx context.Context, ep *network.Endpoint, id envelope.NodeID, allIDs []envelope.NodeID) error {
	body, err := envelope.NewBody(initRequest{Type: "init", MsgID: 1, NodeID: id, NodeIDs: allIDs})
	if err != nil {
		return err
	}
	ep.Send(id, body)

	initCtx, cancel := context.WithTimeout(ctx, r.initTimeoutOrDefault())
	defer cancel()
	if err := r.awaitReply(initCtx, ep, 1, "init_ok"); err != nil {
		return fmt.Errorf("init handshake: %w", err)
	}

	topoBody, err := envelope.NewBody(map[string]any{
		"type":     "topology",
		"msg_id":   2,
		"topology": map[string][]envelope.NodeID{string(id): otherNodes(allIDs, id)},
	})
	if err != nil {
		return err
	}
	ep.Send(id, topoBody)
	return r.awaitReply(initCtx, ep, 2, "topology_ok")
}

func otherNodes(all []envelope.NodeID, self envelope.NodeID) []envelope.NodeID {
	var out []envelope.NodeID
	for _, id := range all {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

func (r *Runner) awaitReply(ctx context.Context, ep *network.Endpoint, inReplyTo uint64, wantType string) error {
	for {
		msg, err := ep.Recv(ctx)
		if err != nil {
			return fmt.Errorf("no %s within timeout: %w", wantType, err)
		}
		reserved, err := msg.Reserved()
		if err != nil || reserved.InReplyTo == nil || *reserved.InReplyTo != inReplyTo {
			continue
		}
		if reserved.Type != wantType {
			return fmt.Errorf("expected %s, got %s", wantType, reserved.Type)
		}
		return nil
	}
}

func (r *Runner) initTimeoutOrDefault() time.Duration {
	if r.cfg.InitTimeout > 0 {
		return r.cfg.InitTimeout
	}
	return 10 * time.Second
}

// startServices attaches the four built-in services to the network core.
func (r *Runner) startServices(ctx context.Context) {
	lin := kv.New("lin-kv", kv.Linearizable, r.logger)
	seq := kv.New("seq-kv", kv.Sequential, r.logger)
	lww := kv.New("lww-kv", kv.LastWriteWins, r.logger)
	ts := tso.New("lin-tso", r.logger)
	go lin.Run(ctx, r.core, r.clk)
	go seq.Run(ctx, r.core, r.clk)
	go lww.Run(ctx, r.core, r.clk)
	go ts.Run(ctx, r.core, r.clk)
}

// runClients starts the client fleet and blocks until ctx is done.
func (r *Runner) runClients(ctx context.Context, wg *sync.WaitGroup, targets []envelope.NodeID) {
	perClientRate := r.cfg.RatePerSec / float64(max(r.cfg.Concurrency, 1))
	for i := 0; i < r.cfg.Concurrency; i++ {
		id := envelope.NodeID(fmt.Sprintf("c%d", i+1))
		cl := logicalclient.New(logicalclient.Config{
			ID:         id,
			Targets:    targets,
			RatePerSec: perClientRate,
			Timeout:    r.cfg.RequestTimeout,
		}, r.w, r.hist, r.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl.Run(ctx, r.core, r.clk)
		}()
	}
}

// runFinalOps issues the workload's drain-phase operations from a single
// throwaway client and waits for them to complete.
func (r *Runner) runFinalOps(ctx context.Context, targets []envelope.NodeID) {
	ops := r.w.Final(targets)
	if len(ops) == 0 {
		return
	}
	id := envelope.NodeID("c0")
	ep := r.core.Attach(id)
	defer ep.Close()

	var msgID uint64
	for _, op := range ops {
		msgID++
		body, err := r.w.Encode(op, msgID)
		if err != nil {
			continue
		}
		process := int32(0)
		if _, err := r.hist.Invoke(process, r.clk.Now().UnixNano(), op.F, op.Value); err != nil {
			continue
		}
		target := targets[int(msgID-1)%max(len(targets), 1)]
		ep.Send(target, body)

		reqCtx, cancel := context.WithTimeout(ctx, r.quietPeriod())
		r.awaitFinalReply(reqCtx, ep, msgID, op, process)
		cancel()
	}
}

func (r *Runner) awaitFinalReply(ctx context.Context, ep *network.Endpoint, msgID uint64, op workload.Op, process int32) {
	for {
		msg, err := ep.Recv(ctx)
		if err != nil {
			_ = r.hist.Complete(process, r.clk.Now().UnixNano(), history.Info, op.F, nil)
			return
		}
		reserved, err := msg.Reserved()
		if err != nil || reserved.InReplyTo == nil || *reserved.InReplyTo != msgID {
			continue
		}
		if reserved.Type == "error" {
			code := maelerr.Timeout
			if reserved.Code != nil {
				code = maelerr.Code(*reserved.Code)
			}
			typ := history.Fail
			if !maelerr.Definite(code) {
				typ = history.Info
			}
			_ = r.hist.Complete(process, r.clk.Now().UnixNano(), typ, op.F, reserved.Text)
			return
		}
		val, err := r.w.Decode(op, msg.Body)
		if err != nil {
			_ = r.hist.Complete(process, r.clk.Now().UnixNano(), history.Info, op.F, nil)
			return
		}
		_ = r.hist.Complete(process, r.clk.Now().UnixNano(), history.Ok, op.F, val)
		return
	}
}

// LogTail returns the tail of a node's captured stderr, for the debug
// console's LOG command.
func (r *Runner) LogTail(id envelope.NodeID) (string, error) {
	r.mu.Lock()
	sup, ok := r.supervisors[id]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("runner: unknown node %s", id)
	}
	return sup.StderrTail(), nil
}

func (r *Runner) teardown(nodes []envelope.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range nodes {
		if sup, ok := r.supervisors[id]; ok {
			if err := sup.Teardown(); err != nil {
				r.logger.Warn("teardown failed", "node_id", id, "err", err)
			}
		}
	}
	r.core.Close()
}

// coreControls adapts Runner onto nemesis.Controls.
type coreControls struct {
	r *Runner
}

func (c *coreControls) Partition(src, dest envelope.NodeID, partitioned bool) {
	c.r.core.Partition(src, dest, partitioned)
}

func (c *coreControls) PauseNode(id envelope.NodeID) error {
	c.r.mu.Lock()
	sup, ok := c.r.supervisors[id]
	c.r.mu.Unlock()
	if !ok {
		return fmt.Errorf("runner: unknown node %s", id)
	}
	c.r.core.Pause(id)
	return sup.Pause()
}

func (c *coreControls) ResumeNode(id envelope.NodeID) error {
	c.r.mu.Lock()
	sup, ok := c.r.supervisors[id]
	c.r.mu.Unlock()
	if !ok {
		return fmt.Errorf("runner: unknown node %s", id)
	}
	c.r.core.Unpause(id)
	return sup.Resume()
}

// KillNode terminates and respawns a node, re-running the init handshake.
func (c *coreControls) KillNode(id envelope.NodeID) error {
	r := c.r
	r.mu.Lock()
	old, ok := r.supervisors[id]
	cancelOldRelay := r.relayCancels[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("runner: unknown node %s", id)
	}
	if cancelOldRelay != nil {
		cancelOldRelay()
	}
	if err := old.Teardown(); err != nil {
		r.logger.Warn("kill: teardown failed", "node_id", id, "err", err)
	}

	sup := supervisor.New(supervisor.Config{NodeID: id, BinPath: r.cfg.BinPath, LogDir: r.cfg.LogDir, LogStderr: r.cfg.LogStderr}, r.logger)
	r.mu.Lock()
	r.supervisors[id] = sup
	ep := r.endpoints[id]
	r.mu.Unlock()

	sup.OnReceive = func(msg envelope.Message) { ep.Send(msg.Dest, msg.Body) }
	sup.OnExit = func(err error, tail string) {
		r.logger.Error("node exited", "node_id", id, "err", err, "stderr_tail", tail)
	}
	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("runner: restart %s: %w", id, err)
	}
	relayCtx, cancelRelay := context.WithCancel(ctx)
	r.mu.Lock()
	r.relayCancels[id] = cancelRelay
	r.mu.Unlock()
	go r.relayToNode(relayCtx, ep, sup)
	return r.initNode(ctx, ep, id, r.nodeIDs())
}
