// Package client implements the logical client fleet: each Client is an
// independent virtual node that drives a workload's generator against the
// cluster and records invoke/ok/fail/info records to a history.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/maelerr"
	"github.com/distlab/maelstrom/internal/network"
	"github.com/distlab/maelstrom/internal/workload"
)

// Config bundles the primitive values that configure a Client.
type Config struct {
	ID      envelope.NodeID
	Targets []envelope.NodeID
	// RatePerSec is this client's share of the requested global rate; zero
	// means unpaced.
	RatePerSec float64
	Timeout    time.Duration
}

// Client is one logical client.
type Client struct {
	cfg    Config
	w      workload.Workload
	hist   *history.History
	logger *slog.Logger

	nextMsgID atomic.Uint64
	nextHop   atomic.Uint64 // round-robin cursor over cfg.Targets
}

// New constructs a Client bound to a single workload.
func New(cfg Config, w workload.Workload, hist *history.History, logger *slog.Logger) *Client {
	return &Client{cfg: cfg, w: w, hist: hist, logger: logger.With("client", cfg.ID)}
}

// process is the client's history process id: clients are identified by
// the numeric suffix of their node id.
func (c *Client) process() int32 {
	return processFor(c.cfg.ID)
}

func processFor(id envelope.NodeID) int32 {
	var n int32
	for _, r := range id {
		if r < '0' || r > '9' {
			continue
		}
		n = n*10 + int32(r-'0')
	}
	return n
}

// Run attaches the client to core and loops: generate, invoke, send,
// await reply or timeout, record. It exits when ctx is done.
//
// At most one outstanding request is in flight at any time; the loop is
// structurally single-request.
func (c *Client) Run(ctx context.Context, core *network.Core, clk clock.Clock) {
	ep := core.Attach(c.cfg.ID)
	defer ep.Close()

	state := c.w.InitState
	var op workload.Op
	var interval time.Duration
	if c.cfg.RatePerSec > 0 {
		interval = time.Duration(float64(time.Second) / c.cfg.RatePerSec)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		op, state = c.w.Gen(c.cfg.ID, state)
		if err := c.issue(ctx, core, ep, clk, op); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("issue failed", "err", err)
		}

		if interval > 0 {
			woken := make(chan struct{})
			core.ScheduleWake(interval, func() { close(woken) })
			select {
			case <-ctx.Done():
				return
			case <-woken:
			}
		}
	}
}

// issue runs one invoke/send/await/record cycle for op.
func (c *Client) issue(ctx context.Context, core *network.Core, ep *network.Endpoint, clk clock.Clock, op workload.Op) error {
	msgID := c.nextMsgID.Add(1)
	if _, err := c.hist.Invoke(c.process(), clk.Now().UnixNano(), op.F, op.Value); err != nil {
		return fmt.Errorf("invoke: %w", err)
	}

	body, err := c.w.Encode(op, msgID)
	if err != nil {
		return c.complete(clk, history.Info, op.F, fmt.Sprintf("encode failed: %v", err))
	}
	target := c.nextTarget()
	ep.Send(target, body)

	reqCtx, cancel := context.WithCancel(ctx)
	core.ScheduleWake(c.timeoutOrDefault(), cancel)
	defer cancel()

	for {
		msg, err := ep.Recv(reqCtx)
		if err != nil {
			return c.complete(clk, history.Info, op.F, nil)
		}
		reserved, err := msg.Reserved()
		if err != nil {
			continue
		}
		if reserved.InReplyTo == nil || *reserved.InReplyTo != msgID {
			// A late reply to an earlier, already-timed-out request; the
			// journal already has it, it just has no effect on history.
			continue
		}
		return c.recordReply(clk, op, reserved, msg.Body)
	}
}

func (c *Client) recordReply(clk clock.Clock, op workload.Op, reserved envelope.Reserved, body json.RawMessage) error {
	if reserved.Type == "error" {
		code := maelerr.Timeout
		if reserved.Code != nil {
			code = maelerr.Code(*reserved.Code)
		}
		if maelerr.Definite(code) {
			return c.complete(clk, history.Fail, op.F, reserved.Text)
		}
		return c.complete(clk, history.Info, op.F, reserved.Text)
	}
	val, err := c.w.Decode(op, body)
	if err != nil {
		return c.complete(clk, history.Info, op.F, fmt.Sprintf("decode failed: %v", err))
	}
	return c.complete(clk, history.Ok, op.F, val)
}

func (c *Client) complete(clk clock.Clock, typ history.Type, f string, value any) error {
	return c.hist.Complete(c.process(), clk.Now().UnixNano(), typ, f, value)
}

func (c *Client) nextTarget() envelope.NodeID {
	if len(c.cfg.Targets) == 0 {
		return ""
	}
	i := c.nextHop.Add(1) - 1
	return c.cfg.Targets[i%uint64(len(c.cfg.Targets))]
}

func (c *Client) timeoutOrDefault() time.Duration {
	if c.cfg.Timeout > 0 {
		return c.cfg.Timeout
	}
	return 5 * time.Second
}
