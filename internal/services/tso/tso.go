// Package tso implements the lin-tso built-in service: a timestamp oracle
// exposing a single strictly monotonically increasing ticket counter.
package tso

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/maelerr"
	"github.com/distlab/maelstrom/internal/network"
	"github.com/distlab/maelstrom/internal/op"
)

// Service is the lin-tso built-in service.
type Service struct {
	id     envelope.NodeID
	logger *slog.Logger
	seq    atomic.Uint64
}

// New constructs a Service.
func New(id envelope.NodeID, logger *slog.Logger) *Service {
	return &Service{id: id, logger: logger.With("service", id)}
}

// Run attaches the service to core and serves "ts" requests until ctx is
// done or the endpoint is closed.
func (s *Service) Run(ctx context.Context, core *network.Core, clk clock.Clock) {
	ep := core.Attach(s.id)
	defer ep.Close()
	for {
		msg, err := ep.Recv(ctx)
		if err != nil {
			return
		}
		go s.handle(ep, msg)
	}
}

func (s *Service) handle(ep *network.Endpoint, msg envelope.Message) {
	reserved, err := msg.Reserved()
	if err != nil {
		return
	}
	fields := map[string]any{}
	if reserved.MsgID != nil {
		fields["in_reply_to"] = *reserved.MsgID
	}
	if op.New(reserved.Type) != op.Ts {
		fields["type"] = "error"
		fields["code"] = int(maelerr.NotSupported)
		fields["text"] = "lin-tso only supports ts"
	} else {
		// Every ticket is unique and strictly greater than the last one
		// handed out, across the entire test run.
		fields["type"] = "ts_ok"
		fields["ts"] = s.seq.Add(1)
	}
	body, err := envelope.NewBody(fields)
	if err != nil {
		return
	}
	ep.Send(msg.Src, body)
}
