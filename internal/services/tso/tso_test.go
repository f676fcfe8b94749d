package tso_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/network"
	"github.com/distlab/maelstrom/internal/services/tso"
	"go.akshayshah.org/attest"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestTicketsAreMonotonicallyIncreasing(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	defer core.Close()

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	svc := tso.New("lin-tso", logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx, core, clk)

	client := core.Attach("c1")
	defer client.Close()

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recvCancel()

	var prev uint64
	for i := 0; i < 5; i++ {
		client.Send("lin-tso", []byte(`{"type":"ts","msg_id":1}`))
		reply, err := client.Recv(recvCtx)
		attest.Ok(t, err)
		reserved, err := reply.Reserved()
		attest.Ok(t, err)
		attest.Equal(t, reserved.Type, "ts_ok")

		var got struct {
			TS uint64 `json:"ts"`
		}
		attest.Ok(t, json.Unmarshal(reply.Body, &got))
		attest.True(t, got.TS > prev)
		prev = got.TS
	}
}

func TestUnsupportedOpReturnsError(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	defer core.Close()

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	svc := tso.New("lin-tso", logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx, core, clk)

	client := core.Attach("c1")
	defer client.Close()

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recvCancel()

	client.Send("lin-tso", []byte(`{"type":"read","msg_id":1}`))
	reply, err := client.Recv(recvCtx)
	attest.Ok(t, err)
	reserved, err := reply.Reserved()
	attest.Ok(t, err)
	attest.Equal(t, reserved.Type, "error")
	attest.NotZero(t, reserved.Code)
	attest.Equal(t, *reserved.Code, 10)
}
