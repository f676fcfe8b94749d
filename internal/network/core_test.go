package network_test

import (
	"context"
	"testing"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/network"
	"go.akshayshah.org/attest"
)

func TestSendDeliversInOrder(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	defer core.Close()

	n1 := core.Attach("n1")
	n2 := core.Attach("n2")

	n1.Send("n2", []byte(`{"type":"echo","echo":"one"}`))
	n1.Send("n2", []byte(`{"type":"echo","echo":"two"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := n2.Recv(ctx)
	attest.Ok(t, err)
	second, err := n2.Recv(ctx)
	attest.Ok(t, err)

	attest.Equal(t, string(first.Body), `{"type":"echo","echo":"one"}`)
	attest.Equal(t, string(second.Body), `{"type":"echo","echo":"two"}`)
	attest.Equal(t, first.Src, envelope.NodeID("n1"))
	attest.Equal(t, first.Dest, envelope.NodeID("n2"))
}

func TestSendToUnknownDestSynthesizesError(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	defer core.Close()

	n1 := core.Attach("n1")
	n1.Send("ghost", []byte(`{"type":"echo","msg_id":5}`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := n1.Recv(ctx)
	attest.Ok(t, err)

	reserved, err := reply.Reserved()
	attest.Ok(t, err)
	attest.Equal(t, reserved.Type, "error")
	attest.NotZero(t, reserved.Code)
	attest.Equal(t, *reserved.Code, 1)
	attest.Equal(t, reply.Src, envelope.NodeID("ghost"))
}

func TestPartitionDropsMessages(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	defer core.Close()

	n1 := core.Attach("n1")
	n2 := core.Attach("n2")

	core.Partition("n1", "n2", true)
	n1.Send("n2", []byte(`{"type":"echo"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := n2.Recv(ctx)
	attest.NotZero(t, err)

	core.Partition("n1", "n2", false)
	n1.Send("n2", []byte(`{"type":"echo","echo":"now"}`))
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	msg, err := n2.Recv(ctx2)
	attest.Ok(t, err)
	attest.Equal(t, string(msg.Body), `{"type":"echo","echo":"now"}`)
}

func TestPauseBuffersAndUnpauseFlushes(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	defer core.Close()

	n1 := core.Attach("n1")
	n2 := core.Attach("n2")

	core.Pause("n2")
	n1.Send("n2", []byte(`{"type":"echo","echo":"a"}`))
	n1.Send("n2", []byte(`{"type":"echo","echo":"b"}`))

	core.Unpause("n2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	first, err := n2.Recv(ctx)
	attest.Ok(t, err)
	second, err := n2.Recv(ctx)
	attest.Ok(t, err)
	attest.Equal(t, string(first.Body), `{"type":"echo","echo":"a"}`)
	attest.Equal(t, string(second.Body), `{"type":"echo","echo":"b"}`)
}

func TestSendRecvCountsMatchJournal(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	defer core.Close()

	n1 := core.Attach("n1")
	n2 := core.Attach("n2")
	n1.Send("n2", []byte(`{"type":"echo"}`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := n2.Recv(ctx)
	attest.Ok(t, err)

	sends, recvs := j.SendRecvCounts()
	attest.Equal(t, sends, 1)
	attest.Equal(t, recvs, 1)
}
