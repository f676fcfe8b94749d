package network_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/network"
	"pgregory.net/rapid"
)

// TestPendingDeliveryPreservesSendOrder checks that messages sent from the
// same source to the same destination, with no faults in play, arrive with
// strictly increasing core-assigned ids regardless of how many are sent.
func TestPendingDeliveryPreservesSendOrder(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(tt, "n")

		clk := clock.NewVirtual(time.Unix(0, 0))
		j := journal.New()
		core := network.NewCore(clk, j, network.Config{Seed: 7})
		defer core.Close()

		src := core.Attach("src")
		dst := core.Attach("dst")

		for i := 0; i < n; i++ {
			src.Send("dst", []byte(fmt.Sprintf(`{"type":"echo","echo":%d}`, i)))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var prevID uint64
		for i := 0; i < n; i++ {
			msg, err := dst.Recv(ctx)
			if err != nil {
				tt.Fatalf("recv %d: %v", i, err)
			}
			if i > 0 && msg.ID <= prevID {
				tt.Fatalf("message %d out of order: id %d did not increase past %d", i, msg.ID, prevID)
			}
			prevID = msg.ID
		}
	})
}

// TestMsgIDsAreUnique checks that every message the core hands to a
// destination, across any number of sends, carries a distinct id.
func TestMsgIDsAreUnique(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(tt, "n")

		clk := clock.NewVirtual(time.Unix(0, 0))
		j := journal.New()
		core := network.NewCore(clk, j, network.Config{Seed: 11})
		defer core.Close()

		a := core.Attach("a")
		b := core.Attach("b")

		for i := 0; i < n; i++ {
			a.Send("b", []byte(`{"type":"echo"}`))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		seen := make(map[uint64]bool, n)
		for i := 0; i < n; i++ {
			msg, err := b.Recv(ctx)
			if err != nil {
				tt.Fatalf("recv %d: %v", i, err)
			}
			if seen[msg.ID] {
				tt.Fatalf("duplicate message id %d", msg.ID)
			}
			seen[msg.ID] = true
		}
	})
}
