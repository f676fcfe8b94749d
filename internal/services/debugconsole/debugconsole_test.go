package debugconsole_test

import (
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/debugclient"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/network"
	"github.com/distlab/maelstrom/internal/services/debugconsole"
	"go.akshayshah.org/attest"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func startConsole(t *testing.T) (*debugclient.Client, *network.Core, func()) {
	t.Helper()
	clk := clock.NewVirtual(time.Unix(0, 0))
	j := journal.New()
	h := history.New()
	core := network.NewCore(clk, j, network.Config{Seed: 1})
	core.Attach("n1")

	logTail := func(id envelope.NodeID) (string, error) {
		if id != "n1" {
			return "", fmt.Errorf("unknown node %q", id)
		}
		return "some log tail", nil
	}

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	console := debugconsole.New(core, j, h, logTail, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	attest.Ok(t, err)

	go console.ServeTCP(ln)

	client, err := debugclient.New(ln.Addr())
	attest.Ok(t, err)

	cleanup := func() {
		_ = client.Close()
		_ = console.Close()
		core.Close()
	}
	return client, core, cleanup
}

func TestPing(t *testing.T) {
	client, _, cleanup := startConsole(t)
	defer cleanup()
	attest.Ok(t, client.Ping())
}

func TestNodesAndStats(t *testing.T) {
	client, core, cleanup := startConsole(t)
	defer cleanup()

	n2 := core.Attach("n2")
	defer n2.Close()

	ids, err := client.Nodes()
	attest.Ok(t, err)
	attest.True(t, len(ids) >= 2)

	stats, err := client.Stats()
	attest.Ok(t, err)
	attest.Equal(t, stats.Sends, int64(0))
}

func TestLog(t *testing.T) {
	client, _, cleanup := startConsole(t)
	defer cleanup()

	tail, err := client.Log("n1")
	attest.Ok(t, err)
	attest.Equal(t, tail, "some log tail")

	_, err = client.Log("ghost")
	attest.NotZero(t, err)
}

func TestLinks(t *testing.T) {
	client, core, cleanup := startConsole(t)
	defer cleanup()

	core.SetLink("n1", "n2", network.LinkState{Partitioned: true, LatencyMeanMS: 50, LatencyJitterMS: 5})

	link, err := client.Links("n1", "n2")
	attest.Ok(t, err)
	attest.True(t, link.Partitioned)
	attest.Equal(t, link.LatencyMeanMS, int64(50))
	attest.Equal(t, link.LatencyJitterMS, int64(5))
}
