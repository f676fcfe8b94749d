// Package debugconsole exposes a running test's network core over the
// RESP protocol so a developer can attach with redis-cli (or the
// debugclient package's test client) and inspect it mid-run. It is an
// optional, ambient developer surface, built the same way a
// Valkey-compatible frontend is: a redcon.Conn command switch dispatching
// on the first argument.
package debugconsole

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/network"
	"github.com/tidwall/redcon"
)

// cmd is a debug console command name.
type cmd string

const (
	cmdNodes   cmd = "nodes"
	cmdStats   cmd = "stats"
	cmdLog     cmd = "log"
	cmdLinks   cmd = "links"
	cmdPing    cmd = "ping"
)

func newCmd(b []byte) cmd {
	return cmd(strings.ToLower(string(b)))
}

// LogTailFunc returns the tail of a node's stderr log, or an error if the
// node id is unknown.
type LogTailFunc func(id envelope.NodeID) (string, error)

// Console is the debug console server.
type Console struct {
	core    *network.Core
	journal *journal.Journal
	hist    *history.History
	logTail LogTailFunc
	logger  *slog.Logger

	mu    sync.Mutex
	close func() error
}

// New constructs a Console bound to a single test run's components.
func New(core *network.Core, j *journal.Journal, h *history.History, logTail LogTailFunc, logger *slog.Logger) *Console {
	return &Console{core: core, journal: j, hist: h, logTail: logTail, logger: logger}
}

// ServeTCP accepts connections and serves debug console commands until the
// listener is closed.
func (c *Console) ServeTCP(ln net.Listener) error {
	rs := redcon.NewServerNetwork("tcp", ln.Addr().String(), c.handle, c.accept, c.onClosed)
	c.mu.Lock()
	c.close = rs.Close
	c.mu.Unlock()
	return rs.Serve(ln)
}

// Close shuts the console down.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.close == nil {
		return nil
	}
	return c.close()
}

func (c *Console) accept(conn redcon.Conn) bool { return true }
func (c *Console) onClosed(conn redcon.Conn, err error) {}

func (c *Console) handle(conn redcon.Conn, rc redcon.Command) {
	name := newCmd(rc.Args[0])
	var args []string
	for _, a := range rc.Args[1:] {
		args = append(args, string(a))
	}
	switch name {
	case cmdPing:
		conn.WriteString("PONG")
	case cmdNodes:
		c.nodes(conn)
	case cmdStats:
		c.stats(conn)
	case cmdLog:
		c.log(conn, args)
	case cmdLinks:
		c.links(conn, args)
	default:
		conn.WriteError(fmt.Sprintf("ERR unknown command '%s'", name))
	}
}

func (c *Console) nodes(conn redcon.Conn) {
	ids := c.core.NodeIDs()
	conn.WriteArray(len(ids))
	for _, id := range ids {
		conn.WriteBulkString(string(id))
	}
}

func (c *Console) stats(conn redcon.Conn) {
	sends, recvs := c.journal.SendRecvCounts()
	records := 0
	if c.hist != nil {
		records = len(c.hist.Records())
	}
	conn.WriteArray(6)
	conn.WriteBulkString("sends")
	conn.WriteInt(sends)
	conn.WriteBulkString("recvs")
	conn.WriteInt(recvs)
	conn.WriteBulkString("history_records")
	conn.WriteInt(records)
}

func (c *Console) log(conn redcon.Conn, args []string) {
	if len(args) != 1 {
		conn.WriteError("ERR LOG requires exactly one node id")
		return
	}
	if c.logTail == nil {
		conn.WriteError("ERR log tailing unavailable")
		return
	}
	tail, err := c.logTail(envelope.NodeID(args[0]))
	if err != nil {
		conn.WriteError("ERR " + err.Error())
		return
	}
	conn.WriteBulkString(tail)
}

func (c *Console) links(conn redcon.Conn, args []string) {
	if len(args) != 2 {
		conn.WriteError("ERR LINKS requires <src> <dest>")
		return
	}
	link := c.core.Link(envelope.NodeID(args[0]), envelope.NodeID(args[1]))
	conn.WriteArray(6)
	conn.WriteBulkString("partitioned")
	conn.WriteBulkString(strconv.FormatBool(link.Partitioned))
	conn.WriteBulkString("latency_mean_ms")
	conn.WriteInt(int(link.LatencyMeanMS))
	conn.WriteBulkString("latency_jitter_ms")
	conn.WriteInt(int(link.LatencyJitterMS))
}
