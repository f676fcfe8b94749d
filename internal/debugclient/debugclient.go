// Package debugclient provides a convenient wrapper around a redigo
// connection to a debugconsole server, for use from tests that want to
// assert on a running test's live state.
package debugclient

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/gomodule/redigo/redis"
)

// Client is a type-safe, lower-boilerplate wrapper around the redigo
// client, scoped to the debug console's command set.
//
// Clients are not safe for concurrent use.
type Client struct {
	conn    redis.Conn
	connErr error
}

// New creates a new Client.
func New(addr net.Addr) (*Client, error) {
	conn, err := redis.Dial("tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Ping the console.
func (c *Client) Ping() error {
	if c.connErr != nil {
		return fmt.Errorf("conn unusable: %w", c.connErr)
	}
	res, err := c.conn.Do("PING")
	if err != nil {
		return err
	}
	r, ok := res.(string)
	if !ok {
		return fmt.Errorf("unexpected ping response type: %T", res)
	}
	if r != "PONG" {
		return fmt.Errorf("unexpected ping response: %s", r)
	}
	return c.checkConn()
}

// Nodes lists the node ids currently attached to the network core.
func (c *Client) Nodes() ([]string, error) {
	if c.connErr != nil {
		return nil, fmt.Errorf("conn unusable: %w", c.connErr)
	}
	res, err := c.conn.Do("NODES")
	if err != nil {
		return nil, err
	}
	ids, err := redis.Strings(res, nil)
	if err != nil {
		return nil, fmt.Errorf("unexpected nodes response: %w", err)
	}
	return ids, c.checkConn()
}

// Stats holds journal and history counters reported by STATS.
type Stats struct {
	Sends, Recvs, HistoryRecords int64
}

// Stats reports send/recv/history counters for the running test.
func (c *Client) Stats() (Stats, error) {
	if c.connErr != nil {
		return Stats{}, fmt.Errorf("conn unusable: %w", c.connErr)
	}
	res, err := c.conn.Do("STATS")
	if err != nil {
		return Stats{}, err
	}
	vals, err := redis.Values(res, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("unexpected stats response: %w", err)
	}
	var out Stats
	if _, err := redis.Scan(vals, nil, &out.Sends, nil, &out.Recvs, nil, &out.HistoryRecords); err != nil {
		return Stats{}, fmt.Errorf("unexpected stats shape: %w", err)
	}
	return out, c.checkConn()
}

// Log returns the tail of a node's captured stderr.
func (c *Client) Log(nodeID string) (string, error) {
	if c.connErr != nil {
		return "", fmt.Errorf("conn unusable: %w", c.connErr)
	}
	res, err := c.conn.Do("LOG", nodeID)
	if err != nil {
		return "", err
	}
	s, err := redis.String(res, nil)
	if err != nil {
		return "", fmt.Errorf("unexpected log response: %w", err)
	}
	return s, c.checkConn()
}

// Link holds the directed link state reported by LINKS.
type Link struct {
	Partitioned                    bool
	LatencyMeanMS, LatencyJitterMS int64
}

// Links reports the current directed link state between src and dest.
func (c *Client) Links(src, dest string) (Link, error) {
	if c.connErr != nil {
		return Link{}, fmt.Errorf("conn unusable: %w", c.connErr)
	}
	res, err := c.conn.Do("LINKS", src, dest)
	if err != nil {
		return Link{}, err
	}
	vals, err := redis.Values(res, nil)
	if err != nil {
		return Link{}, fmt.Errorf("unexpected links response: %w", err)
	}
	var partitioned string
	var meanMS, jitterMS int64
	if _, err := redis.Scan(vals, nil, &partitioned, nil, &meanMS, nil, &jitterMS); err != nil {
		return Link{}, fmt.Errorf("unexpected links shape: %w", err)
	}
	return Link{Partitioned: partitioned == "true", LatencyMeanMS: meanMS, LatencyJitterMS: jitterMS}, c.checkConn()
}

func (c *Client) checkConn() error {
	if err := c.conn.Err(); err != nil {
		c.connErr = err
		_ = c.conn.Close()
		return fmt.Errorf("conn unusable: %w", err)
	}
	return nil
}

// Close the underlying connection.
func (c *Client) Close() error {
	if c.connErr != nil {
		return fmt.Errorf("conn unusable: %w", c.connErr)
	}
	if err := c.conn.Close(); err != nil {
		c.connErr = err
		return err
	}
	return nil
}

// CloseAndLog closes the underlying connection and logs any errors.
func (c *Client) CloseAndLog(logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("close client", "err", err)
	}
}
