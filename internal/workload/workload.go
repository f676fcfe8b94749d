// Package workload defines the plug-point contract every workload
// satisfies and holds the catalog of built-in workloads. A
// workload never touches the network core or clock directly; the client
// fleet (see internal/client) and the test runner (drain-phase ops and the
// final check, see internal/runner) are the only callers of these
// functions.
package workload

import (
	"encoding/json"

	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
)

// Op is one abstract client operation, as produced by a Generator and
// recorded in history as the Value of an invoke record.
type Op struct {
	F     string
	Value any
}

// Generator produces the next abstract operation for a client, threading
// whatever cursor state the workload needs between calls. It must be a
// pure function of its inputs: the core may call it from any client
// goroutine, but never concurrently for the same client.
type Generator func(clientID envelope.NodeID, state any) (op Op, nextState any)

// Encode converts an abstract op into the request body sent on the wire.
type Encode func(op Op, msgID uint64) (json.RawMessage, error)

// Decode interprets a reply body (already known to be a non-error *_ok)
// against the op that produced it, returning the value recorded in the
// op's ok history entry.
type Decode func(op Op, replyBody json.RawMessage) (any, error)

// FinalOps returns the operations to run against the given nodes during
// the drain phase, e.g. a final read of every known key.
type FinalOps func(nodes []envelope.NodeID) []Op

// CheckResult is the outcome of running a workload's checker against a
// completed history.
type CheckResult struct {
	Valid     bool     `json:"valid"`
	Anomalies []string `json:"anomalies,omitempty"`
}

// Check evaluates a completed history against the workload's safety
// property.
type Check func(h []history.Record, opts map[string]any) CheckResult

// Workload bundles a generator, its wire translators, and its checker:
// the complete four-tuple plug-point.
type Workload struct {
	Name     string
	Gen      Generator
	Encode   Encode
	Decode   Decode
	Final    FinalOps
	Check    Check
	InitState any
}

var registry = map[string]Workload{}

// Register adds a workload to the catalog. It panics on a duplicate name,
// since workloads are registered exactly once at package init time.
func Register(w Workload) {
	if _, exists := registry[w.Name]; exists {
		panic("workload: duplicate registration for " + w.Name)
	}
	registry[w.Name] = w
}

// Lookup returns the named workload and whether it was found.
func Lookup(name string) (Workload, bool) {
	w, ok := registry[name]
	return w, ok
}

// Names returns the registered workload names, for --workload validation
// and the `doc` subcommand.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
