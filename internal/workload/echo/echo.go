// Package echo implements the echo workload: the simplest possible
// exercise of the core, used for smoke-testing a node binary and the
// harness itself.
package echo

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/distlab/maelstrom/internal/diceware"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/workload"
)

func init() {
	workload.Register(workload.Workload{
		Name:      "echo",
		Gen:       generate,
		Encode:    encode,
		Decode:    decode,
		Final:     finalOps,
		Check:     check,
		InitState: nil,
	})
}

func generate(clientID envelope.NodeID, state any) (workload.Op, any) {
	return workload.Op{F: "echo", Value: diceware.GenWord(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))}, state
}

type request struct {
	Type string `json:"type"`
	Echo string `json:"echo"`
}

func encode(op workload.Op, msgID uint64) (json.RawMessage, error) {
	return json.Marshal(request{Type: "echo", Echo: op.Value.(string)})
}

type reply struct {
	Echo string `json:"echo"`
}

func decode(op workload.Op, body json.RawMessage) (any, error) {
	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode echo reply: %w", err)
	}
	if r.Echo != op.Value.(string) {
		return nil, fmt.Errorf("echo mismatch: sent %q, got %q", op.Value, r.Echo)
	}
	return r.Echo, nil
}

// finalOps issues no drain-phase ops: echo has no state to settle.
func finalOps(nodes []envelope.NodeID) []workload.Op {
	return nil
}

// check verifies that every ok record's recorded value matches the
// invoke it answers; the client driver already enforces this at decode
// time, so a non-trivial anomaly here means the driver itself is broken.
// It relies on the per-process invariant that invoke and its completion
// never interleave with another invoke from the same process.
func check(records []history.Record, opts map[string]any) workload.CheckResult {
	pending := map[int32]history.Record{}
	var anomalies []string
	for _, r := range records {
		switch r.Type {
		case history.Invoke:
			pending[r.Process] = r
		case history.Ok:
			inv, ok := pending[r.Process]
			delete(pending, r.Process)
			if !ok {
				anomalies = append(anomalies, fmt.Sprintf("ok record %d has no matching invoke", r.Index))
				continue
			}
			if inv.Value != r.Value {
				anomalies = append(anomalies, fmt.Sprintf("record %d: echoed %v, invoked with %v", r.Index, r.Value, inv.Value))
			}
		case history.Fail, history.Info:
			delete(pending, r.Process)
		}
	}
	return workload.CheckResult{Valid: len(anomalies) == 0, Anomalies: anomalies}
}
