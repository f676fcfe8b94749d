// Package linkv is the lin-kv workload: clients issue read/write/cas
// requests against a handful of keys on the lin-kv built-in service and
// the checker verifies the resulting history is linearizable.
package linkv

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/distlab/maelstrom/internal/checker"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/op"
	"github.com/distlab/maelstrom/internal/workload"
)

func init() {
	workload.Register(workload.Workload{
		Name:      "lin-kv",
		Gen:       generate,
		Encode:    encode,
		Decode:    decode,
		Final:     finalOps,
		Check:     check,
		InitState: newGenState(),
	})
}

const keyCount = 4

type genState struct {
	rng *rand.Rand
}

func newGenState() *genState {
	return &genState{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// value is the abstract op payload recorded in history.
type value struct {
	Op   op.Op
	Key  string
	From string
	To   string
	Val  string
}

var opWeights = []op.Op{op.Read, op.Read, op.Read, op.Write, op.Write, op.Cas}

func generate(clientID envelope.NodeID, state any) (workload.Op, any) {
	gs := state.(*genState)
	key := fmt.Sprintf("k%d", gs.rng.IntN(keyCount))
	chosen := opWeights[gs.rng.IntN(len(opWeights))]
	v := value{Op: chosen, Key: key}
	switch chosen {
	case op.Write:
		v.Val = fmt.Sprintf("%d", gs.rng.IntN(100))
	case op.Cas:
		v.From = fmt.Sprintf("%d", gs.rng.IntN(100))
		v.To = fmt.Sprintf("%d", gs.rng.IntN(100))
	}
	return workload.Op{F: string(chosen), Value: v}, gs
}

type wireRequest struct {
	Type              string `json:"type"`
	MsgID             uint64 `json:"msg_id"`
	Key               string `json:"key"`
	Value             string `json:"value,omitempty"`
	From              string `json:"from,omitempty"`
	To                string `json:"to,omitempty"`
	CreateIfNotExists bool   `json:"create_if_not_exists,omitempty"`
}

func encode(o workload.Op, msgID uint64) (json.RawMessage, error) {
	v := o.Value.(value)
	req := wireRequest{Type: string(v.Op), MsgID: msgID, Key: v.Key}
	switch v.Op {
	case op.Write:
		req.Value = v.Val
	case op.Cas:
		req.From, req.To = v.From, v.To
		req.CreateIfNotExists = true
	}
	return json.Marshal(req)
}

type wireReply struct {
	Value string `json:"value"`
}

func decode(o workload.Op, body json.RawMessage) (any, error) {
	var r wireReply
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode lin-kv reply: %w", err)
	}
	return r.Value, nil
}

// finalOps issues one read per key during drain, so the final store state
// is part of the checked history.
func finalOps(nodes []envelope.NodeID) []workload.Op {
	ops := make([]workload.Op, keyCount)
	for i := range ops {
		key := fmt.Sprintf("k%d", i)
		ops[i] = workload.Op{F: string(op.Read), Value: value{Op: op.Read, Key: key}}
	}
	return ops
}

// check partitions the history by key and certifies each partition
// independently against a linearizable register model.
func check(records []history.Record, opts map[string]any) workload.CheckResult {
	deadline := time.Second
	if d, ok := opts["deadline"].(time.Duration); ok && d > 0 {
		deadline = d
	}

	events := checker.Pair(records)
	byKey := map[string][]checker.Event{}
	for _, e := range events {
		v, ok := e.Invoke.Value.(value)
		if !ok {
			continue
		}
		byKey[v.Key] = append(byKey[v.Key], e)
	}

	var anomalies []string
	for key, keyEvents := range byKey {
		ops := checker.ToOperations(keyEvents, toInput, toOutput)
		model := checker.NewRegisterModel()
		if err := checker.Linearizable(key, model, ops, deadline); err != nil {
			anomalies = append(anomalies, err.Error())
		}
	}
	return workload.CheckResult{Valid: len(anomalies) == 0, Anomalies: anomalies}
}

func toInput(r history.Record) any {
	v := r.Value.(value)
	return &checker.RegisterInput{Op: v.Op, Key: v.Key, From: v.From, To: v.To, Value: v.Val}
}

func toOutput(r history.Record) any {
	out := &checker.RegisterOutput{}
	switch r.Type {
	case history.Ok:
		if s, ok := r.Value.(string); ok {
			out.Value = s
		}
	case history.Fail:
		out.Err = fmt.Errorf("%v", r.Value)
		out.Definite = true
	case history.Info:
		out.Err = fmt.Errorf("%v", r.Value)
		out.Definite = false
	}
	return out
}
