package checker_test

import (
	"testing"
	"time"

	"github.com/distlab/maelstrom/internal/checker"
	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/op"
	"go.akshayshah.org/attest"
)

func TestPairDropsInFlightAndNemesisRecords(t *testing.T) {
	h := history.New()
	_, err := h.Invoke(1, 0, "read", nil)
	attest.Ok(t, err)
	err = h.Complete(1, 1, history.Ok, "read", nil)
	attest.Ok(t, err)

	_, err = h.Invoke(2, 2, "read", nil)
	attest.Ok(t, err) // left outstanding, never completed

	_, err = h.Invoke(history.NemesisProcess, 3, "partition-start", nil)
	attest.Ok(t, err)
	err = h.Complete(history.NemesisProcess, 4, history.Info, "partition-start", nil)
	attest.Ok(t, err)

	events := checker.Pair(h.Records())
	attest.Equal(t, len(events), 1)
	attest.Equal(t, events[0].Process, int32(1))
}

func asInput(r history.Record) any {
	v, _ := r.Value.(map[string]any)
	in := &checker.RegisterInput{Op: op.New(v["op"].(string))}
	if k, ok := v["key"].(string); ok {
		in.Key = k
	}
	if val, ok := v["value"].(string); ok {
		in.Value = val
	}
	if from, ok := v["from"].(string); ok {
		in.From = from
	}
	if to, ok := v["to"].(string); ok {
		in.To = to
	}
	return in
}

func asOutput(r history.Record) any {
	v, _ := r.Value.(map[string]any)
	out := &checker.RegisterOutput{Definite: true}
	if val, ok := v["value"].(string); ok {
		out.Value = val
	}
	if v["err"] == true {
		out.Err = errFixture
	}
	return out
}

var errFixture = fmtErr("register op failed")

type fmtErrString string

func (e fmtErrString) Error() string { return string(e) }

func fmtErr(s string) error { return fmtErrString(s) }

func TestLinearizableAcceptsConsistentHistory(t *testing.T) {
	h := history.New()
	_, err := h.Invoke(1, 0, "write", map[string]any{"op": "write", "key": "x", "value": "a"})
	attest.Ok(t, err)
	err = h.Complete(1, 1, history.Ok, "write", map[string]any{})
	attest.Ok(t, err)

	_, err = h.Invoke(2, 2, "read", map[string]any{"op": "read", "key": "x"})
	attest.Ok(t, err)
	err = h.Complete(2, 3, history.Ok, "read", map[string]any{"value": "a"})
	attest.Ok(t, err)

	events := checker.Pair(h.Records())
	ops := checker.ToOperations(events, asInput, asOutput)

	model := checker.NewRegisterModel()
	err = checker.Linearizable("x", model, ops, 2*time.Second)
	attest.Ok(t, err)
}

func TestLinearizableRejectsInconsistentHistory(t *testing.T) {
	h := history.New()
	_, err := h.Invoke(1, 0, "write", map[string]any{"op": "write", "key": "x", "value": "a"})
	attest.Ok(t, err)
	err = h.Complete(1, 1, history.Ok, "write", map[string]any{})
	attest.Ok(t, err)

	// A definite read that observes a value nothing ever wrote.
	_, err = h.Invoke(2, 2, "read", map[string]any{"op": "read", "key": "x"})
	attest.Ok(t, err)
	err = h.Complete(2, 3, history.Ok, "read", map[string]any{"value": "never-written"})
	attest.Ok(t, err)

	events := checker.Pair(h.Records())
	ops := checker.ToOperations(events, asInput, asOutput)

	model := checker.NewRegisterModel()
	err = checker.Linearizable("x", model, ops, 2*time.Second)
	attest.NotZero(t, err)

	var checkErr *checker.Error
	ok := errorsAs(err, &checkErr)
	attest.True(t, ok)
	attest.Equal(t, checkErr.TimedOut, false)
}

func errorsAs(err error, target **checker.Error) bool {
	ce, ok := err.(*checker.Error)
	if !ok {
		return false
	}
	*target = ce
	return true
}
