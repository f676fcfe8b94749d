// Package checker adapts Porcupine model-checking into the generic
// consistency-checking glue the core invokes as `check(history, options)`
//. It supplies a ready-made linearizable register
// model for workloads built on the lin-kv/seq-kv/lww-kv built-in services
//; other workloads may bring their own porcupine.Model and
// still use Pair and Linearizable to drive it.
package checker

import (
	"bytes"
	"fmt"
	"time"

	"github.com/anishathalye/porcupine"
	"github.com/distlab/maelstrom/internal/history"
)

// Error is returned when Linearizable cannot certify a history: either
// verification timed out, or it found a genuine consistency violation. In
// the violation case, Visualization is a self-contained HTML document
// demonstrating it.
type Error struct {
	Key           string
	TimedOut      bool
	Visualization *bytes.Buffer
}

func (e *Error) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: model timed out", e.Key)
	}
	return fmt.Sprintf("%s: history not linearizable", e.Key)
}

// Event is one paired invoke/outcome from a history, ready to become a
// porcupine.Operation once the caller supplies the model-specific
// input/output values.
type Event struct {
	Process     int32
	CallNanos   int64
	ReturnNanos int64
	Invoke      history.Record
	Outcome     history.Record
}

// Pair walks a history and matches each invoke with the ok/fail/info that
// concludes it, relying on the per-process invariant that a process never
// has two outstanding invokes at once. Records for processes
// whose last invoke has no recorded outcome yet (the op was still
// in-flight when the history was closed) are dropped; info outcomes are
// kept, since an indeterminate operation still constrains the model (it
// may or may not have taken effect).
func Pair(records []history.Record) []Event {
	pending := map[int32]history.Record{}
	var events []Event
	for _, r := range records {
		if r.Process == history.NemesisProcess {
			continue
		}
		if r.Type == history.Invoke {
			pending[r.Process] = r
			continue
		}
		inv, ok := pending[r.Process]
		if !ok {
			continue
		}
		delete(pending, r.Process)
		events = append(events, Event{
			Process:     r.Process,
			CallNanos:   inv.TimeNanos,
			ReturnNanos: r.TimeNanos,
			Invoke:      inv,
			Outcome:     r,
		})
	}
	return events
}

// ToOperations converts paired events into porcupine operations using the
// caller's input/output extraction, preserving relative call/return order.
func ToOperations(events []Event, toInput func(history.Record) any, toOutput func(history.Record) any) []porcupine.Operation {
	ops := make([]porcupine.Operation, 0, len(events))
	for _, e := range events {
		ops = append(ops, porcupine.Operation{
			ClientId: int(e.Process),
			Input:    toInput(e.Invoke),
			Call:     e.CallNanos,
			Output:   toOutput(e.Outcome),
			Return:   e.ReturnNanos,
		})
	}
	return ops
}

// Linearizable runs model against ops and returns whether the history is
// linearizable. On failure it returns an *Error; a timeout sets
// Error.TimedOut, a genuine violation attaches an HTML visualization.
func Linearizable(key string, model porcupine.Model, ops []porcupine.Operation, deadline time.Duration) error {
	cr, info := porcupine.CheckOperationsVerbose(model, ops, deadline)
	if cr == porcupine.Ok {
		return nil
	}
	if cr == porcupine.Unknown {
		return &Error{Key: key, TimedOut: true}
	}
	var buf bytes.Buffer
	if err := porcupine.Visualize(model, info, &buf); err != nil {
		return fmt.Errorf("visualize %s: %w", key, err)
	}
	return &Error{Key: key, Visualization: &buf}
}
