// Package history implements the append-only operation record log the
// workload driver writes to, and the client fleet's nemesis annotations.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Type is an operation record's lifecycle stage.
type Type string

const (
	Invoke Type = "invoke"
	Ok     Type = "ok"
	Fail   Type = "fail"
	Info   Type = "info"
)

// Record is one entry in a history. Process identifies the client (or, for nemesis
// annotations, the distinguished pseudo-process -1) that owns this record;
// within a single process's subsequence, records alternate
// invoke,(ok|fail|info),invoke,... with no interleaving.
type Record struct {
	Index     uint64 `json:"index"`
	Process   int32  `json:"process"`
	TimeNanos int64  `json:"time_ns"`
	Type      Type   `json:"type"`
	F         string `json:"f"`
	Value     any    `json:"value,omitempty"`
}

// NemesisProcess is the distinguished pseudo-process every nemesis
// transition is recorded against.
const NemesisProcess int32 = -1

// History is the ordered, append-only sequence of operation records. It
// is a single-writer structure: the workload driver is its only writer
// during the load phase, and the nemesis appends its own transitions
// using the same Invoke and Complete calls.
type History struct {
	mu      sync.Mutex
	nextIdx uint64
	// outstanding tracks, per process, whether its last record was an
	// invoke without a matching ok/fail/info yet.
	outstanding map[int32]bool
	records     []Record
	closed      bool
}

// New constructs an empty History.
func New() *History {
	return &History{outstanding: make(map[int32]bool)}
}

// Invoke appends an invoke record for process, returning its index so the
// caller can correlate the eventual ok/fail/info record with the same
// operation id if needed.
func (h *History) Invoke(process int32, timeNanos int64, f string, value any) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fmt.Errorf("history: closed")
	}
	if h.outstanding[process] {
		return 0, fmt.Errorf("history: process %d already has an outstanding invoke", process)
	}
	h.outstanding[process] = true
	idx := h.nextIdx
	h.nextIdx++
	h.records = append(h.records, Record{Index: idx, Process: process, TimeNanos: timeNanos, Type: Invoke, F: f, Value: value})
	return idx, nil
}

// Complete appends the ok/fail/info record that concludes process's
// outstanding invoke.
func (h *History) Complete(process int32, timeNanos int64, typ Type, f string, value any) error {
	if typ == Invoke {
		return fmt.Errorf("history: Complete called with type invoke")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("history: closed")
	}
	if !h.outstanding[process] {
		return fmt.Errorf("history: process %d has no outstanding invoke", process)
	}
	delete(h.outstanding, process)
	idx := h.nextIdx
	h.nextIdx++
	h.records = append(h.records, Record{Index: idx, Process: process, TimeNanos: timeNanos, Type: typ, F: f, Value: value})
	return nil
}

// Close marks the history read-only.
// Further Invoke/Complete calls fail.
func (h *History) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

// Records returns a copy of the records appended so far, in append order.
func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}

// MarshalJSON lets a History be written directly to history.json.
func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Records())
}
