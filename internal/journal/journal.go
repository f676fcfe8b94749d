// Package journal implements the append-only log of network events used by
// the checker and the visualizer.
//
// A Journal is a single-writer, many-reader structure: the network core is
// its only writer, and it is read-only once a test ends.
package journal

import (
	"encoding/json"
	"sync"

	"github.com/distlab/maelstrom/internal/envelope"
)

// Direction classifies a journal entry as a send or a receive.
type Direction string

const (
	Send Direction = "send"
	Recv Direction = "recv"
)

// Entry is one append-only record.
type Entry struct {
	TimeNanos int64             `json:"time_ns"`
	Direction Direction         `json:"direction"`
	Message   envelope.Message  `json:"message"`
}

// Journal accumulates Entry records in the exact order the network core
// observed each event.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

// New constructs an empty Journal.
func New() *Journal {
	return &Journal{}
}

// Append records a new entry. It is safe for concurrent use; callers
// typically all funnel through the network core, which serializes its own
// internal critical section, but Append takes its own lock so that the
// debug console can read a consistent
// snapshot concurrently with writes.
func (j *Journal) Append(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

// Entries returns a copy of the entries appended so far, in append order.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of entries appended so far.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// SendRecvCounts returns the number of send and recv entries, which the
// result aggregator reports as the run's network stats.
func (j *Journal) SendRecvCounts() (sends, recvs int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		switch e.Direction {
		case Send:
			sends++
		case Recv:
			recvs++
		}
	}
	return sends, recvs
}

// MarshalJSON lets a Journal be written directly to journal.json.
func (j *Journal) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Entries())
}
