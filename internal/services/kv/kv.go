// Package kv implements the three key-value built-in services: lin-kv,
// seq-kv, and lww-kv. All three attach to the
// network core like any other node and differ only in how they serialize
// concurrent operations against their state.
package kv

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/distlab/maelstrom/internal/clock"
	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/maelerr"
	"github.com/distlab/maelstrom/internal/network"
	"github.com/distlab/maelstrom/internal/op"
)

// Mode selects a key-value service's consistency discipline.
type Mode int

const (
	// Linearizable serializes every operation against every other
	// operation on the service, regardless of key.
	Linearizable Mode = iota
	// Sequential serializes operations per key but allows cross-key
	// operations to reorder.
	Sequential
	// LastWriteWins resolves concurrent writes to the same key by the
	// greater of two internally assigned monotonic timestamps, and reads
	// may observe a stale value.
	LastWriteWins
)

// entry is one stored value, tagged with the timestamp of the write that
// produced it. lin-kv and seq-kv only use Value; lww-kv uses both.
type entry struct {
	Value     json.RawMessage
	Timestamp uint64
	Exists    bool
}

// Service is a built-in key-value store.
type Service struct {
	id     envelope.NodeID
	mode   Mode
	logger *slog.Logger

	// Linearizable: a single mutex guards the whole store, and the recv
	// loop processes one message at a time, giving a single-threaded
	// executor.
	globalMu sync.Mutex

	// Sequential: one worker goroutine per key, fed by a small channel, so
	// operations on different keys make progress independently while
	// operations on the same key stay totally ordered.
	keyWorkersMu sync.Mutex
	keyWorkers   map[string]chan func()

	storeMu sync.Mutex
	store   map[string]entry
}

// New constructs a key-value service in the given mode.
func New(id envelope.NodeID, mode Mode, logger *slog.Logger) *Service {
	return &Service{
		id:         id,
		mode:       mode,
		logger:     logger.With("service", id),
		keyWorkers: make(map[string]chan func()),
		store:      make(map[string]entry),
	}
}

// Run attaches the service to core and processes requests until ctx is
// done or the endpoint is closed.
func (s *Service) Run(ctx context.Context, core *network.Core, clk clock.Clock) {
	ep := core.Attach(s.id)
	defer ep.Close()
	for {
		msg, err := ep.Recv(ctx)
		if err != nil {
			return
		}
		s.handle(ep, msg)
	}
}

func (s *Service) handle(ep *network.Endpoint, msg envelope.Message) {
	reserved, err := msg.Reserved()
	if err != nil {
		return
	}
	var req request
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		s.reply(ep, msg.Src, reserved.MsgID, "", nil, maelerr.New(maelerr.MalformedRequest, err.Error()))
		return
	}

	o := op.New(reserved.Type)
	process := func() {
		val, svcErr := s.apply(o, req, msg.ID)
		s.reply(ep, msg.Src, reserved.MsgID, okTypeFor(o), val, svcErr)
	}

	switch s.mode {
	case Linearizable:
		s.globalMu.Lock()
		process()
		s.globalMu.Unlock()
	case Sequential:
		s.perKeyWorker(req.Key).submit(process)
	case LastWriteWins:
		go process()
	}
}

type request struct {
	Key                json.RawMessage `json:"key"`
	Value              json.RawMessage `json:"value"`
	From               json.RawMessage `json:"from"`
	To                 json.RawMessage `json:"to"`
	CreateIfNotExists  bool            `json:"create_if_not_exists"`
}

// apply executes one request against the store. reqMsgID is the network
// core's message id for the request; lww-kv uses it as the write's
// timestamp, so that a write's effect on the store depends on when it was
// issued into the network rather than on the arrival order the service
// happens to process it in.
func (s *Service) apply(o op.Op, req request, reqMsgID uint64) (json.RawMessage, *maelerr.Error) {
	key := string(req.Key)
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	switch o {
	case op.Read:
		e, ok := s.store[key]
		if !ok || !e.Exists {
			return nil, maelerr.New(maelerr.KeyDoesNotExist, "key does not exist")
		}
		return e.Value, nil
	case op.Write:
		s.storeIfNewer(key, req.Value, reqMsgID)
		return nil, nil
	case op.Cas:
		e, ok := s.store[key]
		if !ok || !e.Exists {
			if !req.CreateIfNotExists {
				return nil, maelerr.New(maelerr.KeyDoesNotExist, "key does not exist")
			}
			s.storeIfNewer(key, req.To, reqMsgID)
			return nil, nil
		}
		if !jsonEqual(e.Value, req.From) {
			return nil, maelerr.New(maelerr.PreconditionFailed, "current value does not match from")
		}
		s.storeIfNewer(key, req.To, reqMsgID)
		return nil, nil
	default:
		return nil, maelerr.New(maelerr.NotSupported, "unsupported op "+string(o))
	}
}

// storeIfNewer writes value unconditionally for lin-kv and seq-kv (they
// already serialize access so the last writer always wins by construction)
// but, for lww-kv, only if ts is greater than the timestamp of whatever is
// currently stored — breaking ties toward the larger message id, since two
// writes can never share an id.
func (s *Service) storeIfNewer(key string, value json.RawMessage, ts uint64) {
	if s.mode != LastWriteWins {
		s.store[key] = entry{Value: value, Exists: true, Timestamp: ts}
		return
	}
	current, ok := s.store[key]
	if !ok || ts > current.Timestamp {
		s.store[key] = entry{Value: value, Exists: true, Timestamp: ts}
	}
}

func (s *Service) reply(ep *network.Endpoint, dest envelope.NodeID, inReplyTo *uint64, okType string, value json.RawMessage, svcErr *maelerr.Error) {
	fields := map[string]any{}
	if inReplyTo != nil {
		fields["in_reply_to"] = *inReplyTo
	}
	if svcErr != nil {
		fields["type"] = "error"
		fields["code"] = int(svcErr.Code)
		fields["text"] = svcErr.Text
	} else {
		fields["type"] = okType
		if value != nil {
			fields["value"] = json.RawMessage(value)
		}
	}
	body, err := envelope.NewBody(fields)
	if err != nil {
		return
	}
	ep.Send(dest, body)
}

func okTypeFor(o op.Op) string {
	switch o {
	case op.Read:
		return "read_ok"
	case op.Cas:
		return "cas_ok"
	default:
		return "write_ok"
	}
}

type keyWorker struct {
	work chan func()
}

func (w *keyWorker) submit(fn func()) {
	w.work <- fn
}

func (s *Service) perKeyWorker(rawKey json.RawMessage) *keyWorker {
	key := string(rawKey)
	s.keyWorkersMu.Lock()
	defer s.keyWorkersMu.Unlock()
	ch, ok := s.keyWorkers[key]
	if !ok {
		ch = make(chan func(), 256)
		s.keyWorkers[key] = ch
		go func() {
			for fn := range ch {
				fn()
			}
		}()
	}
	return &keyWorker{work: ch}
}

// jsonEqual compares two JSON values for CAS purposes by comparing their
// compacted encodings; this is not full structural equality (key order in
// objects would still matter) but built-in service values are scalars or
// small literals in every workload this core supports.
func jsonEqual(a, b json.RawMessage) bool {
	ca, erra := compact(a)
	cb, errb := compact(b)
	if erra != nil || errb != nil {
		return string(a) == string(b)
	}
	return string(ca) == string(cb)
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buf interface{}
	if err := json.Unmarshal(raw, &buf); err != nil {
		return nil, err
	}
	return json.Marshal(buf)
}
