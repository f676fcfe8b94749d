package supervisor_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/supervisor"
	"go.akshayshah.org/attest"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

// TestSendAndReceiveRoundTrip uses /usr/bin/cat as a stand-in node binary:
// it echoes every stdin line back to stdout unchanged, exercising the
// supervisor's stdin write path and stdout parse-and-dispatch path without
// needing a real Maelstrom node.
func TestSendAndReceiveRoundTrip(t *testing.T) {
	s := supervisor.New(supervisor.Config{
		NodeID:  "n1",
		BinPath: "/usr/bin/cat",
		LogDir:  t.TempDir(),
	}, discardLogger())

	var mu sync.Mutex
	var received []envelope.Message
	got := make(chan struct{}, 1)
	s.OnReceive = func(m envelope.Message) {
		mu.Lock()
		received = append(received, m)
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attest.Ok(t, s.Start(ctx))
	attest.Equal(t, s.State(), supervisor.Running)

	err := s.Send(envelope.Message{Src: "n1", Dest: "c1", Body: []byte(`{"type":"echo_ok","echo":"hi"}`)})
	attest.Ok(t, err)

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}

	mu.Lock()
	defer mu.Unlock()
	attest.Equal(t, len(received), 1)
	attest.Equal(t, received[0].Src, envelope.NodeID("n1"))
	attest.Equal(t, received[0].Dest, envelope.NodeID("c1"))

	attest.Ok(t, s.Teardown())
	attest.Equal(t, s.State(), supervisor.Exited)
}

func TestSendAfterExitFails(t *testing.T) {
	s := supervisor.New(supervisor.Config{
		NodeID:  "n1",
		BinPath: "/usr/bin/cat",
		LogDir:  t.TempDir(),
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attest.Ok(t, s.Start(ctx))
	attest.Ok(t, s.Teardown())

	err := s.Send(envelope.Message{Src: "n1", Dest: "c1", Body: []byte(`{}`)})
	attest.NotZero(t, err)
}

func TestPauseResumeStateMachine(t *testing.T) {
	s := supervisor.New(supervisor.Config{
		NodeID:  "n1",
		BinPath: "/usr/bin/cat",
		LogDir:  t.TempDir(),
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attest.Ok(t, s.Start(ctx))

	attest.Ok(t, s.Pause())
	attest.Equal(t, s.State(), supervisor.Paused)

	err := s.Pause()
	attest.NotZero(t, err)

	attest.Ok(t, s.Resume())
	attest.Equal(t, s.State(), supervisor.Running)

	attest.Ok(t, s.Teardown())
}
