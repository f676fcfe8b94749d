package result_test

import (
	"testing"

	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/result"
	"github.com/distlab/maelstrom/internal/workload"
	"go.akshayshah.org/attest"
)

func TestBuildComputesLatencyAndCounts(t *testing.T) {
	records := []history.Record{
		{Index: 0, Process: 1, Type: history.Invoke, TimeNanos: 0, F: "read"},
		{Index: 1, Process: 1, Type: history.Ok, TimeNanos: 1_000_000, F: "read"},
		{Index: 2, Process: 2, Type: history.Invoke, TimeNanos: 0, F: "read"},
		{Index: 3, Process: 2, Type: history.Ok, TimeNanos: 3_000_000, F: "read"},
		{Index: 4, Process: history.NemesisProcess, Type: history.Invoke, TimeNanos: 0, F: "partition"},
		{Index: 5, Process: history.NemesisProcess, Type: history.Info, TimeNanos: 0, F: "partition"},
	}
	check := workload.CheckResult{Valid: true}

	r := result.Build("run-1", "echo", records, check, 10, 10)
	attest.Equal(t, r.RunID, "run-1")
	attest.Equal(t, r.Workload, "echo")
	attest.True(t, r.Valid)
	attest.Equal(t, r.Network.Sends, 10)
	attest.Equal(t, r.Network.Recvs, 10)
	attest.Equal(t, r.Latency.Count, 2)
	attest.Equal(t, r.Latency.Max, 3.0)
}

func TestBuildWithNoCompletedOpsHasZeroLatency(t *testing.T) {
	check := workload.CheckResult{Valid: true}
	r := result.Build("run-2", "echo", nil, check, 0, 0)
	attest.Equal(t, r.Latency.Count, 0)
	attest.Equal(t, r.Latency.Median, 0.0)
}

func TestBuildCarriesAnomalies(t *testing.T) {
	check := workload.CheckResult{Valid: false, Anomalies: []string{"k1: history not linearizable"}}
	r := result.Build("run-3", "lin-kv", nil, check, 2, 2)
	attest.Equal(t, r.Valid, false)
	attest.Equal(t, len(r.Anomalies), 1)
}
