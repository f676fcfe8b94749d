package workload_test

import (
	"testing"

	"github.com/distlab/maelstrom/internal/workload"
	"go.akshayshah.org/attest"
)

func TestRegisterLookupNames(t *testing.T) {
	workload.Register(workload.Workload{Name: "test-only-registry-probe"})

	w, ok := workload.Lookup("test-only-registry-probe")
	attest.True(t, ok)
	attest.Equal(t, w.Name, "test-only-registry-probe")

	_, ok = workload.Lookup("does-not-exist")
	attest.Equal(t, ok, false)

	found := false
	for _, name := range workload.Names() {
		if name == "test-only-registry-probe" {
			found = true
		}
	}
	attest.True(t, found)
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	workload.Register(workload.Workload{Name: "test-only-dup-probe"})

	defer func() {
		r := recover()
		attest.NotZero(t, r)
	}()
	workload.Register(workload.Workload{Name: "test-only-dup-probe"})
}
