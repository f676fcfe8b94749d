package maelerr_test

import (
	"testing"

	"github.com/distlab/maelstrom/internal/maelerr"
	"go.akshayshah.org/attest"
)

func TestDefinite(t *testing.T) {
	attest.True(t, maelerr.Definite(maelerr.KeyDoesNotExist))
	attest.True(t, maelerr.Definite(maelerr.PreconditionFailed))
	attest.Equal(t, maelerr.Definite(maelerr.Timeout), false)
	attest.Equal(t, maelerr.Definite(maelerr.Crash), false)
	attest.Equal(t, maelerr.Definite(maelerr.Abort), false)
}

func TestIsWorkloadDefined(t *testing.T) {
	attest.Equal(t, maelerr.IsWorkloadDefined(maelerr.TxnConflict), false)
	attest.True(t, maelerr.IsWorkloadDefined(maelerr.Code(100)))
	attest.True(t, maelerr.IsWorkloadDefined(maelerr.Code(4000)))
}

func TestErrorMessage(t *testing.T) {
	err := maelerr.New(maelerr.KeyDoesNotExist, "no such key")
	attest.Equal(t, err.Error(), "error 20: no such key")
	attest.True(t, err.Definite())

	bare := maelerr.New(maelerr.Timeout, "")
	attest.Equal(t, bare.Error(), "error 0")
	attest.Equal(t, bare.Definite(), false)
}
