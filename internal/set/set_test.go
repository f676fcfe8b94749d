package set_test

import (
	"testing"

	"github.com/distlab/maelstrom/internal/set"
	"go.akshayshah.org/attest"
)

func TestWith(t *testing.T) {
	s := set.New("a", "b")
	attest.True(t, s.Contains("a"))
	attest.Equal(t, s.Contains("c"), false)

	s2 := s.With("c")
	attest.True(t, s2.Contains("c"))
	attest.Equal(t, s.Contains("c"), false)
}

func TestItemsSorted(t *testing.T) {
	s := set.New("z", "a", "m")
	attest.Equal(t, s.Items(), []string{"a", "m", "z"})
}

func TestEmptySet(t *testing.T) {
	s := set.New()
	attest.Equal(t, len(s.Items()), 0)
}
