package viz_test

import (
	"strings"
	"testing"

	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/journal"
	"github.com/distlab/maelstrom/internal/viz"
	"go.akshayshah.org/attest"
)

func TestLamportSVGContainsLanesAndArrow(t *testing.T) {
	j := journal.New()
	msg := envelope.Message{ID: 1, Src: "n1", Dest: "n2", Body: []byte(`{"type":"echo"}`)}
	j.Append(journal.Entry{TimeNanos: 0, Direction: journal.Send, Message: msg})
	j.Append(journal.Entry{TimeNanos: 1, Direction: journal.Recv, Message: msg})

	svg := viz.LamportSVG(j)
	attest.True(t, strings.HasPrefix(svg, "<svg"))
	attest.True(t, strings.Contains(svg, ">n1<"))
	attest.True(t, strings.Contains(svg, ">n2<"))
	attest.True(t, strings.Contains(svg, "steelblue"))
}

func TestLamportSVGEscapesNodeNames(t *testing.T) {
	j := journal.New()
	msg := envelope.Message{ID: 1, Src: envelope.NodeID("n<1>"), Dest: "n2", Body: []byte(`{}`)}
	j.Append(journal.Entry{TimeNanos: 0, Direction: journal.Send, Message: msg})

	svg := viz.LamportSVG(j)
	attest.True(t, strings.Contains(svg, "&lt;1&gt;"))
	attest.Equal(t, strings.Contains(svg, "n<1>"), false)
}

func TestLamportSVGEmptyJournal(t *testing.T) {
	j := journal.New()
	svg := viz.LamportSVG(j)
	attest.True(t, strings.HasPrefix(svg, "<svg"))
	attest.True(t, strings.HasSuffix(svg, "</svg>"))
}
