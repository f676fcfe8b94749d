// Package viz renders a completed test run's journal as a Lamport
// diagram: one vertical lifeline per node, with an arrow for every
// message send/recv pair observed by the network core.
//
// No plotting or SVG library covers this need, so it is hand-rolled with
// fmt and strings and a small local XML-escaping helper; see DESIGN.md for
// the justification.
package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/distlab/maelstrom/internal/envelope"
	"github.com/distlab/maelstrom/internal/journal"
)

const (
	marginX    = 60
	marginY    = 30
	laneWidth  = 140
	rowHeight  = 4
)

// LamportSVG renders j as a self-contained SVG document: one lifeline per
// node ordered by node id, with a diagonal line for every
// send/recv pair.
func LamportSVG(j *journal.Journal) string {
	entries := j.Entries()
	lanes := laneOrder(entries)
	laneX := make(map[envelope.NodeID]int, len(lanes))
	for i, id := range lanes {
		laneX[id] = marginX + i*laneWidth
	}

	height := marginY*2 + len(entries)*rowHeight
	width := marginX*2 + len(lanes)*laneWidth

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="monospace" font-size="10">`, width, height)
	for _, id := range lanes {
		x := laneX[id]
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`, x, marginY, x, height-marginY)
		fmt.Fprintf(&b, `<text x="%d" y="%d" text-anchor="middle">%s</text>`, x, marginY-10, escapeXML(string(id)))
	}

	sendY := map[uint64]int{}
	for row, e := range entries {
		y := marginY + row*rowHeight
		switch e.Direction {
		case journal.Send:
			sendY[e.Message.ID] = y
		case journal.Recv:
			srcY, ok := sendY[e.Message.ID]
			srcX, srcOK := laneX[e.Message.Src]
			destX, destOK := laneX[e.Message.Dest]
			if !ok || !srcOK || !destOK {
				continue
			}
			fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="steelblue" marker-end="url(#arrow)"/>`,
				srcX, srcY, destX, y)
		}
	}
	b.WriteString(`<defs><marker id="arrow" markerWidth="6" markerHeight="6" refX="5" refY="3" orient="auto"><path d="M0,0 L6,3 L0,6 Z" fill="steelblue"/></marker></defs>`)
	b.WriteString(`</svg>`)
	return b.String()
}

func laneOrder(entries []journal.Entry) []envelope.NodeID {
	seen := map[envelope.NodeID]bool{}
	var order []envelope.NodeID
	for _, e := range entries {
		for _, id := range []envelope.NodeID{e.Message.Src, e.Message.Dest} {
			if !seen[id] {
				seen[id] = true
				order = append(order, id)
			}
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return order
}

func escapeXML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
