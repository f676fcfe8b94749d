// Package diceware provides utilities for generating memorable-but-random
// strings, used by the echo workload to produce human-legible payloads
// instead of opaque random bytes.
package diceware

import (
	"math/rand/v2"
	"strings"
)

// GenWord generates a short hyphenated string, e.g. "amber-trail-kept".
func GenWord(r *rand.Rand) string {
	var sb strings.Builder
	for i := range 3 {
		if i > 0 {
			sb.WriteRune('-')
		}
		sb.WriteString(corpus[r.IntN(len(corpus))])
	}
	return sb.String()
}

// corpus is a small word list; it need not be cryptographically uniform or
// exhaustive, only varied enough to make distinct echo payloads easy to
// tell apart in logs and journals.
var corpus = []string{
	"amber", "anchor", "ash", "aspen", "atlas", "badge", "basin", "beacon",
	"birch", "bloom", "bolt", "bramble", "brass", "briar", "bridge",
	"brook", "cabin", "cairn", "candle", "canyon", "cedar", "chalk",
	"charcoal", "cinder", "clay", "cliff", "clover", "coal", "coast",
	"cobalt", "comet", "copper", "coral", "cove", "crag", "crane",
	"crater", "creek", "crescent", "crest", "crow", "crown", "current",
	"dawn", "delta", "dew", "dock", "dove", "drift", "dune", "dusk",
	"eagle", "ember", "estuary", "falcon", "feather", "fern", "field",
	"fir", "flare", "flint", "fog", "forge", "fox", "frost", "garnet",
	"glacier", "glade", "glen", "gorge", "granite", "grove", "gull",
	"gully", "harbor", "hawk", "hazel", "heath", "hemlock", "heron",
	"hickory", "hollow", "holly", "hornet", "iris", "ivy", "jade",
	"jasper", "juniper", "kelp", "kestrel", "lagoon", "lantern", "larch",
	"lark", "ledge", "lichen", "lily", "loam", "locust", "lodge",
	"loon", "lotus", "lumber", "lynx", "magma", "maple", "marble",
	"marsh", "meadow", "mesa", "mist", "moat", "moor", "moss", "moth",
	"needle", "nest", "nettle", "oak", "oasis", "obsidian", "onyx",
	"opal", "orchard", "osprey", "otter", "outcrop", "owl", "paddle",
	"pebble", "perch", "petal", "pine", "plank", "plateau", "plume",
	"pond", "poplar", "prairie", "quail", "quarry", "quartz", "quill",
	"rapid", "raven", "reed", "reef", "relic", "ridge", "rift", "river",
	"rook", "root", "rowan", "rush", "sable", "sage", "sand", "sap",
	"sedge", "shale", "shoal", "shore", "silt", "skiff", "slate",
	"sliver", "sloop", "snag", "spark", "sparrow", "spire", "sprig",
	"spruce", "spur", "stone", "stork", "strait", "stream", "sumac",
	"summit", "swallow", "swamp", "tarn", "teal", "tern", "thicket",
	"thistle", "thorn", "timber", "tor", "torch", "trail", "trout",
	"tundra", "tusk", "twig", "valley", "vine", "violet", "vista",
	"warbler", "weir", "wharf", "wick", "willow", "wisp", "wolf", "wren",
}
