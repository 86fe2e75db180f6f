package common

import "fmt"

// publisherLabels is a static lookup of known publisher IDs to their
// "DATASET.SCHEMA.VENUE" display label. This is data, not behavior (spec
// §9): extending it to a new venue never requires touching any other
// package.
var publisherLabels = map[PublisherID]string{
	1: "GLBX.MDP3.GLBX",
	2: "XNAS.ITCH.XNAS",
	3: "XNYS.PILLAR.XNYS",
	4: "IFEU.IMPACT.IFEU",
	5: "NDEX.IMPACT.NDEX",
	6: "DBEQ.BASIC.DBEQ",
}

// Label renders the human-readable label for a publisher ID, falling back
// to "Unknown Publisher (N)" for anything not in the static table.
func Label(id PublisherID) string {
	if label, ok := publisherLabels[id]; ok {
		return label
	}
	return fmt.Sprintf("Unknown Publisher (%d)", id)
}
