package alert

import (
	"fmt"
	"strings"
)

// maxSummaryNames is how many hazard names appear verbatim in a summary
// before the remainder is collapsed into a count.
const maxSummaryNames = 3

// Summarize renders a hit set as a single human-readable line.
//
// A single hit reads "name at Nm". Multiple hits list the first three
// names joined by commas, with a trailing count when more remain.
func Summarize(hits []Hit) string {
	switch len(hits) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s at %.0fm", hits[0].Name, hits[0].DistanceMeters)
	}

	names := make([]string, 0, maxSummaryNames)
	for i, h := range hits {
		if i == maxSummaryNames {
			break
		}
		names = append(names, h.Name)
	}

	summary := strings.Join(names, ", ")
	if remainder := len(hits) - maxSummaryNames; remainder > 0 {
		summary = fmt.Sprintf("%s and %d more", summary, remainder)
	}
	return summary
}
