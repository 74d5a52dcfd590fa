// Package defense implements the load-to-difficulty curve used to size
// proof-of-work puzzles against the current visitor count of a site.
package defense

import (
	"sort"

	"github.com/mcaptcha/powcore/internal/core/errs"
)

// Level pairs a visitor-count threshold with the difficulty factor that
// applies once the threshold is met.
type Level struct {
	Threshold        uint32
	DifficultyFactor uint32
}

// Defense is an ordered, non-empty sequence of Levels sorted by ascending
// Threshold. The zero value is not valid; use New to construct one.
type Defense struct {
	levels []Level
}

// New validates and builds a Defense from levels. Levels need not be
// pre-sorted; New sorts a copy by Threshold. Construction fails if levels
// is empty, if no level has Threshold 0, or if two levels share a
// Threshold.
func New(levels []Level) (Defense, error) {
	if len(levels) == 0 {
		return Defense{}, errs.InvalidDefense("empty")
	}

	sorted := make([]Level, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	if sorted[0].Threshold != 0 {
		return Defense{}, errs.InvalidDefense("missing zero threshold")
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Threshold == sorted[i-1].Threshold {
			return Defense{}, errs.InvalidDefense("duplicate threshold")
		}
	}

	return Defense{levels: sorted}, nil
}

// Difficulty returns the DifficultyFactor of the greatest level whose
// Threshold is strictly less than visitors, defaulting to the
// zero-threshold level for visitors at or below it. A visitor count
// equal to a threshold stays at the lower level (libmcaptcha's
// visitor_threshold > level.visitor_threshold comparison is strict).
// Total over the full uint32 range by construction.
func (d Defense) Difficulty(visitors uint32) uint32 {
	factor := d.levels[0].DifficultyFactor
	for _, lvl := range d.levels {
		if lvl.Threshold >= visitors {
			break
		}
		factor = lvl.DifficultyFactor
	}
	return factor
}

// Levels returns a copy of the sorted levels backing this Defense.
func (d Defense) Levels() []Level {
	out := make([]Level, len(d.levels))
	copy(out, d.levels)
	return out
}
