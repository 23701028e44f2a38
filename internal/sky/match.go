package sky

import (
	"fmt"
	"math"
)

// NoCoverage labels a target that lies outside every footprint.
const NoCoverage = "NOCOVERAGE"

type Target struct {
	ID  string
	RA  float64
	Dec float64
}

type Footprint struct {
	ID  string
	RA  float64
	Dec float64
}

// Label is the coverage classification of one target. Separation is the
// distance to the nearest footprint centre, or +Inf when there are no
// footprints at all.
type Label struct {
	TargetID   string
	FieldID    string
	Separation float64
}

func (l Label) Covered() bool {
	return l.FieldID != NoCoverage
}

// Labels holds one label per target, in target order.
type Labels []Label

// Covered returns the distinct covered field IDs in first-seen order.
func (ls Labels) Covered() []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, l := range ls {
		if !l.Covered() {
			continue
		}
		if _, ok := seen[l.FieldID]; ok {
			continue
		}
		seen[l.FieldID] = struct{}{}
		fields = append(fields, l.FieldID)
	}
	return fields
}

// CountCovered returns how many targets received a field label.
func (ls Labels) CountCovered() int {
	n := 0
	for _, l := range ls {
		if l.Covered() {
			n++
		}
	}
	return n
}

// Match labels every target with the nearest footprint whose centre lies
// strictly closer than radius degrees, or NoCoverage. When several
// footprints share the minimum separation the earliest one wins.
func Match(targets []Target, footprints []Footprint, radius float64) (Labels, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRadius, radius)
	}

	ids := make(map[string]int, len(footprints))
	for i, fp := range footprints {
		if fp.ID == "" {
			return nil, fmt.Errorf("%w: empty id at index %d", ErrInvalidFootprint, i)
		}
		if prev, dup := ids[fp.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q at index %d and %d", ErrInvalidFootprint, fp.ID, prev, i)
		}
		ids[fp.ID] = i
		if err := ValidatePosition(fp.RA, fp.Dec); err != nil {
			return nil, fmt.Errorf("footprint %q: %w", fp.ID, err)
		}
	}

	labels := make(Labels, 0, len(targets))
	for i, t := range targets {
		if err := ValidatePosition(t.RA, t.Dec); err != nil {
			return nil, fmt.Errorf("target %q (index %d): %w", t.ID, i, err)
		}

		best := -1
		bestSep := math.Inf(1)
		for j, fp := range footprints {
			sep := Separation(t.RA, t.Dec, fp.RA, fp.Dec)
			if sep < bestSep {
				best, bestSep = j, sep
			}
		}

		label := Label{TargetID: t.ID, FieldID: NoCoverage, Separation: bestSep}
		if best >= 0 && bestSep < radius {
			label.FieldID = footprints[best].ID
		}
		labels = append(labels, label)
	}
	return labels, nil
}
