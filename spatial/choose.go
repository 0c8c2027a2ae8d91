package spatial

import (
	"cmp"
	"math"
	"slices"
)

// ChooseNext picks the best candidate in direction d from current. The
// current element must not be in candidates.
//
// Candidates whose center is not strictly beyond current's center are
// dropped. The rest split into a primary pool (perpendicular overlap at least
// p.OverlapThreshold) and a secondary pool. The first non-empty pool is
// scored by squared distance with the off-axis delta weighted by
// p.PerpendicularWeight; the lowest score wins.
func ChooseNext(current Candidate, candidates []Candidate, d Direction, p Params) (Candidate, bool) {
	var primary, secondary []Candidate
	for _, c := range candidates {
		if c.ID == current.ID {
			continue
		}
		if !ahead(current.Center, c.Center, d, p.AxisTolerance) {
			continue
		}
		if overlapFraction(current.Rect, c.Rect, d) >= p.OverlapThreshold {
			primary = append(primary, c)
		} else {
			secondary = append(secondary, c)
		}
	}

	pool := primary
	if len(pool) == 0 {
		pool = secondary
	}

	var best Candidate
	bestScore := math.Inf(1)
	found := false
	for _, c := range pool {
		s := weightedDistance(current.Center, c.Center, d, p.PerpendicularWeight)
		if s < bestScore {
			best, bestScore, found = c, s, true
		}
	}
	return best, found
}

// ReadingOrder sorts candidates top to bottom, then left to right. Two
// candidates whose tops differ by at most rowTol pixels share a row.
func ReadingOrder(candidates []Candidate, rowTol float64) []Candidate {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b Candidate) int {
		if math.Abs(a.Rect.Top-b.Rect.Top) > rowTol {
			return cmp.Compare(a.Rect.Top, b.Rect.Top)
		}
		return cmp.Compare(a.Rect.Left, b.Rect.Left)
	})
	return out
}

// ReadingOrderNext returns current's neighbor in reading order: the previous
// element for left and up, the next for right and down. It never wraps and
// reports false when current is absent or already at that end.
func ReadingOrderNext(current NodeID, candidates []Candidate, d Direction, p Params) (Candidate, bool) {
	ordered := ReadingOrder(candidates, p.RowTolerance)
	idx := slices.IndexFunc(ordered, func(c Candidate) bool { return c.ID == current })
	if idx < 0 {
		return Candidate{}, false
	}
	if d.Backward() {
		idx = max(0, idx-1)
	} else {
		idx = min(len(ordered)-1, idx+1)
	}
	if ordered[idx].ID == current {
		return Candidate{}, false
	}
	return ordered[idx], true
}

// NearestToCenter returns the candidate whose center is closest to the
// viewport center. It is used when nothing holds focus yet.
func NearestToCenter(candidates []Candidate, viewport Size) (Candidate, bool) {
	mid := viewport.Center()
	var best Candidate
	bestDist := math.Inf(1)
	found := false
	for _, c := range candidates {
		if d := sqDist(c.Center, mid); d < bestDist {
			best, bestDist, found = c, d, true
		}
	}
	return best, found
}
