package spatial

// Params holds the tunable constants of the selection algorithm.
//
// OverlapThreshold and PerpendicularWeight were picked by hand against the
// target site's card rows. They have not been calibrated against other
// layouts; use a captured layout snapshot (tvshell -capture / -replay) to
// check a change before shipping it.
type Params struct {
	// OverlapThreshold is the minimum perpendicular overlap fraction for a
	// candidate to land in the primary pool.
	OverlapThreshold float64

	// PerpendicularWeight multiplies the squared off-axis delta when scoring.
	PerpendicularWeight float64

	// AxisTolerance is the slack, in pixels, of the strict directional test.
	AxisTolerance float64

	// RowTolerance is the top-coordinate difference under which two
	// candidates share a row in reading order.
	RowTolerance float64

	// WakePoints are viewport fractions hovered when no candidate is found.
	WakePoints []Point

	// RecoveryFrames lists the frames to wait before each retry of an empty
	// discovery. Its length is the number of retries.
	RecoveryFrames []int
}

// DefaultParams returns the parameters the shell ships with.
func DefaultParams() Params {
	return Params{
		OverlapThreshold:    0.4,
		PerpendicularWeight: 50,
		AxisTolerance:       1,
		RowTolerance:        2,
		WakePoints:          []Point{{X: 0.5, Y: 0.9}, {X: 0.5, Y: 0.5}},
		RecoveryFrames:      []int{2, 1},
	}
}

func (p *Params) defaults() {
	d := DefaultParams()
	if p.OverlapThreshold <= 0 {
		p.OverlapThreshold = d.OverlapThreshold
	}
	if p.PerpendicularWeight <= 0 {
		p.PerpendicularWeight = d.PerpendicularWeight
	}
	if p.AxisTolerance <= 0 {
		p.AxisTolerance = d.AxisTolerance
	}
	if p.RowTolerance <= 0 {
		p.RowTolerance = d.RowTolerance
	}
	if p.WakePoints == nil {
		p.WakePoints = d.WakePoints
	}
	if p.RecoveryFrames == nil {
		p.RecoveryFrames = d.RecoveryFrames
	}
}
