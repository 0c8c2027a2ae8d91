package spatial

import (
	"fmt"
	"math"
	"strings"
)

// Direction is one of the four travel directions.
type Direction int

const (
	Left Direction = iota
	Right
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Horizontal reports whether d travels along the x axis.
func (d Direction) Horizontal() bool { return d == Left || d == Right }

// Backward reports whether d moves towards the start of reading order.
func (d Direction) Backward() bool { return d == Left || d == Up }

// ParseDirection accepts left, right, up and down (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return 0, fmt.Errorf("spatial: unknown direction %q", s)
}

// Point is a position in layout (CSS pixel) space.
type Point struct {
	X, Y float64
}

// Size is a viewport size in CSS pixels.
type Size struct {
	Width, Height float64
}

// Center returns the geometric center of the viewport.
func (s Size) Center() Point { return Point{X: s.Width / 2, Y: s.Height / 2} }

// Rect is an element's bounding client rectangle.
type Rect struct {
	Left, Top, Width, Height float64
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Center returns the center point of r.
func (r Rect) Center() Point {
	return Point{X: r.Left + r.Width/2, Y: r.Top + r.Height/2}
}

// Empty reports whether r has no rendered area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// ahead reports whether p lies strictly beyond from in direction d, with tol
// pixels of slack on the travel axis.
func ahead(from, p Point, d Direction, tol float64) bool {
	switch d {
	case Left:
		return p.X < from.X-tol
	case Right:
		return p.X > from.X+tol
	case Up:
		return p.Y < from.Y-tol
	case Down:
		return p.Y > from.Y+tol
	}
	return false
}

// overlapFraction measures how much a and b overlap on the axis perpendicular
// to d: intersection length over the smaller of the two extents. A zero
// smaller extent divides by one.
func overlapFraction(a, b Rect, d Direction) float64 {
	var lo, hi, ext float64
	if d.Horizontal() {
		lo = math.Max(a.Top, b.Top)
		hi = math.Min(a.Bottom(), b.Bottom())
		ext = math.Min(a.Height, b.Height)
	} else {
		lo = math.Max(a.Left, b.Left)
		hi = math.Min(a.Right(), b.Right())
		ext = math.Min(a.Width, b.Width)
	}
	if ext == 0 {
		ext = 1
	}
	return math.Max(0, hi-lo) / ext
}

// weightedDistance is the squared distance from c to p where the delta on the
// axis perpendicular to d is multiplied by weight.
func weightedDistance(c, p Point, d Direction, weight float64) float64 {
	dx, dy := p.X-c.X, p.Y-c.Y
	if d.Horizontal() {
		return dx*dx + weight*dy*dy
	}
	return dy*dy + weight*dx*dx
}

func sqDist(a, b Point) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}
