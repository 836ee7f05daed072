package quadtree

import (
	"math"
	"strconv"
)

// Point is a location on the drawing surface. Y grows downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return "[" + strconv.FormatFloat(p.X, 'f', -1, 64) + "," + strconv.FormatFloat(p.Y, 'f', -1, 64) + "]"
}

// Rectangle is an axis-aligned region with its origin at the top-left corner.
type Rectangle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// NewRectangleAround returns a rectangle of size w×h centered on c.
func NewRectangleAround(c Point, w, h float64) Rectangle {
	return Rectangle{
		X: c.X - w/2,
		Y: c.Y - h/2,
		W: w,
		H: h,
	}
}

// Contains reports whether p lies in [X, X+W) × [Y, Y+H).
func (r Rectangle) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W &&
		p.Y >= r.Y && p.Y < r.Y+r.H
}

// Intersects reports whether r and o share at least one point. Rectangles
// touching on an edge intersect.
func (r Rectangle) Intersects(o Rectangle) bool {
	return !(o.X > r.X+r.W ||
		o.X+o.W < r.X ||
		o.Y > r.Y+r.H ||
		o.Y+o.H < r.Y)
}

// Valid reports whether the rectangle has a finite origin and a positive
// finite size.
func (r Rectangle) Valid() bool {
	return isFinite(r.X) && isFinite(r.Y) &&
		isFinite(r.W) && isFinite(r.H) &&
		r.W > 0 && r.H > 0
}

func (r Rectangle) String() string {
	return "(" + strconv.FormatFloat(r.X, 'f', -1, 64) +
		"," + strconv.FormatFloat(r.Y, 'f', -1, 64) +
		"," + strconv.FormatFloat(r.W, 'f', -1, 64) +
		"," + strconv.FormatFloat(r.H, 'f', -1, 64) + ")"
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
