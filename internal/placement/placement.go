// Package placement converts pointer positions into page-relative
// percentages. Everything here is pure: no state, no I/O.
package placement

import "math"

// Upper bounds for a field's top-left corner, in percent of the page.
// The margins keep a default-sized field on the page; large custom sizes
// can still spill past the right or bottom edge.
const (
	MaxX = 80.0
	MaxY = 90.0
)

// Point is a pointer position in container coordinates.
type Point struct {
	X float64
	Y float64
}

// Rect is a container's bounding box in the same coordinate space as Point.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Contains reports whether p falls inside the rectangle (right/bottom edges excluded).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Left+r.Width && p.Y >= r.Top && p.Y < r.Top+r.Height
}

// Size is a width/height pair in percent of the page.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ToPercent maps a pointer position inside rect to percent-of-rect coordinates.
// A degenerate rectangle maps every point to the origin.
func ToPercent(p Point, rect Rect) (float64, float64) {
	if rect.Width <= 0 || rect.Height <= 0 {
		return 0, 0
	}
	x := 100 * (p.X - rect.Left) / rect.Width
	y := 100 * (p.Y - rect.Top) / rect.Height
	return x, y
}

// Clamp limits x to [0, MaxX] and y to [0, MaxY]. NaN collapses to 0.
func Clamp(x, y float64) (float64, float64) {
	return clampAxis(x, MaxX), clampAxis(y, MaxY)
}

// Locate is ToPercent followed by Clamp.
func Locate(p Point, rect Rect) (float64, float64) {
	return Clamp(ToPercent(p, rect))
}

func clampAxis(v, upper float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > upper {
		return upper
	}
	return v
}

// ClampSize keeps a width or height inside (0, 100]. Non-positive and NaN
// values fall back to min.
func ClampSize(v, min float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return min
	}
	if v > 100 {
		return 100
	}
	return v
}
