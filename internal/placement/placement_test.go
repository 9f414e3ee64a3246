package placement

import (
	"math"
	"testing"
)

func TestToPercentUsesContainerOffset(t *testing.T) {
	rect := Rect{Left: 100, Top: 50, Width: 200, Height: 400}
	x, y := ToPercent(Point{X: 150, Y: 150}, rect)
	if x != 25 || y != 25 {
		t.Fatalf("expected (25, 25), got (%v, %v)", x, y)
	}
}

func TestToPercentDegenerateRect(t *testing.T) {
	x, y := ToPercent(Point{X: 10, Y: 10}, Rect{Width: 0, Height: 100})
	if x != 0 || y != 0 {
		t.Fatalf("expected origin for zero-width rect, got (%v, %v)", x, y)
	}
}

func TestClampBounds(t *testing.T) {
	cases := []struct {
		inX, inY   float64
		outX, outY float64
	}{
		{85, 95, 80, 90},
		{-5, -1, 0, 0},
		{42.5, 12.25, 42.5, 12.25},
		{math.Inf(1), math.Inf(-1), 80, 0},
		{math.NaN(), 200, 0, 90},
	}
	for _, tc := range cases {
		x, y := Clamp(tc.inX, tc.inY)
		if x != tc.outX || y != tc.outY {
			t.Fatalf("Clamp(%v, %v) = (%v, %v), want (%v, %v)", tc.inX, tc.inY, x, y, tc.outX, tc.outY)
		}
	}
}

func TestClampIsIdempotent(t *testing.T) {
	inputs := []float64{-1e9, -80.5, -0.0001, 0, 0.5, 33.3, 79.999, 80, 80.0001, 89.99, 90, 90.5, 150, 1e12}
	for _, x := range inputs {
		for _, y := range inputs {
			cx, cy := Clamp(x, y)
			if cx < 0 || cx > MaxX || cy < 0 || cy > MaxY {
				t.Fatalf("Clamp(%v, %v) escaped bounds: (%v, %v)", x, y, cx, cy)
			}
			ccx, ccy := Clamp(cx, cy)
			if ccx != cx || ccy != cy {
				t.Fatalf("Clamp not idempotent for (%v, %v): (%v, %v) then (%v, %v)", x, y, cx, cy, ccx, ccy)
			}
		}
	}
}

func TestLocateInsideSquareContainer(t *testing.T) {
	rect := Rect{Width: 1000, Height: 1000}
	x, y := Locate(Point{X: 850, Y: 950}, rect)
	if x != 80 || y != 90 {
		t.Fatalf("expected clamped (80, 90), got (%v, %v)", x, y)
	}
}

func TestRectContains(t *testing.T) {
	rect := Rect{Left: 2, Top: 3, Width: 10, Height: 5}
	if !rect.Contains(Point{X: 2, Y: 3}) {
		t.Fatalf("expected top-left corner inside")
	}
	if rect.Contains(Point{X: 12, Y: 4}) {
		t.Fatalf("expected right edge outside")
	}
}

func TestClampSize(t *testing.T) {
	if got := ClampSize(-3, 1); got != 1 {
		t.Fatalf("expected min for negative size, got %v", got)
	}
	if got := ClampSize(250, 1); got != 100 {
		t.Fatalf("expected 100 cap, got %v", got)
	}
	if got := ClampSize(12.5, 1); got != 12.5 {
		t.Fatalf("expected passthrough, got %v", got)
	}
}
