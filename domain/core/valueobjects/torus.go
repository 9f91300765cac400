package valueobjects

import (
	"fmt"
	"math"
)

// Torus describes the simulation plane. Coordinates leaving one edge re-enter
// from the opposite edge; every stored position lies in [0,W)x[0,H).
type Torus struct {
	width  float64
	height float64
}

// NewTorus creates a torus of the given size
func NewTorus(width, height float64) (Torus, error) {
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return Torus{}, fmt.Errorf("torus dimensions must be positive and finite, got %vx%v", width, height)
	}
	return Torus{width: width, height: height}, nil
}

// Width returns the torus width
func (t Torus) Width() float64 { return t.width }

// Height returns the torus height
func (t Torus) Height() float64 { return t.height }

// Wrap maps a point onto the torus. Works for any number of wraps.
func (t Torus) Wrap(p Vector2) Vector2 {
	return Vector2{X: wrapCoord(p.X, t.width), Y: wrapCoord(p.Y, t.height)}
}

// Contains reports whether p is already a wrapped coordinate
func (t Torus) Contains(p Vector2) bool {
	return p.X >= 0 && p.X < t.width && p.Y >= 0 && p.Y < t.height
}

// Delta returns the shortest vector from a to b across the wrap.
func (t Torus) Delta(a, b Vector2) Vector2 {
	return Vector2{X: shortestAxis(b.X-a.X, t.width), Y: shortestAxis(b.Y-a.Y, t.height)}
}

// Distance returns the wrapped Euclidean distance between a and b
func (t Torus) Distance(a, b Vector2) float64 {
	return t.Delta(a, b).Length()
}

// DistanceSq returns the squared wrapped distance between a and b
func (t Torus) DistanceSq(a, b Vector2) float64 {
	return t.Delta(a, b).LengthSq()
}

func wrapCoord(v, size float64) float64 {
	v = math.Mod(v, size)
	if v < 0 {
		v += size
	}
	// -tiny + size rounds to size
	if v >= size {
		v = 0
	}
	return v
}

func shortestAxis(d, size float64) float64 {
	d = math.Mod(d, size)
	half := size / 2
	if d > half {
		d -= size
	} else if d < -half {
		d += size
	}
	return d
}
