package valueobjects

import "math"

// Vector2 is a plain 2D vector used for positions, velocities and impulses.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec creates a Vector2
func Vec(x, y float64) Vector2 {
	return Vector2{X: x, Y: y}
}

// Add returns v + o
func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v - o
func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v * s
func (v Vector2) Scale(s float64) Vector2 {
	return Vector2{X: v.X * s, Y: v.Y * s}
}

// LengthSq returns the squared length
func (v Vector2) LengthSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Length returns the Euclidean length
func (v Vector2) Length() float64 {
	return math.Sqrt(v.LengthSq())
}

// Normalize returns the unit vector in the direction of v.
// A zero vector normalizes to +x so callers always get a usable direction.
func (v Vector2) Normalize() Vector2 {
	l := v.Length()
	if l == 0 {
		return Vector2{X: 1}
	}
	return Vector2{X: v.X / l, Y: v.Y / l}
}

// IsFinite reports whether both components are finite numbers
func (v Vector2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}
