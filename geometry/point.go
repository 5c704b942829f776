package geometry

import "math"

// Axes shorter than this cannot define a usable view plane.
const DegenerateAxisLength = 1e-9

// FeetPerMillimeter converts host-side millimeter settings into the model's
// internal length unit.
const FeetPerMillimeter = 1.0 / 304.8

// Point is a position in a view's local 2D projection.
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) DistanceTo(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p Point) EqualWithEpsilon(q Point, epsilon float64) bool {
	return math.Abs(p.X-q.X) <= epsilon && math.Abs(p.Y-q.Y) <= epsilon
}

// Vec3 is a point or direction in model space.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func NewVec3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Dot(w Vec3) float64 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Basis is the orthonormal right/up frame of a view plane, plus the view
// scale used to derive search granularity.
type Basis struct {
	Right Vec3
	Up    Vec3
	Scale float64
}

// IsDegenerate reports whether the basis cannot project points. Every search
// run against a degenerate basis is a no-op.
func (b Basis) IsDegenerate() bool {
	return b.Right.Length() < DegenerateAxisLength ||
		b.Up.Length() < DegenerateAxisLength
}

// Project maps a model-space point onto the view plane.
func (b Basis) Project(v Vec3) Point {
	return Point{
		X: b.Right.Dot(v),
		Y: b.Up.Dot(v),
	}
}

// SearchStep is the radial search increment for this view's scale.
func (b Basis) SearchStep() float64 {
	return math.Max(0.1, b.Scale/120)
}
