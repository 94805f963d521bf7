package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Epsilon used when comparing distances and dot products.
const Epsilon = 1e-9

func EqualWithEpsilon(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value, min, max, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

func VectorEqualWithEpsilon(a, b r3.Vector, epsilon float64) bool {
	return EqualWithEpsilon(a.X, b.X, epsilon) &&
		EqualWithEpsilon(a.Y, b.Y, epsilon) &&
		EqualWithEpsilon(a.Z, b.Z, epsilon)
}

// MulComponents returns the component-wise product of two vectors.
func MulComponents(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

// DivComponents returns the component-wise quotient of two vectors.
func DivComponents(a, b r3.Vector) r3.Vector {
	return r3.Vector{X: a.X / b.X, Y: a.Y / b.Y, Z: a.Z / b.Z}
}

// Plane is the set of points p where Normal·p + Distance == 0. Points with a
// positive signed distance are on the inner side.
type Plane struct {
	Normal   r3.Vector
	Distance float64
}

// NewPlane returns the plane with the given normal that goes through point.
// The normal is normalized.
func NewPlane(normal, point r3.Vector) Plane {
	n := normal.Normalize()
	return Plane{
		Normal:   n,
		Distance: -n.Dot(point),
	}
}

func (p Plane) SignedDistance(point r3.Vector) float64 {
	return p.Normal.Dot(point) + p.Distance
}

// Side is the position of a volume relative to a plane.
type Side int

const (
	Outside Side = iota - 1
	Intersecting
	Inside
)

func (s Side) String() string {
	switch s {
	case Outside:
		return "outside"
	case Inside:
		return "inside"
	default:
		return "intersecting"
	}
}

type Ray struct {
	From r3.Vector
	To   r3.Vector
}

// IntersectPlane returns whether the ray segment crosses the plane and the
// parametric position of the hit along the segment.
func (r Ray) IntersectPlane(p Plane) (bool, float64) {
	dir := r.To.Sub(r.From)

	denominator := p.Normal.Dot(dir)
	if EqualWithEpsilon(denominator, 0, Epsilon) {
		return false, -1
	}

	t := -p.SignedDistance(r.From) / denominator
	if t < 0 || t > 1 {
		return false, -1
	}
	return true, t
}
