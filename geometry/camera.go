package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Frustum is a convex volume bounded by six planes whose normals point inward.
type Frustum struct {
	Planes [6]Plane
}

// Intersects reports whether the volume is at least partially inside the
// frustum.
func (f Frustum) Intersects(v Volume) bool {
	for _, p := range f.Planes {
		if v.IntersectPlane(p) == Outside {
			return false
		}
	}
	return true
}

// Camera is a perspective camera. Angles are in radians, viewport dimensions
// in pixels.
type Camera struct {
	Position  r3.Vector `json:"position"`
	Direction r3.Vector `json:"direction"`
	Up        r3.Vector `json:"up"`
	FovY      float64   `json:"fov_y"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Near      float64   `json:"near"`
	Far       float64   `json:"far"`
}

func (c Camera) AspectRatio() float64 {
	if c.Height == 0 {
		return 1
	}
	return float64(c.Width) / float64(c.Height)
}

// PreSSE is the factor converting a geometric error seen at a distance of one
// meter into pixels.
func (c Camera) PreSSE() float64 {
	return float64(c.Height) / (2 * math.Tan(c.FovY/2))
}

// Frustum returns the world-space view frustum of the camera.
func (c Camera) Frustum() Frustum {
	dir := c.Direction.Normalize()
	right := dir.Cross(c.Up).Normalize()
	up := right.Cross(dir)

	tanY := math.Tan(c.FovY / 2)
	tanX := tanY * c.AspectRatio()

	return Frustum{
		Planes: [6]Plane{
			NewPlane(dir, c.Position.Add(dir.Mul(c.Near))),
			NewPlane(dir.Mul(-1), c.Position.Add(dir.Mul(c.Far))),
			NewPlane(right.Add(dir.Mul(tanX)), c.Position),
			NewPlane(right.Mul(-1).Add(dir.Mul(tanX)), c.Position),
			NewPlane(up.Add(dir.Mul(tanY)), c.Position),
			NewPlane(up.Mul(-1).Add(dir.Mul(tanY)), c.Position),
		},
	}
}

// Valid reports whether the camera describes a usable projection.
func (c Camera) Valid() bool {
	return c.Width > 0 &&
		c.Height > 0 &&
		c.FovY > 0 && c.FovY < math.Pi &&
		c.Near > 0 && c.Far > c.Near &&
		c.Direction.Norm2() > 0 &&
		c.Direction.Cross(c.Up).Norm2() > 0
}
