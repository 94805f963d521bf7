package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Volume is the spatial extent of a node.
type Volume interface {
	// Returns the center of the volume.
	Center() r3.Vector

	// Returns the radius of the smallest sphere centered on Center that
	// contains the volume.
	Radius() float64

	// Returns the position of the volume relative to the plane.
	IntersectPlane(Plane) Side

	// Returns the volume transformed by m.
	Transform(m Matrix4) Volume

	// Reports whether the point lies inside the volume.
	Contains(p r3.Vector) bool
}

type Sphere struct {
	Origin r3.Vector
	R      float64
}

func (s Sphere) Center() r3.Vector {
	return s.Origin
}

func (s Sphere) Radius() float64 {
	return s.R
}

func (s Sphere) IntersectPlane(p Plane) Side {
	d := p.SignedDistance(s.Origin)
	switch {
	case d < -s.R:
		return Outside
	case d > s.R:
		return Inside
	default:
		return Intersecting
	}
}

func (s Sphere) Transform(m Matrix4) Volume {
	return Sphere{
		Origin: m.TransformPoint(s.Origin),
		R:      s.R * m.MaxScale(),
	}
}

func (s Sphere) Contains(p r3.Vector) bool {
	return p.Distance(s.Origin) <= s.R
}

// Box is an oriented bounding box described by its center and three half
// axes. Each half axis points from the center to a face and its length is the
// half extent along that direction.
type Box struct {
	Origin   r3.Vector
	HalfAxes [3]r3.Vector
}

// NewAlignedBox returns an axis aligned box spanning min to max.
func NewAlignedBox(min, max r3.Vector) Box {
	half := max.Sub(min).Mul(0.5)
	return Box{
		Origin: min.Add(half),
		HalfAxes: [3]r3.Vector{
			{X: half.X},
			{Y: half.Y},
			{Z: half.Z},
		},
	}
}

func (b Box) Center() r3.Vector {
	return b.Origin
}

func (b Box) Radius() float64 {
	return b.HalfAxes[0].Add(b.HalfAxes[1]).Add(b.HalfAxes[2]).Norm()
}

// IntersectPlane projects the box onto the plane normal: the projected radius
// is the sum of the absolute projections of each half axis.
func (b Box) IntersectPlane(p Plane) Side {
	r := math.Abs(p.Normal.Dot(b.HalfAxes[0])) +
		math.Abs(p.Normal.Dot(b.HalfAxes[1])) +
		math.Abs(p.Normal.Dot(b.HalfAxes[2]))

	d := p.SignedDistance(b.Origin)
	switch {
	case d < -r:
		return Outside
	case d > r:
		return Inside
	default:
		return Intersecting
	}
}

func (b Box) Transform(m Matrix4) Volume {
	return Box{
		Origin: m.TransformPoint(b.Origin),
		HalfAxes: [3]r3.Vector{
			m.TransformDirection(b.HalfAxes[0]),
			m.TransformDirection(b.HalfAxes[1]),
			m.TransformDirection(b.HalfAxes[2]),
		},
	}
}

func (b Box) Contains(p r3.Vector) bool {
	v := p.Sub(b.Origin)
	for _, axis := range b.HalfAxes {
		lengthSquared := axis.Norm2()
		if lengthSquared == 0 {
			continue
		}
		if math.Abs(v.Dot(axis)) > lengthSquared*(1+1e-9)+Epsilon {
			return false
		}
	}
	return true
}

// Region is a geographic extent in radians with a height range in meters. It
// is converted once into an oriented box used for every visibility test.
type Region struct {
	West, South, East, North float64
	MinHeight, MaxHeight     float64

	ellipsoid Ellipsoid
	box       Box
}

func NewRegion(e Ellipsoid, west, south, east, north, minHeight, maxHeight float64) *Region {
	r := &Region{
		West:      west,
		South:     south,
		East:      east,
		North:     north,
		MinHeight: minHeight,
		MaxHeight: maxHeight,
		ellipsoid: e,
	}
	r.box = r.computeBox()
	return r
}

// Box returns the oriented box enclosing the region.
func (r *Region) Box() Box {
	return r.box
}

func (r *Region) Center() r3.Vector {
	return r.box.Center()
}

func (r *Region) Radius() float64 {
	return r.box.Radius()
}

func (r *Region) IntersectPlane(p Plane) Side {
	return r.box.IntersectPlane(p)
}

func (r *Region) Transform(m Matrix4) Volume {
	return r.box.Transform(m)
}

func (r *Region) Contains(p r3.Vector) bool {
	return r.box.Contains(p)
}

// TopCorners returns the four corners of the region at its maximum height.
func (r *Region) TopCorners() [4]r3.Vector {
	e := r.ellipsoid
	return [4]r3.Vector{
		e.CartographicToCartesian(r.West, r.South, r.MaxHeight),
		e.CartographicToCartesian(r.East, r.South, r.MaxHeight),
		e.CartographicToCartesian(r.East, r.North, r.MaxHeight),
		e.CartographicToCartesian(r.West, r.North, r.MaxHeight),
	}
}

func (r *Region) computeBox() Box {
	e := r.ellipsoid
	lonCenter := (r.West + r.East) / 2
	latCenter := (r.South + r.North) / 2
	east, north, up := e.EastNorthUp(lonCenter, latCenter)

	// The region surface bulges between its corners: sample a grid on both
	// height bounds and fit the box in the local frame of the region center.
	const samples = 4
	min := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	origin := e.CartographicToCartesian(lonCenter, latCenter, 0)

	for _, h := range []float64{r.MinHeight, r.MaxHeight} {
		for i := 0; i <= samples; i++ {
			lon := r.West + (r.East-r.West)*float64(i)/samples
			for j := 0; j <= samples; j++ {
				lat := r.South + (r.North-r.South)*float64(j)/samples
				v := e.CartographicToCartesian(lon, lat, h).Sub(origin)
				local := r3.Vector{X: v.Dot(east), Y: v.Dot(north), Z: v.Dot(up)}
				min = r3.Vector{X: math.Min(min.X, local.X), Y: math.Min(min.Y, local.Y), Z: math.Min(min.Z, local.Z)}
				max = r3.Vector{X: math.Max(max.X, local.X), Y: math.Max(max.Y, local.Y), Z: math.Max(max.Z, local.Z)}
			}
		}
	}

	localCenter := min.Add(max).Mul(0.5)
	half := max.Sub(min).Mul(0.5)
	center := origin.
		Add(east.Mul(localCenter.X)).
		Add(north.Mul(localCenter.Y)).
		Add(up.Mul(localCenter.Z))

	return Box{
		Origin: center,
		HalfAxes: [3]r3.Vector{
			east.Mul(half.X),
			north.Mul(half.Y),
			up.Mul(half.Z),
		},
	}
}
