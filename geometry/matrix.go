package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Matrix4 is a 4x4 affine transform stored in column-major order, the layout
// used by tileset transforms.
type Matrix4 [16]float64

func Identity() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translation returns a matrix translating by v.
func Translation(v r3.Vector) Matrix4 {
	m := Identity()
	m[12] = v.X
	m[13] = v.Y
	m[14] = v.Z
	return m
}

// Scale returns a matrix scaling each axis by the components of v.
func Scale(v r3.Vector) Matrix4 {
	m := Identity()
	m[0] = v.X
	m[5] = v.Y
	m[10] = v.Z
	return m
}

func (m Matrix4) at(row, col int) float64 {
	return m[col*4+row]
}

// Mul returns m * o.
func (m Matrix4) Mul(o Matrix4) Matrix4 {
	var res Matrix4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m.at(row, k) * o.at(k, col)
			}
			res[col*4+row] = sum
		}
	}
	return res
}

func (m Matrix4) IsIdentity() bool {
	return m == Identity()
}

// TransformPoint applies the full affine transform to p.
func (m Matrix4) TransformPoint(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0]*p.X + m[4]*p.Y + m[8]*p.Z + m[12],
		Y: m[1]*p.X + m[5]*p.Y + m[9]*p.Z + m[13],
		Z: m[2]*p.X + m[6]*p.Y + m[10]*p.Z + m[14],
	}
}

// TransformDirection applies the linear part of the transform to d.
func (m Matrix4) TransformDirection(d r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0]*d.X + m[4]*d.Y + m[8]*d.Z,
		Y: m[1]*d.X + m[5]*d.Y + m[9]*d.Z,
		Z: m[2]*d.X + m[6]*d.Y + m[10]*d.Z,
	}
}

// MaxScale returns the largest scale factor of the linear part, used to
// scale radii and geometric errors.
func (m Matrix4) MaxScale() float64 {
	sx := r3.Vector{X: m[0], Y: m[1], Z: m[2]}.Norm()
	sy := r3.Vector{X: m[4], Y: m[5], Z: m[6]}.Norm()
	sz := r3.Vector{X: m[8], Y: m[9], Z: m[10]}.Norm()
	return math.Max(sx, math.Max(sy, sz))
}
