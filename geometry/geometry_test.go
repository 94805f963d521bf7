package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func testCamera() Camera {
	return Camera{
		Position:  r3.Vector{},
		Direction: r3.Vector{Z: -1},
		Up:        r3.Vector{Y: 1},
		FovY:      math.Pi / 2,
		Width:     800,
		Height:    600,
		Near:      1,
		Far:       1000,
	}
}

func TestEqualWithEpsilon(t *testing.T) {
	require.True(t, EqualWithEpsilon(0.1, 0.2, 0.11))
	require.False(t, EqualWithEpsilon(0.1, 0.3, 0.11))
	require.True(t, InRangeWithEpsilon(1.00001, 0, 1, 0.001))
}

func TestRayIntersectPlane(t *testing.T) {
	ray := Ray{
		From: r3.Vector{Y: 10},
		To:   r3.Vector{Y: -10},
	}

	hit, at := ray.IntersectPlane(NewPlane(r3.Vector{Y: 1}, r3.Vector{}))
	require.True(t, hit)
	require.InDelta(t, 0.5, at, 1e-9)

	hit, _ = ray.IntersectPlane(NewPlane(r3.Vector{X: 1}, r3.Vector{X: 5}))
	require.False(t, hit)
}

func TestMatrix(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		p := r3.Vector{X: 1, Y: 2, Z: 3}
		require.Equal(t, p, Identity().TransformPoint(p))
		require.True(t, Identity().IsIdentity())
	})

	t.Run("translation then scale", func(t *testing.T) {
		m := Translation(r3.Vector{X: 10}).Mul(Scale(r3.Vector{X: 2, Y: 2, Z: 2}))
		p := m.TransformPoint(r3.Vector{X: 1, Y: 1, Z: 1})
		require.True(t, VectorEqualWithEpsilon(r3.Vector{X: 12, Y: 2, Z: 2}, p, 1e-9))
		require.Equal(t, 2.0, m.MaxScale())

		d := m.TransformDirection(r3.Vector{X: 1})
		require.True(t, VectorEqualWithEpsilon(r3.Vector{X: 2}, d, 1e-9))
	})
}

func TestSphere(t *testing.T) {
	s := Sphere{Origin: r3.Vector{X: 5}, R: 1}
	p := NewPlane(r3.Vector{X: 1}, r3.Vector{})

	require.Equal(t, Inside, s.IntersectPlane(p))
	require.Equal(t, Outside, Sphere{Origin: r3.Vector{X: -5}, R: 1}.IntersectPlane(p))
	require.Equal(t, Intersecting, Sphere{Origin: r3.Vector{X: 0.5}, R: 1}.IntersectPlane(p))
	require.True(t, s.Contains(r3.Vector{X: 5.5}))

	transformed := s.Transform(Scale(r3.Vector{X: 3, Y: 3, Z: 3}))
	require.Equal(t, 3.0, transformed.Radius())
	require.True(t, VectorEqualWithEpsilon(r3.Vector{X: 15}, transformed.Center(), 1e-9))
}

func TestBox(t *testing.T) {
	b := NewAlignedBox(r3.Vector{X: -1, Y: -1, Z: -1}, r3.Vector{X: 1, Y: 1, Z: 1})

	require.InDelta(t, math.Sqrt(3), b.Radius(), 1e-9)
	require.True(t, b.Contains(r3.Vector{X: 0.9, Y: -0.9}))
	require.False(t, b.Contains(r3.Vector{X: 1.1}))

	t.Run("projected radius on a diagonal plane", func(t *testing.T) {
		normal := r3.Vector{X: 1, Y: 1}.Normalize()
		p := NewPlane(normal, normal.Mul(1.2))
		require.Equal(t, Intersecting, b.IntersectPlane(p))

		p = NewPlane(normal, normal.Mul(1.5))
		require.Equal(t, Outside, b.IntersectPlane(p))

		p = NewPlane(normal, normal.Mul(-1.5))
		require.Equal(t, Inside, b.IntersectPlane(p))

		p = NewPlane(normal, normal.Mul(1.5))
		require.Equal(t, Outside, Box{
			Origin:   r3.Vector{X: -1, Y: -1},
			HalfAxes: b.HalfAxes,
		}.IntersectPlane(p))
	})
}

func TestCameraFrustum(t *testing.T) {
	c := testCamera()
	require.True(t, c.Valid())
	require.InDelta(t, 300, c.PreSSE(), 1e-9)

	f := c.Frustum()

	tests := []struct {
		name    string
		volume  Volume
		visible bool
	}{
		{
			name:    "in front",
			volume:  Sphere{Origin: r3.Vector{Z: -10}, R: 1},
			visible: true,
		},
		{
			name:    "behind",
			volume:  Sphere{Origin: r3.Vector{Z: 10}, R: 1},
			visible: false,
		},
		{
			name:    "beyond far plane",
			volume:  Sphere{Origin: r3.Vector{Z: -2000}, R: 1},
			visible: false,
		},
		{
			name:    "left of the view",
			volume:  Sphere{Origin: r3.Vector{X: -100, Z: -10}, R: 1},
			visible: false,
		},
		{
			name:    "box crossing the left plane",
			volume:  NewAlignedBox(r3.Vector{X: -30, Y: -1, Z: -12}, r3.Vector{X: -10, Y: 1, Z: -10}),
			visible: true,
		},
		{
			name:    "above the view",
			volume:  NewAlignedBox(r3.Vector{X: -1, Y: 50, Z: -11}, r3.Vector{X: 1, Y: 52, Z: -10}),
			visible: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.visible, f.Intersects(test.volume))
		})
	}
}

func TestEllipsoid(t *testing.T) {
	t.Run("cartographic to cartesian", func(t *testing.T) {
		p := WGS84.CartographicToCartesian(0, 0, 0)
		require.True(t, VectorEqualWithEpsilon(r3.Vector{X: WGS84.Radii.X}, p, 1e-6))

		p = WGS84.CartographicToCartesian(0, math.Pi/2, 100)
		require.True(t, VectorEqualWithEpsilon(r3.Vector{Z: WGS84.Radii.Z + 100}, p, 1e-6))
	})

	t.Run("horizon", func(t *testing.T) {
		camera := WGS84.CartographicToCartesian(0, 0, 1000)

		near := WGS84.CartographicToCartesian(0.0001, 0, 0)
		require.False(t, WGS84.IsOccludedByHorizon(camera, near))

		antipode := WGS84.CartographicToCartesian(math.Pi, 0, 0)
		require.True(t, WGS84.IsOccludedByHorizon(camera, antipode))

		inside := r3.Vector{X: 10}
		require.False(t, WGS84.IsOccludedByHorizon(inside, antipode))
	})
}

func TestRegion(t *testing.T) {
	r := NewRegion(WGS84, -0.01, -0.01, 0.01, 0.01, 0, 100)

	center := WGS84.CartographicToCartesian(0, 0, 50)
	require.True(t, r.Contains(center))
	require.Less(t, r.Center().Distance(center), 1000.0)

	for _, c := range r.TopCorners() {
		require.True(t, r.Contains(c))
	}

	far := WGS84.CartographicToCartesian(1, 1, 0)
	require.False(t, r.Contains(far))
}
