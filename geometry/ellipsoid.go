package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

type Ellipsoid struct {
	Radii r3.Vector
}

var WGS84 = Ellipsoid{
	Radii: r3.Vector{X: 6378137.0, Y: 6378137.0, Z: 6356752.3142451793},
}

func (e Ellipsoid) MaximumRadius() float64 {
	return math.Max(e.Radii.X, math.Max(e.Radii.Y, e.Radii.Z))
}

// GeodeticSurfaceNormal returns the surface normal at the given longitude and
// latitude, in radians.
func (e Ellipsoid) GeodeticSurfaceNormal(lon, lat float64) r3.Vector {
	cosLat := math.Cos(lat)
	return r3.Vector{
		X: cosLat * math.Cos(lon),
		Y: cosLat * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

// CartographicToCartesian converts a longitude, latitude (radians) and height
// above the ellipsoid (meters) into earth-centered earth-fixed coordinates.
func (e Ellipsoid) CartographicToCartesian(lon, lat, height float64) r3.Vector {
	n := e.GeodeticSurfaceNormal(lon, lat)
	k := MulComponents(MulComponents(e.Radii, e.Radii), n)
	gamma := math.Sqrt(n.Dot(k))
	return k.Mul(1 / gamma).Add(n.Mul(height))
}

// ScaleToUnitSphere maps a cartesian position into the space where the
// ellipsoid is the unit sphere.
func (e Ellipsoid) ScaleToUnitSphere(p r3.Vector) r3.Vector {
	return DivComponents(p, e.Radii)
}

// EastNorthUp returns the local east, north and up axes at the given
// longitude and latitude.
func (e Ellipsoid) EastNorthUp(lon, lat float64) (east, north, up r3.Vector) {
	up = e.GeodeticSurfaceNormal(lon, lat)
	east = r3.Vector{X: -math.Sin(lon), Y: math.Cos(lon)}
	north = up.Cross(east)
	return east, north, up
}

// IsOccludedByHorizon reports whether point is hidden behind the ellipsoid
// when seen from the camera position. Both positions are cartesian.
func (e Ellipsoid) IsOccludedByHorizon(camera, point r3.Vector) bool {
	cv := e.ScaleToUnitSphere(camera)
	vhMagnitudeSquared := cv.Norm2() - 1
	if vhMagnitudeSquared < 0 {
		// Camera under the surface.
		return false
	}

	vt := e.ScaleToUnitSphere(point).Sub(cv)
	vtMagnitudeSquared := vt.Norm2()
	if vtMagnitudeSquared == 0 {
		return false
	}

	vtDotVc := -vt.Dot(cv)
	return vtDotVc > vhMagnitudeSquared &&
		vtDotVc*vtDotVc/vtMagnitudeSquared > vhMagnitudeSquared
}
