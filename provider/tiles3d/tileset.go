package tiles3d

import (
	"net/url"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/geometry"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
)

const (
	RefineAdd     = "ADD"
	RefineReplace = "REPLACE"
)

// Tileset is a 3D Tiles tileset description.
type Tileset struct {
	Asset          Asset   `json:"asset"`
	GeometricError float64 `json:"geometricError"`
	Root           Tile    `json:"root"`

	// The location the tileset was loaded from. Content URIs are resolved
	// against it.
	BaseURL *url.URL `json:"-"`
}

type Asset struct {
	Version        string `json:"version"`
	TilesetVersion string `json:"tilesetVersion,omitempty"`
}

type Tile struct {
	BoundingVolume      BoundingVolume  `json:"boundingVolume"`
	ViewerRequestVolume *BoundingVolume `json:"viewerRequestVolume,omitempty"`
	GeometricError      float64         `json:"geometricError"`
	Refine              string          `json:"refine,omitempty"`
	Transform           []float64       `json:"transform,omitempty"`
	Content             *Content        `json:"content,omitempty"`
	Children            []Tile          `json:"children,omitempty"`
}

type Content struct {
	URI string `json:"uri,omitempty"`

	// Pre 1.0 tilesets name the content location url.
	URL string `json:"url,omitempty"`
}

// Location returns the content URI.
func (c *Content) Location() string {
	if c == nil {
		return ""
	}
	if c.URI != "" {
		return c.URI
	}
	return c.URL
}

// BoundingVolume holds exactly one of a box, a region or a sphere.
type BoundingVolume struct {
	Box    []float64 `json:"box,omitempty"`
	Region []float64 `json:"region,omitempty"`
	Sphere []float64 `json:"sphere,omitempty"`
}

// Volume converts the bounding volume into a geometry volume. Boxes and
// spheres are moved by the given transform. Regions are already expressed in
// earth-fixed coordinates and ignore it.
func (b BoundingVolume) Volume(transform geometry.Matrix4) (geometry.Volume, error) {
	switch {
	case len(b.Box) == 12:
		v := b.Box
		box := geometry.Box{
			Origin: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
			HalfAxes: [3]r3.Vector{
				{X: v[3], Y: v[4], Z: v[5]},
				{X: v[6], Y: v[7], Z: v[8]},
				{X: v[9], Y: v[10], Z: v[11]},
			},
		}
		return box.Transform(transform), nil

	case len(b.Sphere) == 4:
		v := b.Sphere
		sphere := geometry.Sphere{
			Origin: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
			R:      v[3],
		}
		return sphere.Transform(transform), nil

	case len(b.Region) == 6:
		v := b.Region
		return geometry.NewRegion(geometry.WGS84, v[0], v[1], v[2], v[3], v[4], v[5]), nil

	default:
		return nil, errors.New("invalid bounding volume").
			WithTag("box_len", len(b.Box)).
			WithTag("region_len", len(b.Region)).
			WithTag("sphere_len", len(b.Sphere))
	}
}

// Matrix returns the tile transform. Tiles without transform return the
// identity.
func (t Tile) Matrix() (geometry.Matrix4, error) {
	if len(t.Transform) == 0 {
		return geometry.Identity(), nil
	}

	if len(t.Transform) != 16 {
		return geometry.Matrix4{}, errors.New("invalid tile transform").
			WithTag("len", len(t.Transform))
	}

	var m geometry.Matrix4
	copy(m[:], t.Transform)
	return m, nil
}

// Resolve returns the absolute location of a content URI.
func (ts *Tileset) Resolve(uri string) (string, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return "", errors.New("parsing content uri failed").
			WithTag("uri", uri).
			Wrap(err)
	}

	if ts.BaseURL == nil {
		return ref.String(), nil
	}
	return ts.BaseURL.ResolveReference(ref).String(), nil
}

// IsTilesetURL reports whether a content location points to an external
// tileset.
func IsTilesetURL(location string) bool {
	if u, err := url.Parse(location); err == nil {
		location = u.Path
	}
	return strings.HasSuffix(strings.ToLower(location), ".json")
}

// Decode parses a tileset and records the location it was loaded from.
func Decode(data []byte, location string) (*Tileset, error) {
	var ts Tileset
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, errors.New("decoding tileset failed").
			WithTag("url", location).
			Wrap(err)
	}

	if ts.Asset.Version == "" {
		return nil, errors.New("tileset asset version missing").
			WithTag("url", location)
	}

	base, err := url.Parse(location)
	if err != nil {
		return nil, errors.New("parsing tileset url failed").
			WithTag("url", location).
			Wrap(err)
	}
	ts.BaseURL = base
	return &ts, nil
}
