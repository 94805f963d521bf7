package potree

import (
	"encoding/binary"
	"net/url"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
)

const (
	// The name of the root node of every octree.
	RootName = "r"

	hierarchyRecordSize = 5
)

// Cloud is the cloud.js description of a Potree 1.x point cloud.
type Cloud struct {
	Version           string       `json:"version"`
	OctreeDir         string       `json:"octreeDir"`
	Points            int64        `json:"points"`
	BoundingBox       BoundingBox  `json:"boundingBox"`
	TightBoundingBox  *BoundingBox `json:"tightBoundingBox,omitempty"`
	PointAttributes   any          `json:"pointAttributes"`
	Spacing           float64      `json:"spacing"`
	Scale             float64      `json:"scale"`
	HierarchyStepSize int          `json:"hierarchyStepSize"`

	BaseURL *url.URL `json:"-"`
}

type BoundingBox struct {
	LX float64 `json:"lx"`
	LY float64 `json:"ly"`
	LZ float64 `json:"lz"`
	UX float64 `json:"ux"`
	UY float64 `json:"uy"`
	UZ float64 `json:"uz"`
}

func (b BoundingBox) Min() r3.Vector {
	return r3.Vector{X: b.LX, Y: b.LY, Z: b.LZ}
}

func (b BoundingBox) Max() r3.Vector {
	return r3.Vector{X: b.UX, Y: b.UY, Z: b.UZ}
}

// DecodeCloud parses a cloud.js file and records the location it was loaded
// from.
func DecodeCloud(data []byte, location string) (*Cloud, error) {
	var c Cloud
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.New("decoding cloud failed").
			WithTag("url", location).
			Wrap(err)
	}

	if c.HierarchyStepSize <= 0 {
		return nil, errors.New("invalid hierarchy step size").
			WithTag("url", location).
			WithTag("hierarchy_step_size", c.HierarchyStepSize)
	}

	if c.Spacing <= 0 {
		return nil, errors.New("invalid spacing").
			WithTag("url", location).
			WithTag("spacing", c.Spacing)
	}

	base, err := url.Parse(location)
	if err != nil {
		return nil, errors.New("parsing cloud url failed").
			WithTag("url", location).
			Wrap(err)
	}
	c.BaseURL = base
	return &c, nil
}

// HierarchyPath returns the directory holding the files of a node, relative
// to the octree directory. Node names are split in chunks of
// HierarchyStepSize levels.
func (c *Cloud) HierarchyPath(name string) string {
	indices := strings.TrimPrefix(name, RootName)
	step := c.HierarchyStepSize

	parts := []string{RootName}
	for i := 0; i+step <= len(indices); i += step {
		parts = append(parts, indices[i:i+step])
	}
	return strings.Join(parts, "/")
}

// HierarchyURL returns the location of the hierarchy chunk rooted at a node.
func (c *Cloud) HierarchyURL(name string) string {
	return c.resolve(c.HierarchyPath(name) + "/" + name + ".hrc")
}

// NodeURL returns the location of the points of a node.
func (c *Cloud) NodeURL(name string) string {
	return c.resolve(c.HierarchyPath(name) + "/" + name + ".bin")
}

func (c *Cloud) resolve(path string) string {
	ref := &url.URL{Path: strings.TrimSuffix(c.OctreeDir, "/") + "/" + path}
	if c.BaseURL == nil {
		return ref.String()
	}
	return c.BaseURL.ResolveReference(ref).String()
}

// HierarchyEntry describes a node of the octree.
type HierarchyEntry struct {
	Name       string
	ChildMask  uint8
	PointCount uint32
}

// HasChild reports whether the child at the given octant exists.
func (e HierarchyEntry) HasChild(octant int) bool {
	return e.ChildMask&(1<<octant) != 0
}

// ParseHierarchy decodes a .hrc hierarchy chunk. Records are stored breadth
// first starting with the chunk root, each made of a child mask byte and a
// little endian point count.
func ParseHierarchy(rootName string, data []byte) ([]HierarchyEntry, error) {
	if len(data)%hierarchyRecordSize != 0 {
		return nil, errors.New("truncated hierarchy").
			WithTag("node", rootName).
			WithTag("size", len(data))
	}

	entries := make([]HierarchyEntry, 0, len(data)/hierarchyRecordSize)
	queue := []string{rootName}

	for offset := 0; offset < len(data); offset += hierarchyRecordSize {
		if len(queue) == 0 {
			return nil, errors.New("hierarchy has more records than nodes").
				WithTag("node", rootName).
				WithTag("offset", offset)
		}

		name := queue[0]
		queue = queue[1:]

		e := HierarchyEntry{
			Name:       name,
			ChildMask:  data[offset],
			PointCount: binary.LittleEndian.Uint32(data[offset+1 : offset+hierarchyRecordSize]),
		}
		entries = append(entries, e)

		for octant := 0; octant < 8; octant++ {
			if e.HasChild(octant) {
				queue = append(queue, name+strconv.Itoa(octant))
			}
		}
	}
	return entries, nil
}
