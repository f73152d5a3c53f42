package cells

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cellid"
)

// Role names a polygon set.
type Role int

const (
	// Nucleus is polygon set 0.
	Nucleus Role = iota
	// Boundary is polygon set 1.
	Boundary
)

// Roles lists both polygon sets in merge order.
var Roles = []Role{Nucleus, Boundary}

// String returns "nucleus" or "boundary".
func (r Role) String() string {
	switch r {
	case Nucleus:
		return "nucleus"
	case Boundary:
		return "boundary"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// SetIndex returns the polygon set number of r in the store.
func (r Role) SetIndex() int { return int(r) }

// IdentityRow is one row of the cell_id table.
type IdentityRow struct {
	Major uint32 // numeric cell id
	Minor uint32 // dataset discriminator
}

// RawPolygon is one non-padding row of a polygon set.
type RawPolygon struct {
	Row    int       // row in the polygon set
	CellID uint32    // resolved major id
	Minor  uint32    // resolved minor id
	Coords []float64 // interleaved x,y raw coordinates, 2*pairCount values
}

// UIDFunc generates opaque per-run feature ids.
type UIDFunc func() string

// DefaultUID returns a random (v4) UUID string.
func DefaultUID() string { return uuid.NewString() }

// Feature is the merged geometry of one cell.
//
// Nucleus and Boundary are never nil. A cell seen in only one set has an
// empty polygon in the other slot.
type Feature struct {
	UID      string
	CellID   uint32
	Minor    uint32
	Name     string
	Nucleus  *geom.Polygon
	Boundary *geom.Polygon
}

func newFeature(uid string, id, minor uint32) *Feature {
	return &Feature{
		UID:      uid,
		CellID:   id,
		Minor:    minor,
		Name:     cellid.DisplayName(id, minor),
		Nucleus:  geom.NewPolygon(geom.XY),
		Boundary: geom.NewPolygon(geom.XY),
	}
}

// Rings returns the polygon holding rings of role r.
func (f *Feature) Rings(r Role) *geom.Polygon {
	if r == Nucleus {
		return f.Nucleus
	}
	return f.Boundary
}

// Bounds returns the bounding box of both polygons. It is empty when the
// feature has no rings.
func (f *Feature) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	if f.Nucleus.NumLinearRings() > 0 {
		b.Extend(f.Nucleus)
	}
	if f.Boundary.NumLinearRings() > 0 {
		b.Extend(f.Boundary)
	}
	return b
}

// Collection is the merged output of a conversion. Cell ids are unique
// across Features.
type Collection struct {
	Features []*Feature
	Stats    Stats

	byID map[uint32]int
}

// NewCollection builds a collection from features, dropping later
// duplicates of a cell id.
func NewCollection(features []*Feature) *Collection {
	c := &Collection{byID: make(map[uint32]int, len(features))}
	for _, f := range features {
		c.add(f)
	}
	return c
}

func (c *Collection) add(f *Feature) bool {
	if _, ok := c.byID[f.CellID]; ok {
		return false
	}
	c.byID[f.CellID] = len(c.Features)
	c.Features = append(c.Features, f)
	return true
}

// Len returns the number of features.
func (c *Collection) Len() int { return len(c.Features) }

// ByCellID returns the feature for a cell id.
func (c *Collection) ByCellID(id uint32) (*Feature, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return c.Features[i], true
}

// Stats summarizes a conversion.
type Stats struct {
	Cells  int // rows in the cell_id table
	Sets   [2]SetStats
	Merged int // features in the collection
	Shared int // cells with rings in both sets
}

// SetStats summarizes the assembly of one polygon set.
type SetStats struct {
	Role     Role
	Rows     int // rows in the set, padding included
	Polygons int // rings assembled
	Skipped  int // padding rows with zero pairs
	Features int // distinct cells in the set
}
