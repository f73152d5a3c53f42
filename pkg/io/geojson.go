package io

import (
	"github.com/twpayne/go-geom"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cellid"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// GeoJSON type names.
const (
	TypeFeatureCollection = "FeatureCollection"
	TypeFeature           = "Feature"
	TypePolygon           = "Polygon"

	// ObjectTypeCell is the QuPath object type of every feature.
	ObjectTypeCell = "cell"
)

// Point is an [x, y] position.
type Point [2]float64

// Polygon is a GeoJSON Polygon geometry.
type Polygon struct {
	Type        string    `json:"type"`
	Coordinates [][]Point `json:"coordinates"`
}

// Properties are the per-cell properties.
type Properties struct {
	CellID     uint32 `json:"cell_id"`
	ObjectType string `json:"objectType"`
	Name       string `json:"name"`
}

// Feature is the document form of one cell.
type Feature struct {
	Type            string     `json:"type"`
	ID              string     `json:"id"`
	Geometry        Polygon    `json:"geometry"`
	NucleusGeometry Polygon    `json:"nucleusGeometry"`
	Properties      Properties `json:"properties"`
}

// FeatureCollection is the document form of a collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeature converts a cell feature to its document form.
func NewFeature(f *cells.Feature) Feature {
	return Feature{
		Type:            TypeFeature,
		ID:              f.UID,
		Geometry:        newPolygon(f.Boundary),
		NucleusGeometry: newPolygon(f.Nucleus),
		Properties: Properties{
			CellID:     f.CellID,
			ObjectType: ObjectTypeCell,
			Name:       f.Name,
		},
	}
}

// NewFeatureCollection converts a collection to its document form.
func NewFeatureCollection(c *cells.Collection) *FeatureCollection {
	fc := &FeatureCollection{
		Type:     TypeFeatureCollection,
		Features: make([]Feature, len(c.Features)),
	}
	for i, f := range c.Features {
		fc.Features[i] = NewFeature(f)
	}
	return fc
}

func newPolygon(p *geom.Polygon) Polygon {
	rings := make([][]Point, p.NumLinearRings())
	for i := range rings {
		flat := p.LinearRing(i).FlatCoords()
		ring := make([]Point, len(flat)/2)
		for j := range ring {
			ring[j] = Point{flat[2*j], flat[2*j+1]}
		}
		rings[i] = ring
	}
	return Polygon{Type: TypePolygon, Coordinates: rings}
}

// Cell converts a document feature back to a cell feature. The minor id is
// recovered from the display name.
func (f Feature) Cell() (*cells.Feature, error) {
	if f.Type != TypeFeature {
		return nil, apperrors.New(apperrors.ErrCodeInvalidFormat, "feature %s: type %q, want %q", f.ID, f.Type, TypeFeature)
	}
	id, minor, err := cellid.ParseDisplayName(f.Properties.Name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidFormat, err, "feature %s: name", f.ID)
	}
	if id != f.Properties.CellID {
		return nil, apperrors.New(apperrors.ErrCodeInvalidFormat,
			"feature %s: name %s does not match cell_id %d", f.ID, f.Properties.Name, f.Properties.CellID)
	}
	boundary, err := f.Geometry.polygon()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidFormat, err, "feature %s: geometry", f.ID)
	}
	nucleus, err := f.NucleusGeometry.polygon()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidFormat, err, "feature %s: nucleusGeometry", f.ID)
	}
	return &cells.Feature{
		UID:      f.ID,
		CellID:   id,
		Minor:    minor,
		Name:     f.Properties.Name,
		Nucleus:  nucleus,
		Boundary: boundary,
	}, nil
}

func (p Polygon) polygon() (*geom.Polygon, error) {
	out := geom.NewPolygon(geom.XY)
	// An absent geometry slot reads as an empty polygon.
	if p.Type == "" && len(p.Coordinates) == 0 {
		return out, nil
	}
	if p.Type != TypePolygon {
		return nil, apperrors.New(apperrors.ErrCodeInvalidFormat, "type %q, want %q", p.Type, TypePolygon)
	}
	for i, ring := range p.Coordinates {
		if len(ring) == 0 {
			return nil, apperrors.New(apperrors.ErrCodeEmptyPolygon, "ring %d has no points", i)
		}
		flat := make([]float64, 0, 2*len(ring))
		for _, pt := range ring {
			flat = append(flat, pt[0], pt[1])
		}
		if err := out.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Collection converts the document back to a cell collection. Duplicate
// cell ids are rejected.
func (fc *FeatureCollection) Collection() (*cells.Collection, error) {
	if fc.Type != TypeFeatureCollection {
		return nil, apperrors.New(apperrors.ErrCodeInvalidFormat, "type %q, want %q", fc.Type, TypeFeatureCollection)
	}
	features := make([]*cells.Feature, len(fc.Features))
	seen := make(map[uint32]bool, len(fc.Features))
	for i, f := range fc.Features {
		cf, err := f.Cell()
		if err != nil {
			return nil, err
		}
		if seen[cf.CellID] {
			return nil, apperrors.New(apperrors.ErrCodeInvalidFormat, "feature %s: duplicate cell_id %d", f.ID, cf.CellID)
		}
		seen[cf.CellID] = true
		features[i] = cf
	}
	c := cells.NewCollection(features)
	c.Stats.Merged = c.Len()
	return c, nil
}
