// Package index answers spatial and identity queries over a converted
// collection.
//
// Features are stored in an R-tree keyed by the bounding box of both their
// polygons, so a viewport query touches only nearby cells. Identity lookups
// accept either the numeric cell id or the display name.
package index

import (
	"slices"
	"strconv"
	"strings"

	"github.com/dhconnelly/rtreego"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cellid"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// R-tree branching factors.
const (
	minChildren = 25
	maxChildren = 50
)

// epsilon is the smallest side of an indexed rectangle. The R-tree rejects
// zero-length sides, which single-point rings and axis-aligned segments
// would otherwise produce.
const epsilon = 1e-9

// Box is an axis-aligned rectangle in output coordinates.
type Box struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// ParseBox parses "minx,miny,maxx,maxy".
func ParseBox(s string) (Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Box{}, apperrors.New(apperrors.ErrCodeInvalidInput, "bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Box{}, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "bbox %q", s)
		}
		v[i] = f
	}
	b := Box{v[0], v[1], v[2], v[3]}
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return Box{}, apperrors.New(apperrors.ErrCodeInvalidInput, "bbox %q: min exceeds max", s)
	}
	return b, nil
}

func (b Box) rect() rtreego.Rect {
	point := rtreego.Point{b.MinX, b.MinY}
	lengths := []float64{max(b.MaxX-b.MinX, epsilon), max(b.MaxY-b.MinY, epsilon)}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// entry wraps a feature for R-tree storage.
type entry struct {
	pos int
	box Box
}

// Bounds implements rtreego.Spatial.
func (e *entry) Bounds() rtreego.Rect { return e.box.rect() }

// Index is a read-only view over one collection. It is safe for
// concurrent queries.
type Index struct {
	coll   *cells.Collection
	tree   *rtreego.Rtree
	byName map[string]int
	bounds Box
}

// New indexes every feature of c. Features without rings are reachable by
// id and name but never returned by [Index.Query].
func New(c *cells.Collection) *Index {
	idx := &Index{coll: c, byName: make(map[string]int, c.Len())}
	var objs []rtreego.Spatial
	for i, f := range c.Features {
		idx.byName[f.Name] = i
		b := f.Bounds()
		if b.IsEmpty() {
			continue
		}
		box := Box{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}
		if len(objs) == 0 {
			idx.bounds = box
		} else {
			idx.bounds = idx.bounds.union(box)
		}
		objs = append(objs, &entry{pos: i, box: box})
	}
	idx.tree = rtreego.NewTree(2, minChildren, maxChildren, objs...)
	return idx
}

func (b Box) union(o Box) Box {
	return Box{min(b.MinX, o.MinX), min(b.MinY, o.MinY), max(b.MaxX, o.MaxX), max(b.MaxY, o.MaxY)}
}

// Len returns the number of features, indexed or not.
func (idx *Index) Len() int { return idx.coll.Len() }

// Collection returns the indexed collection.
func (idx *Index) Collection() *cells.Collection { return idx.coll }

// Bounds returns the extent of every indexed feature.
func (idx *Index) Bounds() Box { return idx.bounds }

// Query returns the features whose bounding box intersects b, in
// collection order.
func (idx *Index) Query(b Box) []*cells.Feature {
	hits := idx.tree.SearchIntersect(b.rect())
	pos := make([]int, len(hits))
	for i, h := range hits {
		pos[i] = h.(*entry).pos
	}
	slices.Sort(pos)

	out := make([]*cells.Feature, len(pos))
	for i, p := range pos {
		out[i] = idx.coll.Features[p]
	}
	return out
}

// Lookup returns the feature for a numeric cell id.
func (idx *Index) Lookup(id uint32) (*cells.Feature, error) {
	f, ok := idx.coll.ByCellID(id)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeNotFound, "cell %d not found", id)
	}
	return f, nil
}

// LookupName returns the feature for a display name such as "aaaaaaab-1".
func (idx *Index) LookupName(name string) (*cells.Feature, error) {
	if _, _, err := cellid.ParseDisplayName(name); err != nil {
		return nil, err
	}
	i, ok := idx.byName[name]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeNotFound, "cell %s not found", name)
	}
	return idx.coll.Features[i], nil
}

// Get resolves key as a numeric cell id when it parses as one, and as a
// display name otherwise.
func (idx *Index) Get(key string) (*cells.Feature, error) {
	if id, err := strconv.ParseUint(key, 10, 32); err == nil {
		return idx.Lookup(uint32(id))
	}
	return idx.LookupName(key)
}
