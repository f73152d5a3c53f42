package cells

import (
	"io"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/store"
)

// PolygonSet holds the three parallel arrays of one polygon set.
type PolygonSet struct {
	Vertices    *store.Array // [M, K]
	NumVertices *store.Array // [M]
	CellIndex   *store.Array // [M]
}

// Rows returns the number of rows in the set.
func (s PolygonSet) Rows() int { return s.Vertices.Rows() }

// Capacity returns K, the number of scalars allocated per row.
func (s PolygonSet) Capacity() int { return s.Vertices.Cols() }

// ReadIdentities converts the cell_id table into identity rows.
func ReadIdentities(a *store.Array) ([]IdentityRow, error) {
	if len(a.Shape) != 2 || a.Shape[1] < 2 {
		return nil, apperrors.New(apperrors.ErrCodeShapeMismatch, "%s: shape %v, want [N, 2]", a.Name, a.Shape)
	}
	rows := make([]IdentityRow, a.Rows())
	for i := range rows {
		major, err := a.Uint32At(i, 0)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "%s row %d", a.Name, i)
		}
		minor, err := a.Uint32At(i, 1)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "%s row %d", a.Name, i)
		}
		rows[i] = IdentityRow{Major: major, Minor: minor}
	}
	return rows, nil
}

// Decoder yields the polygons of one set in row order.
// It is single-use: once Next returns io.EOF it stays exhausted.
type Decoder struct {
	set     PolygonSet
	ids     []IdentityRow
	row     int
	skipped int
}

// NewDecoder checks that the arrays of set agree on their row count and
// returns a decoder positioned at the first row.
func NewDecoder(set PolygonSet, ids []IdentityRow) (*Decoder, error) {
	if set.Vertices == nil || set.NumVertices == nil || set.CellIndex == nil {
		return nil, apperrors.New(apperrors.ErrCodeMissingDataset, "polygon set is missing an array")
	}
	if len(set.Vertices.Shape) != 2 {
		return nil, apperrors.New(apperrors.ErrCodeShapeMismatch, "%s: shape %v, want [M, K]", set.Vertices.Name, set.Vertices.Shape)
	}
	m := set.Vertices.Rows()
	if set.NumVertices.Rows() != m || set.CellIndex.Rows() != m {
		return nil, apperrors.New(apperrors.ErrCodeShapeMismatch,
			"row counts differ: %s=%d %s=%d %s=%d",
			set.Vertices.Name, m,
			set.NumVertices.Name, set.NumVertices.Rows(),
			set.CellIndex.Name, set.CellIndex.Rows())
	}
	if set.NumVertices.Cols() != 1 || set.CellIndex.Cols() != 1 {
		return nil, apperrors.New(apperrors.ErrCodeShapeMismatch, "%s and %s must be one value per row",
			set.NumVertices.Name, set.CellIndex.Name)
	}
	return &Decoder{set: set, ids: ids}, nil
}

// Next returns the next non-padding polygon, or io.EOF after the last row.
// The returned Coords alias the vertex array.
func (d *Decoder) Next() (RawPolygon, error) {
	capacity := d.set.Capacity()
	for ; d.row < d.set.Rows(); d.row++ {
		i := d.row
		pairs, err := store.ToUint32(d.set.NumVertices.Data[i])
		if err != nil {
			return RawPolygon{}, apperrors.Wrap(apperrors.ErrCodeCorruptPolygon, err, "row %d: bad pair count", i)
		}
		if pairs == 0 {
			d.skipped++
			continue
		}
		if 2*int(pairs) > capacity {
			return RawPolygon{}, apperrors.New(apperrors.ErrCodeCorruptPolygon,
				"row %d: %d pairs exceed row capacity of %d values", i, pairs, capacity)
		}
		idx, err := store.ToUint32(d.set.CellIndex.Data[i])
		if err != nil || int(idx) >= len(d.ids) {
			return RawPolygon{}, apperrors.New(apperrors.ErrCodeUnknownCell,
				"row %d: cell index %v outside table of %d cells", i, d.set.CellIndex.Data[i], len(d.ids))
		}
		d.row++
		id := d.ids[idx]
		return RawPolygon{
			Row:    i,
			CellID: id.Major,
			Minor:  id.Minor,
			Coords: d.set.Vertices.Row(i)[:2*pairs],
		}, nil
	}
	return RawPolygon{}, io.EOF
}

// Row returns the index of the next row to be read.
func (d *Decoder) Row() int { return d.row }

// Skipped returns the number of padding rows passed so far.
func (d *Decoder) Skipped() int { return d.skipped }
