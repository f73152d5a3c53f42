package cells

import (
	"context"
	"errors"
	"io"

	"github.com/twpayne/go-geom"
)

// ctxCheckRows is how many rows pass between context checks.
const ctxCheckRows = 4096

// Table is an insertion-ordered set of features keyed by cell id.
// It is owned by one assembler and is not safe for concurrent use.
type Table struct {
	order []*Feature
	byID  map[uint32]int
	stats SetStats
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byID: make(map[uint32]int)}
}

// Len returns the number of features.
func (t *Table) Len() int { return len(t.order) }

// Get returns the feature for a cell id.
func (t *Table) Get(id uint32) (*Feature, bool) {
	i, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.order[i], true
}

// Features returns the features in insertion order.
func (t *Table) Features() []*Feature {
	return append([]*Feature(nil), t.order...)
}

// Stats returns the assembly statistics of the table.
func (t *Table) Stats() SetStats {
	s := t.stats
	s.Features = len(t.order)
	return s
}

func (t *Table) insert(f *Feature) {
	t.byID[f.CellID] = len(t.order)
	t.order = append(t.order, f)
}

// Assembler groups the rings of one polygon set by cell id.
type Assembler struct {
	role  Role
	table *Table
	uid   UIDFunc
}

// NewAssembler returns an assembler adding rings of role to table.
// A nil uid uses [DefaultUID].
func NewAssembler(role Role, table *Table, uid UIDFunc) *Assembler {
	if uid == nil {
		uid = DefaultUID
	}
	table.stats.Role = role
	return &Assembler{role: role, table: table, uid: uid}
}

// Add appends ring to the feature of p's cell, creating the feature on the
// first ring seen for that cell.
func (a *Assembler) Add(p RawPolygon, ring *geom.LinearRing) error {
	f, ok := a.table.Get(p.CellID)
	if !ok {
		f = newFeature(a.uid(), p.CellID, p.Minor)
		a.table.insert(f)
	}
	if err := f.Rings(a.role).Push(ring); err != nil {
		return err
	}
	a.table.stats.Polygons++
	return nil
}

// AssembleSet decodes, transforms and assembles one polygon set into a new
// table.
func AssembleSet(ctx context.Context, role Role, set PolygonSet, ids []IdentityRow, pixelScale float64, uid UIDFunc) (*Table, error) {
	dec, err := NewDecoder(set, ids)
	if err != nil {
		return nil, err
	}
	table := NewTable()
	asm := NewAssembler(role, table, uid)
	table.stats.Rows = set.Rows()

	nextCheck := 0
	for {
		if dec.Row() >= nextCheck {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			nextCheck = dec.Row() + ctxCheckRows
		}
		p, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ring, err := Transform(p.Coords, pixelScale)
		if err != nil {
			return nil, err
		}
		if err := asm.Add(p, ring); err != nil {
			return nil, err
		}
	}
	table.stats.Skipped = dec.Skipped()
	return table, nil
}
