package cells

// Merge joins the nucleus and boundary tables.
//
// Nucleus features are taken in insertion order. Boundary features then
// either extend the boundary rings of a cell already present or are appended
// as they are. On a shared cell the nucleus-side UID and name are kept.
//
// Merge takes ownership of both tables' features.
func Merge(nucleus, boundary *Table) *Collection {
	c := &Collection{
		Features: make([]*Feature, 0, nucleus.Len()+boundary.Len()),
		byID:     make(map[uint32]int, nucleus.Len()+boundary.Len()),
	}
	for _, f := range nucleus.order {
		c.add(f)
	}
	shared := 0
	for _, f := range boundary.order {
		existing, ok := c.ByCellID(f.CellID)
		if !ok {
			c.add(f)
			continue
		}
		shared++
		for i := 0; i < f.Boundary.NumLinearRings(); i++ {
			// Layouts match, so Push cannot fail.
			_ = existing.Boundary.Push(f.Boundary.LinearRing(i))
		}
	}
	c.Stats.Sets = [2]SetStats{nucleus.Stats(), boundary.Stats()}
	c.Stats.Merged = len(c.Features)
	c.Stats.Shared = shared
	return c
}
