// Package cells turns the polygon sets of a Xenium-style cell store into a
// collection of per-cell features.
//
// A store holds two polygon sets, each as three parallel arrays:
//
//	polygon_sets/{0,1}/vertices      [M, K] raw x,y pairs, padded to K scalars
//	polygon_sets/{0,1}/num_vertices  [M]    valid pair count per row
//	polygon_sets/{0,1}/cell_index    [M]    row into the cell_id table
//
// Set 0 holds nucleus outlines ([Nucleus]) and set 1 cell boundaries
// ([Boundary]). The cell_id table [N, 2] gives each cell its numeric id and
// a minor discriminator used in the display name.
//
// # Stages
//
// Each set runs through three stages:
//
//  1. [Decoder] walks the ragged rows, skipping padding rows whose pair
//     count is zero, and resolves the cell identity of each polygon.
//  2. [Transform] divides coordinates by the pixel scale and closes the ring.
//  3. [Assembler] groups rings by cell id into a set-private [Table].
//
// [Merge] then joins the nucleus and boundary tables into a [Collection].
// Nucleus features come first in decode order, followed by cells that only
// have a boundary.
//
// [Convert] wires the stages together. The two sets are assembled
// concurrently; the merge runs once both are done. Any error aborts the
// whole conversion and no partial collection is returned.
//
// # Usage
//
//	src, err := store.Open("cells.zarr.zip")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	coll, err := cells.Convert(ctx, src, cells.Options{PixelScale: 0.2125})
//	if err != nil {
//	    return err
//	}
//	for _, f := range coll.Features {
//	    fmt.Println(f.Name, f.Boundary.NumLinearRings())
//	}
package cells
