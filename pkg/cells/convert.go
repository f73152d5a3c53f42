package cells

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/store"
)

// Array names in a cell store.
const (
	ArrayCellID      = "cell_id"
	FieldVertices    = "vertices"
	FieldNumVertices = "num_vertices"
	FieldCellIndex   = "cell_index"
)

// ArrayName returns the path of field in the polygon set of role.
func ArrayName(role Role, field string) string {
	return fmt.Sprintf("polygon_sets/%d/%s", role.SetIndex(), field)
}

// RequiredArrays lists every array a conversion reads.
func RequiredArrays() []string {
	names := []string{ArrayCellID}
	for _, r := range Roles {
		names = append(names,
			ArrayName(r, FieldVertices),
			ArrayName(r, FieldNumVertices),
			ArrayName(r, FieldCellIndex))
	}
	return names
}

// Options configures [Convert].
type Options struct {
	// PixelScale divides every raw coordinate. Zero means DefaultPixelScale.
	PixelScale float64

	// UID generates feature ids. Nil means DefaultUID.
	UID UIDFunc

	// Sequential assembles the two sets one after the other on the calling
	// goroutine instead of concurrently.
	Sequential bool

	// Logger receives progress at debug level. Nil discards it.
	Logger *log.Logger
}

func (o *Options) setDefaults() error {
	if o.PixelScale == 0 {
		o.PixelScale = DefaultPixelScale
	}
	if err := apperrors.ValidatePixelScale(o.PixelScale); err != nil {
		return err
	}
	if o.UID == nil {
		o.UID = DefaultUID
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return nil
}

// Input is every array a conversion needs, loaded from a source.
type Input struct {
	IDs  []IdentityRow
	Sets [2]PolygonSet
}

// Load reads all required arrays from src. A missing array fails with
// MISSING_DATASET before anything is decoded.
func Load(ctx context.Context, src store.Source) (*Input, error) {
	arrays := make(map[string]*store.Array, 7)
	for _, name := range RequiredArrays() {
		a, err := src.Array(ctx, name)
		if err != nil {
			return nil, err
		}
		arrays[name] = a
	}
	ids, err := ReadIdentities(arrays[ArrayCellID])
	if err != nil {
		return nil, err
	}
	in := &Input{IDs: ids}
	for _, r := range Roles {
		in.Sets[r] = PolygonSet{
			Vertices:    arrays[ArrayName(r, FieldVertices)],
			NumVertices: arrays[ArrayName(r, FieldNumVertices)],
			CellIndex:   arrays[ArrayName(r, FieldCellIndex)],
		}
	}
	return in, nil
}

// Convert loads the polygon sets of src and merges them into a collection.
func Convert(ctx context.Context, src store.Source, opts Options) (*Collection, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	in, err := Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return ConvertInput(ctx, in, opts)
}

// ConvertInput assembles both sets of in and merges them.
func ConvertInput(ctx context.Context, in *Input, opts Options) (*Collection, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}

	var tables [2]*Table
	assemble := func(ctx context.Context, r Role) error {
		start := time.Now()
		t, err := AssembleSet(ctx, r, in.Sets[r], in.IDs, opts.PixelScale, opts.UID)
		if err != nil {
			return fmt.Errorf("%s set: %w", r, err)
		}
		s := t.Stats()
		opts.Logger.Debug("assembled polygon set",
			"role", r,
			"rows", s.Rows,
			"polygons", s.Polygons,
			"skipped", s.Skipped,
			"features", s.Features,
			"duration", time.Since(start))
		tables[r] = t
		return nil
	}

	if opts.Sequential {
		for _, r := range Roles {
			if err := assemble(ctx, r); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for _, r := range Roles {
			g.Go(func() error { return assemble(gctx, r) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	c := Merge(tables[Nucleus], tables[Boundary])
	c.Stats.Cells = len(in.IDs)
	opts.Logger.Debug("merged polygon sets", "features", c.Len(), "shared", c.Stats.Shared)
	return c, nil
}
