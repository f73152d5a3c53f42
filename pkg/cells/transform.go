package cells

import (
	"github.com/twpayne/go-geom"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// DefaultPixelScale is the Xenium pixel size in microns.
const DefaultPixelScale = 0.2125

// Transform scales interleaved raw coordinates into physical units and
// returns a closed ring. A copy of the first point is appended unless the
// last point already equals it exactly.
func Transform(coords []float64, pixelScale float64) (*geom.LinearRing, error) {
	if err := apperrors.ValidatePixelScale(pixelScale); err != nil {
		return nil, err
	}
	if len(coords) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeEmptyPolygon, "ring has no points")
	}
	if len(coords)%2 != 0 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "ring has %d scalars, want x,y pairs", len(coords))
	}

	n := len(coords)
	flat := make([]float64, n, n+2)
	for i, v := range coords {
		flat[i] = v / pixelScale
	}
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	return geom.NewLinearRingFlat(geom.XY, flat), nil
}
