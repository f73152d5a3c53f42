// Package store exposes a hierarchical array store as a set of named,
// rectangular, read-only numeric arrays.
//
// Two sources are provided:
//   - [MemorySource]: arrays held in memory (tests, synthetic inputs)
//   - [ZarrSource]: a zarr v2 hierarchy stored in a directory or a .zip
//     archive, such as the cells.zarr.zip written by Xenium instruments
//
// Arrays are loaded whole. Values are widened to float64, which is exact for
// every integer type up to 32 bits and for float32 and float64 data.
//
// # Usage
//
//	src, err := store.Open("cells.zarr.zip")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	ids, err := src.Array(ctx, "cell_id")
//	if err != nil {
//	    return err // MISSING_DATASET when the array is absent
//	}
//	fmt.Println(ids.Shape) // [194412 2]
package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// Source is a read-only collection of named arrays.
type Source interface {
	// Array loads the named array. Names use '/' to separate groups.
	// A missing array yields an error with code MISSING_DATASET.
	Array(ctx context.Context, name string) (*Array, error)

	// Info returns the metadata of the named array without loading its data.
	Info(ctx context.Context, name string) (ArrayInfo, error)

	// List returns the names of all arrays in the source, sorted.
	List(ctx context.Context) ([]string, error)

	// Fingerprint identifies the source contents for cache keys. Two sources
	// with equal fingerprints are expected to hold identical arrays.
	Fingerprint(ctx context.Context) (string, error)

	// Close releases any files held by the source.
	Close() error
}

// ArrayInfo describes an array without its data.
type ArrayInfo struct {
	Name       string `json:"name"`
	Shape      []int  `json:"shape"`
	DType      string `json:"dtype"`
	Chunks     []int  `json:"chunks,omitempty"`
	Compressor string `json:"compressor,omitempty"`
}

// Array is a dense, row-major numeric array.
type Array struct {
	Name  string
	Shape []int
	DType string
	Data  []float64
}

// NewArray creates an array after checking that data fills shape exactly.
func NewArray(name, dtype string, shape []int, data []float64) (*Array, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "array %s: negative dimension %d", name, d)
		}
		n *= d
	}
	if len(data) != n {
		return nil, apperrors.New(apperrors.ErrCodeShapeMismatch, "array %s: shape %v needs %d values, got %d", name, shape, n, len(data))
	}
	if _, err := parseDType(dtype); err != nil {
		return nil, err
	}
	return &Array{Name: name, Shape: append([]int(nil), shape...), DType: dtype, Data: data}, nil
}

// NewMatrix builds a 2-D array from equal-length rows.
func NewMatrix(name, dtype string, rows [][]float64) (*Array, error) {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, apperrors.New(apperrors.ErrCodeShapeMismatch, "array %s: row %d has %d values, want %d", name, i, len(r), cols)
		}
		data = append(data, r...)
	}
	return NewArray(name, dtype, []int{len(rows), cols}, data)
}

// NewVector builds a 1-D array.
func NewVector(name, dtype string, values []float64) (*Array, error) {
	return NewArray(name, dtype, []int{len(values)}, append([]float64(nil), values...))
}

// Rows returns the size of the first dimension. A 0-d array has one row.
func (a *Array) Rows() int {
	if len(a.Shape) == 0 {
		return 1
	}
	return a.Shape[0]
}

// Cols returns the number of values per row.
func (a *Array) Cols() int {
	n := 1
	for _, d := range a.Shape[min(1, len(a.Shape)):] {
		n *= d
	}
	return n
}

// Row returns the values of row i. The slice aliases the array data.
func (a *Array) Row(i int) []float64 {
	c := a.Cols()
	return a.Data[i*c : (i+1)*c : (i+1)*c]
}

// At returns the value at row i, column j.
func (a *Array) At(i, j int) float64 {
	return a.Data[i*a.Cols()+j]
}

// Info returns the metadata of a.
func (a *Array) Info() ArrayInfo {
	return ArrayInfo{Name: a.Name, Shape: append([]int(nil), a.Shape...), DType: a.DType}
}

// Uint32At returns the value at row i, column j as an unsigned 32-bit integer.
// Non-integral, negative or too large values are rejected.
func (a *Array) Uint32At(i, j int) (uint32, error) {
	return ToUint32(a.At(i, j))
}

// ToUint32 converts an array value holding an unsigned integer.
func ToUint32(v float64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
		return 0, apperrors.New(apperrors.ErrCodeInvalidInput, "value %v is not an unsigned 32-bit integer", v)
	}
	return uint32(v), nil
}

// Open opens the store at path. Directories and .zip files are read as zarr
// v2 hierarchies.
func Open(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrCodeFileNotFound, err, "open store %s", path)
		}
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if fi.IsDir() {
		return OpenZarrDir(path)
	}
	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		return OpenZarrZip(path)
	}
	return nil, apperrors.New(apperrors.ErrCodeUnsupported, "store %s: expected a zarr directory or .zip archive", path)
}

func missing(name string, cause error) error {
	if cause == nil {
		return apperrors.New(apperrors.ErrCodeMissingDataset, "array %q not found in store", name)
	}
	return apperrors.Wrap(apperrors.ErrCodeMissingDataset, cause, "array %q not found in store", name)
}
