package store

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

const (
	arrayMetaFile = ".zarray"
	groupMetaFile = ".zgroup"
)

// ZarrSource reads zarr v2 arrays from a directory tree or a zip archive.
type ZarrSource struct {
	fsys   fs.FS
	root   string
	closer io.Closer
}

// zarrMeta is the content of a .zarray file.
type zarrMeta struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *compressorConfig `json:"compressor"`
	FillValue          json.RawMessage   `json:"fill_value"`
	Order              string            `json:"order"`
	Filters            json.RawMessage   `json:"filters"`
	DimensionSeparator string            `json:"dimension_separator,omitempty"`
}

// OpenZarrDir opens a zarr hierarchy stored as a directory.
func OpenZarrDir(dir string) (*ZarrSource, error) {
	return &ZarrSource{fsys: os.DirFS(dir), root: dir}, nil
}

// OpenZarrZip opens a zarr hierarchy stored in a zip archive. Archives whose
// only top-level entry is a directory holding the hierarchy are unwrapped.
func OpenZarrZip(file string) (*ZarrSource, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", file, err)
	}
	var fsys fs.FS = zr
	if sub, ok := singleTopDir(zr); ok {
		if s, err := fs.Sub(zr, sub); err == nil {
			fsys = s
		}
	}
	return &ZarrSource{fsys: fsys, root: file, closer: zr}, nil
}

// singleTopDir reports the top-level directory of an archive that has no
// zarr metadata at its root and exactly one directory entry.
func singleTopDir(fsys fs.FS) (string, bool) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return "", false
	}
	return entries[0].Name(), true
}

// String returns the path the source was opened from.
func (z *ZarrSource) String() string { return z.root }

// Close releases the archive handle, if any.
func (z *ZarrSource) Close() error {
	if z.closer != nil {
		return z.closer.Close()
	}
	return nil
}

func (z *ZarrSource) readMeta(name string) (zarrMeta, error) {
	if err := apperrors.ValidateArrayPath(name); err != nil {
		return zarrMeta{}, err
	}
	data, err := fs.ReadFile(z.fsys, path.Join(name, arrayMetaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return zarrMeta{}, missing(name, nil)
	}
	if err != nil {
		return zarrMeta{}, fmt.Errorf("read %s metadata: %w", name, err)
	}

	var m zarrMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return zarrMeta{}, apperrors.Wrap(apperrors.ErrCodeUnsupported, err, "array %s: unreadable .zarray", name)
	}
	if m.ZarrFormat != 2 {
		return zarrMeta{}, apperrors.New(apperrors.ErrCodeUnsupported, "array %s: zarr format %d (want 2)", name, m.ZarrFormat)
	}
	if len(m.Shape) == 0 || len(m.Chunks) != len(m.Shape) {
		return zarrMeta{}, apperrors.New(apperrors.ErrCodeUnsupported, "array %s: shape %v with chunks %v", name, m.Shape, m.Chunks)
	}
	for _, c := range m.Chunks {
		if c <= 0 {
			return zarrMeta{}, apperrors.New(apperrors.ErrCodeUnsupported, "array %s: chunk size %d", name, c)
		}
	}
	if m.Order != "" && m.Order != "C" {
		return zarrMeta{}, apperrors.New(apperrors.ErrCodeUnsupported, "array %s: order %q (want C)", name, m.Order)
	}
	if len(m.Filters) > 0 && string(m.Filters) != "null" && string(m.Filters) != "[]" {
		return zarrMeta{}, apperrors.New(apperrors.ErrCodeUnsupported, "array %s: filters are not supported", name)
	}
	if _, err := parseDType(m.DType); err != nil {
		return zarrMeta{}, err
	}
	return m, nil
}

func (m zarrMeta) compressorID() string {
	if m.Compressor == nil {
		return CompressorNone
	}
	return m.Compressor.ID
}

func (m zarrMeta) separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

func (m zarrMeta) fillValue() (float64, error) {
	raw := strings.TrimSpace(string(m.FillValue))
	switch raw {
	case "", "null":
		return 0, nil
	case `"NaN"`:
		return math.NaN(), nil
	case `"Infinity"`:
		return math.Inf(1), nil
	case `"-Infinity"`:
		return math.Inf(-1), nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.New(apperrors.ErrCodeUnsupported, "fill value %s not supported", raw)
	}
	return v, nil
}

// Info returns the metadata of the named array.
func (z *ZarrSource) Info(ctx context.Context, name string) (ArrayInfo, error) {
	m, err := z.readMeta(name)
	if err != nil {
		return ArrayInfo{}, err
	}
	return ArrayInfo{
		Name:       name,
		Shape:      m.Shape,
		DType:      m.DType,
		Chunks:     m.Chunks,
		Compressor: m.compressorID(),
	}, nil
}

// Array loads the named array into memory. Chunks absent from the store
// take the array's fill value.
func (z *ZarrSource) Array(ctx context.Context, name string) (*Array, error) {
	m, err := z.readMeta(name)
	if err != nil {
		return nil, err
	}
	dt, _ := parseDType(m.DType)
	fill, err := m.fillValue()
	if err != nil {
		return nil, fmt.Errorf("array %s: %w", name, err)
	}

	nd := len(m.Shape)
	total := 1
	grid := make([]int, nd)
	for d := 0; d < nd; d++ {
		total *= m.Shape[d]
		grid[d] = (m.Shape[d] + m.Chunks[d] - 1) / m.Chunks[d]
	}
	data := make([]float64, total)
	if fill != 0 {
		for i := range data {
			data[i] = fill
		}
	}
	if total == 0 {
		return &Array{Name: name, Shape: m.Shape, DType: m.DType, Data: data}, nil
	}

	chunkElems := 1
	for _, c := range m.Chunks {
		chunkElems *= c
	}

	ci := make([]int, nd)
	keyParts := make([]string, nd)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for d := range ci {
			keyParts[d] = strconv.Itoa(ci[d])
		}
		key := path.Join(name, strings.Join(keyParts, m.separator()))
		raw, err := fs.ReadFile(z.fsys, key)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// fill value already in place
		case err != nil:
			return nil, fmt.Errorf("read chunk %s: %w", key, err)
		default:
			raw, err = decompress(m.compressorID(), raw)
			if err != nil {
				return nil, fmt.Errorf("decompress chunk %s: %w", key, err)
			}
			if len(raw) != chunkElems*dt.size {
				return nil, apperrors.New(apperrors.ErrCodeShapeMismatch, "chunk %s: %d bytes, want %d", key, len(raw), chunkElems*dt.size)
			}
			scatterChunk(data, raw, dt, m.Shape, m.Chunks, ci)
		}
		if !advance(ci, grid) {
			break
		}
	}

	return &Array{Name: name, Shape: m.Shape, DType: m.DType, Data: data}, nil
}

// scatterChunk copies the in-bounds part of one decoded chunk into data.
func scatterChunk(data []float64, raw []byte, dt dtype, shape, chunks, ci []int) {
	nd := len(shape)
	origin := make([]int, nd)
	lim := make([]int, nd)
	for d := 0; d < nd; d++ {
		origin[d] = ci[d] * chunks[d]
		lim[d] = min(chunks[d], shape[d]-origin[d])
	}

	// Walk every position of the leading nd-1 dims and copy the contiguous
	// span along the last dim.
	pos := make([]int, nd-1)
	span := lim[nd-1]
	for {
		local, global := 0, 0
		for d := 0; d < nd-1; d++ {
			local = local*chunks[d] + pos[d]
			global = global*shape[d] + origin[d] + pos[d]
		}
		local = local * chunks[nd-1]
		global = global*shape[nd-1] + origin[nd-1]
		for k := 0; k < span; k++ {
			off := (local + k) * dt.size
			data[global+k] = dt.decode(raw[off : off+dt.size])
		}
		if !advance(pos, lim[:nd-1]) {
			return
		}
	}
}

// advance steps idx through the grid bounded by lim in C order. It returns
// false once every position has been visited.
func advance(idx, lim []int) bool {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < lim[d] {
			return true
		}
		idx[d] = 0
	}
	return false
}

// List returns every array path in the hierarchy.
func (z *ZarrSource) List(ctx context.Context) ([]string, error) {
	var names []string
	err := fs.WalkDir(z.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == arrayMetaFile {
			names = append(names, path.Dir(p))
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", z.root, err)
	}
	sort.Strings(names)
	return names, nil
}

// Fingerprint hashes the path, size and modification time of every file in
// the hierarchy. Chunk contents are not read.
func (z *ZarrSource) Fingerprint(ctx context.Context) (string, error) {
	h := sha256.New()
	err := fs.WalkDir(z.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", p, info.Size(), info.ModTime().UnixNano())
		return ctx.Err()
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", z.root, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Ensure ZarrSource implements Source.
var _ Source = (*ZarrSource)(nil)
