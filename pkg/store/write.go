package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// WriteOptions controls how [WriteZarr] lays out an array.
type WriteOptions struct {
	// Compressor is one of the Compressor* ids. Empty stores raw chunks.
	Compressor string

	// Level is the compression level; 0 picks the codec default.
	Level int

	// BloscCodec is the codec inside blosc chunks: lz4 (default), snappy,
	// zlib or zstd.
	BloscCodec string

	// ChunkRows is the number of rows per chunk. Chunks always span every
	// other dimension. 0 stores the array as a single chunk.
	ChunkRows int
}

// WriteZarr writes a as a zarr v2 array under root, creating the group
// hierarchy for a.Name as needed.
func WriteZarr(root string, a *Array, opts WriteOptions) error {
	if err := apperrors.ValidateArrayPath(a.Name); err != nil {
		return err
	}
	dt, err := parseDType(a.DType)
	if err != nil {
		return err
	}
	if len(a.Shape) == 0 {
		return apperrors.New(apperrors.ErrCodeUnsupported, "array %s: 0-d arrays are not supported", a.Name)
	}

	if err := writeGroups(root, a.Name); err != nil {
		return err
	}
	dir := filepath.Join(root, filepath.FromSlash(a.Name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	rows, cols := a.Rows(), a.Cols()
	chunkRows := opts.ChunkRows
	if chunkRows <= 0 || chunkRows > rows {
		chunkRows = max(rows, 1)
	}
	chunks := append([]int{chunkRows}, a.Shape[1:]...)
	for i := range chunks {
		chunks[i] = max(chunks[i], 1)
	}

	meta := zarrMeta{
		ZarrFormat: 2,
		Shape:      a.Shape,
		Chunks:     chunks,
		DType:      a.DType,
		FillValue:  json.RawMessage("0"),
		Order:      "C",
		Filters:    json.RawMessage("null"),
	}
	meta.Compressor = newCompressorConfig(opts)
	metaData, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, arrayMetaFile), metaData, 0644); err != nil {
		return err
	}

	// Trailing dims always have a single chunk, so their key part is 0.
	rest := strings.Repeat(".0", len(a.Shape)-1)
	chunkBytes := chunkRows * cols * dt.size
	for start, n := 0, 0; start < rows; start, n = start+chunkRows, n+1 {
		raw := make([]byte, chunkBytes)
		end := min(start+chunkRows, rows)
		for i, v := range a.Data[start*cols : end*cols] {
			dt.encode(raw[i*dt.size:(i+1)*dt.size], v)
		}
		enc, err := compress(meta.Compressor, dt.size, raw)
		if err != nil {
			return fmt.Errorf("array %s chunk %d: %w", a.Name, n, err)
		}
		if err := os.WriteFile(filepath.Join(dir, strconv.Itoa(n)+rest), enc, 0644); err != nil {
			return err
		}
	}
	return nil
}

// writeGroups creates .zgroup files for the root and every parent group
// of name.
func writeGroups(root, name string) error {
	group := []byte(`{"zarr_format": 2}`)
	parts := strings.Split(name, "/")
	dir := root
	for i := 0; i < len(parts); i++ {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, groupMetaFile), group, 0644); err != nil {
			return err
		}
		if i < len(parts)-1 {
			dir = filepath.Join(dir, parts[i])
		}
	}
	return nil
}
