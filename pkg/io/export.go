package io

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
)

// WriteOptions controls document encoding.
type WriteOptions struct {
	// Indent is the number of spaces per nesting level. Zero writes
	// compact JSON.
	Indent int
}

func newEncoder(w io.Writer, opts WriteOptions) *json.Encoder {
	enc := json.NewEncoder(w)
	if opts.Indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", opts.Indent))
	}
	return enc
}

// WriteGeoJSON encodes c as a FeatureCollection and writes it to w.
func WriteGeoJSON(c *cells.Collection, w io.Writer, opts WriteOptions) error {
	bw := bufio.NewWriter(w)
	if err := newEncoder(bw, opts).Encode(NewFeatureCollection(c)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return bw.Flush()
}

// MarshalGeoJSON returns the encoded FeatureCollection of c.
func MarshalGeoJSON(c *cells.Collection, opts WriteOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteGeoJSON(c, &buf, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteNDJSON writes one compact feature per line.
func WriteNDJSON(c *cells.Collection, w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, f := range c.Features {
		if err := enc.Encode(NewFeature(f)); err != nil {
			return fmt.Errorf("encode feature %s: %w", f.Name, err)
		}
	}
	return bw.Flush()
}

// ExportGeoJSON writes c to a GeoJSON file at path.
func ExportGeoJSON(c *cells.Collection, path string, opts WriteOptions) error {
	return WriteFile(path, func(w io.Writer) error { return WriteGeoJSON(c, w, opts) })
}

// WriteFile writes the output of write to path through a temporary file in
// the same directory. On error the temporary file is removed and path is
// left untouched.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := write(f); err != nil {
		return err
	}
	if err := f.Chmod(0644); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
