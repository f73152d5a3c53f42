package io

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

// ReadGeoJSON decodes a FeatureCollection from r.
//
// Every feature must carry a display name matching its cell_id; cell ids
// must be unique. ReadGeoJSON does not close r.
func ReadGeoJSON(r io.Reader) (*cells.Collection, error) {
	var fc FeatureCollection
	if err := json.NewDecoder(bufio.NewReader(r)).Decode(&fc); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidFormat, err, "decode")
	}
	return fc.Collection()
}

// ImportGeoJSON reads a GeoJSON file from path.
func ImportGeoJSON(path string) (*cells.Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadGeoJSON(f)
}
