package io

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/twpayne/go-geom"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

func testCollection(t *testing.T) *cells.Collection {
	t.Helper()
	nuc, bnd := geom.NewPolygon(geom.XY), geom.NewPolygon(geom.XY)
	if err := nuc.Push(geom.NewLinearRingFlat(geom.XY, []float64{1, 1, 2, 1, 2, 2, 1, 1})); err != nil {
		t.Fatal(err)
	}
	return cells.NewCollection([]*cells.Feature{
		{UID: "u1", CellID: 0, Minor: 5, Name: "aaaaaaaa-5", Nucleus: nuc, Boundary: bnd},
		{UID: "u2", CellID: 7, Minor: 1, Name: "aaaaaaah-1",
			Nucleus:  geom.NewPolygon(geom.XY),
			Boundary: mustPolygon(t, []float64{0, 0, 4, 0, 4, 4, 0, 0}, []float64{5, 5, 6, 5, 5, 5})},
	})
}

func mustPolygon(t *testing.T, rings ...[]float64) *geom.Polygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	for _, r := range rings {
		if err := p.Push(geom.NewLinearRingFlat(geom.XY, r)); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestWriteGeoJSONShape(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGeoJSON(testCollection(t), &buf, WriteOptions{}); err != nil {
		t.Fatalf("WriteGeoJSON: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc["type"] != "FeatureCollection" {
		t.Errorf("type = %v", doc["type"])
	}
	features := doc["features"].([]any)
	if len(features) != 2 {
		t.Fatalf("features = %d, want 2", len(features))
	}

	first := features[0].(map[string]any)
	if first["id"] != "u1" || first["type"] != "Feature" {
		t.Errorf("first feature = %v", first)
	}
	geometry := first["geometry"].(map[string]any)
	if geometry["type"] != "Polygon" {
		t.Errorf("geometry type = %v", geometry["type"])
	}
	// An empty slot must encode as [], not null.
	if coords, ok := geometry["coordinates"].([]any); !ok || len(coords) != 0 {
		t.Errorf("empty geometry coordinates = %#v, want []", geometry["coordinates"])
	}
	props := first["properties"].(map[string]any)
	if props["cell_id"] != float64(0) || props["objectType"] != "cell" || props["name"] != "aaaaaaaa-5" {
		t.Errorf("properties = %v", props)
	}

	second := features[1].(map[string]any)
	rings := second["geometry"].(map[string]any)["coordinates"].([]any)
	if len(rings) != 2 {
		t.Errorf("second feature rings = %d, want 2", len(rings))
	}
	if !strings.Contains(buf.String(), `"nucleusGeometry":{"type":"Polygon","coordinates":[]}`) {
		t.Errorf("missing empty nucleusGeometry in %s", buf.String())
	}
}

func TestIndent(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGeoJSON(testCollection(t), &buf, WriteOptions{Indent: 4}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\n    \"features\": [") {
		t.Errorf("expected 4-space indent, got:\n%s", buf.String()[:80])
	}
}

func TestRoundTrip(t *testing.T) {
	want := testCollection(t)
	data, err := MarshalGeoJSON(want, WriteOptions{Indent: 2})
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadGeoJSON(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadGeoJSON: %v", err)
	}
	if got.Len() != want.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), want.Len())
	}
	for i, wf := range want.Features {
		gf := got.Features[i]
		if gf.UID != wf.UID || gf.CellID != wf.CellID || gf.Minor != wf.Minor || gf.Name != wf.Name {
			t.Errorf("feature %d = %+v, want %+v", i, gf, wf)
		}
		if gf.Boundary.NumLinearRings() != wf.Boundary.NumLinearRings() ||
			gf.Nucleus.NumLinearRings() != wf.Nucleus.NumLinearRings() {
			t.Errorf("feature %d ring counts differ", i)
		}
	}
}

func TestReadGeoJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"wrong type", `{"type":"Feature","features":[]}`},
		{"name mismatch", `{"type":"FeatureCollection","features":[{"type":"Feature","id":"a",
			"properties":{"cell_id":1,"objectType":"cell","name":"aaaaaaaa-1"}}]}`},
		{"bad name", `{"type":"FeatureCollection","features":[{"type":"Feature","id":"a",
			"properties":{"cell_id":1,"objectType":"cell","name":"cell-1"}}]}`},
		{"duplicate cell", `{"type":"FeatureCollection","features":[
			{"type":"Feature","id":"a","properties":{"cell_id":1,"name":"aaaaaaab-1"}},
			{"type":"Feature","id":"b","properties":{"cell_id":1,"name":"aaaaaaab-1"}}]}`},
		{"wrong geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","id":"a",
			"geometry":{"type":"Point","coordinates":[]},
			"properties":{"cell_id":1,"name":"aaaaaaab-1"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadGeoJSON(strings.NewReader(tt.doc))
			if !apperrors.Is(err, apperrors.ErrCodeInvalidFormat) {
				t.Errorf("got %v, want INVALID_FORMAT", err)
			}
		})
	}
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteNDJSON(testCollection(t), &buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var f Feature
	if err := json.Unmarshal([]byte(lines[1]), &f); err != nil {
		t.Fatal(err)
	}
	if f.Properties.Name != "aaaaaaah-1" {
		t.Errorf("second line name = %q", f.Properties.Name)
	}
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.geojson")
	if err := ExportGeoJSON(testCollection(t), path, WriteOptions{Indent: 4}); err != nil {
		t.Fatalf("ExportGeoJSON: %v", err)
	}
	c, err := ImportGeoJSON(path)
	if err != nil {
		t.Fatalf("ImportGeoJSON: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("leftover files: %v", entries)
	}

	if _, err := ImportGeoJSON(filepath.Join(dir, "nope.geojson")); !apperrors.Is(err, apperrors.ErrCodeFileNotFound) {
		t.Errorf("missing file: %v, want FILE_NOT_FOUND", err)
	}
}

func TestWriteFileFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.geojson")
	os.WriteFile(path, []byte("old"), 0644)

	err := WriteFile(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return apperrors.New(apperrors.ErrCodeInternal, "boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("path content = %q, want old", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary file left behind: %v", entries)
	}
}
