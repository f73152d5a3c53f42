package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/twpayne/go-geom"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	xio "github.com/gabrielascui/xenium-to-qupath/pkg/io"
	"github.com/gabrielascui/xenium-to-qupath/pkg/observability"
	"github.com/gabrielascui/xenium-to-qupath/pkg/pipeline"
)

func testCollection(t *testing.T) *cells.Collection {
	t.Helper()
	bnd := geom.NewPolygon(geom.XY)
	if err := bnd.Push(geom.NewLinearRingFlat(geom.XY, []float64{0, 0, 4, 0, 4, 4, 0, 0})); err != nil {
		t.Fatal(err)
	}
	return cells.NewCollection([]*cells.Feature{
		{UID: "u1", CellID: 1, Minor: 1, Name: "aaaaaaab-1", Nucleus: geom.NewPolygon(geom.XY), Boundary: bnd},
		{UID: "u2", CellID: 2, Minor: 1, Name: "aaaaaaac-1", Nucleus: geom.NewPolygon(geom.XY), Boundary: geom.NewPolygon(geom.XY)},
		{UID: "u3", CellID: 3, Minor: 1, Name: "aaaaaaad-1", Nucleus: geom.NewPolygon(geom.XY), Boundary: geom.NewPolygon(geom.XY)},
	})
}

type publishRecord struct {
	sink     string
	features int
	err      error
}

type recordingHooks struct {
	observability.NoopSinkHooks
	calls []publishRecord
}

func (h *recordingHooks) OnPublish(_ context.Context, sink string, features int, _ time.Duration, err error) {
	h.calls = append(h.calls, publishRecord{sink, features, err})
}

func TestFileSink(t *testing.T) {
	for _, format := range []string{pipeline.FormatGeoJSON, pipeline.FormatNDJSON} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cells."+format)
			s, err := NewFileSink(path, format, 2)
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Publish(context.Background(), testCollection(t)); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if format == pipeline.FormatNDJSON {
				if n := strings.Count(string(data), "\n"); n != 3 {
					t.Errorf("lines = %d, want 3", n)
				}
				return
			}
			c, err := xio.ImportGeoJSON(path)
			if err != nil {
				t.Fatal(err)
			}
			if c.Len() != 3 {
				t.Errorf("Len = %d, want 3", c.Len())
			}
		})
	}
}

func TestFileSinkWritesEncodedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells.geojson")
	s, err := NewFileSink(path, pipeline.FormatGeoJSON, -1)
	if err != nil {
		t.Fatal(err)
	}
	s.Data = []byte(`{"type":"FeatureCollection","features":[]}`)
	if err := s.Publish(context.Background(), testCollection(t)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(s.Data) {
		t.Errorf("file = %s, want the encoded data unchanged", data)
	}
}

func TestNewFileSinkErrors(t *testing.T) {
	if _, err := NewFileSink("", "geojson", 0); !apperrors.Is(err, apperrors.ErrCodeInvalidPath) {
		t.Errorf("empty path: %v", err)
	}
	if _, err := NewFileSink("out/", "geojson", 0); !apperrors.Is(err, apperrors.ErrCodeInvalidPath) {
		t.Errorf("directory path: %v", err)
	}
	if _, err := NewFileSink("out.svg", "svg", 0); !apperrors.Is(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("bad format: %v", err)
	}
	s, err := NewFileSink("out.geojson", "", 0)
	if err != nil || s.Format != pipeline.FormatGeoJSON {
		t.Errorf("default format: %+v, %v", s, err)
	}
}

func TestPublishReportsHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetSinkHooks(hooks)
	t.Cleanup(observability.Reset)

	path := filepath.Join(t.TempDir(), "cells.geojson")
	s, _ := NewFileSink(path, pipeline.FormatGeoJSON, -1)
	if err := Publish(context.Background(), s, testCollection(t)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Publish(ctx, s, testCollection(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled publish: %v", err)
	}

	if len(hooks.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(hooks.calls))
	}
	if c := hooks.calls[0]; c.sink != "file" || c.features != 3 || c.err != nil {
		t.Errorf("first call = %+v", c)
	}
	if hooks.calls[1].err == nil {
		t.Error("second call should carry the error")
	}
}

func TestDocument(t *testing.T) {
	c := testCollection(t)
	doc := Document("run-1", c.Features[0]).Map()

	if doc["uid"] != "u1" || doc["dataset"] != "run-1" || doc["type"] != "Feature" {
		t.Errorf("doc = %v", doc)
	}
	props := doc["properties"].(bson.D).Map()
	if props["cell_id"] != int64(1) || props["name"] != "aaaaaaab-1" || props["objectType"] != "cell" {
		t.Errorf("properties = %v", props)
	}
	geometry := doc["geometry"].(bson.D).Map()
	rings := geometry["coordinates"].(bson.A)
	if len(rings) != 1 || len(rings[0].(bson.A)) != 4 {
		t.Errorf("geometry rings = %v", rings)
	}
	nucleus := doc["nucleusGeometry"].(bson.D).Map()
	if coords := nucleus["coordinates"].(bson.A); len(coords) != 0 {
		t.Errorf("empty nucleus = %v", coords)
	}

	if _, err := bson.Marshal(Document("run-1", c.Features[0])); err != nil {
		t.Errorf("bson.Marshal: %v", err)
	}
}

func TestBatches(t *testing.T) {
	features := testCollection(t).Features
	tests := []struct {
		size int
		want []int
	}{
		{1, []int{1, 1, 1}},
		{2, []int{2, 1}},
		{3, []int{3}},
		{10, []int{3}},
	}
	for _, tt := range tests {
		got := batches(features, tt.size)
		if len(got) != len(tt.want) {
			t.Errorf("size %d: %d batches, want %d", tt.size, len(got), len(tt.want))
			continue
		}
		for i, b := range got {
			if len(b) != tt.want[i] {
				t.Errorf("size %d batch %d: len %d, want %d", tt.size, i, len(b), tt.want[i])
			}
		}
	}
	if got := batches(nil, 5); len(got) != 0 {
		t.Errorf("empty input gave %d batches", len(got))
	}
}

func TestClassifyMongo(t *testing.T) {
	if classifyMongo(nil, "op") != nil {
		t.Error("nil error should stay nil")
	}
	err := classifyMongo(context.DeadlineExceeded, "bulk write")
	if !cache.IsRetryable(err) || !apperrors.Is(err, apperrors.ErrCodeNetwork) {
		t.Errorf("deadline: %v", err)
	}
	err = classifyMongo(errors.New("duplicate key"), "bulk write")
	if cache.IsRetryable(err) || !apperrors.Is(err, apperrors.ErrCodeInternal) {
		t.Errorf("plain error: %v", err)
	}
}

func TestNewMongoSinkConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewMongoSink(ctx, MongoConfig{}); !apperrors.Is(err, apperrors.ErrCodeInvalidConfig) {
		t.Errorf("empty uri: %v", err)
	}
	if _, err := NewMongoSink(ctx, MongoConfig{URI: "ftp://db"}); !apperrors.Is(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("bad scheme: %v", err)
	}

	cfg := MongoConfig{URI: "mongodb://localhost:27017"}
	if err := cfg.setDefaults(); err != nil {
		t.Fatal(err)
	}
	if cfg.Database != DefaultMongoDatabase || cfg.Collection != DefaultMongoCollection ||
		cfg.BatchSize != DefaultMongoBatchSize || cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
}
