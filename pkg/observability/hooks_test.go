package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPipelineHooks{}
	p.OnConvertStart(ctx, "cells.zarr.zip")
	p.OnConvertComplete(ctx, "cells.zarr.zip", 100, time.Second, nil)
	p.OnSetAssembled(ctx, "nucleus", 100, 3)
	p.OnWriteComplete(ctx, "geojson", 1024, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "collection")
	c.OnCacheMiss(ctx, "collection")
	c.OnCacheSet(ctx, "collection", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "/cells/{id}")
	h.OnResponse(ctx, "GET", "/cells/{id}", 200, time.Second)
	h.OnError(ctx, "GET", "/cells/{id}", nil)

	NoopSinkHooks{}.OnPublish(ctx, "mongo", 10, time.Second, nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should return NoopPipelineHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}
	if _, ok := Sink().(NoopSinkHooks); !ok {
		t.Error("Sink() should return NoopSinkHooks by default")
	}

	customPipeline := &testPipelineHooks{}
	SetPipelineHooks(customPipeline)
	if Pipeline() != customPipeline {
		t.Error("SetPipelineHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	customSink := &testSinkHooks{}
	SetSinkHooks(customSink)
	if Sink() != customSink {
		t.Error("SetSinkHooks should set custom hooks")
	}

	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
	if _, ok := Sink().(NoopSinkHooks); !ok {
		t.Error("Reset() should restore NoopSinkHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testPipelineHooks{}
	SetPipelineHooks(custom)
	SetPipelineHooks(nil)
	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should be ignored")
	}
}

func TestPrometheusHooks(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	h := NewPrometheusHooks(reg)

	h.OnConvertComplete(ctx, "s", 42, time.Second, nil)
	h.OnConvertComplete(ctx, "s", 0, time.Second, errors.New("boom"))
	h.OnSetAssembled(ctx, "boundary", 7, 2)
	h.OnCacheHit(ctx, "collection")
	h.OnCacheHit(ctx, "collection")
	h.OnCacheMiss(ctx, "collection")
	h.OnResponse(ctx, "GET", "/healthz", 200, time.Millisecond)
	h.OnPublish(ctx, "mongo", 42, time.Second, nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`xq_conversions_total{result="ok"} 1`,
		`xq_conversions_total{result="error"} 1`,
		`xq_features_total 42`,
		`xq_polygons_total{role="boundary"} 7`,
		`xq_padding_rows_total{role="boundary"} 2`,
		`xq_cache_hits_total{key_type="collection"} 2`,
		`xq_cache_misses_total{key_type="collection"} 1`,
		`xq_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
		`xq_sink_publishes_total{result="ok",sink="mongo"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

// Test implementations
type testPipelineHooks struct{ NoopPipelineHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
type testSinkHooks struct{ NoopSinkHooks }
