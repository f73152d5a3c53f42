// Package sink publishes converted cell collections.
//
// A [Sink] receives a whole collection at once:
//   - [FileSink] writes a GeoJSON or NDJSON file atomically
//   - [MongoSink] upserts one document per cell into a MongoDB collection
//
// Every publish is reported to the registered observability sink hooks.
package sink

import (
	"context"
	"time"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	"github.com/gabrielascui/xenium-to-qupath/pkg/observability"
)

// Sink receives converted collections.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Publish writes every feature of c.
	Publish(ctx context.Context, c *cells.Collection) error

	// Close releases connections held by the sink.
	Close(ctx context.Context) error
}

// Publish sends c to s and reports the outcome to the sink hooks.
func Publish(ctx context.Context, s Sink, c *cells.Collection) error {
	start := time.Now()
	err := s.Publish(ctx, c)
	observability.Sink().OnPublish(ctx, s.Name(), c.Len(), time.Since(start), err)
	return err
}
