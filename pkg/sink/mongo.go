package sink

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	xio "github.com/gabrielascui/xenium-to-qupath/pkg/io"
)

// Mongo defaults.
const (
	DefaultMongoDatabase   = "xenium"
	DefaultMongoCollection = "cells"
	DefaultMongoBatchSize  = 1000
)

// MongoConfig configures a [MongoSink].
type MongoConfig struct {
	URI        string
	Database   string
	Collection string

	// Dataset tags every document so several stores can share one
	// collection. Upserts are keyed by (dataset, cell_id).
	Dataset string

	// BatchSize caps the number of writes per bulk request.
	BatchSize int

	// ConnectTimeout bounds the initial ping. Zero means 10s.
	ConnectTimeout time.Duration
}

func (c *MongoConfig) setDefaults() error {
	if c.URI == "" {
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "mongo uri is empty")
	}
	if err := apperrors.ValidateURL(c.URI); err != nil {
		return err
	}
	if c.Database == "" {
		c.Database = DefaultMongoDatabase
	}
	if c.Collection == "" {
		c.Collection = DefaultMongoCollection
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultMongoBatchSize
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return nil
}

// MongoSink upserts one document per cell.
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
	cfg    MongoConfig
}

// NewMongoSink connects, pings the server and ensures the unique
// (dataset, cell_id) index exists.
func NewMongoSink(ctx context.Context, cfg MongoConfig) (*MongoSink, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeNetwork, err, "connect to mongo")
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, apperrors.Wrap(apperrors.ErrCodeNetwork, err, "ping mongo")
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "dataset", Value: 1}, {Key: "properties.cell_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("dataset_cell_id"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, classifyMongo(err, "create index")
	}
	return &MongoSink{client: client, coll: coll, cfg: cfg}, nil
}

// Name returns "mongo".
func (s *MongoSink) Name() string { return "mongo" }

// Publish upserts every feature of c in batches. Network failures are
// retried with backoff; other errors abort.
func (s *MongoSink) Publish(ctx context.Context, c *cells.Collection) error {
	for _, batch := range batches(c.Features, s.cfg.BatchSize) {
		models := make([]mongo.WriteModel, len(batch))
		for i, f := range batch {
			models[i] = upsertModel(s.cfg.Dataset, f)
		}
		err := cache.RetryWithBackoff(ctx, func() error {
			_, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
			return classifyMongo(err, "bulk write")
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects the client.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Document builds the stored form of a feature: the GeoJSON feature plus
// the dataset tag.
func Document(dataset string, f *cells.Feature) bson.D {
	doc := xio.NewFeature(f)
	return bson.D{
		{Key: "uid", Value: doc.ID},
		{Key: "dataset", Value: dataset},
		{Key: "type", Value: doc.Type},
		{Key: "geometry", Value: polygonDoc(doc.Geometry)},
		{Key: "nucleusGeometry", Value: polygonDoc(doc.NucleusGeometry)},
		{Key: "properties", Value: bson.D{
			{Key: "cell_id", Value: int64(doc.Properties.CellID)},
			{Key: "objectType", Value: doc.Properties.ObjectType},
			{Key: "name", Value: doc.Properties.Name},
		}},
	}
}

func polygonDoc(p xio.Polygon) bson.D {
	rings := bson.A{}
	for _, ring := range p.Coordinates {
		pts := make(bson.A, len(ring))
		for i, pt := range ring {
			pts[i] = bson.A{pt[0], pt[1]}
		}
		rings = append(rings, pts)
	}
	return bson.D{{Key: "type", Value: p.Type}, {Key: "coordinates", Value: rings}}
}

// upsertModel replaces the document of one cell. A re-run overwrites the
// stored uid with the new one.
func upsertModel(dataset string, f *cells.Feature) mongo.WriteModel {
	doc := Document(dataset, f)
	return mongo.NewReplaceOneModel().
		SetFilter(bson.D{{Key: "dataset", Value: dataset}, {Key: "properties.cell_id", Value: int64(f.CellID)}}).
		SetReplacement(doc).
		SetUpsert(true)
}

func batches(features []*cells.Feature, size int) [][]*cells.Feature {
	var out [][]*cells.Feature
	for len(features) > 0 {
		n := min(size, len(features))
		out = append(out, features[:n])
		features = features[n:]
	}
	return out
}

// classifyMongo marks network and timeout failures as retryable.
func classifyMongo(err error, op string) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return cache.Retryable(apperrors.Wrap(apperrors.ErrCodeNetwork, err, "mongo %s", op))
	}
	return apperrors.Wrap(apperrors.ErrCodeInternal, err, "mongo %s", op)
}

var _ Sink = (*MongoSink)(nil)
