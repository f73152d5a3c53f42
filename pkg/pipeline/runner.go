package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	xio "github.com/gabrielascui/xenium-to-qupath/pkg/io"
	"github.com/gabrielascui/xenium-to-qupath/pkg/observability"
	"github.com/gabrielascui/xenium-to-qupath/pkg/store"
)

// keyTypeCollection labels collection entries in cache hooks.
const keyTypeCollection = "collection"

// Runner executes the pipeline with caching.
//
// The Runner keeps no per-run state, so one Runner may serve concurrent
// runs with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// TTL is how long converted collections stay cached. Zero means
	// cache.TTLCollection.
	TTL time.Duration

	// UID generates feature ids, for conversions and cache hits alike.
	// Nil means cells.DefaultUID.
	UID cells.UIDFunc
}

// cachedCollection is the cache entry for a converted collection. Feature
// ids are not part of it: every run hands out its own.
type cachedCollection struct {
	Stats    cells.Stats     `json:"stats"`
	Document json.RawMessage `json:"document"`
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs convert → encode.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	result := &Result{}

	convertStart := time.Now()
	coll, fingerprint, hit, err := r.ConvertWithCacheInfo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	result.Collection = coll
	result.Fingerprint = fingerprint
	result.CacheInfo.CollectionHit = hit
	result.Stats.ConvertTime = time.Since(convertStart)
	result.Stats.Features = coll.Len()
	result.Stats.Shared = coll.Stats.Shared
	result.Stats.Sets = coll.Stats.Sets

	r.Logger.Debug("converted cell store",
		"features", coll.Len(),
		"cached", hit,
		"duration", result.Stats.ConvertTime)

	encodeStart := time.Now()
	artifacts, err := r.Encode(ctx, coll, opts)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	result.Artifacts = artifacts
	result.Stats.EncodeTime = time.Since(encodeStart)

	r.Logger.Debug("encoded outputs",
		"formats", opts.Formats,
		"duration", result.Stats.EncodeTime)

	return result, nil
}

// ConvertWithCacheInfo converts the input store, consulting the cache
// first unless opts.Refresh is set. It returns the collection, the store
// fingerprint and whether the collection came from the cache.
func (r *Runner) ConvertWithCacheInfo(ctx context.Context, opts Options) (*cells.Collection, string, bool, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForConvert(); err != nil {
		return nil, "", false, err
	}

	src := opts.Source
	if src == nil {
		s, err := store.Open(opts.Input)
		if err != nil {
			return nil, "", false, err
		}
		defer s.Close()
		src = s
	}

	fingerprint, err := src.Fingerprint(ctx)
	if err != nil {
		return nil, "", false, fmt.Errorf("fingerprint: %w", err)
	}
	key := r.Keyer.CollectionKey(fingerprint, opts.CollectionKeyOpts())

	if !opts.Refresh {
		data, hit, err := r.Cache.Get(ctx, key)
		if err != nil {
			r.Logger.Warn("cache read failed", "error", err)
		}
		if hit {
			coll, err := r.decodeCached(data)
			if err == nil {
				observability.Cache().OnCacheHit(ctx, keyTypeCollection)
				return coll, fingerprint, true, nil
			}
			// Undecodable entries are recomputed and overwritten.
			r.Logger.Debug("discarding cached collection", "error", err)
		}
		observability.Cache().OnCacheMiss(ctx, keyTypeCollection)
	}

	coll, err := r.convert(ctx, src, opts)
	if err != nil {
		return nil, "", false, err
	}

	if data, err := encodeCached(coll); err == nil {
		ttl := r.TTL
		if ttl <= 0 {
			ttl = cache.TTLCollection
		}
		if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
			r.Logger.Warn("cache write failed", "error", err)
		} else {
			observability.Cache().OnCacheSet(ctx, keyTypeCollection, len(data))
		}
	}
	return coll, fingerprint, false, nil
}

// Convert converts the input store and discards the cache hit info.
func (r *Runner) Convert(ctx context.Context, opts Options) (*cells.Collection, error) {
	coll, _, _, err := r.ConvertWithCacheInfo(ctx, opts)
	return coll, err
}

func (r *Runner) convert(ctx context.Context, src store.Source, opts Options) (*cells.Collection, error) {
	name := opts.sourceName()
	hooks := observability.Pipeline()
	hooks.OnConvertStart(ctx, name)
	start := time.Now()

	coll, err := cells.Convert(ctx, src, cells.Options{
		PixelScale: opts.PixelScale,
		UID:        r.UID,
		Sequential: opts.Sequential,
		Logger:     opts.Logger,
	})
	if err != nil {
		hooks.OnConvertComplete(ctx, name, 0, time.Since(start), err)
		return nil, err
	}
	for _, s := range coll.Stats.Sets {
		hooks.OnSetAssembled(ctx, s.Role.String(), s.Polygons, s.Skipped)
	}
	hooks.OnConvertComplete(ctx, name, coll.Len(), time.Since(start), nil)
	return coll, nil
}

func encodeCached(coll *cells.Collection) ([]byte, error) {
	doc, err := xio.MarshalGeoJSON(coll, xio.WriteOptions{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(cachedCollection{Stats: coll.Stats, Document: doc})
}

// decodeCached restores a cached collection with its conversion stats and
// fresh feature ids.
func (r *Runner) decodeCached(data []byte) (*cells.Collection, error) {
	var entry cachedCollection
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	if len(entry.Document) == 0 {
		return nil, fmt.Errorf("cached collection has no document")
	}
	coll, err := xio.ReadGeoJSON(bytes.NewReader(entry.Document))
	if err != nil {
		return nil, err
	}
	coll.Stats = entry.Stats
	uid := r.UID
	if uid == nil {
		uid = cells.DefaultUID
	}
	for _, f := range coll.Features {
		f.UID = uid()
	}
	return coll, nil
}

// Encode renders coll in every format of opts.
func (r *Runner) Encode(ctx context.Context, coll *cells.Collection, opts Options) (map[string][]byte, error) {
	r.applyLogger(&opts)
	if err := opts.ValidateForEncode(); err != nil {
		return nil, err
	}
	artifacts := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		data, err := EncodeFormat(coll, format, opts.Indent)
		observability.Pipeline().OnWriteComplete(ctx, format, len(data), time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", format, err)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}

// EncodeFormat renders coll in one format. indent applies to GeoJSON;
// negative means compact.
func EncodeFormat(coll *cells.Collection, format string, indent int) ([]byte, error) {
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch format {
	case FormatNDJSON:
		if err := xio.WriteNDJSON(coll, &buf); err != nil {
			return nil, err
		}
	default:
		if err := xio.WriteGeoJSON(coll, &buf, xio.WriteOptions{Indent: max(indent, 0)}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
