// Package config loads xenium-to-qupath settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults
//  2. a TOML file (DefaultPath unless another path is given)
//  3. a .env file in the working directory
//  4. XQ_* environment variables
//
// Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/sink"
)

// AppName names the config and cache directories.
const AppName = "xenium-to-qupath"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "XQ_"

// Config is the effective configuration.
type Config struct {
	PixelScale float64 `toml:"pixel_scale"`
	Output     string  `toml:"output"`
	Format     string  `toml:"format"`
	Indent     int     `toml:"indent"`

	Cache CacheConfig `toml:"cache"`
	Mongo MongoConfig `toml:"mongo"`
	Serve ServeConfig `toml:"serve"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Backend       string        `toml:"backend"`
	Dir           string        `toml:"dir"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	TTL           time.Duration `toml:"ttl"`

	// Prefix namespaces cache keys so several deployments can share one
	// Redis.
	Prefix string `toml:"prefix"`
}

// MongoConfig configures the optional MongoDB sink. An empty URI disables
// it.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
	BatchSize  int    `toml:"batch_size"`
}

// ServeConfig configures the HTTP server.
type ServeConfig struct {
	Addr    string `toml:"addr"`
	Metrics bool   `toml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		PixelScale: cells.DefaultPixelScale,
		Format:     "geojson",
		Indent:     4,
		Cache: CacheConfig{
			Backend: cache.BackendFile,
			TTL:     cache.TTLCollection,
		},
		Mongo: MongoConfig{
			Database:   sink.DefaultMongoDatabase,
			Collection: sink.DefaultMongoCollection,
			BatchSize:  sink.DefaultMongoBatchSize,
		},
		Serve: ServeConfig{Addr: "127.0.0.1:8080", Metrics: true},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/xenium-to-qupath/config.toml,
// falling back to ~/.config.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.toml"), nil
}

// Load builds the effective configuration. An empty path reads
// DefaultPath when that file exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		err := cfg.decodeFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return nil, apperrors.Wrap(apperrors.ErrCodeFileNotFound, err, "config %s", path)
			}
		} else if err != nil {
			return nil, err
		}
	}

	// A missing .env is normal. godotenv never overrides variables that
	// are already set.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "load .env")
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overrides fields from XQ_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "%s%s", EnvPrefix, name))
				return
			}
			*dst = n
		}
	}

	if v, ok := lookup(EnvPrefix + "PIXEL_SCALE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "%sPIXEL_SCALE", EnvPrefix))
		} else {
			c.PixelScale = f
		}
	}
	str("OUTPUT", &c.Output)
	str("FORMAT", &c.Format)
	num("INDENT", &c.Indent)

	str("CACHE_BACKEND", &c.Cache.Backend)
	str("CACHE_DIR", &c.Cache.Dir)
	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("REDIS_PASSWORD", &c.Cache.RedisPassword)
	num("REDIS_DB", &c.Cache.RedisDB)
	str("CACHE_PREFIX", &c.Cache.Prefix)
	if v, ok := lookup(EnvPrefix + "CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "%sCACHE_TTL", EnvPrefix))
		} else {
			c.Cache.TTL = d
		}
	}

	str("MONGO_URI", &c.Mongo.URI)
	str("MONGO_DATABASE", &c.Mongo.Database)
	str("MONGO_COLLECTION", &c.Mongo.Collection)
	num("MONGO_BATCH_SIZE", &c.Mongo.BatchSize)

	str("SERVE_ADDR", &c.Serve.Addr)

	return errors.Join(errs...)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if err := apperrors.ValidatePixelScale(c.PixelScale); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "", cache.BackendFile, cache.BackendRedis, cache.BackendNone:
	default:
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == cache.BackendRedis && c.Cache.RedisAddr == "" {
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
	}
	if c.Cache.TTL < 0 {
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "cache.ttl must not be negative")
	}
	if c.Mongo.URI != "" {
		if err := apperrors.ValidateURL(c.Mongo.URI); err != nil {
			return err
		}
	}
	return nil
}

// CacheBackend returns the cache settings with dir as the file cache
// directory when none is configured.
func (c *Config) CacheBackend(dir string) cache.Config {
	if c.Cache.Dir != "" {
		dir = c.Cache.Dir
	}
	return cache.Config{
		Backend: c.Cache.Backend,
		Dir:     dir,
		Redis: cache.RedisConfig{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
		},
	}
}

// Keyer returns the cache keyer, scoped when a prefix is configured.
func (c *Config) Keyer() cache.Keyer {
	if c.Cache.Prefix == "" {
		return cache.NewDefaultKeyer()
	}
	return cache.NewScopedKeyer(nil, c.Cache.Prefix)
}

// MongoSink returns the sink settings for one dataset.
func (c *Config) MongoSink(dataset string) sink.MongoConfig {
	return sink.MongoConfig{
		URI:        c.Mongo.URI,
		Database:   c.Mongo.Database,
		Collection: c.Mongo.Collection,
		Dataset:    dataset,
		BatchSize:  c.Mongo.BatchSize,
	}
}

// Encode writes c as TOML. The Redis password is masked.
func (c *Config) Encode(w io.Writer) error {
	out := *c
	if out.Cache.RedisPassword != "" {
		out.Cache.RedisPassword = "********"
	}
	return toml.NewEncoder(w).Encode(out)
}
