package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.PixelScale != cells.DefaultPixelScale || cfg.Indent != 4 || cfg.Format != "geojson" {
		t.Errorf("Default = %+v", cfg)
	}
	if cfg.Cache.Backend != cache.BackendFile || cfg.Cache.TTL != cache.TTLCollection {
		t.Errorf("Default cache = %+v", cfg.Cache)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default does not validate: %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	got, err := DefaultPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/tmp/xdg", AppName, "config.toml"); got != want {
		t.Errorf("DefaultPath = %q, want %q", got, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	got, _ = DefaultPath()
	home, _ := os.UserHomeDir()
	if want := filepath.Join(home, ".config", AppName, "config.toml"); got != want {
		t.Errorf("DefaultPath = %q, want %q", got, want)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := writeConfig(t, t.TempDir(), `
pixel_scale = 0.5
indent = 2

[cache]
backend = "redis"
redis_addr = "localhost:6379"
redis_db = 3
ttl = "1h"

[mongo]
uri = "mongodb://localhost:27017"

[serve]
addr = ":9000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PixelScale != 0.5 || cfg.Indent != 2 || cfg.Format != "geojson" {
		t.Errorf("top level = %+v", cfg)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisDB != 3 || cfg.Cache.TTL != time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Mongo.Database != "xenium" || cfg.Serve.Addr != ":9000" {
		t.Errorf("mongo = %+v, serve = %+v", cfg.Mongo, cfg.Serve)
	}

	cc := cfg.CacheBackend("/tmp/cache")
	if cc.Backend != "redis" || cc.Dir != "/tmp/cache" || cc.Redis.Addr != "localhost:6379" || cc.Redis.DB != 3 {
		t.Errorf("CacheBackend = %+v", cc)
	}
	mc := cfg.MongoSink("fp")
	if mc.URI != "mongodb://localhost:27017" || mc.Dataset != "fp" || mc.Collection != "cells" {
		t.Errorf("MongoSink = %+v", mc)
	}
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without a file: %v", err)
	}
	if cfg.PixelScale != cells.DefaultPixelScale {
		t.Errorf("PixelScale = %v", cfg.PixelScale)
	}

	_, err = Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !apperrors.Is(err, apperrors.ErrCodeFileNotFound) {
		t.Errorf("explicit missing file: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `pixel_scale = `},
		{"unknown key", `pixel_size = 1.0`},
		{"zero scale", `pixel_scale = 0.0`},
		{"bad backend", "[cache]\nbackend = \"memcached\""},
		{"redis without addr", "[cache]\nbackend = \"redis\""},
		{"bad mongo uri", "[mongo]\nuri = \"localhost:27017\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if apperrors.GetCode(err) == "" {
				t.Errorf("error has no code: %v", err)
			}
		})
	}
}

func TestLoadBadDotEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tests := []struct {
		name  string
		setup func(t *testing.T, path string)
	}{
		{"unterminated quote", func(t *testing.T, path string) {
			if err := os.WriteFile(path, []byte("XQ_PIXEL_SCALE=\"0.5\n"), 0644); err != nil {
				t.Fatal(err)
			}
		}},
		{"directory", func(t *testing.T, path string) {
			if err := os.Mkdir(path, 0755); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, filepath.Join(dir, ".env"))
			t.Chdir(dir)

			_, err := Load("")
			if !apperrors.Is(err, apperrors.ErrCodeInvalidConfig) {
				t.Errorf("err = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestLoadWithoutDotEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())
	if _, err := Load(""); err != nil {
		t.Errorf("Load without .env: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"XQ_PIXEL_SCALE":   "0.25",
		"XQ_INDENT":        "0",
		"XQ_CACHE_BACKEND": "none",
		"XQ_CACHE_TTL":     "30m",
		"XQ_REDIS_DB":      "2",
		"XQ_CACHE_PREFIX":  "xq:lab-a:",
		"XQ_MONGO_URI":     "mongodb://db",
		"XQ_SERVE_ADDR":    ":1234",
		"PIXEL_SCALE":      "9",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.PixelScale != 0.25 || cfg.Indent != 0 || cfg.Cache.Backend != "none" ||
		cfg.Cache.TTL != 30*time.Minute || cfg.Cache.RedisDB != 2 ||
		cfg.Mongo.URI != "mongodb://db" || cfg.Serve.Addr != ":1234" {
		t.Errorf("after env = %+v", cfg)
	}
	if key := cfg.Keyer().CollectionKey("fp", cache.CollectionKeyOpts{}); !strings.HasPrefix(key, "xq:lab-a:collection:") {
		t.Errorf("scoped key = %q", key)
	}
	if key := Default().Keyer().CollectionKey("fp", cache.CollectionKeyOpts{}); !strings.HasPrefix(key, "collection:") {
		t.Errorf("default key = %q", key)
	}

	bad := map[string]string{"XQ_INDENT": "four", "XQ_CACHE_TTL": "soon"}
	err := Default().ApplyEnv(func(k string) (string, bool) { v, ok := bad[k]; return v, ok })
	if err == nil || !strings.Contains(err.Error(), "XQ_INDENT") || !strings.Contains(err.Error(), "XQ_CACHE_TTL") {
		t.Errorf("bad env err = %v", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XQ_PIXEL_SCALE", "1")
	cfg, err := Load(writeConfig(t, t.TempDir(), "pixel_scale = 0.5"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PixelScale != 1 {
		t.Errorf("PixelScale = %v, want env value 1", cfg.PixelScale)
	}
}

func TestEncode(t *testing.T) {
	cfg := Default()
	cfg.Cache.RedisPassword = "secret"

	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "secret") {
		t.Error("password leaked into output")
	}

	var back Config
	if _, err := toml.Decode(buf.String(), &back); err != nil {
		t.Fatalf("decode encoded config: %v\n%s", err, buf.String())
	}
	if back.PixelScale != cfg.PixelScale || back.Cache.TTL != cfg.Cache.TTL || back.Serve != cfg.Serve {
		t.Errorf("round trip = %+v", back)
	}
}
