// Package pipeline runs the store → collection → document conversion used
// by the CLI and the HTTP server.
//
// # Architecture
//
// The pipeline has two stages:
//
//  1. Convert: open the cell store, decode both polygon sets and merge them
//     into a [cells.Collection]. The result is cached under the store
//     fingerprint and pixel scale.
//  2. Encode: render the collection in each requested format (GeoJSON,
//     NDJSON).
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Input:   "cells.zarr.zip",
//	    Formats: []string{pipeline.FormatGeoJSON},
//	})
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("cells.geojson", result.Artifacts[pipeline.FormatGeoJSON], 0644)
package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/store"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultPixelScale is the Xenium pixel size in microns.
	DefaultPixelScale = cells.DefaultPixelScale

	// DefaultIndent matches the indentation QuPath users get from the
	// reference export scripts.
	DefaultIndent = 4
)

// Format constants for output formats.
const (
	FormatGeoJSON = "geojson"
	FormatNDJSON  = "ndjson"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatGeoJSON: true,
	FormatNDJSON:  true,
}

// FormatExtensions maps formats to file extensions.
var FormatExtensions = map[string]string{
	FormatGeoJSON: ".geojson",
	FormatNDJSON:  ".ndjson",
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options configures a pipeline run.
type Options struct {
	// Input is the path of the cell store. Ignored when Source is set.
	Input string `json:"input,omitempty"`

	PixelScale float64  `json:"pixel_scale,omitempty"`
	Formats    []string `json:"formats,omitempty"`

	// Indent is the JSON indentation for GeoJSON output. Negative values
	// write compact JSON; zero means DefaultIndent.
	Indent int `json:"indent,omitempty"`

	Sequential bool `json:"sequential,omitempty"`
	Refresh    bool `json:"refresh,omitempty"`

	// Runtime options (not serialized)
	Source store.Source `json:"-"`
	Logger *log.Logger  `json:"-"`

	validated bool
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Collection is the merged cell collection.
	Collection *cells.Collection

	// Fingerprint identifies the source store contents.
	Fingerprint string

	// Artifacts contains encoded outputs keyed by format.
	Artifacts map[string][]byte

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Features    int
	Shared      int
	Sets        [2]cells.SetStats
	ConvertTime time.Duration
	EncodeTime  time.Duration
}

// CacheInfo tracks cache hits.
type CacheInfo struct {
	CollectionHit bool // Whether the collection came from cache
}

// =============================================================================
// Validation
// =============================================================================

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid format: %q (must be one of: geojson, ndjson)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}

// ParseFormats splits a comma-separated format list. An empty string means
// GeoJSON.
func ParseFormats(s string) []string {
	if s == "" {
		return []string{FormatGeoJSON}
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(strings.ToLower(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// Calling it more than once has no further effect.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.ValidateForConvert(); err != nil {
		return err
	}
	if err := o.ValidateForEncode(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// ValidateForConvert checks the input and pixel scale.
func (o *Options) ValidateForConvert() error {
	if o.Source == nil && o.Input == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "input store is required")
	}
	if o.PixelScale == 0 {
		o.PixelScale = DefaultPixelScale
	}
	if err := apperrors.ValidatePixelScale(o.PixelScale); err != nil {
		return err
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// ValidateForEncode checks formats and applies encoding defaults.
func (o *Options) ValidateForEncode() error {
	if len(o.Formats) == 0 {
		o.Formats = []string{FormatGeoJSON}
	}
	if o.Indent == 0 {
		o.Indent = DefaultIndent
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return ValidateFormats(o.Formats)
}

// CollectionKeyOpts returns cache key options for the convert stage.
func (o *Options) CollectionKeyOpts() cache.CollectionKeyOpts {
	return cache.CollectionKeyOpts{PixelScale: o.PixelScale}
}

// sourceName names the input in logs and hooks.
func (o *Options) sourceName() string {
	if o.Input != "" {
		return o.Input
	}
	if s, ok := o.Source.(fmt.Stringer); ok {
		return s.String()
	}
	return "memory"
}
