// Package pkg provides the core libraries for converting Xenium cell
// segmentation stores into QuPath-compatible GeoJSON.
//
// # Overview
//
// A Xenium run exports its cell and nucleus outlines as a zarr store of
// ragged polygon arrays. QuPath imports cells as GeoJSON features carrying
// a boundary polygon and a nucleus polygon. The pkg directory is organized
// into four main areas:
//
//  1. [cells], [cellid] - Domain logic (decode, transform, merge)
//  2. [store], [io] - Reading zarr stores and writing GeoJSON
//  3. [pipeline], [sink], [index], [server] - Orchestration and outputs
//  4. [cache], [config], [errors], [observability], [httputil] - Infrastructure
//
// # Architecture
//
// The typical data flow:
//
//	cells.zarr.zip (local or https)
//	         ↓
//	    [store] package (zarr arrays: cell_id, polygon_sets/{0,1}/...)
//	         ↓
//	    [cells] package (decode rows → rings in microns → merged features)
//	         ↓
//	    [io] / [sink] packages (GeoJSON, NDJSON, MongoDB)
//	         ↓
//	    [index] + [server] (spatial queries over HTTP)
//
// # Quick Start
//
// Convert a store and write QuPath GeoJSON:
//
//	import (
//	    "context"
//
//	    "github.com/gabrielascui/xenium-to-qupath/pkg/cells"
//	    xio "github.com/gabrielascui/xenium-to-qupath/pkg/io"
//	    "github.com/gabrielascui/xenium-to-qupath/pkg/store"
//	)
//
//	src, _ := store.Open("cells.zarr.zip")
//	defer src.Close()
//
//	coll, _ := cells.Convert(context.Background(), src, cells.Options{})
//	xio.ExportGeoJSON(coll, "cells.geojson", xio.WriteOptions{Indent: 4})
//
// # Main Packages
//
// ## Domain Logic
//
// [cellid] - Xenium cell ids: the hex-to-letter encoding ("aaaaaaab") and
// display names with the dataset suffix ("aaaaaaab-1").
//
// [cells] - Polygon decoding, pixel-to-micron transform and the
// nucleus/boundary merge. Conversion errors are fatal and coded
// (SHAPE_MISMATCH, CORRUPT_POLYGON, UNKNOWN_CELL, EMPTY_POLYGON,
// MISSING_DATASET).
//
// ## Storage and Serialization
//
// [store] - Zarr v2 reader for directories and zip archives with zlib,
// gzip, zstd and blosc chunk codecs, plus an in-memory source for tests.
//
// [io] - GeoJSON FeatureCollection and NDJSON encoding, atomic file writes
// and GeoJSON import.
//
// ## Orchestration
//
// [pipeline] - Convert → encode runner used by the CLI and server. Caches
// collections by store fingerprint and pixel scale.
//
// [sink] - Publish destinations: files and MongoDB bulk upserts.
//
// [index] - R-tree over feature bounds with id and name lookups.
//
// [server] - Read-only HTTP API over an index (chi router, Prometheus).
//
// ## Infrastructure
//
// [cache] - File and Redis caches, key derivation and retry helpers.
//
// [config] - TOML configuration with .env and XQ_ environment overrides.
//
// [errors] - Coded errors shared by every package.
//
// [observability] - Hook interfaces with Prometheus implementations.
//
// [httputil] - Downloads remote stores into the local cache.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/cells/...              # Specific package
//	go test -run Example                 # Examples only
//
// [cells]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/cells
// [cellid]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/cellid
// [store]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/store
// [io]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/io
// [pipeline]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/pipeline
// [sink]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/sink
// [index]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/index
// [server]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/server
// [cache]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/cache
// [config]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/config
// [errors]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/errors
// [observability]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/observability
// [httputil]: https://pkg.go.dev/github.com/gabrielascui/xenium-to-qupath/pkg/httputil
package pkg
