package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/index"
	xio "github.com/gabrielascui/xenium-to-qupath/pkg/io"
	"github.com/gabrielascui/xenium-to-qupath/pkg/observability"
	"github.com/gabrielascui/xenium-to-qupath/pkg/pipeline"
	"github.com/gabrielascui/xenium-to-qupath/pkg/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr       string
		pixelScale float64
		limit      int
		noCache    bool
		noMetrics  bool
	)

	cmd := &cobra.Command{
		Use:   "serve [cells.zarr | cells.zarr.zip | cells.geojson]",
		Short: "Serve converted cells over HTTP",
		Long: `Serve converted cells over HTTP.

The input is either a Xenium cell store, converted on startup (cached like
'convert'), or a GeoJSON file written earlier.

Endpoints:
  GET /healthz               status and extent
  GET /collection            the full FeatureCollection
  GET /cells?bbox=x0,y0,x1,y1  cells intersecting a box, in pixels
  GET /cells/{id}            one cell by numeric id or name (e.g. ffkpbaba-1)
  GET /metrics               Prometheus metrics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Serve.Addr
			}
			if cmd.Flags().Changed("pixel-scale") {
				if err := apperrors.ValidatePixelScale(pixelScale); err != nil {
					return err
				}
			} else {
				pixelScale = cfg.PixelScale
			}
			metrics := cfg.Serve.Metrics && !noMetrics
			return c.runServe(cmd.Context(), args[0], addr, pixelScale, limit, noCache, metrics)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().Float64Var(&pixelScale, "pixel-scale", cells.DefaultPixelScale, "microns per pixel (store input)")
	cmd.Flags().IntVar(&limit, "limit", server.DefaultLimit, "maximum cells per bbox query")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "disable /metrics")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, input, addr string, pixelScale float64, limit int, noCache, metrics bool) error {
	opts := server.Options{Logger: c.Logger, Limit: limit}
	if metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		hooks := observability.NewPrometheusHooks(reg)
		observability.SetPipelineHooks(hooks)
		observability.SetCacheHooks(hooks)
		observability.SetHTTPHooks(hooks)
		opts.Gatherer = reg
	}

	coll, err := c.loadCollection(ctx, input, pixelScale, noCache)
	if err != nil {
		return err
	}

	prog := newProgress(c.Logger)
	idx := index.New(coll)
	prog.done("Indexed cells", "cells", idx.Len())

	printInfo("Serving %s cells on %s", StyleNumber.Render(fmt.Sprint(idx.Len())), StyleLink.Render("http://"+addr))
	return server.New(idx, opts).ListenAndServe(ctx, addr)
}

// loadCollection reads a GeoJSON file or converts a store.
func (c *CLI) loadCollection(ctx context.Context, input string, pixelScale float64, noCache bool) (*cells.Collection, error) {
	input, err := c.resolveInput(ctx, input)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".geojson", ".json":
		coll, err := xio.ImportGeoJSON(input)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", input, err)
		}
		return coll, nil
	}

	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return nil, fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Converting %s...", filepath.Base(input)))
	spinner.Start()
	coll, err := runner.Convert(ctx, pipeline.Options{Input: input, PixelScale: pixelScale})
	if err != nil {
		spinner.StopWithError("Conversion failed")
		return nil, fmt.Errorf("convert: %w", err)
	}
	spinner.Stop()
	return coll, nil
}
