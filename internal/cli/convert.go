package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cells"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/httputil"
	"github.com/gabrielascui/xenium-to-qupath/pkg/pipeline"
	"github.com/gabrielascui/xenium-to-qupath/pkg/sink"
)

// stdoutPath selects standard output for --output.
const stdoutPath = "-"

// convertFlags holds the command-line flags for the convert command.
type convertFlags struct {
	output     string
	formats    string
	pixelScale float64
	indent     int
	sequential bool
	noCache    bool
	refresh    bool
	mongo      bool
}

// convertCommand creates the convert command.
func (c *CLI) convertCommand() *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert [cells.zarr | cells.zarr.zip]",
		Short: "Convert a Xenium cell store to GeoJSON",
		Long: `Convert a Xenium cell store to GeoJSON.

Each cell becomes one feature carrying its boundary polygon as "geometry" and
its nucleus polygon as "nucleusGeometry". Coordinates are divided by the pixel
size so they land in image pixels.

Results are cached by store contents and pixel size; --refresh recomputes.
With --mongo the features are also upserted into the configured MongoDB
collection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("pixel-scale") {
				// Zero would otherwise fall back to the default scale.
				if err := apperrors.ValidatePixelScale(flags.pixelScale); err != nil {
					return err
				}
			} else {
				flags.pixelScale = cfg.PixelScale
			}
			if !cmd.Flags().Changed("indent") {
				flags.indent = cfg.Indent
			}
			if !cmd.Flags().Changed("output") {
				flags.output = cfg.Output
			}
			if !cmd.Flags().Changed("format") && flags.formats == "" {
				flags.formats = cfg.Format
			}
			return c.runConvert(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (single format), base path (multiple) or - for stdout")
	cmd.Flags().StringVarP(&flags.formats, "format", "f", "", "output format(s): geojson (default), ndjson (comma-separated)")
	cmd.Flags().Float64Var(&flags.pixelScale, "pixel-scale", cells.DefaultPixelScale, "microns per pixel")
	cmd.Flags().IntVar(&flags.indent, "indent", pipeline.DefaultIndent, "GeoJSON indentation, 0 for compact")
	cmd.Flags().BoolVar(&flags.sequential, "sequential", false, "assemble polygon sets one after the other")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "ignore cached results")
	cmd.Flags().BoolVar(&flags.mongo, "mongo", false, "also publish features to MongoDB")

	return cmd
}

// runConvert converts input and publishes the collection to every sink.
func (c *CLI) runConvert(ctx context.Context, input string, flags convertFlags) error {
	formats := pipeline.ParseFormats(flags.formats)
	if err := pipeline.ValidateFormats(formats); err != nil {
		return err
	}
	if flags.output == stdoutPath && len(formats) != 1 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "--output - needs exactly one format")
	}

	local, err := c.resolveInput(ctx, input)
	if err != nil {
		return err
	}

	runner, err := c.newRunner(ctx, flags.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	indent := flags.indent
	if indent == 0 {
		indent = -1
	}

	opts := pipeline.Options{
		Input:      local,
		PixelScale: flags.pixelScale,
		Formats:    formats,
		Indent:     indent,
		Sequential: flags.sequential,
		Refresh:    flags.refresh,
	}

	prog := newProgress(c.Logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Converting %s...", filepath.Base(input)))
	if flags.output != stdoutPath {
		spinner.Start()
	}
	res, err := runner.Execute(ctx, opts)
	spinner.Stop()
	if err != nil {
		return err
	}
	coll, cacheHit := res.Collection, res.CacheInfo.CollectionHit
	prog.done(fmt.Sprintf("Converted %d cells", coll.Len()), "cached", cacheHit, "convert", res.Stats.ConvertTime, "encode", res.Stats.EncodeTime)

	sinks, err := c.buildSinks(ctx, input, res.Fingerprint, res.Artifacts, indent, flags)
	if err != nil {
		return err
	}
	for _, s := range sinks {
		defer s.Close(context.WithoutCancel(ctx))
	}

	for _, s := range sinks {
		if err := sink.Publish(ctx, s, coll); err != nil {
			return fmt.Errorf("publish to %s: %w", s.Name(), err)
		}
		switch s := s.(type) {
		case *stdoutSink:
		case *sink.FileSink:
			printFile(s.Path)
		default:
			printSuccess("Published %d cells to %s", coll.Len(), s.Name())
		}
	}

	if flags.output != stdoutPath {
		printStats(coll, cacheHit)
	}
	return nil
}

// buildSinks creates the file sinks for formats and, when requested, the
// MongoDB sink.
func (c *CLI) buildSinks(ctx context.Context, input, fingerprint string, artifacts map[string][]byte, indent int, flags convertFlags) ([]sink.Sink, error) {
	formats := pipeline.ParseFormats(flags.formats)
	var sinks []sink.Sink
	for _, format := range formats {
		if flags.output == stdoutPath {
			sinks = append(sinks, &stdoutSink{sink.FileSink{Path: stdoutPath, Format: format, Indent: indent, Data: artifacts[format]}})
			continue
		}
		out := outputPath(flags.output, input, format, len(formats) > 1)
		fs, err := sink.NewFileSink(out, format, indent)
		if err != nil {
			return nil, err
		}
		fs.Data = artifacts[format]
		sinks = append(sinks, fs)
	}

	if flags.mongo {
		cfg, err := c.config()
		if err != nil {
			return nil, err
		}
		ms, err := sink.NewMongoSink(ctx, cfg.MongoSink(fingerprint))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		sinks = append(sinks, ms)
	}
	return sinks, nil
}

// outputPath derives the file for one format. A single format writes to
// output as given; several formats treat output as a base path.
func outputPath(output, input, format string, multiple bool) string {
	ext := pipeline.FormatExtensions[format]
	if output != "" && !multiple {
		return output
	}
	base := output
	if base == "" {
		base = storeBase(input)
	} else {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base + ext
}

// storeBase strips the store suffixes from input: "out/cells.zarr.zip"
// becomes "out/cells". Remote inputs map to their file name in the
// working directory.
func storeBase(input string) string {
	if httputil.IsRemote(input) {
		if u, err := url.Parse(input); err == nil {
			input = path.Base(u.Path)
		}
	}
	base := strings.TrimRight(input, string(filepath.Separator))
	for _, suffix := range []string{".zip", ".zarr"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}

// stdoutSink writes the encoded collection to standard output.
type stdoutSink struct {
	sink.FileSink
}

func (s *stdoutSink) Name() string { return "stdout" }

func (s *stdoutSink) Publish(ctx context.Context, coll *cells.Collection) error {
	data, err := s.Encode(coll)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
