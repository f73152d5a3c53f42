package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gabrielascui/xenium-to-qupath/pkg/buildinfo"
	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/config"
	apperrors "github.com/gabrielascui/xenium-to-qupath/pkg/errors"
	"github.com/gabrielascui/xenium-to-qupath/pkg/httputil"
	"github.com/gabrielascui/xenium-to-qupath/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Convert Xenium cell segmentation stores to QuPath GeoJSON",
		Long: `xenium-to-qupath reads the cell and nucleus polygons of a 10x Genomics
Xenium cells.zarr store and writes one GeoJSON feature per cell, ready to
import into QuPath. It can also serve the converted cells over HTTP.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var verbose bool
	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/xenium-to-qupath/config.toml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentPreRun = func(*cobra.Command, []string) {
		if verbose {
			c.SetLogLevel(LogDebug)
		}
	}

	root.AddCommand(c.convertCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.cellIDCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// config loads the configuration once per process.
func (c *CLI) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner backed by the configured cache.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	cc, err := c.newCache(ctx, cfg, noCache)
	if err != nil {
		return nil, err
	}
	r := pipeline.NewRunner(cc, cfg.Keyer(), c.Logger)
	r.TTL = cfg.Cache.TTL
	return r, nil
}

func (c *CLI) newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		c.Logger.Debug("no cache directory, caching disabled", "error", err)
		return cache.NewNullCache(), nil
	}
	return cache.New(ctx, cfg.CacheBackend(dir))
}

// resolveInput downloads http(s) inputs into the store cache and returns
// the local path. Other inputs are returned unchanged.
func (c *CLI) resolveInput(ctx context.Context, input string) (string, error) {
	if !httputil.IsRemote(input) {
		return input, nil
	}
	dir, err := storesDir()
	if err != nil {
		return "", fmt.Errorf("get cache dir: %w", err)
	}
	cfg, err := c.config()
	if err != nil {
		return "", err
	}
	d, err := httputil.NewDownloader(dir, cfg.Cache.TTL)
	if err != nil {
		return "", err
	}

	spinner := newSpinnerWithContext(ctx, "Downloading "+input+"...")
	spinner.Start()
	path, cached, err := d.Fetch(ctx, input)
	if err != nil {
		spinner.StopWithError("Download failed")
		return "", fmt.Errorf("download: %w", err)
	}
	spinner.Stop()
	c.Logger.Debug("resolved remote store", "url", input, "path", path, "cached", cached)
	return path, nil
}

// Exit codes returned by ExitCode.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitBadStore    = 2   // the input store violates a conversion invariant
	ExitInterrupted = 130 // shell convention for SIGINT
)

// ExitCode maps the error returned by the root command to a process exit
// code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case apperrors.IsConversion(err):
		return ExitBadStore
	}
	return ExitFailure
}

// =============================================================================
// Paths
// =============================================================================

// storesDir holds downloaded remote stores.
func storesDir() (string, error) {
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stores"), nil
}

// cacheDir returns the cache directory using XDG standard (~/.cache/xenium-to-qupath/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
