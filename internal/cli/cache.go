package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gabrielascui/xenium-to-qupath/pkg/cache"
	"github.com/gabrielascui/xenium-to-qupath/pkg/httputil"
)

// cacheCommand groups the local cache subcommands.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached conversions and downloaded stores",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Remove cached conversions and downloaded stores",
			Long: `Remove cached conversions and downloaded stores from the local cache
directory. Entries in a Redis backend are left to expire on their own.`,
			RunE: func(cmd *cobra.Command, args []string) error { return c.clearCache() },
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the cache directory path",
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := c.fileCacheDir()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
				return nil
			},
		},
	)
	return cmd
}

// fileCacheDir is the configured cache.dir, or the XDG cache directory.
func (c *CLI) fileCacheDir() (string, error) {
	if cfg, err := c.config(); err == nil && cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return "", fmt.Errorf("get cache dir: %w", err)
	}
	return dir, nil
}

func (c *CLI) clearCache() error {
	dir, err := c.fileCacheDir()
	if err != nil {
		return err
	}

	entries := 0
	if _, err := os.Stat(dir); err == nil {
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return err
		}
		if entries, err = fc.Clear(); err != nil {
			return err
		}
	}

	stores := 0
	if sd, err := storesDir(); err == nil {
		if _, err := os.Stat(sd); err == nil {
			d, err := httputil.NewDownloader(sd, 0)
			if err != nil {
				return err
			}
			if stores, err = d.Clear(); err != nil {
				return err
			}
		}
	}

	if entries == 0 && stores == 0 {
		printInfo("Cache is empty")
		return nil
	}
	printSuccess("Cleared %d cached conversions and %d downloaded stores", entries, stores)
	printDetail("Directory: %s", dir)
	return nil
}
