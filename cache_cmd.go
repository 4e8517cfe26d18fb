package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/ttsync/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the on-disk audio cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audio cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := cacheStore()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		return printCacheStats(cmd.OutOrStdout(), store.Dir(), store.Stats())
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached audio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := cacheStore()
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		freed := store.Stats().Size
		if err := store.Clear(); err != nil {
			return fmt.Errorf("unable to clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Freed %s\n", humanize.IBytes(uint64(max(freed, 0)))) //nolint:gosec
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

func cacheStore() (*cache.DiskStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openDiskStore(cfg.Cache)
}

func printCacheStats(w io.Writer, dir string, s cache.Stats) error {
	used := humanize.IBytes(uint64(max(s.Size, 0)))      //nolint:gosec
	limit := humanize.IBytes(uint64(max(s.Capacity, 0))) //nolint:gosec
	_, err := fmt.Fprintf(w, "%s\n  %s of %s in %s entries\n",
		keyword(dir), used, limit, humanize.Comma(s.ItemCount))
	return err //nolint:wrapcheck
}
