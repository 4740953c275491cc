package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/passlens/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the compile response cache",
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the cache directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := openCache()
		if err != nil {
			return outputError(cmd, err)
		}
		return outputResult(cmd, CLIResult{Command: "cache path", Results: dc.Dir()})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := openCache()
		if err != nil {
			return outputError(cmd, err)
		}
		if err := dc.Clear(); err != nil {
			return outputError(cmd, fmt.Errorf("clearing cache: %w", err))
		}
		return outputResult(cmd, CLIResult{Command: "cache clear", Results: "cleared " + dc.Dir()})
	},
}

func init() {
	cacheCmd.AddCommand(cachePathCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache() (*cache.DiskCache, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, err
	}
	return cache.Open(cfg.Cache.Dir)
}
