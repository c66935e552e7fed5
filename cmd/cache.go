package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ptel-geocoder/internal/geocache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the local geocode cache",
}

var pruneOlderThanDays int

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete SQLite cache entries older than --older-than-days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Cache.Driver == "postgres" {
			return eris.New("cache: prune only supports the sqlite driver")
		}
		days := pruneOlderThanDays
		if days <= 0 {
			days = cfg.Cache.TTLDays
		}
		if days <= 0 {
			return eris.New("cache: --older-than-days must be > 0")
		}

		store, err := geocache.NewSQLite(cmd.Context(), cfg.Cache.DSN)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
		n, err := store.Prune(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries older than %d days\n", n, days)
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().IntVar(&pruneOlderThanDays, "older-than-days", 0, "age cutoff (default cache.ttl_days)")
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
