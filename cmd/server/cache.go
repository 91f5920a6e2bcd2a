package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func warmCacheCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "warm-cache",
		Short: "Load every enrolled template from the store into the template cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			n, err := a.biometric.WarmCache(ctx)
			if err != nil {
				return fmt.Errorf("warm cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "populated %d enrolled templates (%s)\n", n, a.biometric.CacheStats(ctx).Backend)
			return nil
		},
	}
}

func cacheStatsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cache-stats",
		Short: "Print template cache availability and size as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.biometric.CacheStats(ctx))
		},
	}
}
