package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tallyho-dev/tallyho/internal/config"
	"github.com/tallyho-dev/tallyho/internal/engine"
	"github.com/tallyho-dev/tallyho/internal/model"
	"github.com/tallyho-dev/tallyho/internal/service"
	"github.com/tallyho-dev/tallyho/internal/storage"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the reconciliation pipeline",
		Long: `Run the full reconciliation pipeline: fetch all three record domains,
build lookup indexes, aggregate gateway disbursements, run the matching
cascade, resolve settlement chains, and classify everything that remains.

Examples:
  tallyho reconcile                 # Full run, writes annotations
  tallyho reconcile --dry-run       # Full cascade, no writes, summary only
  tallyho reconcile --two-pass      # Re-run matching after the fallback
  tallyho reconcile --source bank   # Limit to one domain`,
		RunE: runReconcile,
	}

	cmd.Flags().Bool("dry-run", false, "Execute the cascade without writing annotations")
	cmd.Flags().Bool("two-pass", false, "Run the matching cascade a second time after the fallback")
	cmd.Flags().StringSlice("source", nil, "Limit to specific domains (bank, gateway, invoice)")

	_ = viper.BindPFlag("reconcile.dry_run", cmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("reconcile.two_pass", cmd.Flags().Lookup("two-pass"))
	_ = viper.BindPFlag("reconcile.source", cmd.Flags().Lookup("source"))

	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	cfg, err := config.EngineConfig()
	if err != nil {
		return fmt.Errorf("failed to assemble engine config: %w", err)
	}

	eng, err := engine.New(store, cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	var domains []model.SourceDomain
	for _, s := range viper.GetStringSlice("reconcile.source") {
		domains = append(domains, model.SourceDomain(s))
	}

	summary, err := eng.Run(ctx, engine.Options{
		DryRun:       viper.GetBool("reconcile.dry_run"),
		TwoPass:      viper.GetBool("reconcile.two_pass"),
		DomainFilter: domains,
	})
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	printSummary(cmd, summary)
	return nil
}

func printSummary(cmd *cobra.Command, summary *service.RunSummary) {
	cmd.Printf("Run %s finished in %s\n", summary.RunID, summary.Duration().Round(1e6))
	if summary.DryRun {
		cmd.Println("(dry run: no annotations were written)")
	}
	if !summary.Complete() {
		cmd.Println("WARNING: one or more sources fetched incompletely; results understate coverage")
		for _, src := range summary.Sources {
			if !src.Complete {
				cmd.Printf("  %s: %d records over %d pages (%s)\n", src.Domain, src.Fetched, src.Pages, src.Error)
			}
		}
	}

	cmd.Printf("\nCoverage: %.1f%% (%d of %d inflow records classified)\n",
		summary.CoveragePercent, summary.Classified, summary.TotalInflow)
	cmd.Printf("Chain resolution: %d fully, %d partially, %d unresolved\n",
		summary.Chain.FullyResolved, summary.Chain.PartiallyResolved, summary.Chain.Unresolved)

	if len(summary.StrategyCounts) > 0 {
		cmd.Println("\nMatches by strategy:")
		strategies := make([]model.StrategyID, 0, len(summary.StrategyCounts))
		for s := range summary.StrategyCounts {
			strategies = append(strategies, s)
		}
		sort.Slice(strategies, func(i, j int) bool {
			return strategies[i].Priority() < strategies[j].Priority()
		})
		for _, s := range strategies {
			cmd.Printf("  %-24s %d\n", s, summary.StrategyCounts[s])
		}
	}

	if len(summary.Samples) > 0 {
		cmd.Printf("\nSample decisions (%d shown):\n", len(summary.Samples))
		for _, s := range summary.Samples {
			if s.TargetID != "" {
				cmd.Printf("  %s -> %s via %s (%.2f)\n", s.TransactionID, s.TargetID, s.StrategyID, s.Confidence)
			} else {
				cmd.Printf("  %s -> %s via %s (%.2f)\n", s.TransactionID, s.AccountCode, s.StrategyID, s.Confidence)
			}
		}
	}

	if len(summary.MergeErrors) > 0 {
		cmd.Printf("\n%d records failed to merge and keep their previous state:\n", len(summary.MergeErrors))
		for _, e := range summary.MergeErrors {
			cmd.Printf("  %s\n", e)
		}
	}
}

func openStore(ctx context.Context) (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		closeStore(store)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.SQLiteStore) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
