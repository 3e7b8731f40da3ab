// Command pipeline drives ingestion and the processing stages from the
// command line.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dealgraph/pkg/core/attribution"
	"dealgraph/pkg/core/banks"
	"dealgraph/pkg/core/cluster"
	"dealgraph/pkg/core/config"
	"dealgraph/pkg/core/edgar"
	"dealgraph/pkg/core/pipeline"
	"dealgraph/pkg/core/store"
)

type app struct {
	cfg   *config.Config
	store *store.PostgresStore
	orch  *pipeline.Orchestrator
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := store.InitDB(ctx); err != nil {
		return nil, err
	}
	pg := store.NewPostgresStore(store.GetPool())
	if err := pg.Migrate(ctx); err != nil {
		return nil, err
	}

	attrCfg, err := attribution.LoadConfig(cfg.AttributionConfigPath)
	if err != nil {
		return nil, err
	}
	client, err := edgar.NewClient(edgar.Options{
		UserAgent:  cfg.UserAgent(),
		BaseURL:    cfg.SECBaseURL,
		RateLimit:  cfg.SECRateLimitRequests,
		RateWindow: time.Duration(cfg.SECRateLimitWindow) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:   cfg,
		store: pg,
		orch:  pipeline.New(pg, client, attrCfg),
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:   "pipeline",
		Short: "Deal graph ingestion and processing pipeline",
	}

	var fromDate, toDate string
	ingestCmd := &cobra.Command{
		Use:   "ingest <cik> [cik...]",
		Short: "Fetch M&A filings for the given CIKs and extract facts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, cik := range args {
				stats, err := a.orch.Ingest(ctx, cik, fromDate, toDate)
				if err != nil {
					return fmt.Errorf("ingest CIK %s: %w", cik, err)
				}
				fmt.Printf("CIK %s: %d filings ingested, %d skipped, %d facts, %d alerts\n",
					cik, stats.FilingsIngested, stats.FilingsSkipped, stats.FactsExtracted, stats.AlertsRaised)
			}
			return nil
		},
	}
	ingestCmd.Flags().StringVar(&fromDate, "from", "", "earliest filing date (YYYY-MM-DD)")
	ingestCmd.Flags().StringVar(&toDate, "to", "", "latest filing date (YYYY-MM-DD)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the processing stages over all stored facts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := a.orch.RunPipeline(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("deals created: %d, events: %d, banks resolved: %d, deals estimated: %d\n",
				stats.Cluster.DealsCreated, stats.Reconcile.EventsCreated,
				stats.Banks.Resolved, stats.Attribution.DealsEstimated)
			return nil
		},
	}

	seedBanksCmd := &cobra.Command{
		Use:   "seed-banks",
		Short: "Load the canonical bank reference set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := banks.Seed(ctx, a.store)
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d banks\n", n)
			return nil
		},
	}

	var seedFile string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load well-known deals from the seed manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := pipeline.SeedDeals(ctx, a.store, seedFile)
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d deals from %s\n", n, seedFile)
			return nil
		},
	}
	seedCmd.Flags().StringVar(&seedFile, "file", "seed/seed_deals.yaml", "seed manifest path")

	mergeScanCmd := &cobra.Command{
		Use:   "merge-scan",
		Short: "Scan for duplicate deals and merge them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stats := &cluster.Stats{}
			if err := cluster.New(a.store).MergeScan(ctx, stats); err != nil {
				return err
			}
			fmt.Printf("merged %d duplicate deals\n", stats.DealsMerged)
			return nil
		},
	}

	root.AddCommand(ingestCmd, runCmd, seedBanksCmd, seedCmd, mergeScanCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Printf("[Pipeline] %v", err)
		os.Exit(1)
	}
}
