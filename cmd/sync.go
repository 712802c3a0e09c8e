package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var withSnapshots bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass and exit",
	Long:  `Read the plan worksheets, reconcile them against the database, and exit. Useful for cron-style deployments and manual catch-ups`,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&withSnapshots, "snapshots", false, "also capture snapshots after the pass")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigAndLogging()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.close()

	run, err := application.syncService.Sync(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Int("synced", run.SyncedCount).
		Int("created", run.CreatedCount).
		Int("updated", run.UpdatedCount).
		Int("ignored", run.IgnoredCount).
		Int("skipped", run.SkippedCount).
		Msg("Reconciliation pass complete")

	if withSnapshots {
		if err := application.snapshotService.Capture(ctx); err != nil {
			return err
		}
		log.Info().Msg("Snapshots captured")
	}
	return nil
}
