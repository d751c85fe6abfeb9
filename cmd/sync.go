package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/workstat/internal/model"
	"github.com/sells-group/workstat/internal/syncer"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch upstream data and reconcile it into the store",
	Long: `Pulls districts and monthly employment, works, and wage records from the
upstream API and upserts them into the local store.

A sync is skipped when the cached data is still fresh; use --force to sync
regardless of freshness.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Syncer.TriggerSync(ctx, syncForce)
		if err != nil && !errors.Is(err, syncer.ErrNoData) {
			return err
		}

		printRun(os.Stdout, run)
		if errors.Is(err, syncer.ErrNoData) {
			return err
		}
		return nil
	},
}

func printRun(out *os.File, run *model.SyncRun) {
	fmt.Fprintf(out, "run %s: %s (%s)\n", run.ID, run.Status, run.Duration.Round(time.Millisecond))
	switch run.Status {
	case model.RunStatusCompleted:
		fmt.Fprintf(out, "  districts: %d synced, %d failed of %d\n",
			run.Districts.Synced, run.Districts.Failed, run.Districts.Attempted)
		fmt.Fprintf(out, "  metrics:   %d synced, %d failed of %d\n",
			run.Metrics.Synced, run.Metrics.Failed, run.Metrics.Attempted)
	case model.RunStatusAlreadyCurrent:
		if run.LastUpdated != nil {
			fmt.Fprintf(out, "  data current as of %s\n", run.LastUpdated.Format("2006-01-02 15:04:05"))
		}
	case model.RunStatusFailed:
		zap.L().Error("sync failed", zap.String("run", run.ID), zap.String("error", run.Error))
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "sync even if cached data is fresh")
	rootCmd.AddCommand(syncCmd)
}
