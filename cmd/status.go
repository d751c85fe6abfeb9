package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/workstat/internal/report"
	"github.com/sells-group/workstat/internal/store"
)

var statusFreshness bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache totals and per-state freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if statusFreshness {
			fr, err := env.Reporter.Freshness(ctx)
			if err != nil {
				return err
			}
			printFreshness(os.Stdout, fr)
			return nil
		}

		cs, err := env.Reporter.CacheStatus(ctx)
		if err != nil {
			return err
		}
		printStatus(os.Stdout, cs)
		return nil
	},
}

func printStatus(out io.Writer, cs *report.CacheStatus) {
	fmt.Fprintf(out, "districts: %d\nmetrics:   %d\n", cs.TotalDistricts, cs.TotalMetrics)
	if cs.LatestUpdate != nil {
		fmt.Fprintf(out, "latest:    %s\n", cs.LatestUpdate.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "healthy:   %t\n\n", cs.Health.Districts && cs.Health.Metrics && cs.Health.Recent)

	printStateRows(out, cs.DataByState)
}

func printFreshness(out io.Writer, fr *report.Freshness) {
	if fr.Overall == nil {
		fmt.Fprintln(out, "no metrics cached yet, run 'workstat sync' first")
		return
	}
	fmt.Fprintf(out, "records: %d\n", fr.Overall.Count)
	fmt.Fprintf(out, "oldest:  %s\n", fr.Overall.Oldest.Format(time.RFC3339))
	fmt.Fprintf(out, "newest:  %s\n", fr.Overall.Newest.Format(time.RFC3339))
	fmt.Fprintf(out, "age:     %dh (stale: %t)\n\n", fr.Overall.AgeInHours, fr.Overall.IsStale)

	printStateRows(out, fr.ByState)
}

func printStateRows(out io.Writer, rows []store.StateAggregate) {
	if len(rows) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATE\tRECORDS\tOLDEST\tNEWEST")
	for _, s := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			s.StateName, s.Count,
			s.Oldest.Format("2006-01-02"), s.Newest.Format("2006-01-02"))
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().BoolVar(&statusFreshness, "freshness", false, "show freshness bounds instead of totals")
	rootCmd.AddCommand(statusCmd)
}
