package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/workstat/internal/store"
)

var clearConfirm string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached districts and metrics",
	Long:  "Deletes every cached record. Requires --confirm CLEAR_CACHE to guard against accidental wipes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if clearConfirm != clearConfirmToken {
			return eris.New("refusing to clear cache: pass --confirm CLEAR_CACHE")
		}

		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		metrics, err := env.Store.DeleteAll(ctx, store.EntityMetrics)
		if err != nil {
			return eris.Wrap(err, "clear metrics")
		}
		districts, err := env.Store.DeleteAll(ctx, store.EntityDistricts)
		if err != nil {
			return eris.Wrap(err, "clear districts")
		}

		zap.L().Info("cache cleared",
			zap.Int64("districts", districts),
			zap.Int64("metrics", metrics),
		)
		fmt.Printf("deleted %d districts and %d metric records\n", districts, metrics)
		return nil
	},
}

func init() {
	clearCmd.Flags().StringVar(&clearConfirm, "confirm", "", "confirmation token (CLEAR_CACHE)")
	rootCmd.AddCommand(clearCmd)
}
