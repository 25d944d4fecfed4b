package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/riverglen/backreplay/internal/config"
	"github.com/riverglen/backreplay/internal/data"
	"github.com/riverglen/backreplay/internal/engine"
	"github.com/riverglen/backreplay/internal/logger"
	"github.com/riverglen/backreplay/internal/metrics"
)

var (
	sqlitePath string
	timeout    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backtest job synchronously and write the egress files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := loadPayload()
		if err != nil {
			return err
		}
		payload = config.ApplyDefaults(payload)

		store, err := openStore()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		eng := engine.New(store, config.DataDir())
		res, err := eng.Run(ctx, payload)
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}

		logger.Infof("run %s: %s", res.RunID, res.Status)
		if res.Message != "" {
			logger.Infof("run %s: %s", res.RunID, res.Message)
		}
		if len(res.Ledger) > 0 {
			finalBalance := res.Ledger[len(res.Ledger)-1].UnrealizedBalance
			fmt.Println(metrics.Summary(res.Metrics, finalBalance))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "use the SQL store backed by this SQLite file instead of per-symbol CSVs")
	runCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Hour, "wall-clock budget for the whole job")
}

func openStore() (data.Store, error) {
	if sqlitePath != "" {
		return data.NewSQLStore(sqlitePath)
	}
	return data.NewCSVStore(config.DataDir()), nil
}
