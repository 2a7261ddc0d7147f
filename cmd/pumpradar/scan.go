package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	alertsink "github.com/sawpanic/pumpradar/internal/interfaces/alerts"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan SYMBOL",
		Short: "Score one symbol on every layer and detector right now",
		Long:  "Runs a one-off layered scan without touching tracked candidates or alert cooldowns",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, offline, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	watcher, err := newWatcher(cfg, newMarket(cfg, offline), alertsink.NewLogSink(), nil, nil)
	if err != nil {
		return err
	}

	res, err := watcher.ManualScan(cmd.Context(), args[0])
	if err != nil && res.Symbol == "" {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		return encErr
	}
	if res.WouldAlert {
		fmt.Fprintf(os.Stderr, "%s would alert at final score %.1f\n", res.Symbol, *res.FinalScore)
	}
	return err
}
