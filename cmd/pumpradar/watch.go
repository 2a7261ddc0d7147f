package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/sawpanic/pumpradar/internal/interfaces/http"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the periodic scans until interrupted",
		Long:  "Starts every scan on its own interval and serves the control API, metrics and alert stream",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().String("profile", "", "Sensitivity profile override (conservative|balanced|aggressive|custom)")
	cmd.Flags().Bool("no-http", false, "Disable the control and metrics server")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, offline, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if p, _ := cmd.Flags().GetString("profile"); p != "" {
		cfg.Volume.Profile = p
	}
	if noHTTP, _ := cmd.Flags().GetBool("no-http"); noHTTP {
		cfg.HTTP.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := &resources{}
	defer res.Close()

	sink, err := buildSinks(ctx, cfg, res)
	if err != nil {
		return err
	}
	cooldowns, err := buildCooldowns(ctx, cfg, res)
	if err != nil {
		return err
	}

	metrics := httpapi.NewMetricsRegistry()
	watcher, err := newWatcher(cfg, newMarket(cfg, offline), sink, cooldowns, metrics)
	if err != nil {
		return err
	}
	metrics.RegisterGauges(watcher)

	var server *httpapi.Server
	serverErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		server = newServer(cfg.HTTP.Addr, watcher, metrics, res)
		go func() { serverErr <- server.Start() }()
	}
	if res.hub != nil {
		go res.hub.Run(ctx)
	}

	if err := watcher.StartWatch(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	if err := watcher.StopWatch(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Watch stop reported an error")
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
	}
	return nil
}
