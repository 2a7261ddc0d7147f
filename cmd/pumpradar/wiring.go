package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/application"
	"github.com/sawpanic/pumpradar/internal/config"
	"github.com/sawpanic/pumpradar/internal/data/exchanges/binance"
	"github.com/sawpanic/pumpradar/internal/data/exchanges/fake"
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	alertsink "github.com/sawpanic/pumpradar/internal/interfaces/alerts"
	"github.com/sawpanic/pumpradar/internal/persistence/postgres"
)

var offlineSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT", "PEPEUSDT", "WIFUSDT", "BONKUSDT", "FLOKIUSDT"}

// market is an exchange adapter that can also enumerate its symbols
type market interface {
	interfaces.MarketDataSource
	interfaces.SymbolLister
}

func loadConfig(cmd *cobra.Command) (*config.Config, bool, error) {
	path, _ := cmd.Flags().GetString("config")
	offline, _ := cmd.Flags().GetBool("offline")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, err
	}
	if offline {
		cfg.Universe.MinQuoteVolume = 0
	}
	return cfg, offline, nil
}

func newMarket(cfg *config.Config, offline bool) market {
	if offline {
		log.Warn().Msg("Offline mode: market data is generated")
		return fake.NewGeneratingAdapter(offlineSymbols...)
	}
	return binance.NewAdapter(cfg.Provider.BaseURL, cfg.Provider.UserAgent, cfg.Provider.Timeout)
}

// resources are the process-lifetime handles opened for the configured sinks
type resources struct {
	hub     *alertsink.Hub
	closers []func() error
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Close failed")
		}
	}
}

// buildSinks fans alerts out to every configured sink
func buildSinks(ctx context.Context, cfg *config.Config, res *resources) (*alertsink.MultiSink, error) {
	multi := alertsink.NewMultiSink()
	for _, name := range cfg.Alerts.Sinks {
		switch strings.ToLower(name) {
		case "log":
			multi.Add("log", alertsink.NewLogSink())
		case "postgres":
			if cfg.Alerts.DatabaseURL == "" {
				return nil, fmt.Errorf("postgres sink needs alerts.database_url")
			}
			db, err := postgres.Open(ctx, cfg.Alerts.DatabaseURL)
			if err != nil {
				return nil, err
			}
			res.closers = append(res.closers, db.Close)
			repo := postgres.NewAlertRepo(db, 0)
			if err := repo.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate alert journal: %w", err)
			}
			multi.Add("postgres", alertsink.NewJournalSink(repo))
		case "websocket":
			res.hub = alertsink.NewHub()
			multi.Add("websocket", res.hub)
		}
	}
	if multi.Len() == 0 {
		multi.Add("log", alertsink.NewLogSink())
	}
	return multi, nil
}

func buildCooldowns(ctx context.Context, cfg *config.Config, res *resources) (alerts.CooldownStore, error) {
	if cfg.Alerts.RedisAddr == "" {
		return alerts.NewMemoryCooldowns(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Alerts.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Alerts.RedisAddr, err)
	}
	res.closers = append(res.closers, client.Close)
	log.Info().Str("addr", cfg.Alerts.RedisAddr).Msg("Alert cooldowns shared through Redis")
	return alerts.NewRedisCooldowns(client, ""), nil
}

func newWatcher(cfg *config.Config, src market, sink alerts.Sink, cooldowns alerts.CooldownStore, telemetry application.Telemetry) (*application.Watcher, error) {
	return application.NewWatcher(cfg, application.Deps{
		Source:    src,
		Lister:    src,
		Sink:      sink,
		Cooldowns: cooldowns,
		Telemetry: telemetry,
	})
}
