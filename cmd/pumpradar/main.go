package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "pumpradar"
	version = "v0.4.0"
)

func main() {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Layered pump and volume anomaly scanner for spot markets",
		Version: version,
		Long: `pumpradar watches a universe of spot symbols for early pump signatures.

A three layer pipeline promotes candidates from fast 5m momentum through 1h
confirmation to 4h validation, and a separate detector flags volume spikes
across several timeframes. Alerts are deduplicated per symbol and detector.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			jsonLogs, _ := cmd.Flags().GetBool("json-logs")
			return setupLogging(os.Stderr, level, jsonLogs || !term.IsTerminal(int(os.Stderr.Fd())))
		},
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newProfilesCmd())

	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to YAML config (defaults apply when empty)")
	fs.String("log-level", "info", "Log level (debug|info|warn|error)")
	fs.Bool("json-logs", false, "Force JSON log output")
	fs.Bool("offline", false, "Use generated market data instead of the exchange")
}

func setupLogging(out io.Writer, level string, jsonOut bool) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if jsonOut {
		log.Logger = zerolog.New(out).With().Timestamp().Str("app", appName).Logger()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	return nil
}
