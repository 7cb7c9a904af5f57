// rawgate validates raw CSV batch files against a schema, loads the good
// ones into a database table and exports the table for training or
// prediction.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logflow/rawgate/pkg/config"
	"github.com/logflow/rawgate/pkg/telemetry"

	// Registers the duckdb dialect.
	_ "github.com/logflow/rawgate/pkg/store/duckdb"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
	verbose    bool
)

// Resolved in PersistentPreRunE.
var (
	cfg             *config.Config
	logger          *slog.Logger
	shutdownTracing func(context.Context) error
	configManager   = config.NewManager()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rawgate",
	Short: "rawgate - validate and ingest raw CSV batches",
	Long: `rawgate validates batch files against a schema document, quarantines the
files that fail, loads the rest into a database table and exports the table
as the snapshot consumed by training or prediction.

Configuration is read from /etc/rawgate/config.yaml, ~/.rawgate/config.yaml,
./.rawgate.yaml, the --config file and RAWGATE_* environment variables.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTracing == nil {
			return nil
		}
		return shutdownTracing(context.Background())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rawgate %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (applied after the default locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(versionCmd)
}

// setup loads configuration, builds the logger and starts tracing.
func setup(cmd *cobra.Command, args []string) error {
	if err := configManager.Load(configFile); err != nil {
		return err
	}
	cfg = configManager.Get()

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.Any("paths", configManager.GetPaths()))

	cfg.Telemetry.ServiceVersion = version
	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return err
	}
	shutdownTracing = shutdown
	return nil
}

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
