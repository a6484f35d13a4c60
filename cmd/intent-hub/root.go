package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/free4inno/intent-hub/internal/config"
	"github.com/free4inno/intent-hub/internal/core"
	"github.com/free4inno/intent-hub/internal/routestore"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "intent-hub",
	Short: "Semantic intent router with overlap diagnostics",
	Long: `Intent Hub routes free-text utterances to named intents by nearest-neighbor
search over an embedding space, and explains why intents overlap.`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default: ./config.yaml, then ~/.config/intent-hub/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// bootstrap loads the config, the settings, the route journal and builds
// the component graph.
func bootstrap(ctx context.Context, log *slog.Logger) (*config.AppConfig, *core.Manager, error) {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, nil, err
	}

	settings, err := config.NewSettingsManager(cfg.Storage.SettingsPath, cfg.Storage.EnvMirror)
	if err != nil {
		return nil, nil, err
	}
	store, err := routestore.New(cfg.Storage.RoutesPath)
	if err != nil {
		return nil, nil, err
	}
	manager := core.NewManager(log, settings, store)
	if err := manager.Init(ctx); err != nil {
		return nil, nil, err
	}
	return cfg, manager, nil
}
