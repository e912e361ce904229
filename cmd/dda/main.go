package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ddaharness/cmd/dda/ui"
	"ddaharness/internal/config"
	"ddaharness/internal/logging"
	"ddaharness/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration
	jsonOutput bool

	cfg    *config.Config
	logger *zap.Logger
	styles = ui.DefaultStyles()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dda",
	Short: "Run Delay Differential Analysis and decode its results",
	Long: `dda drives the external DDA binary: it builds the order-sensitive
command line from an analysis request, runs the binary (native or
shell-bootstrapped), and decodes the per-variant output files into
channel x window matrices.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.Initialize(cfg.Logging.Options())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Config("Loaded config from %s (binary=%s)", configPath, cfg.Binary.Path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dda.yaml", "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Overall operation timeout (0 = per-run config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(variantsCmd)
	rootCmd.AddCommand(maskCmd)
	rootCmd.AddCommand(edfCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.Error.Render("error:"), err)
		os.Exit(1)
	}
}

// commandContext honors --timeout and stops on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// openStore opens the run history, or returns nil when it is disabled.
func openStore() (*store.RunStore, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	return store.Open(cfg.Store.DatabasePath, cfg.Store.StoreMatrices)
}
