package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"symfetch/internal/config"
	"symfetch/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "symfetch",
	Short: "Fetch missing debug symbols for modules seen in crash reports",
	Long: `symfetch collects the modules referenced by recent crash reports,
asks a symbol server for the debug symbols that are not already known,
packages everything it obtained into a zip archive and publishes it.

Modules that the symbol server authoritatively does not have are remembered
in the skiplist and never requested again until removed with
"symfetch skiplist remove".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is the common case
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logger, err = logging.Initialize(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			File:    cfg.Logging.File,
			Verbose: verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "symfetch.yaml", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runCmd.Flags().StringVar(&modulesCSV, "modules", "", "Read modules from a dll,pdb,uuid list instead of crash records")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be fetched without fetching")

	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "Output CSV file (required)")
	extractCmd.Flags().BoolVar(&commitWatermark, "commit-watermark", false, "Advance the watermark past the extracted records")
	_ = extractCmd.MarkFlagRequired("out")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Show the attempts of one run")

	skiplistCmd.AddCommand(skiplistListCmd)
	skiplistCmd.AddCommand(skiplistAddCmd)
	skiplistCmd.AddCommand(skiplistRemoveCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(skiplistCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
