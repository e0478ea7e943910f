package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"delta-hedger/internal/config"
	"delta-hedger/internal/logging"
	"delta-hedger/internal/store"
	"delta-hedger/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
}

// openStore opens the price database named in the config. Callers close it.
func (a *App) openStore() (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(a.Config.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.Config.Data.DBPath, err)
	}
	return s, nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: cfg.Dir,
		Logger:    logger,
	}

	rootCmd := &cobra.Command{
		Use:   "hedger",
		Short: "Delta-hedged short strangle backtester",
		Long: `hedger replays minute-level index and option prices to simulate selling
a short strangle at a target delta and hedging it intraday.

Each trading day is written to its own CSV under the run folder, so an
interrupted batch resumes where it stopped.

Use 'hedger <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Read by cmd/hedger before the config is loaded; declared here for help.
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/delta-hedger)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newDataCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("hedger v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and check the backtest configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.Path(app.ConfigDir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	b := cfg.Backtest
	output.Bold("Backtest")
	output.Printf("  Underlying:       %s\n", b.Underlying)
	output.Printf("  Window:           %s to %s (expiry day %s)\n", b.StartAfter, b.ScanExitTime, b.ExpiryDayExitTime)
	output.Printf("  Exposure:         %s\n", utils.FormatIndianCurrency(b.StartingExposure))
	output.Printf("  Target delta:     %.2f in %v\n", b.TargetDelta, b.DeltaRange)
	output.Printf("  Threshold:        %.2f%% of quantity\n", b.DeltaThresholdPct*100)
	output.Printf("  Max hedge ratio:  %.2f\n", b.MaxHedgeRatio)
	output.Printf("  Workers:          %d\n", b.Workers)
	output.Printf("  Only expiry:      %v\n", b.OnlyExpiry)
	output.Println()

	output.Bold("Data")
	output.Printf("  Database:         %s\n", cfg.Data.DBPath)
	output.Printf("  Results:          %s\n", cfg.Data.ResultsDir)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:            %s\n", cfg.Logging.Level)
	if cfg.Logging.File {
		output.Printf("  File:             %s\n", cfg.Logging.FilePath)
	}
	return nil
}
