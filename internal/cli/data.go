package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"delta-hedger/internal/store"
	"delta-hedger/pkg/utils"
)

type importFunc func(ctx context.Context, w store.PriceWriter, underlying, path string) (int, error)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage historical price data",
		Long: `Import minute-level index and option prices from CSV into the
SQLite database used by backtests, and inspect what is stored.`,
	}

	cmd.AddCommand(newImportCmd(app, "import-index", "Import index minute bars",
		"timestamp,open,high,low,close", store.ImportIndexCSV))
	cmd.AddCommand(newImportCmd(app, "import-options", "Import option minute closes",
		"timestamp,expiry,strike,option_type,close", store.ImportOptionCSV))
	cmd.AddCommand(newImportCmd(app, "import-expiries", "Import listed expiry dates",
		"expiry", store.ImportExpiryCSV))
	cmd.AddCommand(newDataStatusCmd(app))

	return cmd
}

func newImportCmd(app *App, use, short, columns string, load importFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <file.csv>...",
		Short: short,
		Long:  short + ".\n\nExpected columns: " + columns,
		Example: fmt.Sprintf("  hedger data %s NIFTY_2024.csv\n  hedger data %s -u BANKNIFTY jan.csv feb.csv",
			use, use),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			underlying, _ := cmd.Flags().GetString("underlying")
			if underlying == "" {
				underlying = app.Config.Backtest.Underlying
			}
			u, err := app.Config.Underlying(underlying)
			if err != nil {
				return err
			}

			s, err := app.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := context.Background()
			counts := make(map[string]int, len(args))
			total := 0
			for _, path := range args {
				n, err := load(ctx, s, u.Name, path)
				if err != nil {
					output.Error("Import of %s stopped after %d rows: %v", path, n, err)
					return err
				}
				app.Logger.Info().Str("file", path).Str("underlying", u.Name).Int("rows", n).Msg("Imported CSV")
				counts[path] = n
				total += n
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"underlying": u.Name, "files": counts, "rows": total})
			}
			output.Success("✓ Imported %s rows for %s", utils.FormatQuantity(int64(total)), u.Name)
			return nil
		},
	}

	cmd.Flags().StringP("underlying", "u", "", "index the rows belong to (default from config)")
	return cmd
}

func newDataStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored data per underlying",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, err := app.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			coverage, err := s.Coverage(context.Background())
			if err != nil {
				output.Error("Failed to read coverage: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(coverage)
			}
			if len(coverage) == 0 {
				output.Warning("No data in %s. Use 'hedger data import-index' to load bars.", app.Config.Data.DBPath)
				return nil
			}

			rows := make([][]string, 0, len(coverage))
			for _, c := range coverage {
				rows = append(rows, []string{
					strings.ToUpper(c.Underlying),
					c.From.Format(dateFlagLayout),
					c.To.Format(dateFlagLayout),
					utils.FormatQuantity(c.IndexBars),
					utils.FormatQuantity(c.OptionQuotes),
					utils.FormatQuantity(c.Expiries),
				})
			}
			output.Table([]string{"Underlying", "From", "To", "Index bars", "Option quotes", "Expiries"}, rows)
			return nil
		},
	}
}
