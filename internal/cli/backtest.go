package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"delta-hedger/internal/backtest"
	"delta-hedger/internal/pricing"
	"delta-hedger/pkg/utils"
)

const dateFlagLayout = "2006-01-02"

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run and analyse backtests",
	}
	cmd.AddCommand(newBacktestRunCmd(app))
	cmd.AddCommand(newBacktestSummarizeCmd(app))
	cmd.AddCommand(newBacktestCompareCmd(app))
	return cmd
}

func parseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateFlagLayout, s, utils.IndiaLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

func newBacktestRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate every trading day in a date range",
		Long: `Simulate the hedged strangle for each weekday in [--from, --to].

Days that already have a result file in the run folder are skipped, so
re-running with the same --name resumes an interrupted batch.`,
		Example: `  hedger backtest run --from 2024-01-01 --to 2024-03-31
  hedger backtest run --from 2024-01-01 --to 2024-12-31 --only-expiry --workers 8
  hedger backtest run --from 2024-01-01 --to 2024-01-31 --name jan_tight --threshold 0.01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			opts, err := runOptions(cmd, app)
			if err != nil {
				return err
			}

			s, err := app.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := backtest.NewBatchRunner(s, pricing.BlackScholes{}, app.Logger).Run(ctx, opts)
			if err != nil {
				if report == nil {
					output.Error("Backtest failed: %v", err)
					return err
				}
				output.Warning("Backtest interrupted: %v", err)
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			displayReport(output, report)
			return nil
		},
	}

	cmd.Flags().String("from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last date (YYYY-MM-DD), defaults to --from")
	cmd.Flags().StringP("underlying", "u", "", "index to simulate (default from config)")
	cmd.Flags().IntP("workers", "w", 0, "parallel workers (default from config)")
	cmd.Flags().Bool("only-expiry", false, "only simulate expiry days")
	cmd.Flags().String("name", "", "run folder name (default next backtest_N)")
	cmd.Flags().Float64("target-delta", 0, "override target delta")
	cmd.Flags().Float64("threshold", 0, "override delta threshold as a fraction of quantity")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

// runOptions merges flags over the config.
func runOptions(cmd *cobra.Command, app *App) (backtest.Options, error) {
	cfg := app.Config
	params, err := cfg.BacktestParams()
	if err != nil {
		return backtest.Options{}, err
	}

	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	if toStr == "" {
		toStr = fromStr
	}
	from, err := parseDate(fromStr)
	if err != nil {
		return backtest.Options{}, err
	}
	to, err := parseDate(toStr)
	if err != nil {
		return backtest.Options{}, err
	}

	name := cfg.Backtest.Underlying
	if v, _ := cmd.Flags().GetString("underlying"); v != "" {
		name = v
	}
	underlying, err := cfg.Underlying(name)
	if err != nil {
		return backtest.Options{}, err
	}

	workers := cfg.Backtest.Workers
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		workers = v
	}
	onlyExpiry := cfg.Backtest.OnlyExpiry
	if cmd.Flags().Changed("only-expiry") {
		onlyExpiry, _ = cmd.Flags().GetBool("only-expiry")
	}
	if v, _ := cmd.Flags().GetFloat64("target-delta"); v > 0 {
		params.TargetDelta = v
	}
	if v, _ := cmd.Flags().GetFloat64("threshold"); v > 0 {
		params.DeltaThresholdPct = v
	}
	runName, _ := cmd.Flags().GetString("name")

	return backtest.Options{
		Underlying:  underlying,
		From:        from,
		To:          to,
		OnlyExpiry:  onlyExpiry,
		Workers:     workers,
		Params:      params,
		ResultsRoot: cfg.Data.ResultsDir,
		RunName:     runName,
	}, nil
}

func displayReport(output *Output, r *backtest.BatchReport) {
	output.Bold("Backtest %s", r.RunID)
	output.Printf("  Folder:     %s\n", r.Dir)
	output.Printf("  Completed:  %d\n", len(r.Completed))
	output.Printf("  Skipped:    %d\n", len(r.Skipped))
	output.Printf("  Empty:      %d\n", len(r.Empty))
	output.Printf("  Failed:     %d\n", len(r.Failed))
	output.Printf("  Elapsed:    %s\n", r.Elapsed.Round(time.Millisecond))

	if len(r.Failed) > 0 {
		output.Println()
		output.Warning("Failed days")
		rows := make([][]string, 0, len(r.Failed))
		for _, f := range r.Failed {
			rows = append(rows, []string{f.Date.Format(dateFlagLayout), f.Stage, f.Err.Error()})
		}
		output.Table([]string{"Date", "Stage", "Error"}, rows)
	}
}

func newBacktestSummarizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize <run-dir>",
		Short: "Summarise the exits of one run",
		Long: `Collect the exit row of every segment in a run folder, compute
profit = |premium| + mtm and report daily return statistics.

The exit rows are also written to summary.csv in the run folder.`,
		Example: `  hedger backtest summarize results/NIFTY/backtest_3
  hedger backtest summarize results/NIFTY/backtest_3 --days --exposure 10000000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			exposure, _ := cmd.Flags().GetFloat64("exposure")
			if exposure <= 0 {
				exposure = app.Config.Backtest.SummaryExposure
			}

			sum, err := backtest.SummarizeDir(args[0], exposure)
			if err != nil {
				output.Error("Failed to summarise %s: %v", args[0], err)
				return err
			}
			if write, _ := cmd.Flags().GetBool("write"); write {
				if err := backtest.WriteSummary(args[0], sum.Exits); err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(sum)
			}

			showDays, _ := cmd.Flags().GetBool("days")
			displaySummary(output, sum, showDays)
			return nil
		},
	}

	cmd.Flags().Float64("exposure", 0, "capital for percentage returns (default from config)")
	cmd.Flags().Bool("write", true, "write summary.csv into the run folder")
	cmd.Flags().Bool("days", false, "list every day")

	return cmd
}

func displaySummary(output *Output, sum *backtest.RunSummary, showDays bool) {
	output.Bold("%s", sum.Name)
	if p := sum.Parameters; p != nil {
		output.Dim("  %s %s to %s, target %.2f, threshold %.3f", p.Underlying,
			p.From, p.To, p.Params.TargetDelta, p.Params.DeltaThresholdPct)
	}
	output.Println()

	if showDays {
		rows := make([][]string, 0, len(sum.Daily))
		for _, d := range sum.Daily {
			rows = append(rows, []string{d.Date, fmt.Sprint(d.Segments), output.FormatPnL(d.Profit), output.FormatPercent(d.ProfitPct)})
		}
		output.Table([]string{"Date", "Segments", "Profit", "Return"}, rows)
		output.Println()
	}

	s := sum.Stats
	if s.Days == 0 {
		output.Warning("No exits found")
		return
	}
	output.Table([]string{"Metric", "Value"}, [][]string{
		{"Period", s.From + " to " + s.To},
		{"Days", fmt.Sprint(s.Days)},
		{"Win rate", fmt.Sprintf("%.1f%%", s.WinRate)},
		{"Mean", output.FormatPercent(s.MeanPct)},
		{"Median", output.FormatPercent(s.MedianPct)},
		{"Std dev", fmt.Sprintf("%.3f%%", s.StdDevPct)},
		{"P5 / P95", utils.FormatPercent(s.P5Pct) + " / " + utils.FormatPercent(s.P95Pct)},
		{"Total", output.FormatPercent(s.TotalPct)},
		{"Max drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdownPct)},
		{"CAGR", output.FormatPercent(s.CAGR)},
		{"Sharpe", fmt.Sprintf("%.2f", s.Sharpe)},
	})
}

func newBacktestCompareCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <run-dir> <run-dir>...",
		Short: "Compare statistics across runs",
		Example: `  hedger backtest compare results/NIFTY/backtest_1 results/NIFTY/backtest_2`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			exposure, _ := cmd.Flags().GetFloat64("exposure")
			if exposure <= 0 {
				exposure = app.Config.Backtest.SummaryExposure
			}

			sums, err := backtest.Compare(args, exposure)
			if err != nil {
				output.Error("Failed to compare runs: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(sums)
			}

			rows := make([][]string, 0, len(sums))
			for _, sum := range sums {
				s := sum.Stats
				rows = append(rows, []string{
					sum.Name,
					runLabel(sum),
					fmt.Sprint(s.Days),
					fmt.Sprintf("%.1f%%", s.WinRate),
					output.FormatPercent(s.MeanPct),
					output.FormatPercent(s.TotalPct),
					fmt.Sprintf("%.2f%%", s.MaxDrawdownPct),
					fmt.Sprintf("%.2f", s.Sharpe),
				})
			}
			output.Table([]string{"Run", "Params", "Days", "Win", "Mean", "Total", "MaxDD", "Sharpe"}, rows)
			return nil
		},
	}

	cmd.Flags().Float64("exposure", 0, "capital for percentage returns (default from config)")
	return cmd
}

func runLabel(sum *backtest.RunSummary) string {
	p := sum.Parameters
	if p == nil {
		return "-"
	}
	parts := []string{
		fmt.Sprintf("Δ%.2f", p.Params.TargetDelta),
		fmt.Sprintf("thr %.3f", p.Params.DeltaThresholdPct),
		fmt.Sprintf("cap %.2f", p.Params.MaxHedgeRatio),
	}
	if p.OnlyExpiry {
		parts = append(parts, "expiry")
	}
	return strings.Join(parts, " ")
}
