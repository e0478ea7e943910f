package backtest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"

	"delta-hedger/internal/models"
	"delta-hedger/pkg/utils"
)

// DefaultSummaryExposure is the capital profits are expressed against.
const DefaultSummaryExposure = 12_000_000

const tradingDaysPerYear = 252

// ExitRow is the terminal row of one segment with its realised profit.
type ExitRow struct {
	Timestamp time.Time            `csv:"timestamp" json:"timestamp"`
	Segment   int                  `csv:"segment" json:"segment"`
	Status    models.SegmentStatus `csv:"status" json:"status"`
	Premium   float64              `csv:"premium" json:"premium"`
	MTM       float64              `csv:"mtm" json:"mtm"`
	Profit    float64              `csv:"profit" json:"profit"`
}

// Summarize keeps the rows that carry a mark to market, computes
// profit = |premium| + mtm and orders them by time.
func Summarize(rows []models.DayRow) []ExitRow {
	var exits []ExitRow
	for _, r := range rows {
		if !r.MTM.Valid {
			continue
		}
		exits = append(exits, ExitRow{
			Timestamp: r.Timestamp,
			Segment:   r.Segment,
			Status:    r.Status,
			Premium:   r.Premium,
			MTM:       r.MTM.Value,
			Profit:    math.Abs(r.Premium) + r.MTM.Value,
		})
	}
	sort.SliceStable(exits, func(i, j int) bool { return exits[i].Timestamp.Before(exits[j].Timestamp) })
	return exits
}

// DailyReturn is the summed profit of one trading date.
type DailyReturn struct {
	Date      string  `csv:"date" json:"date"`
	Segments  int     `csv:"segments" json:"segments"`
	Profit    float64 `csv:"profit" json:"profit"`
	ProfitPct float64 `csv:"profit_pct" json:"profit_pct"`
}

// DailyReturns sums exit profits per date as a percentage of exposure.
func DailyReturns(exits []ExitRow, exposure float64) []DailyReturn {
	if exposure <= 0 {
		exposure = DefaultSummaryExposure
	}
	var daily []DailyReturn
	for _, e := range exits {
		date := utils.TradingDate(e.Timestamp).Format(dateLayout)
		if n := len(daily); n == 0 || daily[n-1].Date != date {
			daily = append(daily, DailyReturn{Date: date})
		}
		d := &daily[len(daily)-1]
		d.Segments++
		d.Profit += e.Profit
		d.ProfitPct = d.Profit / exposure * 100
	}
	return daily
}

// Statistics describes the distribution of daily returns of a run.
type Statistics struct {
	From           string  `json:"from"`
	To             string  `json:"to"`
	Days           int     `json:"days"`
	WinRate        float64 `json:"win_rate"`
	MeanPct        float64 `json:"mean_pct"`
	StdDevPct      float64 `json:"stddev_pct"`
	MedianPct      float64 `json:"median_pct"`
	P5Pct          float64 `json:"p5_pct"`
	P95Pct         float64 `json:"p95_pct"`
	TotalPct       float64 `json:"total_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	CAGR           float64 `json:"cagr_pct"`
	Sharpe         float64 `json:"sharpe"`
}

// ComputeStatistics summarises daily returns. Drawdown is measured on the
// cumulative sum of daily percentages.
func ComputeStatistics(daily []DailyReturn) (Statistics, error) {
	s := Statistics{Days: len(daily)}
	if len(daily) == 0 {
		return s, nil
	}
	s.From, s.To = daily[0].Date, daily[len(daily)-1].Date

	pcts := make(stats.Float64Data, len(daily))
	wins := 0
	for i, d := range daily {
		pcts[i] = d.ProfitPct
		if d.Profit > 0 {
			wins++
		}
	}
	s.WinRate = float64(wins) / float64(len(daily)) * 100

	var err error
	if s.MeanPct, err = stats.Mean(pcts); err != nil {
		return s, fmt.Errorf("mean: %w", err)
	}
	if s.MedianPct, err = stats.Median(pcts); err != nil {
		return s, fmt.Errorf("median: %w", err)
	}
	if s.P5Pct, err = stats.PercentileNearestRank(pcts, 5); err != nil {
		return s, fmt.Errorf("p5: %w", err)
	}
	if s.P95Pct, err = stats.PercentileNearestRank(pcts, 95); err != nil {
		return s, fmt.Errorf("p95: %w", err)
	}
	if len(pcts) > 1 {
		if s.StdDevPct, err = stats.StandardDeviationSample(pcts); err != nil {
			return s, fmt.Errorf("stddev: %w", err)
		}
	}
	if s.StdDevPct > 0 {
		s.Sharpe = s.MeanPct / s.StdDevPct * math.Sqrt(tradingDaysPerYear)
	}

	cum := floats.CumSum(make([]float64, len(pcts)), pcts)
	s.TotalPct = cum[len(cum)-1]
	s.MaxDrawdownPct = maxDrawdown(cum)
	s.CAGR = cagr(s.TotalPct, s.From, s.To)
	return s, nil
}

// maxDrawdown is the largest fall of the cumulative curve from a prior
// peak, with the curve starting at zero.
func maxDrawdown(cum []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, v := range cum {
		peak = math.Max(peak, v)
		worst = math.Max(worst, peak-v)
	}
	return worst
}

func cagr(totalPct float64, from, to string) float64 {
	start, err1 := time.Parse(dateLayout, from)
	end, err2 := time.Parse(dateLayout, to)
	if err1 != nil || err2 != nil {
		return 0
	}
	years := (end.Sub(start).Hours()/24 + 1) / 365.25
	growth := 1 + totalPct/100
	if growth <= 0 {
		return -100
	}
	return (math.Pow(growth, 1/years) - 1) * 100
}

// RunSummary is everything summarize reports for one run folder.
type RunSummary struct {
	Name       string
	Parameters *RunParameters
	Exits      []ExitRow
	Daily      []DailyReturn
	Stats      Statistics
}

// SummarizeDir loads a run folder and computes its statistics.
func SummarizeDir(dir string, exposure float64) (*RunSummary, error) {
	rows, err := LoadDayFiles(dir)
	if err != nil {
		return nil, err
	}
	sum := &RunSummary{Name: filepath.Base(dir)}
	if p, err := ReadParameters(dir); err == nil {
		sum.Parameters = &p
	}
	sum.Exits = Summarize(rows)
	sum.Daily = DailyReturns(sum.Exits, exposure)
	if sum.Stats, err = ComputeStatistics(sum.Daily); err != nil {
		return nil, err
	}
	return sum, nil
}

// Compare summarises several run folders side by side.
func Compare(dirs []string, exposure float64) ([]*RunSummary, error) {
	out := make([]*RunSummary, 0, len(dirs))
	for _, dir := range dirs {
		sum, err := SummarizeDir(dir, exposure)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dir, err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// WriteSummary writes the exit rows to summary.csv in dir.
func WriteSummary(dir string, exits []ExitRow) error {
	f, err := os.Create(filepath.Join(dir, SummaryFile))
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(&exits, f); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
