package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"delta-hedger/internal/chain"
	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/hedging"
	"delta-hedger/internal/logging"
	"delta-hedger/internal/models"
	"delta-hedger/internal/performance"
	"delta-hedger/internal/pricing"
	"delta-hedger/internal/store"
	"delta-hedger/pkg/utils"
)

// Options selects what a batch simulates and where results go.
type Options struct {
	Underlying  models.Underlying
	From, To    time.Time
	OnlyExpiry  bool
	Workers     int
	Params      hedging.Params
	ResultsRoot string
	RunName     string // empty picks the next backtest_N
}

// BatchReport lists what happened to every date of a batch.
type BatchReport struct {
	Dir       string
	RunID     string
	Completed []time.Time
	Skipped   []time.Time // result file already present
	Empty     []time.Time // no bars or no segment
	Failed    []*apperrors.DayError
	Elapsed   time.Duration
}

// BatchRunner spreads trading days over a worker pool.
type BatchRunner struct {
	store  store.PriceStore
	oracle pricing.Oracle
	logger zerolog.Logger
}

// NewBatchRunner creates a runner reading from s.
func NewBatchRunner(s store.PriceStore, oracle pricing.Oracle, logger zerolog.Logger) *BatchRunner {
	return &BatchRunner{store: s, oracle: oracle, logger: logger}
}

// Run simulates every pending date in [From, To]. Each worker takes one
// contiguous chunk of dates with its own DayRunner and price cache. Days
// that fail are logged and reported without stopping the batch.
func (b *BatchRunner) Run(ctx context.Context, opts Options) (*BatchReport, error) {
	start := time.Now()
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.To.Before(opts.From) {
		return nil, apperrors.NewValidationError("to", opts.To.Format(dateLayout), "before from date")
	}
	logger := logging.WithOperation(logging.WithUnderlying(b.logger, opts.Underlying.Name), "backtest")

	dir, err := OpenResultDir(opts.ResultsRoot, opts.Underlying.Name, opts.RunName)
	if err != nil {
		return nil, err
	}
	report := &BatchReport{Dir: dir.Path}

	if existing, err := ReadParameters(dir.Path); err == nil {
		if err := existing.Resumable(opts.Underlying.Name, opts.OnlyExpiry, opts.Params); err != nil {
			return nil, err
		}
		report.RunID = existing.RunID
	} else {
		params := NewRunParameters(opts.Underlying.Name, opts.From, opts.To, opts.OnlyExpiry, opts.Workers, opts.Params)
		if err := dir.WriteParameters(params); err != nil {
			return nil, fmt.Errorf("failed to write parameters: %w", err)
		}
		report.RunID = params.RunID
	}

	dates, err := b.candidateDates(ctx, opts)
	if err != nil {
		return nil, err
	}
	var pending []time.Time
	for _, d := range dates {
		if dir.HasDay(d) {
			dl := logging.WithDay(logger, d)
			dl.Debug().Msg("Result file present, skipping day")
			report.Skipped = append(report.Skipped, d)
			continue
		}
		pending = append(pending, d)
	}
	logger.Info().
		Str("dir", dir.Path).
		Int("dates", len(dates)).
		Int("skipped", len(report.Skipped)).
		Int("workers", opts.Workers).
		Msg("Starting backtest")

	chunks := performance.Chunk(pending, opts.Workers)
	pool := performance.NewWorkerPool(len(chunks))
	pool.Start()

	var mu sync.Mutex
	for _, chunk := range chunks {
		chunk := chunk
		task := func() {
			b.runChunk(ctx, opts, dir, chunk, logger, func(d time.Time, outcome dayOutcome, dayErr *apperrors.DayError) {
				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case outcomeCompleted:
					report.Completed = append(report.Completed, d)
				case outcomeEmpty:
					report.Empty = append(report.Empty, d)
				case outcomeFailed:
					report.Failed = append(report.Failed, dayErr)
				}
			})
		}
		if err := pool.SubmitBlocking(ctx, task); err != nil {
			pool.Stop()
			return nil, err
		}
	}
	pool.Wait()

	sortDates(report.Completed)
	sortDates(report.Empty)
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Date.Before(report.Failed[j].Date) })
	report.Elapsed = time.Since(start)

	mem := performance.MemoryStats()
	logger.Info().
		Int("completed", len(report.Completed)).
		Int("skipped", len(report.Skipped)).
		Int("empty", len(report.Empty)).
		Int("failed", len(report.Failed)).
		Dur("elapsed", report.Elapsed).
		Str("heap", performance.FormatBytes(mem.HeapAlloc)).
		Msg("Backtest finished")

	return report, ctx.Err()
}

type dayOutcome int

const (
	outcomeCompleted dayOutcome = iota
	outcomeEmpty
	outcomeFailed
)

func (b *BatchRunner) runChunk(ctx context.Context, opts Options, dir *ResultDir, dates []time.Time, logger zerolog.Logger,
	record func(time.Time, dayOutcome, *apperrors.DayError)) {
	runner, err := hedging.NewDayRunner(b.store, opts.Underlying, opts.Params, b.oracle, b.logger)
	if err != nil {
		for _, d := range dates {
			record(d, outcomeFailed, apperrors.NewDayError(d, apperrors.StageEntry, err))
		}
		return
	}

	for _, d := range dates {
		if ctx.Err() != nil {
			return
		}
		dayLogger := logging.WithDay(logger, d)
		dayLogger.Debug().Msg("Day started")
		began := time.Now()
		outcome, dayErr := b.runDay(ctx, runner, dir, d, logger)
		switch outcome {
		case outcomeFailed:
			logging.LogDayFailure(logger, d, dayErr.Stage, dayErr.Err)
		case outcomeEmpty:
			dayLogger.Info().Dur("took", time.Since(began)).Msg("Day produced no segment")
		default:
			dayLogger.Info().Dur("took", time.Since(began)).Msg("Day finished")
		}
		record(d, outcome, dayErr)
	}
}

func (b *BatchRunner) runDay(ctx context.Context, runner *hedging.DayRunner, dir *ResultDir, d time.Time, logger zerolog.Logger) (outcome dayOutcome, dayErr *apperrors.DayError) {
	defer func() {
		if r := recover(); r != nil {
			outcome, dayErr = outcomeFailed, apperrors.NewDayError(d, apperrors.StageSegment, fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := runner.RunDate(logging.WithLogger(ctx, logger), d)
	if err == nil && !res.Empty() {
		err = dir.WriteDay(res)
	}
	if err != nil {
		if !apperrors.As(err, &dayErr) {
			dayErr = apperrors.NewDayError(d, apperrors.StageSegment, err)
		}
		return outcomeFailed, dayErr
	}
	if res.Empty() {
		return outcomeEmpty, nil
	}
	return outcomeCompleted, nil
}

// candidateDates lists the weekdays of the range, or only listed expiry
// dates when OnlyExpiry is set.
func (b *BatchRunner) candidateDates(ctx context.Context, opts Options) ([]time.Time, error) {
	var expiries []time.Time
	if opts.OnlyExpiry {
		var err error
		if expiries, err = b.store.Expiries(ctx, opts.Underlying.Name); err != nil {
			return nil, fmt.Errorf("failed to load expiries: %w", err)
		}
	}

	var dates []time.Time
	for d := utils.TradingDate(opts.From); !d.After(utils.TradingDate(opts.To)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if opts.OnlyExpiry && !chain.IsExpiryDay(expiries, d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
