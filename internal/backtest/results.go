// Package backtest runs the hedging engine over date ranges and summarises
// the per-day result files it leaves behind.
package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/hedging"
	"delta-hedger/internal/models"
	"delta-hedger/pkg/utils"
)

const (
	// ParametersFile records the configuration of a run.
	ParametersFile = "parameters.json"
	// SummaryFile holds the exit rows of a run.
	SummaryFile = "summary.csv"

	runPrefix  = "backtest_"
	dateLayout = "2006-01-02"
)

// RunParameters is the reproducibility record written once per run folder.
type RunParameters struct {
	RunID      string         `json:"run_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Underlying string         `json:"underlying"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	OnlyExpiry bool           `json:"only_expiry"`
	Workers    int            `json:"workers"`
	Params     hedging.Params `json:"params"`
}

// NewRunParameters stamps a fresh run id.
func NewRunParameters(underlying string, from, to time.Time, onlyExpiry bool, workers int, p hedging.Params) RunParameters {
	return RunParameters{
		RunID:      uuid.NewString(),
		CreatedAt:  time.Now().In(utils.IndiaLocation),
		Underlying: underlying,
		From:       from.Format(dateLayout),
		To:         to.Format(dateLayout),
		OnlyExpiry: onlyExpiry,
		Workers:    workers,
		Params:     p,
	}
}

// Resumable reports whether days of a run configured as p can be added to a
// folder recorded with r. The date range and worker count may differ.
func (r RunParameters) Resumable(underlying string, onlyExpiry bool, p hedging.Params) error {
	ve := func(field string, value interface{}) error {
		return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid,
			apperrors.NewValidationError(field, value, "differs from parameters.json of run "+r.RunID))
	}
	switch {
	case r.Underlying != underlying:
		return ve("underlying", underlying)
	case r.OnlyExpiry != onlyExpiry:
		return ve("only_expiry", onlyExpiry)
	case r.Params != p:
		return ve("params", p)
	}
	return nil
}

// ResultDir is the folder holding one run's per-day files.
type ResultDir struct {
	Path string
}

// OpenResultDir opens root/underlying/name, creating it if needed. An empty
// name picks the next unused backtest_N.
func OpenResultDir(root, underlying, name string) (*ResultDir, error) {
	base := filepath.Join(root, underlying)
	if name == "" {
		n, err := nextRunNumber(base)
		if err != nil {
			return nil, err
		}
		name = runPrefix + strconv.Itoa(n)
	}
	path := filepath.Join(base, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result folder: %w", err)
	}
	return &ResultDir{Path: path}, nil
}

func nextRunNumber(base string) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("failed to list result folders: %w", err)
	}
	highest := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runPrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), runPrefix)); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// WriteParameters writes parameters.json.
func (d *ResultDir) WriteParameters(p RunParameters) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	return os.WriteFile(filepath.Join(d.Path, ParametersFile), data, 0o644)
}

// ReadParameters reads parameters.json of a run folder.
func ReadParameters(dir string) (RunParameters, error) {
	var p RunParameters
	data, err := os.ReadFile(filepath.Join(dir, ParametersFile))
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to decode %s: %w", ParametersFile, err)
	}
	return p, nil
}

// DayFile returns the path of the result file for date.
func (d *ResultDir) DayFile(date time.Time) string {
	return filepath.Join(d.Path, date.Format(dateLayout)+".csv")
}

// HasDay reports whether date already has a result file.
func (d *ResultDir) HasDay(date time.Time) bool {
	_, err := os.Stat(d.DayFile(date))
	return err == nil
}

// WriteDay writes the rows of one day. The file appears under its final name
// only once complete, so its presence marks the day as done.
func (d *ResultDir) WriteDay(res *models.DayResult) error {
	if res.Empty() {
		return nil
	}
	final := d.DayFile(res.Date)
	tmp, err := os.CreateTemp(d.Path, ".day-*.csv")
	if err != nil {
		return apperrors.NewDayError(res.Date, apperrors.StageWrite, err)
	}
	defer os.Remove(tmp.Name())

	if err := gocsv.MarshalFile(&res.Rows, tmp); err != nil {
		tmp.Close()
		return apperrors.NewDayError(res.Date, apperrors.StageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewDayError(res.Date, apperrors.StageWrite, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return apperrors.NewDayError(res.Date, apperrors.StageWrite, err)
	}
	return nil
}

// DayFiles lists the per-day result files of dir in date order.
func DayFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no run folder at %s", apperrors.ErrDataNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".csv" {
			continue
		}
		if _, err := time.Parse(dateLayout, strings.TrimSuffix(name, ".csv")); err != nil {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// LoadDayFiles reads every per-day file of dir.
func LoadDayFiles(dir string) ([]models.DayRow, error) {
	files, err := DayFiles(dir)
	if err != nil {
		return nil, err
	}
	var rows []models.DayRow
	for _, path := range files {
		day, err := readDayFile(path)
		if err != nil {
			return nil, err
		}
		rows = append(rows, day...)
	}
	return rows, nil
}

func readDayFile(path string) ([]models.DayRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []models.DayRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}
