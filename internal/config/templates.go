package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Delta Hedger Configuration

[backtest]
# Index to simulate, must have a strike step under [underlyings]
underlying = "NIFTY"
# Bars at or before this time are ignored
start_after = "09:15"
# Segments close at this time
scan_exit_time = "15:29"
# Exit time used when the day is the expiry day
expiry_day_exit_time = "14:40"
# Time to expiry (years) below which the day counts as expiry day
expiry_day_tte = 0.0008
# Notional sold per day in INR
starting_exposure = 10000000.0
# Hedge cap per leg as a fraction of the position quantity
max_hedge_ratio = 0.2
# Absolute delta band of strikes eligible for entry
delta_range = [0.01, 0.25]
# Delta each leg of the strangle aims for
target_delta = 0.15
# Net delta tolerated before hedging, as a fraction of quantity
delta_threshold_pct = 0.02
# Strikes each side of ATM scanned at entry
entry_strikes = 30
# Strikes each side of ATM prefetched per day
cache_strikes = 30
# Extra strikes fetched around a missing entry strike
missed_strike_padding = 10
# Parallel day workers
workers = 5
# Only simulate expiry days
only_expiry = false
# Capital that summary percentages are measured against
summary_exposure = 12000000.0

[data]
# SQLite database holding index and option prices
db_path = ""
# Folder receiving backtest_N result directories
results_dir = "results"

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = true
file_path = ""
# Rotation: megabytes per file, files kept, days kept
max_size = 100
max_backups = 7
max_age = 30

# Strike step per index
[underlyings.NIFTY]
base = 50.0

[underlyings.BANKNIFTY]
base = 100.0

[underlyings.FINNIFTY]
base = 50.0

[underlyings.MIDCPNIFTY]
base = 25.0

[underlyings.SENSEX]
base = 100.0
`

const envTemplate = `# Environment overrides for delta-hedger
# HEDGER_DB_PATH=/data/hedger.db
# HEDGER_RESULTS_DIR=/data/results
# HEDGER_LOG_LEVEL=debug
# HEDGER_WORKERS=8
`

// createTemplateConfig writes a commented config.toml and reports where it
// was written. The caller should stop so the user can review it.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, configFileName+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	envPath := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := os.WriteFile(envPath, []byte(envTemplate), 0600); err != nil {
			return fmt.Errorf("writing env template: %w", err)
		}
	}

	return fmt.Errorf("%w: created template at %s", ErrTemplateCreated, path)
}
