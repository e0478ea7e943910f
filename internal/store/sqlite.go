package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
	"delta-hedger/pkg/utils"
)

// maxKeysPerQuery keeps exact-join queries under SQLite's bound parameter limit (4 per key).
const maxKeysPerQuery = 200

// SQLiteStore implements PriceStore and PriceWriter using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the price database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dbError("failed to open database", err)
	}

	// Backtest workers read concurrently; imports are the only writers.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, dbError("failed to initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Minute bars of the underlying index (ts is unix seconds)
	CREATE TABLE IF NOT EXISTS index_prices (
		underlying TEXT NOT NULL,
		ts INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (underlying, ts)
	);

	-- Minute option closes keyed the way the engine looks them up
	CREATE TABLE IF NOT EXISTS option_prices (
		underlying TEXT NOT NULL,
		ts INTEGER NOT NULL,
		expiry INTEGER NOT NULL,
		strike REAL NOT NULL,
		option_type TEXT NOT NULL CHECK (option_type IN ('CE', 'PE')),
		close REAL NOT NULL,
		PRIMARY KEY (underlying, ts, expiry, strike, option_type)
	);

	-- Listed expiries (settlement instant, unix seconds)
	CREATE TABLE IF NOT EXISTS expiries (
		underlying TEXT NOT NULL,
		expiry INTEGER NOT NULL,
		PRIMARY KEY (underlying, expiry)
	);

	CREATE INDEX IF NOT EXISTS idx_option_prices_expiry ON option_prices(underlying, expiry, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Index Prices
// ============================================================================

// SaveIndexPrices upserts index minute bars.
func (s *SQLiteStore) SaveIndexPrices(ctx context.Context, underlying string, bars []models.IndexBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO index_prices (underlying, ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, underlying, b.Timestamp.Unix(), b.Open, b.High, b.Low, b.Close); err != nil {
			return dbError("failed to insert index bar", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// IndexPrices retrieves index bars in [from, to].
func (s *SQLiteStore) IndexPrices(ctx context.Context, underlying string, from, to time.Time) ([]models.IndexBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close
		FROM index_prices
		WHERE underlying = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, underlying, from.Unix(), to.Unix())
	if err != nil {
		return nil, dbError("failed to query index prices", err)
	}
	defer rows.Close()

	var bars []models.IndexBar
	for rows.Next() {
		var b models.IndexBar
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, dbError("failed to scan index bar", err)
		}
		b.Timestamp = fromUnix(ts)
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating index prices", err)
	}

	return bars, nil
}

// ============================================================================
// Option Prices
// ============================================================================

// SaveOptionPrices upserts option closes.
func (s *SQLiteStore) SaveOptionPrices(ctx context.Context, underlying string, quotes []models.OptionQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_prices (underlying, ts, expiry, strike, option_type, close)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		if !q.Type.IsValid() {
			return fmt.Errorf("invalid option type %q at %s", q.Type, q.Timestamp)
		}
		_, err := stmt.ExecContext(ctx, underlying, q.Timestamp.Unix(), q.Expiry.Unix(), q.Strike, string(q.Type), q.Close)
		if err != nil {
			return dbError("failed to insert option quote", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// OptionPrices returns quotes matching exactly the supplied keys. The keys are
// bound into a VALUES table and joined so that no unrelated rows are scanned.
func (s *SQLiteStore) OptionPrices(ctx context.Context, underlying string, keys []models.OptionKey) ([]models.OptionQuote, error) {
	keys = uniqueKeys(keys)
	var quotes []models.OptionQuote
	for start := 0; start < len(keys); start += maxKeysPerQuery {
		end := start + maxKeysPerQuery
		if end > len(keys) {
			end = len(keys)
		}
		batch, err := s.optionPriceBatch(ctx, underlying, keys[start:end])
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, batch...)
	}
	return quotes, nil
}

func (s *SQLiteStore) optionPriceBatch(ctx context.Context, underlying string, keys []models.OptionKey) ([]models.OptionQuote, error) {
	placeholders := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)*4+1)
	for i, k := range keys {
		placeholders[i] = "(?, ?, ?, ?)"
		args = append(args, k.Timestamp.Unix(), k.Expiry.Unix(), k.Strike, string(k.Type))
	}
	args = append(args, underlying)

	query := `
		WITH wanted(ts, expiry, strike, option_type) AS (VALUES ` + strings.Join(placeholders, ", ") + `)
		SELECT o.ts, o.expiry, o.strike, o.option_type, o.close
		FROM option_prices o
		JOIN wanted w
		  ON o.ts = w.ts AND o.expiry = w.expiry AND o.strike = w.strike AND o.option_type = w.option_type
		WHERE o.underlying = ?
		ORDER BY o.ts, o.strike, o.option_type
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("failed to query option prices", err)
	}
	defer rows.Close()

	var quotes []models.OptionQuote
	for rows.Next() {
		var q models.OptionQuote
		var ts, expiry int64
		var typ string
		if err := rows.Scan(&ts, &expiry, &q.Strike, &typ, &q.Close); err != nil {
			return nil, dbError("failed to scan option quote", err)
		}
		q.Timestamp = fromUnix(ts)
		q.Expiry = fromUnix(expiry)
		q.Type = models.OptionType(typ)
		quotes = append(quotes, q)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating option prices", err)
	}

	return quotes, nil
}

// ============================================================================
// Expiries
// ============================================================================

// SaveExpiries upserts listed expiries. Dates are stored as their settlement instant.
func (s *SQLiteStore) SaveExpiries(ctx context.Context, underlying string, expiries []time.Time) error {
	if len(expiries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO expiries (underlying, expiry) VALUES (?, ?)`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for _, e := range expiries {
		if _, err := stmt.ExecContext(ctx, underlying, utils.ExpiryInstant(e).Unix()); err != nil {
			return dbError("failed to insert expiry", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}

	return nil
}

// Expiries returns the listed expiries of the underlying.
func (s *SQLiteStore) Expiries(ctx context.Context, underlying string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT expiry FROM expiries WHERE underlying = ? ORDER BY expiry ASC
	`, underlying)
	if err != nil {
		return nil, dbError("failed to query expiries", err)
	}
	defer rows.Close()

	var expiries []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, dbError("failed to scan expiry", err)
		}
		expiries = append(expiries, fromUnix(ts))
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating expiries", err)
	}

	return expiries, nil
}

// ============================================================================
// Coverage
// ============================================================================

// Coverage summarises stored data per underlying.
func (s *SQLiteStore) Coverage(ctx context.Context) ([]Coverage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.underlying, COUNT(*), MIN(i.ts), MAX(i.ts),
			(SELECT COUNT(*) FROM option_prices o WHERE o.underlying = i.underlying),
			(SELECT COUNT(*) FROM expiries e WHERE e.underlying = i.underlying)
		FROM index_prices i
		GROUP BY i.underlying
		ORDER BY i.underlying
	`)
	if err != nil {
		return nil, dbError("failed to query coverage", err)
	}
	defer rows.Close()

	var out []Coverage
	for rows.Next() {
		var c Coverage
		var from, to int64
		if err := rows.Scan(&c.Underlying, &c.IndexBars, &from, &to, &c.OptionQuotes, &c.Expiries); err != nil {
			return nil, dbError("failed to scan coverage", err)
		}
		c.From, c.To = fromUnix(from), fromUnix(to)
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("error iterating coverage", err)
	}

	return out, nil
}

// dbError marks a failed SQLite operation with ErrDatabaseError.
func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrDatabaseError, op, err)
}

func uniqueKeys(keys []models.OptionKey) []models.OptionKey {
	type rawKey struct {
		ts, expiry int64
		strike     float64
		typ        models.OptionType
	}
	seen := make(map[rawKey]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		rk := rawKey{k.Timestamp.Unix(), k.Expiry.Unix(), k.Strike, k.Type}
		if _, ok := seen[rk]; ok {
			continue
		}
		seen[rk] = struct{}{}
		out = append(out, k)
	}
	return out
}

func fromUnix(ts int64) time.Time {
	return time.Unix(ts, 0).In(utils.IndiaLocation)
}
