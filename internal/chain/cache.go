package chain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/models"
	"delta-hedger/internal/store"
	"delta-hedger/pkg/utils"
)

// PriceCache holds option closes of one (underlying, expiry) pair. It is
// owned by a single DayRunner and must not be shared between goroutines.
type PriceCache struct {
	store      store.PriceStore
	underlying models.Underlying
	expiry     time.Time
	retry      utils.RetryConfig
	logger     zerolog.Logger

	spots    map[int64]float64
	observed map[int64]map[float64]StrikeQuote
	filled   map[int64]map[float64]StrikeQuote
	fetches  int
}

// NewPriceCache creates an empty cache for one expiry.
func NewPriceCache(s store.PriceStore, underlying models.Underlying, expiry time.Time, logger zerolog.Logger) *PriceCache {
	return &PriceCache{
		store:      s,
		underlying: underlying,
		expiry:     expiry,
		retry:      utils.DefaultRetryConfig(),
		logger:     logger,
		spots:      make(map[int64]float64),
		observed:   make(map[int64]map[float64]StrikeQuote),
		filled:     make(map[int64]map[float64]StrikeQuote),
	}
}

// Expiry returns the expiry the cache serves.
func (c *PriceCache) Expiry() time.Time {
	return c.expiry
}

// Fetches returns the number of store queries issued so far.
func (c *PriceCache) Fetches() int {
	return c.fetches
}

// Load fetches every (bar, strike) pair not already cached and repairs the
// chain of each touched minute.
func (c *PriceCache) Load(ctx context.Context, bars []models.IndexBar, strikes []float64) error {
	var keys []models.OptionKey
	touched := make(map[int64][]float64)
	for _, bar := range bars {
		ts := bar.Timestamp.Unix()
		c.spots[ts] = bar.Open
		if c.observed[ts] == nil {
			c.observed[ts] = make(map[float64]StrikeQuote)
		}
		for _, k := range strikes {
			if _, ok := c.observed[ts][k]; ok {
				continue
			}
			c.observed[ts][k] = StrikeQuote{Strike: k}
			touched[ts] = append(touched[ts], k)
			for _, t := range models.OptionTypes {
				keys = append(keys, models.OptionKey{Timestamp: bar.Timestamp, Expiry: c.expiry, Strike: k, Type: t})
			}
		}
	}
	if len(keys) == 0 {
		return nil
	}

	quotes, err := utils.RetryWithResult(ctx, c.retry, func() ([]models.OptionQuote, error) {
		return c.store.OptionPrices(ctx, c.underlying.Name, keys)
	})
	c.fetches++
	if err != nil {
		for ts, added := range touched {
			for _, k := range added {
				delete(c.observed[ts], k)
			}
		}
		return apperrors.NewDataError("options", c.underlying.Name, "fetching option prices", err)
	}

	for _, q := range quotes {
		ts := q.Timestamp.Unix()
		sq := c.observed[ts][q.Strike]
		sq.Strike = q.Strike
		switch q.Type {
		case models.Call:
			sq.Call, sq.HasCall = q.Close, true
		case models.Put:
			sq.Put, sq.HasPut = q.Close, true
		}
		c.observed[ts][q.Strike] = sq
	}

	c.logger.Debug().
		Int("requested", len(keys)).
		Int("received", len(quotes)).
		Int("minutes", len(touched)).
		Msg("Option prices loaded")

	for ts := range touched {
		c.repair(ts)
	}
	return nil
}

// repair rebuilds the filled view of one minute from the observed closes.
func (c *PriceCache) repair(ts int64) {
	observed := c.observed[ts]
	quotes := make([]StrikeQuote, 0, len(observed))
	for _, q := range observed {
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Strike < quotes[j].Strike })

	if !FillMissing(quotes, c.spots[ts]) {
		delete(c.filled, ts)
		return
	}
	filled := make(map[float64]StrikeQuote, len(quotes))
	for _, q := range quotes {
		filled[q.Strike] = q
	}
	c.filled[ts] = filled
}

// Price returns the repaired close of one leg.
func (c *PriceCache) Price(ts time.Time, t models.OptionType, strike float64) (float64, error) {
	q, ok := c.filled[ts.Unix()][strike]
	if !ok {
		return 0, apperrors.Wrapf(apperrors.ErrPriceMissing, "%s %s %v at %s",
			c.underlying.Name, t, strike, ts.In(utils.IndiaLocation).Format("2006-01-02 15:04"))
	}
	if t == models.Call {
		return q.Call, nil
	}
	return q.Put, nil
}

// Missing returns the strikes without a repaired price at ts.
func (c *PriceCache) Missing(ts time.Time, strikes []float64) []float64 {
	var missing []float64
	filled := c.filled[ts.Unix()]
	for _, k := range strikes {
		if _, ok := filled[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func (c *PriceCache) String() string {
	return fmt.Sprintf("PriceCache(%s %s, %d minutes)", c.underlying.Name, c.expiry.Format("2006-01-02"), len(c.observed))
}
