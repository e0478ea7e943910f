package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"delta-hedger/internal/models"
	"delta-hedger/internal/store"
)

var (
	_ store.PriceStore  = (*MemoryStore)(nil)
	_ store.PriceWriter = (*MemoryStore)(nil)
)

type memKey struct {
	underlying string
	ts, expiry int64
	strike     float64
	typ        models.OptionType
}

// MemoryStore is an in-process price store. It counts queries so tests can
// assert which data a run touched.
type MemoryStore struct {
	mu       sync.Mutex
	index    map[string][]models.IndexBar
	options  map[memKey]float64
	expiries map[string][]time.Time

	IndexCalls  int
	OptionCalls int
	// OptionDays counts requested option keys per trading date (YYYY-MM-DD).
	OptionDays map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:      make(map[string][]models.IndexBar),
		options:    make(map[memKey]float64),
		expiries:   make(map[string][]time.Time),
		OptionDays: make(map[string]int),
	}
}

func (m *MemoryStore) SaveIndexPrices(_ context.Context, underlying string, bars []models.IndexBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append(m.index[underlying], bars...)
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	m.index[underlying] = all
	return nil
}

func (m *MemoryStore) SaveOptionPrices(_ context.Context, underlying string, quotes []models.OptionQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range quotes {
		m.options[memKey{underlying, q.Timestamp.Unix(), q.Expiry.Unix(), q.Strike, q.Type}] = q.Close
	}
	return nil
}

func (m *MemoryStore) SaveExpiries(_ context.Context, underlying string, expiries []time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append(m.expiries[underlying], expiries...)
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })
	m.expiries[underlying] = all
	return nil
}

func (m *MemoryStore) IndexPrices(_ context.Context, underlying string, from, to time.Time) ([]models.IndexBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IndexCalls++
	var out []models.IndexBar
	for _, b := range m.index[underlying] {
		if !b.Timestamp.Before(from) && !b.Timestamp.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// OptionPrices returns the stored quotes matching keys exactly, once per key.
func (m *MemoryStore) OptionPrices(_ context.Context, underlying string, keys []models.OptionKey) ([]models.OptionQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OptionCalls++
	seen := make(map[memKey]struct{}, len(keys))
	var out []models.OptionQuote
	for _, k := range keys {
		mk := memKey{underlying, k.Timestamp.Unix(), k.Expiry.Unix(), k.Strike, k.Type}
		if _, dup := seen[mk]; dup {
			continue
		}
		seen[mk] = struct{}{}
		m.OptionDays[k.Timestamp.Format("2006-01-02")]++
		if px, ok := m.options[mk]; ok {
			out = append(out, models.OptionQuote{Timestamp: k.Timestamp, Expiry: k.Expiry, Strike: k.Strike, Type: k.Type, Close: px})
		}
	}
	return out, nil
}

func (m *MemoryStore) Expiries(_ context.Context, underlying string) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.expiries[underlying]...), nil
}
