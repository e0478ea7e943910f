package hedging

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	apperrors "delta-hedger/internal/errors"
	"delta-hedger/internal/logging"
	"delta-hedger/internal/models"
	"delta-hedger/pkg/utils"
)

// SegmentConfig bounds one segment.
type SegmentConfig struct {
	Sizing
	ExitTime utils.Clock
}

// Segment is a simulated position from entry to termination.
type Segment struct {
	Index    int
	Position models.MainPosition
	Book     models.HedgeBook
	States   []models.SegmentState
	Trades   []HedgeTrade
	Status   models.SegmentStatus
}

// End returns the timestamp of the last simulated minute.
func (s *Segment) End() time.Time {
	if len(s.States) == 0 {
		return time.Time{}
	}
	return s.States[len(s.States)-1].Timestamp
}

// Exit returns the terminal state.
func (s *Segment) Exit() (models.SegmentState, bool) {
	if len(s.States) == 0 {
		return models.SegmentState{}, false
	}
	last := s.States[len(s.States)-1]
	return last, last.MTM.Valid
}

// SegmentSimulator drives the minute loop of one segment.
type SegmentSimulator struct {
	tracker    *DeltaTracker
	rebalancer HedgeRebalancer
	cfg        SegmentConfig
	logger     zerolog.Logger
}

// NewSegmentSimulator creates a simulator.
func NewSegmentSimulator(tracker *DeltaTracker, cfg SegmentConfig, logger zerolog.Logger) *SegmentSimulator {
	return &SegmentSimulator{tracker: tracker, cfg: cfg, logger: logger}
}

// Run simulates pos over atm, which starts at the entry minute. Every minute
// first checks the exit time, then measures net delta and sells hedges when
// it exceeds the threshold. The segment ends at the exit time, when either
// hedge leg exceeds the cap, or when the minutes run out.
func (s *SegmentSimulator) Run(index int, pos models.MainPosition, atm []models.AtmInfo) (*Segment, error) {
	seg := &Segment{
		Index:    index,
		Position: pos,
		Book:     models.NewHedgeBook(),
		Status:   models.StatusDataExhausted,
	}
	premium := pos.EntryPremium

	for _, a := range atm {
		exp, err := s.tracker.NetDelta(pos, seg.Book, a)
		if err != nil {
			return seg, apperrors.Wrapf(err, "segment %d at %s", index, a.Timestamp.Format("15:04"))
		}
		state := models.SegmentState{
			Timestamp:  a.Timestamp,
			CallDelta:  exp.CallDelta,
			PutDelta:   exp.PutDelta,
			MainDelta:  exp.Main,
			HedgeDelta: exp.Hedge,
			NetDelta:   exp.Net,
			Premium:    premium,
		}

		if !utils.ClockOf(a.Timestamp).Before(s.cfg.ExitTime) {
			return seg, s.close(seg, state, a, models.StatusExitTimeReached)
		}

		state.Status = models.StatusNoRebalance
		if math.Abs(exp.Net) > s.cfg.DeltaThreshold {
			var trade HedgeTrade
			premium, trade, _ = s.rebalancer.Rebalance(seg.Book, exp.Net, s.cfg.DeltaThreshold, a, premium)

			hedge, err := s.tracker.HedgeDelta(seg.Book, a)
			if err != nil {
				return seg, apperrors.Wrapf(err, "segment %d at %s", index, a.Timestamp.Format("15:04"))
			}
			neutral := exp.Main + hedge
			state.NeutralizedDelta = models.Float(neutral)
			state.Premium = premium
			state.Status = models.StatusRebalanced
			if trade.Quantity != 0 {
				seg.Trades = append(seg.Trades, trade)
				logging.LogRebalance(s.logger, a.Timestamp, string(trade.Type), trade.Strike, trade.Quantity, trade.Price, exp.Net, neutral)
			}

			if s.capBreached(seg.Book) {
				return seg, s.close(seg, state, a, models.StatusHedgeCapBreached)
			}
		}
		state.Hedges = seg.Book.String()
		seg.States = append(seg.States, state)
	}

	if n := len(seg.States); n > 0 {
		last := seg.States[n-1]
		seg.States = seg.States[:n-1]
		return seg, s.close(seg, last, atm[n-1], models.StatusDataExhausted)
	}
	return seg, nil
}

func (s *SegmentSimulator) capBreached(book models.HedgeBook) bool {
	limit := -s.cfg.MaxHedgeQty
	return book.Total(models.Call) < limit || book.Total(models.Put) < limit
}

// close values the book at a and appends the terminal state.
func (s *SegmentSimulator) close(seg *Segment, state models.SegmentState, a models.AtmInfo, status models.SegmentStatus) error {
	mtm, err := s.tracker.MarkToMarket(seg.Position, seg.Book, a)
	if err != nil {
		return apperrors.Wrapf(err, "segment %d mark to market at %s", seg.Index, a.Timestamp.Format("15:04"))
	}
	state.MTM = models.Float(mtm)
	state.Status = status
	state.Hedges = seg.Book.String()
	seg.States = append(seg.States, state)
	seg.Status = status
	logging.LogSegment(s.logger, seg.Index, string(status), len(seg.States), state.Premium, mtm)
	return nil
}
