package hedging

import (
	"math"
	"time"

	"delta-hedger/internal/models"
)

// HedgeTrade is one hedge sale at the ATM strike.
type HedgeTrade struct {
	Timestamp time.Time
	Type      models.OptionType
	Strike    float64
	Quantity  int // signed, negative for a sale
	Price     float64
}

// Cost is the premium change caused by the trade.
func (t HedgeTrade) Cost() float64 {
	return float64(t.Quantity) * t.Price
}

// HedgeRebalancer sells ATM options to pull net delta back toward zero.
// It never buys hedges back and does not enforce the hedge cap.
type HedgeRebalancer struct{}

// AdjustmentLeg returns the leg sold for a net delta beyond threshold:
// calls when net delta is too long, puts otherwise.
func AdjustmentLeg(net, threshold float64) models.OptionType {
	if net > threshold {
		return models.Call
	}
	return models.Put
}

// HedgeQuantity is the whole number of ATM contracts whose delta covers net.
func HedgeQuantity(net, atmDelta float64) int {
	d := math.Abs(atmDelta)
	if d == 0 || math.IsNaN(d) {
		return 0
	}
	return int(math.Abs(net) / d)
}

// Rebalance sells the adjustment leg at the ATM strike when |net| exceeds
// threshold. It mutates book and returns the new cumulative premium, the
// trade and whether a rebalance was triggered.
func (HedgeRebalancer) Rebalance(book models.HedgeBook, net, threshold float64, atm models.AtmInfo, premium float64) (float64, HedgeTrade, bool) {
	if math.Abs(net) <= threshold {
		return premium, HedgeTrade{}, false
	}

	leg := AdjustmentLeg(net, threshold)
	trade := HedgeTrade{
		Timestamp: atm.Timestamp,
		Type:      leg,
		Strike:    atm.Strike,
		Quantity:  -HedgeQuantity(net, atm.Delta(leg)),
		Price:     atm.Price(leg),
	}
	if trade.Quantity != 0 {
		book.Add(leg, trade.Strike, trade.Quantity)
	}
	return premium + trade.Cost(), trade, true
}
