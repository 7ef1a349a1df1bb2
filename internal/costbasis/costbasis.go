// Package costbasis implements weighted-average cost accounting for stock
// positions.
//
// A position carries a single average price per share. Buying more shares
// re-weights the average; selling shares books a realized gain against the
// average and leaves it unchanged for the remaining lot.
//
// All monetary values use shopspring/decimal, never float64.
// The functions are stateless: quantities and prices are passed in and the
// new values are returned.
package costbasis

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveShares is returned when a share quantity is zero or negative.
	ErrNonPositiveShares = errors.New("costbasis: share quantity must be positive")

	// ErrOversell is returned when more shares are sold than are held.
	ErrOversell = errors.New("costbasis: cannot sell more shares than held")

	// PriceScale is the number of decimal places kept for average prices.
	// Division is the only lossy step; everything else is exact.
	PriceScale int32 = 8
)

// Lot is the state of a weighted-average position. TotalCost is the exact
// amount paid for the shares still held; CostBasis is TotalCost/Amount
// rounded to PriceScale. Gains are booked against TotalCost when a lot is
// closed, so rounding in the average never leaks into realized profit.
type Lot struct {
	Amount    decimal.Decimal
	CostBasis decimal.Decimal
	TotalCost decimal.Decimal
}

// Open returns the lot created by a first purchase.
func Open(shares, price decimal.Decimal) (Lot, error) {
	if !shares.IsPositive() {
		return Lot{}, ErrNonPositiveShares
	}
	return Lot{Amount: shares, CostBasis: price, TotalCost: Notional(shares, price)}, nil
}

// Merge adds a purchase of shares at price to the lot:
//
//	cost' = cost + price*shares
//	amount' = amount + shares
//	basis' = cost' / amount'
func (l Lot) Merge(shares, price decimal.Decimal) (Lot, error) {
	if !shares.IsPositive() {
		return l, ErrNonPositiveShares
	}
	if !l.Amount.IsPositive() {
		return Open(shares, price)
	}
	amount := l.Amount.Add(shares)
	cost := l.cost().Add(Notional(shares, price))
	return Lot{Amount: amount, CostBasis: cost.DivRound(amount, PriceScale), TotalCost: cost}, nil
}

// Reduce removes shares from the lot. The cost basis is unchanged; the
// returned lot has a zero Amount when the whole position was sold.
func (l Lot) Reduce(shares decimal.Decimal) (Lot, error) {
	if !shares.IsPositive() {
		return l, ErrNonPositiveShares
	}
	if shares.GreaterThan(l.Amount) {
		return l, ErrOversell
	}
	return Lot{
		Amount:    l.Amount.Sub(shares),
		CostBasis: l.CostBasis,
		TotalCost: l.cost().Sub(l.costOf(shares)),
	}, nil
}

// cost is the exact cost of the lot. Lots stored before TotalCost was
// tracked fall back to basis * amount.
func (l Lot) cost() decimal.Decimal {
	if l.TotalCost.IsPositive() {
		return l.TotalCost
	}
	return l.CostBasis.Mul(l.Amount)
}

// costOf is the cost released by selling shares: basis * shares for a
// partial sale, the whole remaining cost when the lot closes.
func (l Lot) costOf(shares decimal.Decimal) decimal.Decimal {
	if shares.Equal(l.Amount) {
		return l.cost()
	}
	return l.CostBasis.Mul(shares)
}

// Closed reports whether the lot no longer holds any shares.
func (l Lot) Closed() bool {
	return l.Amount.IsZero()
}

// RealizedGain is the profit (or loss, if negative) from selling shares at
// price against the lot's average cost: (price - basis) * shares, or
// proceeds minus the exact remaining cost when every share is sold.
func (l Lot) RealizedGain(shares, price decimal.Decimal) decimal.Decimal {
	return Notional(shares, price).Sub(l.costOf(shares))
}

// Notional is the cash value of shares at price.
func Notional(shares, price decimal.Decimal) decimal.Decimal {
	return shares.Mul(price)
}

// MarketValue returns the lot's value at price.
func (l Lot) MarketValue(price decimal.Decimal) decimal.Decimal {
	return Notional(l.Amount, price)
}

// UnrealizedPnL returns the gain the lot would realize if fully sold at price.
func (l Lot) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return l.RealizedGain(l.Amount, price)
}
