// Package pricing provides the current-price lookup the trading service
// executes against.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
	"github.com/stocksim/trading-engine/internal/ticker"
)

// ErrUnknownTicker is returned when no listing exists for a ticker.
var ErrUnknownTicker = errors.New("pricing: unknown ticker")

// Oracle returns the current price of a ticker.
type Oracle interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Invalidator is implemented by oracles that cache prices.
type Invalidator interface {
	Invalidate(ctx context.Context, symbol string)
}

// Listings is the part of store.Store the StoreOracle reads from.
type Listings interface {
	GetStock(ctx context.Context, symbol string) (*model.Stock, error)
}

// StoreOracle reads prices from the stock listings table.
type StoreOracle struct {
	listings Listings
}

// NewStoreOracle creates an oracle backed by stored listings.
func NewStoreOracle(listings Listings) *StoreOracle {
	return &StoreOracle{listings: listings}
}

func (o *StoreOracle) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	st, err := o.listings.GetStock(ctx, ticker.Normalize(symbol))
	if errors.Is(err, store.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownTicker, symbol)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return st.Price, nil
}

// StaticOracle serves fixed prices. Used by tests and for seeding.
type StaticOracle map[string]decimal.Decimal

func (o StaticOracle) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := o[ticker.Normalize(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownTicker, symbol)
	}
	return p, nil
}
