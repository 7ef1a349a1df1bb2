// Package model defines the core domain types shared across the trading engine.
// All monetary values and share quantities use shopspring/decimal, never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry kinds.
const (
	KindBuy        = "BUY"
	KindSell       = "SELL"
	KindDeposit    = "DEPOSIT"
	KindWithdrawal = "WITHDRAWAL"
)

// Account is a user's cash account. Username is the identity key.
type Account struct {
	Username    string          `json:"username" db:"username"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
	TotalProfit decimal.Decimal `json:"total_profit" db:"total_profit"` // realized, signed
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Position is the shares of one ticker owned by one account.
// At most one Position exists per (Username, Ticker) and AmountOwned is
// always strictly positive once persisted.
type Position struct {
	Username    string          `json:"username" db:"username"`
	Ticker      string          `json:"ticker" db:"ticker"` // upper-cased
	AmountOwned decimal.Decimal `json:"amount_owned" db:"amount_owned"`
	CostBasis   decimal.Decimal `json:"cost_basis" db:"cost_basis"` // weighted-average price per share
	TotalCost   decimal.Decimal `json:"total_cost" db:"total_cost"` // exact cost of the shares still held
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Stock is a tradable listing with its current price.
type Stock struct {
	Ticker    string          `json:"ticker" db:"ticker"`
	Name      string          `json:"name" db:"name"`
	Sector    string          `json:"sector" db:"sector"`
	Price     decimal.Decimal `json:"price" db:"price"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// BuyRequest asks to buy Shares of Ticker for Username.
type BuyRequest struct {
	Username string          `json:"username"`
	Ticker   string          `json:"ticker"`
	Shares   decimal.Decimal `json:"shares"`
}

// SellRequest asks to sell Shares of Ticker from Username's position.
type SellRequest struct {
	Username string          `json:"username"`
	Ticker   string          `json:"ticker"`
	Shares   decimal.Decimal `json:"shares"`
}

// Transaction is an immutable ledger record of a balance mutation.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	Username     string          `json:"username" db:"username"`
	Ticker       string          `json:"ticker,omitempty" db:"ticker"` // empty for cash movements
	Kind         string          `json:"kind" db:"kind"`
	Shares       decimal.Decimal `json:"shares" db:"shares"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`               // signed cash delta
	RealizedGain decimal.Decimal `json:"realized_gain" db:"realized_gain"` // non-zero on SELL only
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// Holding is a position marked to market.
type Holding struct {
	Position
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`   // amount * current price
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"` // market value - amount * cost basis
}

// Portfolio aggregates an account's cash, holdings and P&L.
type Portfolio struct {
	Username      string          `json:"username"`
	Cash          decimal.Decimal `json:"cash"`
	Holdings      []Holding       `json:"holdings"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	NetWorth      decimal.Decimal `json:"net_worth"` // cash + market value
}
