// Package validate holds the pre-trade checks run before any account or
// position is mutated.
//
// The checks are pure predicates over state the caller has already loaded.
// They never return errors; the trading service turns a false result into
// the matching domain error.
package validate

import (
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/costbasis"
	"github.com/stocksim/trading-engine/internal/model"
)

// HasSufficientFunds reports whether the account can pay for the request at
// price: balance >= shares * price.
func HasSufficientFunds(account *model.Account, req model.BuyRequest, price decimal.Decimal) bool {
	if account == nil {
		return false
	}
	return account.Balance.GreaterThanOrEqual(costbasis.Notional(req.Shares, price))
}

// HasSufficientInventory reports whether position holds at least the shares
// the request wants to sell. A nil position (ticker never bought) is simply
// insufficient.
func HasSufficientInventory(position *model.Position, req model.SellRequest) bool {
	if position == nil {
		return false
	}
	return position.AmountOwned.GreaterThanOrEqual(req.Shares)
}

// CanWithdraw reports whether amount can be taken out of the account
// without driving the balance negative.
func CanWithdraw(account *model.Account, amount decimal.Decimal) bool {
	if account == nil {
		return false
	}
	return account.Balance.GreaterThanOrEqual(amount)
}
