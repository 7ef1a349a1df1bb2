package validate

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestHasSufficientFunds_Enough(t *testing.T) {
	acct := &model.Account{Username: "alice", Balance: d(1000)}
	req := model.BuyRequest{Username: "alice", Ticker: "AAPL", Shares: d(5)}

	if !HasSufficientFunds(acct, req, d(100)) {
		t.Error("1000 should cover 5 x 100")
	}
}

func TestHasSufficientFunds_Exact(t *testing.T) {
	acct := &model.Account{Username: "alice", Balance: d(500)}
	req := model.BuyRequest{Username: "alice", Ticker: "AAPL", Shares: d(5)}

	if !HasSufficientFunds(acct, req, d(100)) {
		t.Error("balance equal to cost should be sufficient")
	}
}

func TestHasSufficientFunds_Short(t *testing.T) {
	// 500 left, 5 more at 120 needs 600.
	acct := &model.Account{Username: "alice", Balance: d(500)}
	req := model.BuyRequest{Username: "alice", Ticker: "AAPL", Shares: d(5)}

	if HasSufficientFunds(acct, req, d(120)) {
		t.Error("500 should not cover 5 x 120")
	}
}

func TestHasSufficientFunds_NilAccount(t *testing.T) {
	req := model.BuyRequest{Shares: d(1)}
	if HasSufficientFunds(nil, req, d(1)) {
		t.Error("nil account should never have funds")
	}
}

func TestHasSufficientInventory(t *testing.T) {
	pos := &model.Position{Username: "alice", Ticker: "AAPL", AmountOwned: d(5), CostBasis: d(100)}

	tests := []struct {
		name   string
		shares float64
		want   bool
	}{
		{"fewer", 3, true},
		{"exact", 5, true},
		{"more", 5.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := model.SellRequest{Username: "alice", Ticker: "AAPL", Shares: d(tt.shares)}
			if got := HasSufficientInventory(pos, req); got != tt.want {
				t.Errorf("HasSufficientInventory(%v) = %v, want %v", tt.shares, got, tt.want)
			}
		})
	}
}

func TestHasSufficientInventory_NoPosition(t *testing.T) {
	req := model.SellRequest{Username: "alice", Ticker: "AAPL", Shares: d(1)}
	if HasSufficientInventory(nil, req) {
		t.Error("missing position should be insufficient, not an error")
	}
}

func TestCanWithdraw(t *testing.T) {
	acct := &model.Account{Balance: d(100)}
	if !CanWithdraw(acct, d(100)) {
		t.Error("should be able to withdraw the full balance")
	}
	if CanWithdraw(acct, d(100.01)) {
		t.Error("should not be able to overdraw")
	}
}
