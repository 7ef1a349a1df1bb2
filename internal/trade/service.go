// Package trade provides the trading service: buying and selling stock
// against cash accounts, plus the account, listing and portfolio operations
// and their HTTP handlers.
//
// Every mutation of one account runs under that account's lock and inside
// one store transaction, so the validate-then-mutate sequence is atomic:
// either the balance, the position and the ledger entry all change, or
// none of them do.
//
// All monetary values use shopspring/decimal, never float64.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/costbasis"
	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/pricing"
	"github.com/stocksim/trading-engine/internal/store"
	"github.com/stocksim/trading-engine/internal/ticker"
	"github.com/stocksim/trading-engine/internal/validate"
)

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Service executes trades and account operations.
type Service struct {
	store  store.Store
	oracle pricing.Oracle
	locks  *keyedMutex
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts
	now    func() time.Time
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, oracle pricing.Oracle, hub *WSHub) *Service {
	return &Service{
		store:  st,
		oracle: oracle,
		locks:  newKeyedMutex(),
		wsHub:  hub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Receipt describes an executed trade.
type Receipt struct {
	TransactionID string          `json:"transaction_id"`
	Username      string          `json:"username"`
	Ticker        string          `json:"ticker"`
	Side          string          `json:"side"`
	Shares        decimal.Decimal `json:"shares"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"` // signed cash delta
	RealizedGain  decimal.Decimal `json:"realized_gain"`
	Balance       decimal.Decimal `json:"balance"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	Position      *model.Position `json:"position"` // nil once fully sold
}

// BuyStock buys req.Shares of req.Ticker at the current price.
//
// Fails with ErrAccountNotFound, ErrStockNotFound or ErrInsufficientFunds
// before anything is written. On success the balance is debited by
// shares*price and the position is created at (shares, price) or merged
// into the weighted-average cost basis.
func (s *Service) BuyStock(ctx context.Context, req model.BuyRequest) (*Receipt, error) {
	user, sym, err := checkOrder(req.Username, req.Ticker, req.Shares)
	if err != nil {
		s.reject(SideBuy, err)
		return nil, err
	}
	req.Username, req.Ticker = user, sym

	start := time.Now()
	unlock := s.locks.Lock(req.Username)
	defer unlock()

	var receipt *Receipt
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		account, err := s.loadAccount(ctx, tx, req.Username)
		if err != nil {
			return err
		}
		price, err := s.price(ctx, sym)
		if err != nil {
			return err
		}
		position, err := tx.FindPosition(ctx, req.Username, sym)
		if err != nil {
			return err
		}

		if !validate.HasSufficientFunds(account, req, price) {
			return fmt.Errorf("%w: %s has %s, needs %s",
				ErrInsufficientFunds, req.Username, account.Balance, costbasis.Notional(req.Shares, price))
		}

		cost := costbasis.Notional(req.Shares, price)
		account.Balance = account.Balance.Sub(cost)

		var lot costbasis.Lot
		if position != nil {
			lot, err = lotOf(position).Merge(req.Shares, price)
		} else {
			position = &model.Position{Username: req.Username, Ticker: sym}
			lot, err = costbasis.Open(req.Shares, price)
		}
		if err != nil {
			return err
		}

		now := s.now()
		position.AmountOwned = lot.Amount
		position.CostBasis = lot.CostBasis
		position.TotalCost = lot.TotalCost
		position.UpdatedAt = now

		if err := tx.SavePosition(ctx, position); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		entry := &model.Transaction{
			ID:        uuid.New().String(),
			Username:  req.Username,
			Ticker:    sym,
			Kind:      model.KindBuy,
			Shares:    req.Shares,
			Price:     price,
			Amount:    cost.Neg(),
			Timestamp: now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		receipt = newReceipt(entry, account, position)
		return nil
	})
	if err != nil {
		s.reject(SideBuy, err)
		return nil, err
	}

	s.executed(receipt, time.Since(start))
	return receipt, nil
}

// SellStock sells req.Shares of req.Ticker at the current price.
//
// Fails with ErrAccountNotFound, ErrInsufficientInventory or
// ErrStockNotFound before anything is written. On success the realized gain
// (price - costBasis) * shares is added to the account's profit, the balance
// is credited by price*shares, and the position is either reduced (cost
// basis unchanged) or deleted when every share was sold.
func (s *Service) SellStock(ctx context.Context, req model.SellRequest) (*Receipt, error) {
	user, sym, err := checkOrder(req.Username, req.Ticker, req.Shares)
	if err != nil {
		s.reject(SideSell, err)
		return nil, err
	}
	req.Username, req.Ticker = user, sym

	start := time.Now()
	unlock := s.locks.Lock(req.Username)
	defer unlock()

	var receipt *Receipt
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		account, err := s.loadAccount(ctx, tx, req.Username)
		if err != nil {
			return err
		}
		position, err := tx.FindPosition(ctx, req.Username, sym)
		if err != nil {
			return err
		}
		if !validate.HasSufficientInventory(position, req) {
			owned := decimal.Zero
			if position != nil {
				owned = position.AmountOwned
			}
			return fmt.Errorf("%w: %s owns %s %s, selling %s",
				ErrInsufficientInventory, req.Username, owned, sym, req.Shares)
		}
		price, err := s.price(ctx, sym)
		if err != nil {
			return err
		}

		// Gain and proceeds use the pre-sale basis and amount.
		lot := lotOf(position)
		gain := lot.RealizedGain(req.Shares, price)
		proceeds := costbasis.Notional(req.Shares, price)
		account.TotalProfit = account.TotalProfit.Add(gain)
		account.Balance = account.Balance.Add(proceeds)

		rest, err := lot.Reduce(req.Shares)
		if err != nil {
			return err
		}

		now := s.now()
		if rest.Closed() {
			if err := tx.DeletePosition(ctx, req.Username, sym); err != nil {
				return fmt.Errorf("delete position: %w", err)
			}
			position = nil
		} else {
			position.AmountOwned = rest.Amount
			position.TotalCost = rest.TotalCost
			position.UpdatedAt = now
			if err := tx.SavePosition(ctx, position); err != nil {
				return fmt.Errorf("save position: %w", err)
			}
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		entry := &model.Transaction{
			ID:           uuid.New().String(),
			Username:     req.Username,
			Ticker:       sym,
			Kind:         model.KindSell,
			Shares:       req.Shares,
			Price:        price,
			Amount:       proceeds,
			RealizedGain: gain,
			Timestamp:    now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}

		receipt = newReceipt(entry, account, position)
		return nil
	})
	if err != nil {
		s.reject(SideSell, err)
		return nil, err
	}

	s.executed(receipt, time.Since(start))
	return receipt, nil
}

// --- helpers ---

// checkOrder validates the shape of a buy or sell and returns the
// canonical username and ticker.
func checkOrder(username, symbol string, shares decimal.Decimal) (string, string, error) {
	user, err := normalizeUsername(username)
	if err != nil {
		return "", "", err
	}
	sym, err := parseTicker(symbol)
	if err != nil {
		return "", "", err
	}
	if !shares.IsPositive() {
		return "", "", fmt.Errorf("%w: shares must be positive", ErrInvalidRequest)
	}
	return user, sym, nil
}

// normalizeUsername trims the account key. Every entry point goes through
// it so " alice " and "alice" name the same account.
func normalizeUsername(username string) (string, error) {
	user := strings.TrimSpace(username)
	if user == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	return user, nil
}

func parseTicker(symbol string) (string, error) {
	sym, err := ticker.Parse(symbol)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return sym, nil
}

func (s *Service) loadAccount(ctx context.Context, tx store.Tx, username string) (*model.Account, error) {
	account, err := tx.GetAccountForUpdate(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", username, err)
	}
	return account, nil
}

func (s *Service) price(ctx context.Context, sym string) (decimal.Decimal, error) {
	p, err := s.oracle.Price(ctx, sym)
	if errors.Is(err, pricing.ErrUnknownTicker) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrStockNotFound, sym)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s: %w", sym, err)
	}
	return p, nil
}

func lotOf(p *model.Position) costbasis.Lot {
	return costbasis.Lot{Amount: p.AmountOwned, CostBasis: p.CostBasis, TotalCost: p.TotalCost}
}

func newReceipt(e *model.Transaction, a *model.Account, p *model.Position) *Receipt {
	return &Receipt{
		TransactionID: e.ID,
		Username:      e.Username,
		Ticker:        e.Ticker,
		Side:          e.Kind,
		Shares:        e.Shares,
		Price:         e.Price,
		Amount:        e.Amount,
		RealizedGain:  e.RealizedGain,
		Balance:       a.Balance,
		TotalProfit:   a.TotalProfit,
		Position:      p,
	}
}

func (s *Service) reject(side string, err error) {
	metrics.TradeRejections.WithLabelValues(side, rejectionReason(err)).Inc()
}

func (s *Service) executed(r *Receipt, took time.Duration) {
	metrics.TradesTotal.WithLabelValues(r.Side).Inc()
	metrics.TradeLatency.WithLabelValues(r.Side).Observe(took.Seconds())
	vol, _ := r.Amount.Abs().Float64()
	metrics.TradeVolume.WithLabelValues(r.Ticker, r.Side).Add(vol)

	slog.Info("trade executed",
		"trade_id", r.TransactionID,
		"user", r.Username,
		"ticker", r.Ticker,
		"side", r.Side,
		"shares", r.Shares.String(),
		"price", r.Price.String(),
		"amount", r.Amount.String(),
		"realized_gain", r.RealizedGain.String(),
	)

	// Broadcast via WebSocket.
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "trade_executed",
			Ticker:   r.Ticker,
			Side:     r.Side,
			Shares:   r.Shares.String(),
			Price:    r.Price.String(),
			Username: r.Username,
		})
	}
}
