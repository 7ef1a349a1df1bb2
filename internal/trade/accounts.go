package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/pricing"
	"github.com/stocksim/trading-engine/internal/store"
	"github.com/stocksim/trading-engine/internal/validate"
)

// CreateAccount opens a cash account with an initial balance.
func (s *Service) CreateAccount(ctx context.Context, username string, initial decimal.Decimal) (*model.Account, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if initial.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance must not be negative", ErrInvalidRequest)
	}

	account := &model.Account{
		Username:    username,
		Balance:     initial,
		TotalProfit: decimal.Zero,
		CreatedAt:   s.now(),
	}
	err = s.store.CreateAccount(ctx, account)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, username)
	}
	if err != nil {
		return nil, fmt.Errorf("create account %s: %w", username, err)
	}

	slog.Info("account created", "user", username, "balance", initial.String())
	return account, nil
}

// GetAccount returns the account for username.
func (s *Service) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	return account, err
}

// ListAccounts returns every account.
func (s *Service) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.store.ListAccounts(ctx)
}

// DeleteAccount removes an account with its positions and ledger.
func (s *Service) DeleteAccount(ctx context.Context, username string) error {
	username, err := normalizeUsername(username)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(username)
	defer unlock()

	err = s.store.DeleteAccount(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	if err != nil {
		return err
	}
	slog.Info("account deleted", "user", username)
	return nil
}

// AdjustCash deposits (change > 0) or withdraws (change < 0) cash.
// A withdrawal larger than the balance fails with ErrInsufficientFunds.
func (s *Service) AdjustCash(ctx context.Context, username string, change decimal.Decimal) (*model.Account, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if change.IsZero() {
		return nil, fmt.Errorf("%w: change must be non-zero", ErrInvalidRequest)
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	kind := model.KindDeposit
	if change.IsNegative() {
		kind = model.KindWithdrawal
	}

	var updated *model.Account
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		account, err := s.loadAccount(ctx, tx, username)
		if err != nil {
			return err
		}
		if change.IsNegative() && !validate.CanWithdraw(account, change.Neg()) {
			return fmt.Errorf("%w: %s has %s, withdrawing %s",
				ErrInsufficientFunds, username, account.Balance, change.Neg())
		}
		account.Balance = account.Balance.Add(change)
		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		entry := &model.Transaction{
			ID:        uuid.New().String(),
			Username:  username,
			Kind:      kind,
			Amount:    change,
			Timestamp: s.now(),
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CashMovements.WithLabelValues(kind).Inc()
	slog.Info("cash adjusted", "user", username, "kind", kind,
		"change", change.String(), "balance", updated.Balance.String())
	return updated, nil
}

// Positions returns the account's open positions.
func (s *Service) Positions(ctx context.Context, username string) ([]model.Position, error) {
	account, err := s.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.ListPositions(ctx, account.Username)
}

// Transactions returns the account's ledger, oldest first.
func (s *Service) Transactions(ctx context.Context, username string) ([]model.Transaction, error) {
	account, err := s.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, account.Username)
}

// Portfolio marks the account's positions to market.
// A position whose listing has disappeared is valued at its cost basis.
func (s *Service) Portfolio(ctx context.Context, username string) (*model.Portfolio, error) {
	account, err := s.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	positions, err := s.store.ListPositions(ctx, account.Username)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	portfolio := &model.Portfolio{
		Username:      account.Username,
		Cash:          account.Balance,
		Holdings:      make([]model.Holding, 0, len(positions)),
		MarketValue:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   account.TotalProfit,
	}

	for _, p := range positions {
		price, err := s.oracle.Price(ctx, p.Ticker)
		if errors.Is(err, pricing.ErrUnknownTicker) {
			price = p.CostBasis
		} else if err != nil {
			return nil, fmt.Errorf("price %s: %w", p.Ticker, err)
		}

		lot := lotOf(&p)
		h := model.Holding{
			Position:      p,
			CurrentPrice:  price,
			MarketValue:   lot.MarketValue(price),
			UnrealizedPnL: lot.UnrealizedPnL(price),
		}
		portfolio.Holdings = append(portfolio.Holdings, h)
		portfolio.MarketValue = portfolio.MarketValue.Add(h.MarketValue)
		portfolio.UnrealizedPnL = portfolio.UnrealizedPnL.Add(h.UnrealizedPnL)
	}
	portfolio.NetWorth = portfolio.Cash.Add(portfolio.MarketValue)

	return portfolio, nil
}

// --- Stock listings ---

// ListStocks returns all listings, optionally only those in sector
// (case-insensitive).
func (s *Service) ListStocks(ctx context.Context, sector string) ([]model.Stock, error) {
	stocks, err := s.store.ListStocks(ctx)
	if err != nil {
		return nil, err
	}
	if sector == "" {
		return stocks, nil
	}
	filtered := make([]model.Stock, 0, len(stocks))
	for _, st := range stocks {
		if strings.EqualFold(st.Sector, sector) {
			filtered = append(filtered, st)
		}
	}
	return filtered, nil
}

// RandomStock returns one listing picked uniformly at random.
func (s *Service) RandomStock(ctx context.Context) (*model.Stock, error) {
	stocks, err := s.store.ListStocks(ctx)
	if err != nil {
		return nil, err
	}
	if len(stocks) == 0 {
		return nil, fmt.Errorf("%w: no listings", ErrStockNotFound)
	}
	st := stocks[rand.Intn(len(stocks))]
	return &st, nil
}

// GetStock returns the listing for symbol.
func (s *Service) GetStock(ctx context.Context, symbol string) (*model.Stock, error) {
	st, err := s.store.GetStock(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStockNotFound, symbol)
	}
	return st, err
}

// GetPrice returns the canonical ticker and its current price as seen by
// trades.
func (s *Service) GetPrice(ctx context.Context, symbol string) (string, decimal.Decimal, error) {
	sym, err := parseTicker(symbol)
	if err != nil {
		return "", decimal.Zero, err
	}
	price, err := s.price(ctx, sym)
	if err != nil {
		return "", decimal.Zero, err
	}
	return sym, price, nil
}

// UpsertStock creates or updates a listing and publishes the new price.
func (s *Service) UpsertStock(ctx context.Context, st model.Stock) (*model.Stock, error) {
	sym, err := parseTicker(st.Ticker)
	if err != nil {
		return nil, err
	}
	if !st.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
	}
	st.Ticker = sym
	st.UpdatedAt = s.now()

	if err := s.store.UpsertStock(ctx, &st); err != nil {
		return nil, fmt.Errorf("upsert stock %s: %w", sym, err)
	}
	if inv, ok := s.oracle.(pricing.Invalidator); ok {
		inv.Invalidate(ctx, sym)
	}

	slog.Info("stock listed", "ticker", sym, "price", st.Price.String(), "sector", st.Sector)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:   "price_updated",
			Ticker: sym,
			Price:  st.Price.String(),
		})
	}
	return &st, nil
}
