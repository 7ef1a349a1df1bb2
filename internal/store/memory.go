package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/ticker"
)

// positionKey is the composite index enforcing one position per
// (account, ticker). The ticker is always in canonical form.
type positionKey struct {
	username string
	ticker   string
}

func keyOf(username, symbol string) positionKey {
	return positionKey{username: username, ticker: ticker.Normalize(symbol)}
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transactions are fully serialized on mu and stage their writes; nothing
// reaches the maps until the callback returns nil. Listings live behind a
// separate lock so price reads never wait on a running transaction.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*model.Account
	positions map[positionKey]*model.Position
	ledger    []model.Transaction

	stockMu sync.RWMutex
	stocks  map[string]*model.Stock
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		positions: make(map[positionKey]*model.Position),
		stocks:    make(map[string]*model.Stock),
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:         s,
		accounts:  make(map[string]*model.Account),
		positions: make(map[positionKey]*model.Position),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit.
	for name, a := range tx.accounts {
		s.accounts[name] = a
	}
	for k, p := range tx.positions {
		if p == nil {
			delete(s.positions, k)
			continue
		}
		s.positions[k] = p
	}
	s.ledger = append(s.ledger, tx.ledger...)
	return nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.Username]; ok {
		return fmt.Errorf("account %s: %w", a.Username, ErrAlreadyExists)
	}
	copy := *a
	s.accounts[a.Username] = &copy
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[username]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", username, ErrNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]model.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, *a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; !ok {
		return fmt.Errorf("account %s: %w", username, ErrNotFound)
	}
	delete(s.accounts, username)
	for k := range s.positions {
		if k.username == username {
			delete(s.positions, k)
		}
	}
	kept := s.ledger[:0]
	for _, e := range s.ledger {
		if e.Username != username {
			kept = append(kept, e)
		}
	}
	s.ledger = kept
	return nil
}

func (s *MemoryStore) UpsertStock(_ context.Context, st *model.Stock) error {
	s.stockMu.Lock()
	defer s.stockMu.Unlock()

	copy := *st
	copy.Ticker = ticker.Normalize(st.Ticker)
	s.stocks[copy.Ticker] = &copy
	return nil
}

func (s *MemoryStore) GetStock(_ context.Context, symbol string) (*model.Stock, error) {
	s.stockMu.RLock()
	defer s.stockMu.RUnlock()

	st, ok := s.stocks[ticker.Normalize(symbol)]
	if !ok {
		return nil, fmt.Errorf("stock %s: %w", symbol, ErrNotFound)
	}
	copy := *st
	return &copy, nil
}

func (s *MemoryStore) ListStocks(_ context.Context) ([]model.Stock, error) {
	s.stockMu.RLock()
	defer s.stockMu.RUnlock()

	stocks := make([]model.Stock, 0, len(s.stocks))
	for _, st := range s.stocks {
		stocks = append(stocks, *st)
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i].Ticker < stocks[j].Ticker })
	return stocks, nil
}

func (s *MemoryStore) ListPositions(_ context.Context, username string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for k, p := range s.positions {
		if k.username == username {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticker < positions[j].Ticker })
	return positions, nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, username string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, e := range s.ledger {
		if e.Username == username {
			result = append(result, e)
		}
	}
	return result, nil
}

// memTx stages writes for MemoryStore.WithTx. A nil entry in positions
// marks a deletion. The owning store's mu is held for the tx lifetime.
type memTx struct {
	s         *MemoryStore
	accounts  map[string]*model.Account
	positions map[positionKey]*model.Position
	ledger    []model.Transaction
}

func (t *memTx) GetAccountForUpdate(_ context.Context, username string) (*model.Account, error) {
	a, ok := t.accounts[username]
	if !ok {
		a, ok = t.s.accounts[username]
	}
	if !ok {
		return nil, fmt.Errorf("account %s: %w", username, ErrNotFound)
	}
	copy := *a
	return &copy, nil
}

func (t *memTx) SaveAccount(_ context.Context, a *model.Account) error {
	if _, ok := t.accounts[a.Username]; !ok {
		if _, ok := t.s.accounts[a.Username]; !ok {
			return fmt.Errorf("account %s: %w", a.Username, ErrNotFound)
		}
	}
	copy := *a
	t.accounts[a.Username] = &copy
	return nil
}

func (t *memTx) FindPosition(_ context.Context, username, symbol string) (*model.Position, error) {
	k := keyOf(username, symbol)
	p, staged := t.positions[k]
	if !staged {
		p = t.s.positions[k]
	}
	if p == nil {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

func (t *memTx) SavePosition(_ context.Context, p *model.Position) error {
	if !p.AmountOwned.IsPositive() {
		return fmt.Errorf("position %s/%s: %w", p.Username, p.Ticker, ErrZeroPosition)
	}
	copy := *p
	copy.Ticker = ticker.Normalize(p.Ticker)
	t.positions[keyOf(p.Username, p.Ticker)] = &copy
	return nil
}

func (t *memTx) DeletePosition(_ context.Context, username, symbol string) error {
	t.positions[keyOf(username, symbol)] = nil
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *model.Transaction) error {
	t.ledger = append(t.ledger, *txn)
	return nil
}
