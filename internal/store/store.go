// Package store defines the persistence interface for the trading engine.
// Implementations include PostgreSQL (source of truth) and in-memory (for
// testing and development).
package store

import (
	"context"
	"errors"

	"github.com/stocksim/trading-engine/internal/model"
)

var (
	// ErrNotFound is returned when an account or stock does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when creating a record whose key is taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the persistence interface. Every balance or position mutation
// goes through WithTx so that it commits or aborts as a unit.
type Store interface {
	// WithTx runs fn inside a transaction scope. If fn returns nil the
	// writes made through tx are committed; otherwise none of them are
	// visible to any reader.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// --- Accounts ---

	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account by username.
	GetAccount(ctx context.Context, username string) (*model.Account, error)

	// ListAccounts returns all accounts ordered by username.
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// DeleteAccount removes an account and all of its positions.
	DeleteAccount(ctx context.Context, username string) error

	// --- Stock listings ---

	// UpsertStock creates or replaces a listing.
	UpsertStock(ctx context.Context, stock *model.Stock) error

	// GetStock retrieves a listing by ticker (case-insensitive).
	GetStock(ctx context.Context, ticker string) (*model.Stock, error)

	// ListStocks returns all listings ordered by ticker.
	ListStocks(ctx context.Context) ([]model.Stock, error)

	// --- Read models ---

	// ListPositions returns an account's positions ordered by ticker.
	ListPositions(ctx context.Context, username string) ([]model.Position, error)

	// ListTransactions returns an account's ledger, oldest first.
	ListTransactions(ctx context.Context, username string) ([]model.Transaction, error)
}

// Tx is the read/write view handed to a WithTx callback.
type Tx interface {
	// GetAccountForUpdate loads an account and holds it for the rest of
	// the transaction.
	GetAccountForUpdate(ctx context.Context, username string) (*model.Account, error)

	// SaveAccount writes balance and total profit in one record update.
	SaveAccount(ctx context.Context, account *model.Account) error

	// FindPosition returns the position for (username, ticker), matching
	// the ticker case-insensitively. It returns nil, nil when there is none.
	FindPosition(ctx context.Context, username, ticker string) (*model.Position, error)

	// SavePosition inserts or updates a position. AmountOwned must be positive.
	SavePosition(ctx context.Context, position *model.Position) error

	// DeletePosition removes the position for (username, ticker).
	DeletePosition(ctx context.Context, username, ticker string) error

	// InsertTransaction appends an immutable ledger record.
	InsertTransaction(ctx context.Context, txn *model.Transaction) error
}

// ErrZeroPosition is returned by SavePosition for a non-positive amount.
var ErrZeroPosition = errors.New("store: position amount must be positive")
