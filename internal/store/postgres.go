package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/ticker"
)

//go:embed schema.sql
var schemaSQL string

// maxTxAttempts bounds how often a transaction aborted by a serialization
// conflict is replayed. A replay starts from scratch, so nothing from the
// failed attempt is ever visible.
const maxTxAttempts = 3

// PostgreSQL error codes.
const (
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WithTx runs fn in a SERIALIZABLE transaction, replaying it when
// PostgreSQL reports a serialization failure.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isCode(err, codeSerializationFailure) {
			return err
		}
		slog.Debug("serialization conflict, retrying transaction", "attempt", attempt)
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (username, balance, total_profit, created_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4)`,
		a.Username, a.Balance.String(), a.TotalProfit.String(), a.CreatedAt,
	)
	if isCode(err, codeUniqueViolation) {
		return fmt.Errorf("account %s: %w", a.Username, ErrAlreadyExists)
	}
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT username, balance::TEXT, total_profit::TEXT, created_at
		 FROM accounts WHERE username = $1`, username)
	return scanAccount(row, username)
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT username, balance::TEXT, total_profit::TEXT, created_at
		 FROM accounts ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var balance, profit string
		if err := rows.Scan(&a.Username, &balance, &profit, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Balance, _ = decimal.NewFromString(balance)
		a.TotalProfit, _ = decimal.NewFromString(profit)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, username string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", username, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) UpsertStock(ctx context.Context, st *model.Stock) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stocks (ticker, name, sector, price, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 ON CONFLICT (ticker) DO UPDATE
		 SET name = EXCLUDED.name, sector = EXCLUDED.sector,
		     price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`,
		ticker.Normalize(st.Ticker), st.Name, st.Sector, st.Price.String(), st.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetStock(ctx context.Context, symbol string) (*model.Stock, error) {
	var st model.Stock
	var price string

	err := s.pool.QueryRow(ctx,
		`SELECT ticker, name, sector, price::TEXT, updated_at
		 FROM stocks WHERE ticker = $1`, ticker.Normalize(symbol)).
		Scan(&st.Ticker, &st.Name, &st.Sector, &price, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("stock %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get stock %s: %w", symbol, err)
	}
	st.Price, _ = decimal.NewFromString(price)
	return &st, nil
}

func (s *PostgresStore) ListStocks(ctx context.Context) ([]model.Stock, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ticker, name, sector, price::TEXT, updated_at
		 FROM stocks ORDER BY ticker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stocks []model.Stock
	for rows.Next() {
		var st model.Stock
		var price string
		if err := rows.Scan(&st.Ticker, &st.Name, &st.Sector, &price, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Price, _ = decimal.NewFromString(price)
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

func (s *PostgresStore) ListPositions(ctx context.Context, username string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT username, ticker, amount_owned::TEXT, cost_basis::TEXT, total_cost::TEXT, updated_at
		 FROM positions WHERE username = $1 ORDER BY ticker`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ListTransactions(ctx context.Context, username string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, username, ticker, kind,
		        shares::TEXT, price::TEXT, amount::TEXT, realized_gain::TEXT, timestamp
		 FROM transactions WHERE username = $1 ORDER BY timestamp`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// pgTx implements Tx on a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, username string) (*model.Account, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT username, balance::TEXT, total_profit::TEXT, created_at
		 FROM accounts WHERE username = $1 FOR UPDATE`, username)
	return scanAccount(row, username)
}

func (t *pgTx) SaveAccount(ctx context.Context, a *model.Account) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2::NUMERIC, total_profit = $3::NUMERIC
		 WHERE username = $1`,
		a.Username, a.Balance.String(), a.TotalProfit.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", a.Username, ErrNotFound)
	}
	return nil
}

func (t *pgTx) FindPosition(ctx context.Context, username, symbol string) (*model.Position, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT username, ticker, amount_owned::TEXT, cost_basis::TEXT, total_cost::TEXT, updated_at
		 FROM positions WHERE username = $1 AND ticker = $2 FOR UPDATE`,
		username, ticker.Normalize(symbol))
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find position %s/%s: %w", username, symbol, err)
	}
	return p, nil
}

func (t *pgTx) SavePosition(ctx context.Context, p *model.Position) error {
	if !p.AmountOwned.IsPositive() {
		return fmt.Errorf("position %s/%s: %w", p.Username, p.Ticker, ErrZeroPosition)
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO positions (username, ticker, amount_owned, cost_basis, total_cost, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (username, ticker) DO UPDATE
		 SET amount_owned = EXCLUDED.amount_owned,
		     cost_basis = EXCLUDED.cost_basis,
		     total_cost = EXCLUDED.total_cost,
		     updated_at = EXCLUDED.updated_at`,
		p.Username, ticker.Normalize(p.Ticker),
		p.AmountOwned.String(), p.CostBasis.String(), p.TotalCost.String(), p.UpdatedAt,
	)
	return err
}

func (t *pgTx) DeletePosition(ctx context.Context, username, symbol string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM positions WHERE username = $1 AND ticker = $2`,
		username, ticker.Normalize(symbol))
	return err
}

func (t *pgTx) InsertTransaction(ctx context.Context, e *model.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, username, ticker, kind, shares, price, amount, realized_gain, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		e.ID, e.Username, e.Ticker, e.Kind,
		e.Shares.String(), e.Price.String(), e.Amount.String(), e.RealizedGain.String(),
		e.Timestamp,
	)
	return err
}

// --- Scan helpers ---

func scanAccount(row pgx.Row, username string) (*model.Account, error) {
	var a model.Account
	var balance, profit string

	err := row.Scan(&a.Username, &balance, &profit, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", username, err)
	}
	a.Balance, _ = decimal.NewFromString(balance)
	a.TotalProfit, _ = decimal.NewFromString(profit)
	return &a, nil
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	var amount, basis, cost string

	if err := row.Scan(&p.Username, &p.Ticker, &amount, &basis, &cost, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.AmountOwned, _ = decimal.NewFromString(amount)
	p.CostBasis, _ = decimal.NewFromString(basis)
	p.TotalCost, _ = decimal.NewFromString(cost)
	return &p, nil
}

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	var entries []model.Transaction
	for rows.Next() {
		var e model.Transaction
		var sharesS, priceS, amountS, gainS string

		if err := rows.Scan(&e.ID, &e.Username, &e.Ticker, &e.Kind,
			&sharesS, &priceS, &amountS, &gainS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Shares, _ = decimal.NewFromString(sharesS)
		e.Price, _ = decimal.NewFromString(priceS)
		e.Amount, _ = decimal.NewFromString(amountS)
		e.RealizedGain, _ = decimal.NewFromString(gainS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
