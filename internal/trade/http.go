package trade

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// --- Request types ---

// CreateAccountRequest is the JSON body for POST /accounts.
type CreateAccountRequest struct {
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
}

// CashRequest is the JSON body for POST /accounts/{username}/cash.
type CashRequest struct {
	Change decimal.Decimal `json:"change"` // positive = deposit, negative = withdrawal
}

// StockRequest is the JSON body for PUT /stocks/{ticker}.
type StockRequest struct {
	Name   string          `json:"name"`
	Sector string          `json:"sector"`
	Price  decimal.Decimal `json:"price"`
}

// PriceResponse is returned from GET /stocks/{ticker}/price.
type PriceResponse struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
}

// Routes mounts the API handlers on r.
func (s *Service) Routes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", s.handleListAccounts)
		r.Post("/", s.handleCreateAccount)
		r.Route("/{username}", func(r chi.Router) {
			r.Get("/", s.handleGetAccount)
			r.Delete("/", s.handleDeleteAccount)
			r.Post("/cash", s.handleAdjustCash)
			r.Get("/positions", s.handlePositions)
			r.Get("/transactions", s.handleTransactions)
			r.Get("/portfolio", s.handlePortfolio)
		})
	})

	r.Route("/stocks", func(r chi.Router) {
		r.Get("/", s.handleListStocks)
		r.Get("/detailed", s.handleListStocks)
		r.Get("/random", s.handleRandomStock)
		r.Get("/{ticker}", s.handleGetStock)
		r.Put("/{ticker}", s.handleUpsertStock)
		r.Get("/{ticker}/price", s.handleGetPrice)
	})

	r.Post("/trade/buy", s.handleBuy)
	r.Post("/trade/sell", s.handleSell)
}

// --- Trades ---

// handleBuy handles POST /api/v1/trade/buy
func (s *Service) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req model.BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.BuyStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleSell handles POST /api/v1/trade/sell
func (s *Service) handleSell(w http.ResponseWriter, r *http.Request) {
	var req model.SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := s.SellStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// --- Accounts ---

// handleCreateAccount handles POST /api/v1/accounts
func (s *Service) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := s.CreateAccount(r.Context(), req.Username, req.Balance)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// handleListAccounts handles GET /api/v1/accounts
func (s *Service) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// handleGetAccount handles GET /api/v1/accounts/{username}
func (s *Service) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.GetAccount(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleDeleteAccount handles DELETE /api/v1/accounts/{username}
func (s *Service) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteAccount(r.Context(), chi.URLParam(r, "username")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdjustCash handles POST /api/v1/accounts/{username}/cash
func (s *Service) handleAdjustCash(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := s.AdjustCash(r.Context(), chi.URLParam(r, "username"), req.Change)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handlePositions handles GET /api/v1/accounts/{username}/positions
func (s *Service) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.Positions(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// handleTransactions handles GET /api/v1/accounts/{username}/transactions
func (s *Service) handleTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Transactions(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handlePortfolio handles GET /api/v1/accounts/{username}/portfolio
// Returns cash, holdings marked to market, and realized/unrealized P&L.
func (s *Service) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.Portfolio(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// --- Stocks ---

// handleListStocks handles GET /api/v1/stocks and GET /api/v1/stocks/detailed
// Optionally filtered by ?sector=<name>.
func (s *Service) handleListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.ListStocks(r.Context(), r.URL.Query().Get("sector"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if stocks == nil {
		stocks = []model.Stock{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

// handleRandomStock handles GET /api/v1/stocks/random
func (s *Service) handleRandomStock(w http.ResponseWriter, r *http.Request) {
	st, err := s.RandomStock(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleGetStock handles GET /api/v1/stocks/{ticker}
func (s *Service) handleGetStock(w http.ResponseWriter, r *http.Request) {
	st, err := s.GetStock(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleGetPrice handles GET /api/v1/stocks/{ticker}/price
func (s *Service) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	sym, price, err := s.GetPrice(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{Ticker: sym, Price: price})
}

// handleUpsertStock handles PUT /api/v1/stocks/{ticker}
func (s *Service) handleUpsertStock(w http.ResponseWriter, r *http.Request) {
	var req StockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	st, err := s.UpsertStock(r.Context(), model.Stock{
		Ticker: chi.URLParam(r, "ticker"),
		Name:   req.Name,
		Sector: req.Sector,
		Price:  req.Price,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps a service error to its status. Only unexpected
// failures are logged; domain errors are the caller's to handle.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
