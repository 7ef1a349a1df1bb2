package trade

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidRequest is returned for malformed input: empty username,
	// bad ticker, non-positive share count or amount.
	ErrInvalidRequest = errors.New("trade: invalid request")

	// ErrAccountNotFound is returned when no account has the username.
	ErrAccountNotFound = errors.New("trade: account not found")

	// ErrAccountExists is returned when creating an account whose username is taken.
	ErrAccountExists = errors.New("trade: account already exists")

	// ErrStockNotFound is returned when no listing exists for the ticker.
	ErrStockNotFound = errors.New("trade: stock not found")

	// ErrInsufficientFunds is returned when the account balance cannot
	// cover a purchase or withdrawal. Nothing is mutated.
	ErrInsufficientFunds = errors.New("trade: insufficient funds")

	// ErrInsufficientInventory is returned when the account does not own
	// enough shares (or none at all) for a sale. Nothing is mutated.
	ErrInsufficientInventory = errors.New("trade: insufficient inventory")
)

// httpStatus maps a service error to its HTTP status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrStockNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientInventory):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// rejectionReason is the metrics label for a failed trade.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrStockNotFound):
		return "stock_not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientInventory):
		return "insufficient_inventory"
	default:
		return "error"
	}
}
