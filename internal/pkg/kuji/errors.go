package kuji

import (
	"errors"
	"net/http"
)

// Every failure kind callers may need to tell apart gets its own sentinel.
var (
	ErrUnauthorized       = errors.New("caller lacks the required identity")
	ErrInvalidAmount      = errors.New("wager amount must be positive")
	ErrInvalidProbability = errors.New("win probability out of range")
	ErrInsufficientFunds  = errors.New("payment below the required amount")
	ErrPendingOperation   = errors.New("listing has an outstanding bet")
	ErrInvalidReference   = errors.New("unknown listing or request")
	ErrInvalidAddress     = errors.New("recipient must be a new, non-empty identity")
)

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidProbability),
		errors.Is(err, ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrPendingOperation):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidReference):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
