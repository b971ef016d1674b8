package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures the way callers react to them.
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypePrecondition      ErrorType = "precondition"
	ErrorTypeInsufficientFunds ErrorType = "insufficient_funds"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeForbidden         ErrorType = "forbidden"
	ErrorTypeUnavailable       ErrorType = "unavailable"
	ErrorTypeInternal          ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

// NewPreconditionError reports state that forbids the operation: auction not
// ACTIVE, already ended, owner bidding on their own listing.
func NewPreconditionError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypePrecondition,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

// NewInsufficientFundsError is its own kind: the caller may retry after a
// deposit, so it is neither a validation nor a precondition failure.
func NewInsufficientFundsError() *AppError {
	return &AppError{
		Type:       ErrorTypeInsufficientFunds,
		Code:       "INSUFFICIENT_FUNDS",
		Message:    "insufficient funds",
		Retryable:  false,
		StatusCode: 402,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
	}
}

// NewUnavailableError covers transient storage contention and bus outages.
// Retryable by contract; the arbitration core retries contention itself.
func NewUnavailableError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       code,
		Message:    message,
		Retryable:  true,
		StatusCode: 503,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    message,
		Retryable:  true,
		StatusCode: 429,
	}
}

// Predefined common errors. Treat as read-only sentinels; use the
// constructors when details or causes must be attached.
var (
	ErrInvalidAmount      = NewValidationError("INVALID_AMOUNT", "amount must be a positive decimal")
	ErrBidTooLow          = NewValidationError("BID_TOO_LOW", "bid must exceed current price")
	ErrInsufficientFunds  = NewInsufficientFundsError()
	ErrAuctionNotFound    = NewNotFoundError("auction")
	ErrUserNotFound       = NewNotFoundError("user")
	ErrWalletNotFound     = NewNotFoundError("wallet")
	ErrAuctionNotActive   = NewPreconditionError("AUCTION_NOT_ACTIVE", "auction is not active")
	ErrAuctionEnded       = NewPreconditionError("AUCTION_ENDED", "auction has ended")
	ErrOwnerBid           = NewPreconditionError("OWNER_BID", "owner cannot bid on own auction")
	ErrNoBuyNowPrice      = NewPreconditionError("BUY_NOW_UNAVAILABLE", "auction has no buy-now price")
	ErrServiceUnavailable = NewUnavailableError("STORAGE_CONTENTION", "service unavailable")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}

// ClientMessage returns the short human-readable string shown to end users.
// Internal faults stay opaque; everything else carries its own message.
func ClientMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case ErrorTypeInternal:
			return "internal error"
		case ErrorTypeUnavailable:
			return "service unavailable"
		default:
			return appErr.Message
		}
	}
	return "internal error"
}
