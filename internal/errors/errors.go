package errors

import (
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Authentication errors (401xx)
	ErrInvalidToken ErrorCode = "40101"
	ErrTokenExpired ErrorCode = "40102"

	// Authorization errors (403xx)
	ErrForbidden        ErrorCode = "40301"
	ErrAccountSuspended ErrorCode = "40302"

	// Resource errors (404xx)
	ErrAccountNotFound    ErrorCode = "40401"
	ErrCreatorNotFound    ErrorCode = "40402"
	ErrRedemptionNotFound ErrorCode = "40403"
	ErrPackNotFound       ErrorCode = "40404"

	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"
	ErrBelowMinimum     ErrorCode = "40003"

	// Conflict errors (409xx)
	ErrConflict        ErrorCode = "40901"
	ErrAlreadyResolved ErrorCode = "40902"

	// Payment errors (422xx)
	ErrInsufficientFunds ErrorCode = "42201"

	// Server errors (500xx)
	ErrInternalServer      ErrorCode = "50001"
	ErrProviderUnavailable ErrorCode = "50301"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error         APIError `json:"error"`
	RequestID     string   `json:"request_id"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Path          string   `json:"path,omitempty"`
	Method        string   `json:"method,omitempty"`
}

// NewErrorResponse builds the standard error envelope
func NewErrorResponse(err *APIError, requestID, correlationID, path, method string) *ErrorResponse {
	return &ErrorResponse{
		Error:         *err,
		RequestID:     requestID,
		CorrelationID: correlationID,
		Path:          path,
		Method:        method,
	}
}

// Common errors
var (
	ErrInvalidTokenError = &APIError{
		Code:       ErrInvalidToken,
		Message:    "Invalid or malformed token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       ErrForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrAccountSuspendedError = &APIError{
		Code:       ErrAccountSuspended,
		Message:    "Account is suspended",
		HTTPStatus: http.StatusForbidden,
	}

	ErrAccountNotFoundError = &APIError{
		Code:       ErrAccountNotFound,
		Message:    "Account not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrCreatorNotFoundError = &APIError{
		Code:       ErrCreatorNotFound,
		Message:    "Creator not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrRedemptionNotFoundError = &APIError{
		Code:       ErrRedemptionNotFound,
		Message:    "Redemption request not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrPackNotFoundError = &APIError{
		Code:       ErrPackNotFound,
		Message:    "Coin pack not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrConflictError = &APIError{
		Code:       ErrConflict,
		Message:    "Resource already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrAlreadyResolvedError = &APIError{
		Code:       ErrAlreadyResolved,
		Message:    "Redemption request already resolved",
		HTTPStatus: http.StatusConflict,
	}

	ErrInsufficientFundsError = &APIError{
		Code:       ErrInsufficientFunds,
		Message:    "Insufficient coin balance",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrProviderUnavailableError = &APIError{
		Code:       ErrProviderUnavailable,
		Message:    "Payment provider unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewBelowMinimumError creates an error for redemption requests under the
// configured minimum
func NewBelowMinimumError(minimum int64) *APIError {
	return &APIError{
		Code:       ErrBelowMinimum,
		Message:    "Redemption amount is below the minimum",
		Details:    map[string]int64{"min_redemption_coins": minimum},
		HTTPStatus: http.StatusBadRequest,
	}
}
