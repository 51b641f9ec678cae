package swap

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error class carried on every API error
// response. Codes never change once released.
type Code string

const (
	CodeValidation  Code = "ERR_VALIDATION"
	CodeCrypto      Code = "ERR_CRYPTO"
	CodeChainRPC    Code = "ERR_CHAIN_RPC"
	CodeTxRejected  Code = "ERR_TX_REJECTED"
	CodeVenue       Code = "ERR_VENUE"
	CodeSwapExpired Code = "ERR_SWAP_EXPIRED"
	CodeNotFound    Code = "ERR_NOT_FOUND"
)

// Error is the coordinator's typed error. The message never contains a
// preimage.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%v: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

func NewError(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), err: err}
}

func ValidationError(format string, args ...interface{}) *Error {
	return NewError(CodeValidation, nil, format, args...)
}

func CryptoError(format string, args ...interface{}) *Error {
	return NewError(CodeCrypto, nil, format, args...)
}

func ChainRPCError(err error, format string, args ...interface{}) *Error {
	return NewError(CodeChainRPC, err, format, args...)
}

func TxRejectedError(reason string) *Error {
	return NewError(CodeTxRejected, nil, "transaction rejected: %v", reason)
}

func VenueError(err error, format string, args ...interface{}) *Error {
	return NewError(CodeVenue, err, format, args...)
}

func ExpiredError(swapID string) *Error {
	return NewError(CodeSwapExpired, nil, "swap %v has expired", swapID)
}

func NotFoundError(swapID string) *Error {
	return NewError(CodeNotFound, nil, "swap %v not found", swapID)
}

// CodeOf extracts the error code from err, if it wraps an *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// HTTPStatus maps an error code to the HTTP status used at the API boundary.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeCrypto:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSwapExpired:
		return http.StatusGone
	case CodeTxRejected:
		return http.StatusUnprocessableEntity
	case CodeChainRPC, CodeVenue:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
