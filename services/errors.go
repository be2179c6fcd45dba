package services

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a ServiceError for callers and for the JSON payload.
type ErrorKind string

const (
	KindInsufficientStock         ErrorKind = "insufficient_stock"
	KindEmptyCart                 ErrorKind = "empty_cart"
	KindNotFound                  ErrorKind = "not_found"
	KindForbidden                 ErrorKind = "forbidden"
	KindInvalidTransition         ErrorKind = "invalid_transition"
	KindPaymentVerificationFailed ErrorKind = "payment_verification_failed"
	KindProviderError             ErrorKind = "provider_error"
	KindValidation                ErrorKind = "validation"
	KindConflict                  ErrorKind = "conflict"
	KindReconciliationRequired    ErrorKind = "reconciliation_required"
	KindInternal                  ErrorKind = "internal"
)

var kindStatus = map[ErrorKind]int{
	KindInsufficientStock:         http.StatusConflict,
	KindEmptyCart:                 http.StatusBadRequest,
	KindNotFound:                  http.StatusNotFound,
	KindForbidden:                 http.StatusForbidden,
	KindInvalidTransition:         http.StatusConflict,
	KindPaymentVerificationFailed: http.StatusBadRequest,
	KindProviderError:             http.StatusBadGateway,
	KindValidation:                http.StatusBadRequest,
	KindConflict:                  http.StatusConflict,
	KindReconciliationRequired:    http.StatusInternalServerError,
	KindInternal:                  http.StatusInternalServerError,
}

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string, err error) *ServiceError {
	return &ServiceError{StatusCode: kindStatus[kind], Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of a ServiceError anywhere in err's chain, or
// KindInternal.
func KindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
