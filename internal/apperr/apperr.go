// Package apperr classifies failures into stable, machine-readable kinds that
// the HTTP layer renders without exposing internal error chains.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable identifier returned to clients in the "error" field.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindUnauthenticated       Kind = "unauthenticated"
	KindForbidden             Kind = "forbidden"
	KindPaymentMethodDisabled Kind = "payment_method_disabled"
	KindNotFound              Kind = "not_found"
	KindProductUnavailable    Kind = "product_unavailable"
	KindInsufficientStock     Kind = "insufficient_stock"
	KindInvalidTransition     Kind = "invalid_transition"
	KindConflict              Kind = "conflict"
	KindDuplicateRequest      Kind = "duplicate_request"
	KindInfrastructure        Kind = "infrastructure"
)

// Error carries a kind, a client-safe message and optional details.
type Error struct {
	Kind      Kind
	Message   string
	Fields    map[string]string
	ProductID string
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.ProductID != "" {
		msg += " (product " + e.ProductID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation reports one message per offending field.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "request validation failed", Fields: fields}
}

// InvalidField is Validation for a single field.
func InvalidField(field, message string) *Error {
	return Validation(map[string]string{field: message})
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// InsufficientStock names the product whose stock cannot cover the request.
func InsufficientStock(productID string, requested, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("requested %d, %d in stock", requested, available),
		ProductID: productID,
	}
}

// ProductUnavailable names a product that does not exist or is inactive.
func ProductUnavailable(productID string) *Error {
	return &Error{Kind: KindProductUnavailable, Message: "product is not available", ProductID: productID}
}

// Infrastructure wraps a retryable backend failure.
func Infrastructure(op string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Message: op + " failed", Err: err}
}

// As extracts an *Error from the chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf classifies any error; unclassified errors count as infrastructure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInfrastructure
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindPaymentMethodDisabled:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindProductUnavailable, KindInsufficientStock, KindInvalidTransition, KindConflict, KindDuplicateRequest:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
