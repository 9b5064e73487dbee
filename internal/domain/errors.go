package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes business-rule rejections.
type ErrorCode string

const (
	// ErrCodeInsufficientStock: a reservation exceeds the available units.
	ErrCodeInsufficientStock ErrorCode = "INSUFFICIENT_STOCK"

	// ErrCodeInvalidAdjustment: a manual adjustment would break the stock invariant.
	ErrCodeInvalidAdjustment ErrorCode = "INVALID_ADJUSTMENT"

	// ErrCodeIllegalTransition: the (from, to, actor) triple is not allowed.
	ErrCodeIllegalTransition ErrorCode = "ILLEGAL_TRANSITION"

	// ErrCodeNotFound: the referenced record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeNotificationFailure: the transport failed to deliver.
	ErrCodeNotificationFailure ErrorCode = "NOTIFICATION_FAILURE"

	// ErrCodeInvalidQuantity: a quantity that must be positive was not.
	ErrCodeInvalidQuantity ErrorCode = "INVALID_QUANTITY"

	// ErrCodeInvalidRule: a rule definition is malformed.
	ErrCodeInvalidRule ErrorCode = "INVALID_RULE"

	// ErrCodeUnknownField: a condition references a path no accessor resolves.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"
)

// Error is a coded business error. Message is meant for end users.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]string
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsInsufficientStock reports whether err is an INSUFFICIENT_STOCK error.
func IsInsufficientStock(err error) bool { return CodeOf(err) == ErrCodeInsufficientStock }

// IsInvalidAdjustment reports whether err is an INVALID_ADJUSTMENT error.
func IsInvalidAdjustment(err error) bool { return CodeOf(err) == ErrCodeInvalidAdjustment }

// IsIllegalTransition reports whether err is an ILLEGAL_TRANSITION error.
func IsIllegalTransition(err error) bool { return CodeOf(err) == ErrCodeIllegalTransition }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsNotificationFailure reports whether err is a NOTIFICATION_FAILURE error.
func IsNotificationFailure(err error) bool { return CodeOf(err) == ErrCodeNotificationFailure }

// NewInsufficientStockError reports the shortfall of a reservation.
func NewInsufficientStockError(productID string, requested, available int64) *Error {
	shortfall := requested - available
	return &Error{
		Code: ErrCodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %s: requested %d, available %d (short by %d)",
			productID, requested, available, shortfall),
		Details: map[string]string{
			"product_id": productID,
			"requested":  fmt.Sprintf("%d", requested),
			"available":  fmt.Sprintf("%d", available),
			"shortfall":  fmt.Sprintf("%d", shortfall),
		},
	}
}

// NewInvalidAdjustmentError reports an adjustment that was refused.
func NewInvalidAdjustmentError(productID string, delta int64, reason string) *Error {
	return &Error{
		Code:    ErrCodeInvalidAdjustment,
		Message: fmt.Sprintf("cannot adjust stock of product %s by %+d: %s", productID, delta, reason),
		Details: map[string]string{
			"product_id": productID,
			"delta":      fmt.Sprintf("%d", delta),
		},
	}
}

// NewIllegalTransitionError names the rejected (from, to, actor) triple.
func NewIllegalTransitionError(orderID string, from, to OrderStatus, actor Role) *Error {
	return &Error{
		Code: ErrCodeIllegalTransition,
		Message: fmt.Sprintf("order %s cannot move from %s to %s as %s",
			orderID, from, to, actor),
		Details: map[string]string{
			"order_id": orderID,
			"from":     string(from),
			"to":       string(to),
			"actor":    string(actor),
		},
	}
}

// NewNotFoundError reports a missing record of the given kind.
func NewNotFoundError(kind, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
		Details: map[string]string{"kind": kind, "id": id},
	}
}

// NewNotificationFailure wraps a transport error.
func NewNotificationFailure(kind string, err error) *Error {
	return &Error{
		Code:    ErrCodeNotificationFailure,
		Message: fmt.Sprintf("notification %s not delivered: %v", kind, err),
		Details: map[string]string{"kind": kind},
		Err:     err,
	}
}

// NewInvalidQuantityError rejects a non-positive quantity.
func NewInvalidQuantityError(productID string, quantity int64) *Error {
	return &Error{
		Code:    ErrCodeInvalidQuantity,
		Message: fmt.Sprintf("quantity for product %s must be positive, got %d", productID, quantity),
		Details: map[string]string{"product_id": productID},
	}
}

// NewInvalidRuleError reports a malformed rule.
func NewInvalidRuleError(ruleID, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidRule,
		Message: fmt.Sprintf("rule %s: %s", ruleID, message),
		Details: map[string]string{"rule_id": ruleID},
	}
}

// NewUnknownFieldError reports a condition path that resolves to nothing.
func NewUnknownFieldError(ruleID, field, kind string) *Error {
	return &Error{
		Code:    ErrCodeUnknownField,
		Message: fmt.Sprintf("rule %s: field %q is not defined for %s entities", ruleID, field, kind),
		Details: map[string]string{"rule_id": ruleID, "field": field, "kind": kind},
	}
}
