package shared

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors so transports can map them consistently.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindIntegrity  Kind = "integrity"
)

// Code is a machine readable reason attached to a domain error.
type Code string

// Validation reasons.
const (
	CodeTooFewLines       Code = "TOO_FEW_LINES"
	CodeMissingAccount    Code = "MISSING_ACCOUNT"
	CodeNegativeAmount    Code = "NEGATIVE_AMOUNT"
	CodeBothOrNeitherSet  Code = "BOTH_OR_NEITHER_SET"
	CodeUnbalanced        Code = "UNBALANCED"
	CodeInvalidQuantity   Code = "INVALID_QUANTITY"
	CodeInvalidCost       Code = "INVALID_COST"
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeItemNotFound      Code = "ITEM_NOT_FOUND"
	CodeNonLeafCategory   Code = "NON_LEAF_CATEGORY"
	CodeInvalidPrefix     Code = "INVALID_PREFIX"
	CodeInvalidDecision   Code = "INVALID_DECISION"
	CodeInvalidDateRange  Code = "INVALID_DATE_RANGE"
	CodeInvalidCostBounds Code = "INVALID_COST_BOUNDS"
	CodeAmountTooLarge    Code = "AMOUNT_TOO_LARGE"
	CodeSupplierNotFound  Code = "SUPPLIER_NOT_FOUND"
)

// Conflict reasons.
const (
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeOverReceipt       Code = "OVER_RECEIPT"
	CodeInvalidPOState    Code = "INVALID_PO_STATE"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeNotPending        Code = "NOT_PENDING"
	CodeDuplicate         Code = "DUPLICATE"
	CodeDuplicateRequest  Code = "DUPLICATE_REQUEST"
	CodeAccountInUse      Code = "ACCOUNT_IN_USE"
	CodeItemInUse         Code = "ITEM_IN_USE"
	CodeCategoryInUse     Code = "CATEGORY_IN_USE"
	CodeEntryLocked       Code = "ENTRY_LOCKED"
	CodeSourceLinked      Code = "SOURCE_ALREADY_LINKED"
)

// Authorization reasons.
const (
	CodeAccessDenied       Code = "ACCESS_DENIED"
	CodeWrongApprovalLevel Code = "WRONG_APPROVAL_LEVEL"
)

// Not found and integrity reasons.
const (
	CodeNotFound                Code = "NOT_FOUND"
	CodeInvalidAccountReference Code = "INVALID_ACCOUNT_REFERENCE"
	CodeCrossTenantReference    Code = "CROSS_TENANT_REFERENCE"
	CodeBalanceDivergence       Code = "BALANCE_DIVERGENCE"
	CodeLedgerChainBroken       Code = "LEDGER_CHAIN_BROKEN"
	CodeTrialBalanceNotZero     Code = "TRIAL_BALANCE_NOT_ZERO"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied indicates the acting user cannot operate on the tenant.
	ErrAccessDenied = errors.New("access denied")
)

// Error is the domain error carried across service boundaries.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	// Line is the zero based offending line index, or -1 when not line specific.
	Line int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Line >= 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line+1)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code so callers can compare against
// the package level sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// NewError builds a domain error without a line reference.
func NewError(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Line: -1}
}

// Validation builds a validation error.
func Validation(code Code, msg string) *Error { return NewError(KindValidation, code, msg) }

// LineValidation builds a validation error pointing at a journal or document line.
func LineValidation(code Code, line int, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg, Line: line}
}

// Conflict builds a state conflict error.
func Conflict(code Code, msg string) *Error { return NewError(KindConflict, code, msg) }

// Forbidden builds an authorization error.
func Forbidden(code Code, msg string) *Error { return NewError(KindForbidden, code, msg) }

// NotFound builds a not found error wrapping ErrNotFound.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: msg, Line: -1, Err: ErrNotFound}
}

// Integrity builds an integrity error. These indicate corrupted or
// inconsistent stored state and must be logged, never swallowed.
func Integrity(code Code, msg string) *Error { return NewError(KindIntegrity, code, msg) }

// KindOf returns the kind of err, or the empty kind for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return ""
}

// CodeOf returns the reason code of err, or the empty code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsIntegrity reports whether err signals stored state corruption.
func IsIntegrity(err error) bool { return KindOf(err) == KindIntegrity }

// UserSafeMessage returns an error message safe to show to API clients.
func UserSafeMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindIntegrity {
		return e.Error()
	}
	return "internal error"
}
