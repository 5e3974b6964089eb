package accounting

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MaxLineAmount is the largest debit or credit accepted on one line:
// ten trillion in major units. Totals of entries within this ceiling are
// additionally checked for int64 overflow.
const MaxLineAmount Amount = 1_000_000_000_000_000

// Line validation failures. Compare with errors.Is.
var (
	ErrTooFewLines      = shared.Validation(shared.CodeTooFewLines, "accounting: journal requires at least two lines")
	ErrMissingAccount   = shared.Validation(shared.CodeMissingAccount, "accounting: line missing account")
	ErrNegativeAmount   = shared.Validation(shared.CodeNegativeAmount, "accounting: negative amount")
	ErrBothOrNeitherSet = shared.Validation(shared.CodeBothOrNeitherSet, "accounting: exactly one of debit or credit must be positive")
	ErrUnbalanced       = shared.Validation(shared.CodeUnbalanced, "accounting: journal lines must balance")
	ErrAmountTooLarge   = shared.Validation(shared.CodeAmountTooLarge, fmt.Sprintf("accounting: amount exceeds %s", MaxLineAmount))
)

// ValidateLines checks a proposed set of journal lines. Checks run in a
// fixed order and the first failure is returned with the offending line.
// It performs no I/O.
func ValidateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	for i, l := range lines {
		if l.AccountID == 0 {
			return shared.LineValidation(shared.CodeMissingAccount, i, ErrMissingAccount.Message)
		}
	}
	for i, l := range lines {
		if l.Debit < 0 || l.Credit < 0 {
			return shared.LineValidation(shared.CodeNegativeAmount, i, ErrNegativeAmount.Message)
		}
		if l.Debit > MaxLineAmount || l.Credit > MaxLineAmount {
			return shared.LineValidation(shared.CodeAmountTooLarge, i, ErrAmountTooLarge.Message)
		}
	}
	var debit, credit Amount
	for i, l := range lines {
		if (l.Debit > 0) == (l.Credit > 0) {
			return shared.LineValidation(shared.CodeBothOrNeitherSet, i, ErrBothOrNeitherSet.Message)
		}
		var ok bool
		if debit, ok = addAmount(debit, l.Debit); !ok {
			return shared.LineValidation(shared.CodeAmountTooLarge, i, ErrAmountTooLarge.Message)
		}
		if credit, ok = addAmount(credit, l.Credit); !ok {
			return shared.LineValidation(shared.CodeAmountTooLarge, i, ErrAmountTooLarge.Message)
		}
	}
	if debit != credit {
		return ErrUnbalanced
	}
	return nil
}

// addAmount adds two non-negative amounts, reporting false on overflow.
func addAmount(a, b Amount) (Amount, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
