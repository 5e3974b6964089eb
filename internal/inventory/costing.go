package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// CostScale is the number of decimal places kept for unit costs.
const CostScale = 6

// Apply computes the ledger row produced by mv on top of prev, the item's
// latest row (zero value when the item has no history). It is pure: no
// I/O, no clock.
//
// Receipts move the average to (prevQty*prevAvg + q*c) / (prevQty + q).
// Issues and adjustments are valued at the current average and leave it
// unchanged.
func Apply(prev LedgerRow, mv Movement) (LedgerRow, error) {
	row := LedgerRow{
		TenantID:   mv.TenantID,
		ItemID:     mv.ItemID,
		Seq:        prev.Seq + 1,
		DocType:    mv.DocType,
		DocID:      mv.DocID,
		DocNumber:  mv.DocNumber,
		DocDate:    mv.DocDate,
		OpeningQty: prev.BalanceQty,
		CreatedBy:  mv.ActorID,
	}
	switch mv.DocType {
	case DocGRN:
		if !mv.Qty.IsPositive() {
			return LedgerRow{}, ErrInvalidQuantity
		}
		if mv.UnitCost.IsNegative() {
			return LedgerRow{}, ErrInvalidUnitCost
		}
		newQty := prev.BalanceQty.Add(mv.Qty)
		value := prev.BalanceQty.Mul(prev.BalanceAvgCost).Add(mv.Qty.Mul(mv.UnitCost))
		row.ReceivedQty = mv.Qty
		row.UnitCost = mv.UnitCost
		row.BalanceQty = newQty
		row.BalanceAvgCost = value.DivRound(newQty, CostScale)
	case DocIssue:
		if !mv.Qty.IsPositive() {
			return LedgerRow{}, ErrInvalidQuantity
		}
		if mv.Qty.GreaterThan(prev.BalanceQty) {
			return LedgerRow{}, insufficient(mv, prev)
		}
		row.IssuedQty = mv.Qty
		row.UnitCost = prev.BalanceAvgCost
		row.BalanceQty = prev.BalanceQty.Sub(mv.Qty)
		row.BalanceAvgCost = prev.BalanceAvgCost
	case DocAdjustment:
		if mv.Qty.IsZero() {
			return LedgerRow{}, ErrInvalidQuantity
		}
		newQty := prev.BalanceQty.Add(mv.Qty)
		if newQty.IsNegative() {
			return LedgerRow{}, insufficient(mv, prev)
		}
		row.AdjustQty = mv.Qty
		row.UnitCost = prev.BalanceAvgCost
		row.BalanceQty = newQty
		row.BalanceAvgCost = prev.BalanceAvgCost
	default:
		return LedgerRow{}, shared.Validation(shared.CodeInvalidInput, fmt.Sprintf("inventory: unknown document type %q", mv.DocType))
	}
	row.TotalCost = row.movedQty().Abs().Mul(row.UnitCost).Round(CostScale)
	return row, nil
}

func insufficient(mv Movement, prev LedgerRow) error {
	return &shared.Error{
		Kind:    shared.KindConflict,
		Code:    shared.CodeInsufficientStock,
		Message: fmt.Sprintf("inventory: item %d has %s on hand, requested %s", mv.ItemID, prev.BalanceQty.String(), mv.Qty.Abs().String()),
		Line:    -1,
	}
}

// movedQty is the signed quantity change of the row.
func (r LedgerRow) movedQty() decimal.Decimal {
	return r.ReceivedQty.Sub(r.IssuedQty).Add(r.AdjustQty)
}

// Value is the stock value carried after the row.
func (r LedgerRow) Value() decimal.Decimal {
	return r.BalanceQty.Mul(r.BalanceAvgCost).Round(CostScale)
}

// VerifyChain recomputes a single item's history, ordered by Seq, and
// reports the first row whose stored balance does not follow from its
// predecessor.
func VerifyChain(rows []LedgerRow) error {
	var prev LedgerRow
	for i, r := range rows {
		expected := prev.BalanceQty.Add(r.movedQty())
		switch {
		case r.Seq != prev.Seq+1:
			return chainError(i, r, "sequence gap")
		case !r.OpeningQty.Equal(prev.BalanceQty):
			return chainError(i, r, "opening qty does not match previous balance")
		case !r.BalanceQty.Equal(expected):
			return chainError(i, r, fmt.Sprintf("balance %s, expected %s", r.BalanceQty, expected))
		case r.DocType != DocGRN && i > 0 && !r.BalanceAvgCost.Equal(prev.BalanceAvgCost):
			return chainError(i, r, "average cost changed by a non-receipt row")
		}
		prev = r
	}
	return nil
}

func chainError(i int, r LedgerRow, detail string) error {
	return &shared.Error{
		Kind:    shared.KindIntegrity,
		Code:    shared.CodeLedgerChainBroken,
		Message: fmt.Sprintf("inventory: item %d ledger row %d (%s %s): %s", r.ItemID, r.Seq, r.DocType, r.DocNumber, detail),
		Line:    i,
	}
}
