package integration

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

var hundred = decimal.NewFromInt(100)

// toAmount converts a stock value to ledger cents, rounding half away from zero.
func toAmount(v decimal.Decimal) accounting.Amount {
	return accounting.Amount(v.Mul(hundred).Round(0).IntPart())
}

// sourceID derives the stable journal source id of a document.
func sourceID(module string, tenantID, docID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d:%d", module, tenantID, docID)))
}
