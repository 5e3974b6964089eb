// Package mappings resolves the chart accounts used by automated postings.
package mappings

import (
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Integration modules and keys.
const (
	ModuleGRN   = "GRN"
	ModuleIssue = "ISSUE"

	KeyGRNInventory   = "grn.inventory"
	KeyGRNClearing    = "grn.grir"
	KeyIssueInventory = "issue.inventory"
	// KeyIssueExpense is the fallback expense account when a department has
	// no EXP-<dept> account of its own.
	KeyIssueExpense = "issue.expense"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	TenantID  int64
	Module    string
	Key       string
	AccountID int64
}

// ErrMappingNotFound indicates account mapping missing.
var ErrMappingNotFound = shared.NotFound("accounting: account mapping not found")
