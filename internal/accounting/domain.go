package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Amount is a monetary value in integer minor units (cents).
type Amount int64

// String renders the amount with two decimals.
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the closed set of account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// ParseAccountType accepts case-insensitive input, including "Income" for revenue.
func ParseAccountType(raw string) (AccountType, bool) {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if up == "INCOME" {
		return AccountTypeRevenue, true
	}
	t := AccountType(up)
	return t, t.Valid()
}

// Well known subtypes used by reporting.
const (
	SubtypeCash       = "CASH"
	SubtypeBank       = "BANK"
	SubtypeFixedAsset = "FIXED_ASSET"
	SubtypeInventory  = "INVENTORY"
)

// DocumentType classifies the origin of a journal entry.
type DocumentType string

const (
	DocumentManual     DocumentType = "MANUAL"
	DocumentGRN        DocumentType = "GRN"
	DocumentIssue      DocumentType = "ISSUE"
	DocumentAdjustment DocumentType = "ADJUSTMENT"
	DocumentOpening    DocumentType = "OPENING"
)

// Account models a chart of accounts node. Balance is a cache of
// sum(debit) - sum(credit) over the account's journal lines.
type Account struct {
	ID        int64       `json:"id"`
	TenantID  int64       `json:"tenant_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Subtype   string      `json:"subtype"`
	Balance   Amount      `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64         `json:"id"`
	TenantID     int64         `json:"tenant_id"`
	Number       string        `json:"number"`
	Date         time.Time     `json:"date"`
	Description  string        `json:"description"`
	DocumentType DocumentType  `json:"document_type"`
	SourceModule string        `json:"source_module"`
	SourceID     uuid.UUID     `json:"source_id"`
	CreatedBy    int64         `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	Lines        []JournalLine `json:"lines,omitempty"`
}

// Locked reports whether the entry was produced by an integration posting.
func (e JournalEntry) Locked() bool {
	return e.SourceModule != "" && e.SourceID != uuid.Nil
}

// Totals returns the debit and credit sums of the entry.
func (e JournalEntry) Totals() (debit, credit Amount) {
	for _, l := range e.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	return debit, credit
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID        int64    `json:"id"`
	EntryID   int64    `json:"entry_id"`
	LineNo    int      `json:"line_no"`
	AccountID int64    `json:"account_id"`
	Account   *Account `json:"account,omitempty"`
	Debit     Amount   `json:"debit"`
	Credit    Amount   `json:"credit"`
	Memo      string   `json:"memo"`
}

// LineInput describes one journal line in a posting request.
type LineInput struct {
	AccountID int64  `json:"account_id"`
	Debit     Amount `json:"debit"`
	Credit    Amount `json:"credit"`
	Memo      string `json:"memo"`
}

// EntryInput groups fields required to create a journal entry.
type EntryInput struct {
	Date         time.Time    `json:"date"`
	Description  string       `json:"description"`
	DocumentType DocumentType `json:"document_type"`
	CreatedBy    int64        `json:"-"`
	Lines        []LineInput  `json:"lines"`
}

// SourcePosting is a journal produced by another module. SourceID makes
// the posting idempotent.
type SourcePosting struct {
	EntryInput
	SourceModule string    `json:"source_module"`
	SourceID     uuid.UUID `json:"source_id"`
}

// EntryPatch carries optional replacements for an existing entry.
// A nil Lines slice keeps the current lines.
type EntryPatch struct {
	Date        *time.Time  `json:"date,omitempty"`
	Description *string     `json:"description,omitempty"`
	Lines       []LineInput `json:"lines,omitempty"`
	ActorID     int64       `json:"-"`
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	From         *time.Time
	To           *time.Time
	AccountID    int64
	DocumentType DocumentType
	Limit        int
}

// AccountInput creates a chart account. An empty Code is generated.
type AccountInput struct {
	Code           string      `json:"code"`
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	Subtype        string      `json:"subtype"`
	DepartmentCode string      `json:"department_code"`
	ActorID        int64       `json:"-"`
}

// AccountPatch updates mutable chart account fields.
type AccountPatch struct {
	Name    *string `json:"name,omitempty"`
	Subtype *string `json:"subtype,omitempty"`
	ActorID int64   `json:"-"`
}

// AccountBalance is the derived balance of one chart account.
type AccountBalance struct {
	Account Account `json:"account"`
	Debit   Amount  `json:"debit"`
	Credit  Amount  `json:"credit"`
	Balance Amount  `json:"balance"`
}

func buildLines(inputs []LineInput) []JournalLine {
	lines := make([]JournalLine, len(inputs))
	for i, in := range inputs {
		lines[i] = JournalLine{LineNo: i + 1, AccountID: in.AccountID, Debit: in.Debit, Credit: in.Credit, Memo: in.Memo}
	}
	return lines
}

func lineInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, len(lines))
	for i, l := range lines {
		out[i] = LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Memo: l.Memo}
	}
	return out
}
