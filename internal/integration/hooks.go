// Package integration posts operational documents to the general ledger.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
)

// Ledger exposes journal posting operations required by integrations.
type Ledger interface {
	PostFromSource(ctx context.Context, tenantID int64, posting accounting.SourcePosting) (accounting.JournalEntry, error)
	ListAccounts(ctx context.Context, tenantID int64) ([]accounting.Account, error)
}

// GRNSource reads goods receipts.
type GRNSource interface {
	GetGRN(ctx context.Context, tenantID, id int64) (procurement.GoodsReceipt, error)
	ListGRNs(ctx context.Context, tenantID int64, filter procurement.GRNFilter) ([]procurement.GoodsReceipt, error)
}

// IssueSource reads store issues and departments.
type IssueSource interface {
	GetIssue(ctx context.Context, tenantID, id int64) (stores.Issue, error)
	ListIssues(ctx context.Context, tenantID int64, filter stores.DocFilter) ([]stores.Issue, error)
	ListDepartments(ctx context.Context, tenantID int64) ([]stores.Department, error)
}

// Hooks wires domain events from operational modules into the general ledger.
type Hooks struct {
	ledger   Ledger
	mappings mappings.Repository
	grns     GRNSource
	issues   IssueSource
	logger   *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, maps mappings.Repository, grns GRNSource, issues IssueSource, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, mappings: maps, grns: grns, issues: issues, logger: logger}
}

func (h *Hooks) resolveAccount(ctx context.Context, tenantID int64, module, key string) (int64, error) {
	mapping, err := h.mappings.Get(ctx, tenantID, module, key)
	if err != nil {
		return 0, fmt.Errorf("integration: mapping %s/%s: %w", module, key, err)
	}
	return mapping.AccountID, nil
}

// post reports whether a new entry was written. A source that is already
// linked counts as done.
func (h *Hooks) post(ctx context.Context, tenantID int64, posting accounting.SourcePosting) (bool, error) {
	_, err := h.ledger.PostFromSource(ctx, tenantID, posting)
	if errors.Is(err, accounting.ErrSourceAlreadyLinked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HandleGRNPosted debits inventory and credits GR/IR clearing for the value
// received.
func (h *Hooks) HandleGRNPosted(ctx context.Context, evt procurement.GRNPostedEvent) error {
	grn, err := h.grns.GetGRN(ctx, evt.TenantID, evt.GRNID)
	if err != nil {
		return err
	}
	_, err = h.postGRN(ctx, grn, evt.ActorID)
	return err
}

func (h *Hooks) postGRN(ctx context.Context, grn procurement.GoodsReceipt, actorID int64) (bool, error) {
	total := toAmount(grn.Total())
	if total == 0 {
		return false, nil
	}
	inventoryAccount, err := h.resolveAccount(ctx, grn.TenantID, mappings.ModuleGRN, mappings.KeyGRNInventory)
	if err != nil {
		return false, err
	}
	clearingAccount, err := h.resolveAccount(ctx, grn.TenantID, mappings.ModuleGRN, mappings.KeyGRNClearing)
	if err != nil {
		return false, err
	}
	return h.post(ctx, grn.TenantID, accounting.SourcePosting{
		EntryInput: accounting.EntryInput{
			Date:         grn.ReceivedAt,
			Description:  fmt.Sprintf("GRN %s", grn.Number),
			DocumentType: accounting.DocumentGRN,
			CreatedBy:    actorID,
			Lines: []accounting.LineInput{
				{AccountID: inventoryAccount, Debit: total, Memo: grn.Number},
				{AccountID: clearingAccount, Credit: total, Memo: grn.Number},
			},
		},
		SourceModule: mappings.ModuleGRN,
		SourceID:     sourceID(mappings.ModuleGRN, grn.TenantID, grn.ID),
	})
}

// HandleIssuePosted debits the department expense account and credits
// inventory for the cost issued. Departments without an EXP-<code> account
// fall back to the mapped issue expense account.
func (h *Hooks) HandleIssuePosted(ctx context.Context, evt stores.IssuePostedEvent) error {
	issue, err := h.issues.GetIssue(ctx, evt.TenantID, evt.IssueID)
	if err != nil {
		return err
	}
	departments, err := h.departmentCodes(ctx, evt.TenantID)
	if err != nil {
		return err
	}
	_, err = h.postIssue(ctx, issue, departments, evt.ActorID)
	return err
}

func (h *Hooks) departmentCodes(ctx context.Context, tenantID int64) (map[int64]string, error) {
	deps, err := h.issues.ListDepartments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(deps))
	for _, d := range deps {
		out[d.ID] = d.Code
	}
	return out, nil
}

func (h *Hooks) expenseAccount(ctx context.Context, tenantID int64, deptCode string) (int64, error) {
	if deptCode != "" {
		accounts, err := h.ledger.ListAccounts(ctx, tenantID)
		if err != nil {
			return 0, err
		}
		want := accounting.NextAccountCode(accounting.AccountTypeExpense, deptCode, nil)
		for _, a := range accounts {
			if a.Type == accounting.AccountTypeExpense && strings.EqualFold(a.Code, want) {
				return a.ID, nil
			}
		}
	}
	return h.resolveAccount(ctx, tenantID, mappings.ModuleIssue, mappings.KeyIssueExpense)
}

func (h *Hooks) postIssue(ctx context.Context, issue stores.Issue, departments map[int64]string, actorID int64) (bool, error) {
	total := toAmount(issue.Total())
	if total == 0 {
		return false, nil
	}
	expense, err := h.expenseAccount(ctx, issue.TenantID, departments[issue.DepartmentID])
	if err != nil {
		return false, err
	}
	inventoryAccount, err := h.resolveAccount(ctx, issue.TenantID, mappings.ModuleIssue, mappings.KeyIssueInventory)
	if err != nil {
		return false, err
	}
	return h.post(ctx, issue.TenantID, accounting.SourcePosting{
		EntryInput: accounting.EntryInput{
			Date:         issue.Date,
			Description:  fmt.Sprintf("Store issue %s", issue.Number),
			DocumentType: accounting.DocumentIssue,
			CreatedBy:    actorID,
			Lines: []accounting.LineInput{
				{AccountID: expense, Debit: total, Memo: issue.Number},
				{AccountID: inventoryAccount, Credit: total, Memo: issue.Number},
			},
		},
		SourceModule: mappings.ModuleIssue,
		SourceID:     sourceID(mappings.ModuleIssue, issue.TenantID, issue.ID),
	})
}

// SyncResult counts documents handled by SyncPending.
type SyncResult struct {
	Posted  int `json:"posted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SyncPending posts every goods receipt and store issue dated on or after
// since that has no journal entry yet. Failures of single documents are
// collected and do not stop the run.
func (h *Hooks) SyncPending(ctx context.Context, tenantID int64, since time.Time) (SyncResult, error) {
	var (
		res  SyncResult
		errs []error
	)
	tally := func(doc string, posted bool, err error) {
		switch {
		case err != nil:
			res.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", doc, err))
		case posted:
			res.Posted++
		default:
			res.Skipped++
		}
	}
	grns, err := h.grns.ListGRNs(ctx, tenantID, procurement.GRNFilter{From: &since})
	if err != nil {
		return res, err
	}
	for _, g := range grns {
		posted, err := h.postGRN(ctx, g, g.CreatedBy)
		tally(g.Number, posted, err)
	}
	issues, err := h.issues.ListIssues(ctx, tenantID, stores.DocFilter{From: &since})
	if err != nil {
		return res, err
	}
	departments, err := h.departmentCodes(ctx, tenantID)
	if err != nil {
		return res, err
	}
	for _, iss := range issues {
		posted, err := h.postIssue(ctx, iss, departments, iss.CreatedBy)
		tally(iss.Number, posted, err)
	}
	if res.Posted > 0 || res.Failed > 0 {
		h.logger.Info("ledger sync finished",
			slog.Int64("tenant_id", tenantID),
			slog.Int("posted", res.Posted),
			slog.Int("skipped", res.Skipped),
			slog.Int("failed", res.Failed))
	}
	return res, errors.Join(errs...)
}

// PublishGRNPosted posts the receipt synchronously. It lets Hooks stand in
// for the queue publisher when no broker is configured.
func (h *Hooks) PublishGRNPosted(ctx context.Context, evt procurement.GRNPostedEvent) error {
	return h.HandleGRNPosted(ctx, evt)
}

// PublishIssuePosted posts the issue synchronously.
func (h *Hooks) PublishIssuePosted(ctx context.Context, evt stores.IssuePostedEvent) error {
	return h.HandleIssuePosted(ctx, evt)
}

var (
	_ procurement.Publisher = (*Hooks)(nil)
	_ stores.Publisher      = (*Hooks)(nil)
)
