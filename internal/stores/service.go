package stores

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort describes the reads used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListDepartments(ctx context.Context, tenantID int64) ([]Department, error)
	GetRequisition(ctx context.Context, tenantID, id int64) (Requisition, error)
	ListRequisitions(ctx context.Context, tenantID int64, filter DocFilter) ([]Requisition, error)
	GetIssue(ctx context.Context, tenantID, id int64) (Issue, error)
	ListIssues(ctx context.Context, tenantID int64, filter DocFilter) ([]Issue, error)
	ListAllocations(ctx context.Context, tenantID int64, filter AllocationFilter) ([]Allocation, error)
}

// TxRepository exposes transactional operations. Stock writes go through
// the embedded StockTx so ledger rows commit with the issue.
type TxRepository interface {
	inventory.StockTx
	GetDepartment(ctx context.Context, tenantID, id int64) (Department, error)
	InsertDepartment(ctx context.Context, dept Department) (Department, error)
	ItemExists(ctx context.Context, tenantID, itemID int64) (bool, error)
	InsertRequisition(ctx context.Context, req Requisition) (Requisition, error)
	LockRequisition(ctx context.Context, tenantID, id int64) (Requisition, error)
	UpdateRequisitionStatus(ctx context.Context, tenantID, id int64, status approval.Status, actorID int64) error
	InsertIssue(ctx context.Context, issue Issue) (Issue, error)
	InsertIssueLine(ctx context.Context, line IssueLine) (IssueLine, error)
	LockIssue(ctx context.Context, tenantID, id int64) (Issue, error)
	UpdateIssueStatus(ctx context.Context, tenantID, id int64, status approval.Status, actorID int64) error
	InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error)
}

// SequencePort allocates document numbers.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64, prefix string, resetYearly bool) (string, error)
}

// ApprovalHistory reads approval records of a document.
type ApprovalHistory interface {
	History(ctx context.Context, tenantID int64, kind approval.Kind, docID int64) ([]approval.Approval, error)
}

// Publisher receives store events for ledger integration.
type Publisher interface {
	PublishIssuePosted(ctx context.Context, evt IssuePostedEvent) error
}

// Service orchestrates requisitions, issues and allocations.
type Service struct {
	repo        RepositoryPort
	engine      *inventory.Engine
	seq         SequencePort
	approvals   ApprovalHistory
	publisher   Publisher
	idempotency shared.IdempotencyPort
	audit       shared.AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the stores service.
func NewService(repo RepositoryPort, engine *inventory.Engine, seq SequencePort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, seq: seq, audit: audit, logger: logger, now: time.Now}
}

// WithApprovals attaches the approval history reader.
func (s *Service) WithApprovals(h ApprovalHistory) *Service {
	s.approvals = h
	return s
}

// WithPublisher attaches the event publisher.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithIdempotency attaches the idempotency key store.
func (s *Service) WithIdempotency(store shared.IdempotencyPort) *Service {
	s.idempotency = store
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateDepartment registers a department. Codes are stored upper case.
func (s *Service) CreateDepartment(ctx context.Context, tenantID int64, input DepartmentInput) (Department, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return Department{}, shared.Validation(shared.CodeInvalidInput, "stores: department code and name required")
	}
	var dept Department
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		dept, err = tx.InsertDepartment(ctx, Department{TenantID: tenantID, Code: code, Name: name})
		return err
	})
	if err != nil {
		return Department{}, err
	}
	s.recordAudit(ctx, tenantID, input.ActorID, "department.create", dept.ID, map[string]any{"code": dept.Code})
	return dept, nil
}

// ListDepartments lists departments ordered by code.
func (s *Service) ListDepartments(ctx context.Context, tenantID int64) ([]Department, error) {
	return s.repo.ListDepartments(ctx, tenantID)
}

// CreateRequisition persists a draft requisition.
func (s *Service) CreateRequisition(ctx context.Context, tenantID int64, input RequisitionInput) (Requisition, error) {
	if len(input.Lines) == 0 {
		return Requisition{}, shared.Validation(shared.CodeInvalidInput, "stores: at least one line required")
	}
	for i, l := range input.Lines {
		if !l.Qty.IsPositive() {
			return Requisition{}, shared.LineValidation(shared.CodeInvalidQuantity, i, "stores: quantity must be positive")
		}
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	var created Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetDepartment(ctx, tenantID, input.DepartmentID); err != nil {
			return err
		}
		if err := checkItems(ctx, tx, tenantID, itemIDs(input.Lines)); err != nil {
			return err
		}
		number, err := s.seq.Next(ctx, tenantID, sequence.PrefixRequisition, true)
		if err != nil {
			return err
		}
		req := Requisition{
			TenantID:     tenantID,
			Number:       number,
			DepartmentID: input.DepartmentID,
			Date:         date,
			Status:       approval.StatusDraft,
			Notes:        strings.TrimSpace(input.Notes),
			CreatedBy:    input.ActorID,
			UpdatedBy:    input.ActorID,
		}
		for _, l := range input.Lines {
			req.Lines = append(req.Lines, RequisitionLine{ItemID: l.ItemID, Qty: l.Qty, Remark: strings.TrimSpace(l.Remark)})
		}
		created, err = tx.InsertRequisition(ctx, req)
		return err
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, tenantID, input.ActorID, "requisition.create", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

func itemIDs(lines []RequisitionLineInput) []int64 {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	return ids
}

func checkItems(ctx context.Context, tx TxRepository, tenantID int64, ids []int64) error {
	for i, id := range ids {
		ok, err := tx.ItemExists(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !ok {
			return shared.LineValidation(shared.CodeItemNotFound, i, "stores: item not found")
		}
	}
	return nil
}

// GetRequisition returns a requisition with its approval history.
func (s *Service) GetRequisition(ctx context.Context, tenantID, id int64) (Requisition, error) {
	req, err := s.repo.GetRequisition(ctx, tenantID, id)
	if err != nil {
		return Requisition{}, err
	}
	req.Approvals, err = s.history(ctx, tenantID, approval.KindRequisition, id)
	return req, err
}

// ListRequisitions lists requisitions newest first.
func (s *Service) ListRequisitions(ctx context.Context, tenantID int64, filter DocFilter) ([]Requisition, error) {
	if err := normalizeFilter(&filter); err != nil {
		return nil, err
	}
	return s.repo.ListRequisitions(ctx, tenantID, filter)
}

// SubmitRequisition moves a draft requisition into the approval queue.
func (s *Service) SubmitRequisition(ctx context.Context, tenantID, id, actorID int64) (Requisition, error) {
	var req Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockRequisition(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != approval.StatusDraft {
			return ErrInvalidState
		}
		if err := tx.UpdateRequisitionStatus(ctx, tenantID, id, approval.StatusPendingLevel1, actorID); err != nil {
			return err
		}
		current.Status = approval.StatusPendingLevel1
		current.UpdatedBy = actorID
		req = current
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "requisition.submit", id, map[string]any{"number": req.Number})
	return req, nil
}

// CreateIssue issues stock to a department. When a requisition is given it
// must be approved and belong to the same department; it is closed by the
// issue. Ledger rows, allocations and the requisition update commit as one
// unit, and a single short line rolls back the whole issue.
func (s *Service) CreateIssue(ctx context.Context, tenantID int64, input IssueInput) (Issue, error) {
	if input.DepartmentID == 0 {
		return Issue{}, shared.Validation(shared.CodeInvalidInput, "stores: department required")
	}
	if len(input.Lines) == 0 {
		return Issue{}, shared.Validation(shared.CodeInvalidInput, "stores: at least one line required")
	}
	for i, l := range input.Lines {
		if !l.Qty.IsPositive() {
			return Issue{}, shared.LineValidation(shared.CodeInvalidQuantity, i, "stores: quantity must be positive")
		}
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	var issue Issue
	err := shared.Reserve(ctx, s.idempotency, tenantID, input.IdempotencyKey, "stores.issue", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			issue, err = s.issue(ctx, tx, tenantID, input, date)
			return err
		})
	})
	if err != nil {
		return Issue{}, err
	}
	s.recordAudit(ctx, tenantID, input.ActorID, "issue.create", issue.ID, map[string]any{
		"number":        issue.Number,
		"department_id": issue.DepartmentID,
		"total":         issue.Total().String(),
	})
	if s.publisher != nil {
		evt := IssuePostedEvent{TenantID: tenantID, IssueID: issue.ID, Number: issue.Number, DepartmentID: issue.DepartmentID, IssueDate: issue.Date, ActorID: input.ActorID}
		if err := s.publisher.PublishIssuePosted(ctx, evt); err != nil {
			s.logger.Warn("publish issue posted failed", slog.Int64("issue_id", issue.ID), slog.Any("error", err))
		}
	}
	return issue, nil
}

func (s *Service) issue(ctx context.Context, tx TxRepository, tenantID int64, input IssueInput, date time.Time) (Issue, error) {
	if _, err := tx.GetDepartment(ctx, tenantID, input.DepartmentID); err != nil {
		return Issue{}, err
	}
	if input.RequisitionID != nil {
		req, err := tx.LockRequisition(ctx, tenantID, *input.RequisitionID)
		if err != nil {
			return Issue{}, err
		}
		if req.Status != approval.StatusApproved {
			return Issue{}, &shared.Error{
				Kind:    shared.KindConflict,
				Code:    shared.CodeInvalidState,
				Message: fmt.Sprintf("stores: requisition %s is %s", req.Number, req.Status),
				Line:    -1,
			}
		}
		if req.DepartmentID != input.DepartmentID {
			return Issue{}, ErrDepartmentMismatch
		}
	}
	number, err := s.seq.Next(ctx, tenantID, sequence.PrefixIssue, true)
	if err != nil {
		return Issue{}, err
	}
	issue, err := tx.InsertIssue(ctx, Issue{
		TenantID:      tenantID,
		Number:        number,
		DepartmentID:  input.DepartmentID,
		RequisitionID: input.RequisitionID,
		Date:          date,
		Status:        approval.StatusDraft,
		Notes:         strings.TrimSpace(input.Notes),
		CreatedBy:     input.ActorID,
		UpdatedBy:     input.ActorID,
	})
	if err != nil {
		return Issue{}, err
	}
	for i, l := range input.Lines {
		row, _, err := s.engine.Post(ctx, tx, inventory.Movement{
			TenantID:  tenantID,
			ItemID:    l.ItemID,
			DocType:   inventory.DocIssue,
			DocID:     issue.ID,
			DocNumber: issue.Number,
			DocDate:   date,
			Qty:       l.Qty,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return Issue{}, atLine(err, i)
		}
		line, err := tx.InsertIssueLine(ctx, IssueLine{IssueID: issue.ID, ItemID: l.ItemID, Qty: l.Qty, UnitCost: row.UnitCost, LedgerRowID: row.ID})
		if err != nil {
			return Issue{}, err
		}
		issue.Lines = append(issue.Lines, line)
		if _, err := tx.InsertAllocation(ctx, Allocation{
			TenantID:      tenantID,
			DepartmentID:  input.DepartmentID,
			IssueID:       issue.ID,
			RequisitionID: input.RequisitionID,
			ItemID:        l.ItemID,
			Qty:           l.Qty,
			UnitCost:      row.UnitCost,
			TotalCost:     row.TotalCost,
			IssueDate:     date,
		}); err != nil {
			return Issue{}, err
		}
	}
	if input.RequisitionID != nil {
		if err := tx.UpdateRequisitionStatus(ctx, tenantID, *input.RequisitionID, approval.StatusClosed, input.ActorID); err != nil {
			return Issue{}, err
		}
	}
	return issue, nil
}

// atLine tags a line-less domain error with the offending line index.
func atLine(err error, line int) error {
	de, ok := err.(*shared.Error)
	if !ok || de.Line >= 0 {
		return err
	}
	tagged := *de
	tagged.Line = line
	return &tagged
}

// GetIssue returns an issue with its approval history.
func (s *Service) GetIssue(ctx context.Context, tenantID, id int64) (Issue, error) {
	issue, err := s.repo.GetIssue(ctx, tenantID, id)
	if err != nil {
		return Issue{}, err
	}
	issue.Approvals, err = s.history(ctx, tenantID, approval.KindIssue, id)
	return issue, err
}

// ListIssues lists issues newest first.
func (s *Service) ListIssues(ctx context.Context, tenantID int64, filter DocFilter) ([]Issue, error) {
	if err := normalizeFilter(&filter); err != nil {
		return nil, err
	}
	return s.repo.ListIssues(ctx, tenantID, filter)
}

// SubmitIssue requests sign-off of a posted issue.
func (s *Service) SubmitIssue(ctx context.Context, tenantID, id, actorID int64) (Issue, error) {
	var issue Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockIssue(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Status != approval.StatusDraft {
			return ErrInvalidState
		}
		if err := tx.UpdateIssueStatus(ctx, tenantID, id, approval.StatusPendingLevel1, actorID); err != nil {
			return err
		}
		current.Status = approval.StatusPendingLevel1
		current.UpdatedBy = actorID
		issue = current
		return nil
	})
	if err != nil {
		return Issue{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "issue.submit", id, map[string]any{"number": issue.Number})
	return issue, nil
}

// ListAllocations lists department cost allocations in issue order.
func (s *Service) ListAllocations(ctx context.Context, tenantID int64, filter AllocationFilter) ([]Allocation, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.Validation(shared.CodeInvalidDateRange, "stores: date range end before start")
	}
	return s.repo.ListAllocations(ctx, tenantID, filter)
}

// DepartmentCosts totals allocations per department over the period.
// Departments without allocations are reported with zero cost.
func (s *Service) DepartmentCosts(ctx context.Context, tenantID int64, from, to *time.Time) ([]DepartmentCost, error) {
	allocs, err := s.ListAllocations(ctx, tenantID, AllocationFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	depts, err := s.repo.ListDepartments(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	byDept := make(map[int64]*DepartmentCost, len(depts))
	out := make([]DepartmentCost, len(depts))
	for i, d := range depts {
		out[i] = DepartmentCost{DepartmentID: d.ID, Code: d.Code, Name: d.Name, Qty: decimal.Zero, TotalCost: decimal.Zero}
		byDept[d.ID] = &out[i]
	}
	issues := make(map[int64]map[int64]struct{})
	for _, a := range allocs {
		dc, ok := byDept[a.DepartmentID]
		if !ok {
			continue
		}
		dc.Qty = dc.Qty.Add(a.Qty)
		dc.TotalCost = dc.TotalCost.Add(a.TotalCost)
		if issues[a.DepartmentID] == nil {
			issues[a.DepartmentID] = make(map[int64]struct{})
		}
		issues[a.DepartmentID][a.IssueID] = struct{}{}
	}
	for i := range out {
		out[i].Issues = len(issues[out[i].DepartmentID])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Service) history(ctx context.Context, tenantID int64, kind approval.Kind, id int64) ([]approval.Approval, error) {
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.History(ctx, tenantID, kind, id)
}

func normalizeFilter(filter *DocFilter) error {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return shared.Validation(shared.CodeInvalidDateRange, "stores: date range end before start")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   strings.SplitN(action, ".", 2)[0],
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
