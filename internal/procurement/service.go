package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSupplier(ctx context.Context, tenantID, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context, tenantID int64) ([]Supplier, error)
	GetPO(ctx context.Context, tenantID, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, tenantID int64, filter POFilter) ([]PurchaseOrder, error)
	GetGRN(ctx context.Context, tenantID, id int64) (GoodsReceipt, error)
	ListGRNs(ctx context.Context, tenantID int64, filter GRNFilter) ([]GoodsReceipt, error)
}

// TxRepository exposes transactional operations. Stock writes go through
// the embedded StockTx so ledger rows commit with the receipt.
type TxRepository interface {
	inventory.StockTx
	InsertSupplier(ctx context.Context, sup Supplier) (Supplier, error)
	GetSupplier(ctx context.Context, tenantID, id int64) (Supplier, error)
	ItemExists(ctx context.Context, tenantID, itemID int64) (bool, error)
	InsertPO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	LockPO(ctx context.Context, tenantID, id int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, tenantID, id int64, status approval.Status, actorID int64) error
	UpdatePOLineReceived(ctx context.Context, lineID int64, received decimal.Decimal) error
	InsertGRN(ctx context.Context, grn GoodsReceipt) (GoodsReceipt, error)
	InsertGRNLine(ctx context.Context, line GRNLine) (GRNLine, error)
}

// SequencePort allocates document numbers.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64, prefix string, resetYearly bool) (string, error)
}

// ApprovalHistory reads approval records of a document.
type ApprovalHistory interface {
	History(ctx context.Context, tenantID int64, kind approval.Kind, docID int64) ([]approval.Approval, error)
}

// Publisher receives procurement domain events for ledger integration.
type Publisher interface {
	PublishGRNPosted(ctx context.Context, evt GRNPostedEvent) error
}

// Service orchestrates procurement flows.
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

// NewService constructs procurement service.
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

// CreateSupplier registers a supplier. Codes are stored upper case and are
// unique per tenant.
func (s *Service) CreateSupplier(ctx context.Context, tenantID int64, input SupplierInput) (Supplier, error) {
	sup := Supplier{
		TenantID:  tenantID,
		Code:      strings.ToUpper(strings.TrimSpace(input.Code)),
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		CreatedAt: s.now(),
	}
	if sup.Code == "" || sup.Name == "" {
		return Supplier{}, shared.Validation(shared.CodeInvalidInput, "procurement: supplier code and name required")
	}
	var created Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertSupplier(ctx, sup)
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, tenantID, input.ActorID, "supplier.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// GetSupplier loads one supplier of the tenant.
func (s *Service) GetSupplier(ctx context.Context, tenantID, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, tenantID, id)
}

// ListSuppliers lists suppliers ordered by code.
func (s *Service) ListSuppliers(ctx context.Context, tenantID int64) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx, tenantID)
}

// CreatePurchaseOrder persists a draft PO.
func (s *Service) CreatePurchaseOrder(ctx context.Context, tenantID int64, input POInput) (PurchaseOrder, error) {
	if input.SupplierID == 0 {
		return PurchaseOrder{}, shared.Validation(shared.CodeInvalidInput, "procurement: supplier required")
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, shared.Validation(shared.CodeInvalidInput, "procurement: at least one line required")
	}
	seen := make(map[int64]struct{}, len(input.Lines))
	for i, l := range input.Lines {
		if l.ItemID == 0 {
			return PurchaseOrder{}, shared.LineValidation(shared.CodeItemNotFound, i, "procurement: item required")
		}
		if _, dup := seen[l.ItemID]; dup {
			return PurchaseOrder{}, shared.LineValidation(shared.CodeInvalidInput, i, "procurement: item appears on more than one line")
		}
		seen[l.ItemID] = struct{}{}
		if !l.Qty.IsPositive() {
			return PurchaseOrder{}, shared.LineValidation(shared.CodeInvalidQuantity, i, "procurement: quantity must be positive")
		}
		if l.UnitPrice.IsNegative() {
			return PurchaseOrder{}, shared.LineValidation(shared.CodeInvalidCost, i, "procurement: unit price must be >= 0")
		}
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	var created PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetSupplier(ctx, tenantID, input.SupplierID); err != nil {
			if errors.Is(err, ErrSupplierNotFound) {
				return ErrUnknownSupplier
			}
			return err
		}
		for i, l := range input.Lines {
			ok, err := tx.ItemExists(ctx, tenantID, l.ItemID)
			if err != nil {
				return err
			}
			if !ok {
				return shared.LineValidation(shared.CodeItemNotFound, i, "procurement: item not found")
			}
		}
		number, err := s.seq.Next(ctx, tenantID, sequence.PrefixPO, true)
		if err != nil {
			return err
		}
		po := PurchaseOrder{
			TenantID:   tenantID,
			Number:     number,
			SupplierID: input.SupplierID,
			Date:       date,
			Status:     approval.StatusDraft,
			Notes:      strings.TrimSpace(input.Notes),
			CreatedBy:  input.ActorID,
			UpdatedBy:  input.ActorID,
			CreatedAt:  s.now(),
		}
		for _, l := range input.Lines {
			po.Lines = append(po.Lines, POLine{ItemID: l.ItemID, Qty: l.Qty, UnitPrice: l.UnitPrice, ReceivedQty: decimal.Zero})
		}
		created, err = tx.InsertPO(ctx, po)
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, tenantID, input.ActorID, "po.create", created.ID, map[string]any{"number": created.Number, "total": created.Total().String()})
	return created, nil
}

// GetPurchaseOrder returns a PO with its approval history.
func (s *Service) GetPurchaseOrder(ctx context.Context, tenantID, id int64) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, tenantID, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if s.approvals != nil {
		history, err := s.approvals.History(ctx, tenantID, approval.KindPurchaseOrder, id)
		if err != nil {
			return PurchaseOrder{}, err
		}
		po.Approvals = history
	}
	return po, nil
}

// ListPurchaseOrders lists POs newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context, tenantID int64, filter POFilter) ([]PurchaseOrder, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.ListPOs(ctx, tenantID, filter)
}

// SubmitPurchaseOrder requests approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, tenantID, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, tenantID, id, actorID, "po.submit", func(status approval.Status) (approval.Status, error) {
		if status != approval.StatusDraft {
			return status, ErrInvalidState
		}
		return approval.StatusPendingLevel1, nil
	})
}

// CancelPurchaseOrder cancels a PO that has not reached a terminal state.
func (s *Service) CancelPurchaseOrder(ctx context.Context, tenantID, id, actorID int64) (PurchaseOrder, error) {
	return s.transition(ctx, tenantID, id, actorID, "po.cancel", func(status approval.Status) (approval.Status, error) {
		switch status {
		case approval.StatusReceived, approval.StatusCancelled, approval.StatusRejected:
			return status, ErrInvalidState
		}
		return approval.StatusCancelled, nil
	})
}

func (s *Service) transition(ctx context.Context, tenantID, id, actorID int64, action string, next func(approval.Status) (approval.Status, error)) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPO(ctx, tenantID, id)
		if err != nil {
			return err
		}
		status, err := next(current.Status)
		if err != nil {
			return err
		}
		if err := tx.UpdatePOStatus(ctx, tenantID, id, status, actorID); err != nil {
			return err
		}
		current.Status = status
		current.UpdatedBy = actorID
		po = current
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, action, id, map[string]any{"number": po.Number, "status": string(po.Status)})
	return po, nil
}

func receivable(status approval.Status) bool {
	switch status {
	case approval.StatusCancelled, approval.StatusReceived, approval.StatusRejected:
		return false
	}
	return true
}

// CreateGRN receives goods against a PO. The receipt, the PO update, the
// stock ledger rows and the item balances commit as one unit.
func (s *Service) CreateGRN(ctx context.Context, tenantID int64, input GRNInput) (GoodsReceipt, error) {
	if input.POID == 0 {
		return GoodsReceipt{}, shared.Validation(shared.CodeInvalidInput, "procurement: purchase order required")
	}
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, shared.Validation(shared.CodeInvalidInput, "procurement: at least one received line required")
	}
	for i, l := range input.Lines {
		if !l.Qty.IsPositive() {
			return GoodsReceipt{}, shared.LineValidation(shared.CodeInvalidQuantity, i, "procurement: received quantity must be positive")
		}
	}
	receivedAt := input.Date
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	var grn GoodsReceipt
	err := shared.Reserve(ctx, s.idempotency, tenantID, input.IdempotencyKey, "procurement.grn", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			grn, err = s.receive(ctx, tx, tenantID, input, receivedAt)
			return err
		})
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, tenantID, input.ActorID, "grn.create", grn.ID, map[string]any{
		"number": grn.Number,
		"po_id":  grn.POID,
		"total":  grn.Total().String(),
	})
	if s.publisher != nil {
		evt := GRNPostedEvent{TenantID: tenantID, GRNID: grn.ID, Number: grn.Number, ReceivedAt: grn.ReceivedAt, ActorID: input.ActorID}
		if err := s.publisher.PublishGRNPosted(ctx, evt); err != nil {
			s.logger.Warn("publish grn posted failed", slog.Int64("grn_id", grn.ID), slog.Any("error", err))
		}
	}
	return grn, nil
}

func (s *Service) receive(ctx context.Context, tx TxRepository, tenantID int64, input GRNInput, receivedAt time.Time) (GoodsReceipt, error) {
	po, err := tx.LockPO(ctx, tenantID, input.POID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if !receivable(po.Status) {
		return GoodsReceipt{}, &shared.Error{
			Kind:    shared.KindConflict,
			Code:    shared.CodeInvalidPOState,
			Message: fmt.Sprintf("procurement: cannot receive items for a %s purchase order", po.Status),
			Line:    -1,
		}
	}
	lineIdx := make(map[int64]int, len(po.Lines))
	for i, l := range po.Lines {
		lineIdx[l.ItemID] = i
	}
	for i, l := range input.Lines {
		idx, ok := lineIdx[l.ItemID]
		if !ok {
			return GoodsReceipt{}, &shared.Error{Kind: shared.KindValidation, Code: shared.CodeItemNotFound, Message: ErrItemNotOnPO.Message, Line: i}
		}
		pl := &po.Lines[idx]
		received := pl.ReceivedQty.Add(l.Qty)
		if received.GreaterThan(pl.Qty) {
			return GoodsReceipt{}, &shared.Error{Kind: shared.KindConflict, Code: shared.CodeOverReceipt, Message: ErrOverReceipt.Message, Line: i}
		}
		pl.ReceivedQty = received
	}

	number, err := s.seq.Next(ctx, tenantID, sequence.PrefixGRN, true)
	if err != nil {
		return GoodsReceipt{}, err
	}
	grn, err := tx.InsertGRN(ctx, GoodsReceipt{
		TenantID:   tenantID,
		Number:     number,
		POID:       po.ID,
		SupplierID: po.SupplierID,
		ReceivedAt: receivedAt,
		Notes:      strings.TrimSpace(input.Notes),
		CreatedBy:  input.ActorID,
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	for _, l := range input.Lines {
		pl := po.Lines[lineIdx[l.ItemID]]
		row, _, err := s.engine.Post(ctx, tx, inventory.Movement{
			TenantID:  tenantID,
			ItemID:    l.ItemID,
			DocType:   inventory.DocGRN,
			DocID:     grn.ID,
			DocNumber: grn.Number,
			DocDate:   receivedAt,
			Qty:       l.Qty,
			UnitCost:  pl.UnitPrice,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return GoodsReceipt{}, err
		}
		line, err := tx.InsertGRNLine(ctx, GRNLine{GRNID: grn.ID, ItemID: l.ItemID, Qty: l.Qty, UnitCost: pl.UnitPrice, LedgerRowID: row.ID})
		if err != nil {
			return GoodsReceipt{}, err
		}
		grn.Lines = append(grn.Lines, line)
	}
	for _, pl := range po.Lines {
		if err := tx.UpdatePOLineReceived(ctx, pl.ID, pl.ReceivedQty); err != nil {
			return GoodsReceipt{}, err
		}
	}
	status := approval.StatusPartiallyReceived
	if po.FullyReceived() {
		status = approval.StatusReceived
	}
	if err := tx.UpdatePOStatus(ctx, tenantID, po.ID, status, input.ActorID); err != nil {
		return GoodsReceipt{}, err
	}
	return grn, nil
}

// GetGRN returns a goods receipt.
func (s *Service) GetGRN(ctx context.Context, tenantID, id int64) (GoodsReceipt, error) {
	return s.repo.GetGRN(ctx, tenantID, id)
}

// ListGRNs lists goods receipts newest first.
func (s *Service) ListGRNs(ctx context.Context, tenantID int64, filter GRNFilter) ([]GoodsReceipt, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.Validation(shared.CodeInvalidDateRange, "procurement: date range end before start")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.ListGRNs(ctx, tenantID, filter)
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
