package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Store persists document statuses and approval history.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	History(ctx context.Context, tenantID int64, kind Kind, docID int64) ([]Approval, error)
}

// Tx is the transactional view used while deciding.
type Tx interface {
	// LockStatus loads the document status and holds the document until
	// the transaction ends.
	LockStatus(ctx context.Context, tenantID int64, kind Kind, docID int64) (Status, error)
	SetStatus(ctx context.Context, tenantID int64, kind Kind, docID int64, status Status, actorID int64) error
	AppendApproval(ctx context.Context, tenantID int64, kind Kind, docID int64, record Approval) error
}

// Result reports the outcome of a decision.
type Result struct {
	Kind     Kind     `json:"kind"`
	DocID    int64    `json:"doc_id"`
	Status   Status   `json:"status"`
	Approval Approval `json:"approval"`
}

// Service applies approval decisions to documents.
type Service struct {
	store   Store
	machine Machine
	audit   shared.AuditPort
	logger  *slog.Logger
}

// NewService constructs Service.
func NewService(store Store, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, logger: logger}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.machine.Now = now
	return s
}

// Decide records the actor's decision on a document. The history record and
// the status change commit together.
func (s *Service) Decide(ctx context.Context, tenantID int64, kind Kind, docID int64, actor shared.Actor, decision Decision, remarks string) (Result, error) {
	decision = Decision(strings.ToUpper(strings.TrimSpace(string(decision))))
	res := Result{Kind: kind, DocID: docID}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockStatus(ctx, tenantID, kind, docID)
		if err != nil {
			return err
		}
		next, record, err := s.machine.Decide(current, actor.ApprovalLevel, decision)
		if err != nil {
			return err
		}
		record.ActorID = actor.UserID
		record.Remarks = strings.TrimSpace(remarks)
		if err := tx.AppendApproval(ctx, tenantID, kind, docID, record); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, tenantID, kind, docID, next, actor.UserID); err != nil {
			return err
		}
		res.Status = next
		res.Approval = record
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if s.audit != nil {
		auditErr := s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			ActorID:  actor.UserID,
			Action:   "approval." + strings.ToLower(string(decision)),
			Entity:   string(kind),
			EntityID: fmt.Sprintf("%d", docID),
			Meta:     map[string]any{"level": res.Approval.Level, "status": string(res.Status)},
			At:       res.Approval.DecidedAt,
		})
		if auditErr != nil {
			s.logger.Warn("audit record failed", slog.String("kind", string(kind)), slog.Any("error", auditErr))
		}
	}
	return res, nil
}

// History returns the approval records of a document oldest first.
func (s *Service) History(ctx context.Context, tenantID int64, kind Kind, docID int64) ([]Approval, error) {
	return s.store.History(ctx, tenantID, kind, docID)
}
