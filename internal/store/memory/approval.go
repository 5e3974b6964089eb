package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
)

// ApprovalRepo implements approval.Store over the document maps.
type ApprovalRepo struct{ s *Store }

// Approvals returns the approval store.
func (s *Store) Approvals() *ApprovalRepo { return &ApprovalRepo{s: s} }

type approvalTx struct{ st *state }

// WithTx runs fn atomically.
func (r *ApprovalRepo) WithTx(ctx context.Context, fn func(context.Context, approval.Tx) error) error {
	return r.s.update(ctx, func(st *state) error {
		return fn(ctx, &approvalTx{st: st})
	})
}

// History lists approvals oldest first.
func (r *ApprovalRepo) History(_ context.Context, tenantID int64, kind approval.Kind, docID int64) ([]approval.Approval, error) {
	return slices.Clone(r.s.snapshot().approvals[docKey{tenantID: tenantID, kind: kind, docID: docID}]), nil
}

func (t *approvalTx) LockStatus(_ context.Context, tenantID int64, kind approval.Kind, docID int64) (approval.Status, error) {
	switch kind {
	case approval.KindPurchaseOrder:
		if po, ok := t.st.pos[docID]; ok && po.TenantID == tenantID {
			return po.Status, nil
		}
	case approval.KindRequisition:
		if req, ok := t.st.requisitions[docID]; ok && req.TenantID == tenantID {
			return req.Status, nil
		}
	case approval.KindIssue:
		if issue, ok := t.st.issues[docID]; ok && issue.TenantID == tenantID {
			return issue.Status, nil
		}
	default:
		return "", fmt.Errorf("approval: unknown document kind %q", kind)
	}
	return "", approval.ErrDocumentNotFound
}

func (t *approvalTx) SetStatus(ctx context.Context, tenantID int64, kind approval.Kind, docID int64, status approval.Status, actorID int64) error {
	if _, err := t.LockStatus(ctx, tenantID, kind, docID); err != nil {
		return err
	}
	switch kind {
	case approval.KindPurchaseOrder:
		po := t.st.pos[docID]
		po.Status, po.UpdatedBy = status, actorID
		t.st.pos[docID] = po
	case approval.KindRequisition:
		req := t.st.requisitions[docID]
		req.Status, req.UpdatedBy = status, actorID
		t.st.requisitions[docID] = req
	case approval.KindIssue:
		issue := t.st.issues[docID]
		issue.Status, issue.UpdatedBy = status, actorID
		t.st.issues[docID] = issue
	}
	return nil
}

func (t *approvalTx) AppendApproval(_ context.Context, tenantID int64, kind approval.Kind, docID int64, record approval.Approval) error {
	k := docKey{tenantID: tenantID, kind: kind, docID: docID}
	t.st.approvals[k] = append(slices.Clip(t.st.approvals[k]), record)
	return nil
}
