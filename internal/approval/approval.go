// Package approval implements the three level document approval workflow
// shared by purchase orders, store requisitions and store issues.
package approval

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Kind identifies the document family an approval applies to.
type Kind string

const (
	KindRequisition   Kind = "requisition"
	KindPurchaseOrder Kind = "purchaseorder"
	KindIssue         Kind = "issue"
)

// ParseKind accepts the route spelling of a document kind.
func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindRequisition, KindPurchaseOrder, KindIssue:
		return k, true
	}
	return "", false
}

// Status is the lifecycle state of an approvable document. Documents add
// their own states on top of the approval ones.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusPendingLevel1     Status = "PENDING_LEVEL_1"
	StatusPendingLevel2     Status = "PENDING_LEVEL_2"
	StatusPendingLevel3     Status = "PENDING_LEVEL_3"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusCancelled         Status = "CANCELLED"
	StatusClosed            Status = "CLOSED"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
)

// Decision is the verdict of an approver.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// Approval is one immutable history record.
type Approval struct {
	Level     int       `json:"level"`
	ActorID   int64     `json:"actor_id"`
	Decision  Decision  `json:"decision"`
	Remarks   string    `json:"remarks"`
	DecidedAt time.Time `json:"decided_at"`
}

var (
	// ErrInvalidDecision rejects anything but APPROVED or REJECTED.
	ErrInvalidDecision = shared.Validation(shared.CodeInvalidDecision, "approval: decision must be APPROVED or REJECTED")
	// ErrNotPending indicates the document is not awaiting approval.
	ErrNotPending = shared.Conflict(shared.CodeNotPending, "approval: document is not pending approval")
	// ErrWrongLevel indicates the approver holds a different level than required.
	ErrWrongLevel = shared.Forbidden(shared.CodeWrongApprovalLevel, "approval: approver level does not match")
	// ErrDocumentNotFound indicates a missing document.
	ErrDocumentNotFound = shared.NotFound("approval: document not found")
)

// RequiredLevel returns the approver level a document in status needs.
// Draft documents may be approved directly at level one.
func RequiredLevel(status Status) (int, bool) {
	switch status {
	case StatusDraft, StatusPendingLevel1:
		return 1, true
	case StatusPendingLevel2:
		return 2, true
	case StatusPendingLevel3:
		return 3, true
	}
	return 0, false
}

// Machine computes approval transitions.
type Machine struct {
	Now func() time.Time
}

// Decide applies decision by an approver of approverLevel to a document in
// status and returns the next status with the record to append.
func (m Machine) Decide(status Status, approverLevel int, decision Decision) (Status, Approval, error) {
	if decision != DecisionApproved && decision != DecisionRejected {
		return status, Approval{}, ErrInvalidDecision
	}
	level, ok := RequiredLevel(status)
	if !ok {
		return status, Approval{}, ErrNotPending
	}
	if approverLevel != level {
		return status, Approval{}, &shared.Error{
			Kind:    shared.KindForbidden,
			Code:    shared.CodeWrongApprovalLevel,
			Message: fmt.Sprintf("approval: level %d required", level),
			Line:    -1,
		}
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	record := Approval{Level: level, Decision: decision, DecidedAt: now()}
	if decision == DecisionRejected {
		return StatusRejected, record, nil
	}
	switch level {
	case 1:
		return StatusPendingLevel2, record, nil
	case 2:
		return StatusPendingLevel3, record, nil
	default:
		return StatusApproved, record, nil
	}
}
