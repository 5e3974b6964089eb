package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestMachineDecide(t *testing.T) {
	m := Machine{Now: func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }}
	cases := []struct {
		name     string
		status   Status
		level    int
		decision Decision
		want     Status
		code     shared.Code
	}{
		{"draft approves at level one", StatusDraft, 1, DecisionApproved, StatusPendingLevel2, ""},
		{"level one", StatusPendingLevel1, 1, DecisionApproved, StatusPendingLevel2, ""},
		{"level two", StatusPendingLevel2, 2, DecisionApproved, StatusPendingLevel3, ""},
		{"level three", StatusPendingLevel3, 3, DecisionApproved, StatusApproved, ""},
		{"reject", StatusPendingLevel2, 2, DecisionRejected, StatusRejected, ""},
		{"wrong level", StatusPendingLevel2, 1, DecisionApproved, "", shared.CodeWrongApprovalLevel},
		{"approved is terminal", StatusApproved, 3, DecisionApproved, "", shared.CodeNotPending},
		{"rejected is terminal", StatusRejected, 1, DecisionApproved, "", shared.CodeNotPending},
		{"bad decision", StatusPendingLevel1, 1, "MAYBE", "", shared.CodeInvalidDecision},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, record, err := m.Decide(tc.status, tc.level, tc.decision)
			if tc.code != "" {
				require.Error(t, err)
				require.Equal(t, tc.code, shared.CodeOf(err))
				require.Equal(t, tc.status, next)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, next)
			require.Equal(t, tc.decision, record.Decision)
			require.False(t, record.DecidedAt.IsZero())
		})
	}
}

func TestWrongLevelIsAuthorizationError(t *testing.T) {
	_, _, err := Machine{}.Decide(StatusPendingLevel3, 2, DecisionApproved)
	require.ErrorIs(t, err, ErrWrongLevel)
	require.Equal(t, shared.KindForbidden, shared.KindOf(err))
}

type fakeDoc struct {
	status  Status
	history []Approval
}

type fakeStore struct {
	docs map[int64]*fakeDoc
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	staged := make(map[int64]fakeDoc, len(f.docs))
	for id, d := range f.docs {
		staged[id] = fakeDoc{status: d.status, history: append([]Approval(nil), d.history...)}
	}
	tx := &fakeTx{docs: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, d := range staged {
		d := d
		f.docs[id] = &d
	}
	return nil
}

func (f *fakeStore) History(_ context.Context, _ int64, _ Kind, docID int64) ([]Approval, error) {
	d, ok := f.docs[docID]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return d.history, nil
}

type fakeTx struct {
	docs map[int64]fakeDoc
}

func (t *fakeTx) LockStatus(_ context.Context, _ int64, _ Kind, docID int64) (Status, error) {
	d, ok := t.docs[docID]
	if !ok {
		return "", ErrDocumentNotFound
	}
	return d.status, nil
}

func (t *fakeTx) SetStatus(_ context.Context, _ int64, _ Kind, docID int64, status Status, _ int64) error {
	d := t.docs[docID]
	d.status = status
	t.docs[docID] = d
	return nil
}

func (t *fakeTx) AppendApproval(_ context.Context, _ int64, _ Kind, docID int64, a Approval) error {
	d := t.docs[docID]
	d.history = append(d.history, a)
	t.docs[docID] = d
	return nil
}

func TestServiceDecideAppendsHistory(t *testing.T) {
	store := &fakeStore{docs: map[int64]*fakeDoc{7: {status: StatusPendingLevel1}}}
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	res, err := svc.Decide(ctx, 1, KindPurchaseOrder, 7, shared.Actor{UserID: 3, ApprovalLevel: 1}, "approved", " ok ")
	require.NoError(t, err)
	require.Equal(t, StatusPendingLevel2, res.Status)

	_, err = svc.Decide(ctx, 1, KindPurchaseOrder, 7, shared.Actor{UserID: 4, ApprovalLevel: 3}, DecisionApproved, "")
	require.ErrorIs(t, err, ErrWrongLevel)

	_, err = svc.Decide(ctx, 1, KindPurchaseOrder, 7, shared.Actor{UserID: 5, ApprovalLevel: 2}, DecisionRejected, "too costly")
	require.NoError(t, err)

	_, err = svc.Decide(ctx, 1, KindPurchaseOrder, 7, shared.Actor{UserID: 6, ApprovalLevel: 3}, DecisionApproved, "")
	require.ErrorIs(t, err, ErrNotPending)

	history, err := svc.History(ctx, 1, KindPurchaseOrder, 7)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, int64(3), history[0].ActorID)
	require.Equal(t, "ok", history[0].Remarks)
	require.Equal(t, DecisionRejected, history[1].Decision)
	require.Equal(t, StatusRejected, store.docs[7].status)

	_, err = svc.Decide(ctx, 1, KindPurchaseOrder, 99, shared.Actor{UserID: 3, ApprovalLevel: 1}, DecisionApproved, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
