package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/reports"
)

// AccountTotals implements reports.LedgerSource. Accounts without activity
// are returned with zero totals.
func (s *Store) AccountTotals(_ context.Context, tenantID int64, from, to *time.Time) ([]reports.AccountTotal, error) {
	st := s.snapshot()
	totals := map[int64]*reports.AccountTotal{}
	var out []*reports.AccountTotal
	for _, a := range st.accounts {
		if a.TenantID != tenantID {
			continue
		}
		t := &reports.AccountTotal{AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, Subtype: a.Subtype}
		totals[a.ID] = t
		out = append(out, t)
	}
	for _, e := range st.entries {
		if e.TenantID != tenantID || !inRange(e.Date, from, to) {
			continue
		}
		for _, l := range e.Lines {
			if t, ok := totals[l.AccountID]; ok {
				t.Debit += l.Debit
				t.Credit += l.Credit
			}
		}
	}
	slices.SortFunc(out, func(a, b *reports.AccountTotal) int { return strings.Compare(a.Code, b.Code) })
	res := make([]reports.AccountTotal, len(out))
	for i, t := range out {
		res[i] = *t
	}
	return res, nil
}
