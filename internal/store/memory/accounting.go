package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountingRepo implements accounting.RepositoryPort.
type AccountingRepo struct{ s *Store }

// Accounting returns the journal and chart of accounts repository.
func (s *Store) Accounting() *AccountingRepo { return &AccountingRepo{s: s} }

type accountingTx struct{ st *state }

// WithTx runs fn atomically.
func (r *AccountingRepo) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error {
		return fn(ctx, &accountingTx{st: st})
	})
}

func withAccounts(st *state, e accounting.JournalEntry) accounting.JournalEntry {
	lines := slices.Clone(e.Lines)
	for i := range lines {
		if acc, ok := st.accounts[lines[i].AccountID]; ok {
			acc := acc
			lines[i].Account = &acc
		}
	}
	e.Lines = lines
	return e
}

func getEntry(st *state, tenantID, id int64) (accounting.JournalEntry, error) {
	e, ok := st.entries[id]
	if !ok || e.TenantID != tenantID {
		return accounting.JournalEntry{}, accounting.ErrEntryNotFound
	}
	return withAccounts(st, e), nil
}

// GetEntry loads one entry with lines.
func (r *AccountingRepo) GetEntry(_ context.Context, tenantID, id int64) (accounting.JournalEntry, error) {
	return getEntry(r.s.snapshot(), tenantID, id)
}

// ListEntries lists entries newest first.
func (r *AccountingRepo) ListEntries(_ context.Context, tenantID int64, filter accounting.EntryFilter) ([]accounting.JournalEntry, error) {
	st := r.s.snapshot()
	var out []accounting.JournalEntry
	for _, e := range st.entries {
		if e.TenantID != tenantID || !inRange(e.Date, filter.From, filter.To) {
			continue
		}
		if filter.DocumentType != "" && e.DocumentType != filter.DocumentType {
			continue
		}
		if filter.AccountID != 0 && !slices.ContainsFunc(e.Lines, func(l accounting.JournalLine) bool { return l.AccountID == filter.AccountID }) {
			continue
		}
		out = append(out, withAccounts(st, e))
	}
	slices.SortFunc(out, func(a, b accounting.JournalEntry) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return limit(out, filter.Limit), nil
}

// ListAccounts returns the tenant's chart ordered by code.
func (r *AccountingRepo) ListAccounts(_ context.Context, tenantID int64) ([]accounting.Account, error) {
	return listAccounts(r.s.snapshot(), tenantID), nil
}

func listAccounts(st *state, tenantID int64) []accounting.Account {
	var out []accounting.Account
	for _, a := range st.accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b accounting.Account) int { return strings.Compare(a.Code, b.Code) })
	return out
}

// GetAccount loads one chart account.
func (r *AccountingRepo) GetAccount(_ context.Context, tenantID, id int64) (accounting.Account, error) {
	return getAccount(r.s.snapshot(), tenantID, id)
}

func getAccount(st *state, tenantID, id int64) (accounting.Account, error) {
	a, ok := st.accounts[id]
	if !ok || a.TenantID != tenantID {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, nil
}

// SumAccount aggregates the account's journal lines.
func (r *AccountingRepo) SumAccount(_ context.Context, tenantID, accountID int64) (accounting.Amount, accounting.Amount, error) {
	var debit, credit accounting.Amount
	for _, e := range r.s.snapshot().entries {
		if e.TenantID != tenantID {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				debit += l.Debit
				credit += l.Credit
			}
		}
	}
	return debit, credit, nil
}

func (t *accountingTx) GetAccounts(_ context.Context, ids []int64) (map[int64]accounting.Account, error) {
	out := make(map[int64]accounting.Account, len(ids))
	for _, id := range ids {
		if a, ok := t.st.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (t *accountingTx) GetAccountForUpdate(_ context.Context, tenantID, id int64) (accounting.Account, error) {
	return getAccount(t.st, tenantID, id)
}

func (t *accountingTx) ListAccountCodes(_ context.Context, tenantID int64, typ accounting.AccountType) ([]string, error) {
	var codes []string
	for _, a := range t.st.accounts {
		if a.TenantID == tenantID && a.Type == typ {
			codes = append(codes, a.Code)
		}
	}
	return codes, nil
}

func (t *accountingTx) accountConflict(acc accounting.Account) error {
	for _, a := range t.st.accounts {
		if a.TenantID != acc.TenantID || a.ID == acc.ID {
			continue
		}
		if a.Code == acc.Code || sameName(a.Name, acc.Name) {
			return accounting.ErrDuplicateAccount
		}
	}
	return nil
}

func (t *accountingTx) InsertAccount(_ context.Context, acc accounting.Account) (accounting.Account, error) {
	if err := t.accountConflict(acc); err != nil {
		return accounting.Account{}, err
	}
	acc.ID = t.st.id()
	t.st.accounts[acc.ID] = acc
	return acc, nil
}

func (t *accountingTx) UpdateAccount(_ context.Context, acc accounting.Account) error {
	current, err := getAccount(t.st, acc.TenantID, acc.ID)
	if err != nil {
		return err
	}
	if err := t.accountConflict(acc); err != nil {
		return err
	}
	current.Name = acc.Name
	current.Subtype = acc.Subtype
	t.st.accounts[acc.ID] = current
	return nil
}

func (t *accountingTx) DeleteAccount(_ context.Context, tenantID, id int64) error {
	if _, err := getAccount(t.st, tenantID, id); err != nil {
		return err
	}
	delete(t.st.accounts, id)
	return nil
}

func (t *accountingTx) CountAccountLines(_ context.Context, tenantID, accountID int64) (int, error) {
	n := 0
	for _, e := range t.st.entries {
		if e.TenantID != tenantID {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				n++
			}
		}
	}
	return n, nil
}

func (t *accountingTx) SetAccountBalance(_ context.Context, tenantID, accountID int64, balance accounting.Amount) error {
	acc, err := getAccount(t.st, tenantID, accountID)
	if err != nil {
		return err
	}
	acc.Balance = balance
	t.st.accounts[accountID] = acc
	return nil
}

func (t *accountingTx) storeLines(entry *accounting.JournalEntry) {
	lines := make([]accounting.JournalLine, len(entry.Lines))
	for i, l := range entry.Lines {
		l.ID = t.st.id()
		l.EntryID = entry.ID
		l.Account = nil
		lines[i] = l
	}
	entry.Lines = lines
}

func (t *accountingTx) InsertEntry(_ context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	for _, e := range t.st.entries {
		if e.TenantID != entry.TenantID {
			continue
		}
		if e.Number == entry.Number {
			return accounting.JournalEntry{}, shared.Conflict(shared.CodeDuplicate, "accounting: entry number already used")
		}
		if entry.SourceModule != "" && e.SourceModule == entry.SourceModule && e.SourceID == entry.SourceID {
			return accounting.JournalEntry{}, accounting.ErrSourceAlreadyLinked
		}
	}
	entry.ID = t.st.id()
	t.storeLines(&entry)
	t.st.entries[entry.ID] = entry
	return entry, nil
}

func (t *accountingTx) GetEntryForUpdate(_ context.Context, tenantID, id int64) (accounting.JournalEntry, error) {
	return getEntry(t.st, tenantID, id)
}

func (t *accountingTx) UpdateEntry(_ context.Context, entry accounting.JournalEntry) error {
	current, ok := t.st.entries[entry.ID]
	if !ok || current.TenantID != entry.TenantID {
		return accounting.ErrEntryNotFound
	}
	current.Date = entry.Date
	current.Description = entry.Description
	current.Lines = entry.Lines
	t.storeLines(&current)
	t.st.entries[entry.ID] = current
	return nil
}

func (t *accountingTx) DeleteEntry(_ context.Context, tenantID, id int64) error {
	e, ok := t.st.entries[id]
	if !ok || e.TenantID != tenantID {
		return accounting.ErrEntryNotFound
	}
	delete(t.st.entries, id)
	return nil
}

func (t *accountingTx) FindEntryBySource(_ context.Context, tenantID int64, module string, sourceID uuid.UUID) (accounting.JournalEntry, error) {
	for _, e := range t.st.entries {
		if e.TenantID == tenantID && e.SourceModule == module && e.SourceID == sourceID {
			return withAccounts(t.st, e), nil
		}
	}
	return accounting.JournalEntry{}, accounting.ErrEntryNotFound
}

// MappingRepo implements mappings.Repository.
type MappingRepo struct{ s *Store }

// Mappings returns the account mapping repository.
func (s *Store) Mappings() *MappingRepo { return &MappingRepo{s: s} }

// Get resolves an account mapping.
func (r *MappingRepo) Get(_ context.Context, tenantID int64, module, key string) (mappings.AccountMapping, error) {
	if module == "" || key == "" {
		return mappings.AccountMapping{}, shared.Validation(shared.CodeInvalidInput, "accounting: module and key required")
	}
	module = strings.ToUpper(module)
	id, ok := r.s.snapshot().mappings[mappingKey{tenantID: tenantID, module: module, key: key}]
	if !ok {
		return mappings.AccountMapping{}, mappings.ErrMappingNotFound
	}
	return mappings.AccountMapping{TenantID: tenantID, Module: module, Key: key, AccountID: id}, nil
}

// Upsert stores or replaces a mapping.
func (r *MappingRepo) Upsert(ctx context.Context, m mappings.AccountMapping) error {
	if m.TenantID == 0 || m.Module == "" || m.Key == "" || m.AccountID == 0 {
		return shared.Validation(shared.CodeInvalidInput, "accounting: tenant, module, key and account required")
	}
	return r.s.update(ctx, func(st *state) error {
		st.mappings[mappingKey{tenantID: m.TenantID, module: strings.ToUpper(m.Module), key: m.Key}] = m.AccountID
		return nil
	})
}
