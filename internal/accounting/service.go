package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]JournalEntry, error)
	GetEntry(ctx context.Context, tenantID, id int64) (JournalEntry, error)
	ListAccounts(ctx context.Context, tenantID int64) ([]Account, error)
	GetAccount(ctx context.Context, tenantID, id int64) (Account, error)
	SumAccount(ctx context.Context, tenantID, accountID int64) (debit, credit Amount, err error)
}

// TxRepository exposes the writes performed inside one ledger transaction.
type TxRepository interface {
	// GetAccounts returns the accounts that exist for ids regardless of tenant.
	GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	GetAccountForUpdate(ctx context.Context, tenantID, id int64) (Account, error)
	ListAccountCodes(ctx context.Context, tenantID int64, t AccountType) ([]string, error)
	InsertAccount(ctx context.Context, acc Account) (Account, error)
	UpdateAccount(ctx context.Context, acc Account) error
	DeleteAccount(ctx context.Context, tenantID, id int64) error
	CountAccountLines(ctx context.Context, tenantID, accountID int64) (int, error)
	SetAccountBalance(ctx context.Context, tenantID, accountID int64, balance Amount) error

	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, tenantID, id int64) (JournalEntry, error)
	UpdateEntry(ctx context.Context, entry JournalEntry) error
	DeleteEntry(ctx context.Context, tenantID, id int64) error
	FindEntryBySource(ctx context.Context, tenantID int64, module string, sourceID uuid.UUID) (JournalEntry, error)
}

// SequencePort allocates document numbers.
type SequencePort interface {
	Next(ctx context.Context, tenantID int64, prefix string, resetYearly bool) (string, error)
}

var (
	// ErrInvalidAccountReference indicates a line points at an unknown account.
	ErrInvalidAccountReference = shared.Validation(shared.CodeInvalidAccountReference, "accounting: chart account does not exist")
	// ErrCrossTenantAccount indicates a line points at another tenant's account.
	ErrCrossTenantAccount = shared.Integrity(shared.CodeInvalidAccountReference, "accounting: chart account belongs to another tenant")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = shared.NotFound("accounting: journal entry not found")
	// ErrAccountNotFound indicates missing chart account.
	ErrAccountNotFound = shared.NotFound("accounting: chart account not found")
	// ErrDuplicateAccount indicates a code or name collision within the tenant.
	ErrDuplicateAccount = shared.Conflict(shared.CodeDuplicate, "accounting: chart account code or name already exists")
	// ErrAccountInUse blocks deleting accounts with journal lines.
	ErrAccountInUse = shared.Conflict(shared.CodeAccountInUse, "accounting: chart account has journal lines")
	// ErrEntryLocked blocks editing entries posted by integrations.
	ErrEntryLocked = shared.Conflict(shared.CodeEntryLocked, "accounting: entry was posted from a source document")
	// ErrSourceAlreadyLinked indicates an integration posting already exists.
	ErrSourceAlreadyLinked = shared.Conflict(shared.CodeSourceLinked, "accounting: source already linked")
)

// Service coordinates chart of accounts and journal entries.
type Service struct {
	repo    RepositoryPort
	seq     SequencePort
	audit   shared.AuditPort
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, seq SequencePort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, seq: seq, audit: audit, logger: logger, now: time.Now}
}

// WithMetrics attaches domain metrics.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateEntry validates and persists a new journal entry with its lines.
func (s *Service) CreateEntry(ctx context.Context, tenantID int64, input EntryInput) (JournalEntry, error) {
	return s.createEntry(ctx, tenantID, input, "", uuid.Nil)
}

// PostFromSource persists an integration posting once per source document.
// A repeated call for the same source returns the existing entry and
// ErrSourceAlreadyLinked.
func (s *Service) PostFromSource(ctx context.Context, tenantID int64, posting SourcePosting) (JournalEntry, error) {
	if posting.SourceModule == "" || posting.SourceID == uuid.Nil {
		return JournalEntry{}, shared.Validation(shared.CodeInvalidInput, "accounting: source module and id required")
	}
	return s.createEntry(ctx, tenantID, posting.EntryInput, posting.SourceModule, posting.SourceID)
}

func (s *Service) createEntry(ctx context.Context, tenantID int64, input EntryInput, module string, sourceID uuid.UUID) (JournalEntry, error) {
	if tenantID == 0 {
		return JournalEntry{}, shared.Validation(shared.CodeInvalidInput, "accounting: tenant required")
	}
	if err := ValidateLines(input.Lines); err != nil {
		s.metrics.Rejected("journal", string(shared.CodeOf(err)))
		return JournalEntry{}, err
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	if input.DocumentType == "" {
		input.DocumentType = DocumentManual
	}
	var entry JournalEntry
	var existing bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if module != "" {
			prior, err := tx.FindEntryBySource(ctx, tenantID, module, sourceID)
			if err == nil {
				entry = prior
				existing = true
				return nil
			}
			if !errors.Is(err, shared.ErrNotFound) {
				return err
			}
		}
		accounts, err := s.resolveAccounts(ctx, tx, tenantID, input.Lines)
		if err != nil {
			return err
		}
		number, err := s.seq.Next(ctx, tenantID, sequence.PrefixJournal, true)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			TenantID:     tenantID,
			Number:       number,
			Date:         input.Date,
			Description:  strings.TrimSpace(input.Description),
			DocumentType: input.DocumentType,
			SourceModule: module,
			SourceID:     sourceID,
			CreatedBy:    input.CreatedBy,
			CreatedAt:    s.now(),
			Lines:        buildLines(input.Lines),
		})
		if err != nil {
			return err
		}
		attachAccounts(inserted.Lines, accounts)
		entry = inserted
		return nil
	})
	if err != nil {
		if shared.IsIntegrity(err) {
			s.metrics.IntegrityFailure("journal")
			s.logger.Error("journal entry rejected", slog.Int64("tenant_id", tenantID), slog.Bool("integrity", true), slog.Any("error", err))
		}
		return JournalEntry{}, err
	}
	if existing {
		return entry, ErrSourceAlreadyLinked
	}
	s.metrics.JournalPosted(string(entry.DocumentType))
	s.record(ctx, tenantID, input.CreatedBy, "journal.create", entry.ID, map[string]any{
		"number":        entry.Number,
		"document_type": string(entry.DocumentType),
		"source_module": module,
	})
	return entry, nil
}

func (s *Service) resolveAccounts(ctx context.Context, tx TxRepository, tenantID int64, lines []LineInput) (map[int64]Account, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	accounts, err := tx.GetAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, l := range lines {
		acc, ok := accounts[l.AccountID]
		if !ok {
			return nil, &shared.Error{Kind: shared.KindValidation, Code: shared.CodeInvalidAccountReference, Message: ErrInvalidAccountReference.Message, Line: i}
		}
		if acc.TenantID != tenantID {
			return nil, &shared.Error{Kind: shared.KindIntegrity, Code: shared.CodeInvalidAccountReference, Message: ErrCrossTenantAccount.Message, Line: i}
		}
	}
	return accounts, nil
}

func attachAccounts(lines []JournalLine, accounts map[int64]Account) {
	for i := range lines {
		if acc, ok := accounts[lines[i].AccountID]; ok {
			acc := acc
			lines[i].Account = &acc
		}
	}
}

// ListEntries returns entries newest first.
func (s *Service) ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]JournalEntry, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.Validation(shared.CodeInvalidDateRange, "accounting: date range end before start")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.ListEntries(ctx, tenantID, filter)
}

// GetEntry returns one entry owned by tenant.
func (s *Service) GetEntry(ctx context.Context, tenantID, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, tenantID, id)
}

// UpdateEntry applies a patch. Replacement lines go through the full validator.
func (s *Service) UpdateEntry(ctx context.Context, tenantID, id int64, patch EntryPatch) (JournalEntry, error) {
	if patch.Lines != nil {
		if err := ValidateLines(patch.Lines); err != nil {
			return JournalEntry{}, err
		}
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Locked() {
			return ErrEntryLocked
		}
		if patch.Date != nil {
			current.Date = *patch.Date
		}
		if patch.Description != nil {
			current.Description = strings.TrimSpace(*patch.Description)
		}
		inputs := lineInputs(current.Lines)
		if patch.Lines != nil {
			inputs = patch.Lines
		}
		accounts, err := s.resolveAccounts(ctx, tx, tenantID, inputs)
		if err != nil {
			return err
		}
		if patch.Lines != nil {
			current.Lines = buildLines(patch.Lines)
		}
		if err := tx.UpdateEntry(ctx, current); err != nil {
			return err
		}
		attachAccounts(current.Lines, accounts)
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, tenantID, patch.ActorID, "journal.update", entry.ID, map[string]any{"number": entry.Number})
	return entry, nil
}

// DeleteEntry removes a manual entry.
func (s *Service) DeleteEntry(ctx context.Context, tenantID, id, actorID int64) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if current.Locked() {
			return ErrEntryLocked
		}
		number = current.Number
		return tx.DeleteEntry(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "journal.delete", id, map[string]any{"number": number})
	return nil
}

// ReverseEntry posts a new entry that swaps debit and credit of an existing one.
func (s *Service) ReverseEntry(ctx context.Context, tenantID, id, actorID int64, date time.Time) (JournalEntry, error) {
	original, err := s.repo.GetEntry(ctx, tenantID, id)
	if err != nil {
		return JournalEntry{}, err
	}
	lines := make([]LineInput, len(original.Lines))
	for i, l := range original.Lines {
		lines[i] = LineInput{AccountID: l.AccountID, Debit: l.Credit, Credit: l.Debit, Memo: l.Memo}
	}
	return s.CreateEntry(ctx, tenantID, EntryInput{
		Date:         date,
		Description:  fmt.Sprintf("Reversal of %s", original.Number),
		DocumentType: original.DocumentType,
		CreatedBy:    actorID,
		Lines:        lines,
	})
}

// AccountBalance derives sum(debit) - sum(credit) from journal lines.
func (s *Service) AccountBalance(ctx context.Context, tenantID, accountID int64) (AccountBalance, error) {
	acc, err := s.repo.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return AccountBalance{}, err
	}
	debit, credit, err := s.repo.SumAccount(ctx, tenantID, accountID)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{Account: acc, Debit: debit, Credit: credit, Balance: debit - credit}, nil
}

// RefreshBalanceCache recomputes the cached balance of every account of the
// tenant and returns the accounts whose cache was stale.
func (s *Service) RefreshBalanceCache(ctx context.Context, tenantID int64) ([]AccountBalance, error) {
	accounts, err := s.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var stale []AccountBalance
	for _, acc := range accounts {
		debit, credit, err := s.repo.SumAccount(ctx, tenantID, acc.ID)
		if err != nil {
			return nil, err
		}
		derived := debit - credit
		if derived == acc.Balance {
			continue
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.SetAccountBalance(ctx, tenantID, acc.ID, derived)
		})
		if err != nil {
			return nil, err
		}
		stale = append(stale, AccountBalance{Account: acc, Debit: debit, Credit: credit, Balance: derived})
	}
	return stale, nil
}

// CreateAccount adds a chart account, generating its code when absent.
func (s *Service) CreateAccount(ctx context.Context, tenantID int64, input AccountInput) (Account, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Account{}, shared.Validation(shared.CodeInvalidInput, "accounting: account name required")
	}
	if !input.Type.Valid() {
		return Account{}, shared.Validation(shared.CodeInvalidInput, fmt.Sprintf("accounting: invalid account type %q", input.Type))
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code := strings.TrimSpace(input.Code)
		if code == "" {
			existing, err := tx.ListAccountCodes(ctx, tenantID, input.Type)
			if err != nil {
				return err
			}
			code = NextAccountCode(input.Type, input.DepartmentCode, existing)
		}
		acc, err := tx.InsertAccount(ctx, Account{
			TenantID:  tenantID,
			Code:      code,
			Name:      input.Name,
			Type:      input.Type,
			Subtype:   strings.ToUpper(strings.TrimSpace(input.Subtype)),
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}
		created = acc
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, tenantID, input.ActorID, "chart_account.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// ListAccounts returns the tenant's chart ordered by type band then code.
func (s *Service) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	accounts, err := s.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		bi, bj := Band(accounts[i].Type), Band(accounts[j].Type)
		if bi != bj {
			return bi < bj
		}
		return accounts[i].Code < accounts[j].Code
	})
	return accounts, nil
}

// UpdateAccount changes the name or subtype of an account.
func (s *Service) UpdateAccount(ctx context.Context, tenantID, id int64, patch AccountPatch) (Account, error) {
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.GetAccountForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return shared.Validation(shared.CodeInvalidInput, "accounting: account name required")
			}
			acc.Name = name
		}
		if patch.Subtype != nil {
			acc.Subtype = strings.ToUpper(strings.TrimSpace(*patch.Subtype))
		}
		if err := tx.UpdateAccount(ctx, acc); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, tenantID, patch.ActorID, "chart_account.update", id, nil)
	return updated, nil
}

// DeleteAccount removes an account with no journal lines.
func (s *Service) DeleteAccount(ctx context.Context, tenantID, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountForUpdate(ctx, tenantID, id); err != nil {
			return err
		}
		n, err := tx.CountAccountLines(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAccountInUse
		}
		return tx.DeleteAccount(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "chart_account.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, tenantID, actorID int64, action string, id int64, meta map[string]any) {
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
