package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const entryColumns = `e.id, e.tenant_id, e.number, e.entry_date, e.description, e.document_type,
COALESCE(e.source_module, ''), e.source_id, e.created_by, e.created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var sourceID *uuid.UUID
	if err := row.Scan(&e.ID, &e.TenantID, &e.Number, &e.Date, &e.Description, &e.DocumentType,
		&e.SourceModule, &sourceID, &e.CreatedBy, &e.CreatedAt); err != nil {
		return JournalEntry{}, err
	}
	if sourceID != nil {
		e.SourceID = *sourceID
	}
	return e, nil
}

func loadLines(ctx context.Context, q querier, entryIDs []int64) (map[int64][]JournalLine, error) {
	out := make(map[int64][]JournalLine, len(entryIDs))
	if len(entryIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT l.id, l.entry_id, l.line_no, l.chart_account_id, l.debit, l.credit, l.memo,
a.id, a.tenant_id, a.code, a.name, a.type, a.subtype, a.balance, a.created_at
FROM journal_lines l JOIN chart_accounts a ON a.id = l.chart_account_id
WHERE l.entry_id = ANY($1) ORDER BY l.entry_id, l.line_no`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		var a Account
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNo, &l.AccountID, &l.Debit, &l.Credit, &l.Memo,
			&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.Balance, &a.CreatedAt); err != nil {
			return nil, err
		}
		l.Account = &a
		out[l.EntryID] = append(out[l.EntryID], l)
	}
	return out, rows.Err()
}

func getEntry(ctx context.Context, q querier, tenantID, id int64, lock bool) (JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries e WHERE e.tenant_id=$1 AND e.id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := loadLines(ctx, q, []int64{entry.ID})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines[entry.ID]
	return entry, nil
}

// GetEntry loads one entry with lines.
func (r *Repository) GetEntry(ctx context.Context, tenantID, id int64) (JournalEntry, error) {
	return getEntry(ctx, r.pool, tenantID, id, false)
}

// ListEntries lists entries newest first.
func (r *Repository) ListEntries(ctx context.Context, tenantID int64, filter EntryFilter) ([]JournalEntry, error) {
	var (
		where = []string{"e.tenant_id = $1"}
		args  = []any{tenantID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.From != nil {
		add("e.entry_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("e.entry_date <= $%d", *filter.To)
	}
	if filter.DocumentType != "" {
		add("e.document_type = $%d", string(filter.DocumentType))
	}
	if filter.AccountID != 0 {
		add("EXISTS (SELECT 1 FROM journal_lines jl WHERE jl.entry_id = e.id AND jl.chart_account_id = $%d)", filter.AccountID)
	}
	args = append(args, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM journal_entries e WHERE %s ORDER BY e.entry_date DESC, e.id DESC LIMIT $%d`,
		entryColumns, strings.Join(where, " AND "), len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var entries []JournalEntry
	var ids []int64
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

const accountColumns = `id, tenant_id, code, name, type, subtype, balance, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.Balance, &a.CreatedAt)
	return a, err
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ListAccounts returns all chart accounts of the tenant.
func (r *Repository) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM chart_accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func getAccount(ctx context.Context, q querier, tenantID, id int64, lock bool) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM chart_accounts WHERE tenant_id=$1 AND id=$2`
	if lock {
		query += ` FOR UPDATE`
	}
	acc, err := scanAccount(q.QueryRow(ctx, query, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return acc, err
}

// GetAccount loads one chart account.
func (r *Repository) GetAccount(ctx context.Context, tenantID, id int64) (Account, error) {
	return getAccount(ctx, r.pool, tenantID, id, false)
}

func sumAccount(ctx context.Context, q querier, tenantID, accountID int64) (Amount, Amount, error) {
	var debit, credit Amount
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(debit), 0)::bigint, COALESCE(SUM(credit), 0)::bigint
FROM journal_lines WHERE tenant_id=$1 AND chart_account_id=$2`, tenantID, accountID).Scan(&debit, &credit)
	return debit, credit, err
}

// SumAccount aggregates the account's journal lines.
func (r *Repository) SumAccount(ctx context.Context, tenantID, accountID int64) (Amount, Amount, error) {
	return sumAccount(ctx, r.pool, tenantID, accountID)
}

func (r *txRepository) GetAccounts(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM chart_accounts WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Account, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a
	}
	return out, nil
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, tenantID, id int64) (Account, error) {
	return getAccount(ctx, r.tx, tenantID, id, true)
}

func (r *txRepository) ListAccountCodes(ctx context.Context, tenantID int64, t AccountType) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT code FROM chart_accounts WHERE tenant_id=$1 AND type=$2`, tenantID, string(t))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func mapAccountConflict(err error) error {
	if db.IsUniqueViolation(err, "chart_accounts_code_key") || db.IsUniqueViolation(err, "chart_accounts_name_key") {
		return ErrDuplicateAccount
	}
	return err
}

func (r *txRepository) InsertAccount(ctx context.Context, acc Account) (Account, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO chart_accounts (tenant_id, code, name, type, subtype)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, acc.TenantID, acc.Code, acc.Name, string(acc.Type), acc.Subtype).
		Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return Account{}, mapAccountConflict(err)
	}
	return acc, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, acc Account) error {
	_, err := r.tx.Exec(ctx, `UPDATE chart_accounts SET name=$3, subtype=$4 WHERE tenant_id=$1 AND id=$2`,
		acc.TenantID, acc.ID, acc.Name, acc.Subtype)
	return mapAccountConflict(err)
}

func (r *txRepository) DeleteAccount(ctx context.Context, tenantID, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM chart_accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func (r *txRepository) CountAccountLines(ctx context.Context, tenantID, accountID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journal_lines WHERE tenant_id=$1 AND chart_account_id=$2`, tenantID, accountID).Scan(&n)
	return n, err
}

func (r *txRepository) SetAccountBalance(ctx context.Context, tenantID, accountID int64, balance Amount) error {
	_, err := r.tx.Exec(ctx, `UPDATE chart_accounts SET balance=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, accountID, balance)
	return err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	var module *string
	var sourceID *uuid.UUID
	if entry.SourceModule != "" {
		module = &entry.SourceModule
		sourceID = &entry.SourceID
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, number, entry_date, description, document_type, source_module, source_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		entry.TenantID, entry.Number, entry.Date, entry.Description, string(entry.DocumentType), module, sourceID, entry.CreatedBy, entry.CreatedAt).
		Scan(&entry.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "journal_entries_source_key") {
			return JournalEntry{}, ErrSourceAlreadyLinked
		}
		return JournalEntry{}, err
	}
	if err := r.insertLines(ctx, entry); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) insertLines(ctx context.Context, entry JournalEntry) error {
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, tenant_id, line_no, chart_account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, entry.ID, entry.TenantID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Memo).
			Scan(&line.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, id int64) (JournalEntry, error) {
	return getEntry(ctx, r.tx, tenantID, id, true)
}

func (r *txRepository) UpdateEntry(ctx context.Context, entry JournalEntry) error {
	if _, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date=$3, description=$4 WHERE tenant_id=$1 AND id=$2`,
		entry.TenantID, entry.ID, entry.Date, entry.Description); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entry.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, entry)
}

func (r *txRepository) DeleteEntry(ctx context.Context, tenantID, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) FindEntryBySource(ctx context.Context, tenantID int64, module string, sourceID uuid.UUID) (JournalEntry, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM journal_entries WHERE tenant_id=$1 AND source_module=$2 AND source_id=$3`,
		tenantID, module, sourceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return getEntry(ctx, r.tx, tenantID, id, false)
}
