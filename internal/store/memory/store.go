// Package memory is an in-process storage backend implementing every
// repository port of the ledger. Writers are serialized and work on a copy
// of the committed state that replaces it on success, so a failed
// transaction leaves no trace. Readers see the last committed state without
// locking.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

type mappingKey struct {
	tenantID int64
	module   string
	key      string
}

type docKey struct {
	tenantID int64
	kind     approval.Kind
	docID    int64
}

// state is one immutable version of the data. Values stored in the maps
// are never modified in place; writers replace them.
type state struct {
	nextID       int64
	tenants      map[int64]tenancy.Account
	accounts     map[int64]accounting.Account
	entries      map[int64]accounting.JournalEntry
	mappings     map[mappingKey]int64
	categories   map[int64]inventory.Category
	items        map[int64]inventory.Item
	ledger       map[int64][]inventory.LedgerRow
	suppliers    map[int64]procurement.Supplier
	pos          map[int64]procurement.PurchaseOrder
	grns         map[int64]procurement.GoodsReceipt
	departments  map[int64]stores.Department
	requisitions map[int64]stores.Requisition
	issues       map[int64]stores.Issue
	allocations  []stores.Allocation
	approvals    map[docKey][]approval.Approval
}

func newState() *state {
	return &state{
		tenants:      map[int64]tenancy.Account{},
		accounts:     map[int64]accounting.Account{},
		entries:      map[int64]accounting.JournalEntry{},
		mappings:     map[mappingKey]int64{},
		categories:   map[int64]inventory.Category{},
		items:        map[int64]inventory.Item{},
		ledger:       map[int64][]inventory.LedgerRow{},
		suppliers:    map[int64]procurement.Supplier{},
		pos:          map[int64]procurement.PurchaseOrder{},
		grns:         map[int64]procurement.GoodsReceipt{},
		departments:  map[int64]stores.Department{},
		requisitions: map[int64]stores.Requisition{},
		issues:       map[int64]stores.Issue{},
		approvals:    map[docKey][]approval.Approval{},
	}
}

func (s *state) clone() *state {
	return &state{
		nextID:       s.nextID,
		tenants:      maps.Clone(s.tenants),
		accounts:     maps.Clone(s.accounts),
		entries:      maps.Clone(s.entries),
		mappings:     maps.Clone(s.mappings),
		categories:   maps.Clone(s.categories),
		items:        maps.Clone(s.items),
		ledger:       maps.Clone(s.ledger),
		suppliers:    maps.Clone(s.suppliers),
		pos:          maps.Clone(s.pos),
		grns:         maps.Clone(s.grns),
		departments:  maps.Clone(s.departments),
		requisitions: maps.Clone(s.requisitions),
		issues:       maps.Clone(s.issues),
		allocations:  slices.Clip(s.allocations),
		approvals:    maps.Clone(s.approvals),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type idemKey struct {
	tenantID int64
	key      string
	module   string
}

// Store holds all data in memory.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[state]
	now func() time.Time

	auditMu sync.Mutex
	audit   []shared.AuditLog

	idemMu sync.Mutex
	keys   map[idemKey]time.Time
}

// New returns an empty store.
func New() *Store {
	s := &Store{now: time.Now, keys: map[idemKey]time.Time{}}
	s.cur.Store(newState())
	return s
}

// WithNow overrides the clock used for generated timestamps.
func (s *Store) WithNow(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) snapshot() *state {
	return s.cur.Load()
}

// update runs fn against a private copy of the state and publishes it when
// fn succeeds. Calls must not nest.
func (s *Store) update(ctx context.Context, fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	next := s.cur.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cur.Store(next)
	return nil
}

// sameName compares names the way the unique lower(name) indexes do.
func sameName(a, b string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
}

// Record stores an audit log entry.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	log.Meta = maps.Clone(log.Meta)
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, log)
	return nil
}

// AuditLogs returns the recorded entries of a tenant in order.
func (s *Store) AuditLogs(tenantID int64) []shared.AuditLog {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	var out []shared.AuditLog
	for _, l := range s.audit {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out
}

// CheckAndInsert reserves an idempotency key.
func (s *Store) CheckAndInsert(_ context.Context, tenantID int64, key, module string) error {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	k := idemKey{tenantID: tenantID, key: key, module: module}
	if _, ok := s.keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[k] = s.now()
	return nil
}

// Delete releases an idempotency key.
func (s *Store) Delete(_ context.Context, tenantID int64, key, module string) error {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	delete(s.keys, idemKey{tenantID: tenantID, key: key, module: module})
	return nil
}

// Cleanup drops idempotency keys older than retention.
func (s *Store) Cleanup(_ context.Context, olderThan time.Duration) error {
	cutoff := s.now().Add(-olderThan)
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	maps.DeleteFunc(s.keys, func(_ idemKey, at time.Time) bool { return at.Before(cutoff) })
	return nil
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func limit[T any](in []T, n int) []T {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}
