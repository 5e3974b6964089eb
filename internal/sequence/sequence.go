// Package sequence issues human readable document numbers such as
// PO-2025-0001. Counters are kept per tenant, prefix and optionally year.
package sequence

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Well known document prefixes.
const (
	PrefixJournal     = "JV"
	PrefixPO          = "PO"
	PrefixGRN         = "GRN"
	PrefixRequisition = "REQ"
	PrefixIssue       = "ISS"
	PrefixAdjustment  = "ADJ"
)

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}$`)

// Store atomically increments and returns the counter stored under key.
// Implementations must never return the same value twice for one key.
type Store interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// Generator formats codes from a Store.
type Generator struct {
	store Store
	now   func() time.Time
}

// NewGenerator constructs a Generator backed by store.
func NewGenerator(store Store) *Generator {
	return &Generator{store: store, now: time.Now}
}

// WithClock overrides the clock used for yearly keys.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Key returns the counter key for the given arguments.
func Key(tenantID int64, prefix string, year int) string {
	if year > 0 {
		return fmt.Sprintf("%d_%s_%d", tenantID, prefix, year)
	}
	return fmt.Sprintf("%d_%s", tenantID, prefix)
}

// Next returns the next code for tenant and prefix.
func (g *Generator) Next(ctx context.Context, tenantID int64, prefix string, resetYearly bool) (string, error) {
	if tenantID == 0 {
		return "", shared.Validation(shared.CodeInvalidInput, "sequence: tenant required")
	}
	if !prefixPattern.MatchString(prefix) {
		return "", shared.Validation(shared.CodeInvalidPrefix, fmt.Sprintf("sequence: invalid prefix %q", prefix))
	}
	year := 0
	if resetYearly {
		year = g.now().UTC().Year()
	}
	n, err := g.store.Increment(ctx, Key(tenantID, prefix, year))
	if err != nil {
		return "", fmt.Errorf("sequence: increment %s: %w", prefix, err)
	}
	return Format(prefix, year, n), nil
}

// Format renders a code. Values wider than four digits are not truncated.
func Format(prefix string, year int, n int64) string {
	if year > 0 {
		return fmt.Sprintf("%s-%d-%04d", prefix, year, n)
	}
	return fmt.Sprintf("%s-%04d", prefix, n)
}
