package inventory

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// StockTx is the part of a transaction the costing engine writes through.
// Procurement and store documents expose one so that their ledger rows
// commit together with the document.
type StockTx interface {
	// LockItem loads the item and holds it exclusively until the
	// transaction ends, serializing movements per item.
	LockItem(ctx context.Context, tenantID, itemID int64) (Item, error)
	// LastLedgerRow returns the newest row of the item; found is false for
	// an item without history.
	LastLedgerRow(ctx context.Context, tenantID, itemID int64) (row LedgerRow, found bool, err error)
	InsertLedgerRow(ctx context.Context, row LedgerRow) (LedgerRow, error)
	UpdateItemStock(ctx context.Context, tenantID, itemID int64, qty, avgCost decimal.Decimal) error
}

// Engine posts movements to the stock ledger.
type Engine struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewEngine constructs the costing engine.
func NewEngine(logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Post applies mv inside tx and returns the stored row with the item as
// it stands after the movement.
func (e *Engine) Post(ctx context.Context, tx StockTx, mv Movement) (LedgerRow, Item, error) {
	item, err := tx.LockItem(ctx, mv.TenantID, mv.ItemID)
	if err != nil {
		return LedgerRow{}, Item{}, err
	}
	prev, found, err := tx.LastLedgerRow(ctx, mv.TenantID, mv.ItemID)
	if err != nil {
		return LedgerRow{}, Item{}, err
	}
	if found && (!prev.BalanceQty.Equal(item.OnHandQty) || !prev.BalanceAvgCost.Equal(item.AvgCost)) {
		e.metrics.IntegrityFailure("item_cache")
		e.logger.Error("item balance diverges from stock ledger",
			slog.Bool("integrity", true),
			slog.Int64("tenant_id", mv.TenantID),
			slog.Int64("item_id", mv.ItemID),
			slog.String("cached_qty", item.OnHandQty.String()),
			slog.String("ledger_qty", prev.BalanceQty.String()))
	}
	if !found {
		prev = LedgerRow{}
	}
	if mv.DocDate.IsZero() {
		mv.DocDate = e.now()
	}
	row, err := Apply(prev, mv)
	if err != nil {
		e.metrics.Rejected("inventory", string(shared.CodeOf(err)))
		return LedgerRow{}, Item{}, err
	}
	row.CreatedAt = e.now()
	stored, err := tx.InsertLedgerRow(ctx, row)
	if err != nil {
		return LedgerRow{}, Item{}, err
	}
	if err := tx.UpdateItemStock(ctx, mv.TenantID, mv.ItemID, stored.BalanceQty, stored.BalanceAvgCost); err != nil {
		return LedgerRow{}, Item{}, err
	}
	item.OnHandQty = stored.BalanceQty
	item.AvgCost = stored.BalanceAvgCost
	e.metrics.StockMovement(string(mv.DocType))
	return stored, item, nil
}
