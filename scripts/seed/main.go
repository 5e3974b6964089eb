package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/approval"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/stores"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

// seeder walks one demo tenant through the purchase to issue cycle.
type seeder struct {
	c        *app.Container
	tenantID int64
	ownerID  int64
	accounts map[string]int64
	items    map[string]int64
}

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	c, err := app.Build(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	defer c.Close()

	s := &seeder{c: c, ownerID: cfg.SeedOwnerID, accounts: map[string]int64{}, items: map[string]int64{}}

	fmt.Println("→ Seeding tenant...")
	if err := s.seedTenant(ctx, cfg.SeedTenantName); err != nil {
		log.Fatalf("seed tenant: %v", err)
	}
	fmt.Println("→ Seeding chart of accounts...")
	if err := s.seedAccounts(ctx); err != nil {
		log.Fatalf("seed accounts: %v", err)
	}
	fmt.Println("→ Seeding account mappings...")
	if err := s.seedMappings(ctx); err != nil {
		log.Fatalf("seed mappings: %v", err)
	}
	fmt.Println("→ Seeding items...")
	if err := s.seedItems(ctx); err != nil {
		log.Fatalf("seed items: %v", err)
	}
	fmt.Println("→ Seeding procurement...")
	if err := s.seedProcurement(ctx); err != nil {
		log.Fatalf("seed procurement: %v", err)
	}
	fmt.Println("→ Seeding stores...")
	if err := s.seedStores(ctx); err != nil {
		log.Fatalf("seed stores: %v", err)
	}

	if cfg.PostingMode == app.PostingQueue {
		// Postings arrive through the worker; catch up here so the summary is complete.
		res, err := c.Hooks.SyncPending(ctx, s.tenantID, time.Time{})
		if err != nil {
			log.Fatalf("sync ledger: %v", err)
		}
		fmt.Printf("  synced %d posting(s), %d skipped\n", res.Posted, res.Skipped)
	}

	tb, err := c.Reports.TrialBalance(ctx, s.tenantID, nil, nil)
	if err != nil {
		log.Fatalf("trial balance: %v", err)
	}
	fmt.Printf("✓ Seed complete for tenant %d: debits %s, credits %s\n", s.tenantID, tb.TotalDebit, tb.TotalCredit)
}

func (s *seeder) seedTenant(ctx context.Context, name string) error {
	acc, err := s.c.Tenants.CreateTenant(ctx, tenancy.Account{Name: name, Type: tenancy.TypeHotel, OwnerID: s.ownerID})
	if err != nil {
		return err
	}
	s.tenantID = acc.ID
	return nil
}

func (s *seeder) seedAccounts(ctx context.Context) error {
	chart := []accounting.AccountInput{
		{Name: "Cash on Hand", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeCash},
		{Name: "Inventory", Type: accounting.AccountTypeAsset, Subtype: accounting.SubtypeInventory},
		{Name: "GR/IR Clearing", Type: accounting.AccountTypeLiability},
		{Name: "Owner Capital", Type: accounting.AccountTypeEquity},
		{Name: "Room Revenue", Type: accounting.AccountTypeRevenue},
		{Name: "General Supplies", Type: accounting.AccountTypeExpense},
		{Name: "Housekeeping Supplies", Type: accounting.AccountTypeExpense, DepartmentCode: "HK"},
		{Name: "Kitchen Supplies", Type: accounting.AccountTypeExpense, DepartmentCode: "FB"},
	}
	for _, in := range chart {
		in.ActorID = s.ownerID
		acc, err := s.c.Ledger.CreateAccount(ctx, s.tenantID, in)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		s.accounts[in.Name] = acc.ID
	}

	_, err := s.c.Ledger.CreateEntry(ctx, s.tenantID, accounting.EntryInput{
		Date:        time.Now().UTC().AddDate(0, 0, -7),
		Description: "Opening capital",
		CreatedBy:   s.ownerID,
		Lines: []accounting.LineInput{
			{AccountID: s.accounts["Cash on Hand"], Debit: 500000},
			{AccountID: s.accounts["Owner Capital"], Credit: 500000},
		},
	})
	return err
}

func (s *seeder) seedMappings(ctx context.Context) error {
	for _, m := range []mappings.AccountMapping{
		{Module: mappings.ModuleGRN, Key: mappings.KeyGRNInventory, AccountID: s.accounts["Inventory"]},
		{Module: mappings.ModuleGRN, Key: mappings.KeyGRNClearing, AccountID: s.accounts["GR/IR Clearing"]},
		{Module: mappings.ModuleIssue, Key: mappings.KeyIssueInventory, AccountID: s.accounts["Inventory"]},
		{Module: mappings.ModuleIssue, Key: mappings.KeyIssueExpense, AccountID: s.accounts["General Supplies"]},
	} {
		m.TenantID = s.tenantID
		if err := s.c.Mappings.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) seedItems(ctx context.Context) error {
	amenities, err := s.c.Inventory.CreateCategory(ctx, s.tenantID, "Guest Amenities", nil, s.ownerID)
	if err != nil {
		return err
	}
	cleaning, err := s.c.Inventory.CreateCategory(ctx, s.tenantID, "Cleaning", nil, s.ownerID)
	if err != nil {
		return err
	}
	for _, in := range []inventory.ItemInput{
		{Name: "Shampoo 30ml", SKU: "AMN-001", UOM: inventory.UOMEach, CategoryID: amenities.ID, MinQty: decimal.NewFromInt(50)},
		{Name: "Soap Bar", SKU: "AMN-002", UOM: inventory.UOMEach, CategoryID: amenities.ID, MinQty: decimal.NewFromInt(50)},
		{Name: "Floor Cleaner", SKU: "CLN-001", UOM: inventory.UOMLitre, CategoryID: cleaning.ID},
	} {
		in.ActorID = s.ownerID
		item, err := s.c.Inventory.CreateItem(ctx, s.tenantID, in)
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
		s.items[in.Name] = item.ID
	}
	return nil
}

// approve walks a document through all three approval levels.
func (s *seeder) approve(ctx context.Context, kind approval.Kind, id int64) error {
	for level := 1; level <= 3; level++ {
		actor := shared.Actor{UserID: s.ownerID, ApprovalLevel: level}
		if _, err := s.c.Approvals.Decide(ctx, s.tenantID, kind, id, actor, approval.DecisionApproved, "seed"); err != nil {
			return fmt.Errorf("%s %d level %d: %w", kind, id, level, err)
		}
	}
	return nil
}

func (s *seeder) seedProcurement(ctx context.Context) error {
	today := time.Now().UTC()
	// Shampoo is bought twice at different prices so the moving average has work to do.
	orders := []struct {
		date  time.Time
		lines []procurement.POLineInput
	}{
		{today.AddDate(0, 0, -5), []procurement.POLineInput{
			{ItemID: s.items["Shampoo 30ml"], Qty: decimal.NewFromInt(120), UnitPrice: decimal.RequireFromString("0.85")},
			{ItemID: s.items["Soap Bar"], Qty: decimal.NewFromInt(200), UnitPrice: decimal.RequireFromString("0.40")},
		}},
		{today.AddDate(0, 0, -3), []procurement.POLineInput{
			{ItemID: s.items["Shampoo 30ml"], Qty: decimal.NewFromInt(80), UnitPrice: decimal.RequireFromString("0.95")},
			{ItemID: s.items["Floor Cleaner"], Qty: decimal.NewFromInt(20), UnitPrice: decimal.RequireFromString("3.15")},
		}},
	}
	supplier, err := s.c.Procurement.CreateSupplier(ctx, s.tenantID, procurement.SupplierInput{
		Code:    "AMN-SUP",
		Name:    "Coastal Amenities Supply",
		Email:   "orders@coastal-amenities.example",
		ActorID: s.ownerID,
	})
	if err != nil {
		return err
	}
	for _, o := range orders {
		po, err := s.c.Procurement.CreatePurchaseOrder(ctx, s.tenantID, procurement.POInput{
			SupplierID: supplier.ID,
			Date:       o.date,
			Notes:      "Amenities restock",
			ActorID:    s.ownerID,
			Lines:      o.lines,
		})
		if err != nil {
			return err
		}
		if err := s.approve(ctx, approval.KindPurchaseOrder, po.ID); err != nil {
			return err
		}
		lines := make([]procurement.GRNLineInput, 0, len(o.lines))
		for _, l := range o.lines {
			lines = append(lines, procurement.GRNLineInput{ItemID: l.ItemID, Qty: l.Qty})
		}
		if _, err := s.c.Procurement.CreateGRN(ctx, s.tenantID, procurement.GRNInput{
			POID:    po.ID,
			Date:    o.date,
			Lines:   lines,
			ActorID: s.ownerID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) seedStores(ctx context.Context) error {
	hk, err := s.c.Stores.CreateDepartment(ctx, s.tenantID, stores.DepartmentInput{Code: "HK", Name: "Housekeeping"})
	if err != nil {
		return err
	}
	fb, err := s.c.Stores.CreateDepartment(ctx, s.tenantID, stores.DepartmentInput{Code: "FB", Name: "Food & Beverage"})
	if err != nil {
		return err
	}

	today := time.Now().UTC()
	req, err := s.c.Stores.CreateRequisition(ctx, s.tenantID, stores.RequisitionInput{
		DepartmentID: hk.ID,
		Date:         today.AddDate(0, 0, -2),
		ActorID:      s.ownerID,
		Lines: []stores.RequisitionLineInput{
			{ItemID: s.items["Shampoo 30ml"], Qty: decimal.NewFromInt(60)},
			{ItemID: s.items["Soap Bar"], Qty: decimal.NewFromInt(60)},
		},
	})
	if err != nil {
		return err
	}
	if err := s.approve(ctx, approval.KindRequisition, req.ID); err != nil {
		return err
	}
	if _, err := s.c.Stores.CreateIssue(ctx, s.tenantID, stores.IssueInput{
		DepartmentID:  hk.ID,
		RequisitionID: &req.ID,
		Date:          today.AddDate(0, 0, -1),
		ActorID:       s.ownerID,
		Lines: []stores.IssueLineInput{
			{ItemID: s.items["Shampoo 30ml"], Qty: decimal.NewFromInt(60)},
			{ItemID: s.items["Soap Bar"], Qty: decimal.NewFromInt(60)},
		},
	}); err != nil {
		return err
	}
	_, err = s.c.Stores.CreateIssue(ctx, s.tenantID, stores.IssueInput{
		DepartmentID: fb.ID,
		Date:         today,
		ActorID:      s.ownerID,
		Lines:        []stores.IssueLineInput{{ItemID: s.items["Floor Cleaner"], Qty: decimal.NewFromInt(4)}},
	})
	return err
}
