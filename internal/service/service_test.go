package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/cache"
	"warunglaba/backend/internal/domain"
	"warunglaba/backend/internal/store"
	"warunglaba/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopReportCache{}, "main-store", time.Minute)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "budi", Role: "cashier"})
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestCreateItemRequiresAdmin(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateItem(cashierCtx(), domain.ItemCreateRequest{
		Name: "Gula", Category: "grocery", Unit: domain.UnitKg, SellPrice: dec(18000),
	})
	if err == nil {
		t.Fatal("cashier must not create items")
	}
}

func TestCreateItemNormalizesAndRecordsPrice(t *testing.T) {
	svc := newTestService()
	item, err := svc.CreateItem(adminCtx(), domain.ItemCreateRequest{
		Name:      "  Gula Pasir ",
		Category:  " Grocery ",
		Unit:      domain.UnitKg,
		SellPrice: dec(18000),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.Name != "Gula Pasir" || item.Category != "grocery" {
		t.Fatalf("normalization failed: %+v", item)
	}
	if !item.Active || !item.CurrentStock.IsZero() {
		t.Fatalf("new item must start active with zero stock: %+v", item)
	}

	prices, err := svc.ListSellingPrices(adminCtx(), item.ID, 10)
	if err != nil {
		t.Fatalf("list prices: %v", err)
	}
	if len(prices) != 1 || !prices[0].Price.Equal(dec(18000)) {
		t.Fatalf("initial price must be recorded, got %+v", prices)
	}
}

func TestCreateItemVariantValidation(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name: "Beras Premium", Category: "grocery", Unit: domain.UnitPiece,
		VariantName: "25kg",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("variant name without parent must fail, got %v", err)
	}

	variant, err := svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name: "Beras Premium", Category: "produce", Unit: domain.UnitPiece,
		SellPrice:    dec(380000),
		ParentItemID: "item-beras",
		VariantName:  "25kg",
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if variant.Category != "grocery" {
		t.Fatalf("variant must inherit parent category, got %q", variant.Category)
	}

	_, err = svc.CreateItem(ctx, domain.ItemCreateRequest{
		Name: "Beras Premium", Category: "grocery", Unit: domain.UnitPiece,
		ParentItemID: variant.ID,
		VariantName:  "promo",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("variant of a variant must fail, got %v", err)
	}
}

func TestCreateItemRejectsUnknownUnit(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateItem(adminCtx(), domain.ItemCreateRequest{
		Name: "Gula", Category: "grocery", Unit: "sack", SellPrice: dec(18000),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("unknown unit must fail, got %v", err)
	}
}

func TestListItemsFilters(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	all, err := svc.ListItems(ctx, "", FilterAll)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 7 {
		t.Fatalf("seeded catalog has 7 items, got %d", len(all))
	}

	parents, err := svc.ListItems(ctx, "", FilterParents)
	if err != nil {
		t.Fatalf("list parents: %v", err)
	}
	if len(parents) != 1 || parents[0].ID != "item-beras" {
		t.Fatalf("expected only the rice grouping, got %+v", parents)
	}

	sellable, err := svc.ListItems(ctx, "", FilterSellable)
	if err != nil {
		t.Fatalf("list sellable: %v", err)
	}
	for _, item := range sellable {
		if item.ID == "item-beras" {
			t.Fatal("parent groupings are not sellable")
		}
	}
	if len(sellable) != 6 {
		t.Fatalf("expected 6 sellable items, got %d", len(sellable))
	}

	if _, err := svc.ListItems(ctx, "", "weird"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("unknown filter must fail, got %v", err)
	}
}

func TestGroupedItemsOrdersVariantsNumerically(t *testing.T) {
	svc := newTestService()
	grouped, err := svc.GroupedItems(cashierCtx(), "")
	if err != nil {
		t.Fatalf("grouped items: %v", err)
	}

	var rice *domain.DisplayItem
	for i := range grouped {
		if grouped[i].ID == "item-beras" {
			rice = &grouped[i]
		}
	}
	if rice == nil || !rice.IsParent || rice.VariantCount != 2 {
		t.Fatalf("rice grouping missing or wrong: %+v", rice)
	}
	if rice.Variants[0].VariantName != "5kg" || rice.Variants[1].VariantName != "10kg" {
		t.Fatalf("variants must sort numerically, got %q then %q",
			rice.Variants[0].VariantName, rice.Variants[1].VariantName)
	}
	if rice.Variants[0].DisplayName != "Beras Premium - 5kg" {
		t.Fatalf("display name = %q", rice.Variants[0].DisplayName)
	}
}

func TestAdjustStockValidation(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	cases := []struct {
		name string
		req  domain.StockAdjustRequest
	}{
		{"missing item", domain.StockAdjustRequest{AdjustmentType: domain.AdjustDecrease, Quantity: dec(1), Reason: domain.ReasonSpoilage}},
		{"bad type", domain.StockAdjustRequest{ItemID: "item-tomat", AdjustmentType: "recount", Quantity: dec(1), Reason: domain.ReasonSpoilage}},
		{"zero quantity", domain.StockAdjustRequest{ItemID: "item-tomat", AdjustmentType: domain.AdjustDecrease, Quantity: dec(0), Reason: domain.ReasonSpoilage}},
		{"bad reason", domain.StockAdjustRequest{ItemID: "item-tomat", AdjustmentType: domain.AdjustDecrease, Quantity: dec(1), Reason: "vibes"}},
	}
	for _, tc := range cases {
		if _, err := svc.AdjustStock(ctx, tc.req); !errors.Is(err, store.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestAdjustStockEndToEnd(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	resp, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ItemID:         "item-tomat",
		AdjustmentType: domain.AdjustDecrease,
		Quantity:       dec(5),
		Reason:         domain.ReasonSpoilage,
		Notes:          "busuk di rak bawah",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !resp.Success {
		t.Fatal("response must flag success")
	}
	if !resp.Item.CurrentStock.Equal(dec(20)) {
		t.Fatalf("stock = %s, want 20", resp.Item.CurrentStock)
	}
	if !resp.Adjustment.Difference.Equal(dec(-5)) || resp.Adjustment.AdjustedBy != "budi" {
		t.Fatalf("adjustment record wrong: %+v", resp.Adjustment)
	}

	_, err = svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ItemID:         "item-tomat",
		AdjustmentType: domain.AdjustDecrease,
		Quantity:       dec(100),
		Reason:         domain.ReasonTheft,
	})
	if !errors.Is(err, store.ErrExceedsStock) {
		t.Fatalf("oversized decrease must fail, got %v", err)
	}
}

func TestReceiveStockAndPreviewCost(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	batch, err := svc.ReceiveStock(ctx, domain.BatchReceiveRequest{
		ItemID:   "item-tomat",
		Quantity: dec(10),
		UnitCost: dec(12000),
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if batch.SourceType != domain.BatchSourcePurchase {
		t.Fatalf("source type = %q", batch.SourceType)
	}

	// Seeded 25 at 11000, then 10 at 12000. 30 units span both batches.
	preview, err := svc.PreviewAdjustmentCost(ctx, "item-tomat", dec(30))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.Cost.Equal(dec(335000)) {
		t.Fatalf("preview cost = %s, want 335000", preview.Cost)
	}
}

func TestRecordSaleDefaultsToCurrentPrice(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		ItemID:   "item-tomat",
		Quantity: dec(2),
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.UnitPrice.Equal(dec(16000)) || !sale.Total.Equal(dec(32000)) {
		t.Fatalf("sale must default to the current selling price: %+v", sale)
	}
	if !sale.CostOfGoods.Equal(dec(22000)) {
		t.Fatalf("cogs = %s, want 22000", sale.CostOfGoods)
	}
	if sale.SoldBy != "budi" {
		t.Fatalf("soldBy = %q", sale.SoldBy)
	}
}

func TestSetSellingPriceRequiresAdmin(t *testing.T) {
	svc := newTestService()

	if _, err := svc.SetSellingPrice(cashierCtx(), domain.PriceSetRequest{
		ItemID: "item-tomat", Price: dec(17000),
	}); err == nil {
		t.Fatal("cashier must not change prices")
	}

	price, err := svc.SetSellingPrice(adminCtx(), domain.PriceSetRequest{
		ItemID: "item-tomat", Price: dec(17000),
	})
	if err != nil {
		t.Fatalf("set price: %v", err)
	}
	if price.SetBy != "admin" {
		t.Fatalf("setBy = %q", price.SetBy)
	}

	item, err := svc.GetItem(adminCtx(), "item-tomat")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !item.CurrentSellPrice.Equal(dec(17000)) {
		t.Fatalf("current price = %s, want 17000", item.CurrentSellPrice)
	}
}

func TestExpenseValidationAndLifecycle(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateExpense(cashierCtx(), domain.ExpenseCreateRequest{
		Name: "Plastik", Category: domain.ExpenseVariable, Frequency: domain.FrequencyWeekly, Amount: dec(20000),
	}); err == nil {
		t.Fatal("cashier must not create expenses")
	}

	_, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		Name: "Plastik", Category: "operational", Frequency: domain.FrequencyWeekly, Amount: dec(20000),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("unknown category must fail, got %v", err)
	}

	created, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{
		Name: "Plastik", Category: " Variable ", Frequency: "Weekly", Amount: dec(20000),
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if created.Category != domain.ExpenseVariable || created.Frequency != domain.FrequencyWeekly {
		t.Fatalf("normalization failed: %+v", created)
	}
	if created.StartDate == 0 {
		t.Fatal("start date must default to now")
	}

	if _, err := svc.DeactivateExpense(cashierCtx(), created.ID); err == nil {
		t.Fatal("cashier must not deactivate expenses")
	}
	updated, err := svc.DeactivateExpense(adminCtx(), created.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if updated.Active {
		t.Fatal("expense must be inactive after deactivation")
	}
}

func TestDailyCostSummary(t *testing.T) {
	svc := newTestService()

	summary, err := svc.DailyCostSummary(cashierCtx(), "")
	if err != nil {
		t.Fatalf("daily cost: %v", err)
	}
	// Seeded: 900000 monthly and 70000 weekly.
	if !summary.FixedDailyCost.Equal(dec(30000)) {
		t.Fatalf("fixed daily = %s, want 30000", summary.FixedDailyCost)
	}
	if !summary.VariableDailyCost.Equal(dec(10000)) {
		t.Fatalf("variable daily = %s, want 10000", summary.VariableDailyCost)
	}
	if !summary.DailyOperatingCost.Equal(dec(40000)) {
		t.Fatalf("total daily = %s, want 40000", summary.DailyOperatingCost)
	}
	if !summary.WeeklyOperatingCost.Equal(dec(280000)) || !summary.MonthlyOperatingCost.Equal(dec(1200000)) {
		t.Fatalf("projections wrong: %+v", summary)
	}
	if summary.ExpenseCount != 2 {
		t.Fatalf("expense count = %d, want 2", summary.ExpenseCount)
	}
}

func TestProfitReportEndToEnd(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		ItemID: "item-tomat", Quantity: dec(10),
	}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	end := time.Now().UTC().Unix()
	start := end - 86400
	report, err := svc.ProfitReport(ctx, "", start, end)
	if err != nil {
		t.Fatalf("profit report: %v", err)
	}

	// 10 sold at 16000 against 11000 seeded cost.
	if !report.TotalSales.Equal(dec(160000)) {
		t.Fatalf("total sales = %s, want 160000", report.TotalSales)
	}
	if !report.TotalProfit.Equal(dec(50000)) {
		t.Fatalf("gross profit = %s, want 50000", report.TotalProfit)
	}
	// One day of the 40000 daily expense load.
	if !report.ScaledExpense.Equal(dec(40000)) {
		t.Fatalf("scaled expense = %s, want 40000", report.ScaledExpense)
	}
	if !report.NetProfit.Equal(dec(10000)) {
		t.Fatalf("net profit = %s, want 10000", report.NetProfit)
	}
	if report.BreakEvenSales == nil {
		t.Fatal("break-even must be defined when margin is positive")
	}
	if len(report.ItemProfits) != 1 || report.ItemProfits[0].ItemID != "item-tomat" {
		t.Fatalf("item breakdown wrong: %+v", report.ItemProfits)
	}
}

func TestProfitReportRejectsInvertedPeriod(t *testing.T) {
	svc := newTestService()
	now := time.Now().UTC().Unix()
	if _, err := svc.ProfitReport(cashierCtx(), "", now, now-1); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("inverted period must fail, got %v", err)
	}
}

func TestStockReportSkipsParentGroupings(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	end := time.Now().UTC().Unix()
	report, err := svc.StockReport(ctx, "", end-86400, end)
	if err != nil {
		t.Fatalf("stock report: %v", err)
	}
	if len(report.Items) != 6 {
		t.Fatalf("expected 6 sellable rows, got %d", len(report.Items))
	}
	for _, row := range report.Items {
		if row.ID == "item-beras" {
			t.Fatal("parent grouping must not appear in the stock report")
		}
		if row.ID == "item-beras-5" && row.DisplayName != "Beras Premium - 5kg" {
			t.Fatalf("variant display name = %q", row.DisplayName)
		}
	}
}

func TestLowStockReport(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	low, err := svc.LowStockReport(ctx, "")
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 0 {
		t.Fatalf("seeded catalog starts fully stocked, got %+v", low)
	}

	// Drop tomatoes from 25 to 4, below the minimum of 5.
	if _, err := svc.AdjustStock(ctx, domain.StockAdjustRequest{
		ItemID:         "item-tomat",
		AdjustmentType: domain.AdjustDecrease,
		Quantity:       dec(21),
		Reason:         domain.ReasonSpoilage,
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	low, err = svc.LowStockReport(ctx, "")
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ID != "item-tomat" {
		t.Fatalf("expected tomatoes to be low, got %+v", low)
	}
}

func TestAuditLogTrail(t *testing.T) {
	svc := newTestService()

	if _, err := svc.AdjustStock(cashierCtx(), domain.StockAdjustRequest{
		ItemID:         "item-tomat",
		AdjustmentType: domain.AdjustDecrease,
		Quantity:       dec(1),
		Reason:         domain.ReasonSpoilage,
	}); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	if _, err := svc.ListAuditLogs(cashierCtx(), "", 0, 0, 10); err == nil {
		t.Fatal("cashier must not read audit logs")
	}

	logs, err := svc.ListAuditLogs(adminCtx(), "", 0, 0, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "stock_adjust" || logs[0].ActorUsername != "budi" {
		t.Fatalf("audit trail wrong: %+v", logs)
	}
}
