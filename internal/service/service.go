package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/analytics"
	"warunglaba/backend/internal/cache"
	"warunglaba/backend/internal/catalog"
	"warunglaba/backend/internal/domain"
	"warunglaba/backend/internal/store"
	"warunglaba/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Item list filters accepted by ListItems.
const (
	FilterAll      = "all"
	FilterParents  = "parents"
	FilterSellable = "sellable"
)

const defaultReportWindow = 30 * 24 * time.Hour

type Service struct {
	repo           store.Repository
	reports        cache.ReportCache
	defaultStoreID string
	reportTTL      time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, defaultStoreID string, reportTTL time.Duration) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 60 * time.Second
	}

	return &Service{
		repo:           repo,
		reports:        reports,
		defaultStoreID: defaultStoreID,
		reportTTL:      reportTTL,
	}
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(strings.ToLower(req.Category))
	req.Unit = strings.TrimSpace(req.Unit)
	req.ParentItemID = strings.TrimSpace(req.ParentItemID)
	req.VariantName = strings.TrimSpace(req.VariantName)

	if req.Name == "" || req.Category == "" {
		return domain.Item{}, store.ErrInvalidInput
	}
	if !domain.ValidUnit(req.Unit) {
		return domain.Item{}, fmt.Errorf("%w: unknown unit %q", store.ErrInvalidInput, req.Unit)
	}
	if req.SellPrice.IsNegative() || req.MinStockLevel.IsNegative() {
		return domain.Item{}, store.ErrInvalidInput
	}
	if (req.ParentItemID == "") != (req.VariantName == "") {
		return domain.Item{}, fmt.Errorf("%w: variant needs both parent and variant name", store.ErrInvalidInput)
	}

	if req.ParentItemID != "" {
		parent, err := s.repo.GetItem(ctx, req.ParentItemID)
		if err != nil {
			return domain.Item{}, err
		}
		if parent.IsVariant() {
			return domain.Item{}, fmt.Errorf("%w: variants cannot nest", store.ErrInvalidInput)
		}
		if parent.StoreID != req.StoreID {
			return domain.Item{}, fmt.Errorf("%w: parent belongs to another store", store.ErrInvalidInput)
		}
		req.Category = parent.Category
	}

	item := domain.Item{
		ID:               xid.New("item"),
		StoreID:          req.StoreID,
		Name:             req.Name,
		Category:         req.Category,
		Unit:             req.Unit,
		CurrentStock:     decimal.Zero,
		CurrentSellPrice: req.SellPrice,
		MinStockLevel:    req.MinStockLevel,
		ParentItemID:     req.ParentItemID,
		VariantName:      req.VariantName,
		Active:           true,
		CreatedAt:        time.Now().UTC().Unix(),
	}

	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}

	if _, err := s.repo.AppendSellingPrice(ctx, domain.SellingPrice{
		ID:            xid.New("price"),
		ItemID:        created.ID,
		Price:         created.CurrentSellPrice,
		EffectiveFrom: created.CreatedAt,
		SetBy:         actor.Username,
	}); err != nil {
		log.Printf("[service] WARN: failed to record initial price item=%s: %v", created.ID, err)
	}

	s.logAudit(ctx, req.StoreID, "item_create", "item", created.ID,
		fmt.Sprintf("name=%s,unit=%s,price=%s", created.Name, created.Unit, created.CurrentSellPrice))

	return *created, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

// ListItems returns the flat catalog filtered to all items, parent
// groupings only, or sellable items only.
func (s *Service) ListItems(ctx context.Context, storeID string, filter string) ([]domain.Item, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	items, err := s.repo.ListItems(ctx, storeID)
	if err != nil {
		return nil, err
	}
	switch filter {
	case "", FilterAll:
		return items, nil
	case FilterParents:
		return catalog.Parents(items), nil
	case FilterSellable:
		return catalog.Sellable(items), nil
	}
	return nil, fmt.Errorf("%w: unknown filter %q", store.ErrInvalidInput, filter)
}

// GroupedItems returns the catalog resolved into the display hierarchy.
func (s *Service) GroupedItems(ctx context.Context, storeID string) ([]domain.DisplayItem, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	items, err := s.repo.ListItems(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return catalog.Group(items), nil
}

// ── Stock ────────────────────────────────────────────────────────────────────

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	req.ItemID = strings.TrimSpace(req.ItemID)
	req.Reason = strings.TrimSpace(req.Reason)
	req.Notes = strings.TrimSpace(req.Notes)

	if req.ItemID == "" {
		return domain.StockAdjustResponse{}, store.ErrInvalidInput
	}
	if req.AdjustmentType != domain.AdjustIncrease && req.AdjustmentType != domain.AdjustDecrease {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: adjustment type must be increase or decrease", store.ErrInvalidInput)
	}
	if !req.Quantity.IsPositive() {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if !domain.ValidReason(req.Reason) {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: unknown reason %q", store.ErrInvalidInput, req.Reason)
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: unit cost must be non-negative", store.ErrInvalidInput)
	}

	actor, _ := ActorFromContext(ctx)

	adjustment, item, err := s.repo.ApplyAdjustment(ctx, domain.AdjustmentInput{
		ItemID:     req.ItemID,
		Type:       req.AdjustmentType,
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		Notes:      req.Notes,
		UnitCost:   req.UnitCost,
		AdjustedBy: actor.Username,
	})
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	s.logAudit(ctx, item.StoreID, "stock_adjust", "item", item.ID,
		fmt.Sprintf("type=%s,qty=%s,reason=%s", req.AdjustmentType, req.Quantity, req.Reason))

	return domain.StockAdjustResponse{
		Success:    true,
		Item:       *item,
		Adjustment: *adjustment,
	}, nil
}

func (s *Service) ReceiveStock(ctx context.Context, req domain.BatchReceiveRequest) (domain.InventoryBatch, error) {
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		return domain.InventoryBatch{}, store.ErrInvalidInput
	}
	if !req.Quantity.IsPositive() || req.UnitCost.IsNegative() {
		return domain.InventoryBatch{}, fmt.Errorf("%w: quantity must be positive and unit cost non-negative", store.ErrInvalidInput)
	}

	batch, err := s.repo.ReceiveBatch(ctx, domain.BatchInput{
		ItemID:     req.ItemID,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		SourceType: domain.BatchSourcePurchase,
		SourceRef:  strings.TrimSpace(req.SourceRef),
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		return domain.InventoryBatch{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "batch_receive", "batch", batch.ID,
		fmt.Sprintf("item=%s,qty=%s,cost=%s", batch.ItemID, batch.InitialQuantity, batch.BuyPricePerUnit))

	return *batch, nil
}

func (s *Service) ListBatches(ctx context.Context, itemID string, includeExhausted bool) ([]domain.InventoryBatch, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListBatches(ctx, itemID, includeExhausted)
}

func (s *Service) ListAdjustments(ctx context.Context, itemID string, limit int) ([]domain.StockAdjustment, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListAdjustments(ctx, itemID, limit)
}

// PreviewAdjustmentCost projects what a FIFO consumption of the given
// quantity would cost, without touching any batch.
func (s *Service) PreviewAdjustmentCost(ctx context.Context, itemID string, quantity decimal.Decimal) (domain.CostPreview, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.CostPreview{}, store.ErrInvalidInput
	}
	cost, err := s.repo.CostOfGoods(ctx, itemID, quantity)
	if err != nil {
		return domain.CostPreview{}, err
	}
	return domain.CostPreview{ItemID: itemID, Quantity: quantity, Cost: cost}, nil
}

// ── Sales ────────────────────────────────────────────────────────────────────

func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if !req.Quantity.IsPositive() {
		return domain.Sale{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return domain.Sale{}, fmt.Errorf("%w: unit price must be non-negative", store.ErrInvalidInput)
	}
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}

	actor, _ := ActorFromContext(ctx)

	sale, err := s.repo.RecordSale(ctx, domain.SaleInput{
		StoreID:   req.StoreID,
		ItemID:    req.ItemID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		SoldBy:    actor.Username,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, sale.StoreID, "sale_record", "sale", sale.ID,
		fmt.Sprintf("item=%s,qty=%s,total=%s", sale.ItemID, sale.Quantity, sale.Total))

	return *sale, nil
}

// ── Prices ───────────────────────────────────────────────────────────────────

func (s *Service) SetSellingPrice(ctx context.Context, req domain.PriceSetRequest) (domain.SellingPrice, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SellingPrice{}, fmt.Errorf("admin role required")
	}

	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		return domain.SellingPrice{}, store.ErrInvalidInput
	}
	if req.Price.IsNegative() {
		return domain.SellingPrice{}, fmt.Errorf("%w: price must be non-negative", store.ErrInvalidInput)
	}

	price, err := s.repo.AppendSellingPrice(ctx, domain.SellingPrice{
		ID:            xid.New("price"),
		ItemID:        req.ItemID,
		Price:         req.Price,
		EffectiveFrom: time.Now().UTC().Unix(),
		SetBy:         actor.Username,
	})
	if err != nil {
		return domain.SellingPrice{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "price_set", "item", req.ItemID, fmt.Sprintf("price=%s", req.Price))

	return *price, nil
}

func (s *Service) ListSellingPrices(ctx context.Context, itemID string, limit int) ([]domain.SellingPrice, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListSellingPrices(ctx, itemID, limit)
}

// ── Expenses ─────────────────────────────────────────────────────────────────

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Expense{}, fmt.Errorf("admin role required")
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(strings.ToLower(req.Category))
	req.Frequency = strings.TrimSpace(strings.ToLower(req.Frequency))

	if req.Name == "" {
		return domain.Expense{}, store.ErrInvalidInput
	}
	if req.Category != domain.ExpenseFixed && req.Category != domain.ExpenseVariable {
		return domain.Expense{}, fmt.Errorf("%w: category must be fixed or variable", store.ErrInvalidInput)
	}
	if analytics.FrequencyDivisor(req.Frequency) < 1 {
		return domain.Expense{}, fmt.Errorf("%w: unknown frequency %q", store.ErrInvalidInput, req.Frequency)
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidInput)
	}

	now := time.Now().UTC().Unix()
	startDate := req.StartDate
	if startDate == 0 {
		startDate = now
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:        xid.New("exp"),
		StoreID:   req.StoreID,
		Name:      req.Name,
		Category:  req.Category,
		Frequency: req.Frequency,
		Amount:    req.Amount,
		StartDate: startDate,
		Active:    true,
		CreatedAt: now,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, req.StoreID, "expense_create", "expense", created.ID,
		fmt.Sprintf("name=%s,category=%s,frequency=%s,amount=%s", created.Name, created.Category, created.Frequency, created.Amount))

	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, storeID string, activeOnly bool) ([]domain.Expense, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	return s.repo.ListExpenses(ctx, storeID, activeOnly)
}

func (s *Service) DeactivateExpense(ctx context.Context, expenseID string) (domain.Expense, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Expense{}, fmt.Errorf("admin role required")
	}
	expenseID = strings.TrimSpace(expenseID)
	if expenseID == "" {
		return domain.Expense{}, store.ErrInvalidInput
	}

	updated, err := s.repo.DeactivateExpense(ctx, expenseID)
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, updated.StoreID, "expense_deactivate", "expense", updated.ID, updated.Name)

	return *updated, nil
}

func (s *Service) DailyCostSummary(ctx context.Context, storeID string) (domain.DailyCostSummary, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	expenses, err := s.repo.ListExpenses(ctx, storeID, false)
	if err != nil {
		return domain.DailyCostSummary{}, err
	}
	return analytics.BuildDailyCostSummary(expenses, time.Now().UTC().Unix()), nil
}

// ── Reports ──────────────────────────────────────────────────────────────────

// resolvePeriod fills in the default 30-day window and rejects an inverted
// range.
func resolvePeriod(start int64, end int64) (int64, int64, error) {
	now := time.Now().UTC().Unix()
	if end == 0 {
		end = now
	}
	if start == 0 {
		start = end - int64(defaultReportWindow/time.Second)
	}
	if start > end {
		return 0, 0, fmt.Errorf("%w: period start after end", store.ErrInvalidInput)
	}
	return start, end, nil
}

func (s *Service) ProfitReport(ctx context.Context, storeID string, start int64, end int64) (domain.ProfitReport, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	start, end, err := resolvePeriod(start, end)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	key := fmt.Sprintf("report:profit:%s:%d:%d", storeID, start, end)
	if cached, hit, err := s.reports.GetProfitReport(ctx, key); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: profit report cache read failed: %v", err)
	}

	totals, err := s.repo.SalesTotals(ctx, storeID, start, end)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, storeID, false)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	report := analytics.BuildProfitReport(totals, expenses, start, end)

	if err := s.reports.SetProfitReport(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: profit report cache write failed: %v", err)
	}

	return report, nil
}

func (s *Service) StockReport(ctx context.Context, storeID string, start int64, end int64) (domain.StockReport, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	start, end, err := resolvePeriod(start, end)
	if err != nil {
		return domain.StockReport{}, err
	}

	key := fmt.Sprintf("report:stock:%s:%d:%d", storeID, start, end)
	if cached, hit, err := s.reports.GetStockReport(ctx, key); err == nil && hit {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: stock report cache read failed: %v", err)
	}

	items, err := s.repo.ListItems(ctx, storeID)
	if err != nil {
		return domain.StockReport{}, err
	}

	byID := make(map[string]domain.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	totals, err := s.repo.SalesTotals(ctx, storeID, start, end)
	if err != nil {
		return domain.StockReport{}, err
	}
	salesByItem := make(map[string]decimal.Decimal, len(totals))
	for _, t := range totals {
		salesByItem[t.ItemID] = t.TotalSales
	}

	report := domain.StockReport{StoreID: storeID, Start: start, End: end}
	for _, item := range catalog.Sellable(items) {
		initial, err := s.repo.StockPositionAt(ctx, item.ID, start)
		if err != nil {
			return domain.StockReport{}, err
		}
		current, err := s.repo.ValuedStock(ctx, item.ID)
		if err != nil {
			return domain.StockReport{}, err
		}

		var parent *domain.Item
		if item.IsVariant() {
			if p, exists := byID[item.ParentItemID]; exists {
				parent = &p
			}
		}
		salesValue := decimal.Zero
		if v, exists := salesByItem[item.ID]; exists {
			salesValue = v
		}
		report.Items = append(report.Items,
			analytics.BuildStockReportItem(item, catalog.DisplayName(item, parent), initial, current, salesValue))
	}

	if err := s.reports.SetStockReport(ctx, key, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: stock report cache write failed: %v", err)
	}

	return report, nil
}

// LowStockReport lists sellable items at or below their minimum stock level.
func (s *Service) LowStockReport(ctx context.Context, storeID string) ([]domain.Item, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	items, err := s.repo.ListItems(ctx, storeID)
	if err != nil {
		return nil, err
	}

	low := make([]domain.Item, 0, 8)
	for _, item := range catalog.Sellable(items) {
		if item.MinStockLevel.IsPositive() && item.CurrentStock.LessThanOrEqual(item.MinStockLevel) {
			low = append(low, item)
		}
	}
	return low, nil
}

// ── Audit ────────────────────────────────────────────────────────────────────

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, from int64, to int64, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if to == 0 {
		to = time.Now().UTC().Unix()
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC().Unix(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// DefaultStoreID exposes the configured store scope for handlers.
func (s *Service) DefaultStoreID() string {
	return s.defaultStoreID
}
