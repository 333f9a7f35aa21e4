package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"warunglaba/backend/internal/domain"
	"warunglaba/backend/internal/store"
	"warunglaba/backend/internal/xid"
)

// Store is the in-memory Repository used for dev mode and tests. A single
// mutex serializes all ledger mutations, which gives the same per-item
// all-or-nothing guarantees the postgres store gets from transactions.
type Store struct {
	mu              sync.RWMutex
	items           map[string]domain.Item
	batchesByItem   map[string][]domain.InventoryBatch
	movementsByItem map[string][]domain.StockMovement
	adjustsByItem   map[string][]domain.StockAdjustment
	pricesByItem    map[string][]domain.SellingPrice
	expensesByID    map[string]domain.Expense
	sales           []domain.Sale
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables; hardcoded dev defaults are used otherwise.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC().Unix()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with only the auth accounts seeded.
func New() *Store {
	return &Store{
		items:           make(map[string]domain.Item),
		batchesByItem:   make(map[string][]domain.InventoryBatch),
		movementsByItem: make(map[string][]domain.StockMovement),
		adjustsByItem:   make(map[string][]domain.StockAdjustment),
		pricesByItem:    make(map[string][]domain.SellingPrice),
		expensesByID:    make(map[string]domain.Expense),
		sales:           make([]domain.Sale, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store pre-populated with a small produce catalog,
// opening batches and a pair of recurring expenses, for dev/demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC().Unix()

	seedItems := []struct {
		id       string
		name     string
		category string
		unit     string
		price    int64
		minStock int64
		parent   string
		variant  string
	}{
		{"item-tomat", "Tomat", "produce", domain.UnitKg, 16000, 5, "", ""},
		{"item-bawang", "Bawang Merah", "produce", domain.UnitKg, 38000, 3, "", ""},
		{"item-telur", "Telur Ayam", "grocery", domain.UnitTray, 52000, 4, "", ""},
		{"item-beras", "Beras Premium", "grocery", domain.UnitPiece, 0, 0, "", ""},
		{"item-beras-5", "Beras Premium", "grocery", domain.UnitPiece, 78000, 2, "item-beras", "5kg"},
		{"item-beras-10", "Beras Premium", "grocery", domain.UnitPiece, 152000, 2, "item-beras", "10kg"},
		{"item-minyak", "Minyak Goreng 1L", "grocery", domain.UnitPiece, 19500, 6, "", ""},
	}
	for _, it := range seedItems {
		s.items[it.id] = domain.Item{
			ID:               it.id,
			StoreID:          "main-store",
			Name:             it.name,
			Category:         it.category,
			Unit:             it.unit,
			CurrentSellPrice: decimal.NewFromInt(it.price),
			MinStockLevel:    decimal.NewFromInt(it.minStock),
			ParentItemID:     it.parent,
			VariantName:      it.variant,
			Active:           true,
			CreatedAt:        now,
		}
	}

	seedBatches := []struct {
		itemID string
		qty    int64
		cost   int64
	}{
		{"item-tomat", 25, 11000},
		{"item-bawang", 10, 30000},
		{"item-telur", 12, 46000},
		{"item-beras-5", 8, 69000},
		{"item-beras-10", 5, 135000},
		{"item-minyak", 30, 16800},
	}
	for _, b := range seedBatches {
		qty := decimal.NewFromInt(b.qty)
		batch := domain.InventoryBatch{
			ID:                xid.New("batch"),
			ItemID:            b.itemID,
			InitialQuantity:   qty,
			QuantityRemaining: qty,
			BuyPricePerUnit:   decimal.NewFromInt(b.cost),
			SourceType:        domain.BatchSourcePurchase,
			ReceivedAt:        now - 86400,
		}
		s.batchesByItem[b.itemID] = append(s.batchesByItem[b.itemID], batch)
		s.movementsByItem[b.itemID] = append(s.movementsByItem[b.itemID], domain.StockMovement{
			ID:        xid.New("mov"),
			ItemID:    b.itemID,
			BatchID:   batch.ID,
			Type:      domain.MovementReceipt,
			Quantity:  qty,
			UnitCost:  batch.BuyPricePerUnit,
			CreatedAt: batch.ReceivedAt,
		})
		item := s.items[b.itemID]
		item.CurrentStock = qty
		s.items[b.itemID] = item
	}

	for _, e := range []struct {
		id        string
		name      string
		category  string
		frequency string
		amount    int64
	}{
		{"exp-sewa", "Sewa Kios", domain.ExpenseFixed, domain.FrequencyMonthly, 900000},
		{"exp-listrik", "Listrik & Air", domain.ExpenseVariable, domain.FrequencyWeekly, 70000},
	} {
		s.expensesByID[e.id] = domain.Expense{
			ID:        e.id,
			StoreID:   "main-store",
			Name:      e.name,
			Category:  e.category,
			Frequency: e.frequency,
			Amount:    decimal.NewFromInt(e.amount),
			StartDate: now - 30*86400,
			Active:    true,
			CreatedAt: now - 30*86400,
		}
	}

	return s
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" || item.Name == "" || item.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.items[item.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if item.ParentItemID != "" {
		parent, exists := s.items[item.ParentItemID]
		if !exists {
			return nil, fmt.Errorf("%w: parent item %s", store.ErrNotFound, item.ParentItemID)
		}
		// A parent must not itself be a variant: variant nesting is one level deep.
		if parent.IsVariant() {
			return nil, fmt.Errorf("%w: parent %s is a variant", store.ErrInvalidInput, item.ParentItemID)
		}
		if item.VariantName == "" {
			return nil, store.ErrInvalidInput
		}
		item.Category = parent.Category
	}

	item.Active = true
	s.items[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyItem := item
	return &copyItem, nil
}

func (s *Store) ListItems(_ context.Context, storeID string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		if !item.Active {
			continue
		}
		if storeID != "" && item.StoreID != storeID {
			continue
		}
		items = append(items, item)
	}

	slices.SortFunc(items, func(a, b domain.Item) int {
		if a.Category == b.Category {
			if a.Name == b.Name {
				return strings.Compare(a.ID, b.ID)
			}
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return items, nil
}

// hasVariantsLocked reports whether any active item references id as parent.
func (s *Store) hasVariantsLocked(id string) bool {
	for _, item := range s.items {
		if item.Active && item.ParentItemID == id {
			return true
		}
	}
	return false
}

// ── Batch ledger ─────────────────────────────────────────────────────────────

// sortBatchesLocked keeps an item's batches in FIFO consumption order:
// received_at ascending, insertion order breaking ties.
func (s *Store) sortBatchesLocked(itemID string) {
	slices.SortStableFunc(s.batchesByItem[itemID], func(a, b domain.InventoryBatch) int {
		switch {
		case a.ReceivedAt < b.ReceivedAt:
			return -1
		case a.ReceivedAt > b.ReceivedAt:
			return 1
		}
		return 0
	})
}

func (s *Store) ReceiveBatch(_ context.Context, input domain.BatchInput) (*domain.InventoryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiveBatchLocked(input)
}

func (s *Store) receiveBatchLocked(input domain.BatchInput) (*domain.InventoryBatch, error) {
	if !input.Quantity.IsPositive() || input.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must be positive and unit cost non-negative", store.ErrInvalidInput)
	}
	item, exists := s.items[input.ItemID]
	if !exists || !item.Active {
		return nil, store.ErrNotFound
	}
	if s.hasVariantsLocked(input.ItemID) {
		return nil, fmt.Errorf("%w: parent items hold no stock", store.ErrInvalidInput)
	}

	receivedAt := input.ReceivedAt
	if receivedAt == 0 {
		receivedAt = time.Now().UTC().Unix()
	}
	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = domain.BatchSourcePurchase
	}

	batch := domain.InventoryBatch{
		ID:                xid.New("batch"),
		ItemID:            input.ItemID,
		InitialQuantity:   input.Quantity,
		QuantityRemaining: input.Quantity,
		BuyPricePerUnit:   input.UnitCost,
		SourceType:        sourceType,
		SourceRef:         input.SourceRef,
		ReceivedAt:        receivedAt,
	}
	s.batchesByItem[input.ItemID] = append(s.batchesByItem[input.ItemID], batch)
	s.sortBatchesLocked(input.ItemID)
	s.movementsByItem[input.ItemID] = append(s.movementsByItem[input.ItemID], domain.StockMovement{
		ID:        xid.New("mov"),
		ItemID:    input.ItemID,
		BatchID:   batch.ID,
		Type:      domain.MovementReceipt,
		Quantity:  input.Quantity,
		UnitCost:  input.UnitCost,
		CreatedAt: receivedAt,
	})
	s.refreshItemStockLocked(input.ItemID)

	created := batch
	return &created, nil
}

func (s *Store) ConsumeBatches(_ context.Context, itemID string, quantity decimal.Decimal) ([]domain.BatchConsumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[itemID]; !exists {
		return nil, store.ErrNotFound
	}
	taken, err := s.consumeLocked(itemID, quantity, time.Now().UTC().Unix())
	if err != nil {
		return nil, err
	}
	s.refreshItemStockLocked(itemID)
	return taken, nil
}

// consumeLocked walks the item's batches oldest-first, taking from each until
// quantity is satisfied. All-or-nothing: if total remaining is short, no
// batch is touched.
func (s *Store) consumeLocked(itemID string, quantity decimal.Decimal, at int64) ([]domain.BatchConsumption, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	batches := s.batchesByItem[itemID]
	available := decimal.Zero
	for _, b := range batches {
		available = available.Add(b.QuantityRemaining)
	}
	if available.LessThan(quantity) {
		return nil, store.ErrInsufficientStock
	}

	remaining := quantity
	taken := make([]domain.BatchConsumption, 0, 2)
	for i := range batches {
		if remaining.IsZero() {
			break
		}
		if !batches[i].QuantityRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(batches[i].QuantityRemaining, remaining)
		batches[i].QuantityRemaining = batches[i].QuantityRemaining.Sub(take)
		remaining = remaining.Sub(take)
		taken = append(taken, domain.BatchConsumption{
			BatchID:  batches[i].ID,
			Quantity: take,
			UnitCost: batches[i].BuyPricePerUnit,
		})
		s.movementsByItem[itemID] = append(s.movementsByItem[itemID], domain.StockMovement{
			ID:        xid.New("mov"),
			ItemID:    itemID,
			BatchID:   batches[i].ID,
			Type:      domain.MovementConsumption,
			Quantity:  take.Neg(),
			UnitCost:  batches[i].BuyPricePerUnit,
			CreatedAt: at,
		})
	}
	s.batchesByItem[itemID] = batches
	return taken, nil
}

func (s *Store) CostOfGoods(_ context.Context, itemID string, quantity decimal.Decimal) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.items[itemID]; !exists {
		return decimal.Zero, store.ErrNotFound
	}
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	remaining := quantity
	cost := decimal.Zero
	for _, b := range s.batchesByItem[itemID] {
		if remaining.IsZero() {
			break
		}
		if !b.QuantityRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(b.QuantityRemaining, remaining)
		cost = cost.Add(take.Mul(b.BuyPricePerUnit))
		remaining = remaining.Sub(take)
	}
	if !remaining.IsZero() {
		return decimal.Zero, store.ErrInsufficientStock
	}
	return cost, nil
}

func (s *Store) ValuedStock(_ context.Context, itemID string) (domain.StockPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.items[itemID]; !exists {
		return domain.StockPosition{}, store.ErrNotFound
	}
	return s.valuedStockLocked(itemID), nil
}

func (s *Store) valuedStockLocked(itemID string) domain.StockPosition {
	position := domain.StockPosition{Quantity: decimal.Zero, Value: decimal.Zero}
	for _, b := range s.batchesByItem[itemID] {
		if !b.QuantityRemaining.IsPositive() {
			continue
		}
		position.Quantity = position.Quantity.Add(b.QuantityRemaining)
		position.Value = position.Value.Add(b.QuantityRemaining.Mul(b.BuyPricePerUnit))
	}
	return position
}

// StockPositionAt reconstructs the item's position as of the given instant
// by rolling back every journal movement recorded after it.
func (s *Store) StockPositionAt(_ context.Context, itemID string, at int64) (domain.StockPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.items[itemID]; !exists {
		return domain.StockPosition{}, store.ErrNotFound
	}

	position := s.valuedStockLocked(itemID)
	for _, m := range s.movementsByItem[itemID] {
		if m.CreatedAt <= at {
			continue
		}
		position.Quantity = position.Quantity.Sub(m.Quantity)
		position.Value = position.Value.Sub(m.Quantity.Mul(m.UnitCost))
	}
	return position, nil
}

func (s *Store) ListBatches(_ context.Context, itemID string, includeExhausted bool) ([]domain.InventoryBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.items[itemID]; !exists {
		return nil, store.ErrNotFound
	}
	batches := make([]domain.InventoryBatch, 0, len(s.batchesByItem[itemID]))
	for _, b := range s.batchesByItem[itemID] {
		if !includeExhausted && !b.QuantityRemaining.IsPositive() {
			continue
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// refreshItemStockLocked recomputes the cached current_stock from the
// ledger. Called after every ledger mutation; the cache never drives math.
func (s *Store) refreshItemStockLocked(itemID string) {
	item, exists := s.items[itemID]
	if !exists {
		return
	}
	item.CurrentStock = s.valuedStockLocked(itemID).Quantity
	s.items[itemID] = item
}

// ── Adjustments ──────────────────────────────────────────────────────────────

func (s *Store) ApplyAdjustment(_ context.Context, input domain.AdjustmentInput) (*domain.StockAdjustment, *domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[input.ItemID]
	if !exists || !item.Active {
		return nil, nil, store.ErrNotFound
	}
	if s.hasVariantsLocked(input.ItemID) {
		return nil, nil, fmt.Errorf("%w: parent items hold no stock", store.ErrInvalidInput)
	}
	if !input.Quantity.IsPositive() {
		return nil, nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	at := input.At
	if at == 0 {
		at = time.Now().UTC().Unix()
	}
	systemStock := s.valuedStockLocked(input.ItemID).Quantity
	notes := input.Notes
	adjustmentID := xid.New("adj")

	switch input.Type {
	case domain.AdjustDecrease:
		if input.Quantity.GreaterThan(systemStock) {
			return nil, nil, store.ErrExceedsStock
		}
		if _, err := s.consumeLocked(input.ItemID, input.Quantity, at); err != nil {
			return nil, nil, err
		}
	case domain.AdjustIncrease:
		unitCost := decimal.Zero
		if input.UnitCost != nil {
			unitCost = *input.UnitCost
		} else {
			// No cost supplied: value the correction at the most recent
			// batch's buy price (zero when no batch exists) and record the
			// fallback for auditability.
			if latest, ok := s.latestBatchLocked(input.ItemID); ok {
				unitCost = latest.BuyPricePerUnit
			}
			notes = strings.TrimSpace(notes + fmt.Sprintf(" [unit cost %s from latest batch]", unitCost.String()))
		}
		if _, err := s.receiveBatchLocked(domain.BatchInput{
			ItemID:     input.ItemID,
			Quantity:   input.Quantity,
			UnitCost:   unitCost,
			SourceType: domain.BatchSourceAdjustment,
			SourceRef:  adjustmentID,
			ReceivedAt: at,
		}); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("%w: unknown adjustment type %q", store.ErrInvalidInput, input.Type)
	}

	actualStock := s.valuedStockLocked(input.ItemID).Quantity
	adjustment := domain.StockAdjustment{
		ID:          adjustmentID,
		ItemID:      input.ItemID,
		SystemStock: systemStock,
		ActualStock: actualStock,
		Difference:  actualStock.Sub(systemStock),
		Reason:      input.Reason,
		Notes:       notes,
		AdjustedBy:  input.AdjustedBy,
		CreatedAt:   at,
	}
	s.adjustsByItem[input.ItemID] = append(s.adjustsByItem[input.ItemID], adjustment)
	s.refreshItemStockLocked(input.ItemID)

	updated := s.items[input.ItemID]
	created := adjustment
	return &created, &updated, nil
}

// latestBatchLocked returns the most recently received batch for an item.
func (s *Store) latestBatchLocked(itemID string) (domain.InventoryBatch, bool) {
	batches := s.batchesByItem[itemID]
	if len(batches) == 0 {
		return domain.InventoryBatch{}, false
	}
	return batches[len(batches)-1], true
}

func (s *Store) ListAdjustments(_ context.Context, itemID string, limit int) ([]domain.StockAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.adjustsByItem[itemID]
	result := make([]domain.StockAdjustment, len(history))
	copy(result, history)
	slices.Reverse(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ── Sales ────────────────────────────────────────────────────────────────────

func (s *Store) RecordSale(_ context.Context, input domain.SaleInput) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[input.ItemID]
	if !exists || !item.Active {
		return nil, store.ErrNotFound
	}
	if s.hasVariantsLocked(input.ItemID) {
		return nil, fmt.Errorf("%w: parent items are not sellable", store.ErrInvalidInput)
	}
	if !input.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	unitPrice := item.CurrentSellPrice
	if input.UnitPrice != nil {
		unitPrice = *input.UnitPrice
	}
	if unitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price must be non-negative", store.ErrInvalidInput)
	}

	at := input.At
	if at == 0 {
		at = time.Now().UTC().Unix()
	}

	taken, err := s.consumeLocked(input.ItemID, input.Quantity, at)
	if err != nil {
		return nil, err
	}

	cogs := decimal.Zero
	for _, t := range taken {
		cogs = cogs.Add(t.Quantity.Mul(t.UnitCost))
	}

	storeID := input.StoreID
	if storeID == "" {
		storeID = item.StoreID
	}
	sale := domain.Sale{
		ID:           xid.New("sale"),
		StoreID:      storeID,
		ItemID:       input.ItemID,
		Quantity:     input.Quantity,
		UnitPrice:    unitPrice,
		Total:        input.Quantity.Mul(unitPrice),
		CostOfGoods:  cogs,
		Consumptions: taken,
		SoldBy:       input.SoldBy,
		SoldAt:       at,
	}
	s.sales = append(s.sales, sale)
	s.refreshItemStockLocked(input.ItemID)

	created := sale
	return &created, nil
}

func (s *Store) SalesTotals(_ context.Context, storeID string, from int64, to int64) ([]domain.ItemSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byItem := make(map[string]*domain.ItemSales)
	for _, sale := range s.sales {
		if sale.SoldAt < from || sale.SoldAt > to {
			continue
		}
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		agg, exists := byItem[sale.ItemID]
		if !exists {
			name := sale.ItemID
			if item, ok := s.items[sale.ItemID]; ok {
				name = item.Name
				if item.VariantName != "" {
					if parent, ok := s.items[item.ParentItemID]; ok {
						name = parent.Name + " - " + item.VariantName
					}
				}
			}
			agg = &domain.ItemSales{ItemID: sale.ItemID, ItemName: name}
			byItem[sale.ItemID] = agg
		}
		agg.QuantitySold = agg.QuantitySold.Add(sale.Quantity)
		agg.TotalSales = agg.TotalSales.Add(sale.Total)
		agg.TotalCost = agg.TotalCost.Add(sale.CostOfGoods)
	}

	totals := make([]domain.ItemSales, 0, len(byItem))
	for _, agg := range byItem {
		totals = append(totals, *agg)
	}
	slices.SortFunc(totals, func(a, b domain.ItemSales) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return totals, nil
}

// ── Selling prices ───────────────────────────────────────────────────────────

func (s *Store) AppendSellingPrice(_ context.Context, price domain.SellingPrice) (*domain.SellingPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[price.ItemID]
	if !exists || !item.Active {
		return nil, store.ErrNotFound
	}
	if price.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must be non-negative", store.ErrInvalidInput)
	}

	if price.ID == "" {
		price.ID = xid.New("price")
	}
	if price.EffectiveFrom == 0 {
		price.EffectiveFrom = time.Now().UTC().Unix()
	}
	s.pricesByItem[price.ItemID] = append(s.pricesByItem[price.ItemID], price)

	// The item carries the latest price as a denormalized convenience.
	latest := s.pricesByItem[price.ItemID][0]
	for _, p := range s.pricesByItem[price.ItemID] {
		if p.EffectiveFrom > latest.EffectiveFrom ||
			(p.EffectiveFrom == latest.EffectiveFrom && p.ID > latest.ID) {
			latest = p
		}
	}
	item.CurrentSellPrice = latest.Price
	s.items[price.ItemID] = item

	created := price
	return &created, nil
}

func (s *Store) ListSellingPrices(_ context.Context, itemID string, limit int) ([]domain.SellingPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.pricesByItem[itemID]
	result := make([]domain.SellingPrice, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.SellingPrice) int {
		if a.EffectiveFrom == b.EffectiveFrom {
			return strings.Compare(b.ID, a.ID)
		}
		if a.EffectiveFrom > b.EffectiveFrom {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ── Expenses ─────────────────────────────────────────────────────────────────

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" || expense.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.expensesByID[expense.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, storeID string, activeOnly bool) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expensesByID))
	for _, e := range s.expensesByID {
		if activeOnly && !e.Active {
			continue
		}
		if storeID != "" && e.StoreID != storeID {
			continue
		}
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.CreatedAt == b.CreatedAt {
			return strings.Compare(a.ID, b.ID)
		}
		if a.CreatedAt < b.CreatedAt {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) DeactivateExpense(_ context.Context, expenseID string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expensesByID[expenseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	expense.Active = false
	s.expensesByID[expenseID] = expense
	updated := expense
	return &updated, nil
}

// ── Audit trail ──────────────────────────────────────────────────────────────

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().UTC().Unix()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from int64, to int64, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt < from || entry.CreatedAt > to {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

// ── Auth accounts ────────────────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().UTC().Unix()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
