package domain

import "github.com/shopspring/decimal"

func init() {
	// Every numeric contract field is a JSON number, not a quoted string.
	decimal.MarshalJSONWithoutQuotes = true
}

// Item is a sellable product, a variant of a parent product, or a parent
// grouping. A parent is never directly sellable; its stock and price are
// ignored. A variant always carries ParentItemID and VariantName and
// inherits its category from the parent.
type Item struct {
	ID               string          `json:"id"`
	StoreID          string          `json:"store_id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Unit             string          `json:"unit"`
	CurrentStock     decimal.Decimal `json:"current_stock"`
	CurrentSellPrice decimal.Decimal `json:"current_sell_price"`
	MinStockLevel    decimal.Decimal `json:"min_stock_level"`
	ParentItemID     string          `json:"parent_item_id,omitempty"`
	VariantName      string          `json:"variant_name,omitempty"`
	Active           bool            `json:"active"`
	CreatedAt        int64           `json:"created_at"`
}

// IsVariant reports whether the item belongs to a parent grouping.
func (i Item) IsVariant() bool {
	return i.ParentItemID != ""
}

// InventoryBatch is one discrete receipt of stock at a known unit cost.
// Batches are consumed oldest-first and never deleted; an exhausted batch
// (QuantityRemaining zero) is retained for audit and valuation history.
type InventoryBatch struct {
	ID                string          `json:"id"`
	ItemID            string          `json:"item_id"`
	InitialQuantity   decimal.Decimal `json:"initial_quantity"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	BuyPricePerUnit   decimal.Decimal `json:"buy_price_per_unit"`
	SourceType        string          `json:"source_type"`
	SourceRef         string          `json:"source_ref,omitempty"`
	ReceivedAt        int64           `json:"received_at"`
}

// BatchConsumption is one slice of a FIFO consumption: how much was taken
// from which batch, and at what unit cost.
type BatchConsumption struct {
	BatchID  string          `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// StockMovement is one journal line of the batch ledger: a signed quantity
// (positive receipt, negative consumption) with the unit cost it moved at.
// The journal is what makes period-start stock positions reconstructible.
type StockMovement struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id"`
	BatchID   string          `json:"batch_id"`
	Type      string          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	CreatedAt int64           `json:"created_at"`
}

// StockAdjustment is an audited manual stock correction. Rows are immutable
// once written.
type StockAdjustment struct {
	ID          string          `json:"id"`
	ItemID      string          `json:"item_id"`
	SystemStock decimal.Decimal `json:"system_stock"`
	ActualStock decimal.Decimal `json:"actual_stock"`
	Difference  decimal.Decimal `json:"difference"`
	Reason      string          `json:"reason"`
	Notes       string          `json:"notes,omitempty"`
	AdjustedBy  string          `json:"adjusted_by"`
	CreatedAt   int64           `json:"created_at"`
}

// SellingPrice is a historical price-in-effect record. Price changes append
// new rows, never mutate old ones.
type SellingPrice struct {
	ID            string          `json:"id"`
	ItemID        string          `json:"item_id"`
	Price         decimal.Decimal `json:"price"`
	EffectiveFrom int64           `json:"effective_from"`
	SetBy         string          `json:"set_by"`
}

// Expense is a recurring operating cost declared at some frequency.
// Expenses are soft-deactivated, never hard-deleted.
type Expense struct {
	ID        string          `json:"id"`
	StoreID   string          `json:"store_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Frequency string          `json:"frequency"`
	Amount    decimal.Decimal `json:"amount"`
	StartDate int64           `json:"start_date"`
	Active    bool            `json:"active"`
	CreatedAt int64           `json:"created_at"`
}

// Sale is one realized sale line. COGS is captured at sale time from the
// FIFO consumption breakdown, so profit reporting never has to re-derive it.
type Sale struct {
	ID           string             `json:"id"`
	StoreID      string             `json:"store_id"`
	ItemID       string             `json:"item_id"`
	Quantity     decimal.Decimal    `json:"quantity"`
	UnitPrice    decimal.Decimal    `json:"unit_price"`
	Total        decimal.Decimal    `json:"total"`
	CostOfGoods  decimal.Decimal    `json:"cost_of_goods"`
	Consumptions []BatchConsumption `json:"consumptions,omitempty"`
	SoldBy       string             `json:"sold_by,omitempty"`
	SoldAt       int64              `json:"sold_at"`
}

// StockPosition is a quantity with its weighted cost-basis value.
type StockPosition struct {
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

// DisplayItem is the resolved catalog shape: either a standalone item, or a
// parent carrying its variants sorted by variant name. A variant's display
// name is always recomputed as "{parent} - {variant}", never stored.
type DisplayItem struct {
	Item
	DisplayName  string        `json:"display_name"`
	IsParent     bool          `json:"is_parent"`
	VariantCount int           `json:"variant_count,omitempty"`
	Variants     []DisplayItem `json:"variants,omitempty"`
}

// ItemSales is the per-item sales/COGS aggregate for a period.
type ItemSales struct {
	ItemID       string          `json:"item_id"`
	ItemName     string          `json:"item_name"`
	QuantitySold decimal.Decimal `json:"quantity_sold"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// ItemProfit is one ranked row of the profit report.
type ItemProfit struct {
	ItemID       string          `json:"item_id"`
	ItemName     string          `json:"item_name"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	QuantitySold decimal.Decimal `json:"quantity_sold"`
	LowMargin    bool            `json:"low_margin"`
}

// ProfitReport combines realized sales/COGS with normalized operating
// expenses for a period. BreakEvenSales is nil when margin is zero or
// negative: a business with no positive margin has no break-even figure,
// and that must surface as JSON null, never as 0 or Infinity.
type ProfitReport struct {
	Start          int64            `json:"start"`
	End            int64            `json:"end"`
	PeriodDays     int64            `json:"periodDays"`
	TotalProfit    decimal.Decimal  `json:"totalProfit"`
	TotalSales     decimal.Decimal  `json:"totalSales"`
	TotalCost      decimal.Decimal  `json:"totalCost"`
	ProfitMargin   decimal.Decimal  `json:"profitMargin"`
	ScaledExpense  decimal.Decimal  `json:"scaledExpense"`
	NetProfit      decimal.Decimal  `json:"netProfit"`
	BreakEvenSales *decimal.Decimal `json:"breakEvenSales"`
	ItemProfits    []ItemProfit     `json:"itemProfits"`
}

// ExpenseAggregate is the daily-normalized view of the active expense set.
type ExpenseAggregate struct {
	FixedDailyCost     decimal.Decimal `json:"fixedDailyCost"`
	VariableDailyCost  decimal.Decimal `json:"variableDailyCost"`
	DailyOperatingCost decimal.Decimal `json:"dailyOperatingCost"`
	ScaledCost         decimal.Decimal `json:"scaledCost"`
	ExpenseCount       int             `json:"expenseCount"`
}

// DailyCostSummary is the /expenses/daily-cost response. Weekly and monthly
// figures use the same fixed 7/30 approximation as the per-frequency
// divisors.
type DailyCostSummary struct {
	DailyOperatingCost   decimal.Decimal `json:"dailyOperatingCost"`
	FixedDailyCost       decimal.Decimal `json:"fixedDailyCost"`
	VariableDailyCost    decimal.Decimal `json:"variableDailyCost"`
	WeeklyOperatingCost  decimal.Decimal `json:"weeklyOperatingCost"`
	MonthlyOperatingCost decimal.Decimal `json:"monthlyOperatingCost"`
	ExpenseCount         int             `json:"expenseCount"`
}

// StockReportItem enriches an item with its period-start position, current
// valuation and trend. StockChangePercent is nil when the initial stock is
// zero (division undefined; rendered as JSON null).
type StockReportItem struct {
	Item
	DisplayName        string           `json:"display_name"`
	InitialStock       decimal.Decimal  `json:"initial_stock"`
	StockChange        decimal.Decimal  `json:"stock_change"`
	StockChangePercent *decimal.Decimal `json:"stock_change_percent"`
	InitialValue       decimal.Decimal  `json:"initial_value"`
	StockValue         decimal.Decimal  `json:"stock_value"`
	SalesValue         decimal.Decimal  `json:"sales_value"`
	Trend              string           `json:"trend"`
}

// StockReport is the /stock response.
type StockReport struct {
	StoreID string            `json:"store_id"`
	Start   int64             `json:"start"`
	End     int64             `json:"end"`
	Items   []StockReportItem `json:"items"`
}

// ── Request payloads ─────────────────────────────────────────────────────────

type ItemCreateRequest struct {
	StoreID       string          `json:"store_id,omitempty"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
	ParentItemID  string          `json:"parent_item_id,omitempty"`
	VariantName   string          `json:"variant_name,omitempty"`
}

type StockAdjustRequest struct {
	ItemID         string           `json:"itemId"`
	AdjustmentType string           `json:"adjustmentType"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Reason         string           `json:"reason"`
	Notes          string           `json:"notes"`
	UnitCost       *decimal.Decimal `json:"unitCost,omitempty"`
}

type StockAdjustResponse struct {
	Success    bool            `json:"success"`
	Item       Item            `json:"item"`
	Adjustment StockAdjustment `json:"adjustment"`
}

type BatchReceiveRequest struct {
	ItemID     string          `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	SourceRef  string          `json:"source_ref,omitempty"`
	ReceivedAt int64           `json:"received_at,omitempty"`
}

type SaleCreateRequest struct {
	StoreID   string           `json:"store_id,omitempty"`
	ItemID    string           `json:"item_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type PriceSetRequest struct {
	ItemID string          `json:"item_id"`
	Price  decimal.Decimal `json:"price"`
}

type ExpenseCreateRequest struct {
	StoreID   string          `json:"store_id,omitempty"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Frequency string          `json:"frequency"`
	Amount    decimal.Decimal `json:"amount"`
	StartDate int64           `json:"start_date,omitempty"`
}

type CostPreview struct {
	ItemID   string          `json:"item_id"`
	Quantity decimal.Decimal `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
}

// ── Internal store inputs ────────────────────────────────────────────────────

// AdjustmentInput is the store-level input for an atomic stock adjustment.
// UnitCost is only consulted for increases; when nil on a non-restock
// increase, the store falls back to the most recent batch's buy price.
type AdjustmentInput struct {
	ItemID     string
	Type       string
	Quantity   decimal.Decimal
	Reason     string
	Notes      string
	UnitCost   *decimal.Decimal
	AdjustedBy string
	At         int64
}

// SaleInput is the store-level input for an atomic FIFO sale.
// A nil UnitPrice means "sell at the item's current selling price".
type SaleInput struct {
	StoreID   string
	ItemID    string
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal
	SoldBy    string
	At        int64
}

// BatchInput is the store-level input for a goods receipt.
type BatchInput struct {
	ItemID     string
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	SourceType string
	SourceRef  string
	ReceivedAt int64
}

// ── Auth / audit ─────────────────────────────────────────────────────────────

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt int64
}

type AuditLog struct {
	ID            string `json:"id"`
	StoreID       string `json:"store_id"`
	ActorUsername string `json:"actor_username"`
	ActorRole     string `json:"actor_role"`
	Action        string `json:"action"`
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	Detail        string `json:"detail"`
	CreatedAt     int64  `json:"created_at"`
}

// ── Enumerations ─────────────────────────────────────────────────────────────

const (
	AdjustIncrease = "increase"
	AdjustDecrease = "decrease"
)

const (
	ReasonRestock       = "restock"
	ReasonSpoilage      = "spoilage"
	ReasonTheft         = "theft"
	ReasonCountingError = "counting_error"
	ReasonDamage        = "damage"
	ReasonOther         = "other"
)

// ValidReason reports whether reason is part of the adjustment taxonomy.
func ValidReason(reason string) bool {
	switch reason {
	case ReasonRestock, ReasonSpoilage, ReasonTheft, ReasonCountingError, ReasonDamage, ReasonOther:
		return true
	}
	return false
}

const (
	ExpenseFixed    = "fixed"
	ExpenseVariable = "variable"
)

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
)

const (
	UnitPiece = "piece"
	UnitKg    = "kg"
	UnitGram  = "g"
	UnitBunch = "bunch"
	UnitTray  = "tray"
	UnitLitre = "litre"
	UnitMl    = "ml"
)

// ValidUnit reports whether unit is a supported unit type.
func ValidUnit(unit string) bool {
	switch unit {
	case UnitPiece, UnitKg, UnitGram, UnitBunch, UnitTray, UnitLitre, UnitMl:
		return true
	}
	return false
}

const (
	TrendNew       = "new"
	TrendStable    = "stable"
	TrendGrowing   = "growing"
	TrendShrinking = "shrinking"
)

const (
	MovementReceipt     = "receipt"
	MovementConsumption = "consumption"
)

const (
	BatchSourcePurchase   = "purchase"
	BatchSourceAdjustment = "adjustment"
)
