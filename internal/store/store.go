package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrExceedsStock      = errors.New("adjustment exceeds current stock")
)

// Repository is the persistence boundary. Mutating ledger operations
// (ReceiveBatch, ConsumeBatches, ApplyAdjustment, RecordSale) are atomic and
// serialized per item: the postgres implementation runs them in one
// transaction with row locks, the in-memory implementation under one mutex
// hold. Each of them finishes by recomputing the item's cached current_stock
// from the ledger; the cache is never the source of truth.
type Repository interface {
	// Catalog.
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListItems(ctx context.Context, storeID string) ([]domain.Item, error)

	// Batch ledger.
	ReceiveBatch(ctx context.Context, input domain.BatchInput) (*domain.InventoryBatch, error)
	ConsumeBatches(ctx context.Context, itemID string, quantity decimal.Decimal) ([]domain.BatchConsumption, error)
	CostOfGoods(ctx context.Context, itemID string, quantity decimal.Decimal) (decimal.Decimal, error)
	ValuedStock(ctx context.Context, itemID string) (domain.StockPosition, error)
	StockPositionAt(ctx context.Context, itemID string, at int64) (domain.StockPosition, error)
	ListBatches(ctx context.Context, itemID string, includeExhausted bool) ([]domain.InventoryBatch, error)

	// Adjustments.
	ApplyAdjustment(ctx context.Context, input domain.AdjustmentInput) (*domain.StockAdjustment, *domain.Item, error)
	ListAdjustments(ctx context.Context, itemID string, limit int) ([]domain.StockAdjustment, error)

	// Sales.
	RecordSale(ctx context.Context, input domain.SaleInput) (*domain.Sale, error)
	SalesTotals(ctx context.Context, storeID string, from int64, to int64) ([]domain.ItemSales, error)

	// Selling prices.
	AppendSellingPrice(ctx context.Context, price domain.SellingPrice) (*domain.SellingPrice, error)
	ListSellingPrices(ctx context.Context, itemID string, limit int) ([]domain.SellingPrice, error)

	// Expenses.
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, storeID string, activeOnly bool) ([]domain.Expense, error)
	DeactivateExpense(ctx context.Context, expenseID string) (*domain.Expense, error)

	// Audit trail.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from int64, to int64, limit int) ([]domain.AuditLog, error)

	// Auth accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
