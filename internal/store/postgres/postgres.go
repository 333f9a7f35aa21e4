package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"warunglaba/backend/internal/domain"
	"warunglaba/backend/internal/store"
	"warunglaba/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates the tables on first boot. Timestamps are unix seconds
// stored as BIGINT so reads never pass through a timezone conversion.
func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			unit TEXT NOT NULL,
			current_stock NUMERIC NOT NULL DEFAULT 0,
			current_sell_price NUMERIC NOT NULL DEFAULT 0,
			min_stock_level NUMERIC NOT NULL DEFAULT 0,
			parent_item_id TEXT NOT NULL DEFAULT '',
			variant_name TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_batches (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL REFERENCES items(id),
			initial_quantity NUMERIC NOT NULL,
			quantity_remaining NUMERIC NOT NULL,
			buy_price_per_unit NUMERIC NOT NULL,
			source_type TEXT NOT NULL,
			source_ref TEXT NOT NULL DEFAULT '',
			received_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_item_fifo
			ON inventory_batches (item_id, received_at, id)`,
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			batch_id TEXT NOT NULL,
			type TEXT NOT NULL,
			quantity NUMERIC NOT NULL,
			unit_cost NUMERIC NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_item_time
			ON stock_movements (item_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS stock_adjustments (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			system_stock NUMERIC NOT NULL,
			actual_stock NUMERIC NOT NULL,
			difference NUMERIC NOT NULL,
			reason TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			adjusted_by TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS selling_prices (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			price NUMERIC NOT NULL,
			effective_from BIGINT NOT NULL,
			set_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			frequency TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			start_date BIGINT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			quantity NUMERIC NOT NULL,
			unit_price NUMERIC NOT NULL,
			total NUMERIC NOT NULL,
			cost_of_goods NUMERIC NOT NULL,
			consumptions JSONB NOT NULL DEFAULT '[]',
			sold_by TEXT NOT NULL DEFAULT '',
			sold_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_store_time
			ON sales (store_id, sold_at)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			actor_username TEXT NOT NULL,
			actor_role TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at BIGINT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap: %w", err)
		}
	}
	return nil
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || item.Category == "" {
		return nil, store.ErrInvalidInput
	}

	if item.ParentItemID != "" {
		var parentCategory, parentOfParent string
		err := s.db.QueryRowContext(ctx, `
			SELECT category, parent_item_id
			FROM items
			WHERE id = $1 AND active = true
		`, item.ParentItemID).Scan(&parentCategory, &parentOfParent)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: parent item %s", store.ErrNotFound, item.ParentItemID)
			}
			return nil, err
		}
		if parentOfParent != "" {
			return nil, fmt.Errorf("%w: parent %s is a variant", store.ErrInvalidInput, item.ParentItemID)
		}
		if item.VariantName == "" {
			return nil, store.ErrInvalidInput
		}
		item.Category = parentCategory
	}

	item.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, store_id, name, category, unit, current_stock, current_sell_price,
			min_stock_level, parent_item_id, variant_name, active, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, item.ID, item.StoreID, item.Name, item.Category, item.Unit, item.CurrentStock,
		item.CurrentSellPrice, item.MinStockLevel, item.ParentItemID, item.VariantName,
		item.Active, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := item
	return &created, nil
}

const itemColumns = `id, store_id, name, category, unit, current_stock, current_sell_price,
	min_stock_level, parent_item_id, variant_name, active, created_at`

func scanItem(row interface{ Scan(...any) error }) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.StoreID, &item.Name, &item.Category, &item.Unit,
		&item.CurrentStock, &item.CurrentSellPrice, &item.MinStockLevel,
		&item.ParentItemID, &item.VariantName, &item.Active, &item.CreatedAt)
	return item, err
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context, storeID string) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE active = true AND ($1 = '' OR store_id = $1)
		ORDER BY category, name, id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) hasVariants(ctx context.Context, q queryer, itemID string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE parent_item_id = $1 AND active = true)
	`, itemID).Scan(&exists)
	return exists, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ── Batch ledger ─────────────────────────────────────────────────────────────

func (s *Store) ReceiveBatch(ctx context.Context, input domain.BatchInput) (*domain.InventoryBatch, error) {
	if !input.Quantity.IsPositive() || input.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must be positive and unit cost non-negative", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	batch, err := s.receiveBatchTx(ctx, tx, input)
	if err != nil {
		return nil, err
	}
	if err := s.refreshItemStockTx(ctx, tx, input.ItemID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Store) receiveBatchTx(ctx context.Context, tx *sql.Tx, input domain.BatchInput) (*domain.InventoryBatch, error) {
	var active bool
	err := tx.QueryRowContext(ctx, `
		SELECT active FROM items WHERE id = $1 FOR UPDATE
	`, input.ItemID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !active {
		return nil, store.ErrNotFound
	}
	isParent, err := s.hasVariants(ctx, tx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if isParent {
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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_batches (
			id, item_id, initial_quantity, quantity_remaining, buy_price_per_unit,
			source_type, source_ref, received_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, batch.ID, batch.ItemID, batch.InitialQuantity, batch.QuantityRemaining,
		batch.BuyPricePerUnit, batch.SourceType, batch.SourceRef, batch.ReceivedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, item_id, batch_id, type, quantity, unit_cost, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, xid.New("mov"), batch.ItemID, batch.ID, domain.MovementReceipt,
		batch.InitialQuantity, batch.BuyPricePerUnit, receivedAt)
	if err != nil {
		return nil, err
	}

	created := batch
	return &created, nil
}

// consumeTx takes quantity from the item's batches oldest-first, under row
// locks. All-or-nothing: a shortfall aborts before any batch is touched.
func (s *Store) consumeTx(ctx context.Context, tx *sql.Tx, itemID string, quantity decimal.Decimal, at int64) ([]domain.BatchConsumption, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, quantity_remaining, buy_price_per_unit
		FROM inventory_batches
		WHERE item_id = $1 AND quantity_remaining > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE
	`, itemID)
	if err != nil {
		return nil, err
	}
	type batchRow struct {
		id        string
		remaining decimal.Decimal
		cost      decimal.Decimal
	}
	batches := make([]batchRow, 0, 8)
	available := decimal.Zero
	for rows.Next() {
		var b batchRow
		if err := rows.Scan(&b.id, &b.remaining, &b.cost); err != nil {
			_ = rows.Close()
			return nil, err
		}
		available = available.Add(b.remaining)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if available.LessThan(quantity) {
		return nil, store.ErrInsufficientStock
	}

	remaining := quantity
	taken := make([]domain.BatchConsumption, 0, 2)
	for _, b := range batches {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(b.remaining, remaining)
		_, err := tx.ExecContext(ctx, `
			UPDATE inventory_batches
			SET quantity_remaining = quantity_remaining - $1
			WHERE id = $2
		`, take, b.id)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, item_id, batch_id, type, quantity, unit_cost, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("mov"), itemID, b.id, domain.MovementConsumption, take.Neg(), b.cost, at)
		if err != nil {
			return nil, err
		}
		remaining = remaining.Sub(take)
		taken = append(taken, domain.BatchConsumption{BatchID: b.id, Quantity: take, UnitCost: b.cost})
	}
	return taken, nil
}

func (s *Store) refreshItemStockTx(ctx context.Context, tx *sql.Tx, itemID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE items
		SET current_stock = (
			SELECT COALESCE(SUM(quantity_remaining), 0)
			FROM inventory_batches
			WHERE item_id = $1
		)
		WHERE id = $1
	`, itemID)
	return err
}

func (s *Store) ConsumeBatches(ctx context.Context, itemID string, quantity decimal.Decimal) ([]domain.BatchConsumption, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)
	`, itemID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	taken, err := s.consumeTx(ctx, tx, itemID, quantity, time.Now().UTC().Unix())
	if err != nil {
		return nil, err
	}
	if err := s.refreshItemStockTx(ctx, tx, itemID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return taken, nil
}

func (s *Store) CostOfGoods(ctx context.Context, itemID string, quantity decimal.Decimal) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)
	`, itemID).Scan(&exists); err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT quantity_remaining, buy_price_per_unit
		FROM inventory_batches
		WHERE item_id = $1 AND quantity_remaining > 0
		ORDER BY received_at ASC, id ASC
	`, itemID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	remaining := quantity
	cost := decimal.Zero
	for rows.Next() {
		var batchRemaining, batchCost decimal.Decimal
		if err := rows.Scan(&batchRemaining, &batchCost); err != nil {
			return decimal.Zero, err
		}
		if remaining.IsZero() {
			continue
		}
		take := decimal.Min(batchRemaining, remaining)
		cost = cost.Add(take.Mul(batchCost))
		remaining = remaining.Sub(take)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}
	if !remaining.IsZero() {
		return decimal.Zero, store.ErrInsufficientStock
	}
	return cost, nil
}

func (s *Store) ValuedStock(ctx context.Context, itemID string) (domain.StockPosition, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)
	`, itemID).Scan(&exists); err != nil {
		return domain.StockPosition{}, err
	}
	if !exists {
		return domain.StockPosition{}, store.ErrNotFound
	}

	var position domain.StockPosition
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(quantity_remaining), 0),
			COALESCE(SUM(quantity_remaining * buy_price_per_unit), 0)
		FROM inventory_batches
		WHERE item_id = $1 AND quantity_remaining > 0
	`, itemID).Scan(&position.Quantity, &position.Value)
	if err != nil {
		return domain.StockPosition{}, err
	}
	return position, nil
}

func (s *Store) StockPositionAt(ctx context.Context, itemID string, at int64) (domain.StockPosition, error) {
	position, err := s.ValuedStock(ctx, itemID)
	if err != nil {
		return domain.StockPosition{}, err
	}

	var laterQty, laterValue decimal.Decimal
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(quantity), 0),
			COALESCE(SUM(quantity * unit_cost), 0)
		FROM stock_movements
		WHERE item_id = $1 AND created_at > $2
	`, itemID, at).Scan(&laterQty, &laterValue)
	if err != nil {
		return domain.StockPosition{}, err
	}

	position.Quantity = position.Quantity.Sub(laterQty)
	position.Value = position.Value.Sub(laterValue)
	return position, nil
}

func (s *Store) ListBatches(ctx context.Context, itemID string, includeExhausted bool) ([]domain.InventoryBatch, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)
	`, itemID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	query := `
		SELECT id, item_id, initial_quantity, quantity_remaining, buy_price_per_unit,
			source_type, source_ref, received_at
		FROM inventory_batches
		WHERE item_id = $1
	`
	if !includeExhausted {
		query += ` AND quantity_remaining > 0`
	}
	query += ` ORDER BY received_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.InventoryBatch, 0, 16)
	for rows.Next() {
		var b domain.InventoryBatch
		if err := rows.Scan(&b.ID, &b.ItemID, &b.InitialQuantity, &b.QuantityRemaining,
			&b.BuyPricePerUnit, &b.SourceType, &b.SourceRef, &b.ReceivedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

// ── Adjustments ──────────────────────────────────────────────────────────────

func (s *Store) ApplyAdjustment(ctx context.Context, input domain.AdjustmentInput) (*domain.StockAdjustment, *domain.Item, error) {
	if !input.Quantity.IsPositive() {
		return nil, nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT active FROM items WHERE id = $1 FOR UPDATE
	`, input.ItemID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if !active {
		return nil, nil, store.ErrNotFound
	}
	isParent, err := s.hasVariants(ctx, tx, input.ItemID)
	if err != nil {
		return nil, nil, err
	}
	if isParent {
		return nil, nil, fmt.Errorf("%w: parent items hold no stock", store.ErrInvalidInput)
	}

	at := input.At
	if at == 0 {
		at = time.Now().UTC().Unix()
	}

	var systemStock decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM inventory_batches
		WHERE item_id = $1 AND quantity_remaining > 0
	`, input.ItemID).Scan(&systemStock)
	if err != nil {
		return nil, nil, err
	}

	notes := input.Notes
	adjustmentID := xid.New("adj")

	switch input.Type {
	case domain.AdjustDecrease:
		if input.Quantity.GreaterThan(systemStock) {
			return nil, nil, store.ErrExceedsStock
		}
		if _, err := s.consumeTx(ctx, tx, input.ItemID, input.Quantity, at); err != nil {
			return nil, nil, err
		}
	case domain.AdjustIncrease:
		unitCost := decimal.Zero
		if input.UnitCost != nil {
			unitCost = *input.UnitCost
		} else {
			var latestCost decimal.Decimal
			err := tx.QueryRowContext(ctx, `
				SELECT buy_price_per_unit
				FROM inventory_batches
				WHERE item_id = $1
				ORDER BY received_at DESC, id DESC
				LIMIT 1
			`, input.ItemID).Scan(&latestCost)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, nil, err
			}
			unitCost = latestCost
			notes = appendNote(notes, fmt.Sprintf("[unit cost %s from latest batch]", unitCost.String()))
		}
		batch := domain.InventoryBatch{
			ID:                xid.New("batch"),
			ItemID:            input.ItemID,
			InitialQuantity:   input.Quantity,
			QuantityRemaining: input.Quantity,
			BuyPricePerUnit:   unitCost,
			SourceType:        domain.BatchSourceAdjustment,
			SourceRef:         adjustmentID,
			ReceivedAt:        at,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_batches (
				id, item_id, initial_quantity, quantity_remaining, buy_price_per_unit,
				source_type, source_ref, received_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, batch.ID, batch.ItemID, batch.InitialQuantity, batch.QuantityRemaining,
			batch.BuyPricePerUnit, batch.SourceType, batch.SourceRef, batch.ReceivedAt)
		if err != nil {
			return nil, nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_movements (id, item_id, batch_id, type, quantity, unit_cost, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, xid.New("mov"), batch.ItemID, batch.ID, domain.MovementReceipt,
			batch.InitialQuantity, batch.BuyPricePerUnit, at)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("%w: unknown adjustment type %q", store.ErrInvalidInput, input.Type)
	}

	var actualStock decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM inventory_batches
		WHERE item_id = $1 AND quantity_remaining > 0
	`, input.ItemID).Scan(&actualStock)
	if err != nil {
		return nil, nil, err
	}

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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_adjustments (
			id, item_id, system_stock, actual_stock, difference, reason, notes, adjusted_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, adjustment.ID, adjustment.ItemID, adjustment.SystemStock, adjustment.ActualStock,
		adjustment.Difference, adjustment.Reason, adjustment.Notes, adjustment.AdjustedBy, adjustment.CreatedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := s.refreshItemStockTx(ctx, tx, input.ItemID); err != nil {
		return nil, nil, err
	}

	item, err := scanItem(tx.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1
	`, input.ItemID))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	created := adjustment
	return &created, &item, nil
}

func (s *Store) ListAdjustments(ctx context.Context, itemID string, limit int) ([]domain.StockAdjustment, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, system_stock, actual_stock, difference, reason, notes, adjusted_by, created_at
		FROM stock_adjustments
		WHERE item_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.StockAdjustment, 0, limit)
	for rows.Next() {
		var adj domain.StockAdjustment
		if err := rows.Scan(&adj.ID, &adj.ItemID, &adj.SystemStock, &adj.ActualStock,
			&adj.Difference, &adj.Reason, &adj.Notes, &adj.AdjustedBy, &adj.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

// ── Sales ────────────────────────────────────────────────────────────────────

func (s *Store) RecordSale(ctx context.Context, input domain.SaleInput) (*domain.Sale, error) {
	if !input.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var item domain.Item
	item, err = scanItem(tx.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1
		FOR UPDATE
	`, input.ItemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !item.Active {
		return nil, store.ErrNotFound
	}
	isParent, err := s.hasVariants(ctx, tx, input.ItemID)
	if err != nil {
		return nil, err
	}
	if isParent {
		return nil, fmt.Errorf("%w: parent items are not sellable", store.ErrInvalidInput)
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

	taken, err := s.consumeTx(ctx, tx, input.ItemID, input.Quantity, at)
	if err != nil {
		return nil, err
	}
	cogs := decimal.Zero
	for _, t := range taken {
		cogs = cogs.Add(t.Quantity.Mul(t.UnitCost))
	}

	consumptionsJSON, err := json.Marshal(taken)
	if err != nil {
		return nil, err
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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, store_id, item_id, quantity, unit_price, total, cost_of_goods,
			consumptions, sold_by, sold_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.StoreID, sale.ItemID, sale.Quantity, sale.UnitPrice, sale.Total,
		sale.CostOfGoods, consumptionsJSON, sale.SoldBy, sale.SoldAt)
	if err != nil {
		return nil, err
	}

	if err := s.refreshItemStockTx(ctx, tx, input.ItemID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) SalesTotals(ctx context.Context, storeID string, from int64, to int64) ([]domain.ItemSales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.item_id,
			COALESCE(p.name || ' - ' || i.variant_name, i.name),
			COALESCE(SUM(s.quantity), 0),
			COALESCE(SUM(s.total), 0),
			COALESCE(SUM(s.cost_of_goods), 0)
		FROM sales s
		JOIN items i ON i.id = s.item_id
		LEFT JOIN items p ON p.id = NULLIF(i.parent_item_id, '')
		WHERE s.sold_at >= $2 AND s.sold_at <= $3
			AND ($1 = '' OR s.store_id = $1)
		GROUP BY s.item_id, i.name, i.variant_name, p.name
		ORDER BY s.item_id
	`, storeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]domain.ItemSales, 0, 32)
	for rows.Next() {
		var agg domain.ItemSales
		if err := rows.Scan(&agg.ItemID, &agg.ItemName, &agg.QuantitySold, &agg.TotalSales, &agg.TotalCost); err != nil {
			return nil, err
		}
		totals = append(totals, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

// ── Selling prices ───────────────────────────────────────────────────────────

func (s *Store) AppendSellingPrice(ctx context.Context, price domain.SellingPrice) (*domain.SellingPrice, error) {
	if price.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must be non-negative", store.ErrInvalidInput)
	}
	if price.ID == "" {
		price.ID = xid.New("price")
	}
	if price.EffectiveFrom == 0 {
		price.EffectiveFrom = time.Now().UTC().Unix()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT active FROM items WHERE id = $1 FOR UPDATE
	`, price.ItemID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !active {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO selling_prices (id, item_id, price, effective_from, set_by)
		VALUES ($1,$2,$3,$4,$5)
	`, price.ID, price.ItemID, price.Price, price.EffectiveFrom, price.SetBy)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE items
		SET current_sell_price = (
			SELECT price
			FROM selling_prices
			WHERE item_id = $1
			ORDER BY effective_from DESC, id DESC
			LIMIT 1
		)
		WHERE id = $1
	`, price.ItemID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := price
	return &created, nil
}

func (s *Store) ListSellingPrices(ctx context.Context, itemID string, limit int) ([]domain.SellingPrice, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, price, effective_from, set_by
		FROM selling_prices
		WHERE item_id = $1
		ORDER BY effective_from DESC, id DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.SellingPrice, 0, limit)
	for rows.Next() {
		var p domain.SellingPrice
		if err := rows.Scan(&p.ID, &p.ItemID, &p.Price, &p.EffectiveFrom, &p.SetBy); err != nil {
			return nil, err
		}
		history = append(history, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

// ── Expenses ─────────────────────────────────────────────────────────────────

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" || expense.Name == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, store_id, name, category, frequency, amount, start_date, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, expense.ID, expense.StoreID, expense.Name, expense.Category, expense.Frequency,
		expense.Amount, expense.StartDate, expense.Active, expense.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, storeID string, activeOnly bool) ([]domain.Expense, error) {
	query := `
		SELECT id, store_id, name, category, frequency, amount, start_date, active, created_at
		FROM expenses
		WHERE ($1 = '' OR store_id = $1)
	`
	if activeOnly {
		query += ` AND active = true`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.StoreID, &e.Name, &e.Category, &e.Frequency,
			&e.Amount, &e.StartDate, &e.Active, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) DeactivateExpense(ctx context.Context, expenseID string) (*domain.Expense, error) {
	var e domain.Expense
	err := s.db.QueryRowContext(ctx, `
		UPDATE expenses
		SET active = false
		WHERE id = $1
		RETURNING id, store_id, name, category, frequency, amount, start_date, active, created_at
	`, expenseID).Scan(&e.ID, &e.StoreID, &e.Name, &e.Category, &e.Frequency,
		&e.Amount, &e.StartDate, &e.Active, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ── Audit trail ──────────────────────────────────────────────────────────────

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().UTC().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from int64, to int64, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at <= $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// ── Auth accounts ────────────────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = time.Now().UTC().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func appendNote(notes string, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + " " + extra
}
