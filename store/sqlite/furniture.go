package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/resale-engine/commerce"
)

// =============================================================================
// FURNITURE (commerce.InventoryStore interface + management)
// =============================================================================

const furnitureColumns = `id, name, category, price, condition, quantity, is_for_sale, created_at, updated_at`

// CreateFurniture inserts an item and sets its ID and timestamps.
func (s queries) CreateFurniture(ctx context.Context, item *commerce.FurnitureItem) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO furniture (name, category, price, condition, quantity, is_for_sale, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.Category, item.Price.String(), item.Condition, item.Quantity,
		item.IsForSale, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert furniture: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = commerce.FurnitureID(id)
	item.CreatedAt, item.UpdatedAt = now, now
	return nil
}

// GetFurniture returns the item or commerce.ErrFurnitureNotFound.
func (s queries) GetFurniture(ctx context.Context, id commerce.FurnitureID) (*commerce.FurnitureItem, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+furnitureColumns+` FROM furniture WHERE id = ?`, id)
	item, err := scanFurniture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commerce.ErrFurnitureNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListFurniture returns items by name. forSaleOnly hides deactivated items.
func (s queries) ListFurniture(ctx context.Context, forSaleOnly bool) ([]commerce.FurnitureItem, error) {
	query := `SELECT ` + furnitureColumns + ` FROM furniture`
	if forSaleOnly {
		query += ` WHERE is_for_sale = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []commerce.FurnitureItem{}
	for rows.Next() {
		item, err := scanFurniture(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AdjustStock applies delta in one conditional update.
func (s queries) AdjustStock(ctx context.Context, id commerce.FurnitureID, delta int) (int, error) {
	var qty int
	err := s.q.QueryRowContext(ctx, `
		UPDATE furniture SET quantity = quantity + ?, updated_at = ?
		WHERE id = ? AND quantity + ? >= 0
		RETURNING quantity`,
		delta, formatTime(time.Now()), id, delta,
	).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}

	// No row matched: either the item is missing or the guard failed.
	var available int
	err = s.q.QueryRowContext(ctx, `SELECT quantity FROM furniture WHERE id = ?`, id).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, commerce.ErrFurnitureNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, &commerce.InsufficientStockError{FurnitureID: id, Available: available, Requested: -delta}
}

// RemoveFurniture hard-deletes an item that was never sold. An item referenced
// by any line item is deactivated instead so history stays intact.
func (s queries) RemoveFurniture(ctx context.Context, id commerce.FurnitureID) (deactivated bool, err error) {
	var refs int
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transaction_items WHERE furniture_id = ?`, id,
	).Scan(&refs); err != nil {
		return false, err
	}

	if refs > 0 {
		res, err := s.q.ExecContext(ctx,
			`UPDATE furniture SET is_for_sale = 0, updated_at = ? WHERE id = ?`,
			formatTime(time.Now()), id)
		if err != nil {
			return false, err
		}
		return true, requireRow(res, commerce.ErrFurnitureNotFound)
	}

	res, err := s.q.ExecContext(ctx, `DELETE FROM furniture WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	return false, requireRow(res, commerce.ErrFurnitureNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFurniture(row scanner) (commerce.FurnitureItem, error) {
	var (
		item                 commerce.FurnitureItem
		createdAt, updatedAt string
	)
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Price, &item.Condition,
		&item.Quantity, &item.IsForSale, &createdAt, &updatedAt)
	if err != nil {
		return item, err
	}
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return item, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
