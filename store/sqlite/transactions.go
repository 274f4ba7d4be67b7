package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/resale-engine/commerce"
)

// =============================================================================
// TRANSACTIONS (commerce.TransactionStore interface)
// =============================================================================

const transactionColumns = `
	t.id, t.customer_id, t.created_at, t.updated_at, t.total_amount, t.payment_method,
	t.status, t.shipping_address, t.notes, t.idempotency_key, t.source,
	COALESCE(c.name, ''), COALESCE(c.email, '')`

const transactionFrom = `
	FROM transactions t
	LEFT JOIN customers c ON c.id = t.customer_id`

// InsertTransaction writes the header and sets tx.ID.
func (s queries) InsertTransaction(ctx context.Context, tx *commerce.Transaction) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions
		(customer_id, created_at, updated_at, total_amount, payment_method, status,
		 shipping_address, notes, idempotency_key, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.CustomerID,
		formatTime(tx.CreatedAt),
		formatTime(tx.UpdatedAt),
		tx.TotalAmount.String(),
		tx.PaymentMethod,
		tx.Status,
		tx.ShippingAddress,
		tx.Notes,
		nullString(tx.IdempotencyKey),
		tx.Source,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return commerce.ErrDuplicateIdempotencyKey
		}
		if isForeignKeyError(err) {
			return commerce.ErrCustomerNotFound
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tx.ID = commerce.TransactionID(id)
	return nil
}

// InsertLineItem writes one line item and sets item.ID.
func (s queries) InsertLineItem(ctx context.Context, item *commerce.LineItem) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO transaction_items (transaction_id, furniture_id, quantity, price_each)
		VALUES (?, ?, ?, ?)`,
		item.TransactionID, item.FurnitureID, item.Quantity, item.PriceEach.String(),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return commerce.ErrFurnitureNotFound
		}
		return fmt.Errorf("failed to insert line item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id
	return nil
}

func (s queries) UpdateTransactionHeader(ctx context.Context, tx *commerce.Transaction) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, total_amount = ?, payment_method = ?, shipping_address = ?,
			notes = ?, updated_at = ?
		WHERE id = ?`,
		tx.Status, tx.TotalAmount.String(), tx.PaymentMethod, tx.ShippingAddress,
		tx.Notes, formatTime(tx.UpdatedAt), tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return requireRow(res, commerce.ErrTransactionNotFound)
}

func (s queries) DeleteLineItems(ctx context.Context, id commerce.TransactionID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = ?`, id)
	return err
}

func (s queries) DeleteTransactionHeader(ctx context.Context, id commerce.TransactionID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return requireRow(res, commerce.ErrTransactionNotFound)
}

func (s queries) GetTransaction(ctx context.Context, id commerce.TransactionID) (*commerce.Transaction, error) {
	return s.getTransaction(ctx, `SELECT `+transactionColumns+transactionFrom+` WHERE t.id = ?`, id)
}

func (s queries) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*commerce.Transaction, error) {
	if key == "" {
		return nil, commerce.ErrTransactionNotFound
	}
	return s.getTransaction(ctx, `SELECT `+transactionColumns+transactionFrom+` WHERE t.idempotency_key = ?`, key)
}

func (s queries) getTransaction(ctx context.Context, query string, arg any) (*commerce.Transaction, error) {
	tx, err := scanTransaction(s.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commerce.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.lineItems(ctx, `t.id = ?`, tx.ID)
	if err != nil {
		return nil, err
	}
	tx.Items = items[tx.ID]
	return &tx, nil
}

func (s queries) ListTransactionsByCustomer(ctx context.Context, id commerce.CustomerID) ([]commerce.Transaction, error) {
	return s.queryTransactions(ctx, `t.customer_id = ?`, id)
}

func (s queries) ListTransactions(ctx context.Context) ([]commerce.Transaction, error) {
	return s.queryTransactions(ctx, ``)
}

// queryTransactions reads every header matching where (empty means all),
// then loads their line items in one query filtered by the same condition.
// The header cursor is closed before the second query runs.
func (s queries) queryTransactions(ctx context.Context, where string, args ...any) ([]commerce.Transaction, error) {
	query := `SELECT ` + transactionColumns + transactionFrom
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY t.created_at DESC, t.id DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var txs []commerce.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		txs = append(txs, tx)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return txs, nil
	}

	items, err := s.lineItems(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Items = items[txs[i].ID]
	}
	return txs, nil
}

// lineItems loads the items of every transaction matching where, grouped by
// transaction. The condition is applied through a subquery so the number of
// bound variables does not grow with the number of transactions.
func (s queries) lineItems(ctx context.Context, where string, args ...any) (map[commerce.TransactionID][]commerce.LineItem, error) {
	query := `
		SELECT ti.id, ti.transaction_id, ti.furniture_id, ti.quantity, ti.price_each, COALESCE(f.name, '')
		FROM transaction_items ti
		LEFT JOIN furniture f ON f.id = ti.furniture_id`
	if where != "" {
		query += `
		WHERE ti.transaction_id IN (SELECT t.id FROM transactions t WHERE ` + where + `)`
	}
	query += ` ORDER BY ti.id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[commerce.TransactionID][]commerce.LineItem)
	for rows.Next() {
		var li commerce.LineItem
		if err := rows.Scan(&li.ID, &li.TransactionID, &li.FurnitureID, &li.Quantity,
			&li.PriceEach, &li.FurnitureName); err != nil {
			return nil, err
		}
		out[li.TransactionID] = append(out[li.TransactionID], li)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (commerce.Transaction, error) {
	var (
		tx                   commerce.Transaction
		createdAt, updatedAt string
		key                  sql.NullString
	)
	err := row.Scan(
		&tx.ID, &tx.CustomerID, &createdAt, &updatedAt, &tx.TotalAmount, &tx.PaymentMethod,
		&tx.Status, &tx.ShippingAddress, &tx.Notes, &key, &tx.Source,
		&tx.CustomerName, &tx.CustomerEmail,
	)
	if err != nil {
		return tx, err
	}
	tx.CreatedAt = parseTime(createdAt)
	tx.UpdatedAt = parseTime(updatedAt)
	tx.IdempotencyKey = key.String
	return tx, nil
}
