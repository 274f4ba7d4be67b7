package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/resale-engine/commerce"
)

// =============================================================================
// CUSTOMERS (commerce.CustomerStore interface + management)
// =============================================================================

// ErrDuplicateEmail is returned when a customer email is already registered.
var ErrDuplicateEmail = errors.New("customer email already exists")

// CreateCustomer inserts a customer and sets its ID.
func (s queries) CreateCustomer(ctx context.Context, c *commerce.Customer) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO customers (name, email, created_at) VALUES (?, ?, ?)`,
		c.Name, strings.TrimSpace(c.Email), formatTime(now))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = commerce.CustomerID(id)
	c.CreatedAt = now
	return nil
}

func (s queries) GetCustomer(ctx context.Context, id commerce.CustomerID) (*commerce.Customer, error) {
	return s.getCustomer(ctx, `SELECT id, name, email, created_at FROM customers WHERE id = ?`, id)
}

// GetCustomerByEmail matches case-insensitively.
func (s queries) GetCustomerByEmail(ctx context.Context, email string) (*commerce.Customer, error) {
	return s.getCustomer(ctx, `SELECT id, name, email, created_at FROM customers WHERE email = ?`,
		strings.TrimSpace(email))
}

func (s queries) getCustomer(ctx context.Context, query string, arg any) (*commerce.Customer, error) {
	var (
		c         commerce.Customer
		createdAt string
	)
	err := s.q.QueryRowContext(ctx, query, arg).Scan(&c.ID, &c.Name, &c.Email, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, commerce.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func (s queries) ListCustomers(ctx context.Context) ([]commerce.Customer, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, name, email, created_at FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []commerce.Customer{}
	for rows.Next() {
		var (
			c         commerce.Customer
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		customers = append(customers, c)
	}
	return customers, rows.Err()
}
