package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Order is a row in the orders table. Status values follow the order
// lifecycle vocabulary (ORDER_PLACED .. CANCELLED).
type Order struct {
	OrderID         string `json:"order_id"`
	Status          string `json:"status"`
	ShippingAddress string `json:"shipping_address,omitempty"`
	CreatedUTC      string `json:"created_utc"`
}

// GetOrderStatus returns the lifecycle status of an order. Unknown orders
// report found == false with no error; eligibility checks treat them as
// unrestricted.
func (s *Store) GetOrderStatus(ctx context.Context, orderID string) (string, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE order_id = ?`, orderID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get order status: %w", err)
	}
	return status, true, nil
}

// UpsertOrder inserts or replaces an order row. Used by seeding and demos.
func (s *Store) UpsertOrder(ctx context.Context, orderID, status, shippingAddress string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, status, shipping_address)
		VALUES (?, ?, NULLIF(?, ''))
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			shipping_address = excluded.shipping_address
	`, orderID, status, shippingAddress)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

// ListOrders returns all orders, oldest first.
func (s *Store) ListOrders(ctx context.Context) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, status, COALESCE(shipping_address, ''), created_utc
		FROM orders
		ORDER BY created_utc, order_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o := &Order{}
		if err := rows.Scan(&o.OrderID, &o.Status, &o.ShippingAddress, &o.CreatedUTC); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}
