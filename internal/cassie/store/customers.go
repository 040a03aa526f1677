package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Customer is a row in the customers table. Email is empty for anonymous
// chat customers.
type Customer struct {
	ID    int64  `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// GetOrCreateCustomer returns the id of the customer with the given email,
// inserting the row when absent. An empty email always creates a fresh
// anonymous customer.
func (s *Store) GetOrCreateCustomer(ctx context.Context, email, name string) (int64, error) {
	if email == "" {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO customers (email, name) VALUES (NULL, NULLIF(?, ''))`, name)
		if err != nil {
			return 0, fmt.Errorf("failed to create customer: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read customer id: %w", err)
		}
		return id, nil
	}

	// INSERT OR IGNORE keeps this race-free against the unique email index;
	// the follow-up SELECT resolves to the surviving row either way.
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO customers (email, name) VALUES (?, NULLIF(?, ''))`, email, name); err != nil {
		return 0, fmt.Errorf("failed to create customer: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM customers WHERE email = ?`, email).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up customer: %w", err)
	}
	return id, nil
}

// GetCustomer retrieves a customer by id.
func (s *Store) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	c := &Customer{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(name, '')
		FROM customers
		WHERE id = ?
	`, id).Scan(&c.ID, &c.Email, &c.Name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}
