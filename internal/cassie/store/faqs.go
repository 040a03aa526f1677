package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// FAQ is a row in the faqs table. Keywords is a comma-separated list of
// trigger terms for the matcher; empty means "match on the question text
// only".
type FAQ struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Keywords string `json:"keywords,omitempty"`
}

// UpsertFAQ inserts or updates the entry for question and returns its id.
// Questions are unique; upserting an existing one replaces its answer and
// keywords.
func (s *Store) UpsertFAQ(ctx context.Context, question, answer, keywords string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin faq transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM faqs WHERE question = ?`, question).Scan(&id)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE faqs SET answer = ?, keywords = NULLIF(?, '') WHERE id = ?`,
			answer, keywords, id); err != nil {
			return 0, fmt.Errorf("failed to update faq: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO faqs (question, answer, keywords) VALUES (?, ?, NULLIF(?, ''))`,
			question, answer, keywords)
		if err != nil {
			return 0, fmt.Errorf("failed to insert faq: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read faq id: %w", err)
		}
	default:
		return 0, fmt.Errorf("failed to look up faq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit faq transaction: %w", err)
	}
	return id, nil
}

// ListFAQs returns all FAQ entries in insertion order.
func (s *Store) ListFAQs(ctx context.Context) ([]*FAQ, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, COALESCE(keywords, '')
		FROM faqs
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list faqs: %w", err)
	}
	defer rows.Close()

	var faqs []*FAQ
	for rows.Next() {
		f := &FAQ{}
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, &f.Keywords); err != nil {
			return nil, fmt.Errorf("failed to scan faq: %w", err)
		}
		faqs = append(faqs, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating faqs: %w", err)
	}
	return faqs, nil
}
