package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalises product and section names for storage and fuzzy lookup:
// lowercase, runs of non-alphanumerics collapsed to single underscores.
func Slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

// Manual is a row in the manuals table. Product and Section are stored in
// slug form.
type Manual struct {
	ID         int64  `json:"id"`
	Product    string `json:"product"`
	Section    string `json:"section"`
	Markdown   string `json:"markdown"`
	FactsJSON  string `json:"facts_json,omitempty"`
	UpdatedUTC string `json:"updated_utc"`
}

// UpsertManual stores markdown under the (product, section) slug pair and
// returns the row id. factsJSON may be empty.
func (s *Store) UpsertManual(ctx context.Context, product, section, markdown, factsJSON string) (int64, error) {
	p := Slug(product)
	sec := Slug(section)
	if factsJSON == "" {
		factsJSON = "{}"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin manual transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM manuals WHERE product = ? AND section = ?`, p, sec).Scan(&id)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE manuals
			SET markdown = ?, facts_json = ?, updated_utc = datetime('now')
			WHERE id = ?
		`, markdown, factsJSON, id); err != nil {
			return 0, fmt.Errorf("failed to update manual: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO manuals (product, section, markdown, facts_json)
			VALUES (?, ?, ?, ?)
		`, p, sec, markdown, factsJSON)
		if err != nil {
			return 0, fmt.Errorf("failed to insert manual: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read manual id: %w", err)
		}
	default:
		return 0, fmt.Errorf("failed to look up manual: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit manual transaction: %w", err)
	}
	return id, nil
}

// GetManual fetches the markdown stored for the exact (product, section)
// slug pair.
func (s *Store) GetManual(ctx context.Context, product, section string) (string, bool, error) {
	var md string
	err := s.db.QueryRowContext(ctx,
		`SELECT markdown FROM manuals WHERE product = ? AND section = ?`,
		Slug(product), Slug(section)).Scan(&md)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get manual: %w", err)
	}
	return md, true, nil
}

// GetManualFuzzy resolves free-form product text to a stored manual: exact
// slug first, then a LIKE over all slug tokens in order, then first and
// last token only. Handles queries like "tech specs for Wireless Router
// AX1800" against a manual stored as wireless_router_ax1800.
func (s *Store) GetManualFuzzy(ctx context.Context, productText, section string) (string, bool, error) {
	p := Slug(productText)
	sec := Slug(section)
	tokens := strings.FieldsFunc(p, func(r rune) bool { return r == '_' })
	if len(tokens) == 0 {
		return "", false, nil
	}

	var md string
	err := s.db.QueryRowContext(ctx,
		`SELECT markdown FROM manuals WHERE product = ? AND section = ?`, p, sec).Scan(&md)
	if err == nil {
		return md, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("failed to get manual: %w", err)
	}

	like := "%" + strings.Join(tokens, "%") + "%"
	err = s.db.QueryRowContext(ctx, `
		SELECT markdown FROM manuals
		WHERE section = ? AND product LIKE ? COLLATE NOCASE
		ORDER BY id
		LIMIT 1
	`, sec, like).Scan(&md)
	if err == nil {
		return md, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("failed to search manuals: %w", err)
	}

	if len(tokens) >= 2 {
		like = "%" + tokens[0] + "%" + tokens[len(tokens)-1] + "%"
		err = s.db.QueryRowContext(ctx, `
			SELECT markdown FROM manuals
			WHERE section = ? AND product LIKE ? COLLATE NOCASE
			ORDER BY id
			LIMIT 1
		`, sec, like).Scan(&md)
		if err == nil {
			return md, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("failed to search manuals: %w", err)
		}
	}

	return "", false, nil
}
