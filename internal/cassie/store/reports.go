package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
)

// ReportRange is the half-open UTC window a report covers, in TimeLayout
// form.
type ReportRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Breakdown rows. Each mirrors one GROUP BY shape the report queries
// produce.
type (
	StatusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	IssueCount struct {
		IssueType string `json:"issue_type"`
		Count     int64  `json:"count"`
	}
	DayCount struct {
		Day   string `json:"day"`
		Count int64  `json:"count"`
	}
	BucketCount struct {
		Bucket string `json:"bucket"`
		Count  int64  `json:"count"`
	}
	PriorityCount struct {
		Priority string `json:"priority"`
		Count    int64  `json:"count"`
	}
	ChannelCount struct {
		Channel string `json:"channel"`
		Count   int64  `json:"count"`
	}
	OldestOpenTicket struct {
		ID         int64  `json:"id"`
		OrderID    string `json:"order_id,omitempty"`
		CreatedUTC string `json:"created_utc"`
	}
)

// ReportSummary aggregates ticket activity inside a window.
type ReportSummary struct {
	Range              ReportRange   `json:"range"`
	Total              int64         `json:"total"`
	ByStatus           []StatusCount `json:"by_status"`
	ByIssueType        []IssueCount  `json:"by_issue_type"`
	CreatedPerDay      []DayCount    `json:"created_per_day"`
	AvgResolutionHours *float64      `json:"avg_resolution_hours"`
	OpenAging          []BucketCount `json:"open_aging"`
}

// ReportSummary builds the standard summary for tickets created between
// fromUTC and toUTC (inclusive, TimeLayout strings).
func (s *Store) ReportSummary(ctx context.Context, fromUTC, toUTC string) (*ReportSummary, error) {
	out := &ReportSummary{Range: ReportRange{From: fromUTC, To: toUTC}}
	args := []any{fromUTC, toUTC}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE created_utc >= ? AND created_utc <= ?`,
		args...).Scan(&out.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(status, 'open') AS status, COUNT(*) AS count
		FROM tickets WHERE created_utc >= ? AND created_utc <= ?
		GROUP BY COALESCE(status, 'open')
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}
	if out.ByStatus, err = collectStatusCounts(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT COALESCE(issue_type, 'OTHER') AS issue_type, COUNT(*) AS count
		FROM tickets WHERE created_utc >= ? AND created_utc <= ?
		GROUP BY COALESCE(issue_type, 'OTHER')
		ORDER BY count DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by issue type: %w", err)
	}
	if out.ByIssueType, err = collectIssueCounts(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT substr(created_utc, 1, 10) AS day, COUNT(*) AS count
		FROM tickets WHERE created_utc >= ? AND created_utc <= ?
		GROUP BY day ORDER BY day
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by day: %w", err)
	}
	if out.CreatedPerDay, err = collectDayCounts(rows); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG((julianday(COALESCE(updated_utc, created_utc)) - julianday(created_utc)) * 24.0)
		FROM tickets
		WHERE status = 'closed' AND created_utc >= ? AND created_utc <= ?
		AND updated_utc IS NOT NULL
	`, args...).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to average resolution time: %w", err)
	}
	if avg.Valid {
		rounded := math.Round(avg.Float64*100) / 100
		out.AvgResolutionHours = &rounded
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT CASE
		  WHEN (julianday('now') - julianday(created_utc)) * 24 < 24 THEN '<24h'
		  WHEN (julianday('now') - julianday(created_utc)) * 24 < 72 THEN '1-3d'
		  WHEN (julianday('now') - julianday(created_utc)) * 24 < 168 THEN '3-7d'
		  ELSE '7d+' END AS bucket, COUNT(*) AS count
		FROM tickets
		WHERE COALESCE(status, 'open') != 'closed'
		AND created_utc >= ? AND created_utc <= ?
		GROUP BY bucket
		ORDER BY CASE bucket WHEN '<24h' THEN 1 WHEN '1-3d' THEN 2 WHEN '3-7d' THEN 3 ELSE 4 END
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to bucket open tickets: %w", err)
	}
	if out.OpenAging, err = collectBucketCounts(rows); err != nil {
		return nil, err
	}

	return out, nil
}

// ReportFilter narrows the filtered report queries. Zero values mean "no
// restriction".
type ReportFilter struct {
	Status        string
	Priority      string
	Channel       string
	CustomerEmail string
}

// whereFromFilter builds the shared WHERE clause for the filtered report
// queries.
func whereFromFilter(fromUTC, toUTC string, f ReportFilter) (string, []any) {
	clauses := []string{"created_utc >= ? AND created_utc <= ?"}
	args := []any{fromUTC, toUTC}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "COALESCE(priority, 'P2') = ?")
		args = append(args, f.Priority)
	}
	if f.Channel != "" {
		clauses = append(clauses, "COALESCE(source, 'chat') = ?")
		args = append(args, f.Channel)
	}
	if f.CustomerEmail != "" {
		clauses = append(clauses, "customer_id IN (SELECT id FROM customers WHERE email = ?)")
		args = append(args, f.CustomerEmail)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// FilteredTotals is the compact filtered report: a total plus status and
// issue breakdowns.
type FilteredTotals struct {
	Total       int64         `json:"total"`
	ByStatus    []StatusCount `json:"by_status"`
	ByIssueType []IssueCount  `json:"by_issue_type"`
}

// FilteredSummary counts tickets matching the filter inside the window.
func (s *Store) FilteredSummary(ctx context.Context, fromUTC, toUTC string, f ReportFilter) (*FilteredTotals, error) {
	where, args := whereFromFilter(fromUTC, toUTC, f)
	out := &FilteredTotals{}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`+where, args...).Scan(&out.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(status, 'open') AS status, COUNT(*) AS count FROM tickets`+where+` GROUP BY status`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}
	if out.ByStatus, err = collectStatusCounts(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT COALESCE(issue_type, 'OTHER') AS issue_type, COUNT(*) AS count FROM tickets`+where+` GROUP BY issue_type`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by issue type: %w", err)
	}
	if out.ByIssueType, err = collectIssueCounts(rows); err != nil {
		return nil, err
	}

	return out, nil
}

// StatusBreakdown groups matching tickets by status.
func (s *Store) StatusBreakdown(ctx context.Context, fromUTC, toUTC string, f ReportFilter) ([]StatusCount, error) {
	where, args := whereFromFilter(fromUTC, toUTC, f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(status, 'open') AS status, COUNT(*) AS count FROM tickets`+where+` GROUP BY status`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}
	return collectStatusCounts(rows)
}

// PriorityBreakdown groups matching tickets by priority, defaulting
// unprioritised rows to P2.
func (s *Store) PriorityBreakdown(ctx context.Context, fromUTC, toUTC string, f ReportFilter) ([]PriorityCount, error) {
	where, args := whereFromFilter(fromUTC, toUTC, f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(priority, 'P2') AS priority, COUNT(*) AS count FROM tickets`+where+` GROUP BY priority`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by priority: %w", err)
	}
	defer rows.Close()

	var out []PriorityCount
	for rows.Next() {
		var r PriorityCount
		if err := rows.Scan(&r.Priority, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan priority count: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChannelBreakdown groups matching tickets by intake channel, defaulting
// unsourced rows to chat.
func (s *Store) ChannelBreakdown(ctx context.Context, fromUTC, toUTC string, f ReportFilter) ([]ChannelCount, error) {
	where, args := whereFromFilter(fromUTC, toUTC, f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(source, 'chat') AS channel, COUNT(*) AS count FROM tickets`+where+` GROUP BY channel`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by channel: %w", err)
	}
	defer rows.Close()

	var out []ChannelCount
	for rows.Next() {
		var r ChannelCount
		if err := rows.Scan(&r.Channel, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan channel count: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyCounts groups matching tickets by creation day.
func (s *Store) DailyCounts(ctx context.Context, fromUTC, toUTC string, f ReportFilter) ([]DayCount, error) {
	where, args := whereFromFilter(fromUTC, toUTC, f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(created_utc, 1, 10) AS day, COUNT(*) AS count FROM tickets`+where+` GROUP BY day ORDER BY day`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to group by day: %w", err)
	}
	return collectDayCounts(rows)
}

// AgingBuckets groups matching non-closed tickets by age.
func (s *Store) AgingBuckets(ctx context.Context, fromUTC, toUTC string, f ReportFilter) ([]BucketCount, error) {
	where, args := whereFromFilter(fromUTC, toUTC, f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE
		  WHEN (julianday('now') - julianday(created_utc)) * 24 < 24 THEN '0-24h'
		  WHEN (julianday('now') - julianday(created_utc)) * 24 < 48 THEN '24-48h'
		  WHEN (julianday('now') - julianday(created_utc)) * 24 < 72 THEN '48-72h'
		  ELSE '>72h' END AS bucket, COUNT(*) AS count
		FROM tickets`+where+` AND COALESCE(status, 'open') != 'closed'
		GROUP BY bucket
		ORDER BY CASE bucket WHEN '0-24h' THEN 1 WHEN '24-48h' THEN 2 WHEN '48-72h' THEN 3 ELSE 4 END
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to bucket tickets: %w", err)
	}
	return collectBucketCounts(rows)
}

// OldestOpen lists the oldest matching non-closed tickets.
func (s *Store) OldestOpen(ctx context.Context, fromUTC, toUTC string, f ReportFilter, limit int) ([]OldestOpenTicket, error) {
	if limit <= 0 {
		limit = 10
	}
	where, args := whereFromFilter(fromUTC, toUTC, f)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(order_id, ''), created_utc
		FROM tickets`+where+` AND COALESCE(status, 'open') != 'closed'
		ORDER BY created_utc ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list oldest open tickets: %w", err)
	}
	defer rows.Close()

	var out []OldestOpenTicket
	for rows.Next() {
		var r OldestOpenTicket
		if err := rows.Scan(&r.ID, &r.OrderID, &r.CreatedUTC); err != nil {
			return nil, fmt.Errorf("failed to scan oldest open ticket: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectStatusCounts(rows *sql.Rows) ([]StatusCount, error) {
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var r StatusCount
		if err := rows.Scan(&r.Status, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectIssueCounts(rows *sql.Rows) ([]IssueCount, error) {
	defer rows.Close()
	var out []IssueCount
	for rows.Next() {
		var r IssueCount
		if err := rows.Scan(&r.IssueType, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan issue count: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectDayCounts(rows *sql.Rows) ([]DayCount, error) {
	defer rows.Close()
	var out []DayCount
	for rows.Next() {
		var r DayCount
		if err := rows.Scan(&r.Day, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectBucketCounts(rows *sql.Rows) ([]BucketCount, error) {
	defer rows.Close()
	var out []BucketCount
	for rows.Next() {
		var r BucketCount
		if err := rows.Scan(&r.Bucket, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan bucket count: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
