package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Ticket lifecycle states.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

// IsValidTicketStatus reports whether s names a lifecycle state.
func IsValidTicketStatus(s string) bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// Ticket is a row in the tickets table. Nullable columns are normalised on
// read: absent text becomes "", Source falls back to "chat" and Priority to
// "P2".
type Ticket struct {
	ID          int64  `json:"id"`
	CustomerID  int64  `json:"customer_id"`
	CreatedUTC  string `json:"created_utc"`
	UpdatedUTC  string `json:"updated_utc"`
	OrderID     string `json:"order_id,omitempty"`
	IssueType   string `json:"issue_type"`
	Status      string `json:"status"`
	LastMessage string `json:"last_message,omitempty"`
	Source      string `json:"source"`
	Priority    string `json:"priority"`

	// Email intake metadata, populated for tickets opened from the mailbox.
	MailMessageID   string `json:"mail_message_id,omitempty"`
	EmailFrom       string `json:"email_from,omitempty"`
	EmailSubject    string `json:"email_subject,omitempty"`
	EmailFetchedUTC string `json:"email_fetched_utc,omitempty"`
	EmailAckSentUTC string `json:"email_ack_sent_utc,omitempty"`
	EmailWasUnread  bool   `json:"email_was_unread,omitempty"`
}

// TicketMessage is one turn in a ticket's thread.
type TicketMessage struct {
	ID         int64  `json:"id"`
	TicketID   int64  `json:"ticket_id"`
	Role       string `json:"role"`
	Text       string `json:"text"`
	CreatedUTC string `json:"created_utc"`
}

// MailMeta carries the originating email details for tickets opened by the
// mailbox worker.
type MailMeta struct {
	MessageID  string
	From       string
	Subject    string
	FetchedUTC string
	WasUnread  bool
}

// TicketIntake is the input to OpenOrAppend: one inbound problem report,
// from any channel, attributed to a customer.
type TicketIntake struct {
	CustomerID int64
	OrderID    string // empty when the message names no order
	IssueType  string
	Text       string
	Source     string // chat, email, discord, matrix
	Priority   string
	Mail       *MailMeta
}

const ticketColumns = `id, customer_id, created_utc, updated_utc,
	COALESCE(order_id, ''), COALESCE(issue_type, 'OTHER'), COALESCE(status, 'open'),
	COALESCE(last_message, ''), COALESCE(source, 'chat'), COALESCE(priority, 'P2'),
	COALESCE(mail_message_id, ''), COALESCE(email_from, ''), COALESCE(email_subject, ''),
	COALESCE(email_fetched_utc, ''), COALESCE(email_ack_sent_utc, ''), COALESCE(email_was_unread, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(sc rowScanner) (*Ticket, error) {
	t := &Ticket{}
	var wasUnread int
	err := sc.Scan(
		&t.ID, &t.CustomerID, &t.CreatedUTC, &t.UpdatedUTC,
		&t.OrderID, &t.IssueType, &t.Status,
		&t.LastMessage, &t.Source, &t.Priority,
		&t.MailMessageID, &t.EmailFrom, &t.EmailSubject,
		&t.EmailFetchedUTC, &t.EmailAckSentUTC, &wasUnread,
	)
	if err != nil {
		return nil, err
	}
	t.EmailWasUnread = wasUnread != 0
	return t, nil
}

// OpenOrAppend files one inbound report atomically. When the customer
// already has a non-closed ticket for the same order, the text is appended
// to that thread; otherwise a new ticket is opened with the text as its
// first message. Reports that name no order always open a new ticket.
//
// Returns the ticket id and whether a new ticket was created.
func (s *Store) OpenOrAppend(ctx context.Context, in TicketIntake) (int64, bool, error) {
	if in.IssueType == "" {
		in.IssueType = "OTHER"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin intake transaction: %w", err)
	}
	defer tx.Rollback()

	if in.OrderID != "" {
		var id int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM tickets
			WHERE customer_id = ? AND order_id = ? AND status != 'closed'
			ORDER BY id
			LIMIT 1
		`, in.CustomerID, in.OrderID).Scan(&id)
		switch {
		case err == nil:
			if err := appendMessageTx(ctx, tx, id, "user", in.Text); err != nil {
				return 0, false, err
			}
			if err := tx.Commit(); err != nil {
				return 0, false, fmt.Errorf("failed to commit intake transaction: %w", err)
			}
			return id, false, nil
		case !errors.Is(err, sql.ErrNoRows):
			return 0, false, fmt.Errorf("failed to find open ticket: %w", err)
		}
	}

	id, err := createTicketTx(ctx, tx, in)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit intake transaction: %w", err)
	}
	return id, true, nil
}

func createTicketTx(ctx context.Context, tx *sql.Tx, in TicketIntake) (int64, error) {
	mail := in.Mail
	if mail == nil {
		mail = &MailMeta{}
	}
	wasUnread := 0
	if mail.WasUnread {
		wasUnread = 1
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (customer_id, order_id, issue_type, status, last_message,
		                     source, priority, mail_message_id, email_from, email_subject,
		                     email_fetched_utc, email_was_unread)
		VALUES (?, NULLIF(?, ''), ?, 'open', ?,
		        NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''),
		        NULLIF(?, ''), ?)
	`, in.CustomerID, in.OrderID, in.IssueType, in.Text,
		in.Source, in.Priority, mail.MessageID, mail.From, mail.Subject,
		mail.FetchedUTC, wasUnread)
	if err != nil {
		return 0, fmt.Errorf("failed to create ticket: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read ticket id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ticket_messages (ticket_id, role, text) VALUES (?, 'user', ?)`,
		id, in.Text); err != nil {
		return 0, fmt.Errorf("failed to record first message: %w", err)
	}
	return id, nil
}

func appendMessageTx(ctx context.Context, tx *sql.Tx, ticketID int64, role, text string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets
		SET last_message = ?, updated_utc = datetime('now')
		WHERE id = ?
	`, text, ticketID)
	if err != nil {
		return fmt.Errorf("failed to update ticket thread: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ticket %d: %w", ticketID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ticket_messages (ticket_id, role, text) VALUES (?, ?, ?)`,
		ticketID, role, text); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// AppendMessage adds one turn to an existing ticket's thread and refreshes
// the ticket's last_message snapshot.
func (s *Store) AppendMessage(ctx context.Context, ticketID int64, role, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendMessageTx(ctx, tx, ticketID, role, text); err != nil {
		return err
	}
	return tx.Commit()
}

// FindOpenTicket returns the id of the customer's non-closed ticket for the
// given order, if one exists.
func (s *Store) FindOpenTicket(ctx context.Context, customerID int64, orderID string) (int64, bool, error) {
	if orderID == "" {
		return 0, false, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM tickets
		WHERE customer_id = ? AND order_id = ? AND status != 'closed'
		ORDER BY id
		LIMIT 1
	`, customerID, orderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find open ticket: %w", err)
	}
	return id, true, nil
}

// GetTicket retrieves a ticket by id.
func (s *Store) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// TicketFilter narrows ListTickets. Zero values mean "no restriction".
type TicketFilter struct {
	Status string
	Source string
	Limit  int // defaults to 100
}

// ListTickets returns tickets newest-first, optionally filtered by status
// and channel source.
func (s *Store) ListTickets(ctx context.Context, f TicketFilter) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, `COALESCE(status, 'open') = ?`)
		args = append(args, f.Status)
	}
	if f.Source != "" {
		clauses = append(clauses, `COALESCE(source, 'chat') = ?`)
		args = append(args, f.Source)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}
	return tickets, nil
}

// TicketMessages returns a ticket's thread oldest-first.
func (s *Store) TicketMessages(ctx context.Context, ticketID int64) ([]*TicketMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, role, text, created_utc
		FROM ticket_messages
		WHERE ticket_id = ?
		ORDER BY id
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket messages: %w", err)
	}
	defer rows.Close()

	var msgs []*TicketMessage
	for rows.Next() {
		m := &TicketMessage{}
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Role, &m.Text, &m.CreatedUTC); err != nil {
			return nil, fmt.Errorf("failed to scan ticket message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket messages: %w", err)
	}
	return msgs, nil
}

// HasTicketMessage reports whether the ticket thread already contains the
// exact text. The mailbox backfill uses it to avoid duplicating bodies.
func (s *Store) HasTicketMessage(ctx context.Context, ticketID int64, text string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM ticket_messages
		WHERE ticket_id = ? AND text = ?
		LIMIT 1
	`, ticketID, text).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ticket messages: %w", err)
	}
	return true, nil
}

// UpdateTicketStatus moves a ticket to a new lifecycle state.
func (s *Store) UpdateTicketStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET status = ?, updated_utc = datetime('now')
		WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetTicketPriority sets the operator-facing priority (P0..P3).
func (s *Store) SetTicketPriority(ctx context.Context, id int64, priority string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET priority = ?, updated_utc = datetime('now')
		WHERE id = ?
	`, priority, id)
	if err != nil {
		return fmt.Errorf("failed to set ticket priority: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetTicketOrder backfills the order id on a ticket that was opened without
// one, as when a customer's first email names no order and a follow-up does.
func (s *Store) SetTicketOrder(ctx context.Context, id int64, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET order_id = NULLIF(?, ''), updated_utc = datetime('now')
		WHERE id = ?
	`, orderID, id)
	if err != nil {
		return fmt.Errorf("failed to set ticket order: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetMailMeta stamps the originating email details onto an existing ticket,
// used when an inbound message attaches to a ticket instead of opening one.
func (s *Store) SetMailMeta(ctx context.Context, id int64, meta MailMeta) error {
	wasUnread := 0
	if meta.WasUnread {
		wasUnread = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET mail_message_id = NULLIF(?, ''), email_from = NULLIF(?, ''),
		    email_subject = NULLIF(?, ''), email_fetched_utc = NULLIF(?, ''),
		    email_was_unread = ?, updated_utc = datetime('now')
		WHERE id = ?
	`, meta.MessageID, meta.From, meta.Subject, meta.FetchedUTC, wasUnread, id)
	if err != nil {
		return fmt.Errorf("failed to set mail metadata: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAckSent records when the acknowledgement email for a mailbox ticket
// went out.
func (s *Store) MarkAckSent(ctx context.Context, id int64, sentUTC string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET email_ack_sent_utc = ?
		WHERE id = ?
	`, sentUTC, id)
	if err != nil {
		return fmt.Errorf("failed to mark ack sent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ticket %d: %w", id, ErrNotFound)
	}
	return nil
}

// FindTicketByMailMessageID looks up the ticket opened for a given mailbox
// message, if any. The mailbox worker uses it to keep intake idempotent.
func (s *Store) FindTicketByMailMessageID(ctx context.Context, messageID string) (int64, bool, error) {
	if messageID == "" {
		return 0, false, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM tickets
		WHERE mail_message_id = ?
		ORDER BY id
		LIMIT 1
	`, messageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find ticket by mail message: %w", err)
	}
	return id, true, nil
}
