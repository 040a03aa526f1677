// Package mail implements the support mailbox gateway: a Mailbox abstraction
// over the Gmail REST API and a Worker that polls for unread customer emails,
// forwards them to the server's ingest endpoint, and sends the tagged
// acknowledgement replies that let follow-ups thread back into their ticket.
package mail

import "context"

// Message is one email fetched from the mailbox, already flattened to the
// fields the intake path cares about.
type Message struct {
	// ID is the provider's stable message identifier.
	ID string

	// From is the bare sender address, display name stripped.
	From string

	// Subject is the subject line, "(no subject)" when absent.
	Subject string

	// Body is the plain-text body, "(no body)" when none could be decoded.
	Body string

	// WasUnread records whether the message still carried the UNREAD label
	// when fetched.
	WasUnread bool
}

// Mailbox is the provider surface the worker polls. GmailBox implements it
// against the Gmail REST API; tests substitute an in-memory fake.
type Mailbox interface {
	// ListUnread returns ids of messages matching the poll query, newest
	// first, up to max.
	ListUnread(ctx context.Context, max int) ([]string, error)

	// Fetch loads one message in full.
	Fetch(ctx context.Context, id string) (*Message, error)

	// MarkRead clears the unread flag so the next poll skips the message.
	MarkRead(ctx context.Context, id string) error

	// Send delivers a plain-text reply from the support address.
	Send(ctx context.Context, to, subject, body string) error
}
