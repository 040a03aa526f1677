// Package wire defines the message envelope shared by the Cassie server and
// its gateway binaries. A gateway normalises whatever it receives (an email,
// a webhook delivery, a social comment) into an InboundMessage and POSTs it
// to the server's ingest endpoint; the server answers with a Receipt.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InboundMessage is one customer message entering the system from an
// external channel.
type InboundMessage struct {
	// Channel names the originating transport ("email", "webform", ...).
	// Stored as the ticket's source.
	Channel string `json:"channel"`

	// Email and Name identify the sender. Email may be empty, in which
	// case the server composes a reply but opens no ticket.
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	// Subject is the message subject line, when the channel has one.
	Subject string `json:"subject,omitempty"`

	// Text is the message body.
	Text string `json:"text"`

	// OrderID and IssueType are optional structured hints supplied by the
	// gateway (a webform's order field, say); they win over anything the
	// classifier extracts from the text.
	OrderID   string `json:"order_id,omitempty"`
	IssueType string `json:"issue_type,omitempty"`

	// MessageID is the channel's stable message identifier, used for
	// duplicate suppression on redelivery. Optional.
	MessageID string `json:"message_id,omitempty"`
}

// Validate checks that the message is structurally usable. It returns a
// descriptive error if an invariant is violated, or nil when the message may
// be processed.
func (m *InboundMessage) Validate() error {
	if m == nil {
		return fmt.Errorf("message must not be nil")
	}
	if strings.TrimSpace(m.Channel) == "" {
		return fmt.Errorf("channel must not be empty")
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("text must not be empty")
	}
	return nil
}

// ParseInbound decodes a JSON-encoded InboundMessage and validates it. It is
// the canonical entry point for deserialising ingest request bodies.
func ParseInbound(data []byte) (*InboundMessage, error) {
	var m InboundMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire parse: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("wire validate: %w", err)
	}
	return &m, nil
}

// Receipt reports what the server did with an InboundMessage.
type Receipt struct {
	// TicketID is the ticket the message landed in.
	TicketID int64 `json:"ticket_id"`

	// Created is true when a new ticket was opened, false when the message
	// was appended to an existing one.
	Created bool `json:"created"`

	// OrderID is the order the ticket is attributed to, or empty.
	OrderID string `json:"order_id,omitempty"`

	// IssueCode is the canonical issue code recorded on the ticket.
	IssueCode string `json:"issue_type,omitempty"`

	// OrderBackfilled is true when the message supplied an order id that an
	// existing orderless ticket was missing.
	OrderBackfilled bool `json:"order_backfilled,omitempty"`

	// Message is a human-readable summary of the outcome.
	Message string `json:"message,omitempty"`
}
