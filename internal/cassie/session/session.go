// Package session holds per-conversation state: the facts the dialogue
// engine reads and writes between turns, and the stores that keep them.
//
// State is deliberately small and fully serialisable so a conversation can
// survive a process restart when the Redis backing is configured. Losing it
// is never fatal; the engine simply re-asks for the order id or email.
package session

import (
	"context"
	"time"
)

// DefaultTTL is how long an idle conversation's state is retained before a
// store may drop it.
const DefaultTTL = 30 * time.Minute

// PendingOffer records that the assistant asked "shall I raise a ticket?"
// and is awaiting a yes/no decision.
type PendingOffer struct {
	// IssueType is the free-text issue label the ticket would carry.
	IssueType string `json:"issue_type"`
	// FirstMsg is the message that triggered the offer, used as the ticket's
	// opening message on acceptance.
	FirstMsg string `json:"first_msg"`
}

// State is one conversation's mutable memory.
type State struct {
	// OrderID is the last confirmed order identifier. Once set it is only
	// cleared by session destruction.
	OrderID string `json:"order_id,omitempty"`

	// CustomerID is resolved lazily on first need and reused thereafter.
	// Zero means not yet resolved.
	CustomerID int64 `json:"customer_id,omitempty"`

	// PendingOffer is set while a ticket offer awaits a yes/no decision.
	PendingOffer *PendingOffer `json:"pending_ticket_offer,omitempty"`

	// LastIssueCode is the canonical code of the most recently recognised
	// issue, used when a bare order id arrives on a later turn. LastIssueText
	// keeps the customer's own words for the ticket's opening message.
	LastIssueCode string `json:"last_issue_code,omitempty"`
	LastIssueText string `json:"last_issue_text,omitempty"`

	// AwaitingHumanEmail is true while waiting for a contact email to finish
	// a human-escalation request.
	AwaitingHumanEmail bool `json:"awaiting_human_email,omitempty"`

	// AwaitingClosure is true after a decline, awaiting either thanks/silence
	// (close the session) or a new request (continue).
	AwaitingClosure bool `json:"awaiting_closure,omitempty"`

	// LastReplyKey and RepeatCount track consecutive identical canned
	// replies so reply paths can escalate instead of looping.
	LastReplyKey string `json:"last_reply_key,omitempty"`
	RepeatCount  int    `json:"repeat_count,omitempty"`
}

// Store persists conversation state keyed by an opaque session id.
//
// Get returns a fresh zero-value State for unknown ids rather than an error;
// only infrastructure failures (a dead Redis, say) surface as errors.
// Implementations must be safe for concurrent use. Serialising turns within
// one session is the engine's job, not the store's.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Put(ctx context.Context, id string, st *State) error
	Delete(ctx context.Context, id string) error
	Close() error
}
