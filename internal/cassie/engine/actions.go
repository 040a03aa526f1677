package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cassiedesk/cassie/internal/cassie/policy"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// checkOrder fetches the order's lifecycle status and applies the
// eligibility policy, writing the refusal reply itself when the ticket may
// not proceed. An unknown order id is surfaced verbatim and any pending
// offer survives so the customer can retry with a corrected id; a policy
// rejection drops the offer because the request itself was refused.
func (e *Engine) checkOrder(ctx context.Context, t *turnState, code policy.IssueCode) (bool, error) {
	status, found, err := e.gateway.GetOrderStatus(ctx, t.st.OrderID)
	if err != nil {
		return false, fmt.Errorf("failed to look up order %s: %w", t.st.OrderID, err)
	}
	if !found {
		t.reply = replyUnknownOrder(t.st.OrderID)
		return false, nil
	}
	if !policy.IsAllowed(code, policy.OrderStatus(status)) {
		t.st.PendingOffer = nil
		t.reply = replyPolicyRejection(code, t.st.OrderID, status)
		return false, nil
	}
	return true, nil
}

// fileTicket opens or extends the one open ticket for this customer and
// order and writes the confirmation reply.
func (e *Engine) fileTicket(ctx context.Context, t *turnState, code policy.IssueCode, text string) error {
	cust, err := e.customerID(ctx, t)
	if err != nil {
		return err
	}
	id, created, err := e.gateway.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: cust,
		OrderID:    t.st.OrderID,
		IssueType:  string(code),
		Text:       text,
		Source:     e.source,
	})
	if err != nil {
		return fmt.Errorf("failed to file ticket: %w", err)
	}
	t.ticketID = id
	if created {
		t.reply = replyTicketCreated(id, t.st.OrderID)
	} else {
		t.reply = replyTicketAppended(id, t.st.OrderID)
	}
	slog.Info("ticket filed",
		"session_id", t.id,
		"ticket_id", id,
		"order_id", t.st.OrderID,
		"issue", code,
		"created", created)
	return nil
}

// fileHumanTicket records a callback request under the given address. The
// customer is re-resolved with the email so the address sticks to the
// record even when earlier turns created an anonymous one.
func (e *Engine) fileHumanTicket(ctx context.Context, t *turnState, email string) error {
	cust, err := e.gateway.GetOrCreateCustomer(ctx, email, t.name)
	if err != nil {
		return fmt.Errorf("failed to resolve customer: %w", err)
	}
	t.st.CustomerID = cust
	id, created, err := e.gateway.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: cust,
		OrderID:    t.st.OrderID,
		IssueType:  string(policy.HumanAssistance),
		Text:       t.text,
		Source:     e.source,
	})
	if err != nil {
		return fmt.Errorf("failed to file ticket: %w", err)
	}
	t.ticketID = id
	if created {
		t.reply = replyHumanTicketCreated(id, email)
	} else {
		t.reply = replyHumanTicketAppended(id, email)
	}
	slog.Info("human escalation filed",
		"session_id", t.id,
		"ticket_id", id,
		"created", created)
	return nil
}
