// Package intake turns one-shot inbound messages (emails, webform posts,
// social comments) into tickets. Unlike the dialogue engine it holds no
// conversation: every message is attributed, classified, and filed in a
// single pass, and the caller gets a receipt describing what happened.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cassiedesk/cassie/common/wire"
	"github.com/cassiedesk/cassie/internal/cassie/advisor"
	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/intent"
	"github.com/cassiedesk/cassie/internal/cassie/policy"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// First messages are capped at 1000 characters and follow-ups at 2000 so a
// pasted email thread cannot bloat the ticket table.
const (
	maxFirstMessage  = 1000
	maxAppendMessage = 2000
)

// ticketTagRe matches the "[Ticket #42]" subject tag our acknowledgement
// emails carry, so replies thread back into their ticket.
var ticketTagRe = regexp.MustCompile(`(?i)\[Ticket\s*#(\d+)\]`)

// Gateway is the persistence surface the processor needs. *store.Store
// satisfies it.
type Gateway interface {
	GetOrCreateCustomer(ctx context.Context, email, name string) (int64, error)
	GetTicket(ctx context.Context, id int64) (*store.Ticket, error)
	FindOpenTicket(ctx context.Context, customerID int64, orderID string) (int64, bool, error)
	OpenOrAppend(ctx context.Context, in store.TicketIntake) (int64, bool, error)
	AppendMessage(ctx context.Context, ticketID int64, role, text string) error
	SetTicketOrder(ctx context.Context, id int64, orderID string) error
	SetMailMeta(ctx context.Context, id int64, meta store.MailMeta) error
	FindTicketByMailMessageID(ctx context.Context, messageID string) (int64, bool, error)
}

var _ Gateway = (*store.Store)(nil)

// Processor files inbound messages. Construct with New; the zero value is
// not usable.
type Processor struct {
	gateway Gateway
	faqs    *faq.Cache
	adv     *advisor.Advisor
	now     func() time.Time
}

// New assembles a processor. faqs may be nil (issue labels then come from
// the inline inference only) and adv may be nil (classification is purely
// rule-based).
func New(gateway Gateway, faqs *faq.Cache, adv *advisor.Advisor) *Processor {
	if adv == nil {
		adv = advisor.NewAdvisor(advisor.Disabled(), advisor.Options{})
	}
	return &Processor{gateway: gateway, faqs: faqs, adv: adv, now: time.Now}
}

// Process files one inbound message and reports the outcome. The message
// must already be validated and carry a sender email; without one there is
// no customer to attribute the ticket to.
//
// Resolution order: duplicate suppression on the channel message id, then
// the subject's ticket tag, then the open ticket for this customer+order,
// then a fresh ticket. Appends backfill a missing ticket order id when the
// message supplies one.
func (p *Processor) Process(ctx context.Context, msg *wire.InboundMessage) (*wire.Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.Email) == "" {
		return nil, fmt.Errorf("intake: sender email required")
	}

	// Redeliveries of the same channel message are dropped, not re-filed.
	if msg.MessageID != "" {
		if id, found, err := p.gateway.FindTicketByMailMessageID(ctx, msg.MessageID); err != nil {
			return nil, fmt.Errorf("failed to check message id %q: %w", msg.MessageID, err)
		} else if found {
			return &wire.Receipt{
				TicketID: id,
				Message:  fmt.Sprintf("Duplicate delivery ignored; already filed as ticket #%d.", id),
			}, nil
		}
	}

	orderID := msg.OrderID
	det := intent.Detect(msg.Subject + "\n" + msg.Text)
	if orderID == "" {
		orderID = det.OrderID
	}

	// The advisor gets a shot only when the rules drew a blank; its order id
	// is trusted the same way the engine trusts it, as a hint.
	issueLabel := ""
	if det.Type == intent.TypeFallback && p.adv.Enabled() {
		cls := p.adv.Classify(ctx, "intake:"+msg.Email, msg.Text)
		if !cls.Zero() {
			det.Type = intent.Type(cls.Intent)
			issueLabel = cls.IssueLabel
			if orderID == "" {
				orderID = cls.OrderID
			}
		}
	}

	customerID, err := p.gateway.GetOrCreateCustomer(ctx, msg.Email, msg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	// 1) A [Ticket #N] subject tag wins when the ticket exists.
	ticketID, found, err := p.taggedTicket(ctx, msg.Subject)
	if err != nil {
		return nil, err
	}

	// 2) Otherwise the open ticket for this customer+order, if any.
	if !found && orderID != "" {
		ticketID, found, err = p.gateway.FindOpenTicket(ctx, customerID, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to find open ticket: %w", err)
		}
	}

	if found {
		return p.appendTo(ctx, msg, ticketID, orderID)
	}

	code := p.issueCode(msg, det, issueLabel)
	first := strings.TrimSpace(msg.Subject + "\n\n" + msg.Text)
	id, created, err := p.gateway.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: customerID,
		OrderID:    orderID,
		IssueType:  string(code),
		Text:       truncate(first, maxFirstMessage),
		Source:     msg.Channel,
		Mail:       p.mailMeta(msg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to file ticket: %w", err)
	}
	slog.Info("intake filed",
		"channel", msg.Channel,
		"ticket_id", id,
		"order_id", orderID,
		"issue", code,
		"created", created)
	receipt := &wire.Receipt{
		TicketID:  id,
		Created:   created,
		OrderID:   orderID,
		IssueCode: string(code),
	}
	if created {
		receipt.Message = fmt.Sprintf("Created ticket #%d.", id)
	} else {
		receipt.Message = fmt.Sprintf("Appended to existing ticket #%d for order %s.", id, orderID)
	}
	return receipt, nil
}

// taggedTicket resolves a [Ticket #N] subject tag to an existing ticket id.
// A tag naming an unknown ticket is ignored rather than failing the message.
func (p *Processor) taggedTicket(ctx context.Context, subject string) (int64, bool, error) {
	m := ticketTagRe.FindStringSubmatch(subject)
	if m == nil {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false, nil
	}
	if _, err := p.gateway.GetTicket(ctx, id); err != nil {
		if err == store.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to load ticket #%d: %w", id, err)
	}
	return id, true, nil
}

// appendTo adds the message to an existing ticket, backfilling the order id
// when the ticket had none and the message names one.
func (p *Processor) appendTo(ctx context.Context, msg *wire.InboundMessage, ticketID int64, orderID string) (*wire.Receipt, error) {
	if err := p.gateway.AppendMessage(ctx, ticketID, "user", truncate(msg.Text, maxAppendMessage)); err != nil {
		return nil, fmt.Errorf("failed to append to ticket #%d: %w", ticketID, err)
	}

	backfilled := false
	if orderID != "" {
		t, err := p.gateway.GetTicket(ctx, ticketID)
		if err != nil {
			return nil, fmt.Errorf("failed to load ticket #%d: %w", ticketID, err)
		}
		if t.OrderID == "" {
			if err := p.gateway.SetTicketOrder(ctx, ticketID, orderID); err != nil {
				return nil, fmt.Errorf("failed to backfill order on ticket #%d: %w", ticketID, err)
			}
			backfilled = true
		}
	}

	if meta := p.mailMeta(msg); meta != nil {
		if err := p.gateway.SetMailMeta(ctx, ticketID, *meta); err != nil {
			return nil, fmt.Errorf("failed to record mail metadata on ticket #%d: %w", ticketID, err)
		}
	}

	slog.Info("intake appended",
		"channel", msg.Channel,
		"ticket_id", ticketID,
		"order_id", orderID,
		"order_backfilled", backfilled)
	receipt := &wire.Receipt{
		TicketID:        ticketID,
		OrderID:         orderID,
		OrderBackfilled: backfilled,
	}
	if backfilled {
		receipt.Message = fmt.Sprintf("Updated ticket #%d with order %s.", ticketID, orderID)
	} else {
		receipt.Message = fmt.Sprintf("Appended to existing ticket #%d.", ticketID)
	}
	return receipt, nil
}

// issueCode picks the ticket's canonical issue code: an explicit gateway
// hint beats the classified intent beats the knowledge-base label beats the
// inline inference.
func (p *Processor) issueCode(msg *wire.InboundMessage, det intent.Detected, advisorLabel string) policy.IssueCode {
	if msg.IssueType != "" {
		return policy.Normalize(msg.IssueType)
	}
	switch det.Type {
	case intent.TypeDefect:
		return policy.DefectiveItem
	case intent.TypeWrongItem:
		return policy.WrongItem
	case intent.TypeMissingItem:
		return policy.MissingItem
	case intent.TypeHuman:
		return policy.HumanAssistance
	}
	if advisorLabel != "" {
		return policy.Normalize(advisorLabel)
	}
	if p.faqs != nil {
		if m := p.faqs.Match(msg.Text); m != nil {
			return policy.Normalize(m.Label)
		}
	}
	return policy.Normalize(intent.InferIssueLabel(msg.Text))
}

// mailMeta builds the email bookkeeping for messages arriving over the mail
// channel; other channels record none.
func (p *Processor) mailMeta(msg *wire.InboundMessage) *store.MailMeta {
	if msg.Channel != "email" || msg.MessageID == "" {
		return nil
	}
	return &store.MailMeta{
		MessageID:  msg.MessageID,
		From:       msg.Email,
		Subject:    msg.Subject,
		FetchedUTC: store.UTCString(p.now()),
		WasUnread:  true,
	}
}

// ComposeReply writes the short public acknowledgement sent back on the
// originating channel. It answers from the knowledge base when it can and
// otherwise acknowledges by issue type; it never promises a ticket, since
// the sender may not have provided an email.
func (p *Processor) ComposeReply(text string) string {
	det := intent.Detect(text)
	switch det.Type {
	case intent.TypeDefect, intent.TypeWrongItem, intent.TypeMissingItem:
		return "Sorry about the trouble with your order! Our support team is on it and will follow up with next steps shortly."
	case intent.TypeHuman:
		return "Thanks for reaching out. A member of our support team will get back to you shortly."
	case intent.TypeGreet:
		return "Hi! Thanks for getting in touch. How can we help with your order?"
	}
	if p.faqs != nil {
		if m := p.faqs.Match(text); m != nil {
			return m.Answer
		}
	}
	if answer := faq.InlineAnswer(text); answer != "" {
		return answer
	}
	return "Thanks for your message! Our support team will review it and follow up shortly."
}

// truncate caps s at n bytes without splitting a multi-byte rune at the
// boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
