package intake_test

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/cassiedesk/cassie/common/wire"
	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/intake"
	"github.com/cassiedesk/cassie/internal/cassie/policy"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "cassie-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

type staticFAQs struct{ entries []faq.Entry }

func (s *staticFAQs) ListFAQs(ctx context.Context) ([]faq.Entry, error) {
	return s.entries, nil
}

func newTestFAQs(t *testing.T) *faq.Cache {
	t.Helper()
	cache := faq.NewCache(&staticFAQs{entries: []faq.Entry{
		{ID: 1, Question: "Return Policy", Answer: "Returns are accepted within 30 days.", Keywords: []string{"return", "exchange", "return policy"}},
		{ID: 2, Question: "Order Tracking", Answer: "Use the tracking link in your confirmation email.", Keywords: []string{"track", "tracking", "where is my order"}},
	}})
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("failed to refresh faq cache: %v", err)
	}
	return cache
}

func newProcessor(t *testing.T) (*intake.Processor, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	return intake.New(s, newTestFAQs(t), nil), s
}

func TestProcessCreatesTicket(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()

	r, err := p.Process(ctx, &wire.InboundMessage{
		Channel: "webform",
		Email:   "ana@example.com",
		Name:    "Ana",
		Subject: "Broken blender",
		Text:    "My blender arrived broken, order ORDL123.",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !r.Created {
		t.Fatal("expected a new ticket")
	}
	if r.OrderID != "ORDL123" {
		t.Errorf("order_id = %q, want ORDL123", r.OrderID)
	}
	if r.IssueCode != string(policy.DefectiveItem) {
		t.Errorf("issue = %q, want %s", r.IssueCode, policy.DefectiveItem)
	}

	tk, err := s.GetTicket(ctx, r.TicketID)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if tk.Source != "webform" {
		t.Errorf("source = %q, want webform", tk.Source)
	}
	msgs, err := s.TicketMessages(ctx, r.TicketID)
	if err != nil {
		t.Fatalf("TicketMessages failed: %v", err)
	}
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Text, "Broken blender") {
		t.Errorf("first message = %+v, want subject-prefixed body", msgs)
	}
}

func TestProcessAppendsToOpenTicket(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	first, err := p.Process(ctx, &wire.InboundMessage{
		Channel: "webform",
		Email:   "ana@example.com",
		Text:    "Wrong item in order ORDL555.",
	})
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	if !first.Created {
		t.Fatal("expected first message to open a ticket")
	}

	second, err := p.Process(ctx, &wire.InboundMessage{
		Channel: "webform",
		Email:   "ana@example.com",
		Text:    "Any update on ORDL555?",
	})
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Created {
		t.Error("second message should append, not create")
	}
	if second.TicketID != first.TicketID {
		t.Errorf("ticket = %d, want %d", second.TicketID, first.TicketID)
	}
}

func TestProcessSubjectTagWinsAndBackfillsOrder(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()

	// Orderless ticket opened out of band.
	custID, err := s.GetOrCreateCustomer(ctx, "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("GetOrCreateCustomer failed: %v", err)
	}
	tid, _, err := s.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: custID,
		IssueType:  string(policy.Other),
		Text:       "initial complaint",
		Source:     "email",
	})
	if err != nil {
		t.Fatalf("OpenOrAppend failed: %v", err)
	}

	r, err := p.Process(ctx, &wire.InboundMessage{
		Channel: "email",
		Email:   "bob@example.com",
		Subject: "Re: [Ticket #" + strconv.FormatInt(tid, 10) + "] We've received your request",
		Text:    "Forgot to mention, the order is ORDL900.",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.Created {
		t.Error("tagged reply should append")
	}
	if r.TicketID != tid {
		t.Errorf("ticket = %d, want %d", r.TicketID, tid)
	}
	if !r.OrderBackfilled {
		t.Error("expected the order id to be backfilled")
	}

	tk, err := s.GetTicket(ctx, tid)
	if err != nil {
		t.Fatalf("GetTicket failed: %v", err)
	}
	if tk.OrderID != "ORDL900" {
		t.Errorf("ticket order = %q, want ORDL900", tk.OrderID)
	}
}

func TestProcessUnknownTagOpensFreshTicket(t *testing.T) {
	p, _ := newProcessor(t)

	r, err := p.Process(context.Background(), &wire.InboundMessage{
		Channel: "email",
		Email:   "eve@example.com",
		Subject: "[Ticket #9999] stale thread",
		Text:    "An item is missing from my delivery.",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !r.Created {
		t.Error("unknown tag should fall through to a new ticket")
	}
	if r.IssueCode != string(policy.MissingItem) {
		t.Errorf("issue = %q, want %s", r.IssueCode, policy.MissingItem)
	}
}

func TestProcessDuplicateMessageIDIgnored(t *testing.T) {
	p, _ := newProcessor(t)
	ctx := context.Background()

	msg := &wire.InboundMessage{
		Channel:   "email",
		Email:     "dup@example.com",
		Subject:   "damaged parcel",
		Text:      "The parcel for ORDL321 arrived damaged.",
		MessageID: "gm-abc",
	}
	first, err := p.Process(ctx, msg)
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	second, err := p.Process(ctx, msg)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Created {
		t.Error("redelivery must not open a ticket")
	}
	if second.TicketID != first.TicketID {
		t.Errorf("ticket = %d, want %d", second.TicketID, first.TicketID)
	}
	if !strings.Contains(second.Message, "Duplicate") {
		t.Errorf("message = %q, want duplicate notice", second.Message)
	}
}

func TestProcessExplicitHintsWin(t *testing.T) {
	p, _ := newProcessor(t)

	r, err := p.Process(context.Background(), &wire.InboundMessage{
		Channel:   "webform",
		Email:     "hint@example.com",
		Text:      "see the form fields",
		OrderID:   "ORDL42",
		IssueType: "wrong item",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if r.OrderID != "ORDL42" {
		t.Errorf("order_id = %q, want ORDL42", r.OrderID)
	}
	if r.IssueCode != string(policy.WrongItem) {
		t.Errorf("issue = %q, want %s", r.IssueCode, policy.WrongItem)
	}
}

func TestProcessRequiresEmail(t *testing.T) {
	p, _ := newProcessor(t)
	if _, err := p.Process(context.Background(), &wire.InboundMessage{
		Channel: "webform",
		Text:    "no sender here",
	}); err == nil {
		t.Fatal("expected an error for a message without a sender email")
	}
}

func TestProcessRecordsMailMeta(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()

	r, err := p.Process(ctx, &wire.InboundMessage{
		Channel:   "email",
		Email:     "meta@example.com",
		Subject:   "refund please",
		Text:      "I want a refund for ORDL808.",
		MessageID: "gm-meta-1",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	id, found, err := s.FindTicketByMailMessageID(ctx, "gm-meta-1")
	if err != nil {
		t.Fatalf("FindTicketByMailMessageID failed: %v", err)
	}
	if !found || id != r.TicketID {
		t.Errorf("mail meta lookup = (%d, %v), want (%d, true)", id, found, r.TicketID)
	}
}

func TestComposeReply(t *testing.T) {
	p, _ := newProcessor(t)

	tests := []struct {
		text string
		want string
	}{
		{"my blender arrived broken", "Sorry about the trouble"},
		{"I want to talk to a human", "support team will get back"},
		{"what is your return policy", "Returns are accepted within 30 days."},
		{"completely unrelated gibberish qwerty", "review it and follow up"},
	}
	for _, tt := range tests {
		got := p.ComposeReply(tt.text)
		if !strings.Contains(got, tt.want) {
			t.Errorf("ComposeReply(%q) = %q, want substring %q", tt.text, got, tt.want)
		}
	}
}

func TestProcessTruncatesOnRuneBoundary(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()

	// "order ORDL888 " is 14 bytes and the padding brings the prefix to 999,
	// so the first three-byte rupee sign straddles the 1000-byte cap.
	first := "order ORDL888 " + strings.Repeat("a", 985) + strings.Repeat("₹", 20)
	r, err := p.Process(ctx, &wire.InboundMessage{
		Channel: "webform",
		Email:   "ana@example.com",
		Text:    first,
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !r.Created {
		t.Fatal("expected a new ticket")
	}

	msgs, err := s.TicketMessages(ctx, r.TicketID)
	if err != nil {
		t.Fatalf("TicketMessages failed: %v", err)
	}
	if len(msgs[0].Text) > 1000 {
		t.Errorf("first message is %d bytes, want <= 1000", len(msgs[0].Text))
	}
	if !utf8.ValidString(msgs[0].Text) {
		t.Error("first message was cut mid-rune")
	}

	// Follow-ups get the larger cap, same boundary rule.
	second := "ORDL888 " + strings.Repeat("a", 1991) + strings.Repeat("₹", 20)
	if _, err := p.Process(ctx, &wire.InboundMessage{
		Channel: "webform",
		Email:   "ana@example.com",
		Text:    second,
	}); err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	msgs, err = s.TicketMessages(ctx, r.TicketID)
	if err != nil {
		t.Fatalf("TicketMessages failed: %v", err)
	}
	last := msgs[len(msgs)-1].Text
	if len(last) > 2000 {
		t.Errorf("follow-up is %d bytes, want <= 2000", len(last))
	}
	if !utf8.ValidString(last) {
		t.Error("follow-up was cut mid-rune")
	}
}
