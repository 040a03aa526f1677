package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

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

// wideFrom/wideTo bracket every row the tests create.
const (
	wideFrom = "2000-01-01 00:00:00"
	wideTo   = "2100-01-01 00:00:00"
)

// --- Customers ---

func TestGetOrCreateCustomer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.GetOrCreateCustomer(ctx, "ana@example.com", "Ana")
	if err != nil {
		t.Fatalf("GetOrCreateCustomer: %v", err)
	}
	id2, err := s.GetOrCreateCustomer(ctx, "ana@example.com", "")
	if err != nil {
		t.Fatalf("GetOrCreateCustomer again: %v", err)
	}
	if id1 != id2 {
		t.Errorf("same email should reuse the row: got %d and %d", id1, id2)
	}

	anon1, err := s.GetOrCreateCustomer(ctx, "", "")
	if err != nil {
		t.Fatalf("anonymous customer: %v", err)
	}
	anon2, err := s.GetOrCreateCustomer(ctx, "", "")
	if err != nil {
		t.Fatalf("anonymous customer again: %v", err)
	}
	if anon1 == anon2 {
		t.Error("anonymous customers must not share a row")
	}

	c, err := s.GetCustomer(ctx, id1)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if c.Email != "ana@example.com" || c.Name != "Ana" {
		t.Errorf("GetCustomer = %+v", c)
	}

	if _, err := s.GetCustomer(ctx, 99999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing customer: err = %v, want ErrNotFound", err)
	}
}

// --- Tickets ---

func TestOpenOrAppendReusesOpenTicket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, err := s.GetOrCreateCustomer(ctx, "bo@example.com", "")
	if err != nil {
		t.Fatalf("customer: %v", err)
	}

	id1, created, err := s.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: cust,
		OrderID:    "ORDL100",
		IssueType:  "DEFECTIVE_ITEM",
		Text:       "screen arrived cracked",
	})
	if err != nil {
		t.Fatalf("first OpenOrAppend: %v", err)
	}
	if !created {
		t.Fatal("first report should create a ticket")
	}

	id2, created, err := s.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: cust,
		OrderID:    "ORDL100",
		IssueType:  "DEFECTIVE_ITEM",
		Text:       "also the charger is missing",
	})
	if err != nil {
		t.Fatalf("second OpenOrAppend: %v", err)
	}
	if created {
		t.Error("second report for the same order should append, not create")
	}
	if id1 != id2 {
		t.Errorf("expected reuse of ticket %d, got %d", id1, id2)
	}

	msgs, err := s.TicketMessages(ctx, id1)
	if err != nil {
		t.Fatalf("TicketMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Text != "screen arrived cracked" || msgs[1].Text != "also the charger is missing" {
		t.Errorf("thread order wrong: %q then %q", msgs[0].Text, msgs[1].Text)
	}

	tk, err := s.GetTicket(ctx, id1)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if tk.LastMessage != "also the charger is missing" {
		t.Errorf("last_message = %q", tk.LastMessage)
	}
}

func TestOpenOrAppendWithoutOrderAlwaysCreates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "", "")
	id1, _, err := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, IssueType: "OTHER", Text: "one"})
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}
	id2, created, err := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, IssueType: "OTHER", Text: "two"})
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}
	if !created || id1 == id2 {
		t.Errorf("orderless reports must open fresh tickets: ids %d, %d created=%v", id1, id2, created)
	}
}

func TestOpenOrAppendSkipsClosedTickets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "cy@example.com", "")
	id1, _, err := s.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: cust, OrderID: "ORDL200", IssueType: "WRONG_ITEM", Text: "got the blue one",
	})
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}
	if err := s.UpdateTicketStatus(ctx, id1, store.TicketClosed); err != nil {
		t.Fatalf("UpdateTicketStatus: %v", err)
	}

	id2, created, err := s.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: cust, OrderID: "ORDL200", IssueType: "WRONG_ITEM", Text: "still the wrong one",
	})
	if err != nil {
		t.Fatalf("OpenOrAppend after close: %v", err)
	}
	if !created || id2 == id1 {
		t.Errorf("closed tickets must not be reused: ids %d, %d created=%v", id1, id2, created)
	}
}

func TestOpenOrAppendIsolatesCustomers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, _ := s.GetOrCreateCustomer(ctx, "d1@example.com", "")
	c2, _ := s.GetOrCreateCustomer(ctx, "d2@example.com", "")

	id1, _, err := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: c1, OrderID: "ORDL300", IssueType: "OTHER", Text: "x"})
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}
	id2, created, err := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: c2, OrderID: "ORDL300", IssueType: "OTHER", Text: "y"})
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}
	if !created || id1 == id2 {
		t.Errorf("different customers must get separate tickets for the same order")
	}
}

func TestGetTicketDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "", "")
	id, _, err := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, Text: "hello"})
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}

	tk, err := s.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if tk.IssueType != "OTHER" {
		t.Errorf("issue_type = %q, want OTHER", tk.IssueType)
	}
	if tk.Status != store.TicketOpen {
		t.Errorf("status = %q, want open", tk.Status)
	}
	if tk.Source != "chat" || tk.Priority != "P2" {
		t.Errorf("defaults: source=%q priority=%q, want chat/P2", tk.Source, tk.Priority)
	}
	if tk.CreatedUTC == "" || tk.UpdatedUTC == "" {
		t.Error("timestamps should be set")
	}

	if _, err := s.GetTicket(ctx, 424242); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing ticket: err = %v, want ErrNotFound", err)
	}
}

func TestAppendMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "", "")
	id, _, _ := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, Text: "first"})

	if err := s.AppendMessage(ctx, id, "assistant", "we are on it"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, _ := s.TicketMessages(ctx, id)
	if len(msgs) != 2 || msgs[1].Role != "assistant" {
		t.Fatalf("thread = %+v", msgs)
	}
	tk, _ := s.GetTicket(ctx, id)
	if tk.LastMessage != "we are on it" {
		t.Errorf("last_message = %q", tk.LastMessage)
	}

	if err := s.AppendMessage(ctx, 999999, "user", "void"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("append to missing ticket: err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTicketStatusAndPriority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "", "")
	id, _, _ := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, Text: "x"})

	if err := s.UpdateTicketStatus(ctx, id, store.TicketInProgress); err != nil {
		t.Fatalf("UpdateTicketStatus: %v", err)
	}
	if err := s.SetTicketPriority(ctx, id, "P0"); err != nil {
		t.Fatalf("SetTicketPriority: %v", err)
	}

	tk, _ := s.GetTicket(ctx, id)
	if tk.Status != store.TicketInProgress || tk.Priority != "P0" {
		t.Errorf("ticket = status %q priority %q", tk.Status, tk.Priority)
	}

	if err := s.UpdateTicketStatus(ctx, 777777, store.TicketClosed); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing ticket: err = %v, want ErrNotFound", err)
	}
}

func TestListTicketsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "", "")
	id1, _, _ := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, Text: "a"})
	s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, Text: "b", Source: "email"})
	s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, Text: "c"})
	s.UpdateTicketStatus(ctx, id1, store.TicketClosed)

	open, err := s.ListTickets(ctx, store.TicketFilter{Status: store.TicketOpen})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("open tickets = %d, want 2", len(open))
	}

	email, err := s.ListTickets(ctx, store.TicketFilter{Source: "email"})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(email) != 1 || email[0].Source != "email" {
		t.Errorf("email tickets = %+v", email)
	}

	limited, err := s.ListTickets(ctx, store.TicketFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited list = %d rows, want 1", len(limited))
	}
	// Newest first.
	all, _ := s.ListTickets(ctx, store.TicketFilter{})
	if len(all) != 3 || all[0].ID < all[1].ID {
		t.Errorf("expected newest-first ordering, got %+v", all)
	}
}

func TestMailIntakeMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "ed@example.com", "")
	id, _, err := s.OpenOrAppend(ctx, store.TicketIntake{
		CustomerID: cust,
		OrderID:    "ORDL400",
		IssueType:  "PAYMENT_ISSUES",
		Text:       "charged twice",
		Source:     "email",
		Priority:   "P1",
		Mail: &store.MailMeta{
			MessageID:  "msg-123",
			From:       "ed@example.com",
			Subject:    "charged twice!",
			FetchedUTC: "2026-08-24 09:00:00",
			WasUnread:  true,
		},
	})
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}

	tk, err := s.GetTicket(ctx, id)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if tk.MailMessageID != "msg-123" || tk.EmailFrom != "ed@example.com" ||
		tk.EmailSubject != "charged twice!" || !tk.EmailWasUnread {
		t.Errorf("mail metadata lost: %+v", tk)
	}

	got, found, err := s.FindTicketByMailMessageID(ctx, "msg-123")
	if err != nil || !found || got != id {
		t.Errorf("FindTicketByMailMessageID = %d %v %v", got, found, err)
	}
	if _, found, _ := s.FindTicketByMailMessageID(ctx, ""); found {
		t.Error("empty message id must not match")
	}

	if err := s.MarkAckSent(ctx, id, "2026-08-24 09:01:00"); err != nil {
		t.Fatalf("MarkAckSent: %v", err)
	}
	tk, _ = s.GetTicket(ctx, id)
	if tk.EmailAckSentUTC != "2026-08-24 09:01:00" {
		t.Errorf("ack timestamp = %q", tk.EmailAckSentUTC)
	}

	has, err := s.HasTicketMessage(ctx, id, "charged twice")
	if err != nil || !has {
		t.Errorf("HasTicketMessage(existing) = %v %v", has, err)
	}
	has, err = s.HasTicketMessage(ctx, id, "never sent")
	if err != nil || has {
		t.Errorf("HasTicketMessage(absent) = %v %v", has, err)
	}
}

// --- Orders ---

func TestOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertOrder(ctx, "ORDL500", "SHIPPED", "12 Hill Road"); err != nil {
		t.Fatalf("UpsertOrder: %v", err)
	}

	status, found, err := s.GetOrderStatus(ctx, "ORDL500")
	if err != nil || !found || status != "SHIPPED" {
		t.Errorf("GetOrderStatus = %q %v %v", status, found, err)
	}

	if err := s.UpsertOrder(ctx, "ORDL500", "DELIVERED", ""); err != nil {
		t.Fatalf("UpsertOrder update: %v", err)
	}
	status, _, _ = s.GetOrderStatus(ctx, "ORDL500")
	if status != "DELIVERED" {
		t.Errorf("status after update = %q", status)
	}

	if _, found, err := s.GetOrderStatus(ctx, "ORDL999"); err != nil || found {
		t.Errorf("unknown order: found=%v err=%v", found, err)
	}

	orders, err := s.ListOrders(ctx)
	if err != nil || len(orders) != 1 {
		t.Errorf("ListOrders = %d rows, err %v", len(orders), err)
	}
}

// --- FAQs ---

func TestUpsertFAQ(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertFAQ(ctx, "return policy", "30 days.", "return, exchange")
	if err != nil {
		t.Fatalf("UpsertFAQ: %v", err)
	}
	id2, err := s.UpsertFAQ(ctx, "return policy", "30 days, unused items only.", "return")
	if err != nil {
		t.Fatalf("UpsertFAQ update: %v", err)
	}
	if id1 != id2 {
		t.Errorf("upsert should keep the row id: %d vs %d", id1, id2)
	}

	faqs, err := s.ListFAQs(ctx)
	if err != nil {
		t.Fatalf("ListFAQs: %v", err)
	}
	if len(faqs) != 1 {
		t.Fatalf("faq count = %d, want 1", len(faqs))
	}
	if faqs[0].Answer != "30 days, unused items only." || faqs[0].Keywords != "return" {
		t.Errorf("faq = %+v", faqs[0])
	}
}

// --- Manuals ---

func TestManuals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	md := "## Technical Specs\nAX1800, dual band."
	id1, err := s.UpsertManual(ctx, "Wireless Router AX1800", "Tech Specs", md, `{"band":"dual"}`)
	if err != nil {
		t.Fatalf("UpsertManual: %v", err)
	}

	got, found, err := s.GetManual(ctx, "wireless-router ax1800", "tech specs")
	if err != nil || !found || got != md {
		t.Errorf("GetManual = %q %v %v", got, found, err)
	}

	// Fuzzy: all tokens in order.
	got, found, err = s.GetManualFuzzy(ctx, "Router AX1800", "tech_specs")
	if err != nil || !found || got != md {
		t.Errorf("fuzzy by tokens = %q %v %v", got, found, err)
	}

	// Fuzzy: first and last token bridging extra words.
	got, found, err = s.GetManualFuzzy(ctx, "Wireless Home Mesh AX1800", "tech_specs")
	if err != nil || !found || got != md {
		t.Errorf("fuzzy by first/last = %q %v %v", got, found, err)
	}

	if _, found, _ := s.GetManualFuzzy(ctx, "Espresso Machine", "tech_specs"); found {
		t.Error("unrelated product must not match")
	}

	id2, err := s.UpsertManual(ctx, "Wireless Router AX1800", "Tech Specs", md+"\nWiFi 6.", "")
	if err != nil {
		t.Fatalf("UpsertManual update: %v", err)
	}
	if id1 != id2 {
		t.Errorf("upsert should keep the row id: %d vs %d", id1, id2)
	}
}

// --- Reports ---

func TestReportSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "rep@example.com", "")
	s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, OrderID: "ORDL600", IssueType: "DEFECTIVE_ITEM", Text: "a"})
	id2, _, _ := s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, IssueType: "PAYMENT_ISSUES", Text: "b"})
	s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, IssueType: "OTHER", Text: "c", Source: "email", Priority: "P1"})
	s.UpdateTicketStatus(ctx, id2, store.TicketClosed)

	sum, err := s.ReportSummary(ctx, wideFrom, wideTo)
	if err != nil {
		t.Fatalf("ReportSummary: %v", err)
	}
	if sum.Total != 3 {
		t.Errorf("total = %d, want 3", sum.Total)
	}

	statuses := map[string]int64{}
	for _, r := range sum.ByStatus {
		statuses[r.Status] = r.Count
	}
	if statuses[store.TicketOpen] != 2 || statuses[store.TicketClosed] != 1 {
		t.Errorf("by_status = %v", statuses)
	}

	issues := map[string]int64{}
	for _, r := range sum.ByIssueType {
		issues[r.IssueType] = r.Count
	}
	if issues["DEFECTIVE_ITEM"] != 1 || issues["PAYMENT_ISSUES"] != 1 || issues["OTHER"] != 1 {
		t.Errorf("by_issue_type = %v", issues)
	}

	if len(sum.CreatedPerDay) != 1 || sum.CreatedPerDay[0].Count != 3 {
		t.Errorf("created_per_day = %+v", sum.CreatedPerDay)
	}
	if sum.AvgResolutionHours == nil {
		t.Error("avg_resolution_hours should be set once a ticket closed")
	}
	if len(sum.OpenAging) != 1 || sum.OpenAging[0].Bucket != "<24h" || sum.OpenAging[0].Count != 2 {
		t.Errorf("open_aging = %+v", sum.OpenAging)
	}
}

func TestFilteredReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cust, _ := s.GetOrCreateCustomer(ctx, "flt@example.com", "")
	other, _ := s.GetOrCreateCustomer(ctx, "other@example.com", "")
	s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, IssueType: "OTHER", Text: "a"})
	s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: cust, IssueType: "PAYMENT_ISSUES", Text: "b", Source: "email", Priority: "P1"})
	s.OpenOrAppend(ctx, store.TicketIntake{CustomerID: other, IssueType: "OTHER", Text: "c"})

	byChannel, err := s.FilteredSummary(ctx, wideFrom, wideTo, store.ReportFilter{Channel: "email"})
	if err != nil {
		t.Fatalf("FilteredSummary: %v", err)
	}
	if byChannel.Total != 1 {
		t.Errorf("email channel total = %d, want 1", byChannel.Total)
	}

	byCustomer, err := s.FilteredSummary(ctx, wideFrom, wideTo, store.ReportFilter{CustomerEmail: "flt@example.com"})
	if err != nil {
		t.Fatalf("FilteredSummary by customer: %v", err)
	}
	if byCustomer.Total != 2 {
		t.Errorf("customer total = %d, want 2", byCustomer.Total)
	}

	prio, err := s.PriorityBreakdown(ctx, wideFrom, wideTo, store.ReportFilter{})
	if err != nil {
		t.Fatalf("PriorityBreakdown: %v", err)
	}
	prios := map[string]int64{}
	for _, r := range prio {
		prios[r.Priority] = r.Count
	}
	if prios["P2"] != 2 || prios["P1"] != 1 {
		t.Errorf("priorities = %v", prios)
	}

	channels, err := s.ChannelBreakdown(ctx, wideFrom, wideTo, store.ReportFilter{})
	if err != nil {
		t.Fatalf("ChannelBreakdown: %v", err)
	}
	chans := map[string]int64{}
	for _, r := range channels {
		chans[r.Channel] = r.Count
	}
	if chans["chat"] != 2 || chans["email"] != 1 {
		t.Errorf("channels = %v", chans)
	}

	days, err := s.DailyCounts(ctx, wideFrom, wideTo, store.ReportFilter{})
	if err != nil || len(days) != 1 || days[0].Count != 3 {
		t.Errorf("daily = %+v err %v", days, err)
	}

	buckets, err := s.AgingBuckets(ctx, wideFrom, wideTo, store.ReportFilter{})
	if err != nil || len(buckets) != 1 || buckets[0].Bucket != "0-24h" {
		t.Errorf("aging = %+v err %v", buckets, err)
	}

	oldest, err := s.OldestOpen(ctx, wideFrom, wideTo, store.ReportFilter{}, 2)
	if err != nil {
		t.Fatalf("OldestOpen: %v", err)
	}
	if len(oldest) != 2 {
		t.Errorf("oldest open = %d rows, want 2", len(oldest))
	}
}
