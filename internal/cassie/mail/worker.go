package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cassiedesk/cassie/common/retry"
	"github.com/cassiedesk/cassie/common/wire"
)

// WorkerConfig configures the poll loop.
type WorkerConfig struct {
	// IngestURL is the server's ingest endpoint, e.g.
	// http://localhost:8080/ingest/message.
	IngestURL string

	// IngestToken is the bearer token for the ingest endpoint. Optional.
	IngestToken string

	// Interval is the poll period. Defaults to 60s.
	Interval time.Duration

	// MaxPerPoll caps how many messages one poll handles. Defaults to 10.
	MaxPerPoll int

	// HTTPClient overrides the ingest transport. Defaults to a 30s-timeout
	// client.
	HTTPClient *http.Client
}

// Worker polls a mailbox, forwards each unread message to the ingest
// endpoint, replies with a tagged acknowledgement, and marks the message
// read. A message is only marked read after it was filed, so a crash
// mid-batch redelivers rather than drops; the server's message-id dedupe
// absorbs the replay.
type Worker struct {
	box    Mailbox
	cfg    WorkerConfig
	client *http.Client
}

// NewWorker builds a worker over box.
func NewWorker(box Mailbox, cfg WorkerConfig) (*Worker, error) {
	if box == nil {
		return nil, fmt.Errorf("mail: mailbox required")
	}
	if cfg.IngestURL == "" {
		return nil, fmt.Errorf("mail: ingest url required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.MaxPerPoll <= 0 {
		cfg.MaxPerPoll = 10
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Worker{box: box, cfg: cfg, client: client}, nil
}

// Run polls until ctx is cancelled. An immediate first poll runs before the
// ticker takes over.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("mail worker started",
		"ingest_url", w.cfg.IngestURL,
		"interval", w.cfg.Interval)

	w.pollOnce(ctx)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("mail worker shutting down")
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

// pollOnce handles one batch. Per-message failures are logged and the
// message is left unread for the next poll.
func (w *Worker) pollOnce(ctx context.Context) {
	ids, err := w.box.ListUnread(ctx, w.cfg.MaxPerPoll)
	if err != nil {
		slog.Warn("mail poll failed", "error", err)
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := w.handle(ctx, id); err != nil {
			slog.Warn("mail message left unread", "message_id", id, "error", err)
		}
	}
}

// handle files one message and acknowledges it.
func (w *Worker) handle(ctx context.Context, id string) error {
	msg, err := w.box.Fetch(ctx, id)
	if err != nil {
		return err
	}

	receipt, err := w.ingest(ctx, &wire.InboundMessage{
		Channel:   "email",
		Email:     msg.From,
		Subject:   msg.Subject,
		Text:      msg.Body,
		MessageID: msg.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to ingest message %s: %w", id, err)
	}

	if receipt.TicketID > 0 {
		subject, body := ackFor(receipt)
		if err := w.box.Send(ctx, msg.From, subject, body); err != nil {
			// The ticket exists; a lost ack is not worth re-filing the
			// message on the next poll.
			slog.Warn("failed to send acknowledgement",
				"ticket_id", receipt.TicketID, "to", msg.From, "error", err)
		}
	}

	if err := w.box.MarkRead(ctx, id); err != nil {
		return err
	}
	slog.Info("mail message filed",
		"message_id", id,
		"ticket_id", receipt.TicketID,
		"created", receipt.Created)
	return nil
}

// ingest posts one message to the server, retrying transient failures with
// backoff.
func (w *Worker) ingest(ctx context.Context, msg *wire.InboundMessage) (*wire.Receipt, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	var receipt wire.Receipt
	err = retry.Do(ctx, retry.DefaultConfig, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.IngestURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if w.cfg.IngestToken != "" {
			req.Header.Set("Authorization", "Bearer "+w.cfg.IngestToken)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("ingest returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return json.NewDecoder(resp.Body).Decode(&receipt)
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ackFor picks the acknowledgement email for a receipt. Subjects carry the
// [Ticket #N] tag so the customer's reply threads back into the ticket.
func ackFor(r *wire.Receipt) (subject, body string) {
	switch {
	case r.Created:
		subject = fmt.Sprintf("[Ticket #%d] We've received your request", r.TicketID)
		orderLine := ""
		if r.OrderID != "" {
			orderLine = " for Order " + r.OrderID
		}
		body = fmt.Sprintf("Hello,\n\nThanks for contacting us. We've created ticket #%d%s.\n"+
			"Our support team will follow up shortly.\n\nRegards,\nSupport", r.TicketID, orderLine)
	case r.OrderBackfilled:
		subject = fmt.Sprintf("[Ticket #%d] Order received", r.TicketID)
		body = fmt.Sprintf("Thanks! We've updated your ticket #%d with Order %s. We'll proceed.",
			r.TicketID, r.OrderID)
	default:
		subject = fmt.Sprintf("[Ticket #%d] Update received", r.TicketID)
		body = "Thanks, we've added your update. Our team will follow up."
	}
	return subject, body
}
