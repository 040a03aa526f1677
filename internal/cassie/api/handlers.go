package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cassiedesk/cassie/common/wire"
	"github.com/cassiedesk/cassie/internal/cassie/advisor"
	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/reports"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// maxBodyBytes caps request bodies. Manual facts are the largest legitimate
// payload and stay well under this.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readBody decodes the request body into v, rejecting oversized payloads.
func readBody(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "cassie",
		"ok":      true,
		"endpoints": []string{
			"POST /chat",
			"POST /ingest/message",
			"GET /tickets",
			"GET /tickets/{id}",
			"PATCH /tickets/{id}",
			"GET /reports/summary",
			"POST /reports/query",
			"POST /faq/upsert",
			"POST /manual/generate",
			"GET /manual/get",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// chatRequest is one dialogue turn from the web widget or the REPL. With
// ingest set, the message bypasses the dialogue engine and files a ticket
// directly, the way an external channel would.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Ingest    bool   `json:"ingest"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "demo-session"
	}

	if req.Ingest {
		if strings.TrimSpace(req.Email) == "" {
			writeError(w, http.StatusBadRequest, "email is required when ingest is set")
			return
		}
		receipt, err := s.ingest.Process(r.Context(), &wire.InboundMessage{
			Channel: "chat",
			Email:   req.Email,
			Name:    req.Name,
			Text:    req.Text,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to file ticket")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"reply":         receipt.Message,
			"ingest_result": receipt,
		})
		return
	}

	turn, err := s.engine.Process(r.Context(), req.SessionID, req.Text, req.Email, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// ingestRequest is the ingest endpoint's body. It accepts the flat gateway
// envelope and, for web clients, a nested user object whose fields win over
// the flat ones.
type ingestRequest struct {
	wire.InboundMessage
	User struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg := req.InboundMessage
	if req.User.Email != "" {
		msg.Email = req.User.Email
	}
	if req.User.Name != "" {
		msg.Name = req.User.Name
	}
	msg.Channel = strings.ToLower(strings.TrimSpace(msg.Channel))
	if msg.Channel == "" {
		msg.Channel = "external"
	}
	if strings.TrimSpace(msg.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	sender := msg.Email
	if sender == "" {
		sender = msg.Channel
	}
	if !s.limiter.allow(sender) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	// Redelivered messages get the original response back.
	var idemKey string
	if msg.MessageID != "" {
		idemKey = msg.Channel + ":" + msg.MessageID
		if e, ok := s.idem.get(idemKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(e.status)
			w.Write(e.body)
			return
		}
	}

	reply := s.ingest.ComposeReply(msg.Text)

	// Without a sender address there is nobody to attribute a ticket to;
	// answer the message and stop.
	if msg.Email == "" {
		s.respondIngest(w, idemKey, http.StatusOK, map[string]any{
			"reply":  reply,
			"ticket": nil,
		})
		return
	}

	receipt, err := s.ingest.Process(r.Context(), &msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	s.respondIngest(w, idemKey, http.StatusOK, map[string]any{
		"reply":  reply,
		"ticket": receipt,
	})
}

// respondIngest writes the response and records it for redelivery replay.
func (s *Server) respondIngest(w http.ResponseWriter, idemKey string, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	if idemKey != "" {
		s.idem.set(idemKey, status, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
	w.Write([]byte("\n"))
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	f := store.TicketFilter{
		Status: r.URL.Query().Get("status"),
		Source: r.URL.Query().Get("source"),
	}
	if f.Status != "" && !store.IsValidTicketStatus(f.Status) {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(f.Status))
		return
	}
	tickets, err := s.store.ListTickets(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}
	if tickets == nil {
		tickets = []*store.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func ticketID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}
	ticket, err := s.store.GetTicket(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	messages, err := s.store.TicketMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if messages == nil {
		messages = []*store.TicketMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket, "messages": messages})
}

func (s *Server) handlePatchTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := ticketID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !store.IsValidTicketStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "status must be one of open, in_progress, resolved, closed")
		return
	}
	err := s.store.UpdateTicketStatus(r.Context(), id, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update ticket")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"ticket_id": id,
		"status":    req.Status,
	})
}

func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := s.location(q.Get("tz"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rng reports.Range
	from, to := q.Get("from"), q.Get("to")
	switch {
	case from != "" && to != "":
		rng, err = reports.ExplicitRange(from, to, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		rng = reports.PresetRange(q.Get("range"), time.Now())
	}

	summary, err := s.store.ReportSummary(r.Context(), rng.FromUTC, rng.ToUTC)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"range":   rng,
		"summary": summary,
	})
}

func (s *Server) handleReportQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Q  string `json:"q"`
		TZ string `json:"tz"`
	}
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Q) == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	loc, err := s.location(req.TZ)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rng := reports.RangeFromQuery(req.Q, loc, time.Now())
	summary, err := s.store.ReportSummary(r.Context(), rng.FromUTC, rng.ToUTC)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Q,
		"tz":      loc.String(),
		"range":   rng,
		"summary": summary,
	})
}

// faqItem is one entry in an upsert request. Keywords may be a CSV string or
// a JSON list.
type faqItem struct {
	Question string          `json:"question"`
	Answer   string          `json:"answer"`
	Keywords json.RawMessage `json:"keywords"`
}

func (f *faqItem) keywordsCSV() string {
	if len(f.Keywords) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Keywords, &s); err == nil {
		return faq.NormalizeKeywords(faq.ParseKeywords(s))
	}
	var list []string
	if err := json.Unmarshal(f.Keywords, &list); err == nil {
		return faq.NormalizeKeywords(list)
	}
	return ""
}

func (s *Server) handleFAQUpsert(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeFAQItems(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Snapshot the existing questions so inserts and updates can be told
	// apart; the store upsert reports only the row id.
	existing := make(map[string]bool)
	if rows, err := s.store.ListFAQs(r.Context()); err == nil {
		for _, f := range rows {
			existing[f.Question] = true
		}
	}

	var inserted, updated, skipped int
	ids := []int64{}
	for _, item := range raw {
		question := strings.TrimSpace(item.Question)
		answer := strings.TrimSpace(item.Answer)
		if question == "" || answer == "" {
			skipped++
			continue
		}
		id, err := s.store.UpsertFAQ(r.Context(), question, answer, item.keywordsCSV())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to upsert faq")
			return
		}
		if existing[question] {
			updated++
		} else {
			inserted++
			existing[question] = true
		}
		ids = append(ids, id)
	}

	if s.faqs != nil {
		if err := s.faqs.Refresh(r.Context()); err != nil {
			slog.Warn("failed to refresh faq cache", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"inserted": inserted,
		"updated":  updated,
		"skipped":  skipped,
		"ids":      ids,
	})
}

// decodeFAQItems accepts a single entry, a bare list, or {"faqs": [...]}.
func decodeFAQItems(r *http.Request) ([]faqItem, error) {
	var body json.RawMessage
	if err := readBody(r, &body); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	var batch struct {
		FAQs []faqItem `json:"faqs"`
	}
	if err := json.Unmarshal(body, &batch); err == nil && batch.FAQs != nil {
		return batch.FAQs, nil
	}
	var list []faqItem
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var single faqItem
	if err := json.Unmarshal(body, &single); err == nil {
		return []faqItem{single}, nil
	}
	return nil, errors.New("body must be a faq object, a list, or {\"faqs\": [...]}")
}

func (s *Server) handleManualGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Product string         `json:"product"`
		Facts   map[string]any `json:"facts"`
		Section string         `json:"section"`
	}
	if err := readBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Product = strings.TrimSpace(req.Product)
	if req.Product == "" {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}
	if req.Section == "" {
		req.Section = advisor.SectionFull
	}

	full := s.adv.GenerateManual(r.Context(), req.Product, req.Facts)
	markdown := advisor.ExtractSection(full, req.Section)

	factsJSON := ""
	if req.Facts != nil {
		if b, err := json.Marshal(req.Facts); err == nil {
			factsJSON = string(b)
		}
	}
	id, err := s.store.UpsertManual(r.Context(), req.Product, req.Section, markdown, factsJSON)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store manual")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"product":  req.Product,
		"section":  req.Section,
		"markdown": markdown,
		"id":       id,
	})
}

func (s *Server) handleManualGet(w http.ResponseWriter, r *http.Request) {
	product := strings.TrimSpace(r.URL.Query().Get("product"))
	if product == "" {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}
	section := r.URL.Query().Get("section")
	if section == "" {
		section = advisor.SectionFull
	}

	markdown, found, err := s.store.GetManualFuzzy(r.Context(), product, section)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load manual")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no manual for "+strconv.Quote(product))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product":  product,
		"section":  section,
		"markdown": markdown,
	})
}
