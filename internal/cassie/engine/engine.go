// Package engine implements the dialogue controller: a per-session state
// machine that turns free-text customer messages into replies and ticket
// side effects.
//
// Every turn runs a fixed ladder of guard/handler steps (closure, email
// capture, goodbye, bare order id, pending offer, human escalation, FAQ,
// order bridge, ticketable issues, explicit ticket requests, greeting,
// advisor fallback, generic fallback). The first step that recognises the
// message owns the turn; the ordering is part of the behavioural contract.
// Session facts live in a session.Store, and turns for the same session id
// are serialised on striped locks so concurrent deliveries cannot race the
// state.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"

	"github.com/cassiedesk/cassie/internal/cassie/advisor"
	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/intent"
	"github.com/cassiedesk/cassie/internal/cassie/session"
	"github.com/cassiedesk/cassie/internal/cassie/store"
)

// sessionStripes is the number of per-session mutexes. Turns for the same
// session id always serialise on the same stripe.
const sessionStripes = 64

// Advisor confidence thresholds. Classifications below the threshold for
// their intent are ignored and the turn falls through to the generic
// fallback.
const (
	advisorActThreshold = 0.7
	advisorFAQThreshold = 0.6
)

// TicketGateway is the persistence surface the engine needs: customer
// identity, order lookups, and the atomic open-or-append ticket operation.
// *store.Store satisfies it.
type TicketGateway interface {
	GetOrCreateCustomer(ctx context.Context, email, name string) (int64, error)
	OpenOrAppend(ctx context.Context, in store.TicketIntake) (int64, bool, error)
	GetOrderStatus(ctx context.Context, orderID string) (string, bool, error)
}

var _ TicketGateway = (*store.Store)(nil)

// Turn is the outcome of one processed message.
type Turn struct {
	// Reply is the assistant's answer, always non-empty.
	Reply string `json:"reply"`

	// TicketID is set when this turn created or extended a ticket.
	TicketID int64 `json:"ticket_id,omitempty"`

	// Closed reports that the session ended this turn (goodbye or closure
	// confirmation) and its state was destroyed.
	Closed bool `json:"closed,omitempty"`
}

// Options tune an Engine beyond its collaborators.
type Options struct {
	// Source labels tickets raised by this engine. Defaults to "chat".
	Source string
}

// Engine is the rule-first dialogue controller. Construct with New; the
// zero value is not usable.
type Engine struct {
	sessions session.Store
	gateway  TicketGateway
	faqs     *faq.Cache
	adv      *advisor.Advisor
	source   string

	locks [sessionStripes]sync.Mutex
}

// New assembles the dialogue engine. sessions and gateway are required.
// faqs may be nil (knowledge-base matching is skipped) and adv may be nil
// (the LLM steps degrade to their canned fallbacks).
func New(sessions session.Store, gateway TicketGateway, faqs *faq.Cache, adv *advisor.Advisor, opts Options) *Engine {
	if adv == nil {
		adv = advisor.NewAdvisor(advisor.Disabled(), advisor.Options{})
	}
	source := opts.Source
	if source == "" {
		source = "chat"
	}
	return &Engine{
		sessions: sessions,
		gateway:  gateway,
		faqs:     faqs,
		adv:      adv,
		source:   source,
	}
}

// turnState carries one message's working data down the step ladder.
type turnState struct {
	id    string
	text  string
	lower string
	email string
	name  string

	st     *session.State
	intent intent.Detected

	reply    string
	ticketID int64
	closed   bool
	replyKey string
}

// canned issues a repeat-guarded reply. The third consecutive turn answered
// under the same key sends the escalation variant instead and resets the
// counter; the return value reports whether that escalation fired so the
// caller can also drop whatever pending state kept the loop going.
func (t *turnState) canned(key, text, escalation string) bool {
	t.replyKey = key
	if t.st.LastReplyKey == key && t.st.RepeatCount >= 2 && escalation != "" {
		t.reply = escalation
		t.st.RepeatCount = 0
		return true
	}
	if t.st.LastReplyKey == key {
		t.st.RepeatCount++
	} else {
		t.st.LastReplyKey = key
		t.st.RepeatCount = 1
	}
	t.reply = text
	return false
}

// Process runs one customer message through the step ladder and returns the
// assistant's turn. email and name are optional transport-level contact
// details (a web form field, a verified chat account) and take precedence
// over anything parsed from the text.
//
// Turns for the same session id are serialised; state is loaded before the
// ladder runs and persisted (or destroyed, when the conversation ended)
// after it. Store failures abort the turn without saving partial state.
func (e *Engine) Process(ctx context.Context, sessionID, text, email, name string) (Turn, error) {
	mu := e.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	st, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return Turn{}, fmt.Errorf("failed to load session %q: %w", sessionID, err)
	}

	t := &turnState{
		id:     sessionID,
		text:   text,
		lower:  strings.ToLower(text),
		email:  strings.TrimSpace(email),
		name:   strings.TrimSpace(name),
		st:     st,
		intent: intent.Detect(text),
	}
	// An order id mentioned anywhere sticks to the session for the rest of
	// the conversation.
	if t.intent.OrderID != "" {
		st.OrderID = t.intent.OrderID
	}

	for _, s := range steps {
		handled, err := s.handle(e, ctx, t)
		if err != nil {
			return Turn{}, fmt.Errorf("step %s: %w", s.name, err)
		}
		if handled {
			slog.Debug("turn handled",
				"session_id", sessionID,
				"step", s.name,
				"intent", t.intent.Type,
				"ticket_id", t.ticketID)
			break
		}
	}

	// A dynamic reply (anything not issued through canned) resets the
	// repeat guard.
	if t.replyKey == "" {
		st.LastReplyKey = ""
		st.RepeatCount = 0
	}

	if t.closed {
		if err := e.sessions.Delete(ctx, sessionID); err != nil {
			return Turn{}, fmt.Errorf("failed to destroy session %q: %w", sessionID, err)
		}
	} else if err := e.sessions.Put(ctx, sessionID, st); err != nil {
		return Turn{}, fmt.Errorf("failed to save session %q: %w", sessionID, err)
	}

	return Turn{Reply: t.reply, TicketID: t.ticketID, Closed: t.closed}, nil
}

func (e *Engine) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &e.locks[h.Sum32()%sessionStripes]
}

// customerID resolves the session's customer record, creating an anonymous
// one on first need. The id is cached in session state so every turn of a
// conversation lands on the same customer.
func (e *Engine) customerID(ctx context.Context, t *turnState) (int64, error) {
	if t.st.CustomerID != 0 {
		return t.st.CustomerID, nil
	}
	id, err := e.gateway.GetOrCreateCustomer(ctx, t.email, t.name)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve customer: %w", err)
	}
	t.st.CustomerID = id
	return id, nil
}
