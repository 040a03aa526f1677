package engine

import (
	"context"
	"strings"

	"github.com/cassiedesk/cassie/internal/cassie/advisor"
	"github.com/cassiedesk/cassie/internal/cassie/faq"
	"github.com/cassiedesk/cassie/internal/cassie/intent"
	"github.com/cassiedesk/cassie/internal/cassie/policy"
	"github.com/cassiedesk/cassie/internal/cassie/session"
)

// step is one rung of the priority ladder: a named guard/handler pair. A
// handler either owns the turn (handled true) or passes to the next rung.
type step struct {
	name   string
	handle func(*Engine, context.Context, *turnState) (bool, error)
}

// steps is the fixed evaluation order. The ordering is load-bearing: a
// message matching several rungs belongs to the first one that fires.
var steps = []step{
	{"closure", (*Engine).handleClosure},
	{"email_capture", (*Engine).handleEmailCapture},
	{"bye", (*Engine).handleBye},
	{"bare_order_id", (*Engine).handleBareOrderID},
	{"pending_offer", (*Engine).handlePendingOffer},
	{"human", (*Engine).handleHuman},
	{"faq", (*Engine).handleFAQ},
	{"order_bridge", (*Engine).handleOrderBridge},
	{"ticketable", (*Engine).handleTicketable},
	{"explicit_ticket", (*Engine).handleExplicitTicket},
	{"greet", (*Engine).handleGreet},
	{"advisor", (*Engine).handleAdvisor},
	{"fallback", (*Engine).handleFallback},
}

// ---------------------------------------------------------------------------
// Conversation lifecycle
// ---------------------------------------------------------------------------

// handleClosure runs when the previous turn asked "anything else I can help
// with?". A decline, a thanks, or silence ends the conversation; anything
// else clears the flag and continues down the ladder, so a fresh request
// after a decline is handled normally. Goodbyes fall through and are caught
// by the bye rung two steps later.
//
// Declines here are matched on the whole message, not with the offer
// vocabulary's substring tokens; those would swallow almost any sentence
// containing the letter n.
func (e *Engine) handleClosure(ctx context.Context, t *turnState) (bool, error) {
	if !t.st.AwaitingClosure {
		return false, nil
	}
	if strings.TrimSpace(t.text) == "" || isClosureDecline(t.text) || isBareThanks(t.text) {
		t.reply = replyFarewell
		t.closed = true
		return true, nil
	}
	t.st.AwaitingClosure = false
	return false, nil
}

// isClosureDecline reports whether the whole message is a short "nothing
// else" reply.
func isClosureDecline(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Trim(s, "!,. ")
	switch s {
	case "no", "n", "nope", "nah", "no thanks", "no thank you",
		"nothing", "nothing else", "that's all", "thats all",
		"i'm good", "im good", "all good", "done":
		return true
	}
	return false
}

// handleEmailCapture consumes every turn while a human-escalation email is
// being collected. Only a parseable address (or the repeat guard giving up)
// gets the session out of this state.
func (e *Engine) handleEmailCapture(ctx context.Context, t *turnState) (bool, error) {
	if !t.st.AwaitingHumanEmail {
		return false, nil
	}
	email := t.email
	if email == "" {
		email = intent.ExtractEmail(t.text)
	}
	if email == "" {
		if t.canned(keyNeedEmail, replyEmailReprompt, replyEmailGiveUp) {
			t.st.AwaitingHumanEmail = false
		}
		return true, nil
	}
	t.st.AwaitingHumanEmail = false
	if err := e.fileHumanTicket(ctx, t, email); err != nil {
		return false, err
	}
	return true, nil
}

// handleBye ends the session on an explicit goodbye or a message that is
// nothing but a thank-you. A thanks buried in a longer message does not
// count; "thanks, what about my refund" keeps the conversation going.
func (e *Engine) handleBye(ctx context.Context, t *turnState) (bool, error) {
	if t.intent.Type != intent.TypeBye && !isBareThanks(t.text) {
		return false, nil
	}
	t.reply = replyFarewell
	t.closed = true
	return true, nil
}

// isBareThanks reports whether the message is essentially just a thank-you.
func isBareThanks(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Trim(s, "!,. ")
	s = strings.TrimPrefix(s, "ok ")
	s = strings.TrimPrefix(s, "okay ")
	switch s {
	case "thanks", "thank you", "thankyou", "thx", "ty", "thanks a lot", "thank you so much":
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Order ids and the pending ticket offer
// ---------------------------------------------------------------------------

// handleBareOrderID owns messages that are a lone order id. With an issue
// already on the table this completes the ticket; without one it asks what
// the order id is about.
func (e *Engine) handleBareOrderID(ctx context.Context, t *turnState) (bool, error) {
	if !intent.IsBareOrderID(t.text) {
		return false, nil
	}
	// Detect already parked the id in session state.
	if t.st.LastIssueCode == "" {
		t.canned(keyAskIssue, replyBridge(t.st.OrderID), replyHumanOffer)
		return true, nil
	}

	code := policy.Normalize(t.st.LastIssueCode)
	firstMsg := issueName(code)
	if t.st.LastIssueText != "" {
		firstMsg = t.st.LastIssueText
	}
	if offer := t.st.PendingOffer; offer != nil && offer.FirstMsg != "" {
		firstMsg = offer.FirstMsg
	}
	ok, err := e.checkOrder(ctx, t, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	t.st.PendingOffer = nil
	if err := e.fileTicket(ctx, t, code, firstMsg); err != nil {
		return false, err
	}
	return true, nil
}

// handlePendingOffer resolves an outstanding "shall I raise a ticket?"
// offer. Declines win over acceptances; an order id anywhere in the message
// counts as acceptance even without a yes.
func (e *Engine) handlePendingOffer(ctx context.Context, t *turnState) (bool, error) {
	offer := t.st.PendingOffer
	if offer == nil {
		return false, nil
	}

	if intent.IsNo(t.text) {
		t.st.PendingOffer = nil
		t.st.AwaitingClosure = true
		t.reply = replyDecline
		return true, nil
	}

	if t.st.OrderID != "" {
		code := policy.Normalize(offer.IssueType)
		ok, err := e.checkOrder(ctx, t, code)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		firstMsg := offer.FirstMsg
		if firstMsg == "" {
			firstMsg = t.text
		}
		t.st.PendingOffer = nil
		if err := e.fileTicket(ctx, t, code, firstMsg); err != nil {
			return false, err
		}
		return true, nil
	}

	if intent.IsYes(t.text) {
		if t.canned(keyOfferNeedOrder, replyOfferNeedOrder, replyHumanOffer) {
			t.st.PendingOffer = nil
		}
		return true, nil
	}

	if t.canned(keyOfferReprompt, replyOfferReprompt, replyHumanOffer) {
		t.st.PendingOffer = nil
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Human escalation
// ---------------------------------------------------------------------------

func (e *Engine) handleHuman(ctx context.Context, t *turnState) (bool, error) {
	if t.intent.Type != intent.TypeHuman {
		return false, nil
	}
	return e.humanAction(ctx, t)
}

// humanAction asks for a contact email when none is known, otherwise files
// the HUMAN_ASSISTANCE ticket straight away. Human escalations skip the
// eligibility policy.
func (e *Engine) humanAction(ctx context.Context, t *turnState) (bool, error) {
	email := t.email
	if email == "" {
		email = intent.ExtractEmail(t.text)
	}
	if email == "" {
		t.st.AwaitingHumanEmail = true
		t.reply = replyAskEmail
		return true, nil
	}
	if err := e.fileHumanTicket(ctx, t, email); err != nil {
		return false, err
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// FAQ answers
// ---------------------------------------------------------------------------

// handleFAQ answers from the knowledge base. The cache is consulted for any
// non-hard-ticketable intent; the built-in answers only for a classified faq
// intent. Every answer ends with a ticket offer so the customer can convert
// the question into a ticket with a single yes.
func (e *Engine) handleFAQ(ctx context.Context, t *turnState) (bool, error) {
	switch t.intent.Type {
	case intent.TypeDefect, intent.TypeWrongItem, intent.TypeMissingItem:
		return false, nil
	}

	var answer, label string
	if e.faqs != nil {
		if m := e.faqs.Match(t.text); m != nil {
			answer, label = m.Answer, m.Label
		}
	}
	if answer == "" {
		if t.intent.Type != intent.TypeFAQ {
			return false, nil
		}
		answer = faq.InlineAnswer(t.text)
		label = intent.InferIssueLabel(t.text)
	}

	e.offerTicket(ctx, t, answer, label)
	return true, nil
}

// faqAction is the advisor-routed variant: the classifier already decided
// this is a question, so the built-in answers are used directly with the
// advisor's issue label.
func (e *Engine) faqAction(ctx context.Context, t *turnState, label string) {
	if label == "" {
		label = intent.InferIssueLabel(t.text)
	}
	e.offerTicket(ctx, t, faq.InlineAnswer(t.text), label)
}

// offerTicket sends an answer followed by the ticket offer, remembering the
// question and its issue label so a later yes or order id can complete the
// ticket.
func (e *Engine) offerTicket(ctx context.Context, t *turnState, answer, label string) {
	answer = e.adv.Rewrite(ctx, t.text, answer)
	t.st.PendingOffer = &session.PendingOffer{IssueType: label, FirstMsg: t.text}
	t.st.LastIssueCode = string(policy.Normalize(label))
	t.st.LastIssueText = t.text
	t.reply = answer + replyOfferSuffix
}

// ---------------------------------------------------------------------------
// Ticket-raising intents
// ---------------------------------------------------------------------------

// handleOrderBridge catches unclassified messages that carry an order id in
// a longer sentence ("my order is ORDL123") and asks what the issue is.
func (e *Engine) handleOrderBridge(ctx context.Context, t *turnState) (bool, error) {
	if t.intent.Type != intent.TypeFallback || t.st.OrderID == "" {
		return false, nil
	}
	if intent.HasIssueHint(t.text) || intent.WantsTicket(t.text) {
		return false, nil
	}
	t.canned(keyAskIssue, replyBridge(t.st.OrderID), replyHumanOffer)
	return true, nil
}

func (e *Engine) handleTicketable(ctx context.Context, t *turnState) (bool, error) {
	var code policy.IssueCode
	switch t.intent.Type {
	case intent.TypeDefect:
		code = policy.DefectiveItem
	case intent.TypeWrongItem:
		code = policy.WrongItem
	case intent.TypeMissingItem:
		code = policy.MissingItem
	default:
		return false, nil
	}
	return e.ticketableAction(ctx, t, code)
}

// ticketableAction runs the hard-ticketable flow for a recognised issue.
// Without an order id it parks the complaint as a pending offer and asks
// for the id; with one it checks eligibility and files the ticket.
func (e *Engine) ticketableAction(ctx context.Context, t *turnState, code policy.IssueCode) (bool, error) {
	t.st.LastIssueCode = string(code)
	t.st.LastIssueText = t.text
	if t.st.OrderID == "" {
		t.st.PendingOffer = &session.PendingOffer{IssueType: string(code), FirstMsg: t.text}
		if t.canned(keyNeedOrder, replyNeedOrder, replyHumanOffer) {
			t.st.PendingOffer = nil
		}
		return true, nil
	}
	ok, err := e.checkOrder(ctx, t, code)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	t.st.PendingOffer = nil
	if err := e.fileTicket(ctx, t, code, t.text); err != nil {
		return false, err
	}
	return true, nil
}

// handleExplicitTicket honours a literal "raise a ticket" request for any
// issue, reusing the last discussed issue code or falling back to OTHER.
// Explicit requests are never policy-checked.
func (e *Engine) handleExplicitTicket(ctx context.Context, t *turnState) (bool, error) {
	if !intent.WantsTicket(t.text) {
		return false, nil
	}
	code := policy.Other
	if t.st.LastIssueCode != "" {
		code = policy.Normalize(t.st.LastIssueCode)
	}
	if t.st.OrderID == "" {
		t.st.LastIssueCode = string(code)
		t.st.LastIssueText = t.text
		t.st.PendingOffer = &session.PendingOffer{IssueType: string(code), FirstMsg: t.text}
		if t.canned(keyNeedOrder, replyNeedOrder, replyHumanOffer) {
			t.st.PendingOffer = nil
		}
		return true, nil
	}
	t.st.PendingOffer = nil
	if err := e.fileTicket(ctx, t, code, t.text); err != nil {
		return false, err
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Greeting and fallbacks
// ---------------------------------------------------------------------------

func (e *Engine) handleGreet(ctx context.Context, t *turnState) (bool, error) {
	if t.intent.Type != intent.TypeGreet {
		return false, nil
	}
	t.reply = e.adv.Welcome(ctx)
	return true, nil
}

// handleAdvisor gives the LLM a shot at messages the keyword ladder could
// not place. Low-confidence or zero classifications fall through; accepted
// ones are dispatched to the same actions the keyword rungs use, so the
// advisor can never do anything the rules cannot.
func (e *Engine) handleAdvisor(ctx context.Context, t *turnState) (bool, error) {
	cls := e.adv.Classify(ctx, t.id, t.text)
	if cls.Zero() {
		return false, nil
	}
	threshold := advisorActThreshold
	if cls.Intent == advisor.IntentFAQ {
		threshold = advisorFAQThreshold
	}
	if cls.Confidence < threshold {
		return false, nil
	}
	if cls.OrderID != "" && t.st.OrderID == "" {
		t.st.OrderID = cls.OrderID
	}

	switch cls.Intent {
	case advisor.IntentDefect:
		return e.ticketableAction(ctx, t, policy.DefectiveItem)
	case advisor.IntentWrongItem:
		return e.ticketableAction(ctx, t, policy.WrongItem)
	case advisor.IntentMissingItem:
		return e.ticketableAction(ctx, t, policy.MissingItem)
	case advisor.IntentHuman:
		return e.humanAction(ctx, t)
	case advisor.IntentBye:
		t.reply = replyFarewell
		t.closed = true
		return true, nil
	case advisor.IntentFAQ:
		e.faqAction(ctx, t, cls.IssueLabel)
		return true, nil
	}
	return false, nil
}

// handleFallback always answers. A message that talks about an order id
// without containing one gets the format hint; everything else gets the
// capability blurb.
func (e *Engine) handleFallback(ctx context.Context, t *turnState) (bool, error) {
	if t.st.OrderID == "" && strings.Contains(t.lower, "order") && strings.Contains(t.lower, "id") {
		t.canned(keyFormatHint, replyFormatHint, replyHumanOffer)
		return true, nil
	}
	t.canned(keyFallback, replyGenericFallback, replyHumanOffer)
	return true, nil
}
