package engine

import (
	"fmt"
	"strings"

	"github.com/cassiedesk/cassie/internal/cassie/policy"
)

// Repeat-guard keys. Consecutive replies issued under the same key escalate
// on the third repeat.
const (
	keyAskIssue       = "ask_issue"
	keyNeedOrder      = "need_order"
	keyOfferNeedOrder = "offer_need_order"
	keyOfferReprompt  = "offer_reprompt"
	keyNeedEmail      = "need_email"
	keyFormatHint     = "format_hint"
	keyFallback       = "fallback"
)

// Canned reply texts. The wording is part of the conversational surface;
// change it and every transcript changes with it.
const (
	replyDecline = "Okay, I won't raise a ticket. Anything else I can help with?"

	replyOfferNeedOrder = "Sure, please share your Order ID (starts with ORDL) to raise the ticket."

	replyOfferReprompt = `If you'd like me to raise a ticket, say "yes" or share your ORDL Order ID.`

	replyNeedOrder = "Please share your Order ID (starts with ORDL), e.g., ORDL12345."

	replyFormatHint = "Share the Order ID in the format: Order ID: ORDL12345"

	replyGenericFallback = "I can answer questions (payment, returns, delivery, tracking, etc.) and raise tickets for any issue. Tell me your issue, and if it's about a specific order, share the Order ID (e.g., ORDL12345)."

	replyHumanOffer = `I might be missing something. Say "talk to a human" and I'll arrange a callback from our support team, or share your ORDL Order ID and I'll keep trying.`

	replyAskEmail = "I can arrange a callback from our support team. Please share your email address so they can reach you."

	replyEmailReprompt = "I still need a valid email address for the callback (e.g., you@example.com)."

	replyEmailGiveUp = "No problem, we can skip the callback. " + replyGenericFallback

	replyFarewell = "Thanks for chatting with us. Take care!"

	replyOfferSuffix = "\n\nWould you like me to raise a support ticket for this? (yes/no)"
)

func replyTicketCreated(id int64, orderID string) string {
	return fmt.Sprintf("Thanks! I've created ticket #%d for Order %s. Our team will reach out with next steps.", id, orderID)
}

func replyTicketAppended(id int64, orderID string) string {
	return fmt.Sprintf("Got it. I've added this to your existing ticket #%d for Order %s.", id, orderID)
}

func replyHumanTicketCreated(id int64, email string) string {
	return fmt.Sprintf("Done! I've raised ticket #%d for human assistance. Our support team will reach out at %s shortly.", id, email)
}

func replyHumanTicketAppended(id int64, email string) string {
	return fmt.Sprintf("I've added your callback request to your open ticket #%d. Our support team will reach out at %s shortly.", id, email)
}

func replyBridge(orderID string) string {
	return fmt.Sprintf("Got your Order ID %s. Tell me the issue (e.g., payment issue, return/refund, delivery/tracking, cancellation, address change, warranty, sizing, or defective/wrong/missing item).", orderID)
}

func replyUnknownOrder(orderID string) string {
	return fmt.Sprintf("I couldn't find Order %s in our system. Please double-check the Order ID (it starts with ORDL) and share it again.", orderID)
}

func replyPolicyRejection(code policy.IssueCode, orderID, status string) string {
	if policy.OrderStatus(status) == policy.StatusCancelled {
		return fmt.Sprintf("Order %s has been cancelled, so I can't raise a %s ticket against it. If you think this is a mistake, say \"talk to a human\" and I'll connect you.",
			orderID, issueName(code))
	}
	return fmt.Sprintf("A %s request is %s, and Order %s is currently %s. If that doesn't sound right, say \"talk to a human\" and I'll connect you.",
		issueName(code), policy.StageHint(code), orderID, statusName(status))
}

// issueName renders an issue code the way a person would say it:
// DEFECTIVE_ITEM becomes "defective item".
func issueName(code policy.IssueCode) string {
	return strings.ReplaceAll(strings.ToLower(string(code)), "_", " ")
}

func statusName(status string) string {
	return strings.ReplaceAll(strings.ToLower(status), "_", " ")
}
