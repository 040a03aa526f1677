// Package intent implements the rule-based message classifier: a fixed
// priority ladder of keyword and pattern checks that turns one customer
// message into a typed intent plus any order id found in the text.
//
// Detection is a pure function of the input text. All keyword matching is
// case-insensitive substring containment except greeting detection, which
// matches whole words. The priority order is load-bearing: a message matching
// several vocabularies is classified by the first rung that fires.
package intent

import (
	"regexp"
	"strings"
)

// Type is the classified purpose of a single customer message.
type Type string

const (
	TypeDefect      Type = "defect"
	TypeWrongItem   Type = "wrong_item"
	TypeMissingItem Type = "missing_item"
	TypeHuman       Type = "human"
	TypeBye         Type = "bye"
	TypeGreet       Type = "greet"
	TypeFAQ         Type = "faq"
	TypeFallback    Type = "fallback"
)

// Detected is the classifier's output for one message. Produced fresh each
// turn and never mutated.
type Detected struct {
	// Type is the winning intent.
	Type Type

	// OrderID is the order token found in the text, case preserved as typed.
	// Empty when the message carries none.
	OrderID string

	// IssueSummary is a short human-readable label for ticketable intents
	// ("Defective item"). Empty for non-ticketable types.
	IssueSummary string
}

// Order ids look like ORDL followed by at least three alphanumerics/dashes.
// The labelled form ("order id: ORDL123") wins over a bare token anywhere in
// the text.
var (
	orderIDRe    = regexp.MustCompile(`(?i)order[ _-]?id[: ]*(ORDL[0-9A-Z-]{3,})`)
	orderTokenRe = regexp.MustCompile(`(?i)\b(ORDL[0-9A-Z-]{3,})\b`)
	bareOrderRe  = regexp.MustCompile(`(?i)^ORDL[0-9A-Z-]{3,}$`)
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

var defectWords = []string{"defect", "defective", "broken", "damage", "damaged"}

var wrongItemPhrases = []string{
	"wrong item", "wrong product", "not what i ordered",
	"received different", "received a different", "different brand",
	"mismatch", "mismatched", "incorrect item", "wrong ",
}

var missingPhrases = []string{
	"missing item", "item missing", "one item missing",
	"not received", "not delivered", "partial delivery",
}

var humanPhrases = []string{
	"talk to a human", "speak to a human", "human agent", "live agent",
	"real person", "customer care", "customer support executive",
	"escalate", "call me",
}

var (
	humanNouns = []string{"human", "agent", "representative"}
	humanLinks = []string{"help", "assist", "support", "talk", "speak", "connect", "call"}
)

var byePhrases = []string{"bye", "goodbye", "end chat", "close chat", "stop", "exit", "quit", "that's all", "thats all"}

var thanksPhrases = []string{"thanks", "thank you", "thx"}

var greetWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "heya": {}, "yo": {},
}

var faqTriggers = []string{
	"return policy", "return", "exchange",
	"refund",
	"delivery time", "shipping",
	"track", "tracking",
	"cancel", "cancellation",
	"address change", "address",
	"cod", "cash on delivery",
	"payment", "payment failed", "failed payment", "money debited", "debited",
	"charged", "double charged", "transaction", "paid",
	"invoice", "gst", "bill", "billing",
	"warranty",
	"size", "fit", "size chart",
	"missing", "not received", "partial",
}

var yesTokens = []string{
	"yes", "y", "yeah", "yep", "sure", "ok", "okay", "please",
	"raise ticket", "open ticket", "create ticket", "register complaint", "register ticket",
}

var noTokens = []string{"no", "n", "nope", "not now", "later", "dont", "don't", "do not"}

var ticketPhrases = []string{
	"raise ticket", "raise a ticket", "open ticket", "open a ticket",
	"create ticket", "create a ticket", "register complaint", "register ticket",
	"file a complaint", "file complaint",
}

var (
	paymentHintWords = []string{"payment", "paid", "debited", "charged", "refund", "transaction", "failed"}
	missingHintWords = []string{"missing", "not received", "not delivered", "partial"}
	issueHintWords   = append(append([]string{"defect", "wrong", "broken", "damage", "damaged"},
		paymentHintWords...), missingHintWords...)
)

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// Detect classifies one message. The ladder runs in fixed priority: defect,
// wrong item, missing item, human escalation, goodbye, greeting, FAQ trigger,
// fallback. Order-id extraction happens regardless of the winning type.
func Detect(text string) Detected {
	t := strings.ToLower(text)
	orderID := ExtractOrderID(text)

	if containsAny(t, defectWords) {
		return Detected{Type: TypeDefect, OrderID: orderID, IssueSummary: "Defective item"}
	}
	if containsAny(t, wrongItemPhrases) {
		return Detected{Type: TypeWrongItem, OrderID: orderID, IssueSummary: "Received wrong item"}
	}
	if isMissing(t) {
		return Detected{Type: TypeMissingItem, OrderID: orderID, IssueSummary: "Missing/partial delivery"}
	}
	if isHuman(t) {
		return Detected{Type: TypeHuman, OrderID: orderID, IssueSummary: "Human assistance"}
	}
	if IsBye(text) {
		return Detected{Type: TypeBye, OrderID: orderID}
	}
	if isGreeting(t) {
		return Detected{Type: TypeGreet, OrderID: orderID}
	}
	if containsAny(t, faqTriggers) {
		return Detected{Type: TypeFAQ, OrderID: orderID}
	}
	return Detected{Type: TypeFallback, OrderID: orderID}
}

// ExtractOrderID returns the order id found in text, or "". The labelled
// "order id: ORDLxxx" form is preferred; failing that, the first bare ORDL
// token anywhere in the text wins. Case is preserved as typed.
func ExtractOrderID(text string) string {
	if m := orderIDRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := orderTokenRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// IsBareOrderID reports whether the trimmed message is exactly an order-id
// token and nothing else.
func IsBareOrderID(text string) bool {
	return bareOrderRe.MatchString(strings.TrimSpace(text))
}

// ExtractEmail returns the first email address in text, or "".
func ExtractEmail(text string) string {
	return emailRe.FindString(text)
}

// IsYes reports whether text reads as accepting a pending offer.
func IsYes(text string) bool {
	return containsAny(strings.ToLower(text), yesTokens)
}

// IsNo reports whether text reads as declining a pending offer.
func IsNo(text string) bool {
	return containsAny(strings.ToLower(text), noTokens)
}

// IsBye reports whether text signals the end of the conversation.
func IsBye(text string) bool {
	return containsAny(strings.ToLower(text), byePhrases)
}

// IsThanks reports whether text is a plain thank-you.
func IsThanks(text string) bool {
	return containsAny(strings.ToLower(text), thanksPhrases)
}

// WantsTicket reports whether text explicitly asks for a ticket to be opened.
func WantsTicket(text string) bool {
	return containsAny(strings.ToLower(text), ticketPhrases)
}

// HasIssueHint reports whether text carries any issue keyword. The bridge
// branch uses this to tell "here is my order id" apart from "here is my order
// id and something is wrong".
func HasIssueHint(text string) bool {
	return containsAny(strings.ToLower(text), issueHintWords)
}

// InferIssueLabel maps free text onto one of the FAQ topic labels, falling
// back to "other". The cascade mirrors the FAQ knowledge base's topics so the
// label can double as a ticket issue type.
func InferIssueLabel(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "payment") || strings.Contains(t, "debited") ||
		strings.Contains(t, "charged") || strings.Contains(t, "transaction"):
		return "payment issues"
	case strings.Contains(t, "refund"):
		return "refund timelines"
	case strings.Contains(t, "return") || strings.Contains(t, "exchange"):
		return "return policy"
	case strings.Contains(t, "delivery") || strings.Contains(t, "shipping"):
		return "delivery time & shipping"
	case strings.Contains(t, "track"):
		return "order tracking"
	case strings.Contains(t, "cancel"):
		return "cancellation"
	case strings.Contains(t, "address"):
		return "address change"
	case strings.Contains(t, "cod") || strings.Contains(t, "cash on delivery"):
		return "cash on delivery"
	case strings.Contains(t, "invoice") || strings.Contains(t, "gst") || strings.Contains(t, "bill"):
		return "invoice / gst"
	case strings.Contains(t, "warranty"):
		return "warranty"
	case strings.Contains(t, "size") || strings.Contains(t, "fit"):
		return "size & fit"
	case strings.Contains(t, "missing") || strings.Contains(t, "not received") ||
		strings.Contains(t, "partial"):
		return "missing / partial delivery"
	case strings.Contains(t, "damaged") || strings.Contains(t, "broken"):
		return "damaged in transit"
	default:
		return "other"
	}
}

func isMissing(t string) bool {
	if containsAny(t, missingPhrases) {
		return true
	}
	return strings.Contains(t, "missing") && strings.Contains(t, "item")
}

func isHuman(t string) bool {
	if containsAny(t, humanPhrases) {
		return true
	}
	return containsAny(t, humanNouns) && containsAny(t, humanLinks)
}

// isGreeting matches whole words only so "hi" does not fire inside "shipping".
func isGreeting(t string) bool {
	for _, w := range wordRe.FindAllString(t, -1) {
		if _, ok := greetWords[w]; ok {
			return true
		}
	}
	return false
}

func containsAny(t string, vocab []string) bool {
	for _, phrase := range vocab {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}
