// Package advisor provides the optional LLM assist layer for Cassie.
//
// The rule engine always runs first. The advisor is consulted only in
// narrow, well-defined places: as a second opinion when the keyword
// ladder lands on fallback, to polish an already-decided FAQ answer, to
// draft the welcome line, and to generate product manuals. It proposes,
// it never decides: every classification it returns is re-checked
// against the engine's confidence thresholds before anything acts on it.
//
// Invariants:
//   - An advisor failure is never fatal to a conversation. Callers that
//     use the Advisor wrapper always receive a usable (possibly canned)
//     result; the raw Provider is the only layer that surfaces errors.
//   - The advisor sees the user's message text only. It is never shown
//     ticket rows, customer records, or order data.
//   - Rate limiting bounds token spend per session.
package advisor

import (
	"context"
	"errors"
)

// ErrRateLimit is returned by a Provider when the upstream LLM API reports a
// rate-limiting condition (HTTP 429 Too Many Requests). The Advisor wrapper
// treats it like any other failure and falls back to canned behaviour, but
// callers holding a raw Provider can distinguish it for logging.
var ErrRateLimit = errors.New("advisor: upstream rate limit exceeded")

// ErrMalformedOutput is returned by a Provider when the LLM responds with a
// body that cannot be interpreted under the strict JSON contract (parse
// failure or schema violation).
var ErrMalformedOutput = errors.New("advisor: malformed response from LLM")

// ErrDisabled is returned by the no-op Provider used when no API key is
// configured. The Advisor wrapper checks for it to pick the right canned
// fallback.
var ErrDisabled = errors.New("advisor: disabled")

// Classification is the structured second opinion produced for a message
// the keyword ladder could not place.
//
// Intent uses the same label vocabulary as the keyword classifier:
// defect, wrong_item, missing_item, faq, human, bye, fallback.
type Classification struct {
	// Intent is the proposed intent label.
	Intent string `json:"intent"`

	// OrderID is an order identifier spotted in the message, or empty.
	// The engine re-validates the format before trusting it.
	OrderID string `json:"order_id,omitempty"`

	// IssueLabel is a short snake_case issue hint (e.g. payment_issues,
	// address_change), or empty.
	IssueLabel string `json:"issue_label,omitempty"`

	// Confidence is the model's 0..1 certainty. The engine acts on the
	// proposal only above its per-intent thresholds; a zero value always
	// means "ignore me".
	Confidence float64 `json:"confidence,omitempty"`
}

// Zero reports whether the classification carries no usable signal.
func (c Classification) Zero() bool {
	return c.Confidence <= 0 || c.Intent == "" || c.Intent == IntentFallback
}

// Intent labels the advisor may propose. Anything outside this set is
// rejected by the wrapper as malformed.
const (
	IntentDefect      = "defect"
	IntentWrongItem   = "wrong_item"
	IntentMissingItem = "missing_item"
	IntentFAQ         = "faq"
	IntentHuman       = "human"
	IntentBye         = "bye"
	IntentFallback    = "fallback"
)

// Route is the outcome of asking the model which manual section answers a
// product-help query.
type Route struct {
	// Section is one of the manual section keys (see SectionKeys), or
	// empty when the model could not decide.
	Section string `json:"section,omitempty"`

	// Product is the product name extracted from the query, or empty.
	Product string `json:"product,omitempty"`

	// Confidence is the model's 0..1 certainty.
	Confidence float64 `json:"confidence,omitempty"`
}

// Provider is the raw LLM surface. Implementations must be safe for
// concurrent use. Errors are expected and callers must degrade gracefully;
// the Advisor wrapper does this uniformly.
type Provider interface {
	// Classify proposes an intent for a free-form support message.
	Classify(ctx context.Context, text string) (*Classification, error)

	// Rewrite rephrases baseAnswer so it reads warm and concise without
	// inventing facts. userText gives the model tone context.
	Rewrite(ctx context.Context, userText, baseAnswer string) (string, error)

	// Welcome drafts a short greeting for the given brand and support hours.
	Welcome(ctx context.Context, brand, hours string) (string, error)

	// GenerateManual writes a Markdown user guide for a product using only
	// the supplied facts.
	GenerateManual(ctx context.Context, product string, facts map[string]any) (string, error)

	// RouteManual maps a product-help query to a manual section key.
	RouteManual(ctx context.Context, text string) (*Route, error)
}
