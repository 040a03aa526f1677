package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Defaults for the store identity used in welcome drafts.
const (
	DefaultBrand = "Cassie"
	DefaultHours = "Mon-Fri 9:00-17:00"
)

// Capabilities toggles the individual assists. A disabled capability makes
// the corresponding Advisor method return its canned result immediately,
// without touching the provider.
type Capabilities struct {
	Classify bool
	Rewrite  bool
	Welcome  bool
	Manuals  bool
}

// AllCapabilities enables every assist.
func AllCapabilities() Capabilities {
	return Capabilities{Classify: true, Rewrite: true, Welcome: true, Manuals: true}
}

// Options configure the Advisor wrapper.
type Options struct {
	// Brand and Hours feed the welcome drafts and their canned fallbacks.
	// Empty values default to DefaultBrand and DefaultHours.
	Brand string
	Hours string

	// RateLimit caps classification calls per session per window.
	// Zero values default to DefaultRateLimit per minute.
	RateLimit       int
	RateLimitWindow time.Duration

	// Capabilities selects which assists run. The zero value disables all
	// of them; use AllCapabilities() for the usual setup.
	Capabilities Capabilities
}

// Advisor wraps a Provider with output validation and graceful degradation.
//
// It adds three layers on top of the raw LLM output:
//  1. Never-fail semantics: every method returns a usable result. Provider
//     errors are logged and replaced with canned fallbacks, so a broken or
//     absent LLM can never break a conversation.
//  2. Output sanitisation: classifications with unknown intent labels are
//     zeroed, confidences are clamped to [0,1], and generated manuals that
//     lack the required sections are replaced with the skeleton.
//  3. Per-session rate limiting on the classification hot path.
type Advisor struct {
	provider Provider
	limiter  *RateLimiter
	caps     Capabilities
	brand    string
	hours    string
	enabled  bool
}

// NewAdvisor returns an Advisor backed by provider. A nil provider behaves
// as Disabled().
func NewAdvisor(provider Provider, opts Options) *Advisor {
	if provider == nil {
		provider = Disabled()
	}
	_, isNoop := provider.(noopProvider)
	if opts.Brand == "" {
		opts.Brand = DefaultBrand
	}
	if opts.Hours == "" {
		opts.Hours = DefaultHours
	}
	return &Advisor{
		provider: provider,
		limiter:  NewRateLimiter(opts.RateLimit, opts.RateLimitWindow),
		caps:     opts.Capabilities,
		brand:    opts.Brand,
		hours:    opts.Hours,
		enabled:  !isNoop,
	}
}

// Enabled reports whether a real provider is configured.
func (a *Advisor) Enabled() bool {
	return a.enabled
}

// zeroClassification is the "ignore me" result: fallback intent, zero
// confidence. The engine's thresholds guarantee it is never acted on.
func zeroClassification() Classification {
	return Classification{Intent: IntentFallback}
}

// Classify returns a sanitised second opinion for text, or a zero
// classification when the advisor is off, rate-limited, or failing.
func (a *Advisor) Classify(ctx context.Context, sessionID, text string) Classification {
	if !a.enabled || !a.caps.Classify {
		return zeroClassification()
	}
	if !a.limiter.Allow(sessionID) {
		slog.Debug("advisor rate limit hit", "session_id", sessionID)
		return zeroClassification()
	}

	resp, err := a.provider.Classify(ctx, text)
	if err != nil {
		slog.Warn("advisor classify failed", "error", err)
		return zeroClassification()
	}
	return sanitiseClassification(*resp)
}

// sanitiseClassification enforces the output contract on a raw
// classification: unknown intents are zeroed and the confidence is clamped
// to [0,1].
func sanitiseClassification(c Classification) Classification {
	switch c.Intent {
	case IntentDefect, IntentWrongItem, IntentMissingItem, IntentFAQ, IntentHuman, IntentBye:
		// usable proposal
	default:
		return zeroClassification()
	}

	if math.IsNaN(c.Confidence) || c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	c.OrderID = strings.TrimSpace(c.OrderID)
	c.IssueLabel = strings.TrimSpace(c.IssueLabel)
	return c
}

// Rewrite returns baseAnswer rephrased by the model, or baseAnswer itself
// when the advisor is off or the call fails. Facts never change either way.
func (a *Advisor) Rewrite(ctx context.Context, userText, baseAnswer string) string {
	if !a.enabled || !a.caps.Rewrite {
		return baseAnswer
	}
	out, err := a.provider.Rewrite(ctx, userText, baseAnswer)
	if err != nil {
		slog.Debug("advisor rewrite failed", "error", err)
		return baseAnswer
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return baseAnswer
	}
	return out
}

// Welcome returns a greeting for the configured brand. When the advisor is
// off it returns the full canned welcome; when a live call fails it returns
// a shorter one.
func (a *Advisor) Welcome(ctx context.Context) string {
	if !a.enabled || !a.caps.Welcome {
		return fmt.Sprintf("Hey there! I'm %s. I can help with orders, returns/exchanges, delivery & tracking, "+
			"payments and invoices. If it's about a specific order, please share your Order ID (e.g., ORDL12345). "+
			"We're around %s. How can I help today?", a.brand, a.hours)
	}

	out, err := a.provider.Welcome(ctx, a.brand, a.hours)
	if err == nil {
		out = strings.TrimSpace(out)
	}
	if err != nil || out == "" {
		if err != nil {
			slog.Debug("advisor welcome failed", "error", err)
		}
		return fmt.Sprintf("Hi! I'm %s. I can help with orders, returns, delivery, payments, and more. "+
			"If it's about a specific order, share your Order ID (ORDL...).", a.brand)
	}
	return out
}

// GenerateManual returns a Markdown user guide for product. The result is
// guaranteed to contain every section heading; a generation that misses one
// is replaced with the skeleton.
func (a *Advisor) GenerateManual(ctx context.Context, product string, facts map[string]any) string {
	if !a.enabled || !a.caps.Manuals {
		return FallbackManual(product)
	}
	out, err := a.provider.GenerateManual(ctx, product, facts)
	if err != nil {
		slog.Warn("advisor manual generation failed", "product", product, "error", err)
		return FallbackManual(product)
	}
	out = strings.TrimSpace(out)
	if out == "" || !hasAllSections(out) {
		return FallbackManual(product)
	}
	return out
}

// RouteManual maps a product-help query to a manual section, or nil when no
// confident route exists. Callers fall back to keyword routing on nil.
func (a *Advisor) RouteManual(ctx context.Context, text string) *Route {
	if !a.enabled || !a.caps.Manuals {
		return nil
	}
	r, err := a.provider.RouteManual(ctx, text)
	if err != nil {
		slog.Debug("advisor manual routing failed", "error", err)
		return nil
	}
	return r
}

// hasAllSections reports whether md carries every required manual heading.
func hasAllSections(md string) bool {
	for _, h := range sectionHeadings {
		if !strings.Contains(md, "## "+h) {
			return false
		}
	}
	return true
}
