package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// Per-task sampling temperatures. Classification must be deterministic;
// the text-producing tasks get progressively more freedom.
const (
	classifyTemperature = 0.0
	routeTemperature    = 0.2
	manualTemperature   = 0.4
	rewriteTemperature  = 0.5
	welcomeTemperature  = 0.6
)

// Config configures the OpenAI-compatible advisor provider.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	// When empty the caller should use Disabled() instead.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Groq, Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use for every task.
	// Defaults to gpt-4o-mini when empty.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// openAIProvider implements Provider using the OpenAI chat completions API.
// Structured tasks (classify, route) request JSON-mode output and are
// additionally schema-validated, because not every compatible endpoint
// honours response_format.
type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by the OpenAI (or compatible) chat API.
// The returned provider is safe for concurrent use.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

var _ Provider = (*openAIProvider)(nil)

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	Temperature    float64      `json:"temperature"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

const classifySystemPrompt = `You classify online-shopping support messages.
Return STRICT JSON with keys:
intent: one of [defect, wrong_item, missing_item, faq, human, bye, fallback]
order_id: string like ORDL12345 or null
issue_label: short snake_case label (e.g., payment_issues, address_change) or null
confidence: number 0..1
Do not include extra text. JSON ONLY.
`

const rewriteSystemPrompt = `You are a helpful ecommerce support assistant.
You will receive:
- user_text: customer's words
- base_answer: factual answer from our KB/policies

Rewrite base_answer so it is warm, clear, and concise. Do NOT invent new facts.
Keep any uncertainty that exists. Return plain text only with a short friendly close.
`

const welcomeSystemPrompt = `Write a short, upbeat welcome for an online store support chat.
Tone: friendly and capable (2-4 short sentences).
Explain you can help with orders, returns/exchanges, delivery/tracking, payments/invoices.
Ask for Order ID (ORDL...) if it's order-specific. No promos. Plain text only.
`

const manualSystemPrompt = `You are a product documentation writer.
Write a USER GUIDE in Markdown for the given product using ONLY the provided facts.
If a fact is unknown, write "Not specified".
Use exactly these H2 sections in this order:

## Overview
## What's in the Box
## Quick Start
## Usage
## Safety
## Care & Maintenance
## Troubleshooting
## Technical Specs
## Warranty & Support
## FAQ

Be concise, actionable, and non-promotional.`

const routeSystemPrompt = `You route a user's product-help query to EXACTLY ONE manual section.

Return STRICT JSON ONLY:
{
  "section": "overview|box|quick_start|usage|troubleshooting|safety|care|tech_specs|warranty|faq" or null,
  "product": "<product name or null>",
  "confidence": 0..1
}

Mapping rules (category-agnostic):
- tech_specs: any factual attributes/specs/details such as materials, fabric,
  composition, size, dimensions, weight, color options, capacity/volume,
  ingredients, allergens, certifications, compatibility, feature lists,
  battery/power rating, SKU/model number, included accessories.
- quick_start: setup, first-use, assembly, installation, pairing, initial charge.
- usage: how to use, directions, application, dosage, cooking instructions.
- troubleshooting: problems, errors, not working, fixes.
- safety: warnings, hazards, choking, flammable, side effects, age restrictions.
- care: washing/cleaning, maintenance, storage, shelf life.
- box: what's in the box / package contents.
- warranty: warranty, support, contact.
- faq: common questions when none of the above clearly fit.

PRODUCT extraction:
- If the text contains "for <PRODUCT>", set product to that substring
  (no quotes, trim punctuation). Otherwise set product to null.

If uncertain, return {"section": null, "product": null, "confidence": 0.0}.
JSON ONLY.
`

// jsonObjectRe salvages the first JSON object from a response whose endpoint
// ignored response_format and wrapped the payload in prose or code fences.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Classify proposes an intent for a free-form support message.
func (p *openAIProvider) Classify(ctx context.Context, text string) (*Classification, error) {
	content, err := p.chat(ctx, chatCall{
		system:      classifySystemPrompt,
		user:        text,
		temperature: classifyTemperature,
		maxTokens:   512,
		jsonMode:    true,
	})
	if err != nil {
		return nil, err
	}

	raw := extractJSON(content)
	if raw == nil {
		return nil, fmt.Errorf("%w: no JSON object in content (raw: %.200s)", ErrMalformedOutput, content)
	}
	if err := validateClassification(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var c Classification
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: decode classification: %v", ErrMalformedOutput, err)
	}
	return &c, nil
}

// Rewrite rephrases baseAnswer using the configured model.
func (p *openAIProvider) Rewrite(ctx context.Context, userText, baseAnswer string) (string, error) {
	user := fmt.Sprintf("user_text:\n%s\n\nbase_answer:\n%s", userText, baseAnswer)
	return p.chat(ctx, chatCall{
		system:      rewriteSystemPrompt,
		user:        user,
		temperature: rewriteTemperature,
		maxTokens:   512,
	})
}

// Welcome drafts a greeting for the given brand and support hours.
func (p *openAIProvider) Welcome(ctx context.Context, brand, hours string) (string, error) {
	user := fmt.Sprintf("Brand: %s. Hours: %s.", brand, hours)
	return p.chat(ctx, chatCall{
		system:      welcomeSystemPrompt,
		user:        user,
		temperature: welcomeTemperature,
		maxTokens:   256,
	})
}

// GenerateManual writes a Markdown user guide for the product. facts must be
// JSON-serialisable; nil is sent as an empty object.
func (p *openAIProvider) GenerateManual(ctx context.Context, product string, facts map[string]any) (string, error) {
	if facts == nil {
		facts = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{"product": product, "facts": facts})
	if err != nil {
		return "", fmt.Errorf("advisor: marshal manual facts: %w", err)
	}
	return p.chat(ctx, chatCall{
		system:      manualSystemPrompt,
		user:        string(payload),
		temperature: manualTemperature,
		maxTokens:   1536,
	})
}

// RouteManual maps a product-help query to a manual section key.
func (p *openAIProvider) RouteManual(ctx context.Context, text string) (*Route, error) {
	content, err := p.chat(ctx, chatCall{
		system:      routeSystemPrompt,
		user:        text,
		temperature: routeTemperature,
		maxTokens:   256,
		jsonMode:    true,
	})
	if err != nil {
		return nil, err
	}

	raw := extractJSON(content)
	if raw == nil {
		return nil, fmt.Errorf("%w: no JSON object in content (raw: %.200s)", ErrMalformedOutput, content)
	}
	var r Route
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: decode route: %v", ErrMalformedOutput, err)
	}
	if !IsSectionKey(r.Section) {
		r.Section = ""
	}
	return &r, nil
}

// chatCall bundles the per-task parameters for a single completion request.
type chatCall struct {
	system      string
	user        string
	temperature float64
	maxTokens   int
	jsonMode    bool
}

// chat performs one chat-completions round trip and returns the content of
// the first choice.
func (p *openAIProvider) chat(ctx context.Context, call chatCall) (string, error) {
	body := oaiRequest{
		Model: p.cfg.Model,
		Messages: []oaiMessage{
			{Role: "system", Content: call.system},
			{Role: "user", Content: call.user},
		},
		Temperature: call.temperature,
		MaxTokens:   call.maxTokens,
	}
	if call.jsonMode {
		body.ResponseFormat = &oaiFormat{Type: "json_object"}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("advisor: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return "", fmt.Errorf("advisor: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("advisor: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("advisor: read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w (HTTP 429)", ErrRateLimit)
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return "", fmt.Errorf("advisor: decode API response: %w", err)
	}

	if oaiResp.Error != nil {
		return "", fmt.Errorf("advisor: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}

	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("advisor: no choices returned (HTTP %d)", resp.StatusCode)
	}

	return oaiResp.Choices[0].Message.Content, nil
}

// extractJSON returns the first JSON object embedded in s, or nil.
func extractJSON(s string) []byte {
	m := jsonObjectRe.FindString(s)
	if m == "" {
		return nil
	}
	return []byte(m)
}
