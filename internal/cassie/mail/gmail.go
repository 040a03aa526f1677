package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// DefaultPollQuery skips promotional mail so the support queue only sees
// customer messages.
const DefaultPollQuery = "is:unread -category:promotions"

// GmailConfig configures a GmailBox.
type GmailConfig struct {
	// Token is the OAuth bearer token presented on every request.
	Token string

	// From is the support sender address stamped on outgoing replies.
	// Optional; Gmail fills in the account address when empty.
	From string

	// Query selects which messages ListUnread returns. Defaults to
	// DefaultPollQuery.
	Query string

	// BaseURL overrides the Gmail API endpoint, for tests.
	BaseURL string

	// HTTPClient overrides the transport. Defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

// GmailBox talks to the Gmail REST API for the authenticated user ("me").
type GmailBox struct {
	token   string
	from    string
	query   string
	baseURL string
	client  *http.Client
}

var _ Mailbox = (*GmailBox)(nil)

// NewGmailBox builds a Gmail-backed mailbox. The token must carry the
// gmail.modify and gmail.send scopes.
func NewGmailBox(cfg GmailConfig) (*GmailBox, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("mail: gmail token required")
	}
	b := &GmailBox{
		token:   cfg.Token,
		from:    cfg.From,
		query:   cfg.Query,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  cfg.HTTPClient,
	}
	if b.query == "" {
		b.query = DefaultPollQuery
	}
	if b.baseURL == "" {
		b.baseURL = defaultGmailBaseURL
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: 30 * time.Second}
	}
	return b, nil
}

// ListUnread returns ids of messages matching the poll query, up to max.
func (b *GmailBox) ListUnread(ctx context.Context, max int) ([]string, error) {
	if max <= 0 {
		max = 10
	}
	q := url.Values{}
	q.Set("q", b.query)
	q.Set("maxResults", fmt.Sprint(max))

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := b.call(ctx, http.MethodGet, "/users/me/messages?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}
	ids := make([]string, 0, len(out.Messages))
	for _, m := range out.Messages {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// gmailMessage is the slice of the messages.get format=full response we read.
type gmailMessage struct {
	ID       string       `json:"id"`
	LabelIDs []string     `json:"labelIds"`
	Payload  gmailPayload `json:"payload"`
}

type gmailPayload struct {
	MimeType string        `json:"mimeType"`
	Headers  []gmailHeader `json:"headers"`
	Body     gmailBody     `json:"body"`
	Parts    []gmailPayload `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	Data string `json:"data"`
}

// Fetch loads one message in full and flattens it to headers plus the first
// decodable text/plain body part.
func (b *GmailBox) Fetch(ctx context.Context, id string) (*Message, error) {
	var raw gmailMessage
	if err := b.call(ctx, http.MethodGet, "/users/me/messages/"+url.PathEscape(id)+"?format=full", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}

	headers := make(map[string]string, len(raw.Payload.Headers))
	for _, h := range raw.Payload.Headers {
		headers[strings.ToLower(h.Name)] = h.Value
	}
	subject := headers["subject"]
	if subject == "" {
		subject = "(no subject)"
	}
	from := headers["from"]
	if from == "" {
		from = "unknown"
	}

	msg := &Message{
		ID:      raw.ID,
		From:    bareAddress(from),
		Subject: subject,
		Body:    bodyText(raw.Payload),
	}
	if msg.ID == "" {
		msg.ID = id
	}
	for _, label := range raw.LabelIDs {
		if label == "UNREAD" {
			msg.WasUnread = true
		}
	}
	return msg, nil
}

// MarkRead removes the UNREAD label.
func (b *GmailBox) MarkRead(ctx context.Context, id string) error {
	body := map[string]any{"removeLabelIds": []string{"UNREAD"}}
	if err := b.call(ctx, http.MethodPost, "/users/me/messages/"+url.PathEscape(id)+"/modify", body, nil); err != nil {
		return fmt.Errorf("failed to mark message %s read: %w", id, err)
	}
	return nil
}

// Send delivers a plain-text reply via users.messages.send, encoding a
// minimal RFC-822 message as base64url per the API contract.
func (b *GmailBox) Send(ctx context.Context, to, subject, body string) error {
	var rfc strings.Builder
	if b.from != "" {
		fmt.Fprintf(&rfc, "From: %s\r\n", b.from)
	}
	fmt.Fprintf(&rfc, "To: %s\r\n", to)
	fmt.Fprintf(&rfc, "Subject: %s\r\n", subject)
	rfc.WriteString("MIME-Version: 1.0\r\n")
	rfc.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	rfc.WriteString("\r\n")
	rfc.WriteString(body)

	payload := map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(rfc.String())),
	}
	if err := b.call(ctx, http.MethodPost, "/users/me/messages/send", payload, nil); err != nil {
		return fmt.Errorf("failed to send reply to %s: %w", to, err)
	}
	return nil
}

// call issues one authenticated API request, encoding body as JSON when
// non-nil and decoding the response into out when non-nil.
func (b *GmailBox) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gmail api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// bodyText extracts the first decodable text/plain body, walking multipart
// payloads one level deep the way the inbox actually nests them.
func bodyText(p gmailPayload) string {
	if len(p.Parts) > 0 {
		for _, part := range p.Parts {
			if part.MimeType == "text/plain" {
				if text := decodeBody(part.Body.Data); text != "" {
					return text
				}
			}
		}
		for _, part := range p.Parts {
			if len(part.Parts) > 0 {
				if text := bodyText(part); text != "(no body)" {
					return text
				}
			}
		}
		return "(no body)"
	}
	if text := decodeBody(p.Body.Data); text != "" {
		return text
	}
	return "(no body)"
}

// decodeBody decodes Gmail's base64url body data, tolerating both padded and
// unpadded encodings.
func decodeBody(data string) string {
	if data == "" {
		return ""
	}
	if raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(raw)
	}
	if raw, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(raw)
	}
	return ""
}

// bareAddress strips a display name from a From header, "Ana <a@b.com>"
// becoming "a@b.com".
func bareAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		from = from[i+1:]
	}
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(from), ">"))
}
