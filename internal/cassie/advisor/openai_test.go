package advisor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cassiedesk/cassie/internal/cassie/advisor"
)

// buildOAIResponse builds a minimal OpenAI-style response body whose single
// choice message has the given content string.
func buildOAIResponse(content string) []byte {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type choice struct {
		Message      msg    `json:"message"`
		FinishReason string `json:"finish_reason"`
	}
	body := struct {
		Choices []choice `json:"choices"`
	}{
		Choices: []choice{{
			Message:      msg{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	}
	data, _ := json.Marshal(body)
	return data
}

func newTestProvider(srv *httptest.Server) advisor.Provider {
	return advisor.New(advisor.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
}

func TestOpenAIClassify(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Write(buildOAIResponse(`{"intent":"defect","order_id":"ORDL777","issue_label":"defective_item","confidence":0.92}`))
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	c, err := p.Classify(context.Background(), "the blender arrived broken")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if c.Intent != advisor.IntentDefect {
		t.Errorf("intent: got %q, want %q", c.Intent, advisor.IntentDefect)
	}
	if c.OrderID != "ORDL777" {
		t.Errorf("order_id: got %q, want ORDL777", c.OrderID)
	}
	if c.IssueLabel != "defective_item" {
		t.Errorf("issue_label: got %q, want defective_item", c.IssueLabel)
	}
	if c.Confidence != 0.92 {
		t.Errorf("confidence: got %v, want 0.92", c.Confidence)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization header: got %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("request path: got %q", gotPath)
	}
	if rf, ok := gotReq["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
		t.Errorf("request did not ask for JSON mode: %v", gotReq["response_format"])
	}
	if temp, ok := gotReq["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("classification temperature: got %v, want 0", gotReq["temperature"])
	}
}

func TestOpenAIClassifySalvagesWrappedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "Here is the classification:\n```json\n{\"intent\":\"faq\",\"order_id\":null,\"issue_label\":\"return_policy\",\"confidence\":0.7}\n```"
		w.Write(buildOAIResponse(content))
	}))
	defer srv.Close()

	c, err := newTestProvider(srv).Classify(context.Background(), "can I return shoes")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Intent != advisor.IntentFAQ || c.OrderID != "" || c.Confidence != 0.7 {
		t.Errorf("got %+v", c)
	}
}

func TestOpenAIClassifyMalformedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buildOAIResponse("I think the customer wants a refund."))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).Classify(context.Background(), "refund please")
	if !errors.Is(err, advisor.ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestOpenAIClassifySchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buildOAIResponse(`{"intent":"buy_again","confidence":0.9}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).Classify(context.Background(), "hello")
	if !errors.Is(err, advisor.ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput for out-of-enum intent", err)
	}
}

func TestOpenAIClassifyConfidenceOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buildOAIResponse(`{"intent":"defect","confidence":1.4}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).Classify(context.Background(), "hello")
	if !errors.Is(err, advisor.ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput for confidence > 1", err)
	}
}

func TestOpenAIRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).Classify(context.Background(), "hello")
	if !errors.Is(err, advisor.ErrRateLimit) {
		t.Fatalf("err = %v, want ErrRateLimit", err)
	}
}

func TestOpenAIAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).Classify(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("err = %v, want API error message surfaced", err)
	}
}

func TestOpenAIRewriteSendsBothTexts(t *testing.T) {
	var userContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		for _, m := range req.Messages {
			if m.Role == "user" {
				userContent = m.Content
			}
		}
		w.Write(buildOAIResponse("Here is the friendly version."))
	}))
	defer srv.Close()

	out, err := newTestProvider(srv).Rewrite(context.Background(), "where is my refund", "Refunds take 5-7 business days.")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if out != "Here is the friendly version." {
		t.Errorf("Rewrite = %q", out)
	}
	if !strings.Contains(userContent, "user_text:\nwhere is my refund") ||
		!strings.Contains(userContent, "base_answer:\nRefunds take 5-7 business days.") {
		t.Errorf("user message missing sections: %q", userContent)
	}
}

func TestOpenAIWelcomePassesBrandAndHours(t *testing.T) {
	var userContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		for _, m := range req.Messages {
			if m.Role == "user" {
				userContent = m.Content
			}
		}
		w.Write(buildOAIResponse("Welcome aboard!"))
	}))
	defer srv.Close()

	if _, err := newTestProvider(srv).Welcome(context.Background(), "Acme", "Mon-Sat 8:00-20:00"); err != nil {
		t.Fatalf("Welcome: %v", err)
	}
	if userContent != "Brand: Acme. Hours: Mon-Sat 8:00-20:00." {
		t.Errorf("user message = %q", userContent)
	}
}

func TestOpenAIRouteManualBlanksUnknownSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buildOAIResponse(`{"section":"user_guide","product":"kettle","confidence":0.6}`))
	}))
	defer srv.Close()

	r, err := newTestProvider(srv).RouteManual(context.Background(), "how do I use the kettle")
	if err != nil {
		t.Fatalf("RouteManual: %v", err)
	}
	if r.Section != "" {
		t.Errorf("section: got %q, want empty for unknown key", r.Section)
	}
	if r.Product != "kettle" {
		t.Errorf("product: got %q, want kettle", r.Product)
	}
}

func TestOpenAIGenerateManualSendsFacts(t *testing.T) {
	var userContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		for _, m := range req.Messages {
			if m.Role == "user" {
				userContent = m.Content
			}
		}
		w.Write(buildOAIResponse("## Overview\nA kettle."))
	}))
	defer srv.Close()

	facts := map[string]any{"capacity": "1.7 L"}
	if _, err := newTestProvider(srv).GenerateManual(context.Background(), "Trail Kettle", facts); err != nil {
		t.Fatalf("GenerateManual: %v", err)
	}

	var payload struct {
		Product string         `json:"product"`
		Facts   map[string]any `json:"facts"`
	}
	if err := json.Unmarshal([]byte(userContent), &payload); err != nil {
		t.Fatalf("user message is not JSON: %v (%q)", err, userContent)
	}
	if payload.Product != "Trail Kettle" {
		t.Errorf("product: got %q", payload.Product)
	}
	if payload.Facts["capacity"] != "1.7 L" {
		t.Errorf("facts: got %v", payload.Facts)
	}
}
