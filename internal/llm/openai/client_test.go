package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finbrief/finbrief/constants"
	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/llm"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: baseURL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func docRequest() llm.SummaryRequest {
	return llm.SummaryRequest{
		Kind:        constants.SummaryKindDocument,
		CompanyName: "Apple Inc.",
		Ticker:      "AAPL",
		Form:        "10-K",
		FiscalYear:  2024,
		Section:     constants.SectionRiskFactors,
		SourceText:  "The company depends on a concentrated supplier base.",
	}
}

func TestSummarizeOK(t *testing.T) {
	var captured struct {
		Model          string `json:"model"`
		ResponseFormat struct {
			Type string `json:"type"`
		} `json:"response_format"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, chatResponse(`{"headline":"Supplier risk is concentrated","body":"The filing describes heavy reliance on few suppliers.","key_points":["supplier concentration","limited alternatives"]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	fields, raw, err := c.Summarize(context.Background(), docRequest())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if fields.Headline != "Supplier risk is concentrated" {
		t.Errorf("headline = %q", fields.Headline)
	}
	if len(fields.KeyPoints) != 2 {
		t.Errorf("key_points = %v", fields.KeyPoints)
	}
	if len(raw) == 0 {
		t.Error("raw JSON should be returned for storage")
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if captured.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %q, want json_object", captured.ResponseFormat.Type)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %d, want system + user + schema", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Errorf("first message role = %s", captured.Messages[0].Role)
	}
}

func TestSummarizeRejectsSchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Missing key_points.
		fmt.Fprint(w, chatResponse(`{"headline":"x","body":"y"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Summarize(context.Background(), docRequest())
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if common.IsTransient(err) {
		t.Error("schema violation is a permanent failure")
	}
}

func TestSummarizeRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Summarize(context.Background(), docRequest())
	if !common.IsTransient(err) {
		t.Errorf("429 should be retryable, got %v", err)
	}
}

func TestSummarizeAuthErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Summarize(context.Background(), docRequest())
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if common.IsTransient(err) {
		t.Error("401 must not be retried")
	}
}

func TestSummarizeEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Summarize(context.Background(), docRequest())
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
	if !common.IsTransient(err) {
		t.Error("empty choices should be retryable")
	}
}
