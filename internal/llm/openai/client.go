package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finbrief/finbrief/internal/common"
	"github.com/finbrief/finbrief/internal/llm"
)

// Summarize implements llm.Summarizer using text-only chat/completions with
// a JSON-object response format, validated locally against the schema.
func (c *Client) Summarize(ctx context.Context, req llm.SummaryRequest) (llm.SummaryFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.summarize.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"kind", req.Kind,
		"section", req.Section,
		"company", req.Ticker,
		"text_len", len(req.SourceText),
		"sources", len(req.Sources),
	)

	schema := llm.BuildSummaryJSONSchema()
	sys := llm.BuildSystemPrompt(req)
	user := llm.BuildUserPrompt(req)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.log.Error("llm.summarize.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.SummaryFields{}, nil, httpErr
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.summarize.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.SummaryFields{}, raw, common.Permanent(fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.summarize.no_choices",
			"req_id", rid, "raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.SummaryFields{}, raw, common.Transientf("no choices in openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	rawContent := []byte(content)

	if err := llm.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		c.log.Error("llm.summarize.schema_validation_failed",
			"req_id", rid, "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.SummaryFields{}, rawContent, common.Permanent(fmt.Errorf("schema validation failed: %w", err))
	}

	var out llm.SummaryFields
	if err := json.Unmarshal(rawContent, &out); err != nil {
		c.log.Error("llm.summarize.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.SummaryFields{}, rawContent, common.Permanent(fmt.Errorf("unmarshal fields: %w", err))
	}

	c.log.Info("llm.summarize.ok",
		"req_id", rid,
		"kind", req.Kind,
		"headline", out.Headline,
		"key_points", len(out.KeyPoints),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, common.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.Transient(fmt.Errorf("openai http error: %w", err))
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Rate limits and provider outages are retryable at the step level;
		// auth and request-shape errors are not.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, common.Transientf("openai status %d: %s", resp.StatusCode, buf.String())
		}
		return nil, common.Permanentf("openai status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
