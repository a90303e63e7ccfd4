// Package ai provides the Anthropic-backed document classifier and fact
// extractor. Both share one rate-limited, retrying client so concurrent
// pipeline workers stay inside the API budget.
package ai

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dealdesk-cli/internal/model"
	"github.com/sells-group/dealdesk-cli/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 2048

	maxAttempts      = 3
	initialBackoff   = 500 * time.Millisecond
	requestsPerSec   = 2
	requestBurst     = 4
	maxDocumentChars = 40000
)

// Client wraps the Anthropic API with rate limiting and retry for the
// classification and extraction calls the pipeline makes.
type Client struct {
	api     anthropic.Client
	limiter *rate.Limiter
	model   string
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// WithLimiter overrides the default request rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a Client on top of an Anthropic API client.
func New(api anthropic.Client, opts ...Option) *Client {
	c := &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), requestBurst),
		model:   defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// complete sends one message request, waiting on the limiter first and
// retrying transient failures with doubling backoff.
func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "ai: rate limiter wait")
		}

		resp, err := c.api.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     c.model,
			MaxTokens: defaultMaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(system),
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		if err == nil {
			resp.Usage.LogCost(c.model, "extraction")
			return resp.Text(), nil
		}
		lastErr = err

		zap.L().Warn("api call failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return "", eris.Wrap(ctx.Err(), "ai: context canceled during backoff")
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return "", eris.Wrapf(lastErr, "ai: request failed after %d attempts", maxAttempts)
}

// Classify asks the model to label a document preview with one of the known
// document type tags. It satisfies classify.TextClassifier.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	const system = "You are a real estate document classifier. " +
		"Reply with exactly one of: RENT_ROLL, PROFIT_AND_LOSS, MORTGAGE, TAX, BANK, DEED, INSURANCE, OTHER. " +
		"Reply with the tag only."

	answer, err := c.complete(ctx, system, prompt)
	if err != nil {
		return "", eris.Wrap(err, "ai: classify document")
	}
	return strings.TrimSpace(answer), nil
}

// extractedFact is the JSON shape the extraction prompt asks for. Value is
// kept raw so one malformed value fails only its own entry, not the batch.
type extractedFact struct {
	FactType   string          `json:"fact_type"`
	Label      string          `json:"label"`
	Value      json.RawMessage `json:"value"`
	Unit       string          `json:"unit"`
	Confidence float64         `json:"confidence"`
	SourcePage *int            `json:"source_page"`
	SourceText string          `json:"source_text"`
}

// valueString flattens the raw value whether the model emitted a JSON
// number or a quoted string.
func (e extractedFact) valueString() string {
	var s string
	if json.Unmarshal(e.Value, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(e.Value))
}

// ExtractFacts asks the model for structured facts from the document text.
// A well-formed empty array is a valid result (no facts found); a malformed
// response is an error so callers can distinguish failure from absence. It
// satisfies extract.AIExtractor.
func (c *Client) ExtractFacts(ctx context.Context, docType model.DocumentType, fullText, instructions string) ([]model.CandidateFact, error) {
	system := extractionSystemPrompt(docType, instructions)

	if len(fullText) > maxDocumentChars {
		fullText = fullText[:maxDocumentChars]
	}

	answer, err := c.complete(ctx, system, fullText)
	if err != nil {
		return nil, eris.Wrap(err, "ai: extract facts")
	}

	raw := extractJSONArray(answer)
	if raw == "" {
		return nil, eris.New("ai: response contains no JSON array")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, eris.Wrap(err, "ai: parse extraction response")
	}

	facts := make([]model.CandidateFact, 0, len(entries))
	for _, entry := range entries {
		var e extractedFact
		if err := json.Unmarshal(entry, &e); err != nil {
			zap.L().Warn("skipping malformed fact entry", zap.Error(err))
			continue
		}
		ft, err := model.ParseFactType(e.FactType)
		if err != nil {
			zap.L().Warn("skipping fact with unknown type",
				zap.String("fact_type", e.FactType))
			continue
		}
		value := e.valueString()
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			zap.L().Warn("skipping fact with non-numeric value",
				zap.String("fact_type", e.FactType),
				zap.String("value", value))
			continue
		}
		conf := e.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		facts = append(facts, model.CandidateFact{
			FactType:   ft,
			Label:      e.Label,
			Value:      value,
			Unit:       e.Unit,
			Confidence: conf,
			SourcePage: e.SourcePage,
			SourceText: e.SourceText,
		})
	}
	return facts, nil
}

func extractionSystemPrompt(docType model.DocumentType, instructions string) string {
	var b strings.Builder
	b.WriteString("You extract financial facts from OCR text of real estate documents. ")
	b.WriteString("The document type is ")
	b.WriteString(string(docType))
	b.WriteString(". Return a JSON array of objects with keys fact_type, label, value, unit, confidence, source_page, source_text. ")
	b.WriteString("fact_type must be one of: ")
	types := model.AllFactTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(". value must be a plain number without currency symbols or thousands separators. ")
	b.WriteString("source_page is the 1-indexed page the value appears on and source_text is the exact text it was read from. ")
	b.WriteString("Return [] if the document contains no extractable facts. Return only the JSON array.")
	if instructions != "" {
		b.WriteString("\n\nAdditional instructions: ")
		b.WriteString(instructions)
	}
	return b.String()
}

// extractJSONArray returns the outermost JSON array in s, tolerating prose
// or code fences around it.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
