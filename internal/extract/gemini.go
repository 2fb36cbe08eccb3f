// Package extract turns free-text land record descriptions into record
// fields using the Gemini generateContent API.
//
// The request carries a response schema built from the dataset's columns so
// the model answers with one JSON object keyed by column id. The answer is
// returned as-is; core.NormaliseExtracted conforms it to the schema.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the public Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gemini-2.5-flash"

	// DefaultTimeout bounds one extraction call.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Config configures a Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client calls the Gemini API. It implements core.FieldExtractor.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates a Client. An empty API key is rejected so callers can leave
// the extractor unconfigured instead.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.ErrExtractorUnavailable
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type responseSchema struct {
	Type       string              `json:"type"`
	Properties map[string]property `json:"properties"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   responseSchema `json:"responseSchema"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

// buildSchema describes one JSON object with a property per column.
func buildSchema(schema []core.ColumnSchema) responseSchema {
	props := make(map[string]property, len(schema))
	for _, col := range schema {
		t := "STRING"
		if col.Type == core.ColumnNumber {
			t = "NUMBER"
		}
		props[col.ID] = property{
			Type:        t,
			Description: "The value for the column: " + col.Name,
		}
	}
	return responseSchema{Type: "OBJECT", Properties: props}
}

func instruction(text string) string {
	return "From the following text, extract the information for each field and return it " +
		"as a JSON object that strictly conforms to the provided schema. Do not include any " +
		"explanations, markdown formatting, or extra text. Only the JSON object is allowed. " +
		fmt.Sprintf("Text: %q", text)
}

// Extract asks the model to fill the fields of schema from text.
func (c *Client) Extract(ctx context.Context, text string, schema []core.ColumnSchema) (map[string]any, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: instruction(text)}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   buildSchema(schema),
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extractor: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	slog.Debug("extractor responded",
		"model", c.model,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("extractor rate limit: %s", msg)
		}
		return nil, fmt.Errorf("extractor status %d: %s", resp.StatusCode, msg)
	}

	answer := gjson.GetBytes(body, "candidates.0.content.parts.0.text")
	if !answer.Exists() {
		reason := gjson.GetBytes(body, "promptFeedback.blockReason").String()
		if reason != "" {
			return nil, fmt.Errorf("prompt blocked (%s): %w", reason, core.ErrExtractionFailed)
		}
		return nil, fmt.Errorf("no candidates in response: %w", core.ErrExtractionFailed)
	}

	return parseAnswer(answer.String())
}

// parseAnswer decodes the model's JSON object.
func parseAnswer(text string) (map[string]any, error) {
	cleaned := cleanJSONContent(text)
	if !gjson.Valid(cleaned) {
		return nil, fmt.Errorf("answer is not valid json: %w", core.ErrExtractionFailed)
	}
	parsed := gjson.Parse(cleaned)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("answer is not a json object: %w", core.ErrExtractionFailed)
	}

	fields, ok := parsed.Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected answer shape: %w", core.ErrExtractionFailed)
	}
	return fields, nil
}

// cleanJSONContent strips a markdown code fence around a JSON answer.
func cleanJSONContent(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
