// Package triageai calls a hosted language model for symptom triage.
package triageai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hospital-queue/internal/core/triage"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

const systemPrompt = `You are a hospital triage assistant. Classify the patient's symptom description.
Reply with JSON only, no prose, using exactly these fields:
{"severity_level":"CRITICAL|HIGH|MEDIUM|LOW","confidence":0.0-1.0,"recommended_action":"...","suggested_department":"...","matched_keywords":["..."]}`

// Config configures the model client
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client implements triage.ModelClassifier over an OpenAI-compatible
// responses endpoint.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

var _ triage.ModelClassifier = (*Client)(nil)

// NewClient creates a new model client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("triage ai api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutput struct {
	Content []responseContent `json:"content"`
}

type responseEnvelope struct {
	Output []responseOutput `json:"output"`
}

type classification struct {
	SeverityLevel       string   `json:"severity_level"`
	Confidence          float64  `json:"confidence"`
	RecommendedAction   string   `json:"recommended_action"`
	SuggestedDepartment string   `json:"suggested_department"`
	MatchedKeywords     []string `json:"matched_keywords"`
}

// ClassifyWithModel asks the model to classify text.
func (c *Client) ClassifyWithModel(ctx context.Context, text string) (*triage.Result, error) {
	payload := map[string]interface{}{
		"model": c.model,
		"input": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": text},
		},
		"temperature":       0,
		"max_output_tokens": 300,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("triage ai request failed with status %d", resp.StatusCode)
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}

	out := firstOutputText(envelope)
	if out == "" {
		return nil, errors.New("triage ai response missing output text")
	}

	var parsed classification
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse triage ai response: %w", err)
	}

	return &triage.Result{
		SeverityLevel:       triage.Severity(strings.ToUpper(strings.TrimSpace(parsed.SeverityLevel))),
		Confidence:          parsed.Confidence,
		RecommendedAction:   parsed.RecommendedAction,
		SuggestedDepartment: parsed.SuggestedDepartment,
		MatchedKeywords:     parsed.MatchedKeywords,
	}, nil
}

func firstOutputText(envelope responseEnvelope) string {
	for _, out := range envelope.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" && content.Text != "" {
				return content.Text
			}
		}
	}
	return ""
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
