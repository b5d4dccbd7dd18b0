package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/pkg/models"
)

const defaultChatURL = "https://openrouter.ai/api/v1/chat/completions"

// Placeholders used when the model leaves a field empty.
const (
	placeholderSummary  = "No summary returned yet."
	placeholderAvoid    = "No avoid advice returned yet."
	placeholderStrategy = "No ordering strategy returned yet."
)

var errMissingAPIKey = errors.New("chat analyzer requires an API key")

// ChatConfig configures the chat-completions analyzer.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Chat analyzes taste through an OpenAI-compatible chat completions endpoint.
type Chat struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	model       string
	temperature float64
	now         func() time.Time
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type chatAnalysis struct {
	Summary  string `json:"summary"`
	Avoid    string `json:"avoid"`
	Strategy string `json:"strategy"`
}

// NewChat creates a chat analyzer.
func NewChat(cfg ChatConfig) (*Chat, error) {
	if cfg.APIKey == "" {
		return nil, errMissingAPIKey
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultChatURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.3
	}

	return &Chat{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		model:       cfg.Model,
		temperature: temperature,
		now:         time.Now,
	}, nil
}

// Analyze implements Analyzer.
func (c *Chat) Analyze(ctx context.Context, req Request) (models.TasteAnalysisResult, error) {
	systemPrompt, userPrompt := BuildPrompt(req)

	content, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return models.TasteAnalysisResult{}, wrapError("chat", err)
	}

	raw, err := extractJSON(content)
	if err != nil {
		return models.TasteAnalysisResult{}, wrapError("chat", err)
	}
	var parsed chatAnalysis
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return models.TasteAnalysisResult{}, wrapError("chat", fmt.Errorf("failed to parse analysis: %w", err))
	}

	log.Debug().Str("model", c.model).Int("total_swipes", req.TotalSwipes).Msg("Chat analysis received")
	return models.TasteAnalysisResult{
		Summary:   orPlaceholder(truncateRunes(strings.TrimSpace(parsed.Summary), MaxSummaryRunes), placeholderSummary),
		Avoid:     orPlaceholder(truncateRunes(strings.TrimSpace(parsed.Avoid), MaxAdviceRunes), placeholderAvoid),
		Strategy:  orPlaceholder(truncateRunes(strings.TrimSpace(parsed.Strategy), MaxAdviceRunes), placeholderStrategy),
		Source:    "chat:" + c.model,
		CreatedAt: c.now().UTC(),
	}, nil
}

func (c *Chat) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{
			Provider:   "chat",
			StatusCode: resp.StatusCode,
			Err:        errors.New(truncateRunes(string(respBody), 512)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("provider returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// BuildPrompt renders the system and user prompts for a request.
func BuildPrompt(req Request) (string, string) {
	systemPrompt := "You are a food taste analyst. Return only JSON."

	events := req.RecentEvents
	if len(events) > maxPromptEvents {
		events = events[:maxPromptEvents]
	}
	var lines strings.Builder
	for _, ev := range events {
		names := make([]string, 0, len(ev.Features))
		for _, id := range ev.Features {
			if len(names) == 4 {
				break
			}
			names = append(names, models.FeatureFor(models.FeatureID(id)).Name)
		}
		joined := "none"
		if len(names) > 0 {
			joined = strings.Join(names, ", ")
		}
		fmt.Fprintf(&lines, "- %s: %s (%s)\n", ev.Action, ev.DishName, joined)
	}
	if lines.Len() == 0 {
		lines.WriteString("- none\n")
	}

	userPrompt := fmt.Sprintf(`Output format:
{
  "summary": "one or two sentences describing the user's taste profile",
  "avoid": "one sentence on flavors to avoid right now",
  "strategy": "one sentence on how to order next time"
}

Input:
- total_swipes: %d
- top_positive: %s
- top_negative: %s
- recent_events:
%s
Rules:
- Be concise and concrete. No exaggeration.
- Return JSON only.`,
		req.TotalSwipes,
		featurePairs(req.TopPositive),
		featurePairs(req.TopNegative),
		lines.String(),
	)
	return systemPrompt, userPrompt
}

func featurePairs(scores []models.FeatureScore) string {
	if len(scores) == 0 {
		return "none"
	}
	if len(scores) > maxPromptFeatures {
		scores = scores[:maxPromptFeatures]
	}
	parts := make([]string, 0, len(scores))
	for _, s := range scores {
		name := models.FeatureFor(models.FeatureID(s.Feature)).Name
		parts = append(parts, fmt.Sprintf("%s(%.2f)", name, s.Score))
	}
	return strings.Join(parts, ", ")
}

// extractJSON returns the outermost JSON object embedded in a model reply.
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", errors.New("no JSON object in reply")
	}
	return raw[start : end+1], nil
}

func orPlaceholder(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}
