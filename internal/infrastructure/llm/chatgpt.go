package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/config"
	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

const maxPromptText = 4000

// ChatGPTClient implements ports.EnrichmentClient backed by OpenAI-compatible
// chat completion APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.EnrichmentClient = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has everything needed to call out.
func (c *ChatGPTClient) Configured() bool {
	return c != nil && c.apiKey != "" && c.endpoint != "" && c.model != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Enrich asks the model to rate the prospect and returns its score and
// confidence on a 0..100 / 0..1 scale.
func (c *ChatGPTClient) Enrich(ctx context.Context, item domain.RawItem, localScore float64) (domain.EnrichedResult, error) {
	if !c.Configured() {
		return domain.EnrichedResult{}, fmt.Errorf("%w: chatgpt client misconfigured", domain.ErrEnrichmentUnavailable)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: userPrompt(item, localScore)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return domain.EnrichedResult{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.EnrichedResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.EnrichedResult{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.EnrichedResult{}, statusError(resp, strings.TrimSpace(string(payload)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.EnrichedResult{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.EnrichedResult{}, fmt.Errorf("%w: chatgpt returned no choices", domain.ErrEnrichmentUnavailable)
	}

	return parseVerdict(completion.Choices[0].Message.Content)
}

// parseVerdict reads the JSON object the model was asked to produce. Models
// sometimes wrap it in a code fence.
func parseVerdict(content string) (domain.EnrichedResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var verdict domain.EnrichedResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &verdict); err != nil {
		return domain.EnrichedResult{}, fmt.Errorf("parse chatgpt verdict: %w", err)
	}
	if verdict.Confidence > 1 {
		verdict.Confidence /= 100
	}
	return verdict, nil
}

func userPrompt(item domain.RawItem, localScore float64) string {
	text := item.Text()
	if len([]rune(text)) > maxPromptText {
		text = string([]rune(text)[:maxPromptText])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Community: %s\n", item.Partition)
	fmt.Fprintf(&b, "Local score: %.1f\n", localScore)
	fmt.Fprintf(&b, "Post:\n%s\n", text)
	for i, c := range item.Comments {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "Comment by %s: %s\n", c.Author, c.Body)
	}
	b.WriteString(`Reply with JSON: {"score": <0-100>, "confidence": <0-1>}`)
	return b.String()
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You rate how likely a post author is to hire a paid service provider soon."
	}
	return prompt
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrEnrichmentTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrEnrichmentTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrEnrichmentUnavailable, err)
}

func statusError(resp *http.Response, detail string) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: chatgpt %s: %s", domain.ErrQuotaExceeded, resp.Status, detail)
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: chatgpt %s", domain.ErrEnrichmentTimeout, resp.Status)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: chatgpt %s: %s", domain.ErrEnrichmentUnavailable, resp.Status, detail)
	default:
		return fmt.Errorf("chatgpt error %s: %s", resp.Status, detail)
	}
}
