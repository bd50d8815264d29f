package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

// Client talks to an external scoring service that rates prospects.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.EnrichmentClient = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type enrichRequest struct {
	ID         string   `json:"id"`
	Partition  string   `json:"partition"`
	Text       string   `json:"text"`
	Comments   []string `json:"comments,omitempty"`
	LocalScore float64  `json:"local_score"`
}

// Enrich sends the item text and local score to the /enrich endpoint.
func (c *Client) Enrich(ctx context.Context, item domain.RawItem, localScore float64) (domain.EnrichedResult, error) {
	if c.endpoint == "" {
		return domain.EnrichedResult{}, fmt.Errorf("%w: ml endpoint not configured", domain.ErrEnrichmentUnavailable)
	}

	payload := enrichRequest{
		ID:         item.ID,
		Partition:  item.Partition,
		Text:       item.Text(),
		LocalScore: localScore,
	}
	for _, comment := range item.Comments {
		payload.Comments = append(payload.Comments, comment.Body)
	}

	var result domain.EnrichedResult
	if err := c.post(ctx, "/enrich", payload, &result); err != nil {
		return domain.EnrichedResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", domain.ErrEnrichmentTimeout, err)
		}
		return fmt.Errorf("%w: do request: %v", domain.ErrEnrichmentUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		statusErr := classifyStatus(resp.StatusCode, resp.Status)
		if closeErr != nil {
			return fmt.Errorf("%w, close body: %v", statusErr, closeErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}

func classifyStatus(code int, status string) error {
	switch {
	case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
		return fmt.Errorf("%w: unexpected status %s", domain.ErrQuotaExceeded, status)
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: unexpected status %s", domain.ErrEnrichmentTimeout, status)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: unexpected status %s", domain.ErrEnrichmentUnavailable, status)
	default:
		return fmt.Errorf("unexpected status %s", status)
	}
}
