package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
)

const userAgent = "ProspectScanner/1.0"

// get performs a GET and maps failures onto the source error taxonomy. The
// caller owns the body of a successful response.
func get(ctx context.Context, client *http.Client, pageURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: request %s: %v", domain.ErrUnavailable, pageURL, err)
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_ = resp.Body.Close()
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, resp.Status)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, resp.Status)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s %s", domain.ErrUnavailable, resp.Status, detail)
	default:
		return nil, fmt.Errorf("source returned %s: %s", resp.Status, detail)
	}
}

func buildSearchURL(base, path string, terms []string, limit int, cursor string) (string, error) {
	parsed, err := url.Parse(strings.TrimSuffix(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid source url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("q", searchQuery(terms))
	query.Set("restrict_sr", "on")
	query.Set("sort", "new")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("after", cursor)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// searchQuery ORs the terms, quoting multi-word phrases.
func searchQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.Contains(t, " ") {
			t = strconv.Quote(t)
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " OR ")
}

func absoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(href, "/")
}
