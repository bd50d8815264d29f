package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/source"
)

// RSSSource reads partition search results from an RSS/Atom endpoint. Feeds
// carry no comment tree and no paging cursor.
type RSSSource struct {
	client  *http.Client
	baseURL string
	parser  *gofeed.Parser
}

var _ source.Source = (*RSSSource)(nil)

// NewRSSSource wires an HTTP client; baseURL defaults to DefaultHTMLBaseURL.
func NewRSSSource(client *http.Client, baseURL string) *RSSSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultHTMLBaseURL
	}
	return &RSSSource{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		parser:  gofeed.NewParser(),
	}
}

func (s *RSSSource) Name() string {
	return "rss"
}

func (s *RSSSource) Search(ctx context.Context, req ports.SearchRequest) (ports.SearchPage, error) {
	if req.Cursor != "" {
		return ports.SearchPage{}, nil
	}
	feedURL, err := buildSearchURL(s.baseURL, "/r/"+url.PathEscape(req.Partition)+"/search.rss", req.Terms, req.Limit, "")
	if err != nil {
		return ports.SearchPage{}, err
	}

	resp, err := get(ctx, s.client, feedURL)
	if err != nil {
		return ports.SearchPage{}, fmt.Errorf("partition %s: %w", req.Partition, err)
	}
	defer resp.Body.Close()

	feed, err := s.parser.Parse(resp.Body)
	if err != nil {
		return ports.SearchPage{}, fmt.Errorf("parse feed %s: %w", req.Partition, err)
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		items = append(items, convertEntry(entry, req.Partition))
		if req.Limit > 0 && len(items) >= req.Limit {
			break
		}
	}
	return ports.SearchPage{Items: items}, nil
}

// FetchComments returns nothing: feeds expose no thread structure.
func (s *RSSSource) FetchComments(context.Context, string, ports.CommentLimits) ([]domain.RawComment, error) {
	return nil, nil
}

func convertEntry(entry *gofeed.Item, partition string) domain.RawItem {
	created := time.Time{}
	if entry.PublishedParsed != nil {
		created = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		created = entry.UpdatedParsed.UTC()
	}

	author := ""
	if entry.Author != nil {
		author = strings.TrimPrefix(entry.Author.Name, "/u/")
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}

	id := entry.GUID
	if id == "" {
		id = entry.Link
	}

	return domain.RawItem{
		ID:        id,
		Author:    author,
		Partition: partition,
		Title:     strings.TrimSpace(entry.Title),
		Body:      htmlText(body),
		URL:       entry.Link,
		CreatedAt: created,
	}
}

// htmlText flattens an HTML fragment to its visible text.
func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
