package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/source"
)

// DefaultHTMLBaseURL is the listing front end the HTML source scrapes.
const DefaultHTMLBaseURL = "https://old.reddit.com"

// HTMLSource scrapes search listings and comment pages rendered as
// server-side HTML.
type HTMLSource struct {
	client  *http.Client
	baseURL string
}

var _ source.Source = (*HTMLSource)(nil)

// NewHTMLSource wires an HTTP client; baseURL defaults to DefaultHTMLBaseURL.
func NewHTMLSource(client *http.Client, baseURL string) *HTMLSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultHTMLBaseURL
	}
	return &HTMLSource{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name identifies the strategy inside the registry.
func (s *HTMLSource) Name() string {
	return "html"
}

// Search fetches one listing page of a partition.
func (s *HTMLSource) Search(ctx context.Context, req ports.SearchRequest) (ports.SearchPage, error) {
	pageURL, err := buildSearchURL(s.baseURL, "/r/"+url.PathEscape(req.Partition)+"/search", req.Terms, req.Limit, req.Cursor)
	if err != nil {
		return ports.SearchPage{}, err
	}

	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return ports.SearchPage{}, fmt.Errorf("partition %s: %w", req.Partition, err)
	}

	page := ports.SearchPage{Items: s.extractItems(doc, req.Partition)}
	if href, ok := doc.Find("span.next-button a").First().Attr("href"); ok {
		if next, err := url.Parse(href); err == nil {
			page.Next = next.Query().Get("after")
		}
	}
	return page, nil
}

// FetchComments walks the nested comment tree of an item.
func (s *HTMLSource) FetchComments(ctx context.Context, itemID string, limits ports.CommentLimits) ([]domain.RawComment, error) {
	pageURL := fmt.Sprintf("%s/comments/%s?limit=%d", s.baseURL, url.PathEscape(strings.TrimPrefix(itemID, "t3_")), limits.MaxTop)
	doc, err := s.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("comments %s: %w", itemID, err)
	}

	var out []domain.RawComment
	top := doc.Find("div.commentarea > div.sitetable > div.thing.comment")
	walkComments(top, itemID, 1, limits, limits.MaxTop, &out)
	return out, nil
}

func (s *HTMLSource) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := get(ctx, s.client, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *HTMLSource) extractItems(doc *goquery.Document, partition string) []domain.RawItem {
	var items []domain.RawItem
	doc.Find("div.thing[data-fullname]").Each(func(_ int, thing *goquery.Selection) {
		if thing.HasClass("comment") || thing.HasClass("promoted") {
			return
		}
		items = append(items, s.parseThing(thing, partition))
	})
	return items
}

func (s *HTMLSource) parseThing(thing *goquery.Selection, partition string) domain.RawItem {
	link := thing.Find("a.title").First()
	href, _ := link.Attr("href")
	if permalink, ok := thing.Attr("data-permalink"); ok && href == "" {
		href = permalink
	}

	item := domain.RawItem{
		ID:        attr(thing, "data-fullname"),
		Author:    attr(thing, "data-author"),
		Partition: partition,
		Title:     strings.TrimSpace(link.Text()),
		Body:      strings.TrimSpace(thing.Find(".expando .md").First().Text()),
		URL:       absoluteURL(s.baseURL, href),
		CreatedAt: parseMillis(attr(thing, "data-timestamp")),
		Engagement: domain.Engagement{
			Score:       atoi(attr(thing, "data-score")),
			NumComments: atoi(attr(thing, "data-comments-count")),
		},
	}
	if sub := attr(thing, "data-subreddit"); sub != "" {
		item.Partition = sub
	}
	return item
}

// walkComments appends comments depth-first, parents before children.
func walkComments(sel *goquery.Selection, parentID string, depth int, limits ports.CommentLimits, maxSiblings int, out *[]domain.RawComment) {
	if depth > limits.MaxDepth {
		return
	}
	taken := 0
	sel.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if taken >= maxSiblings {
			return false
		}
		id := attr(node, "data-fullname")
		if id == "" {
			return true
		}
		entry := node.ChildrenFiltered("div.entry")
		*out = append(*out, domain.RawComment{
			ID:       id,
			ParentID: parentID,
			Depth:    depth,
			Body:     strings.TrimSpace(entry.Find("div.md").First().Text()),
			Author:   attr(node, "data-author"),
			Score:    atoi(attr(node, "data-score")),
		})
		taken++

		children := node.ChildrenFiltered("div.child").ChildrenFiltered("div.sitetable").ChildrenFiltered("div.thing.comment")
		walkComments(children, id, depth+1, limits, limits.MaxRepliesPerComment, out)
		return true
	})
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return strings.TrimSpace(v)
}

func atoi(v string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(v, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
