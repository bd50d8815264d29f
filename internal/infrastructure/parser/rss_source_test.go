package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/source"
)

const searchFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>search results</title>
  <entry>
    <id>t3_rss1</id>
    <title>Need a videographer for a launch event</title>
    <author><name>/u/founder</name></author>
    <link href="https://old.reddit.com/r/videography/comments/rss1/"/>
    <updated>2024-03-01T10:00:00Z</updated>
    <content type="html">&lt;p&gt;Budget around &lt;b&gt;$2k&lt;/b&gt;, event is next week.&lt;/p&gt;</content>
  </entry>
  <entry>
    <id>t3_rss2</id>
    <title>Editing help</title>
    <author><name>/u/someone</name></author>
    <link href="https://old.reddit.com/r/videography/comments/rss2/"/>
    <updated>2024-03-02T10:00:00Z</updated>
    <content type="html">plain text body</content>
  </entry>
</feed>`

func TestRSSSourceSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/videography/search.rss" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(searchFeed))
	}))
	t.Cleanup(server.Close)

	src := NewRSSSource(server.Client(), server.URL)
	page, err := src.Search(context.Background(), ports.SearchRequest{Partition: "videography", Terms: []string{"video"}})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(page.Items) != 2 || page.Next != "" {
		t.Fatalf("unexpected page: %+v", page)
	}

	first := page.Items[0]
	if first.ID != "t3_rss1" || first.Author != "founder" || first.Partition != "videography" {
		t.Fatalf("unexpected identity: %+v", first)
	}
	if first.Body != "Budget around $2k, event is next week." {
		t.Fatalf("html not flattened: %q", first.Body)
	}
	if first.CreatedAt.IsZero() {
		t.Fatalf("expected timestamp")
	}
	if page.Items[1].Body != "plain text body" {
		t.Fatalf("unexpected plain body: %q", page.Items[1].Body)
	}
}

func TestRSSSourceHonoursLimitAndCursor(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(searchFeed))
	}))
	t.Cleanup(server.Close)

	src := NewRSSSource(server.Client(), server.URL)
	page, err := src.Search(context.Background(), ports.SearchRequest{Partition: "videography", Limit: 1})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(page.Items))
	}

	page, err = src.Search(context.Background(), ports.SearchRequest{Partition: "videography", Cursor: "anything"})
	if err != nil || len(page.Items) != 0 {
		t.Fatalf("expected empty continuation, got %+v, %v", page, err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("continuation should not hit the network, calls=%d", n)
	}
}

func TestRSSSourceRateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	_, err := NewRSSSource(server.Client(), server.URL).Search(context.Background(), ports.SearchRequest{Partition: "x"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestFallbackSourceDeterministic(t *testing.T) {
	t.Parallel()

	src := NewFallbackSource(3)
	req := ports.SearchRequest{Partition: "drones", Terms: []string{"drone pilot"}}

	a, err := src.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	b, _ := src.Search(context.Background(), req)
	if len(a.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(a.Items))
	}
	for i := range a.Items {
		if a.Items[i].ID != b.Items[i].ID || a.Items[i].Title != b.Items[i].Title {
			t.Fatalf("item %d differs between calls", i)
		}
		if err := a.Items[i].Validate(); err != nil {
			t.Fatalf("fallback item invalid: %v", err)
		}
	}

	other, _ := src.Search(context.Background(), ports.SearchRequest{Partition: "photography", Terms: []string{"drone pilot"}})
	if other.Items[0].ID == a.Items[0].ID {
		t.Fatalf("partitions should not share ids")
	}

	next, _ := src.Search(context.Background(), ports.SearchRequest{Partition: "drones", Cursor: "more"})
	if len(next.Items) != 0 {
		t.Fatalf("fallback has a single page")
	}
}

type stubSource struct {
	name     string
	items    []domain.RawItem
	comments map[string][]domain.RawComment
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(_ context.Context, req ports.SearchRequest) (ports.SearchPage, error) {
	out := make([]domain.RawItem, len(s.items))
	for i, it := range s.items {
		it.Partition = req.Partition
		out[i] = it
	}
	return ports.SearchPage{Items: out}, nil
}

func (s *stubSource) FetchComments(_ context.Context, id string, _ ports.CommentLimits) ([]domain.RawComment, error) {
	return s.comments[id], nil
}

func TestStrategySourceRoutesByPartition(t *testing.T) {
	t.Parallel()

	reg := source.NewRegistry()
	htmlStub := &stubSource{
		name:     "html",
		items:    []domain.RawItem{{ID: "h1"}},
		comments: map[string][]domain.RawComment{"h1": {{ID: "c1"}}},
	}
	rssStub := &stubSource{
		name:     "rss",
		items:    []domain.RawItem{{ID: "r1"}},
		comments: map[string][]domain.RawComment{"r1": {{ID: "c2"}}},
	}
	reg.Register(htmlStub)
	reg.Register(rssStub)

	strategy := NewStrategySource(reg, "html", map[string]string{"videography": "rss"}, nil)

	page, err := strategy.Search(context.Background(), ports.SearchRequest{Partition: "videography"})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "r1" {
		t.Fatalf("expected rss route, got %+v", page.Items)
	}

	page, err = strategy.Search(context.Background(), ports.SearchRequest{Partition: "drones"})
	if err != nil || page.Items[0].ID != "h1" {
		t.Fatalf("expected default route, got %+v, %v", page.Items, err)
	}

	comments, err := strategy.FetchComments(context.Background(), "r1", ports.DefaultCommentLimits())
	if err != nil || len(comments) != 1 || comments[0].ID != "c2" {
		t.Fatalf("comments should come from the owning source, got %+v, %v", comments, err)
	}
}

func TestStrategySourceUnknownRoute(t *testing.T) {
	t.Parallel()

	strategy := NewStrategySource(source.NewRegistry(), "html", nil, nil)
	if _, err := strategy.Search(context.Background(), ports.SearchRequest{Partition: "drones"}); err == nil {
		t.Fatalf("expected error for unregistered source")
	}
}
