package parser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
)

var communityNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

var _ ports.CommunitySearcher = (*HTMLSource)(nil)

// SearchCommunities runs the community search of the listing front end.
func (s *HTMLSource) SearchCommunities(ctx context.Context, query string, limit int) ([]domain.Community, error) {
	parsed, err := url.Parse(s.baseURL + "/subreddits/search")
	if err != nil {
		return nil, fmt.Errorf("invalid source url %s: %w", s.baseURL, err)
	}
	q := parsed.Query()
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	parsed.RawQuery = q.Encode()

	doc, err := s.fetchDocument(ctx, parsed.String())
	if err != nil {
		return nil, fmt.Errorf("community search %q: %w", query, err)
	}

	var out []domain.Community
	doc.Find("div.thing.subreddit").EachWithBreak(func(_ int, thing *goquery.Selection) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		href, _ := thing.Find("a.title").First().Attr("href")
		name := nameFromHref(href)
		if name == "" {
			return true
		}
		out = append(out, domain.Community{
			Name:        name,
			Subscribers: atoi(thing.Find("span.subscribers span.number").First().Text()),
			Description: strings.TrimSpace(thing.Find("div.md").First().Text()),
			Source:      domain.CommunityFromKeyword,
			Keyword:     query,
		})
		return true
	})
	return out, nil
}

// About reads the sidebar of a community page.
func (s *HTMLSource) About(ctx context.Context, name string) (domain.Community, error) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "r/"))
	if !communityNamePattern.MatchString(name) {
		return domain.Community{}, fmt.Errorf("%w: community name %q", domain.ErrNotFound, name)
	}

	doc, err := s.fetchDocument(ctx, s.baseURL+"/r/"+name+"/")
	if err != nil {
		return domain.Community{}, fmt.Errorf("community %s: %w", name, err)
	}

	side := doc.Find("div.side")
	subscribers := side.Find("span.subscribers span.number").First()
	if subscribers.Length() == 0 {
		return domain.Community{}, fmt.Errorf("%w: community %s has no sidebar", domain.ErrNotFound, name)
	}
	return domain.Community{
		Name:        name,
		Subscribers: atoi(subscribers.Text()),
		ActiveUsers: atoi(side.Find("p.users-online span.number").First().Text()),
		Description: strings.TrimSpace(side.Find("div.usertext-body div.md").First().Text()),
		Source:      domain.CommunityFromRelated,
	}, nil
}

// nameFromHref extracts "name" from links such as /r/name/ or
// https://host/r/name/.
func nameFromHref(href string) string {
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 2 || parts[0] != "r" || !communityNamePattern.MatchString(parts[1]) {
		return ""
	}
	return strings.ToLower(parts[1])
}
